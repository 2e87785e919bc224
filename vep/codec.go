/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package vep

import (
	"errors"
	"io"
	"net"
	"os"
	"time"

	vcode "github.com/nabbar/carbon/vep/errcode"
)

// Codec is the framed-transport trait implemented by this package:
// anything that can carry whole containers over a byte-oriented, deadline-
// capable stream. connector depends on this interface (Config.Codec)
// rather than on *Container's concrete stream helpers, so alternate wire
// codecs can be substituted in tests.
type Codec interface {
	StreamSend(conn net.Conn, c *Container, deadline time.Time) error
	StreamRecv(conn net.Conn, deadline time.Time) (*Container, error)
}

// DefaultCodec is the VEP wire codec used by every socket/connector path.
var DefaultCodec Codec = wireCodec{}

type wireCodec struct{}

func (wireCodec) StreamSend(conn net.Conn, c *Container, deadline time.Time) error {
	return StreamSend(conn, c, deadline)
}

func (wireCodec) StreamRecv(conn net.Conn, deadline time.Time) (*Container, error) {
	return StreamRecv(conn, deadline)
}

// StreamSend encodes c and writes it to conn in full, honoring deadline.
// A zero deadline means no timeout. Partial writes continue until the
// whole buffer is sent, the deadline fires, or conn reports an error.
func StreamSend(conn net.Conn, c *Container, deadline time.Time) error {
	buf, err := c.Encode()
	if err != nil {
		return err
	}

	if err = conn.SetWriteDeadline(deadline); err != nil {
		return vcode.EIO.Error(err)
	}

	for off := 0; off < len(buf); {
		n, werr := conn.Write(buf[off:])
		off += n
		if werr != nil {
			return mapIOErr(werr)
		}
	}
	return nil
}

// StreamRecv reads one complete container from conn, honoring deadline.
// It first reads the fixed header, then the optional addr block, then the
// body, verifying the checksum before returning. Any framing violation
// returns a vcode error and the caller is expected to close the connection.
func StreamRecv(conn net.Conn, deadline time.Time) (*Container, error) {
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, vcode.EIO.Error(err)
	}

	fixed := make([]byte, headFixedSize)
	if err := readFull(conn, fixed); err != nil {
		return nil, err
	}

	h, err := DecodeHeader(fixed)
	if err != nil {
		return nil, err
	}

	var addr []byte
	if h.Flags.AddrPresent() {
		addr = make([]byte, headAddrSize)
		if err = readFull(conn, addr); err != nil {
			return nil, err
		}
	}

	body := make([]byte, h.BodyLength)
	if err = readFull(conn, body); err != nil {
		return nil, err
	}

	if Checksum(body) != h.Checksum {
		return nil, vcode.EInval.Error(nil)
	}

	packets, err := DecodePackets(body)
	if err != nil {
		return nil, err
	}

	c := &Container{typ: h.Type, flags: h.Flags, packets: packets}
	if h.Flags.AddrPresent() {
		c.src = Addr(uint16(addr[0]) | uint16(addr[1])<<8)
		c.dst = Addr(uint16(addr[2]) | uint16(addr[3])<<8)
	}

	return c, nil
}

// readFull reads exactly len(buf) bytes, mapping timeout/EOF/reset errors
// to the standard vcode set so callers never need to inspect net.Error.
func readFull(conn net.Conn, buf []byte) error {
	_, err := io.ReadFull(conn, buf)
	return mapIOErr(err)
}

func mapIOErr(err error) error {
	if err == nil {
		return nil
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return vcode.ETimedOut.Error(err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return vcode.EConnReset.Error(err)
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return vcode.ETimedOut.Error(err)
	}

	return vcode.EIO.Error(err)
}
