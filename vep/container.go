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
	"encoding/binary"

	vcode "github.com/nabbar/carbon/vep/errcode"
)

// Header sizes, per the fixed little-endian layout.
const (
	headFixedSize = 4 + 4 + 2 + 4 + 4 + 2 // ident,version,type,flags,length,crc
	headAddrSize  = 2 + 2 + 4*4           // src,dst,4 reserved u32
)

// Container is a single VEP frame: a typed header plus an ordered list of
// Packets. The zero value is not valid; use NewContainer.
type Container struct {
	typ   ContainerType
	flags Flags
	src   Addr
	dst   Addr

	packets []*Packet
}

// NewContainer creates an empty container of the given type.
func NewContainer(typ ContainerType) *Container {
	return &Container{typ: typ}
}

func (c *Container) Type() ContainerType { return c.typ }
func (c *Container) Flags() Flags        { return c.flags }
func (c *Container) Src() Addr           { return c.src }
func (c *Container) Dst() Addr           { return c.dst }
func (c *Container) Packets() []*Packet  { return c.packets }
func (c *Container) Len() int            { return len(c.packets) }
func (c *Container) Empty() bool         { return len(c.packets) == 0 }

// SetAddr sets the source/destination addresses and marks the addr-present
// flag. No routing layer uses this in core scope; exposed for forward
// compatibility and for sysresp-style echoing of inbound addresses.
func (c *Container) SetAddr(src, dst Addr) {
	c.src, c.dst = src, dst
	c.flags |= FlagAddr
}

// Append adds a packet to the container's ordered packet list.
func (c *Container) Append(p *Packet) {
	c.packets = append(c.packets, p)
}

// InsertPacket creates a new packet of the given type with the given body
// and appends it, mirroring CVepContainer::insertPacket.
func (c *Container) InsertPacket(typ PacketType, body []byte) error {
	p := NewPacket(typ)
	if err := p.PutData(body); err != nil {
		return err
	}
	c.Append(p)
	return nil
}

// bodySize returns the encoded size of all packets, header included.
func (c *Container) bodySize() uint32 {
	var n uint32
	for _, p := range c.packets {
		n += p.Size()
	}
	return n
}

// Valid reports whether the container and all its packets satisfy the
// framing invariants (non-zero packet types, size limits).
func (c *Container) Valid() bool {
	if uint64(c.bodySize()) > MaxContainerBody {
		return false
	}
	for _, p := range c.packets {
		if !p.Valid() {
			return false
		}
	}
	return true
}

// Finalise validates the container before encoding/sending.
func (c *Container) Finalise() error {
	if !c.Valid() {
		return vcode.EInval.Error(nil)
	}
	return nil
}

// Encode serialises the container into a single contiguous buffer ready
// for one send call, as required by spec.md §4.1 "encode".
func (c *Container) Encode() ([]byte, error) {
	if err := c.Finalise(); err != nil {
		return nil, err
	}

	body := make([]byte, 0, c.bodySize())
	for _, p := range c.packets {
		var ph [packetHeaderSize]byte
		binary.LittleEndian.PutUint32(ph[0:4], uint32(p.typ))
		binary.LittleEndian.PutUint32(ph[4:8], uint32(len(p.body)))
		body = append(body, ph[:]...)
		body = append(body, p.body...)
	}

	headSize := headFixedSize
	if c.flags.AddrPresent() {
		headSize += headAddrSize
	}

	buf := make([]byte, headSize+len(body))
	copy(buf[0:4], Ident[:])
	binary.LittleEndian.PutUint32(buf[4:8], Version)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(c.typ))
	binary.LittleEndian.PutUint32(buf[10:14], uint32(c.flags))
	binary.LittleEndian.PutUint32(buf[14:18], uint32(len(body)))
	// checksum field (18:20) left zero while computing CRC over body.
	binary.LittleEndian.PutUint16(buf[18:20], 0)

	off := headFixedSize
	if c.flags.AddrPresent() {
		binary.LittleEndian.PutUint16(buf[off:off+2], uint16(c.src))
		binary.LittleEndian.PutUint16(buf[off+2:off+4], uint16(c.dst))
		// reserved u32 slots are left zero
		off += headAddrSize
	}

	copy(buf[headSize:], body)

	crc := Checksum(body)
	binary.LittleEndian.PutUint16(buf[18:20], crc)

	return buf, nil
}

// Header is the decoded, fixed-size portion of a container, returned by
// DecodeHeader before the body has necessarily arrived in full.
type Header struct {
	Type       ContainerType
	Flags      Flags
	BodyLength uint32
	Checksum   uint16
	Src        Addr
	Dst        Addr

	// HeadSize is the total header size actually consumed, including the
	// optional addr block when Flags.AddrPresent().
	HeadSize int
}

// DecodeHeader parses the fixed container header from buf, which must
// contain at least headFixedSize bytes (more if the addr-present flag
// cannot yet be known without peeking the flags field; callers reading
// from a stream should read headFixedSize first, then headAddrSize more
// if Flags.AddrPresent() on the returned Header).
func DecodeHeader(buf []byte) (Header, error) {
	var h Header

	if len(buf) < headFixedSize {
		return h, vcode.EInval.Error(nil)
	}
	if string(buf[0:4]) != string(Ident[:]) {
		return h, vcode.EInval.Error(nil)
	}
	if binary.LittleEndian.Uint32(buf[4:8]) != Version {
		return h, vcode.EInval.Error(nil)
	}

	h.Type = ContainerType(binary.LittleEndian.Uint16(buf[8:10]))
	h.Flags = Flags(binary.LittleEndian.Uint32(buf[10:14]))
	h.BodyLength = binary.LittleEndian.Uint32(buf[14:18])
	h.Checksum = binary.LittleEndian.Uint16(buf[18:20])
	h.HeadSize = headFixedSize

	if h.Flags.hasReservedBits() {
		return h, vcode.EInval.Error(nil)
	}
	if uint64(h.BodyLength) > MaxContainerBody {
		return h, vcode.E2Big.Error(nil)
	}

	if h.Flags.AddrPresent() {
		if len(buf) < headFixedSize+headAddrSize {
			return h, vcode.EInval.Error(nil)
		}
		off := headFixedSize
		h.Src = Addr(binary.LittleEndian.Uint16(buf[off : off+2]))
		h.Dst = Addr(binary.LittleEndian.Uint16(buf[off+2 : off+4]))
		h.HeadSize += headAddrSize
	}

	return h, nil
}

// DecodePackets parses an ordered list of packets from a fully-buffered
// body of exactly len(body) == header.BodyLength bytes.
func DecodePackets(body []byte) ([]*Packet, error) {
	var out []*Packet
	off := 0

	for off < len(body) {
		if len(body)-off < packetHeaderSize {
			return nil, vcode.EInval.Error(nil)
		}

		typ := PacketType(binary.LittleEndian.Uint32(body[off : off+4]))
		n := binary.LittleEndian.Uint32(body[off+4 : off+8])
		off += packetHeaderSize

		if typ == PacketTypeNull {
			return nil, vcode.EInval.Error(nil)
		}
		if uint64(n) > uint64(len(body)-off) {
			return nil, vcode.EInval.Error(nil)
		}

		p := NewPacket(typ)
		if err := p.PutData(body[off : off+int(n)]); err != nil {
			return nil, err
		}
		off += int(n)

		out = append(out, p)
	}

	return out, nil
}

// Decode parses a complete container (header plus body already fully
// buffered) in one call, verifying the checksum.
func Decode(buf []byte) (*Container, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}

	if len(buf) < h.HeadSize+int(h.BodyLength) {
		return nil, vcode.EInval.Error(nil)
	}
	body := buf[h.HeadSize : h.HeadSize+int(h.BodyLength)]

	if Checksum(body) != h.Checksum {
		return nil, vcode.EInval.Error(nil)
	}

	packets, err := DecodePackets(body)
	if err != nil {
		return nil, err
	}

	c := &Container{
		typ:     h.Type,
		flags:   h.Flags,
		src:     h.Src,
		dst:     h.Dst,
		packets: packets,
	}
	return c, nil
}
