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
	liberr "github.com/nabbar/carbon/errors"

	vcode "github.com/nabbar/carbon/vep/errcode"
)

// Packet is a typed, length-delimited sub-message carried inside a
// Container. The zero value is not a valid packet; use NewPacket.
//
// Body growth mirrors the original C++ implementation: an inline buffer
// of about one page, doubling on growth up to 1 MiB, then rounded up to
// a page boundary, capped at MaxPacketBody.
type Packet struct {
	typ  PacketType
	body []byte
}

// NewPacket creates an empty packet of the given type. A zero type is
// rejected by Valid/Finalise, mirroring I2.
func NewPacket(typ PacketType) *Packet {
	return &Packet{typ: typ, body: make([]byte, 0, PacketInlineCap)}
}

// Type returns the packet's type.
func (p *Packet) Type() PacketType { return p.typ }

// Body returns the packet's current body bytes. The returned slice aliases
// the packet's internal storage and must not be retained past the next
// mutation of the packet.
func (p *Packet) Body() []byte { return p.body }

// Size returns the on-wire size of the packet, header included.
func (p *Packet) Size() uint32 { return packetHeaderSize + uint32(len(p.body)) }

const packetHeaderSize = 4 + 4 // type(u32) + length(u32)

// nextGrowSize applies the doubling-then-page-round policy to reach at
// least need bytes of capacity.
func nextGrowSize(current, need int) int {
	size := current
	if size == 0 {
		size = PacketInlineCap
	}
	for size < need {
		if size >= packetGrowCap {
			// round the requirement itself up to a page boundary
			size = (need + PageSize - 1) &^ (PageSize - 1)
			break
		}
		size <<= 1
	}
	if size < need {
		size = (need + PageSize - 1) &^ (PageSize - 1)
	}
	return size
}

// PutData appends data to the packet body, growing the underlying buffer
// per the doubling/page-round policy. Returns E2Big if the resulting body
// would exceed MaxPacketBody, EInval if the packet has no type set.
func (p *Packet) PutData(data []byte) error {
	if p.typ == PacketTypeNull {
		return vcode.EInval.Error(nil)
	}
	if len(data) == 0 {
		return nil
	}
	if len(p.body)+len(data) > MaxPacketBody {
		return vcode.E2Big.Error(nil)
	}

	if cap(p.body)-len(p.body) < len(data) {
		newCap := nextGrowSize(cap(p.body), len(p.body)+len(data))
		nb := make([]byte, len(p.body), newCap)
		copy(nb, p.body)
		p.body = nb
	}

	p.body = append(p.body, data...)
	return nil
}

// Valid reports whether the packet satisfies I2 and the max-size limit.
func (p *Packet) Valid() bool {
	return p.typ != PacketTypeNull && len(p.body) <= MaxPacketBody
}

// Finalise validates the packet, mirroring the original's two-step
// create-then-finalise workflow.
func (p *Packet) Finalise() error {
	if !p.Valid() {
		return liberr.UnknownError.Error(nil)
	}
	return nil
}

// Clone returns a deep copy of the packet.
func (p *Packet) Clone() *Packet {
	b := make([]byte, len(p.body))
	copy(b, p.body)
	return &Packet{typ: p.typ, body: b}
}
