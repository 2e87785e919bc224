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

// Package wire renders vep.Container control frames as CBOR for tracing
// and debugging. It never touches the wire codec in package vep itself —
// nothing in connector or socket decodes a Dump, it exists purely so a
// log line or a trace sink can carry a structured, inspectable copy of a
// frame without re-implementing the fixed-layout binary header.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/nabbar/carbon/vep"
)

// Packet is the CBOR-friendly shape of a vep.Packet.
type Packet struct {
	Type uint32 `cbor:"type"`
	Body []byte `cbor:"body"`
}

// Dump is the CBOR-friendly shape of a vep.Container, one level removed
// from the fixed binary header so field names survive in the encoding.
type Dump struct {
	Type    uint16   `cbor:"type"`
	Flags   uint32   `cbor:"flags"`
	Src     uint16   `cbor:"src,omitempty"`
	Dst     uint16   `cbor:"dst,omitempty"`
	Packets []Packet `cbor:"packets"`
}

// FromContainer builds a Dump from a decoded container. It never fails:
// any vep.Container that decoded successfully already satisfies Valid.
func FromContainer(c *vep.Container) Dump {
	d := Dump{
		Type:    uint16(c.Type()),
		Flags:   uint32(c.Flags()),
		Src:     uint16(c.Src()),
		Dst:     uint16(c.Dst()),
		Packets: make([]Packet, 0, c.Len()),
	}

	for _, p := range c.Packets() {
		d.Packets = append(d.Packets, Packet{
			Type: uint32(p.Type()),
			Body: p.Body(),
		})
	}

	return d
}

// Marshal renders a container as a CBOR byte string suitable for a log
// field or a trace file, one call per container — no streaming state to
// keep across calls, unlike vep.Codec.
func Marshal(c *vep.Container) ([]byte, error) {
	return cbor.Marshal(FromContainer(c))
}

// String renders a container as a compact Go-syntax-like debug string,
// for call sites that want a log line rather than a byte blob (the CBOR
// bytes themselves are not human-readable).
func String(c *vep.Container) string {
	d := FromContainer(c)
	return fmt.Sprintf("container{type=%d flags=%#x packets=%d}", d.Type, d.Flags, len(d.Packets))
}
