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

// Package vep implements the Verinet Exchange Protocol: a binary framing
// format composed of containers, each carrying an ordered sequence of
// typed packets. See SPEC_FULL.md §4.1 for the wire layout.
package vep

// Ident is the fixed 4-byte container magic, ASCII "veri".
var Ident = [4]byte{'v', 'e', 'r', 'i'}

// Version is the only container version this package understands.
const Version uint32 = 1

// Size limits from spec.md §4.1.
const (
	MaxContainerBody = 16 * 1024 * 1024
	MaxPacketBody    = 8 * 1024 * 1024
)

// Packet buffer growth parameters (spec.md §4.1 "Limits"): an inline
// buffer of roughly one page, doubling on growth up to 1 MiB, then
// rounded up to a page boundary.
const (
	PageSize        = 4096
	PacketInlineCap = PageSize
	packetGrowCap   = 1024 * 1024
)

// ContainerType identifies the kind of container; VEP_CONTAINER_SYSTEM
// (0) is reserved for protocol-internal exchanges (see sysresp), all
// other values are application-defined.
type ContainerType uint16

const (
	ContainerSystem ContainerType = 0
	ContainerApp    ContainerType = 1
)

// PacketType identifies a packet inside a container. Zero is invalid
// (I2): every packet in a valid container has a non-zero type.
type PacketType uint32

const PacketTypeNull PacketType = 0

// Addr is a 16-bit source/destination address slot, present only when
// Flags.AddrPresent is set. No routing layer exists in core scope; the
// slots are preserved on decode for forward compatibility only.
type Addr uint16

const (
	AddrNone      Addr = 0
	AddrBroadcast Addr = 0xffff
)

// Flags are the container header flags. Crypt, Compress and Packed are
// reserved placeholders never set by any path in this module (spec.md §9
// Open Questions); a receiver seeing any of them set treats it as a
// framing error.
type Flags uint32

const (
	FlagCrypt    Flags = 1 << 0
	FlagCompress Flags = 1 << 1
	FlagPacked   Flags = 1 << 2
	FlagAddr     Flags = 1 << 3

	flagsReserved = FlagCrypt | FlagCompress | FlagPacked
	flagsKnown    = flagsReserved | FlagAddr
)

func (f Flags) AddrPresent() bool { return f&FlagAddr != 0 }

func (f Flags) hasReservedBits() bool {
	return f&flagsReserved != 0 || f&^flagsKnown != 0
}
