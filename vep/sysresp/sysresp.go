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

// Package sysresp answers VEP_CONTAINER_SYSTEM containers: today just the
// VERSION/VERSION_REPLY exchange, letting a peer ask a live connection
// which protocol and application version it is talking to.
package sysresp

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/nabbar/carbon/vep"
)

// Packet types inside a VEP_CONTAINER_SYSTEM container.
const (
	PacketNone vep.PacketType = iota
	PacketResult
	PacketVersion
	PacketVersionReply
)

// Version is a three-component application/library version number.
type Version struct {
	Major uint16
	Minor uint16
	Patch uint16
}

func (v Version) encode() [6]byte {
	var b [6]byte
	binary.LittleEndian.PutUint16(b[0:2], v.Major)
	binary.LittleEndian.PutUint16(b[2:4], v.Minor)
	binary.LittleEndian.PutUint16(b[4:6], v.Patch)
	return b
}

// Responder answers VERSION requests with the library version (fixed) and
// an application version supplied by the embedder.
type Responder struct {
	AppVersion Version
}

// LibVersion is this module's own protocol/library version, reported in
// every VERSION_REPLY alongside the embedder's AppVersion.
var LibVersion = Version{Major: 1, Minor: 0, Patch: 0}

// New creates a responder reporting appVersion as the application version.
func New(appVersion Version) *Responder {
	return &Responder{AppVersion: appVersion}
}

// Handle inspects an inbound VEP_CONTAINER_SYSTEM container and, if it
// carries a VERSION packet, writes back a VERSION_REPLY container over
// conn before the deadline. Containers carrying no recognised packet are
// ignored; this mirrors the original responder's per-packet-type dispatch
// but implements only the VERSION exchange, the rest being out of scope.
func (r *Responder) Handle(conn net.Conn, in *vep.Container, deadline time.Time) error {
	if in.Type() != vep.ContainerSystem {
		return nil
	}

	for _, p := range in.Packets() {
		if p.Type() != PacketVersion {
			continue
		}

		reply := vep.NewContainer(vep.ContainerSystem)
		appv, libv := r.AppVersion.encode(), LibVersion.encode()
		body := append(append([]byte{}, appv[:]...), libv[:]...)
		if err := reply.InsertPacket(PacketVersionReply, body); err != nil {
			return err
		}
		if err := reply.Finalise(); err != nil {
			return err
		}
		return vep.StreamSend(conn, reply, deadline)
	}

	return nil
}

