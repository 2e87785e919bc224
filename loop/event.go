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

// Package loop implements the cooperative, single-owner-thread event loop
// and timer heap that every actor in this module (server connections,
// clients, the accept loop) runs on.
package loop

import "github.com/nabbar/carbon/session"

// EventType identifies the kind of an Event. The reserved range below is
// part of the runtime's public contract: DNS/NTP event types are carried
// even though no DNS/NTP service ships in this module, so an external
// service can post/consume them on the same loops.
type EventType uint32

const (
	EvStart EventType = iota + 1
	EvQuit
	EvHup
	EvUsr1
	EvUsr2

	EvNetConnRecv
	EvNetConnSent

	EvNetClientConnected
	EvNetClientRecv
	EvNetClientSent

	EvNetServerConnected
	EvNetServerDisconnected
	EvNetServerRecv
	EvNetServerSent
	EvNetServerDoSend

	EvDNSResolve
	EvDNSReply
	EvNTPRequest
	EvNTPReply
)

func (e EventType) String() string {
	switch e {
	case EvStart:
		return "START"
	case EvQuit:
		return "QUIT"
	case EvHup:
		return "HUP"
	case EvUsr1:
		return "USR1"
	case EvUsr2:
		return "USR2"
	case EvNetConnRecv:
		return "NETCONN_RECV"
	case EvNetConnSent:
		return "NETCONN_SENT"
	case EvNetClientConnected:
		return "NET_CLIENT_CONNECTED"
	case EvNetClientRecv:
		return "NET_CLIENT_RECV"
	case EvNetClientSent:
		return "NET_CLIENT_SENT"
	case EvNetServerConnected:
		return "NET_SERVER_CONNECTED"
	case EvNetServerDisconnected:
		return "NET_SERVER_DISCONNECTED"
	case EvNetServerRecv:
		return "NET_SERVER_RECV"
	case EvNetServerSent:
		return "NET_SERVER_SENT"
	case EvNetServerDoSend:
		return "NET_SERVER_DO_SEND"
	case EvDNSResolve:
		return "DNS_RESOLVE"
	case EvDNSReply:
		return "DNS_REPLY"
	case EvNTPRequest:
		return "NTP_REQUEST"
	case EvNTPReply:
		return "NTP_REPLY"
	default:
		return "UNKNOWN"
	}
}

// Event is a single unit of work delivered to a loop. Payload carries
// event-specific data (a container, a handle, a result) as an untyped
// value; receivers type-assert it against what they expect for Type.
type Event struct {
	Type    EventType
	Session session.ID
	Payload interface{}

	// Broadcast events are delivered to every receiver registered on the
	// owning loop rather than to a single target.
	Broadcast bool
}

// Receiver handles one Event, returning true if it consumed it. Unconsumed
// events are discarded by the loop after logging.
type Receiver interface {
	HandleEvent(e Event) bool
}

// ReceiverFunc adapts a plain function to the Receiver interface.
type ReceiverFunc func(e Event) bool

func (f ReceiverFunc) HandleEvent(e Event) bool { return f(e) }
