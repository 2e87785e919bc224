/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
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

// Package protocol enumerates the transport protocols the socket layer can
// bind or dial: stream (tcp, tcp4, tcp6, unix), datagram (udp, udp4, udp6,
// unixgram) and raw ip. It carries no behavior of its own beyond naming and
// (un)marshaling so that configuration files can spell a protocol as a
// plain string.
package protocol

import "strings"

// NetworkProtocol is a small enum wrapping the protocol names accepted by
// net.Dial / net.Listen and the socket/config package.
type NetworkProtocol uint8

const (
	NetworkEmpty NetworkProtocol = iota
	NetworkTCP
	NetworkTCP4
	NetworkTCP6
	NetworkUDP
	NetworkUDP4
	NetworkUDP6
	NetworkUnix
	NetworkUnixGram
	NetworkIP
	NetworkIP4
	NetworkIP6
)

var names = map[NetworkProtocol]string{
	NetworkTCP:      "tcp",
	NetworkTCP4:     "tcp4",
	NetworkTCP6:     "tcp6",
	NetworkUDP:      "udp",
	NetworkUDP4:     "udp4",
	NetworkUDP6:     "udp6",
	NetworkUnix:     "unix",
	NetworkUnixGram: "unixgram",
	NetworkIP:       "ip",
	NetworkIP4:      "ip4",
	NetworkIP6:      "ip6",
}

var byName = func() map[string]NetworkProtocol {
	m := make(map[string]NetworkProtocol, len(names))
	for k, v := range names {
		m[v] = k
	}
	return m
}()

// Parse resolves a protocol name, case-insensitively, trimmed of
// surrounding whitespace and of one pair of enclosing single, double or
// back quotes, into a NetworkProtocol. Unknown names resolve to
// NetworkEmpty.
func Parse(s string) NetworkProtocol {
	s = strings.ToLower(unquote(s))
	if p, ok := byName[s]; ok {
		return p
	}
	return NetworkEmpty
}

// String returns the canonical lowercase name, or "" for NetworkEmpty and
// any out-of-range value.
func (p NetworkProtocol) String() string {
	return names[p]
}

// Code returns the string as accepted by net.Dial/net.Listen network
// parameters; identical to String for every valid protocol.
func (p NetworkProtocol) Code() string {
	return p.String()
}

// IsStream reports whether the protocol is connection-oriented (tcp* or
// unix), as opposed to a datagram/raw one.
func (p NetworkProtocol) IsStream() bool {
	switch p {
	case NetworkTCP, NetworkTCP4, NetworkTCP6, NetworkUnix:
		return true
	default:
		return false
	}
}

// IsUnix reports whether the protocol is a filesystem-path based socket.
func (p NetworkProtocol) IsUnix() bool {
	return p == NetworkUnix || p == NetworkUnixGram
}

// IsTCP reports whether the protocol is a TCP variant.
func (p NetworkProtocol) IsTCP() bool {
	switch p {
	case NetworkTCP, NetworkTCP4, NetworkTCP6:
		return true
	default:
		return false
	}
}

// IsUDP reports whether the protocol is a UDP variant.
func (p NetworkProtocol) IsUDP() bool {
	switch p {
	case NetworkUDP, NetworkUDP4, NetworkUDP6:
		return true
	default:
		return false
	}
}
