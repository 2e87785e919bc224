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

// Package config defines the client/server connection parameters consumed
// by socket/client and socket/server: network protocol, address, optional
// TLS, and the Unix-socket-specific file mode/group.
package config

import (
	"errors"
	"net"
	"time"

	libtls "github.com/nabbar/carbon/certificates"
	libprm "github.com/nabbar/carbon/file/perm"
	libptc "github.com/nabbar/carbon/network/protocol"
)

// MaxGID is the highest group id this package accepts for a Unix socket's
// GroupPerm, matching the traditional 16-bit signed gid ceiling.
const MaxGID = 32767

var (
	ErrInvalidProtocol  = errors.New("invalid protocol")
	ErrInvalidTLSConfig = errors.New("invalid TLS config")
	ErrInvalidGroup     = errors.New("invalid unix group")
)

// ClientTLS wraps the certificates package's TLS configuration with an
// on/off switch: a client may be configured for a protocol that supports
// TLS without enabling it.
type ClientTLS struct {
	Enabled bool
	Config  libtls.Config

	// ServerName overrides the name used for certificate verification
	// (tls.Config.ServerName). Empty keeps whatever the dialed host
	// resolves to.
	ServerName string
}

// ServerTLS mirrors ClientTLS for server-side listeners.
type ServerTLS struct {
	Enabled bool
	Config  libtls.Config
}

// Client describes the remote endpoint a socket/client connects to.
type Client struct {
	Network libptc.NetworkProtocol
	Address string
	TLS     ClientTLS
}

// Validate checks the protocol/address combination, resolving the address
// with the matching net.Resolve*Addr so malformed host:port or socket
// paths are caught before a connection attempt.
func (c Client) Validate() error {
	if err := validateAddr(c.Network, c.Address); err != nil {
		return err
	}
	if c.TLS.Enabled && !c.Network.IsStream() {
		return ErrInvalidTLSConfig
	}
	return nil
}

// Server describes the local endpoint a socket/server listens on.
type Server struct {
	Network   libptc.NetworkProtocol
	Address   string
	TLS       ServerTLS
	PermFile  libprm.Perm
	GroupPerm int32

	// ConIdleTimeout closes an accepted connection that neither reads nor
	// writes for this long. Zero disables the idle timeout.
	ConIdleTimeout time.Duration
}

// Validate checks the protocol/address combination and, for Unix-domain
// listeners, the file mode and group id used when creating the socket
// file.
func (s Server) Validate() error {
	if err := validateAddr(s.Network, s.Address); err != nil {
		return err
	}
	if s.TLS.Enabled && !s.Network.IsStream() {
		return ErrInvalidTLSConfig
	}
	if s.Network.IsUnix() && s.GroupPerm > MaxGID {
		return ErrInvalidGroup
	}
	return nil
}

func validateAddr(proto libptc.NetworkProtocol, addr string) error {
	switch {
	case proto == libptc.NetworkTCP || proto == libptc.NetworkTCP4 || proto == libptc.NetworkTCP6:
		_, err := net.ResolveTCPAddr(proto.Code(), addr)
		return err
	case proto == libptc.NetworkUDP || proto == libptc.NetworkUDP4 || proto == libptc.NetworkUDP6:
		_, err := net.ResolveUDPAddr(proto.Code(), addr)
		return err
	case proto == libptc.NetworkUnix || proto == libptc.NetworkUnixGram:
		if addr == "" {
			return ErrInvalidProtocol
		}
		_, err := net.ResolveUnixAddr(proto.Code(), addr)
		return err
	default:
		return ErrInvalidProtocol
	}
}
