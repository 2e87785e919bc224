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

// Package tcp implements a socket.Client dialing a TCP listener, with
// optional TLS and runtime reconfiguration of the dial target.
package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	libtls "github.com/nabbar/carbon/certificates"
	libsck "github.com/nabbar/carbon/socket"
	sckcfg "github.com/nabbar/carbon/socket/config"
)

var (
	ErrInvalidAddress  = errors.New("invalid address")
	ErrNotConnected    = errors.New("client not connected")
	ErrAlreadyConnected = errors.New("client already connected")
	ErrInvalidTLSConfig = errors.New("invalid tls config")
)

// ClientTcp is a TCP socket.Client with runtime TLS reconfiguration.
type ClientTcp interface {
	libsck.Client

	// SetTLS enables or disables TLS for the next Connect call; it does
	// not affect an already-established connection.
	SetTLS(enable bool, cfg libtls.TLSConfig, serverName string) error
}

type cliTcp struct {
	mu sync.RWMutex

	upd libsck.UpdateConn
	cfg sckcfg.Client

	tlsEnabled bool
	tlsCfg     libtls.TLSConfig
	servName   string

	conn net.Conn

	connected atomic.Bool
	fnErr     atomic.Value // socket.FuncError
}

// New creates a TCP client dialing cfg.Address once Connect is called. upd,
// when non-nil, is invoked on the dialed net.Conn before use.
func New(upd libsck.UpdateConn, cfg sckcfg.Client) (ClientTcp, error) {
	if cfg.Address == "" {
		return nil, ErrInvalidAddress
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &cliTcp{
		upd: upd,
		cfg: cfg,
	}

	if cfg.TLS.Enabled {
		t := cfg.TLS.Config
		c.tlsEnabled = true
		c.tlsCfg = (&t).New()
		c.servName = cfg.TLS.ServerName
	}

	return c, nil
}

func (c *cliTcp) RegisterFuncError(f libsck.FuncError) {
	c.fnErr.Store(f)
}

func (c *cliTcp) reportErr(errs ...error) {
	v := c.fnErr.Load()
	if v == nil {
		return
	}
	f, ok := v.(libsck.FuncError)
	if !ok || f == nil {
		return
	}

	var out []error
	for _, e := range errs {
		if fe := libsck.ErrorFilter(e); fe != nil {
			out = append(out, fe)
		}
	}
	if len(out) > 0 {
		c.safeCall(func() { f(out...) })
	}
}

func (c *cliTcp) safeCall(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}

// SetTLS enables or disables TLS for the next Connect call.
func (c *cliTcp) SetTLS(enable bool, cfg libtls.TLSConfig, serverName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !enable {
		c.tlsEnabled = false
		c.tlsCfg = nil
		c.servName = ""
		return nil
	}

	if cfg == nil {
		return ErrInvalidTLSConfig
	}

	c.tlsEnabled = true
	c.tlsCfg = cfg
	c.servName = serverName
	return nil
}

// Connect dials cfg.Address, wrapping the connection in TLS if enabled.
func (c *cliTcp) Connect(ctx context.Context) error {
	if c.connected.Load() {
		return ErrAlreadyConnected
	}

	c.mu.RLock()
	addr := c.cfg.Address
	network := c.cfg.Network
	useTLS := c.tlsEnabled
	tlsCfg := c.tlsCfg
	servName := c.servName
	c.mu.RUnlock()

	var d net.Dialer
	conn, err := d.DialContext(ctx, network.Code(), addr)
	if err != nil {
		c.reportErr(err)
		return err
	}

	if c.upd != nil {
		c.upd(conn)
	}

	if useTLS {
		tc := tlsCfg.TlsConfig(servName)
		tconn := tls.Client(conn, tc)
		if herr := tconn.HandshakeContext(ctx); herr != nil {
			_ = conn.Close()
			c.reportErr(herr)
			return herr
		}
		conn = tconn
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)

	return nil
}

func (c *cliTcp) Read(p []byte) (int, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !c.connected.Load() {
		return 0, ErrNotConnected
	}

	n, err := conn.Read(p)
	if err != nil {
		c.connected.Store(false)
		if ferr := libsck.ErrorFilter(err); ferr != nil {
			c.reportErr(ferr)
		}
	}
	return n, err
}

func (c *cliTcp) Write(p []byte) (int, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !c.connected.Load() {
		return 0, ErrNotConnected
	}

	n, err := conn.Write(p)
	if err != nil {
		c.connected.Store(false)
		if ferr := libsck.ErrorFilter(err); ferr != nil {
			c.reportErr(ferr)
		}
	}
	return n, err
}

func (c *cliTcp) Close() error {
	c.connected.Store(false)

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *cliTcp) IsConnected() bool {
	return c.connected.Load()
}
