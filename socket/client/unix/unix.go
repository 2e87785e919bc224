//go:build linux || darwin

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

// Package unix implements a socket.Client dialing a Unix-domain stream
// socket.
package unix

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	libsck "github.com/nabbar/carbon/socket"
	sckcfg "github.com/nabbar/carbon/socket/config"
)

var (
	ErrInvalidAddress   = errors.New("invalid socket path")
	ErrNotConnected     = errors.New("client not connected")
	ErrAlreadyConnected = errors.New("client already connected")
)

// ClientUnix is a Unix-domain socket.Client.
type ClientUnix interface {
	libsck.Client
}

type cliUnix struct {
	mu sync.RWMutex

	upd libsck.UpdateConn
	cfg sckcfg.Client

	conn net.Conn

	connected atomic.Bool
	fnErr     atomic.Value
}

// New creates a Unix-domain client dialing cfg.Address once Connect is
// called.
func New(upd libsck.UpdateConn, cfg sckcfg.Client) (ClientUnix, error) {
	if cfg.Address == "" {
		return nil, ErrInvalidAddress
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cliUnix{upd: upd, cfg: cfg}, nil
}

func (c *cliUnix) RegisterFuncError(f libsck.FuncError) {
	c.fnErr.Store(f)
}

func (c *cliUnix) reportErr(errs ...error) {
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

func (c *cliUnix) safeCall(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}

// Connect dials the configured socket path.
func (c *cliUnix) Connect(ctx context.Context) error {
	if c.connected.Load() {
		return ErrAlreadyConnected
	}

	c.mu.RLock()
	addr := c.cfg.Address
	network := c.cfg.Network
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

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)

	return nil
}

func (c *cliUnix) Read(p []byte) (int, error) {
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

func (c *cliUnix) Write(p []byte) (int, error) {
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

func (c *cliUnix) Close() error {
	c.connected.Store(false)

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *cliUnix) IsConnected() bool {
	return c.connected.Load()
}
