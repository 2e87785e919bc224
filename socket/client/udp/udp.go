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

// Package udp implements a socket.Client over a connected UDP socket: dial
// fixes the remote peer so subsequent Read/Write only exchange datagrams
// with that peer.
package udp

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
	ErrInvalidAddress   = errors.New("invalid address")
	ErrNotConnected     = errors.New("client not connected")
	ErrAlreadyConnected = errors.New("client already connected")
)

// ClientUdp is a UDP socket.Client.
type ClientUdp interface {
	libsck.Client
}

type cliUdp struct {
	mu sync.RWMutex

	upd libsck.UpdateConn
	cfg sckcfg.Client

	conn *net.UDPConn

	connected atomic.Bool
	fnErr     atomic.Value
}

// New creates a UDP client targeting cfg.Address once Connect is called.
func New(upd libsck.UpdateConn, cfg sckcfg.Client) (ClientUdp, error) {
	if cfg.Address == "" {
		return nil, ErrInvalidAddress
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cliUdp{upd: upd, cfg: cfg}, nil
}

func (c *cliUdp) RegisterFuncError(f libsck.FuncError) {
	c.fnErr.Store(f)
}

func (c *cliUdp) reportErr(errs ...error) {
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

func (c *cliUdp) safeCall(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}

// Connect resolves and "dials" cfg.Address, fixing the peer the connected
// UDP socket exchanges datagrams with.
func (c *cliUdp) Connect(ctx context.Context) error {
	if c.connected.Load() {
		return ErrAlreadyConnected
	}

	c.mu.RLock()
	addr := c.cfg.Address
	network := c.cfg.Network
	c.mu.RUnlock()

	raddr, err := net.ResolveUDPAddr(network.Code(), addr)
	if err != nil {
		c.reportErr(err)
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, network.Code(), raddr.String())
	if err != nil {
		c.reportErr(err)
		return err
	}

	udpConn, ok := conn.(*net.UDPConn)
	if !ok {
		_ = conn.Close()
		return ErrInvalidAddress
	}

	if c.upd != nil {
		c.upd(udpConn)
	}

	c.mu.Lock()
	c.conn = udpConn
	c.mu.Unlock()
	c.connected.Store(true)

	return nil
}

func (c *cliUdp) Read(p []byte) (int, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !c.connected.Load() {
		return 0, ErrNotConnected
	}

	n, err := conn.Read(p)
	if err != nil {
		if ferr := libsck.ErrorFilter(err); ferr != nil {
			c.reportErr(ferr)
		}
	}
	return n, err
}

func (c *cliUdp) Write(p []byte) (int, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !c.connected.Load() {
		return 0, ErrNotConnected
	}

	n, err := conn.Write(p)
	if err != nil {
		if ferr := libsck.ErrorFilter(err); ferr != nil {
			c.reportErr(ferr)
		}
	}
	return n, err
}

func (c *cliUdp) Close() error {
	c.connected.Store(false)

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *cliUdp) IsConnected() bool {
	return c.connected.Load()
}
