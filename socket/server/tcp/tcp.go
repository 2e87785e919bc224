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

// Package tcp implements a socket.Server over a TCP listener: one goroutine
// accepts, one goroutine per connection runs the registered HandlerFunc,
// with optional TLS and idle-connection timeout.
package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	libtls "github.com/nabbar/carbon/certificates"
	libsck "github.com/nabbar/carbon/socket"
	sckcfg "github.com/nabbar/carbon/socket/config"
)

// ErrInvalidAddress is returned by New when the configured address is empty.
var ErrInvalidAddress = errors.New("invalid address")

// ErrInvalidTLSConfig is returned by SetTLS when enabling TLS with a config
// that carries no server certificate.
var ErrInvalidTLSConfig = errors.New("invalid tls config")

// ServerTcp is a TCP socket.Server with runtime TLS reconfiguration.
type ServerTcp interface {
	libsck.Server

	// SetTLS enables or disables TLS for connections accepted after this
	// call; it does not affect already-accepted connections.
	SetTLS(enable bool, cfg libtls.TLSConfig) error
}

type srvTcp struct {
	mu sync.RWMutex

	upd libsck.UpdateConn
	hdl libsck.HandlerFunc
	cfg sckcfg.Server

	tlsEnabled bool
	tlsCfg     libtls.TLSConfig

	ln net.Listener

	running atomic.Bool
	gone    atomic.Bool
	conns   atomic.Int64

	fnErr atomic.Value // socket.FuncError
	fnNfo atomic.Value // socket.FuncInfo
	fnSrv atomic.Value // socket.FuncInfoServer

	closeOnce sync.Once
	closeCh   chan struct{}
}

// New creates a TCP server bound to cfg.Address once Listen is called. upd,
// when non-nil, is invoked on every accepted net.Conn before it is wrapped
// for the handler.
func New(upd libsck.UpdateConn, h libsck.HandlerFunc, cfg sckcfg.Server) (ServerTcp, error) {
	if cfg.Address == "" {
		return nil, ErrInvalidAddress
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &srvTcp{
		upd:     upd,
		hdl:     h,
		cfg:     cfg,
		closeCh: make(chan struct{}),
	}
	s.gone.Store(true)

	if cfg.TLS.Enabled {
		t := cfg.TLS.Config
		s.tlsEnabled = true
		s.tlsCfg = (&t).New()
	}

	return s, nil
}

func (s *srvTcp) RegisterFuncError(f libsck.FuncError) {
	s.fnErr.Store(f)
}

func (s *srvTcp) RegisterFuncInfo(f libsck.FuncInfo) {
	s.fnNfo.Store(f)
}

func (s *srvTcp) RegisterFuncInfoServer(f libsck.FuncInfoServer) {
	s.fnSrv.Store(f)
}

func (s *srvTcp) reportErr(errs ...error) {
	v := s.fnErr.Load()
	if v == nil {
		return
	}
	f := v.(libsck.FuncError)

	var out []error
	for _, e := range errs {
		if fe := libsck.ErrorFilter(e); fe != nil {
			out = append(out, fe)
		}
	}
	if len(out) > 0 {
		f(out...)
	}
}

func (s *srvTcp) reportInfo(local, remote net.Addr, st libsck.ConnState) {
	v := s.fnNfo.Load()
	if v == nil {
		return
	}
	v.(libsck.FuncInfo)(local, remote, st)
}

func (s *srvTcp) reportSrv(msg string) {
	v := s.fnSrv.Load()
	if v == nil {
		return
	}
	v.(libsck.FuncInfoServer)(msg)
}

func (s *srvTcp) signalClose() {
	s.closeOnce.Do(func() {
		close(s.closeCh)
	})
}

// SetTLS enables or disables TLS for future connections.
func (s *srvTcp) SetTLS(enable bool, cfg libtls.TLSConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !enable {
		s.tlsEnabled = false
		s.tlsCfg = nil
		return nil
	}

	if cfg == nil || len(cfg.TlsConfig("").Certificates) == 0 {
		return ErrInvalidTLSConfig
	}

	s.tlsEnabled = true
	s.tlsCfg = cfg
	return nil
}

// Listen binds the configured address and accepts connections until ctx is
// canceled or the server is closed/shut down. It returns the error that
// ended the accept loop.
func (s *srvTcp) Listen(ctx context.Context) error {
	ln, err := net.Listen(s.cfg.Network.Code(), s.cfg.Address)
	if err != nil {
		s.reportErr(err)
		return err
	}

	s.mu.RLock()
	useTLS := s.tlsEnabled
	tlsCfg := s.tlsCfg
	s.mu.RUnlock()

	if useTLS {
		ln = tls.NewListener(ln, tlsCfg.TlsConfig(""))
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.running.Store(true)
	s.gone.Store(false)
	s.reportSrv(fmt.Sprintf("listening on %s", s.cfg.Address))

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-s.closeCh:
			_ = ln.Close()
		case <-stop:
		}
	}()

	defer func() {
		close(stop)
		s.running.Store(false)
		s.gone.Store(true)
		_ = ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, aerr := ln.Accept()
		if aerr != nil {
			wg.Wait()
			if ferr := libsck.ErrorFilter(aerr); ferr != nil {
				s.reportErr(ferr)
			}
			return aerr
		}

		if s.upd != nil {
			s.upd(conn)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

func (s *srvTcp) handle(parent context.Context, conn net.Conn) {
	s.conns.Add(1)
	s.reportInfo(conn.LocalAddr(), conn.RemoteAddr(), libsck.ConnectionNew)

	cctx, cancel := context.WithCancel(parent)
	sc := &connCtx{Context: cctx, cancel: cancel, conn: conn}
	sc.connected.Store(true)

	if s.cfg.ConIdleTimeout > 0 {
		sc.idleDur = s.cfg.ConIdleTimeout
		sc.idleTimer = time.AfterFunc(sc.idleDur, func() {
			_ = sc.Close()
		})
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				s.reportErr(fmt.Errorf("handler panic: %v", r))
			}
		}()
		s.reportInfo(conn.LocalAddr(), conn.RemoteAddr(), libsck.ConnectionHandler)
		s.hdl(sc)
	}()

	_ = sc.Close()
	s.conns.Add(-1)
	s.reportInfo(conn.LocalAddr(), conn.RemoteAddr(), libsck.ConnectionClose)
}

// Shutdown stops accepting new connections and waits for open connections
// to reach zero or ctx to be done, whichever comes first.
func (s *srvTcp) Shutdown(ctx context.Context) error {
	s.signalClose()
	s.running.Store(false)

	for s.conns.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return nil
}

// Close stops accepting new connections immediately, without waiting for
// open connections to finish.
func (s *srvTcp) Close() error {
	s.signalClose()
	s.running.Store(false)

	s.mu.RLock()
	ln := s.ln
	s.mu.RUnlock()

	if ln != nil {
		return ln.Close()
	}
	return nil
}

func (s *srvTcp) IsRunning() bool { return s.running.Load() }
func (s *srvTcp) IsGone() bool    { return s.gone.Load() }

func (s *srvTcp) OpenConnections() int64 { return s.conns.Load() }

// Listener reports the network and address actually bound by the last
// successful Listen call.
func (s *srvTcp) Listener() (string, string, error) {
	s.mu.RLock()
	ln := s.ln
	s.mu.RUnlock()

	if ln == nil {
		return "", "", nil
	}
	return ln.Addr().Network(), ln.Addr().String(), nil
}

// connCtx implements libsck.Context over one accepted net.Conn.
type connCtx struct {
	context.Context
	cancel context.CancelFunc
	conn   net.Conn

	connected atomic.Bool

	idleDur   time.Duration
	idleTimer *time.Timer

	closeOnce sync.Once
}

func (c *connCtx) resetIdle() {
	if c.idleTimer != nil {
		c.idleTimer.Reset(c.idleDur)
	}
}

func (c *connCtx) Read(p []byte) (int, error) {
	c.resetIdle()
	n, err := c.conn.Read(p)
	if err != nil {
		_ = c.Close()
	}
	return n, err
}

func (c *connCtx) Write(p []byte) (int, error) {
	c.resetIdle()
	n, err := c.conn.Write(p)
	if err != nil {
		_ = c.Close()
	}
	return n, err
}

func (c *connCtx) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		if c.idleTimer != nil {
			c.idleTimer.Stop()
		}
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

func (c *connCtx) IsConnected() bool { return c.connected.Load() }

func (c *connCtx) LocalHost() string  { return c.conn.LocalAddr().String() }
func (c *connCtx) RemoteHost() string { return c.conn.RemoteAddr().String() }
