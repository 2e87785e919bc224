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

// Package udp implements a socket.Server over a UDP socket: one goroutine
// reads datagrams, one goroutine per datagram runs the registered
// HandlerFunc with a read-only Context bound to that single payload. UDP
// carries no connection state, so OpenConnections always reports zero and
// SetTLS is a no-op.
package udp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	libtls "github.com/nabbar/carbon/certificates"
	libptc "github.com/nabbar/carbon/network/protocol"
	libsck "github.com/nabbar/carbon/socket"
	sckcfg "github.com/nabbar/carbon/socket/config"
)

// maxDatagramSize is the largest UDP payload a single ReadFromUDP call
// will accept.
const maxDatagramSize = 65507

var (
	ErrInvalidAddress = errors.New("invalid listen address")
	ErrInvalidHandler = errors.New("invalid handler")
	ErrAlreadyRunning = errors.New("server already running")
)

// ServerUdp is a UDP socket.Server. SetTLS is a no-op accepted for
// interface parity with socket/server/tcp: UDP datagrams carry no TLS
// layer.
type ServerUdp interface {
	libsck.Server

	// RegisterServer changes the address bound by the next Listen call.
	RegisterServer(address string) error

	SetTLS(enable bool, cfg libtls.TLSConfig) error
}

type srvUdp struct {
	mu sync.RWMutex

	upd libsck.UpdateConn
	hdl libsck.HandlerFunc
	cfg sckcfg.Server

	conn *net.UDPConn

	running atomic.Bool
	gone    atomic.Bool

	fnErr atomic.Value // socket.FuncError
	fnNfo atomic.Value // socket.FuncInfo
	fnSrv atomic.Value // socket.FuncInfoServer

	closeOnce sync.Once
	closeCh   chan struct{}
}

// New creates a UDP server bound to cfg.Address once Listen is called. upd,
// when non-nil, is invoked once with the listening *net.UDPConn right after
// binding.
func New(upd libsck.UpdateConn, h libsck.HandlerFunc, cfg sckcfg.Server) (ServerUdp, error) {
	if h == nil {
		return nil, ErrInvalidHandler
	}
	if cfg.Address == "" {
		return nil, ErrInvalidAddress
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &srvUdp{
		upd:     upd,
		hdl:     h,
		cfg:     cfg,
		closeCh: make(chan struct{}),
	}
	s.gone.Store(true)

	return s, nil
}

func (s *srvUdp) RegisterFuncError(f libsck.FuncError) {
	s.fnErr.Store(f)
}

func (s *srvUdp) RegisterFuncInfo(f libsck.FuncInfo) {
	s.fnNfo.Store(f)
}

func (s *srvUdp) RegisterFuncInfoServer(f libsck.FuncInfoServer) {
	s.fnSrv.Store(f)
}

func (s *srvUdp) reportErr(errs ...error) {
	v := s.fnErr.Load()
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
		s.safeCall(func() { f(out...) })
	}
}

func (s *srvUdp) reportInfo(local, remote net.Addr, st libsck.ConnState) {
	v := s.fnNfo.Load()
	if v == nil {
		return
	}
	f, ok := v.(libsck.FuncInfo)
	if !ok || f == nil {
		return
	}
	s.safeCall(func() { f(local, remote, st) })
}

func (s *srvUdp) reportSrv(msg string) {
	v := s.fnSrv.Load()
	if v == nil {
		return
	}
	f, ok := v.(libsck.FuncInfoServer)
	if !ok || f == nil {
		return
	}
	s.safeCall(func() { f(msg) })
}

// safeCall recovers a panicking callback so a misbehaving registrant cannot
// bring the read loop down.
func (s *srvUdp) safeCall(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}

func (s *srvUdp) signalClose() {
	s.closeOnce.Do(func() {
		close(s.closeCh)
	})
}

// RegisterServer changes the address used by the next Listen call.
func (s *srvUdp) RegisterServer(address string) error {
	if address == "" {
		return ErrInvalidAddress
	}
	if _, err := net.ResolveUDPAddr(libptc.NetworkUDP.Code(), address); err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg.Address = address
	s.mu.Unlock()
	return nil
}

// SetTLS is a no-op: UDP datagrams carry no TLS layer in this package. It
// always returns nil.
func (s *srvUdp) SetTLS(_ bool, _ libtls.TLSConfig) error {
	return nil
}

// Listen binds the configured address and reads datagrams until ctx is
// canceled or the server is closed/shut down. Each datagram is handed to a
// new goroutine running the registered HandlerFunc.
func (s *srvUdp) Listen(ctx context.Context) error {
	if s.running.Load() {
		return ErrAlreadyRunning
	}

	s.mu.RLock()
	addr := s.cfg.Address
	s.mu.RUnlock()

	udpAddr, err := net.ResolveUDPAddr(libptc.NetworkUDP.Code(), addr)
	if err != nil {
		s.reportErr(err)
		return err
	}

	conn, err := net.ListenUDP(libptc.NetworkUDP.Code(), udpAddr)
	if err != nil {
		s.reportErr(err)
		return err
	}

	if s.upd != nil {
		s.upd(conn)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.running.Store(true)
	s.gone.Store(false)
	s.reportSrv(fmt.Sprintf("starting listening socket '%s %s'", libptc.NetworkUDP.Code(), conn.LocalAddr().String()))

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-s.closeCh:
			_ = conn.Close()
		case <-stop:
		}
	}()

	defer func() {
		close(stop)
		s.running.Store(false)
		s.gone.Store(true)
		_ = conn.Close()
	}()

	buf := make([]byte, maxDatagramSize)
	var wg sync.WaitGroup
	for {
		n, remote, rerr := conn.ReadFromUDP(buf)
		if rerr != nil {
			wg.Wait()
			if ferr := libsck.ErrorFilter(rerr); ferr != nil {
				s.reportErr(ferr)
			}
			return rerr
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		wg.Add(1)
		go func(data []byte, from *net.UDPAddr) {
			defer wg.Done()
			s.handle(ctx, conn, data, from)
		}(payload, remote)
	}
}

func (s *srvUdp) handle(parent context.Context, conn *net.UDPConn, payload []byte, remote *net.UDPAddr) {
	local := conn.LocalAddr()
	s.reportInfo(local, remote, libsck.ConnectionNew)

	cctx, cancel := context.WithCancel(parent)
	sc := &connCtx{Context: cctx, cancel: cancel, local: local, remote: remote, data: payload}
	sc.connected.Store(true)

	func() {
		defer func() {
			if r := recover(); r != nil {
				s.reportErr(fmt.Errorf("handler panic: %v", r))
			}
		}()
		s.reportInfo(local, remote, libsck.ConnectionHandler)
		s.hdl(sc)
	}()

	_ = sc.Close()
	s.reportInfo(local, remote, libsck.ConnectionClose)
}

// Shutdown stops reading datagrams. UDP carries no connection state to
// drain, so Shutdown returns as soon as the socket is closed.
func (s *srvUdp) Shutdown(_ context.Context) error {
	s.signalClose()
	s.running.Store(false)
	return nil
}

// Close stops reading datagrams immediately.
func (s *srvUdp) Close() error {
	s.signalClose()
	s.running.Store(false)

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *srvUdp) IsRunning() bool { return s.running.Load() }
func (s *srvUdp) IsGone() bool    { return s.gone.Load() }

// OpenConnections always returns zero: UDP is connectionless, so there is
// no accepted-connection count to report.
func (s *srvUdp) OpenConnections() int64 { return 0 }

// Listener reports the network and address actually bound by the last
// successful Listen call.
func (s *srvUdp) Listener() (string, string, error) {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	if conn == nil {
		return "", "", nil
	}
	return conn.LocalAddr().Network(), conn.LocalAddr().String(), nil
}

// connCtx implements libsck.Context over one received datagram. Write is
// unsupported: a socket.Server UDP context has no per-peer connection to
// write a reply on.
type connCtx struct {
	context.Context
	cancel context.CancelFunc

	local  net.Addr
	remote net.Addr
	data   []byte

	connected atomic.Bool
	consumed  atomic.Bool

	closeOnce sync.Once
}

func (c *connCtx) Read(p []byte) (int, error) {
	if !c.connected.Load() {
		return 0, io.ErrClosedPipe
	}
	if c.consumed.Swap(true) {
		return 0, io.EOF
	}
	return copy(p, c.data), nil
}

func (c *connCtx) Write(_ []byte) (int, error) {
	return 0, io.ErrClosedPipe
}

func (c *connCtx) Close() error {
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		c.cancel()
	})
	return nil
}

func (c *connCtx) IsConnected() bool { return c.connected.Load() }

func (c *connCtx) LocalHost() string {
	if c.local == nil {
		return ""
	}
	return c.local.Network() + " " + c.local.String()
}

func (c *connCtx) RemoteHost() string {
	if c.remote == nil {
		return ""
	}
	return c.remote.String()
}
