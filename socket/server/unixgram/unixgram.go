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

// Package unixgram implements a socket.Server over a Unix-domain datagram
// socket: one goroutine reads datagrams off the socket file, one goroutine
// per datagram runs the registered HandlerFunc against a read-only Context
// bound to that single payload. Like UDP, a datagram socket carries no
// connection state, so OpenConnections always reports zero and SetTLS is a
// no-op. The socket file's mode and group ownership are applied right after
// binding and the file is removed on Close/Shutdown, mirroring the stream
// unix package.
package unixgram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"

	libtls "github.com/nabbar/carbon/certificates"
	libprm "github.com/nabbar/carbon/file/perm"
	libptc "github.com/nabbar/carbon/network/protocol"
	libsck "github.com/nabbar/carbon/socket"
	sckcfg "github.com/nabbar/carbon/socket/config"
)

// MaxGID mirrors socket/config's group id ceiling for callers that only
// import this package.
const MaxGID = sckcfg.MaxGID

// maxDatagramSize is the largest Unix datagram a single ReadFromUnix call
// will accept.
const maxDatagramSize = 65507

var (
	ErrInvalidHandler = errors.New("invalid handler")
	ErrInvalidNetwork = errors.New("invalid network, expected unixgram")
	ErrInvalidGroup   = errors.New("invalid unix group")
	ErrAlreadyRunning = errors.New("server already running")
)

// ServerUnixGram is a Unix-domain datagram socket.Server. SetTLS is a no-op
// accepted for interface parity with socket/server/tcp: datagrams carry no
// TLS layer.
type ServerUnixGram interface {
	libsck.Server

	// RegisterSocket changes the socket path/permissions/group used by
	// the next Listen call.
	RegisterSocket(path string, perm libprm.Perm, gid int32) error

	SetTLS(enable bool, cfg libtls.TLSConfig) error
}

type srvUnixGram struct {
	mu sync.RWMutex

	upd libsck.UpdateConn
	hdl libsck.HandlerFunc
	cfg sckcfg.Server

	conn *net.UnixConn

	running atomic.Bool
	gone    atomic.Bool

	fnErr atomic.Value // socket.FuncError
	fnNfo atomic.Value // socket.FuncInfo
	fnSrv atomic.Value // socket.FuncInfoServer

	closeOnce sync.Once
	closeCh   chan struct{}
}

// New creates a Unix datagram server bound to cfg.Address once Listen is
// called. upd, when non-nil, is invoked once with the listening
// *net.UnixConn right after binding.
func New(upd libsck.UpdateConn, h libsck.HandlerFunc, cfg sckcfg.Server) (ServerUnixGram, error) {
	if h == nil {
		return nil, ErrInvalidHandler
	}
	if cfg.Network != libptc.NetworkUnixGram {
		return nil, ErrInvalidNetwork
	}
	if cfg.GroupPerm > MaxGID {
		return nil, ErrInvalidGroup
	}

	s := &srvUnixGram{
		upd:     upd,
		hdl:     h,
		cfg:     cfg,
		closeCh: make(chan struct{}),
	}
	s.gone.Store(true)

	return s, nil
}

func (s *srvUnixGram) RegisterFuncError(f libsck.FuncError) {
	s.fnErr.Store(f)
}

func (s *srvUnixGram) RegisterFuncInfo(f libsck.FuncInfo) {
	s.fnNfo.Store(f)
}

func (s *srvUnixGram) RegisterFuncInfoServer(f libsck.FuncInfoServer) {
	s.fnSrv.Store(f)
}

func (s *srvUnixGram) reportErr(errs ...error) {
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

func (s *srvUnixGram) reportInfo(local, remote net.Addr, st libsck.ConnState) {
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

func (s *srvUnixGram) reportSrv(msg string) {
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
func (s *srvUnixGram) safeCall(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}

func (s *srvUnixGram) signalClose() {
	s.closeOnce.Do(func() {
		close(s.closeCh)
	})
}

// RegisterSocket changes the path/permissions/group used by the next Listen
// call.
func (s *srvUnixGram) RegisterSocket(path string, perm libprm.Perm, gid int32) error {
	if gid > MaxGID {
		return ErrInvalidGroup
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg.Address = path
	s.cfg.PermFile = perm
	s.cfg.GroupPerm = gid
	return nil
}

// SetTLS is a no-op: Unix datagram sockets carry no TLS layer in this
// package. It always returns nil.
func (s *srvUnixGram) SetTLS(_ bool, _ libtls.TLSConfig) error {
	return nil
}

// Listen binds the configured socket path and reads datagrams until ctx is
// canceled or the server is closed/shut down. Each datagram is handed to a
// new goroutine running the registered HandlerFunc.
func (s *srvUnixGram) Listen(ctx context.Context) error {
	if s.running.Load() {
		return ErrAlreadyRunning
	}

	s.mu.RLock()
	addr := s.cfg.Address
	perm := s.cfg.PermFile
	gid := s.cfg.GroupPerm
	s.mu.RUnlock()

	_ = os.Remove(addr)

	uAddr, err := net.ResolveUnixAddr(libptc.NetworkUnixGram.Code(), addr)
	if err != nil {
		s.reportErr(err)
		return err
	}

	conn, err := net.ListenUnixgram(libptc.NetworkUnixGram.Code(), uAddr)
	if err != nil {
		s.reportErr(err)
		return err
	}

	if e := os.Chmod(addr, os.FileMode(perm)); e != nil {
		s.reportErr(e)
	}
	if gid >= 0 {
		if e := os.Chown(addr, -1, int(gid)); e != nil {
			s.reportErr(e)
		}
	}

	if s.upd != nil {
		s.upd(conn)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.running.Store(true)
	s.gone.Store(false)
	s.reportSrv(fmt.Sprintf("starting listening socket '%s %s'", libptc.NetworkUnixGram.Code(), addr))

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
		_ = os.Remove(addr)
	}()

	buf := make([]byte, maxDatagramSize)
	var wg sync.WaitGroup
	for {
		n, remote, rerr := conn.ReadFromUnix(buf)
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
		go func(data []byte, from *net.UnixAddr) {
			defer wg.Done()
			s.handle(ctx, conn, data, from)
		}(payload, remote)
	}
}

func (s *srvUnixGram) handle(parent context.Context, conn *net.UnixConn, payload []byte, remote *net.UnixAddr) {
	local := conn.LocalAddr()
	var ra net.Addr
	if remote != nil {
		ra = remote
	}
	s.reportInfo(local, ra, libsck.ConnectionNew)

	cctx, cancel := context.WithCancel(parent)
	sc := &connCtx{Context: cctx, cancel: cancel, local: local, remote: ra, data: payload}
	sc.connected.Store(true)

	func() {
		defer func() {
			if r := recover(); r != nil {
				s.reportErr(fmt.Errorf("handler panic: %v", r))
			}
		}()
		s.reportInfo(local, ra, libsck.ConnectionHandler)
		s.hdl(sc)
	}()

	_ = sc.Close()
	s.reportInfo(local, ra, libsck.ConnectionClose)
}

// Shutdown stops reading datagrams. Unix datagram sockets carry no
// connection state to drain, so Shutdown returns as soon as the socket is
// closed.
func (s *srvUnixGram) Shutdown(_ context.Context) error {
	s.signalClose()
	s.running.Store(false)
	return nil
}

// Close stops reading datagrams immediately and removes the socket file.
func (s *srvUnixGram) Close() error {
	s.signalClose()
	s.running.Store(false)

	s.mu.RLock()
	conn := s.conn
	addr := s.cfg.Address
	s.mu.RUnlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	_ = os.Remove(addr)
	return err
}

func (s *srvUnixGram) IsRunning() bool { return s.running.Load() }
func (s *srvUnixGram) IsGone() bool    { return s.gone.Load() }

// OpenConnections always returns zero: a Unix datagram socket is
// connectionless, so there is no accepted-connection count to report.
func (s *srvUnixGram) OpenConnections() int64 { return 0 }

// Listener reports the network and address actually bound by the last
// successful Listen call.
func (s *srvUnixGram) Listener() (string, string, error) {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	if conn == nil {
		return "", "", nil
	}
	return conn.LocalAddr().Network(), conn.LocalAddr().String(), nil
}

// connCtx implements libsck.Context over one received datagram. Write is
// unsupported: a socket.Server unixgram context has no per-peer connection
// to write a reply on.
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
