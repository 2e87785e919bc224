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

// Package unix implements a socket.Server over a Unix-domain stream
// listener, with file mode/group ownership applied to the socket file
// after creation and removed on Close/Shutdown.
package unix

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	libtls "github.com/nabbar/carbon/certificates"
	libprm "github.com/nabbar/carbon/file/perm"
	libptc "github.com/nabbar/carbon/network/protocol"
	libsck "github.com/nabbar/carbon/socket"
	sckcfg "github.com/nabbar/carbon/socket/config"
)

// MaxGID mirrors socket/config's group id ceiling for callers that only
// import this package.
const MaxGID = sckcfg.MaxGID

var (
	ErrInvalidHandler = errors.New("invalid handler")
	ErrInvalidNetwork = errors.New("invalid network, expected unix")
	ErrInvalidGroup   = errors.New("invalid unix group")
)

// ServerUnix is a Unix-domain socket.Server. SetTLS is a no-op accepted
// for interface parity with socket/server/tcp: Unix sockets carry no TLS
// layer.
type ServerUnix interface {
	libsck.Server

	// RegisterSocket changes the socket path/permissions/group used by
	// the next Listen call.
	RegisterSocket(path string, perm libprm.Perm, gid int32) error

	SetTLS(enable bool, cfg libtls.TLSConfig) error
}

type srvUnix struct {
	mu sync.RWMutex

	upd libsck.UpdateConn
	hdl libsck.HandlerFunc
	cfg sckcfg.Server

	ln net.Listener

	running atomic.Bool
	gone    atomic.Bool
	conns   atomic.Int64

	fnErr atomic.Value
	fnNfo atomic.Value
	fnSrv atomic.Value

	closeOnce sync.Once
	closeCh   chan struct{}
}

// New creates a Unix socket server. cfg.Address may be empty: binding is
// only attempted, and may fail, when Listen is called.
func New(upd libsck.UpdateConn, h libsck.HandlerFunc, cfg sckcfg.Server) (ServerUnix, error) {
	if h == nil {
		return nil, ErrInvalidHandler
	}
	if cfg.Network != libptc.NetworkUnix {
		return nil, ErrInvalidNetwork
	}
	if cfg.GroupPerm > MaxGID {
		return nil, ErrInvalidGroup
	}

	s := &srvUnix{
		upd:     upd,
		hdl:     h,
		cfg:     cfg,
		closeCh: make(chan struct{}),
	}
	s.gone.Store(true)

	return s, nil
}

func (s *srvUnix) RegisterFuncError(f libsck.FuncError) {
	s.fnErr.Store(f)
}

func (s *srvUnix) RegisterFuncInfo(f libsck.FuncInfo) {
	s.fnNfo.Store(f)
}

func (s *srvUnix) RegisterFuncInfoServer(f libsck.FuncInfoServer) {
	s.fnSrv.Store(f)
}

func (s *srvUnix) reportErr(errs ...error) {
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

func (s *srvUnix) reportInfo(local, remote net.Addr, st libsck.ConnState) {
	v := s.fnNfo.Load()
	if v == nil {
		return
	}
	v.(libsck.FuncInfo)(local, remote, st)
}

func (s *srvUnix) reportSrv(msg string) {
	v := s.fnSrv.Load()
	if v == nil {
		return
	}
	v.(libsck.FuncInfoServer)(msg)
}

func (s *srvUnix) signalClose() {
	s.closeOnce.Do(func() {
		close(s.closeCh)
	})
}

// RegisterSocket changes the path/permissions/group used by the next
// Listen call.
func (s *srvUnix) RegisterSocket(path string, perm libprm.Perm, gid int32) error {
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

// SetTLS is a no-op: Unix-domain sockets carry no TLS layer in this
// package. It always returns nil.
func (s *srvUnix) SetTLS(_ bool, _ libtls.TLSConfig) error {
	return nil
}

// Listen binds the configured socket path and accepts connections until
// ctx is canceled or the server is closed/shut down.
func (s *srvUnix) Listen(ctx context.Context) error {
	s.mu.RLock()
	addr := s.cfg.Address
	perm := s.cfg.PermFile
	gid := s.cfg.GroupPerm
	s.mu.RUnlock()

	_ = os.Remove(addr)

	ln, err := net.Listen(libptc.NetworkUnix.Code(), addr)
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

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.running.Store(true)
	s.gone.Store(false)
	s.reportSrv(fmt.Sprintf("listening on %s", addr))

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
		_ = os.Remove(addr)
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

func (s *srvUnix) handle(parent context.Context, conn net.Conn) {
	s.conns.Add(1)
	s.reportInfo(conn.LocalAddr(), conn.RemoteAddr(), libsck.ConnectionNew)

	s.mu.RLock()
	idle := s.cfg.ConIdleTimeout
	s.mu.RUnlock()

	cctx, cancel := context.WithCancel(parent)
	sc := &connCtx{Context: cctx, cancel: cancel, conn: conn}
	sc.connected.Store(true)

	if idle > 0 {
		sc.idleDur = idle
		sc.idleTimer = time.AfterFunc(idle, func() {
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
// to reach zero or ctx to be done.
func (s *srvUnix) Shutdown(ctx context.Context) error {
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

// Close stops accepting new connections immediately.
func (s *srvUnix) Close() error {
	s.signalClose()
	s.running.Store(false)

	s.mu.RLock()
	ln := s.ln
	addr := s.cfg.Address
	s.mu.RUnlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	_ = os.Remove(addr)
	return err
}

func (s *srvUnix) IsRunning() bool        { return s.running.Load() }
func (s *srvUnix) IsGone() bool           { return s.gone.Load() }
func (s *srvUnix) OpenConnections() int64 { return s.conns.Load() }

// Listener reports the network and address actually bound by the last
// successful Listen call.
func (s *srvUnix) Listener() (string, string, error) {
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
