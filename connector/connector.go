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

// Package connector is a symmetric VEP peer: it both dials and listens, holds
// one long-lived net.Conn per remote address, and moves containers over it
// through a bounded pool of send workers. Every connection also runs one
// reader goroutine that turns inbound containers into loop.Event values, so
// the rest of the runtime never touches net.Conn directly.
package connector

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nabbar/carbon/barrier"
	"github.com/nabbar/carbon/loop"
	libsem "github.com/nabbar/carbon/semaphore/sem"
	"github.com/nabbar/carbon/session"
	"github.com/nabbar/carbon/vep"
	"github.com/nabbar/carbon/vep/sysresp"
)

// DefaultWorkers is the send worker concurrency used when Config.Workers is
// left at zero.
const DefaultWorkers = 16

var (
	// ErrClosed is returned by every operation attempted after Close.
	ErrClosed = errors.New("connector: closed")

	// ErrNotListening is returned by StopListen when no listener is active.
	ErrNotListening = errors.New("connector: not listening")

	// ErrAlreadyListening is returned by StartListen when a listener is
	// already active.
	ErrAlreadyListening = errors.New("connector: already listening")
)

// Config configures a Connector. The zero value is usable: it dials/listens
// over "tcp", runs DefaultWorkers send workers, applies no I/O deadlines, and
// uses vep.DefaultCodec.
type Config struct {
	// Network is passed straight to net.Dial/net.Listen ("tcp", "tcp4",
	// "unix", ...). Empty means "tcp".
	Network string

	// Workers bounds concurrent in-flight sends. Zero means DefaultWorkers;
	// negative means unbounded.
	Workers int64

	// SendTimeout/RecvTimeout bound a single StreamSend/StreamRecv call.
	// Zero means no deadline.
	SendTimeout time.Duration
	RecvTimeout time.Duration

	// Codec overrides the wire codec. Nil means vep.DefaultCodec.
	Codec vep.Codec

	// Sessions overrides the registry used to mint IOSync session ids. Nil
	// means a private Registry owned by this Connector.
	Sessions *session.Registry

	// Loop overrides the event loop used to dispatch NETCONN_RECV/
	// NETCONN_SENT events and to host IOSync's barrier. Nil means a private
	// Loop is created and run for the lifetime of this Connector.
	Loop *loop.Loop

	// Log overrides the logger. Nil means logrus.StandardLogger().
	Log logrus.FieldLogger

	// SysResp, when set, answers VEP_CONTAINER_SYSTEM requests (VERSION
	// today) on every connection. A system container handled this way is
	// not dispatched to the connection's regular receiver or to the loop,
	// so an embedder gets version probing for free without handling
	// ContainerSystem itself.
	SysResp *sysresp.Responder
}

// Connector is a symmetric peer over a connection table keyed by remote
// address, shared between outbound IO calls and inbound accepted sockets.
type Connector struct {
	ctx context.Context
	cnl context.CancelFunc
	log logrus.FieldLogger

	network string
	sendTO time.Duration
	recvTO time.Duration
	codec  vep.Codec
	sess   *session.Registry
	lp     *loop.Loop
	sysr   *sysresp.Responder

	sem libsem.Semaphore

	mu    sync.RWMutex
	conns map[string]*peerConn

	lnMu sync.Mutex
	ln   net.Listener

	closed atomic.Bool
}

// Received is the EvNetConnRecv payload: the decoded container plus the
// remote address the connector filed this connection under, so a receiver
// can reply with Send/SendSync via Conn(Addr) without tracking net.Conn
// itself.
type Received struct {
	Container *vep.Container
	Addr      string
}

// peerConn is one live connection, shared by every IO/Send call addressed to
// its remote address and by its own reader goroutine.
type peerConn struct {
	conn net.Conn
	addr string

	mu   sync.Mutex
	recv loop.Receiver
	sess session.ID

	closeOnce sync.Once
}

// New builds a Connector bound to ctx. Close cancels ctx's child and tears
// down every connection and, if StartListen was called, the listener.
func New(ctx context.Context, cfg Config) *Connector {
	cctx, cnl := context.WithCancel(ctx)

	workers := cfg.Workers
	if workers == 0 {
		workers = DefaultWorkers
	}

	codec := cfg.Codec
	if codec == nil {
		codec = vep.DefaultCodec
	}

	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	sess := cfg.Sessions
	if sess == nil {
		sess = &session.Registry{}
	}

	lp := cfg.Loop
	ownLoop := lp == nil
	if ownLoop {
		lp = loop.New("connector", log)
	}

	network := cfg.Network
	if network == "" {
		network = "tcp"
	}

	cn := &Connector{
		ctx:     cctx,
		cnl:     cnl,
		log:     log.WithField("component", "connector"),
		network: network,
		sendTO:  cfg.SendTimeout,
		recvTO:  cfg.RecvTimeout,
		codec:   codec,
		sess:    sess,
		lp:      lp,
		sysr:    cfg.SysResp,
		sem:     libsem.New(cctx, workers),
		conns:   make(map[string]*peerConn),
	}

	if ownLoop {
		go lp.Run(cctx)
	}

	return cn
}

// Loop returns the event loop this Connector dispatches NETCONN_RECV/
// NETCONN_SENT events on, for callers that want to Register their own
// loop.Receiver alongside the one passed to IO.
func (cn *Connector) Loop() *loop.Loop { return cn.lp }

// Conn returns the live net.Conn currently associated with addr, if any.
func (cn *Connector) Conn(addr string) (net.Conn, bool) {
	cn.mu.RLock()
	defer cn.mu.RUnlock()
	pc, ok := cn.conns[addr]
	if !ok {
		return nil, false
	}
	return pc.conn, true
}

// ConnCount returns the number of connections currently tracked, dialed
// or accepted. Intended for gauge-style metrics scraping.
func (cn *Connector) ConnCount() int {
	cn.mu.RLock()
	defer cn.mu.RUnlock()
	return len(cn.conns)
}

// IO either reuses the existing connection to remoteAddr or dials a new one,
// enqueues container for send on the connector's worker pool, and arranges
// for every container subsequently read off that connection to be dispatched
// as an EvNetConnRecv event (Session sess) to receiver and to cn.Loop().
func (cn *Connector) IO(container *vep.Container, remoteAddr string, receiver loop.Receiver, sess session.ID) error {
	if cn.closed.Load() {
		return ErrClosed
	}

	pc, err := cn.dialOrReuse(remoteAddr)
	if err != nil {
		return err
	}

	pc.mu.Lock()
	pc.sess = sess
	pc.recv = receiver
	pc.mu.Unlock()

	cn.dispatchSend(pc, container, sess, receiver)
	return nil
}

// Send queues container for send on conn through the worker pool without
// waiting for completion. Failures are logged, not returned, since no
// receiver is threaded through to report them to.
func (cn *Connector) Send(container *vep.Container, conn net.Conn) error {
	if cn.closed.Load() {
		return ErrClosed
	}

	go func() {
		if err := cn.sem.NewWorker(); err != nil {
			cn.log.WithError(err).Debug("connector: send worker slot unavailable")
			return
		}
		defer cn.sem.DeferWorker()

		if err := cn.codec.StreamSend(conn, container, cn.deadline(cn.sendTO)); err != nil {
			cn.log.WithError(err).Warn("connector: async send failed")
		}
	}()
	return nil
}

// IOSync behaves like IO, except it sends container synchronously and then
// blocks on an internal barrier for the first container the peer sends back
// on that connection, up to ctx's deadline.
func (cn *Connector) IOSync(ctx context.Context, container *vep.Container, remoteAddr string) (*vep.Container, error) {
	if cn.closed.Load() {
		return nil, ErrClosed
	}

	pc, err := cn.dialOrReuse(remoteAddr)
	if err != nil {
		return nil, err
	}

	sess := cn.sess.Next()

	b := barrier.New()
	if err = b.Attach(cn.lp, sess); err != nil {
		return nil, err
	}
	defer b.Detach()

	pc.mu.Lock()
	pc.sess = sess
	pc.mu.Unlock()

	if err = cn.codec.StreamSend(pc.conn, container, cn.deadline(cn.sendTO)); err != nil {
		cn.closeConn(pc)
		return nil, err
	}

	e, err := b.Wait(ctx)
	if err != nil {
		return nil, err
	}

	recvd, _ := e.Payload.(Received)
	return recvd.Container, nil
}

// SendSync sends container on conn and blocks until the write completes or
// ctx/the configured send deadline elapses, whichever is sooner.
func (cn *Connector) SendSync(ctx context.Context, container *vep.Container, conn net.Conn) error {
	if cn.closed.Load() {
		return ErrClosed
	}

	deadline := cn.deadline(cn.sendTO)
	if dl, ok := ctx.Deadline(); ok && (deadline.IsZero() || dl.Before(deadline)) {
		deadline = dl
	}
	return cn.codec.StreamSend(conn, container, deadline)
}

// StartListen opens a listener on address and accepts connections until
// StopListen or Close is called. Each accepted connection is added to the
// connection table, keyed by its remote address, and given its own reader
// goroutine exactly like a dialed connection.
func (cn *Connector) StartListen(address string) error {
	if cn.closed.Load() {
		return ErrClosed
	}

	cn.lnMu.Lock()
	defer cn.lnMu.Unlock()
	if cn.ln != nil {
		return ErrAlreadyListening
	}

	ln, err := net.Listen(cn.network, address)
	if err != nil {
		return err
	}
	cn.ln = ln

	go cn.acceptLoop(ln)
	return nil
}

// StopListen closes the active listener, if any. Established connections are
// left running.
func (cn *Connector) StopListen() error {
	cn.lnMu.Lock()
	defer cn.lnMu.Unlock()
	if cn.ln == nil {
		return ErrNotListening
	}
	err := cn.ln.Close()
	cn.ln = nil
	return err
}

func (cn *Connector) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}

		addr := conn.RemoteAddr().String()
		pc := &peerConn{conn: conn, addr: addr}

		cn.mu.Lock()
		cn.conns[addr] = pc
		cn.mu.Unlock()

		cn.startReader(pc)
		cn.lp.PostEvent(loop.Event{Type: loop.EvNetServerConnected, Payload: addr, Broadcast: true})
	}
}

// Close stops listening, tears down every connection, and cancels this
// Connector's context. Safe to call more than once.
func (cn *Connector) Close() error {
	if !cn.closed.CompareAndSwap(false, true) {
		return nil
	}

	if err := cn.StopListen(); err != nil && !errors.Is(err, ErrNotListening) {
		cn.log.WithError(err).Warn("connector: error closing listener")
	}

	cn.mu.Lock()
	pcs := make([]*peerConn, 0, len(cn.conns))
	for _, pc := range cn.conns {
		pcs = append(pcs, pc)
	}
	cn.mu.Unlock()

	for _, pc := range pcs {
		cn.closeConn(pc)
	}

	cn.sem.DeferMain()
	cn.cnl()
	return nil
}

func (cn *Connector) dialOrReuse(addr string) (*peerConn, error) {
	cn.mu.RLock()
	pc, ok := cn.conns[addr]
	cn.mu.RUnlock()
	if ok {
		return pc, nil
	}

	cn.mu.Lock()
	defer cn.mu.Unlock()

	if pc, ok = cn.conns[addr]; ok {
		return pc, nil
	}

	if cn.closed.Load() {
		return nil, ErrClosed
	}

	conn, err := (&net.Dialer{}).DialContext(cn.ctx, cn.network, addr)
	if err != nil {
		return nil, err
	}

	pc = &peerConn{conn: conn, addr: addr}
	cn.conns[addr] = pc
	cn.startReader(pc)
	return pc, nil
}

func (cn *Connector) closeConn(pc *peerConn) {
	pc.closeOnce.Do(func() {
		_ = pc.conn.Close()

		cn.mu.Lock()
		if cur, ok := cn.conns[pc.addr]; ok && cur == pc {
			delete(cn.conns, pc.addr)
		}
		cn.mu.Unlock()

		cn.lp.PostEvent(loop.Event{Type: loop.EvNetServerDisconnected, Payload: pc.addr, Broadcast: true})
	})
}

// dispatchSend runs one StreamSend on the worker pool and reports the
// outcome as an EvNetConnSent event (Payload nil on success, the error
// otherwise) to receiver directly and to cn.Loop() for bookkeeping.
func (cn *Connector) dispatchSend(pc *peerConn, c *vep.Container, sess session.ID, receiver loop.Receiver) {
	go func() {
		if err := cn.sem.NewWorker(); err != nil {
			cn.postEvent(loop.Event{Type: loop.EvNetConnSent, Session: sess, Payload: err}, receiver)
			return
		}
		defer cn.sem.DeferWorker()

		err := cn.codec.StreamSend(pc.conn, c, cn.deadline(cn.sendTO))
		cn.postEvent(loop.Event{Type: loop.EvNetConnSent, Session: sess, Payload: err}, receiver)

		if err != nil {
			cn.closeConn(pc)
		}
	}()
}

// startReader runs StreamRecv in a loop for pc's lifetime, dispatching each
// decoded container as an EvNetConnRecv event under the connection's
// currently assigned session/receiver. Any read error tears the connection
// down and posts EvNetServerDisconnected.
func (cn *Connector) startReader(pc *peerConn) {
	go func() {
		for {
			c, err := cn.codec.StreamRecv(pc.conn, cn.deadline(cn.recvTO))
			if err != nil {
				cn.closeConn(pc)
				return
			}

			if cn.sysr != nil && c.Type() == vep.ContainerSystem {
				if serr := cn.sysr.Handle(pc.conn, c, cn.deadline(cn.sendTO)); serr != nil {
					cn.log.WithError(serr).Warn("connector: sysresp handling failed")
					cn.closeConn(pc)
					return
				}
				continue
			}

			pc.mu.Lock()
			sess := pc.sess
			recv := pc.recv
			pc.mu.Unlock()

			cn.postEvent(loop.Event{Type: loop.EvNetConnRecv, Session: sess, Payload: Received{Container: c, Addr: pc.addr}}, recv)
		}
	}()
}

func (cn *Connector) postEvent(e loop.Event, receiver loop.Receiver) {
	cn.lp.PostEvent(e)
	if receiver != nil {
		receiver.HandleEvent(e)
	}
}

func (cn *Connector) deadline(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}
