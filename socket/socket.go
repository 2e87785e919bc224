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

// Package socket defines the shared contract between the socket/server and
// socket/client implementations: the per-connection Context handed to a
// HandlerFunc, the Server/Client lifecycle interfaces, and the connection
// state vocabulary used for logging and info callbacks.
package socket

import (
	"context"
	"net"
)

// DefaultBufferSize is the read buffer size used by server/client
// implementations that do not accept a caller-supplied buffer.
const DefaultBufferSize = 32 * 1024

// EOL is the line terminator used by line-oriented socket helpers.
const EOL = byte('\n')

// Context is handed to a HandlerFunc for the lifetime of one accepted
// connection. It embeds context.Context so a handler can select on Done()
// to notice shutdown or idle-timeout cancellation, and io.ReadWriter so a
// handler can treat it like the underlying net.Conn.
type Context interface {
	context.Context

	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error

	IsConnected() bool
	LocalHost() string
	RemoteHost() string
}

// HandlerFunc processes one accepted connection. The handler owns the
// Context's lifetime: a server closes an abandoned connection only after
// HandlerFunc returns.
type HandlerFunc func(ctx Context)

// UpdateConn lets a caller tweak a raw net.Conn (e.g. enable TCP keep-alive)
// right after Accept/Dial, before it is wrapped in a Context.
type UpdateConn func(conn net.Conn)

// FuncError receives operational errors already passed through ErrorFilter.
type FuncError func(e ...error)

// FuncInfo receives a connection state transition with both endpoints.
type FuncInfo func(local, remote net.Addr, state ConnState)

// FuncInfoServer receives a free-form server lifecycle message (listening,
// shutting down, ...).
type FuncInfoServer func(msg string)

// Server is the lifecycle contract implemented by every socket/server/*
// protocol package.
type Server interface {
	RegisterFuncError(f FuncError)
	RegisterFuncInfo(f FuncInfo)
	RegisterFuncInfoServer(f FuncInfoServer)

	Listen(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Close() error

	IsRunning() bool
	IsGone() bool
	OpenConnections() int64

	// Listener reports the network and address actually bound by the last
	// successful Listen call, which matters when the configured address
	// let the OS pick an ephemeral port (":0"). Returns zero values before
	// the first successful Listen.
	Listener() (network string, address string, err error)
}

// Client is the lifecycle contract implemented by every socket/client/*
// protocol package.
type Client interface {
	RegisterFuncError(f FuncError)

	Connect(ctx context.Context) error
	Close() error

	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)

	IsConnected() bool
}

// ConnState identifies a step of a connection's life, from dial/accept
// through handler execution to close. Servers and clients report it to a
// registered FuncInfo for logging and metrics.
type ConnState uint8

const (
	ConnectionDial ConnState = iota
	ConnectionNew
	ConnectionRead
	ConnectionCloseRead
	ConnectionHandler
	ConnectionWrite
	ConnectionCloseWrite
	ConnectionClose
)

// String returns the human-readable label for a ConnState, as used in log
// lines and FuncInfo callbacks.
func (s ConnState) String() string {
	switch s {
	case ConnectionDial:
		return "Dial Connection"
	case ConnectionNew:
		return "New Connection"
	case ConnectionRead:
		return "Read Incoming Stream"
	case ConnectionCloseRead:
		return "Close Incoming Stream"
	case ConnectionHandler:
		return "Run HandlerFunc"
	case ConnectionWrite:
		return "Write Outgoing Steam"
	case ConnectionCloseWrite:
		return "Close Outgoing Stream"
	case ConnectionClose:
		return "Close Connection"
	default:
		return "unknown connection state"
	}
}

// errClosedConn is the exact message net.OpError reports for a read/write
// race against a locally closed connection, harvested under normal
// shutdown and not worth surfacing to a FuncError callback.
const errClosedConn = "use of closed network connection"

// ErrorFilter drops the expected "connection already closed locally" error
// so shutdown paths don't log noise, and passes every other error through
// unchanged. Only an exact match is filtered: a wrapped error that merely
// contains the phrase (e.g. "read tcp ...: use of closed network
// connection") still carries information worth surfacing and is returned.
func ErrorFilter(err error) error {
	if err == nil {
		return nil
	}
	if err.Error() == errClosedConn {
		return nil
	}
	return err
}
