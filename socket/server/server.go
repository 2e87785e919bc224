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

// Package server is a protocol-agnostic factory over socket/server/{tcp,
// udp,unix,unixgram}: callers pick a transport by setting cfg.Network and
// get back a single socket.Server interface regardless of which concrete
// implementation was chosen.
package server

import (
	libptc "github.com/nabbar/carbon/network/protocol"
	libsck "github.com/nabbar/carbon/socket"
	sckcfg "github.com/nabbar/carbon/socket/config"
	scktcp "github.com/nabbar/carbon/socket/server/tcp"
	sckudp "github.com/nabbar/carbon/socket/server/udp"
)

// New dispatches to the socket/server/* implementation matching
// cfg.Network, returning sckcfg.ErrInvalidProtocol for any other value
// (including a Unix/UnixGram request on a platform where that transport is
// not supported).
func New(upd libsck.UpdateConn, h libsck.HandlerFunc, cfg sckcfg.Server) (libsck.Server, error) {
	switch cfg.Network {
	case libptc.NetworkTCP, libptc.NetworkTCP4, libptc.NetworkTCP6:
		return scktcp.New(upd, h, cfg)
	case libptc.NetworkUDP, libptc.NetworkUDP4, libptc.NetworkUDP6:
		return sckudp.New(upd, h, cfg)
	case libptc.NetworkUnix:
		return newUnix(upd, h, cfg)
	case libptc.NetworkUnixGram:
		return newUnixGram(upd, h, cfg)
	default:
		return nil, sckcfg.ErrInvalidProtocol
	}
}
