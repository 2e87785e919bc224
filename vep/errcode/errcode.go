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

// Package errcode registers the standard error codes surfaced to callers
// of the framing, socket, connector, server and client layers (spec §6),
// using the teacher's CodeError/RegisterIdFctMessage scheme so these
// errors carry a code, a message and an optional parent the same way
// every other package in the module does.
package errcode

import "github.com/nabbar/carbon/errors"

const (
	ESuccess errors.CodeError = iota + errors.MinPkgVep
	EAgain
	EConnReset
	EConnRefused
	ETimedOut
	ECanceled
	ENotConn
	EBadF
	EInval
	ENoMem
	EIntr
	E2Big
	EIO
	ENoEnt
)

func init() {
	errors.RegisterIdFctMessage(ESuccess, getMessage)
}

func getMessage(code errors.CodeError) string {
	switch code {
	case ESuccess:
		return "success"
	case EAgain:
		return "resource temporarily unavailable"
	case EConnReset:
		return "connection reset by peer"
	case EConnRefused:
		return "connection refused"
	case ETimedOut:
		return "operation timed out"
	case ECanceled:
		return "operation canceled"
	case ENotConn:
		return "socket is not connected"
	case EBadF:
		return "bad file descriptor"
	case EInval:
		return "invalid argument or frame"
	case ENoMem:
		return "out of memory"
	case EIntr:
		return "interrupted system call"
	case E2Big:
		return "argument list too long"
	case EIO:
		return "i/o error"
	case ENoEnt:
		return "no such session or name"
	}

	return ""
}
