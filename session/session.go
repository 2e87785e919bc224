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

// Package session allocates the monotonically increasing identifiers used
// to correlate a sent container with its reply or completion event. A
// session ID is process-wide unique and never reused while any outstanding
// operation still references it.
package session

import "sync/atomic"

// ID correlates a sent container with its completion event and/or reply.
// The zero value means "no session".
type ID uint64

// None is the sentinel value meaning "no session attached".
const None ID = 0

// Valid reports whether the id is a real, allocated session id.
func (i ID) Valid() bool {
	return i != None
}

// Registry issues monotonically increasing, process-wide unique session
// identifiers. The zero value is ready to use.
type Registry struct {
	counter atomic.Uint64
}

// Next returns the next session id. Safe for concurrent callers (P5): each
// call observes a distinct value, and the counter never wraps back to
// None short of exhausting 2^64-1 allocations.
func (r *Registry) Next() ID {
	return ID(r.counter.Add(1))
}

// Global is the package-level registry used by callers that have no
// specific registry instance threaded through (e.g. simple CLIs); library
// code that holds a runtime handle should prefer its own Registry.
var Global Registry

// Next allocates the next id from the package-global registry.
func Next() ID {
	return Global.Next()
}
