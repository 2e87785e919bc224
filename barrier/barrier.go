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

// Package barrier lets a caller block on a loop.Loop for the one event
// that completes a specific session, turning the loop's normally
// fire-and-forget event dispatch into a synchronous call for that one
// caller. Only one Barrier may be attached to a given Loop at a time.
package barrier

import (
	"context"
	"errors"
	"sync"

	"github.com/nabbar/carbon/loop"
	"github.com/nabbar/carbon/session"
)

// ErrNotAttached is returned by Wait when called before Attach.
var ErrNotAttached = errors.New("barrier: not attached to a loop")

// Barrier blocks a caller until a loop.Loop dispatches an event carrying a
// specific session.ID, then hands that event back. It attaches to exactly
// one loop.Loop at a time.
type Barrier struct {
	mu   sync.Mutex
	l    *loop.Loop
	sess session.ID
	ch   chan loop.Event
}

// New returns an unattached Barrier.
func New() *Barrier {
	return &Barrier{}
}

// Attach binds this barrier to l for session sess. It fails with
// loop.ErrBarrierAttached if l already has a barrier attached.
func (b *Barrier) Attach(l *loop.Loop, sess session.ID) error {
	if err := l.AttachBarrier(b); err != nil {
		return err
	}

	b.mu.Lock()
	b.l = l
	b.sess = sess
	b.ch = make(chan loop.Event, 1)
	b.mu.Unlock()
	return nil
}

// Offer is called by the attached Loop for every dispatched event. It
// returns true (claiming the event) only for the one event matching this
// barrier's session; every other event passes through untouched.
func (b *Barrier) Offer(e loop.Event) bool {
	b.mu.Lock()
	sess := b.sess
	ch := b.ch
	b.mu.Unlock()

	if ch == nil || sess == session.None || e.Session != sess {
		return false
	}

	select {
	case ch <- e:
		return true
	default:
		return false
	}
}

// Wait blocks until the attached loop dispatches the matching event or ctx
// is done, whichever comes first.
func (b *Barrier) Wait(ctx context.Context) (loop.Event, error) {
	b.mu.Lock()
	ch := b.ch
	b.mu.Unlock()

	if ch == nil {
		return loop.Event{}, ErrNotAttached
	}

	select {
	case e := <-ch:
		return e, nil
	case <-ctx.Done():
		return loop.Event{}, ctx.Err()
	}
}

// Detach releases the barrier from its loop, allowing another barrier to
// attach. Safe to call even if never attached, or more than once.
func (b *Barrier) Detach() {
	b.mu.Lock()
	l := b.l
	b.l = nil
	b.sess = session.None
	b.ch = nil
	b.mu.Unlock()

	if l != nil {
		l.DetachBarrier()
	}
}
