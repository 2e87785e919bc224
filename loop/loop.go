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

package loop

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Loop is a cooperative, single-owner-thread event loop: one goroutine
// calls Run, every other goroutine only ever calls PostEvent/InsertTimer/
// PauseTimer/RestartTimer/CancelTimer/Shutdown.
type Loop struct {
	name string
	log  logrus.FieldLogger

	mu      sync.Mutex
	events  []Event
	timers  timerHeap
	timerID map[*Timer]struct{}
	seq     uint64

	receivers []Receiver
	barrier   Offerer

	wake chan struct{}
	done chan struct{}
	quit bool
}

// Offerer is offered every dispatched event ahead of normal receiver
// delivery. Only one may be attached to a Loop at a time (spec.md §4.4
// "only one outstanding barrier per loop"); package barrier implements it.
type Offerer interface {
	Offer(e Event) bool
}

// ErrBarrierAttached is returned by AttachBarrier when another Offerer is
// already attached to this Loop.
var ErrBarrierAttached = errors.New("loop: a barrier is already attached")

// AttachBarrier attaches o as this loop's single outstanding barrier.
func (l *Loop) AttachBarrier(o Offerer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.barrier != nil {
		return ErrBarrierAttached
	}
	l.barrier = o
	return nil
}

// DetachBarrier clears the attached barrier, if any.
func (l *Loop) DetachBarrier() {
	l.mu.Lock()
	l.barrier = nil
	l.mu.Unlock()
}

// New creates a named, idle Loop. Run must be called to start processing.
func New(name string, log logrus.FieldLogger) *Loop {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Loop{
		name:    name,
		log:     log.WithField("loop", name),
		timerID: make(map[*Timer]struct{}),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Register attaches a Receiver to this loop; broadcast events are
// delivered to every registered receiver.
func (l *Loop) Register(r Receiver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.receivers = append(l.receivers, r)
}

// PostEvent enqueues an event for delivery on the next loop iteration and
// wakes the loop if it is sleeping. Safe to call from any goroutine.
func (l *Loop) PostEvent(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
	l.signal()
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// NewTimer creates (but does not arm) a timer owned by this loop.
func (l *Loop) NewTimer(name string, period time.Duration, mode TimerMode, cb func()) *Timer {
	return &Timer{Name: name, Period: period, Mode: mode, Callback: cb}
}

// InsertTimer arms t, computing its first fire time as now+Period, and
// wakes the loop if this is now the earliest pending deadline.
func (l *Loop) InsertTimer(t *Timer) {
	l.mu.Lock()
	l.seq++
	t.seq = l.seq
	t.fire = time.Now().Add(t.Period)
	t.armed = true
	l.timerID[t] = struct{}{}
	heap.Push(&l.timers, t)
	l.mu.Unlock()
	l.signal()
}

// PauseTimer removes t from the heap without forgetting it; RestartTimer
// re-arms it later. A no-op if t is not currently armed.
func (l *Loop) PauseTimer(t *Timer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !t.armed {
		return
	}
	if t.index >= 0 && t.index < len(l.timers) {
		heap.Remove(&l.timers, t.index)
	}
	t.armed = false
}

// RestartTimer re-arms t with a fresh now+Period deadline.
func (l *Loop) RestartTimer(t *Timer) {
	l.mu.Lock()
	if t.armed && t.index >= 0 && t.index < len(l.timers) {
		heap.Remove(&l.timers, t.index)
	}
	l.seq++
	t.seq = l.seq
	t.fire = time.Now().Add(t.Period)
	t.armed = true
	heap.Push(&l.timers, t)
	l.mu.Unlock()
	l.signal()
}

// CancelTimer removes t permanently; it is no longer known to this loop.
// Cancellation is best-effort: a callback already running completes.
func (l *Loop) CancelTimer(t *Timer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.armed && t.index >= 0 && t.index < len(l.timers) {
		heap.Remove(&l.timers, t.index)
	}
	t.armed = false
	delete(l.timerID, t)
}

// Shutdown asks the loop to stop after its current iteration and wakes it.
// Timers beyond the shutdown point are discarded.
func (l *Loop) Shutdown() {
	l.mu.Lock()
	l.quit = true
	l.mu.Unlock()
	l.signal()
}

// Done returns a channel closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Run executes the loop's main step repeatedly until Shutdown is called or
// ctx is canceled. It must run on a single goroutine for this Loop's
// lifetime.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)

	for {
		if l.step() {
			return
		}

		deadline := l.nextDeadline()

		var timer *time.Timer
		var timerC <-chan time.Time
		if deadline != nil {
			d := time.Until(*deadline)
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			l.Shutdown()
		case <-l.wake:
			if timer != nil {
				timer.Stop()
			}
		case <-timerC:
		}
	}
}

// step drains pending events then fires due timers, in that order, per
// spec. Returns true if the loop should stop after this iteration.
func (l *Loop) step() bool {
	l.mu.Lock()
	quit := l.quit
	events := l.events
	l.events = nil
	l.mu.Unlock()

	for _, e := range events {
		l.dispatch(e)
	}

	if quit {
		return true
	}

	now := time.Now()
	for {
		l.mu.Lock()
		if len(l.timers) == 0 || l.timers[0].fire.After(now) {
			l.mu.Unlock()
			break
		}
		t := heap.Pop(&l.timers).(*Timer)
		t.armed = false
		if t.Mode == Periodic {
			l.seq++
			t.seq = l.seq
			t.fire = now.Add(t.Period)
			t.armed = true
			heap.Push(&l.timers, t)
		} else {
			delete(l.timerID, t)
		}
		l.mu.Unlock()

		if t.Callback != nil {
			t.Callback()
		}
	}

	l.mu.Lock()
	quit = l.quit
	l.mu.Unlock()
	return quit
}

func (l *Loop) dispatch(e Event) {
	l.mu.Lock()
	recv := append([]Receiver(nil), l.receivers...)
	b := l.barrier
	l.mu.Unlock()

	if b != nil {
		b.Offer(e)
	}

	if e.Broadcast {
		for _, r := range recv {
			r.HandleEvent(e)
		}
		return
	}

	for _, r := range recv {
		if r.HandleEvent(e) {
			return
		}
	}

	l.log.WithField("event", e.Type.String()).Debug("event not consumed by any receiver")
}

func (l *Loop) nextDeadline() *time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.timers) == 0 {
		return nil
	}
	t := l.timers[0].fire
	return &t
}
