/*
 * MIT License
 *
 * Copyright (c) 2019 Nicolas JUHEL
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

// Package sem provides a bounded or unbounded worker-slot semaphore built on
// top of context.Context, so callers can select, cancel, or deadline a slot
// acquisition the same way they would any other blocking call.
package sem

import (
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Semaphore bounds concurrent worker slots and doubles as the context.Context
// used to create it, so callers can select on Done() without holding a
// separate reference to the parent context.
type Semaphore interface {
	context.Context

	// New creates an independent semaphore with the same weight, a child of
	// this semaphore's context.
	New() Semaphore

	// NewWorker blocks until a slot is available or the context is done.
	NewWorker() error

	// NewWorkerTry acquires a slot without blocking; false if none is free.
	NewWorkerTry() bool

	// DeferWorker releases a previously acquired slot.
	DeferWorker()

	// WaitAll blocks until every acquired slot has been released.
	WaitAll() error

	// Weighted returns the configured limit, or -1 for an unbounded semaphore.
	Weighted() int64

	// DeferMain cancels this semaphore's context. Safe to call more than once.
	DeferMain()
}

// MaxSimultaneous returns the default worker limit used when New is called
// with nbrSimultaneous == 0: the number of schedulable OS threads.
func MaxSimultaneous() int {
	return runtime.GOMAXPROCS(0)
}

// SetSimultaneous clamps n to the range [1, MaxSimultaneous()], returning
// MaxSimultaneous() for any n outside that range.
func SetSimultaneous(n int) int64 {
	m := MaxSimultaneous()
	if n < 1 || n > m {
		return int64(m)
	}
	return int64(n)
}

// New creates a Semaphore bound to ctx. nbrSimultaneous == 0 uses
// MaxSimultaneous(); nbrSimultaneous > 0 uses that exact weight via a
// golang.org/x/sync/semaphore.Weighted; nbrSimultaneous < 0 is unbounded,
// backed by a sync.WaitGroup instead since a weighted semaphore has no
// "infinite" setting.
func New(ctx context.Context, nbrSimultaneous int64) Semaphore {
	cctx, cnl := context.WithCancel(ctx)

	if nbrSimultaneous < 0 {
		return &waitGroupSem{
			ctx: cctx,
			cnl: cnl,
		}
	}

	if nbrSimultaneous == 0 {
		nbrSimultaneous = int64(MaxSimultaneous())
	}

	return &weightedSem{
		ctx: cctx,
		cnl: cnl,
		n:   nbrSimultaneous,
		sem: semaphore.NewWeighted(nbrSimultaneous),
	}
}

type weightedSem struct {
	ctx context.Context
	cnl context.CancelFunc
	n   int64
	sem *semaphore.Weighted
	cls sync.Once
}

func (s *weightedSem) Deadline() (time.Time, bool) {
	return s.ctx.Deadline()
}

func (s *weightedSem) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *weightedSem) Err() error {
	return s.ctx.Err()
}

func (s *weightedSem) Value(key interface{}) interface{} {
	return s.ctx.Value(key)
}

func (s *weightedSem) New() Semaphore {
	return New(s.ctx, s.n)
}

func (s *weightedSem) NewWorker() error {
	return s.sem.Acquire(s.ctx, 1)
}

func (s *weightedSem) NewWorkerTry() bool {
	return s.sem.TryAcquire(1)
}

func (s *weightedSem) DeferWorker() {
	s.sem.Release(1)
}

func (s *weightedSem) WaitAll() error {
	if err := s.sem.Acquire(s.ctx, s.n); err != nil {
		return err
	}
	s.sem.Release(s.n)
	return nil
}

func (s *weightedSem) Weighted() int64 {
	return s.n
}

func (s *weightedSem) DeferMain() {
	s.cls.Do(s.cnl)
}

type waitGroupSem struct {
	ctx context.Context
	cnl context.CancelFunc
	wg  sync.WaitGroup
	cls sync.Once
}

func (s *waitGroupSem) Deadline() (time.Time, bool) {
	return s.ctx.Deadline()
}

func (s *waitGroupSem) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *waitGroupSem) Err() error {
	return s.ctx.Err()
}

func (s *waitGroupSem) Value(key interface{}) interface{} {
	return s.ctx.Value(key)
}

func (s *waitGroupSem) New() Semaphore {
	return New(s.ctx, -1)
}

func (s *waitGroupSem) NewWorker() error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	s.wg.Add(1)
	return nil
}

func (s *waitGroupSem) NewWorkerTry() bool {
	return s.NewWorker() == nil
}

func (s *waitGroupSem) DeferWorker() {
	s.wg.Done()
}

func (s *waitGroupSem) WaitAll() error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *waitGroupSem) Weighted() int64 {
	return -1
}

func (s *waitGroupSem) DeferMain() {
	s.cls.Do(s.cnl)
}
