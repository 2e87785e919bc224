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
	"time"
)

// TimerMode selects one-shot vs. periodic re-arming.
type TimerMode uint8

const (
	OneShot TimerMode = iota
	Periodic
)

// Timer is a scheduled callback owned by exactly one Loop. Callers obtain
// one via Loop.NewTimer and control it with InsertTimer/PauseTimer/
// RestartTimer/CancelTimer; the zero value is not usable standalone.
type Timer struct {
	Name     string
	Period   time.Duration
	Mode     TimerMode
	Callback func()

	fire  time.Time
	index int  // heap index, maintained by container/heap
	seq   uint64
	armed bool
}

// timerHeap is a container/heap priority queue ordered by fire time, ties
// broken by insertion sequence (I: "ties by insertion order"), grounded in
// the teacher ecosystem's priority-queue-over-a-channel-request pattern
// (SagerNet-smux's write-request shaper heap).
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].fire.Equal(h[j].fire) {
		return h[i].seq < h[j].seq
	}
	return h[i].fire.Before(h[j].fire)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}

func (h *timerHeap) Push(x interface{}) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

var _ = heap.Interface(&timerHeap{})
