// File: driver/inproc/timer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Timer heap and trigger sources for the in-process driver.

package inproc

import (
	"container/heap"
	"time"
)

type timer struct {
	d      *Driver
	fn     func()
	when   time.Time
	period time.Duration
	seq    uint64
	idx    int // heap index, -1 while unarmed
}

// Set implements api.Timer. Re-arming replaces the previous deadline.
func (t *timer) Set(d time.Duration, periodic bool) {
	t.d.mu.Lock()
	if t.d.closed {
		t.d.mu.Unlock()
		return
	}
	if t.idx >= 0 {
		heap.Remove(&t.d.timers, t.idx)
		t.idx = -1
	}
	t.when = time.Now().Add(d)
	if periodic {
		t.period = d
	} else {
		t.period = 0
	}
	t.d.seq++
	t.seq = t.d.seq
	heap.Push(&t.d.timers, t)
	t.d.mu.Unlock()
	t.d.kickLoop() // deadline may have moved closer
}

// Cancel implements api.Timer. A cancelled registration never fires.
func (t *timer) Cancel() {
	t.d.mu.Lock()
	if t.idx >= 0 {
		heap.Remove(&t.d.timers, t.idx)
		t.idx = -1
	}
	t.period = 0
	t.d.mu.Unlock()
}

// timerHeap orders timers by deadline, ties broken by arming order.
type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].idx = i
	h[j].idx = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.idx = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.idx = -1
	*h = old[:n-1]
	return t
}

// trigger is a manually fired event source. Fire is thread-safe and
// coalesces with an already-pending fire.
type trigger struct {
	d      *Driver
	fn     func()
	queued bool // guarded by d.mu
	closed bool // guarded by d.mu
}

// Fire implements api.Trigger.
func (t *trigger) Fire() {
	t.d.mu.Lock()
	if t.d.closed || t.closed || t.queued {
		t.d.mu.Unlock()
		return
	}
	t.queued = true
	t.d.spikes = append(t.d.spikes, t)
	t.d.mu.Unlock()
	t.d.kickLoop()
}

// Close implements api.Trigger.
func (t *trigger) Close() {
	t.d.mu.Lock()
	t.closed = true
	t.d.mu.Unlock()
}
