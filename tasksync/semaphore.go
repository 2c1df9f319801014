// File: tasksync/semaphore.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// LocalTaskSemaphore: a bounded semaphore with a priority-ordered wait
// queue. "Local" means thread-pinned: all holders and waiters belong to one
// engine, so the bookkeeping needs no locking, only the engine binding
// check.

package tasksync

import (
	"container/heap"
	"context"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/task"
)

// Sequence numbers rebase once they cross this bound, keeping relative
// ordering while never overflowing.
const seqRebase = 1 << 62

// LocalTaskSemaphore admits at most maxLocks concurrent holders. Waiters are
// served by (priority, arrival order): a later, lower-priority caller never
// jumps ahead of an already queued higher-priority one, even when slots are
// free. Exactly one waiter is woken per Unlock, and never before a slot is
// actually free.
type LocalTaskSemaphore struct {
	eng       *task.Engine // bound on first use
	maxLocks  int
	available int
	seq       uint64
	q         semQueue
}

// NewLocalTaskSemaphore creates a semaphore with maxLocks slots.
func NewLocalTaskSemaphore(maxLocks int) *LocalTaskSemaphore {
	if maxLocks <= 0 {
		api.Misuse("semaphore", "maxLocks must be positive, got %d", maxLocks)
	}
	return &LocalTaskSemaphore{maxLocks: maxLocks, available: maxLocks}
}

// Available returns the number of free slots.
func (s *LocalTaskSemaphore) Available() int { return s.available }

// MaxLocks returns the configured bound.
func (s *LocalTaskSemaphore) MaxLocks() int { return s.maxLocks }

// TryLock acquires a slot without blocking. It succeeds only when the wait
// queue is empty and a slot is free, preserving queue order.
func (s *LocalTaskSemaphore) TryLock(ctx context.Context) bool {
	s.bind(ctx, "semaphore try-lock")
	if s.q.Len() == 0 && s.available > 0 {
		s.available--
		return true
	}
	return false
}

// Lock acquires a slot, suspending at the given priority while none is
// free (larger priority values are served first). An interrupted waiter is
// removed from the queue and leaves Available untouched; a slot already
// granted to it is passed on to the next waiter.
func (s *LocalTaskSemaphore) Lock(ctx context.Context, priority int) error {
	t := s.bind(ctx, "semaphore lock")
	if s.q.Len() == 0 && s.available > 0 {
		s.available--
		return nil
	}
	w := &semWaiter{prio: priority, seq: s.nextSeq(), t: t}
	heap.Push(&s.q, w)
	for {
		err := task.Await(ctx)
		if err != nil {
			switch {
			case w.granted:
				s.available++
				s.grantNext()
			case w.idx >= 0:
				heap.Remove(&s.q, w.idx)
			}
			return err
		}
		if w.granted {
			return nil
		}
	}
}

// Unlock frees one slot and wakes the best queued waiter, if any. Releasing
// a semaphore that is not held is fatal misuse.
func (s *LocalTaskSemaphore) Unlock() {
	if s.available >= s.maxLocks {
		api.Misuse("semaphore unlock", "release of a semaphore that is not held")
	}
	s.available++
	s.grantNext()
}

func (s *LocalTaskSemaphore) grantNext() {
	if s.q.Len() == 0 || s.available == 0 {
		return
	}
	w := heap.Pop(&s.q).(*semWaiter)
	s.available--
	w.granted = true
	w.t.Wake(nil)
}

func (s *LocalTaskSemaphore) bind(ctx context.Context, op string) *task.Task {
	t := task.Current(ctx)
	if t == nil {
		api.Misuse(op, "not inside a task")
	}
	if s.eng == nil {
		s.eng = t.Engine()
	} else if s.eng != t.Engine() {
		api.Misuse(op, "semaphore is pinned to another thread")
	}
	return t
}

func (s *LocalTaskSemaphore) nextSeq() uint64 {
	if s.seq >= seqRebase {
		var min uint64 = s.seq
		for _, w := range s.q {
			if w.seq < min {
				min = w.seq
			}
		}
		for _, w := range s.q {
			w.seq -= min
		}
		s.seq -= min
	}
	s.seq++
	return s.seq
}

type semWaiter struct {
	prio    int
	seq     uint64
	t       *task.Task
	granted bool
	idx     int // heap index, -1 once popped
}

// semQueue orders waiters by descending priority, then arrival.
type semQueue []*semWaiter

func (q semQueue) Len() int { return len(q) }

func (q semQueue) Less(i, j int) bool {
	if q[i].prio != q[j].prio {
		return q[i].prio > q[j].prio
	}
	return q[i].seq < q[j].seq
}

func (q semQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].idx = i
	q[j].idx = j
}

func (q *semQueue) Push(x any) {
	w := x.(*semWaiter)
	w.idx = len(*q)
	*q = append(*q, w)
}

func (q *semQueue) Pop() any {
	old := *q
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.idx = -1
	*q = old[:n-1]
	return w
}
