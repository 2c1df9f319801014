// File: tasksync/manualevent.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ManualEvent: a broadcast wakeup primitive over a monotonic emit counter.
// A waiter records the counter before suspending, so an emit between the
// snapshot and the suspension is never missed.

package tasksync

import (
	"context"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/task"
)

// ManualEvent is a cross-thread broadcast wakeup counter. Emit increments
// the counter and wakes every currently blocked waiter; Wait blocks until
// the counter differs from the caller's reference value.
type ManualEvent struct {
	mu      sync.Mutex
	count   uint64
	waiters deque.Deque[*eventWaiter]
}

type eventWaiter struct {
	t      *task.Task   // nil for non-fiber waiters
	e      *task.Engine // engine to kick for non-fiber waiters
	popped bool         // guarded by ev.mu
}

// NewManualEvent creates an event with counter zero.
func NewManualEvent() *ManualEvent { return &ManualEvent{} }

// Count returns the current emit counter, a reference value for Wait.
func (ev *ManualEvent) Count() uint64 {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return ev.count
}

// Emit increments the counter and wakes all current waiters. Broadcast is
// deliberate: waiters re-check their condition, so multiple wakeups merge
// into spurious resumes rather than lost ones.
func (ev *ManualEvent) Emit() {
	ev.mu.Lock()
	ev.count++
	woken := make([]*eventWaiter, 0, ev.waiters.Len())
	for ev.waiters.Len() > 0 {
		w := ev.waiters.PopFront()
		w.popped = true
		woken = append(woken, w)
	}
	ev.mu.Unlock()
	for _, w := range woken {
		if w.t != nil {
			w.t.Wake(nil)
		} else {
			w.e.Kick()
		}
	}
}

// Wait blocks until the counter differs from ref and returns the new value.
// Inside a task it suspends; outside any fiber it pumps the context's engine
// one driver iteration at a time. An interrupt aborts the wait.
func (ev *ManualEvent) Wait(ctx context.Context, ref uint64) (uint64, error) {
	return ev.wait(ctx, ref, nil)
}

// WaitTimeout is Wait racing a one-shot timer, with timeout reported as
// api.ErrTimeout. The timer never injects an error into the task: it marks
// the expiry under the event lock and wakes the waiter with nil, so a timer
// that fires after an emit has already won cannot leave a bogus timeout
// pending for the task's next unrelated suspension. An emit and the expiry
// racing each other resolve inside the wait loop: the counter is checked
// first, so the event wins whenever it actually arrived.
func (ev *ManualEvent) WaitTimeout(ctx context.Context, ref uint64, d time.Duration) (uint64, error) {
	e := task.EngineFrom(ctx)
	if e == nil {
		api.Misuse("manual event wait", "context carries neither a task nor an engine")
	}
	t := task.Current(ctx)
	expired := new(bool)
	tm := e.Driver().NewTimer(func() {
		ev.mu.Lock()
		*expired = true
		ev.mu.Unlock()
		if t != nil {
			t.Wake(nil)
		} else {
			e.Kick()
		}
	})
	tm.Set(d, false)
	defer tm.Cancel()
	return ev.wait(ctx, ref, expired)
}

func (ev *ManualEvent) wait(ctx context.Context, ref uint64, expired *bool) (uint64, error) {
	t := task.Current(ctx)
	if t == nil && task.EngineFrom(ctx) == nil {
		api.Misuse("manual event wait", "context carries neither a task nor an engine")
	}
	for {
		ev.mu.Lock()
		if ev.count != ref {
			c := ev.count
			ev.mu.Unlock()
			return c, nil
		}
		if expired != nil && *expired {
			ev.mu.Unlock()
			return 0, api.ErrTimeout
		}
		w := &eventWaiter{t: t, e: task.EngineFrom(ctx)}
		ev.waiters.PushBack(w)
		ev.mu.Unlock()

		err := task.Await(ctx)
		ev.drop(w)
		if err != nil {
			return 0, err
		}
	}
}

// drop removes a waiter registration that was not consumed by an Emit.
func (ev *ManualEvent) drop(w *eventWaiter) {
	ev.mu.Lock()
	if !w.popped {
		if i := ev.waiters.Index(func(x *eventWaiter) bool { return x == w }); i >= 0 {
			ev.waiters.Remove(i)
		}
		w.popped = true
	}
	ev.mu.Unlock()
}
