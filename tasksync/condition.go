// File: tasksync/condition.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package tasksync

import (
	"context"

	"github.com/momentics/hioload-fiber/api"
)

// TaskCondition is a condition variable over a TaskMutex. Wait callers must
// hold the mutex; the canonical contract applies: snapshot the event counter,
// release, block on the counter, re-acquire before returning. Snapshotting
// before the release is what closes the lost-wakeup window.
type TaskCondition struct {
	L  *TaskMutex
	ev ManualEvent
}

// NewTaskCondition creates a condition bound to l.
func NewTaskCondition(l *TaskMutex) *TaskCondition {
	return &TaskCondition{L: l}
}

// Wait atomically releases the mutex and blocks until the next Broadcast,
// then re-acquires the mutex. Wakeups are broadcast, so callers re-check
// their predicate in a loop. Calling Wait without holding the mutex is
// fatal misuse.
func (c *TaskCondition) Wait(ctx context.Context) error {
	if !c.L.locked.Load() {
		api.Misuse("condition wait", "associated mutex is not held")
	}
	ref := c.ev.Count()
	c.L.Unlock()
	_, werr := c.ev.Wait(ctx, ref)
	if lerr := c.L.Lock(ctx); lerr != nil {
		return lerr
	}
	return werr
}

// Broadcast wakes every task blocked in Wait.
func (c *TaskCondition) Broadcast() {
	c.ev.Emit()
}
