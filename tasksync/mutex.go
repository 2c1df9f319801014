// File: tasksync/mutex.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Task-aware mutexes. The fast path is a single CAS; the slow path blocks
// on an internal ManualEvent and retries, since event wakeups are broadcast
// and therefore may be spurious.

package tasksync

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/task"
)

// TaskMutex is a mutual-exclusion lock for tasks. At most one task holds it
// at a time; contending tasks suspend instead of spinning. The zero value is
// an unlocked mutex.
type TaskMutex struct {
	locked  atomic.Bool
	waiters atomic.Int32
	ev      ManualEvent
}

// TryLock acquires the mutex without blocking.
func (m *TaskMutex) TryLock() bool {
	return m.locked.CompareAndSwap(false, true)
}

// Lock acquires the mutex, suspending the caller while it is held elsewhere.
// The slow path registers as a waiter before retrying the acquisition: an
// unlock on another thread either observes the registration and broadcasts,
// or happened before it and loses to the post-registration CAS. The emit
// counter is snapshotted before each attempt, so an unlock between the
// failed CAS and the wait cannot be missed either.
func (m *TaskMutex) Lock(ctx context.Context) error {
	if m.locked.CompareAndSwap(false, true) {
		return nil
	}
	m.waiters.Add(1)
	defer m.waiters.Add(-1)
	for {
		ref := m.ev.Count()
		if m.locked.CompareAndSwap(false, true) {
			return nil
		}
		if _, err := m.ev.Wait(ctx, ref); err != nil {
			return err
		}
	}
}

// Unlock releases the mutex. The wakeup broadcast is emitted only when
// waiters are currently recorded. Unlocking an unheld mutex is fatal misuse.
func (m *TaskMutex) Unlock() {
	if !m.locked.CompareAndSwap(true, false) {
		api.Misuse("mutex unlock", "TaskMutex is not locked")
	}
	if m.waiters.Load() > 0 {
		m.ev.Emit()
	}
}

// RecursiveTaskMutex is a TaskMutex variant that may be re-acquired by the
// task already holding it. Owner and depth are tracked under a short
// non-suspending OS lock; the critical section is O(1).
type RecursiveTaskMutex struct {
	mu      sync.Mutex
	owner   *task.Task
	depth   int
	waiters int
	ev      ManualEvent
}

// TryLock acquires the mutex or deepens an existing hold without blocking.
func (m *RecursiveTaskMutex) TryLock(ctx context.Context) bool {
	cur := task.Current(ctx)
	if cur == nil {
		api.Misuse("recursive mutex lock", "not inside a task")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner == nil {
		m.owner = cur
		m.depth = 1
		return true
	}
	if m.owner == cur {
		m.depth++
		return true
	}
	return false
}

// Lock acquires the mutex, counting depth for the owning task.
func (m *RecursiveTaskMutex) Lock(ctx context.Context) error {
	cur := task.Current(ctx)
	if cur == nil {
		api.Misuse("recursive mutex lock", "not inside a task")
	}
	for {
		ref := m.ev.Count()
		m.mu.Lock()
		if m.owner == nil {
			m.owner = cur
			m.depth = 1
			m.mu.Unlock()
			return nil
		}
		if m.owner == cur {
			m.depth++
			m.mu.Unlock()
			return nil
		}
		m.waiters++
		m.mu.Unlock()

		_, err := m.ev.Wait(ctx, ref)

		m.mu.Lock()
		m.waiters--
		m.mu.Unlock()
		if err != nil {
			return err
		}
	}
}

// Unlock undoes one Lock by the owning task; the lock is released when the
// depth reaches zero. Unlocking from a non-owning task is fatal misuse.
func (m *RecursiveTaskMutex) Unlock(ctx context.Context) {
	cur := task.Current(ctx)
	m.mu.Lock()
	if m.owner == nil || m.owner != cur {
		m.mu.Unlock()
		api.Misuse("recursive mutex unlock", "caller does not hold the lock")
	}
	m.depth--
	if m.depth > 0 {
		m.mu.Unlock()
		return
	}
	m.owner = nil
	emit := m.waiters > 0
	m.mu.Unlock()
	if emit {
		m.ev.Emit()
	}
}

// Depth reports the current hold depth, for diagnostics.
func (m *RecursiveTaskMutex) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.depth
}
