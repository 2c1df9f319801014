// File: connpool/locked.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Locked is the reference-counted handle to a pooled resource. Ownership is
// explicit and by-task: using or releasing a handle from a task that does
// not own it is a checked programming error, never silently tolerated.

package connpool

import (
	"context"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/task"
)

// Locked is a live reference to a pooled resource. Clone adds references,
// Release drops them; the semaphore slot frees when the last reference for
// the resource is gone. One task may hold multiple handles to the same
// resource.
type Locked[T any] struct {
	p        *Pool[T]
	en       *entry[T]
	owner    *task.Task
	released bool
}

// Value returns the pooled resource after verifying the calling task owns
// this handle.
func (l *Locked[T]) Value(ctx context.Context) T {
	l.check(ctx, "use")
	return l.en.res
}

// Owner returns the task this handle belongs to.
func (l *Locked[T]) Owner() *task.Task { return l.owner }

// Clone creates an additional handle for the calling task, incrementing the
// resource's live-reference count. The caller may be a different task on
// the same engine; this is the explicit ownership-transfer path.
func (l *Locked[T]) Clone(ctx context.Context) *Locked[T] {
	if l.released {
		api.Misuse("connection clone", "handle already released")
	}
	cur := task.Current(ctx)
	if cur == nil {
		api.Misuse("connection clone", "not inside a task")
	}
	if cur.Engine() != l.owner.Engine() {
		api.Misuse("connection clone", "pooled connections are pinned to one thread")
	}
	l.en.refs++
	return &Locked[T]{p: l.p, en: l.en, owner: cur}
}

// Release drops this handle. Releasing twice, or from a non-owning task, is
// fatal misuse.
func (l *Locked[T]) Release(ctx context.Context) {
	l.check(ctx, "release")
	l.released = true
	l.p.release(l.en)
}

func (l *Locked[T]) check(ctx context.Context, op string) {
	if l.released {
		api.Misuse("connection "+op, "handle already released")
	}
	if cur := task.Current(ctx); cur != l.owner {
		api.Misuse("connection "+op, "calling task does not own this handle")
	}
}
