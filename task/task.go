// File: task/task.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Task handles, state model and context plumbing.

package task

import (
	"context"
	"errors"

	"github.com/momentics/hioload-fiber/api"
)

// State describes the lifecycle of a fiber.
type State int32

const (
	// StateHolding marks a fiber that has no body assigned: either freshly
	// allocated or recycled into the free list with empty local storage.
	StateHolding State = iota
	StateRunning
	StateSuspended
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateHolding:
		return "holding"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Interrupted is delivered into a task at its next suspension point after
// Task.Interrupt. Cancellation is cooperative: the waiting call returns this
// error and the task decides what to do with it.
var Interrupted = errors.New("task interrupted")

// Body is the function a task executes. The context carries the running task
// and its engine; an error return is treated as an uncaught task failure
// unless it is Interrupted.
type Body func(ctx context.Context) error

// Task is a handle to a spawned fiber. Identity is the triple
// (owning engine, fiber slot, generation); the handle stays valid after the
// fiber is recycled and then reports the task as done.
type Task struct {
	f   *fiber
	gen uint64
}

// Engine returns the engine the task is pinned to.
func (t *Task) Engine() *Engine { return t.f.eng }

// Slot returns the fiber slot index, for diagnostics.
func (t *Task) Slot() int { return t.f.slot }

// Done reports whether the task body has returned. The generation counter
// advances exactly once per task, at termination.
func (t *Task) Done() bool { return t.f.gen.Load() != t.gen }

// State returns the current fiber state, or StateTerminated for a handle
// whose fiber was already recycled.
func (t *Task) State() State {
	if t.Done() {
		return StateTerminated
	}
	return State(t.f.state.Load())
}

// Wake schedules a resume of the task with the given error delivered at its
// suspension point. It is the one thread-safe entry into the engine and the
// building block for every synchronization primitive. Wakes of finished
// tasks are dropped; a wake may be observed as spurious by the waiting call,
// so blocking primitives must retry their condition.
func (t *Task) Wake(err error) {
	t.f.eng.wake(t.f, t.gen, err)
}

// Interrupt delivers Interrupted at the task's next suspension point. If the
// task is currently suspended at an interruptible point, delivery is
// immediate and the caller regains control once the target suspends again.
// Fibers are thread-pinned and delivery goes through the direct resume path,
// so the context must prove it runs on the owning thread: it carries either
// a fiber of this engine or this engine's tag. Anything else is rejected
// with ErrWrongThread before any engine state is touched.
func (t *Task) Interrupt(ctx context.Context) error {
	e := t.f.eng
	if cur := currentFiber(ctx); cur != nil {
		if cur.eng != e {
			return api.ErrWrongThread
		}
	} else if EngineFrom(ctx) != e {
		return api.ErrWrongThread
	}
	if t.Done() {
		return nil
	}
	e.stats.interrupts.Add(1)
	f := t.f
	if State(f.state.Load()) == StateSuspended && !f.uninterruptible && !f.wakeQueued() {
		e.resume(f, Interrupted)
		return nil
	}
	f.pending = Interrupted
	return nil
}

// Join blocks the caller until the task's generation counter advances.
// Inside a fiber it suspends cooperatively; outside any fiber it pumps the
// engine's driver one iteration at a time, since there is nothing to
// suspend. Pumping touches engine state, so an outside-fiber context must
// carry this engine's tag. An interrupt of the joining task aborts the join.
func (t *Task) Join(ctx context.Context) error {
	e := t.f.eng
	if cur := currentFiber(ctx); cur != nil {
		if cur.eng != e {
			return api.ErrWrongThread
		}
		if cur == t.f {
			api.Misuse("join", "task cannot join itself")
		}
		for !t.Done() {
			t.f.joiners = append(t.f.joiners, joiner{f: cur, gen: cur.gen.Load()})
			if err := cur.suspend(); err != nil {
				return err
			}
		}
		return nil
	}
	if EngineFrom(ctx) != e {
		return api.ErrWrongThread
	}
	for !t.Done() {
		if err := e.Pump(); err != nil {
			return err
		}
	}
	return nil
}

type fiberKey struct{}
type engineKey struct{}

// WithEngine tags ctx with an engine so that engine-dependent calls made
// outside any fiber (dual-mode waits, joins) know which driver to pump.
func WithEngine(ctx context.Context, e *Engine) context.Context {
	return context.WithValue(ctx, engineKey{}, e)
}

// EngineFrom returns the engine carried by ctx, or nil.
func EngineFrom(ctx context.Context) *Engine {
	if e, ok := ctx.Value(engineKey{}).(*Engine); ok {
		return e
	}
	if f := currentFiber(ctx); f != nil {
		return f.eng
	}
	return nil
}

// Current returns the running task carried by ctx, or nil when called
// outside any fiber.
func Current(ctx context.Context) *Task {
	if f := currentFiber(ctx); f != nil {
		return f.task
	}
	return nil
}

func currentFiber(ctx context.Context) *fiber {
	if f, ok := ctx.Value(fiberKey{}).(*fiber); ok {
		return f
	}
	return nil
}
