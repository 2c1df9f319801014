// File: task/fiber.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fiber execution loop and the suspend/resume handoff. A fiber is a
// goroutine gated by a pair of unbuffered channels: whoever calls resume
// blocks until the fiber suspends or terminates, so exactly one context
// executes per engine at any time.

package task

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/momentics/hioload-fiber/api"
	"go.uber.org/zap"
)

type fiber struct {
	eng  *Engine
	slot int

	gen   atomic.Uint64 // advances once per task, at termination
	state atomic.Int32

	resumeCh chan struct{}
	yieldCh  chan struct{}
	quitCh   chan struct{}

	// Engine-thread-only fields. The handoff protocol guarantees the
	// engine side and the fiber side never touch them concurrently.
	inject          error // delivered by the pending resume
	pending         error // deferred interrupt
	fatal           *api.ProgrammingError
	uninterruptible bool

	body    Body
	task    *Task
	locals  map[any]any
	joiners []joiner
}

type joiner struct {
	f   *fiber
	gen uint64
}

func newFiber(e *Engine, slot int) *fiber {
	f := &fiber{
		eng:      e,
		slot:     slot,
		resumeCh: make(chan struct{}),
		yieldCh:  make(chan struct{}),
		quitCh:   e.quitCh,
		locals:   make(map[any]any),
	}
	go f.loop()
	return f
}

// loop parks the fiber goroutine between bodies. One iteration executes one
// task from initial resume to termination; the fiber is then recycled.
func (f *fiber) loop() {
	for {
		select {
		case <-f.resumeCh:
		case <-f.quitCh:
			return
		}
		f.state.Store(int32(StateRunning))
		f.runBody()
		f.finish()
		f.yieldCh <- struct{}{}
	}
}

// runBody executes the assigned body, catching anything it throws at the
// outermost frame. An escaped failure terminates only this task; the engine
// and its thread keep running.
func (f *fiber) runBody() {
	defer func() {
		if r := recover(); r != nil {
			if pe, ok := r.(*api.ProgrammingError); ok {
				// Fatal misuse must not be reduced to a task failure.
				// Stash it; the resume path re-raises it on the
				// engine thread, where the misuse originated.
				f.fatal = pe
				return
			}
			f.eng.stats.uncaught.Add(1)
			f.eng.log.Error("task body panicked",
				zap.Int("slot", f.slot),
				zap.Uint64("gen", f.gen.Load()),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()
	ctx := context.WithValue(f.eng.baseCtx, fiberKey{}, f)
	if err := f.body(ctx); err != nil {
		if errors.Is(err, Interrupted) {
			f.eng.log.Warn("task cancelled", zap.Int("slot", f.slot))
			return
		}
		f.eng.stats.uncaught.Add(1)
		f.eng.log.Error("task body failed",
			zap.Int("slot", f.slot),
			zap.Uint64("gen", f.gen.Load()),
			zap.Error(err))
	}
}

// finish recycles the fiber: local storage is cleared and the generation
// advances before the fiber re-enters the free list, so a fiber taken from
// the pool is always in holding state with empty storage.
func (f *fiber) finish() {
	e := f.eng
	f.body = nil
	f.task = nil
	f.pending = nil
	f.uninterruptible = false
	clear(f.locals)
	for _, j := range f.joiners {
		e.readyPush(j.f, j.gen)
	}
	f.joiners = f.joiners[:0]
	f.gen.Add(1)
	f.state.Store(int32(StateTerminated))
	e.free = append(e.free, f)
	e.stats.recycled.Add(1)
}

// suspend is the raw suspension primitive: it hands control back to whoever
// resumed this fiber and blocks until the next resume. The returned error is
// the value injected by that resume (I/O failure, timeout, interrupt), or a
// deferred interrupt delivered at this point. Wakeups may be spurious;
// callers blocking on a condition must re-check it in a loop.
func (f *fiber) suspend() error {
	if !f.uninterruptible && f.pending != nil {
		err := f.pending
		f.pending = nil
		return err
	}
	f.state.Store(int32(StateSuspended))
	f.yieldCh <- struct{}{}
	<-f.resumeCh
	f.state.Store(int32(StateRunning))
	err := f.inject
	f.inject = nil
	if err == nil && !f.uninterruptible && f.pending != nil {
		err = f.pending
		f.pending = nil
	}
	return err
}
