// File: task/yield.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The suspension-point surface available to task bodies. Every function here
// is a suspension point; there is no implicit preemption anywhere else.

package task

import (
	"context"
	"time"

	"github.com/momentics/hioload-fiber/api"
)

// Yield pushes the calling task onto the ready queue and suspends it. The
// task resumes during the current or next idle-notification pass, after the
// tasks queued ahead of it.
func Yield(ctx context.Context) error {
	f := mustFiber(ctx, "yield")
	if !f.uninterruptible && f.pending != nil {
		err := f.pending
		f.pending = nil
		return err
	}
	f.eng.readyPush(f, f.gen.Load())
	return f.suspend()
}

// Await suspends the calling task without re-queuing it; something else
// (a timer, a primitive, another task's Wake) must resume it. This is the
// raw-yield underlying every blocking wait. Outside any fiber it pumps one
// driver iteration instead, since there is nothing to suspend.
func Await(ctx context.Context) error {
	if f := currentFiber(ctx); f != nil {
		return f.suspend()
	}
	e := EngineFrom(ctx)
	if e == nil {
		api.Misuse("await", "context carries neither a task nor an engine")
	}
	return e.Pump()
}

// AwaitUninterruptible suspends like Await but defers interrupt delivery
// until the task's next interruptible suspension point.
func AwaitUninterruptible(ctx context.Context) error {
	f := currentFiber(ctx)
	if f == nil {
		e := EngineFrom(ctx)
		if e == nil {
			api.Misuse("await", "context carries neither a task nor an engine")
		}
		return e.Pump()
	}
	f.uninterruptible = true
	err := f.suspend()
	f.uninterruptible = false
	return err
}

// Sleep arms a one-shot timer on the engine's driver and suspends until it
// fires. An interrupt cancels the timer and returns early.
func Sleep(ctx context.Context, d time.Duration) error {
	f := mustFiber(ctx, "sleep")
	e := f.eng
	fired := false
	tm := e.drv.NewTimer(func() { fired = true; f.task.Wake(nil) })
	tm.Set(d, false)
	for !fired {
		if err := f.suspend(); err != nil {
			tm.Cancel()
			return err
		}
	}
	return nil
}

func mustFiber(ctx context.Context, op string) *fiber {
	f := currentFiber(ctx)
	if f == nil {
		api.Misuse(op, "not inside a task")
	}
	return f
}
