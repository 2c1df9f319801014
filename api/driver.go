// File: api/driver.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Abstract event-driver contract. One Driver instance exists per OS thread;
// the task engine multiplexes its fibers atop exactly one Driver.

package api

import (
	"context"
	"net"
	"time"
)

// Driver is the event loop abstraction the task engine is built on.
//
// A Driver is single-threaded: Run, Pump, Poll and timer dispatch all happen
// on the owning OS thread. The only methods that may be called from other
// threads are Trigger.Fire and Close.
type Driver interface {
	// Bind attaches the engine callback surface. Must be called once,
	// before the first Pump/Poll/Run.
	Bind(core Core)

	// Run executes the blocking event loop until ctx is cancelled or the
	// driver is closed. Failures inside the loop are logged and surfaced
	// as a non-nil return, never swallowed.
	Run(ctx context.Context) error

	// Pump blocks for exactly one loop iteration: it lets the engine drain
	// its ready queue, waits for the next timer or trigger, and dispatches
	// whatever became due.
	Pump() error

	// Poll performs one non-blocking pass, dispatching anything already
	// due. It reports whether any callback was dispatched.
	Poll() (bool, error)

	// NewTimer creates an unarmed timer that invokes fn on the driver
	// thread when it fires.
	NewTimer(fn func()) Timer

	// NewTrigger creates a manual event source. Fire may be called from
	// any thread; fn runs on the driver thread during the next iteration.
	NewTrigger(fn func()) Trigger

	// Capability surface consumed by outer protocol layers. Drivers that
	// do not reach the OS return ErrNotSupported.
	OpenFile(path string, flags int) (uintptr, error)
	DialTCP(addr string) (uintptr, error)
	ListenTCP(addr string) (uintptr, error)
	ListenUDP(addr string) (uintptr, error)
	Resolve(ctx context.Context, host string) ([]net.IP, error)
	WatchDir(path string, fn func(name string)) (Watch, error)

	// Close tears the driver down and releases its resources. Pending
	// timers and triggers are dropped.
	Close() error
}

// Timer is a one-shot or periodic timer owned by a Driver.
type Timer interface {
	// Set arms the timer to fire after d, rearming itself when periodic.
	// Re-arming an armed timer replaces the previous deadline.
	Set(d time.Duration, periodic bool)

	// Cancel disarms the timer. A cancelled registration never fires;
	// cancelling an inert timer is a no-op.
	Cancel()
}

// Trigger is a manually fired event source, safe to fire across threads.
type Trigger interface {
	// Fire requests one callback dispatch on the driver thread. Multiple
	// fires before dispatch may coalesce into a single callback.
	Fire()

	// Close detaches the trigger; subsequent fires are ignored.
	Close()
}

// Watch is an active directory watch registration.
type Watch interface {
	Close() error
}

// Core is the narrow callback surface a Driver uses to re-enter the task
// engine. Task resumption itself travels through the closures handed to
// NewTimer and NewTrigger; Core only schedules cooperative work.
type Core interface {
	// NotifyIdle drains the engine's ready queue to exhaustion, giving
	// every cooperatively yielded task a chance to run. Drivers must call
	// it before every blocking wait.
	NotifyIdle()
}
