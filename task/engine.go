// File: task/engine.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The fiber engine: spawn, cooperative scheduling, cross-thread wakes and
// the idle-notification loop. One Engine exists per OS thread, paired with
// exactly one driver; every method except wake must run on that thread.

package task

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-fiber/api"
	"go.uber.org/zap"
)

// Engine multiplexes cooperative tasks atop one event driver.
type Engine struct {
	drv    api.Driver
	log    *zap.Logger
	idleFn func() bool

	baseCtx context.Context

	// Engine-thread-only scheduling state.
	ready   *queue.Queue // readyEntry FIFO of voluntarily yielded fibers
	free    []*fiber
	all     []*fiber
	current *fiber
	quitCh  chan struct{}
	closed  bool

	// Cross-thread wake requests, drained on the engine thread.
	extMu    sync.Mutex
	extQ     []extWake
	wakeTrig api.Trigger

	stats engineStats
}

type readyEntry struct {
	f   *fiber
	gen uint64
}

type extWake struct {
	f   *fiber
	gen uint64
	err error
}

// All counters are atomics so control-plane pollers may read them from any
// thread without touching engine scheduling state.
type engineStats struct {
	spawned    atomic.Int64
	recycled   atomic.Int64
	uncaught   atomic.Int64
	interrupts atomic.Int64
	extWakes   atomic.Int64
	allocated  atomic.Int64
	readyLen   atomic.Int64
}

// NewEngine creates an engine bound to drv and registers itself as the
// driver's callback core. The caller owns both and must run them on one
// OS thread.
func NewEngine(drv api.Driver, opts ...Option) *Engine {
	e := &Engine{
		drv:     drv,
		log:     zap.NewNop(),
		ready:   queue.New(),
		quitCh:  make(chan struct{}),
		baseCtx: context.Background(),
	}
	for _, o := range opts {
		o(e)
	}
	e.baseCtx = context.WithValue(e.baseCtx, engineKey{}, e)
	e.wakeTrig = drv.NewTrigger(e.drainExternal)
	drv.Bind(e)
	return e
}

// Driver returns the event driver this engine is bound to.
func (e *Engine) Driver() api.Driver { return e.drv }

// Spawn assigns body to a fiber (reusing one from the free list when
// possible) and performs the initial resume immediately: the body runs
// synchronously up to its first suspension point before Spawn returns.
func (e *Engine) Spawn(body Body) *Task {
	if e.closed {
		api.Misuse("spawn", "engine is closed")
	}
	f := e.obtain()
	f.body = body
	t := &Task{f: f, gen: f.gen.Load()}
	f.task = t
	e.stats.spawned.Add(1)
	e.resume(f, nil)
	return t
}

func (e *Engine) obtain() *fiber {
	if n := len(e.free); n > 0 {
		f := e.free[n-1]
		e.free = e.free[:n-1]
		f.state.Store(int32(StateHolding))
		return f
	}
	f := newFiber(e, len(e.all))
	e.all = append(e.all, f)
	e.stats.allocated.Add(1)
	return f
}

// resume transfers control into the fiber and blocks until it suspends or
// terminates. Legal only while the target is holding (initial resume) or
// suspended; anything else is fatal misuse.
func (e *Engine) resume(f *fiber, inject error) {
	switch State(f.state.Load()) {
	case StateHolding, StateSuspended:
	default:
		api.Misuse("resume", "fiber slot %d is %s, not resumable", f.slot, State(f.state.Load()))
	}
	prev := e.current
	e.current = f
	f.inject = inject
	f.resumeCh <- struct{}{}
	<-f.yieldCh
	e.current = prev
	if f.fatal != nil {
		pe := f.fatal
		f.fatal = nil
		panic(pe)
	}
}

// readyPush queues a fiber for cooperative re-scheduling during the next
// idle-notification pass.
func (e *Engine) readyPush(f *fiber, gen uint64) {
	e.ready.Add(readyEntry{f: f, gen: gen})
	e.stats.readyLen.Add(1)
}

// NotifyIdle implements api.Core. It repeatedly drains the ready queue to
// exhaustion (a resumed task may re-yield, re-queuing itself), then invokes
// the idle callback, looping while the callback requests another pass. Only
// after it returns may the driver block.
func (e *Engine) NotifyIdle() {
	for {
		e.drainExternal()
		for e.ready.Length() > 0 {
			ent := e.ready.Remove().(readyEntry)
			e.stats.readyLen.Add(-1)
			if ent.f.gen.Load() != ent.gen {
				continue // task already terminated, entry is stale
			}
			e.resume(ent.f, nil)
			e.drainExternal()
		}
		if e.idleFn == nil || !e.idleFn() {
			return
		}
	}
}

// wake schedules a resume from any thread. Error-carrying wakes must
// originate on the owning thread (timers, interrupts); cross-thread wakes
// carry nil and may surface as spurious resumes.
func (e *Engine) wake(f *fiber, gen uint64, err error) {
	e.extMu.Lock()
	if f.gen.Load() != gen {
		e.extMu.Unlock()
		return
	}
	e.extQ = append(e.extQ, extWake{f: f, gen: gen, err: err})
	e.extMu.Unlock()
	e.stats.extWakes.Add(1)
	e.wakeTrig.Fire()
}

// drainExternal runs on the engine thread (as the wake trigger callback and
// at idle-notification entry) and resumes every queued wake target.
func (e *Engine) drainExternal() {
	for {
		e.extMu.Lock()
		if len(e.extQ) == 0 {
			e.extMu.Unlock()
			return
		}
		w := e.extQ[0]
		e.extQ = e.extQ[1:]
		e.extMu.Unlock()
		if w.f.gen.Load() != w.gen {
			continue // terminated between wake and drain
		}
		if State(w.f.state.Load()) != StateSuspended {
			continue
		}
		e.resume(w.f, w.err)
	}
}

func (f *fiber) wakeQueued() bool {
	e := f.eng
	e.extMu.Lock()
	defer e.extMu.Unlock()
	for _, w := range e.extQ {
		if w.f == f {
			return true
		}
	}
	return false
}

// Kick wakes the engine's driver from any thread without resuming any
// particular task. Non-fiber waiters blocked in Pump rely on this.
func (e *Engine) Kick() { e.wakeTrig.Fire() }

// Pump runs exactly one driver iteration. It is the outside-any-fiber arm of
// the dual-mode suspend: with no fiber to suspend, blocking waits pump the
// reactor instead.
func (e *Engine) Pump() error { return e.drv.Pump() }

// Run executes the driver's blocking loop until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error { return e.drv.Run(ctx) }

// SetTimer arms a timer on the engine's driver. The callback runs on the
// engine thread and may spawn or wake tasks.
func (e *Engine) SetTimer(d time.Duration, fn func(), periodic bool) api.Timer {
	tm := e.drv.NewTimer(fn)
	tm.Set(d, periodic)
	return tm
}

// Close unwinds live tasks by delivering Interrupted at their suspension
// points, then releases the parked fiber goroutines. Tasks that keep
// re-suspending are abandoned with a warning.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	for _, f := range e.all {
		for attempt := 0; State(f.state.Load()) == StateSuspended; attempt++ {
			if attempt == 64 {
				e.log.Warn("abandoning task that will not unwind", zap.Int("slot", f.slot))
				break
			}
			e.resume(f, Interrupted)
		}
	}
	close(e.quitCh)
	e.wakeTrig.Close()
}

// Stats returns basic engine counters.
func (e *Engine) Stats() map[string]int64 {
	return map[string]int64{
		"tasks_spawned":    e.stats.spawned.Load(),
		"fibers_recycled":  e.stats.recycled.Load(),
		"uncaught_errors":  e.stats.uncaught.Load(),
		"interrupts":       e.stats.interrupts.Load(),
		"external_wakes":   e.stats.extWakes.Load(),
		"fibers_allocated": e.stats.allocated.Load(),
		"ready_length":     e.stats.readyLen.Load(),
	}
}
