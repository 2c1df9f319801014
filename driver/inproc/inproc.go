// File: driver/inproc/inproc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reference in-process driver: heap-based timers and cross-thread triggers,
// no OS descriptors. It backs the worker threads and the test suites; the
// socket/file capability surface is rejected with ErrNotSupported, matching
// the contract-only scope of OS backends.

package inproc

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/momentics/hioload-fiber/api"
	"go.uber.org/zap"
)

// errStopped signals that pump was interrupted by the run-loop's stop
// channel rather than by work arriving.
var errStopped = errors.New("inproc: pump stopped")

// Driver is a single-threaded event driver. Run, Pump and Poll must all be
// called from the owning thread; Trigger.Fire and Close are thread-safe.
type Driver struct {
	log  *zap.Logger
	core api.Core

	mu     sync.Mutex
	timers timerHeap
	spikes []*trigger // fired triggers awaiting dispatch
	seq    uint64
	closed bool

	kick chan struct{}
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger for run-loop failures.
func WithLogger(log *zap.Logger) Option {
	return func(d *Driver) {
		if log != nil {
			d.log = log
		}
	}
}

// New creates an unbound driver.
func New(opts ...Option) *Driver {
	d := &Driver{
		log:  zap.NewNop(),
		kick: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Bind implements api.Driver.
func (d *Driver) Bind(core api.Core) {
	if d.core != nil {
		api.Misuse("bind", "driver already bound")
	}
	d.core = core
}

// Pump implements api.Driver: one blocking iteration. The engine drains its
// ready queue first; the driver then sleeps until the next timer deadline or
// trigger fire and dispatches everything due.
func (d *Driver) Pump() error {
	return d.pump(nil)
}

func (d *Driver) pump(stop <-chan struct{}) error {
	if d.core != nil {
		d.core.NotifyIdle()
	}
	for {
		ran, err := d.dispatch()
		if err != nil || ran {
			return err
		}
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return api.ErrDriverClosed
		}
		var deadline *time.Timer
		var deadlineC <-chan time.Time
		if d.timers.Len() > 0 {
			wait := time.Until(d.timers[0].when)
			if wait <= 0 {
				d.mu.Unlock()
				continue
			}
			deadline = time.NewTimer(wait)
			deadlineC = deadline.C
		}
		d.mu.Unlock()

		select {
		case <-d.kick:
		case <-deadlineC:
		case <-stop:
			if deadline != nil && !deadline.Stop() {
				<-deadline.C
			}
			return errStopped
		}
		if deadline != nil && !deadline.Stop() {
			select {
			case <-deadline.C:
			default:
			}
		}
	}
}

// Poll implements api.Driver: a non-blocking pass dispatching anything
// already due. It reports whether any callback ran.
func (d *Driver) Poll() (bool, error) {
	return d.dispatch()
}

// dispatch runs every due timer and fired trigger. Callbacks execute outside
// the driver lock, on the owning thread; a callback panic is contained and
// surfaced as the loop error.
func (d *Driver) dispatch() (ran bool, err error) {
	now := time.Now()
	var fns []func()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false, api.ErrDriverClosed
	}
	for d.timers.Len() > 0 && !d.timers[0].when.After(now) {
		tm := d.timers[0]
		if tm.period > 0 {
			tm.when = now.Add(tm.period)
			heap.Fix(&d.timers, 0)
		} else {
			heap.Pop(&d.timers)
			tm.idx = -1
		}
		fns = append(fns, tm.fn)
	}
	spikes := d.spikes
	d.spikes = nil
	for _, tr := range spikes {
		tr.queued = false
		if !tr.closed {
			fns = append(fns, tr.fn)
		}
	}
	d.mu.Unlock()

	for _, fn := range fns {
		if err := d.safely(fn); err != nil {
			return true, err
		}
	}
	return len(fns) > 0, nil
}

func (d *Driver) safely(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if pe, ok := r.(*api.ProgrammingError); ok {
				panic(pe)
			}
			err = fmt.Errorf("inproc: callback panicked: %v", r)
			d.log.Error("driver callback panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
	return nil
}

// Run implements api.Driver: the blocking loop. Loop failures are logged
// and surfaced to the caller; cancellation and Close exit cleanly.
func (d *Driver) Run(ctx context.Context) error {
	for {
		err := d.pump(ctx.Done())
		switch {
		case err == nil:
		case errors.Is(err, errStopped):
			return nil
		case errors.Is(err, api.ErrDriverClosed):
			return nil
		default:
			d.log.Error("driver loop failed", zap.Error(err))
			return err
		}
	}
}

// NewTimer implements api.Driver.
func (d *Driver) NewTimer(fn func()) api.Timer {
	return &timer{d: d, fn: fn, idx: -1}
}

// NewTrigger implements api.Driver.
func (d *Driver) NewTrigger(fn func()) api.Trigger {
	return &trigger{d: d, fn: fn}
}

// Close implements api.Driver. Pending timers and triggers are dropped;
// a blocked Pump returns ErrDriverClosed.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.timers = nil
	d.spikes = nil
	d.mu.Unlock()
	d.kickLoop()
	return nil
}

func (d *Driver) kickLoop() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// Capability surface: no OS reach from the in-process driver.

func (d *Driver) OpenFile(string, int) (uintptr, error)  { return 0, api.ErrNotSupported }
func (d *Driver) DialTCP(string) (uintptr, error)        { return 0, api.ErrNotSupported }
func (d *Driver) ListenTCP(string) (uintptr, error)      { return 0, api.ErrNotSupported }
func (d *Driver) ListenUDP(string) (uintptr, error)      { return 0, api.ErrNotSupported }
func (d *Driver) Resolve(context.Context, string) ([]net.IP, error) {
	return nil, api.ErrNotSupported
}
func (d *Driver) WatchDir(string, func(string)) (api.Watch, error) {
	return nil, api.ErrNotSupported
}

var _ api.Driver = (*Driver)(nil)
