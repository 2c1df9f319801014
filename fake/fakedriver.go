// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// Package fake provides test doubles for the driver contract. FakeDriver
// records timer and trigger registrations and lets tests fire them by hand,
// so engine behavior can be checked without a real event loop.
package fake

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/momentics/hioload-fiber/api"
)

// FakeDriver is a hand-cranked api.Driver. Pump and Poll dispatch only what
// the test fired explicitly; nothing blocks.
type FakeDriver struct {
	mu     sync.Mutex
	core   api.Core
	timers []*FakeTimer
	queued []func()
	Pumps  int
}

// NewFakeDriver creates an empty fake driver.
func NewFakeDriver() *FakeDriver { return &FakeDriver{} }

func (d *FakeDriver) Bind(core api.Core) { d.core = core }

// Pump dispatches queued trigger fires after the usual idle notification.
func (d *FakeDriver) Pump() error {
	d.Pumps++
	if d.core != nil {
		d.core.NotifyIdle()
	}
	d.dispatch()
	return nil
}

// Poll dispatches queued trigger fires without idle notification.
func (d *FakeDriver) Poll() (bool, error) {
	d.mu.Lock()
	n := len(d.queued)
	d.mu.Unlock()
	d.dispatch()
	return n > 0, nil
}

func (d *FakeDriver) dispatch() {
	for {
		d.mu.Lock()
		if len(d.queued) == 0 {
			d.mu.Unlock()
			return
		}
		fn := d.queued[0]
		d.queued = d.queued[1:]
		d.mu.Unlock()
		fn()
	}
}

func (d *FakeDriver) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// NewTimer records and returns a FakeTimer the test can fire.
func (d *FakeDriver) NewTimer(fn func()) api.Timer {
	tm := &FakeTimer{fn: fn}
	d.mu.Lock()
	d.timers = append(d.timers, tm)
	d.mu.Unlock()
	return tm
}

// Timers returns every timer created so far.
func (d *FakeDriver) Timers() []*FakeTimer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*FakeTimer(nil), d.timers...)
}

func (d *FakeDriver) NewTrigger(fn func()) api.Trigger {
	return &fakeTrigger{d: d, fn: fn}
}

func (d *FakeDriver) Close() error { return nil }

func (d *FakeDriver) OpenFile(string, int) (uintptr, error) { return 0, api.ErrNotSupported }
func (d *FakeDriver) DialTCP(string) (uintptr, error)       { return 0, api.ErrNotSupported }
func (d *FakeDriver) ListenTCP(string) (uintptr, error)     { return 0, api.ErrNotSupported }
func (d *FakeDriver) ListenUDP(string) (uintptr, error)     { return 0, api.ErrNotSupported }
func (d *FakeDriver) Resolve(context.Context, string) ([]net.IP, error) {
	return nil, api.ErrNotSupported
}
func (d *FakeDriver) WatchDir(string, func(string)) (api.Watch, error) {
	return nil, api.ErrNotSupported
}

var _ api.Driver = (*FakeDriver)(nil)

// FakeTimer records its arming state; tests call Fire to run the callback.
type FakeTimer struct {
	fn        func()
	Armed     bool
	Duration  time.Duration
	Periodic  bool
	Cancelled bool
}

func (t *FakeTimer) Set(d time.Duration, periodic bool) {
	t.Armed = true
	t.Cancelled = false
	t.Duration = d
	t.Periodic = periodic
}

func (t *FakeTimer) Cancel() {
	t.Armed = false
	t.Cancelled = true
}

// Fire invokes the callback as the driver thread would.
func (t *FakeTimer) Fire() {
	if !t.Periodic {
		t.Armed = false
	}
	t.fn()
}

type fakeTrigger struct {
	d  *FakeDriver
	fn func()
}

func (t *fakeTrigger) Fire() {
	t.d.mu.Lock()
	t.d.queued = append(t.d.queued, t.fn)
	t.d.mu.Unlock()
}

func (t *fakeTrigger) Close() {}
