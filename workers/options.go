// File: workers/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package workers

import (
	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/driver"
	"github.com/momentics/hioload-fiber/driver/inproc"
	"github.com/momentics/hioload-fiber/task"
	"go.uber.org/zap"
)

type options struct {
	count    int
	pin      bool
	log      *zap.Logger
	registry *driver.Registry
}

// Option configures a worker Group.
type Option func(*options)

// WithCount sets the number of worker threads. Default is GOMAXPROCS.
func WithCount(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.count = n
		}
	}
}

// WithPinning pins each worker thread to a logical CPU where the platform
// supports it.
func WithPinning(pin bool) Option {
	return func(o *options) { o.pin = pin }
}

// WithLogger sets the group's structured logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithRegistry injects the per-thread driver registry, letting callers
// supply OS-backed drivers. Default is a registry of in-process drivers.
func WithRegistry(r *driver.Registry) Option {
	return func(o *options) { o.registry = r }
}

func defaultFactory(log *zap.Logger) driver.Factory {
	return func(name string) (api.Driver, []task.Option) {
		return inproc.New(inproc.WithLogger(log)),
			[]task.Option{task.WithLogger(log.With(zap.String("worker", name)))}
	}
}
