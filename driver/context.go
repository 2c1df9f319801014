// File: driver/context.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-OS-thread driver+engine pairs. Exactly one pair exists per thread,
// lazily constructed on first use and torn down explicitly at thread exit.
// The registry is an injected runtime object, not a hidden global.

package driver

import (
	"sync"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/task"
)

// Pair is one OS thread's event driver and its fiber engine.
type Pair struct {
	Driver api.Driver
	Engine *task.Engine
}

// Factory builds the driver for a thread and the engine options to pair
// with it.
type Factory func(name string) (api.Driver, []task.Option)

// Registry tracks the driver+engine pair of every participating thread,
// keyed by thread name. All methods are safe for concurrent use; the pairs
// themselves remain single-threaded.
type Registry struct {
	mu      sync.Mutex
	pairs   map[string]*Pair
	factory Factory
}

// NewRegistry creates an empty registry constructing pairs via factory.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		pairs:   make(map[string]*Pair),
		factory: factory,
	}
}

// Acquire returns the pair for name, constructing it lazily on first use.
// The caller must be the thread the pair will live on.
func (r *Registry) Acquire(name string) *Pair {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pairs[name]; ok {
		return p
	}
	drv, opts := r.factory(name)
	p := &Pair{Driver: drv, Engine: task.NewEngine(drv, opts...)}
	r.pairs[name] = p
	return p
}

// Release tears down the pair for name: live tasks are unwound, the driver
// is closed, and the slot is removed. Must run on the owning thread, at
// thread exit.
func (r *Registry) Release(name string) {
	r.mu.Lock()
	p, ok := r.pairs[name]
	delete(r.pairs, name)
	r.mu.Unlock()
	if !ok {
		return
	}
	p.Engine.Close()
	_ = p.Driver.Close()
}

// Names returns the currently registered thread names.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.pairs))
	for name := range r.pairs {
		out = append(out, name)
	}
	return out
}
