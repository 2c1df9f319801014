// File: connpool/pool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A generic factory-backed pool of reusable resources. Resources are created
// lazily up to the concurrency bound and handed out exclusively: an entry
// with a nonzero live-reference count is never given to another
// LockConnection caller.

package connpool

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/task"
	"github.com/momentics/hioload-fiber/tasksync"
	"go.uber.org/zap"
)

// Factory creates one pooled resource. It runs inside a task and may
// suspend (dialing, handshakes); the pool's semaphore keeps concurrent
// creations within the bound.
type Factory[T any] func(ctx context.Context) (T, error)

// Pool is a bounded set of reusable resources shared between tasks on one
// engine. The concurrency-limiting semaphore slot acquired by LockConnection
// is released only when the last handle for the resource is dropped.
type Pool[T any] struct {
	factory Factory[T]
	sem     *tasksync.LocalTaskSemaphore
	entries []*entry[T]
	closer  func(T)
	log     *zap.Logger
	closed  bool

	created atomic.Int64
	inUse   atomic.Int64
}

type entry[T any] struct {
	res  T
	refs int
}

// Option configures a Pool.
type Option[T any] func(*Pool[T])

// WithCloser sets the teardown hook invoked on each resource when the pool
// closes.
func WithCloser[T any](fn func(T)) Option[T] {
	return func(p *Pool[T]) { p.closer = fn }
}

// WithLogger sets the pool's structured logger.
func WithLogger[T any](log *zap.Logger) Option[T] {
	return func(p *Pool[T]) {
		if log != nil {
			p.log = log
		}
	}
}

// New creates a pool creating at most maxConcurrency resources via factory.
func New[T any](factory Factory[T], maxConcurrency int, opts ...Option[T]) *Pool[T] {
	p := &Pool[T]{
		factory: factory,
		sem:     tasksync.NewLocalTaskSemaphore(maxConcurrency),
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// LockConnection returns a reference-counted handle to an idle resource,
// creating one when none is idle and capacity remains. It must run inside a
// task; the factory call is a legal suspension point. Blocks while all
// resources are in use.
func (p *Pool[T]) LockConnection(ctx context.Context) (*Locked[T], error) {
	if p.closed {
		return nil, api.ErrPoolClosed
	}
	if err := p.sem.Lock(ctx, 0); err != nil {
		return nil, err
	}
	// The pool may have closed while this caller was blocked at the bound;
	// the slot handed over by the releasing holder now guards a resource
	// that was already torn down.
	if p.closed {
		p.sem.Unlock()
		return nil, api.ErrPoolClosed
	}
	owner := task.Current(ctx)
	for _, en := range p.entries {
		if en.refs == 0 {
			en.refs = 1
			p.inUse.Add(1)
			return &Locked[T]{p: p, en: en, owner: owner}, nil
		}
	}
	res, err := p.factory(ctx)
	if err != nil {
		p.sem.Unlock()
		return nil, fmt.Errorf("connpool: factory failed: %w", err)
	}
	en := &entry[T]{res: res, refs: 1}
	p.entries = append(p.entries, en)
	p.created.Add(1)
	p.inUse.Add(1)
	return &Locked[T]{p: p, en: en, owner: owner}, nil
}

// Close marks the pool closed and tears down idle resources. In-use
// resources are torn down as their last handles are released.
func (p *Pool[T]) Close() {
	if p.closed {
		return
	}
	p.closed = true
	busy := 0
	for _, en := range p.entries {
		if en.refs > 0 {
			busy++
			continue
		}
		if p.closer != nil {
			p.closer(en.res)
		}
	}
	if busy > 0 {
		p.log.Warn("connection pool closed with resources still in use", zap.Int("in_use", busy))
	}
}

// Stats returns pool counters for control-plane polling.
func (p *Pool[T]) Stats() map[string]int64 {
	return map[string]int64{
		"resources_created": p.created.Load(),
		"resources_in_use":  p.inUse.Load(),
	}
}

// release drops one reference; the last drop returns the resource to the
// idle set and frees the semaphore slot.
func (p *Pool[T]) release(en *entry[T]) {
	en.refs--
	if en.refs > 0 {
		return
	}
	p.inUse.Add(-1)
	if p.closed {
		if p.closer != nil {
			p.closer(en.res)
		}
	}
	p.sem.Unlock()
}
