// File: workers/workers.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Worker distribution: a fixed set of OS threads, each hosting its own
// engine+driver pair, fed by one shared queue and per-thread private queues.

package workers

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/driver"
	"github.com/momentics/hioload-fiber/internal/affinity"
	"github.com/momentics/hioload-fiber/task"
	"go.uber.org/zap"
)

// Group is a fixed pool of worker threads. Submit places a body on the
// shared queue, consumed by whichever worker wakes first; Broadcast fans a
// body out to every worker's private queue.
type Group struct {
	log      *zap.Logger
	registry *driver.Registry
	workers  []*worker
	wg       sync.WaitGroup
	closed   atomic.Bool

	sharedMu sync.Mutex
	shared   *queue.Queue // task.Body
}

type worker struct {
	id    int
	name  string
	group *Group
	pin   bool

	privMu  sync.Mutex
	private *queue.Queue // task.Body

	exit atomic.Bool
	pair atomic.Pointer[driver.Pair]
}

// New creates and starts a worker group. Every worker locks itself to an OS
// thread, lazily acquires its driver+engine pair from the registry, and
// tears the pair down at thread exit.
func New(opts ...Option) *Group {
	cfg := options{
		count: runtime.GOMAXPROCS(0),
		log:   zap.NewNop(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	g := &Group{
		log:    cfg.log,
		shared: queue.New(),
	}
	if cfg.registry != nil {
		g.registry = cfg.registry
	} else {
		g.registry = driver.NewRegistry(defaultFactory(cfg.log))
	}
	for i := 0; i < cfg.count; i++ {
		w := &worker{
			id:      i,
			name:    fmt.Sprintf("worker-%d", i),
			group:   g,
			pin:     cfg.pin,
			private: queue.New(),
		}
		g.workers = append(g.workers, w)
	}
	for _, w := range g.workers {
		g.wg.Add(1)
		go w.run()
	}
	return g
}

// Size returns the number of worker threads.
func (g *Group) Size() int { return len(g.workers) }

// Submit enqueues body onto the shared queue. Exactly one worker will spawn
// it as a task.
func (g *Group) Submit(body task.Body) error {
	if g.closed.Load() {
		return api.ErrWorkersClosed
	}
	g.sharedMu.Lock()
	g.shared.Add(body)
	g.sharedMu.Unlock()
	g.wakeAll()
	return nil
}

// Broadcast enqueues body onto every worker's private queue. Each worker
// spawns its own task from it.
func (g *Group) Broadcast(body task.Body) error {
	if g.closed.Load() {
		return api.ErrWorkersClosed
	}
	for _, w := range g.workers {
		w.privMu.Lock()
		w.private.Add(body)
		w.privMu.Unlock()
	}
	g.wakeAll()
	return nil
}

// Shutdown sets every worker's exit flag, wakes them, and waits for the
// threads to finish. Undrained work is logged, never silently dropped.
func (g *Group) Shutdown(ctx context.Context) error {
	if !g.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, w := range g.workers {
		w.exit.Store(true)
	}
	g.wakeAll()
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	g.sharedMu.Lock()
	leftover := g.shared.Length()
	g.sharedMu.Unlock()
	if leftover > 0 {
		g.log.Warn("worker group shut down with shared work queued", zap.Int("queued", leftover))
	}
	return nil
}

// Stats merges per-worker engine counters, keyed by worker name.
func (g *Group) Stats() map[string]map[string]int64 {
	out := make(map[string]map[string]int64, len(g.workers))
	for _, w := range g.workers {
		if p := w.pair.Load(); p != nil {
			out[w.name] = p.Engine.Stats()
		}
	}
	return out
}

func (g *Group) wakeAll() {
	for _, w := range g.workers {
		if p := w.pair.Load(); p != nil {
			p.Engine.Kick()
		}
	}
}

// run is the worker thread body: pinned to its OS thread, it alternates
// between spawning queued work and pumping its driver, blocking in the
// driver until new work or an I/O event arrives.
func (w *worker) run() {
	defer w.group.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if w.pin {
		if err := affinity.Pin(w.id); err != nil {
			w.group.log.Debug("worker pinning unavailable", zap.String("worker", w.name), zap.Error(err))
		}
	}
	pair := w.group.registry.Acquire(w.name)
	w.pair.Store(pair)
	defer w.group.registry.Release(w.name)

	for !w.exit.Load() {
		w.spawnQueued(pair.Engine)
		if err := pair.Engine.Pump(); err != nil {
			w.group.log.Error("worker loop failed", zap.String("worker", w.name), zap.Error(err))
			break
		}
	}

	// Final drain: spawn whatever is already queued so shutdown does not
	// strand accepted work, then warn about anything left beyond that.
	w.spawnQueued(pair.Engine)
	pair.Engine.NotifyIdle()
	w.privMu.Lock()
	stranded := w.private.Length()
	w.privMu.Unlock()
	if stranded > 0 {
		w.group.log.Warn("worker exiting with private work queued",
			zap.String("worker", w.name), zap.Int("queued", stranded))
	}
}

// spawnQueued drains the private then the shared queue, spawning each body.
// Spawn runs the body synchronously up to its first suspension point.
func (w *worker) spawnQueued(e *task.Engine) {
	for {
		w.privMu.Lock()
		var body task.Body
		if w.private.Length() > 0 {
			body = w.private.Remove().(task.Body)
		}
		w.privMu.Unlock()
		if body == nil {
			break
		}
		e.Spawn(body)
	}
	for {
		g := w.group
		g.sharedMu.Lock()
		var body task.Body
		if g.shared.Length() > 0 {
			body = g.shared.Remove().(task.Body)
		}
		g.sharedMu.Unlock()
		if body == nil {
			break
		}
		e.Spawn(body)
	}
}
