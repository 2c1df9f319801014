// File: control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics registry for the fiber core. Engines, pools and worker
// groups register snapshot sources; pollers and exporters read them without
// touching scheduling state.

package control

import (
	"sync"
	"time"
)

// Source yields a point-in-time snapshot of counters. Implementations must
// be safe to call from any thread; engine and pool Stats methods qualify.
type Source func() map[string]int64

// MetricsRegistry holds named snapshot sources.
type MetricsRegistry struct {
	mu      sync.RWMutex
	sources map[string]Source
	updated time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		sources: make(map[string]Source),
	}
}

// Register adds or replaces a source under name.
func (mr *MetricsRegistry) Register(name string, src Source) {
	mr.mu.Lock()
	mr.sources[name] = src
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Unregister removes a source.
func (mr *MetricsRegistry) Unregister(name string) {
	mr.mu.Lock()
	delete(mr.sources, name)
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Snapshot polls every source and returns the merged counters by source
// name.
func (mr *MetricsRegistry) Snapshot() map[string]map[string]int64 {
	mr.mu.RLock()
	srcs := make(map[string]Source, len(mr.sources))
	for name, src := range mr.sources {
		srcs[name] = src
	}
	mr.mu.RUnlock()
	out := make(map[string]map[string]int64, len(srcs))
	for name, src := range srcs {
		out[name] = src()
	}
	return out
}

// Updated returns the time of the last registration change.
func (mr *MetricsRegistry) Updated() time.Time {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.updated
}
