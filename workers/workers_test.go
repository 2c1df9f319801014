package workers_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/task"
	"github.com/momentics/hioload-fiber/workers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for workers")
	}
}

func TestSubmit_RunsExactlyOnce(t *testing.T) {
	g := workers.New(workers.WithCount(3))
	defer g.Shutdown(context.Background())

	var runs atomic.Int32
	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, g.Submit(func(ctx context.Context) error {
		runs.Add(1)
		wg.Done()
		return nil
	}))
	waitFor(t, &wg)
	assert.Equal(t, int32(1), runs.Load())
}

func TestSubmit_DistributesAcrossWorkers(t *testing.T) {
	g := workers.New(workers.WithCount(2))
	defer g.Shutdown(context.Background())

	const jobs = 50
	var runs atomic.Int32
	var wg sync.WaitGroup
	wg.Add(jobs)
	for i := 0; i < jobs; i++ {
		require.NoError(t, g.Submit(func(ctx context.Context) error {
			runs.Add(1)
			wg.Done()
			return nil
		}))
	}
	waitFor(t, &wg)
	assert.Equal(t, int32(jobs), runs.Load())
}

func TestBroadcast_RunsOnEveryWorker(t *testing.T) {
	const count = 3
	g := workers.New(workers.WithCount(count))
	defer g.Shutdown(context.Background())

	var mu sync.Mutex
	engines := make(map[*task.Engine]struct{})
	var wg sync.WaitGroup
	wg.Add(count)
	require.NoError(t, g.Broadcast(func(ctx context.Context) error {
		mu.Lock()
		engines[task.EngineFrom(ctx)] = struct{}{}
		mu.Unlock()
		wg.Done()
		return nil
	}))
	waitFor(t, &wg)
	assert.Len(t, engines, count, "each worker must spawn its own copy")
}

func TestWorkerTasks_MaySuspendAndResume(t *testing.T) {
	g := workers.New(workers.WithCount(1))
	defer g.Shutdown(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	var slept atomic.Bool
	require.NoError(t, g.Submit(func(ctx context.Context) error {
		defer wg.Done()
		if err := task.Sleep(ctx, 5*time.Millisecond); err != nil {
			return err
		}
		slept.Store(true)
		return nil
	}))
	waitFor(t, &wg)
	assert.True(t, slept.Load())
}

func TestShutdown_RejectsFurtherWork(t *testing.T) {
	g := workers.New(workers.WithCount(1))
	require.NoError(t, g.Shutdown(context.Background()))
	assert.ErrorIs(t, g.Submit(func(ctx context.Context) error { return nil }), api.ErrWorkersClosed)
	assert.ErrorIs(t, g.Broadcast(func(ctx context.Context) error { return nil }), api.ErrWorkersClosed)
	require.NoError(t, g.Shutdown(context.Background()), "repeated shutdown is a no-op")
}

func TestShutdown_DrainsAcceptedWork(t *testing.T) {
	g := workers.New(workers.WithCount(1))
	var runs atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, g.Submit(func(ctx context.Context) error {
			runs.Add(1)
			return nil
		}))
	}
	require.NoError(t, g.Shutdown(context.Background()))
	assert.Equal(t, int32(10), runs.Load(), "accepted work must run before the threads exit")
}

func TestGroup_SizeAndStats(t *testing.T) {
	g := workers.New(workers.WithCount(2))
	defer g.Shutdown(context.Background())
	assert.Equal(t, 2, g.Size())

	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, g.Submit(func(ctx context.Context) error {
		wg.Done()
		return nil
	}))
	waitFor(t, &wg)
	stats := g.Stats()
	var spawned int64
	for _, counters := range stats {
		spawned += counters["tasks_spawned"]
	}
	assert.GreaterOrEqual(t, spawned, int64(1))
}
