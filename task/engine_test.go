package task_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/driver/inproc"
	"github.com/momentics/hioload-fiber/fake"
	"github.com/momentics/hioload-fiber/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, opts ...task.Option) *task.Engine {
	t.Helper()
	drv := inproc.New()
	e := task.NewEngine(drv, opts...)
	t.Cleanup(func() {
		e.Close()
	})
	return e
}

// pumpUntil drives the engine's loop until cond holds. A fine-grained
// periodic timer keeps Pump from blocking indefinitely on a bug.
func pumpUntil(t *testing.T, e *task.Engine, cond func() bool) {
	t.Helper()
	tick := e.SetTimer(time.Millisecond, func() {}, true)
	defer tick.Cancel()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		require.False(t, time.Now().After(deadline), "timed out waiting for condition")
		require.NoError(t, e.Pump())
	}
}

func TestSpawn_RunsBodySynchronously(t *testing.T) {
	e := newEngine(t)
	var trace []string
	tk := e.Spawn(func(ctx context.Context) error {
		trace = append(trace, "before yield")
		if err := task.Yield(ctx); err != nil {
			return err
		}
		trace = append(trace, "after yield")
		return nil
	})
	// The body must have run up to its first suspension point already.
	require.Equal(t, []string{"before yield"}, trace)
	require.False(t, tk.Done())
	require.Equal(t, task.StateSuspended, tk.State())

	e.NotifyIdle()
	assert.Equal(t, []string{"before yield", "after yield"}, trace)
	assert.True(t, tk.Done())
}

func TestYield_ResumesInSpawnOrder(t *testing.T) {
	e := newEngine(t)
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		e.Spawn(func(ctx context.Context) error {
			if err := task.Yield(ctx); err != nil {
				return err
			}
			order = append(order, i)
			return nil
		})
	}
	e.NotifyIdle()
	assert.Equal(t, []int{0, 1, 2}, order, "one idle pass must resume yielded tasks FIFO")
}

func TestSleep_ArmsDriverTimer(t *testing.T) {
	drv := fake.NewFakeDriver()
	e := task.NewEngine(drv)
	done := false
	e.Spawn(func(ctx context.Context) error {
		if err := task.Sleep(ctx, 50*time.Millisecond); err != nil {
			return err
		}
		done = true
		return nil
	})
	timers := drv.Timers()
	require.Len(t, timers, 1)
	require.True(t, timers[0].Armed)
	require.Equal(t, 50*time.Millisecond, timers[0].Duration)
	require.False(t, done)

	timers[0].Fire()
	require.NoError(t, drv.Pump())
	assert.True(t, done)
}

func TestSleep_RealTimer(t *testing.T) {
	e := newEngine(t)
	var woke time.Time
	start := time.Now()
	tk := e.Spawn(func(ctx context.Context) error {
		if err := task.Sleep(ctx, 20*time.Millisecond); err != nil {
			return err
		}
		woke = time.Now()
		return nil
	})
	pumpUntil(t, e, tk.Done)
	assert.GreaterOrEqual(t, woke.Sub(start), 20*time.Millisecond)
}

func TestJoin_OutsideAnyFiberPumpsDriver(t *testing.T) {
	e := newEngine(t)
	tk := e.Spawn(func(ctx context.Context) error {
		return task.Sleep(ctx, 5*time.Millisecond)
	})
	ctx := task.WithEngine(context.Background(), e)
	require.NoError(t, tk.Join(ctx))
	assert.True(t, tk.Done())
}

func TestJoin_FromAnotherTask(t *testing.T) {
	e := newEngine(t)
	var finished []string
	slow := e.Spawn(func(ctx context.Context) error {
		if err := task.Sleep(ctx, 5*time.Millisecond); err != nil {
			return err
		}
		finished = append(finished, "slow")
		return nil
	})
	joiner := e.Spawn(func(ctx context.Context) error {
		if err := slow.Join(ctx); err != nil {
			return err
		}
		finished = append(finished, "joiner")
		return nil
	})
	pumpUntil(t, e, joiner.Done)
	assert.Equal(t, []string{"slow", "joiner"}, finished)
}

func TestJoin_SelfIsFatal(t *testing.T) {
	e := newEngine(t)
	assert.Panics(t, func() {
		e.Spawn(func(ctx context.Context) error {
			return task.Current(ctx).Join(ctx)
		})
	})
}

func TestInterrupt_DeliveredAtSuspensionPoint(t *testing.T) {
	e := newEngine(t)
	var got error
	tk := e.Spawn(func(ctx context.Context) error {
		got = task.Sleep(ctx, time.Hour)
		return nil
	})
	require.False(t, tk.Done())
	ctx := task.WithEngine(context.Background(), e)
	require.NoError(t, tk.Interrupt(ctx))
	pumpUntil(t, e, tk.Done)
	assert.ErrorIs(t, got, task.Interrupted)
}

func TestInterrupt_CrossEngineRejected(t *testing.T) {
	e1 := newEngine(t)
	e2 := newEngine(t)
	tk := e1.Spawn(func(ctx context.Context) error {
		return task.Sleep(ctx, time.Hour)
	})
	var err error
	other := e2.Spawn(func(ctx context.Context) error {
		err = tk.Interrupt(ctx)
		return nil
	})
	require.True(t, other.Done())
	assert.ErrorIs(t, err, api.ErrWrongThread)
	// The target must still be suspended; clean it up from its own engine.
	require.NoError(t, tk.Interrupt(task.WithEngine(context.Background(), e1)))
	pumpUntil(t, e1, tk.Done)
}

func TestInterrupt_UntaggedContextRejected(t *testing.T) {
	e := newEngine(t)
	tk := e.Spawn(func(ctx context.Context) error {
		return task.Sleep(ctx, time.Hour)
	})
	require.False(t, tk.Done())

	// A bare context proves nothing about the calling thread; delivery
	// must be refused rather than racing the owning thread's scheduling.
	rejected := make(chan error, 1)
	go func() { rejected <- tk.Interrupt(context.Background()) }()
	assert.ErrorIs(t, <-rejected, api.ErrWrongThread)
	require.False(t, tk.Done(), "target must be untouched after a rejected interrupt")

	require.NoError(t, tk.Interrupt(task.WithEngine(context.Background(), e)))
	pumpUntil(t, e, tk.Done)
}

func TestJoin_UntaggedContextRejected(t *testing.T) {
	e := newEngine(t)
	tk := e.Spawn(func(ctx context.Context) error {
		return task.Sleep(ctx, 5*time.Millisecond)
	})
	assert.ErrorIs(t, tk.Join(context.Background()), api.ErrWrongThread)
	require.NoError(t, tk.Join(task.WithEngine(context.Background(), e)))
}

func TestInterrupt_UninterruptibleWaitDefersDelivery(t *testing.T) {
	e := newEngine(t)
	var first, second error
	tk := e.Spawn(func(ctx context.Context) error {
		first = task.AwaitUninterruptible(ctx)
		second = task.Await(ctx)
		return nil
	})
	ctx := task.WithEngine(context.Background(), e)
	require.NoError(t, tk.Interrupt(ctx))
	require.False(t, tk.Done(), "uninterruptible wait must not observe the interrupt")

	// Wake the uninterruptible wait normally; the pending interrupt must
	// surface at the next interruptible point without another wake.
	tk.Wake(nil)
	pumpUntil(t, e, tk.Done)
	assert.NoError(t, first)
	assert.ErrorIs(t, second, task.Interrupted)
}

func TestUncaughtFailure_TerminatesOnlyThatTask(t *testing.T) {
	e := newEngine(t)
	bad := e.Spawn(func(ctx context.Context) error {
		panic("boom")
	})
	require.True(t, bad.Done())

	ran := false
	good := e.Spawn(func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.True(t, good.Done())
	assert.True(t, ran, "engine must survive an uncaught task failure")
	assert.Equal(t, int64(1), e.Stats()["uncaught_errors"])
}

func TestUncaughtError_Counted(t *testing.T) {
	e := newEngine(t)
	e.Spawn(func(ctx context.Context) error {
		return errors.New("unhandled")
	})
	assert.Equal(t, int64(1), e.Stats()["uncaught_errors"])
}

func TestFiberReuse_LocalStorageCleared(t *testing.T) {
	e := newEngine(t)
	type key struct{}
	e.Spawn(func(ctx context.Context) error {
		task.SetLocal(ctx, key{}, "secret")
		v, ok := task.Local(ctx, key{})
		if !ok || v != "secret" {
			t.Error("local storage lost within task")
		}
		return nil
	})
	var leaked bool
	e.Spawn(func(ctx context.Context) error {
		_, leaked = task.Local(ctx, key{})
		return nil
	})
	assert.False(t, leaked, "recycled fiber must start with empty local storage")
	assert.Equal(t, int64(1), e.Stats()["fibers_allocated"], "second task must reuse the recycled fiber")
}

func TestAwait_OutsideFiberPumpsOneIteration(t *testing.T) {
	drv := fake.NewFakeDriver()
	e := task.NewEngine(drv)
	ctx := task.WithEngine(context.Background(), e)
	require.NoError(t, task.Await(ctx))
	assert.Equal(t, 1, drv.Pumps, "outside any fiber a wait must pump exactly one driver iteration")
}

func TestAwait_NoEngineIsFatal(t *testing.T) {
	assert.Panics(t, func() {
		_ = task.Await(context.Background())
	})
}

func TestNotifyIdle_RepeatsWhileCallbackRequests(t *testing.T) {
	calls := 0
	drv := inproc.New()
	e := task.NewEngine(drv, task.WithIdleCallback(func() bool {
		calls++
		return calls < 3
	}))
	t.Cleanup(e.Close)
	e.NotifyIdle()
	assert.Equal(t, 3, calls)
}

func TestNotifyIdle_DrainsReQueuedTasks(t *testing.T) {
	e := newEngine(t)
	yields := 0
	tk := e.Spawn(func(ctx context.Context) error {
		for i := 0; i < 4; i++ {
			yields++
			if err := task.Yield(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	e.NotifyIdle()
	assert.True(t, tk.Done(), "ready queue must be drained to exhaustion before blocking")
	assert.Equal(t, 4, yields)
}

func TestWake_AfterTerminationIsDropped(t *testing.T) {
	e := newEngine(t)
	tk := e.Spawn(func(ctx context.Context) error { return nil })
	require.True(t, tk.Done())
	tk.Wake(nil) // must not panic or resume a recycled fiber
	e.NotifyIdle()
}
