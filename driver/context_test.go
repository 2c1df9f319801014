package driver_test

import (
	"context"
	"testing"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/driver"
	"github.com/momentics/hioload-fiber/driver/inproc"
	"github.com/momentics/hioload-fiber/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingRegistry(built *int) *driver.Registry {
	return driver.NewRegistry(func(name string) (api.Driver, []task.Option) {
		*built++
		return inproc.New(), nil
	})
}

func TestRegistry_AcquireIsLazyAndIdempotent(t *testing.T) {
	built := 0
	r := countingRegistry(&built)
	require.Equal(t, 0, built, "no pair before first acquire")

	a := r.Acquire("worker-0")
	require.Equal(t, 1, built)
	require.NotNil(t, a.Driver)
	require.NotNil(t, a.Engine)

	again := r.Acquire("worker-0")
	assert.Same(t, a, again, "repeat acquire must return the same pair")
	assert.Equal(t, 1, built)

	b := r.Acquire("worker-1")
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, built)
	assert.ElementsMatch(t, []string{"worker-0", "worker-1"}, r.Names())

	r.Release("worker-0")
	r.Release("worker-1")
}

func TestRegistry_ReleaseTearsDownAndForgets(t *testing.T) {
	built := 0
	r := countingRegistry(&built)
	p := r.Acquire("worker-0")

	interrupted := false
	tk := p.Engine.Spawn(func(ctx context.Context) error {
		err := task.Await(ctx)
		interrupted = err == task.Interrupted
		return nil
	})
	require.False(t, tk.Done())

	r.Release("worker-0")
	assert.True(t, tk.Done(), "release must unwind live tasks")
	assert.True(t, interrupted, "unwinding delivers the cancellation error")
	assert.Empty(t, r.Names())
	assert.ErrorIs(t, p.Driver.Pump(), api.ErrDriverClosed)

	fresh := r.Acquire("worker-0")
	assert.NotSame(t, p, fresh, "re-acquire after release builds a new pair")
	assert.Equal(t, 2, built)
	r.Release("worker-0")
}

func TestRegistry_ReleaseUnknownNameIsNoop(t *testing.T) {
	built := 0
	r := countingRegistry(&built)
	r.Release("never-acquired")
	assert.Equal(t, 0, built)
}
