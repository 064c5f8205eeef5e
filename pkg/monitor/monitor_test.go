package monitor_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/boundcheck/pkg/monitor"
	"github.com/Sumatoshi-tech/boundcheck/pkg/outcome"
)

const waitFor = 2 * time.Second

func TestTimeLimitCancelsWithCause(t *testing.T) {
	t.Parallel()

	set := monitor.New(monitor.Limits{Time: 10 * time.Millisecond},
		monitor.WithProbe(func() uint64 { return 1 }))

	ctx, err := set.Start(context.Background())
	require.NoError(t, err)
	t.Cleanup(set.Stop)

	select {
	case <-ctx.Done():
	case <-time.After(waitFor):
		t.Fatal("time limit did not fire")
	}

	cause := context.Cause(ctx)
	require.ErrorIs(t, cause, monitor.ErrTimeLimitExceeded)
	assert.Equal(t, outcome.TimedOut, outcome.KindOf(cause))
}

func TestMemoryLimitCancelsWithCause(t *testing.T) {
	t.Parallel()

	var usage atomic.Uint64
	usage.Store(10)

	set := monitor.New(monitor.Limits{Memory: 100},
		monitor.WithProbe(usage.Load),
		monitor.WithPollInterval(time.Millisecond))

	ctx, err := set.Start(context.Background())
	require.NoError(t, err)
	t.Cleanup(set.Stop)

	usage.Store(500)

	select {
	case <-ctx.Done():
	case <-time.After(waitFor):
		t.Fatal("memory limit did not fire")
	}

	cause := context.Cause(ctx)
	require.ErrorIs(t, cause, monitor.ErrMemLimitExceeded)
	assert.Equal(t, outcome.MemoryExhausted, outcome.KindOf(cause))
	assert.Equal(t, uint64(500), set.PeakMemory())
}

func TestFirstCauseWins(t *testing.T) {
	t.Parallel()

	set := monitor.New(monitor.Limits{Time: time.Millisecond, Memory: 1},
		monitor.WithProbe(func() uint64 { return 2 }))

	ctx, err := set.Start(context.Background())
	require.NoError(t, err)

	<-ctx.Done()
	first := context.Cause(ctx)

	time.Sleep(5 * time.Millisecond)
	set.Stop()

	assert.Equal(t, first, context.Cause(ctx))
}

func TestUnlimitedNeverCancels(t *testing.T) {
	t.Parallel()

	set := monitor.New(monitor.Limits{},
		monitor.WithProbe(func() uint64 { return 1 << 40 }),
		monitor.WithPollInterval(time.Millisecond))

	ctx, err := set.Start(context.Background())
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, ctx.Err())
	assert.True(t, set.Running())

	set.Stop()
	assert.False(t, set.Running())
	require.ErrorIs(t, context.Cause(ctx), context.Canceled)
}

func TestStartTwiceRejected(t *testing.T) {
	t.Parallel()

	set := monitor.New(monitor.Limits{})

	_, err := set.Start(context.Background())
	require.NoError(t, err)

	_, err = set.Start(context.Background())
	require.ErrorIs(t, err, monitor.ErrAlreadyRunning)

	set.Stop()
	set.Stop()

	_, err = set.Start(context.Background())
	require.NoError(t, err)
	set.Stop()
}

func TestIntervals(t *testing.T) {
	t.Parallel()

	set := monitor.New(monitor.Limits{})
	assert.Zero(t, set.Elapsed())
	assert.Zero(t, set.StopInterval())

	_, err := set.Start(context.Background())
	require.NoError(t, err)
	t.Cleanup(set.Stop)

	time.Sleep(5 * time.Millisecond)
	first := set.StopInterval()
	assert.GreaterOrEqual(t, first, 5*time.Millisecond)

	set.StartInterval()
	assert.Less(t, set.StopInterval(), first+time.Second)
	assert.GreaterOrEqual(t, set.Elapsed(), first)
}

func TestRuntimeProbe(t *testing.T) {
	t.Parallel()

	assert.Positive(t, monitor.RuntimeProbe())
}
