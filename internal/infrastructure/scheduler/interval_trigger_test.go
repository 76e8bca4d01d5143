package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// ---------------------------------------------------------------------------
// IntervalTriggerConfig Tests
// ---------------------------------------------------------------------------

func TestIntervalTriggerConfig_Validate(t *testing.T) {
	assert.NoError(t, IntervalTriggerConfig{Interval: time.Second}.Validate())
	assert.ErrorIs(t, IntervalTriggerConfig{}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, IntervalTriggerConfig{Interval: -time.Second}.Validate(), ErrInvalidConfig)
}

func TestNewIntervalTrigger_Errors(t *testing.T) {
	_, err := NewIntervalTrigger(IntervalTriggerConfig{Interval: time.Second}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewIntervalTrigger(IntervalTriggerConfig{}, func(context.Context) {}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// ---------------------------------------------------------------------------
// IntervalTrigger Tests
// ---------------------------------------------------------------------------

func TestIntervalTrigger_RunsOnInterval(t *testing.T) {
	var count atomic.Int32
	trigger, err := NewIntervalTrigger(IntervalTriggerConfig{
		Name:     "test",
		Interval: 10 * time.Millisecond,
	}, func(ctx context.Context) {
		count.Add(1)
	}, newTestLogger())
	require.NoError(t, err)

	require.NoError(t, trigger.Start(context.Background()))
	assert.True(t, trigger.IsRunning())

	assert.Eventually(t, func() bool { return count.Load() >= 3 }, time.Second, 5*time.Millisecond)

	require.NoError(t, trigger.Stop(context.Background()))
	assert.False(t, trigger.IsRunning())

	stopped := count.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, count.Load(), "no runs after stop")
	assert.Equal(t, int64(stopped), trigger.Runs())
}

func TestIntervalTrigger_RunOnStart(t *testing.T) {
	ran := make(chan struct{}, 1)
	trigger, err := NewIntervalTrigger(IntervalTriggerConfig{
		Name:       "boot",
		Interval:   time.Hour,
		RunOnStart: true,
	}, func(ctx context.Context) {
		select {
		case ran <- struct{}{}:
		default:
		}
	}, nil)
	require.NoError(t, err)

	require.NoError(t, trigger.Start(context.Background()))
	defer trigger.Stop(context.Background())

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task did not run on start")
	}
}

func TestIntervalTrigger_StartStopIdempotent(t *testing.T) {
	trigger, err := NewIntervalTrigger(IntervalTriggerConfig{Interval: time.Hour}, func(context.Context) {}, nil)
	require.NoError(t, err)

	require.NoError(t, trigger.Stop(context.Background()))
	require.NoError(t, trigger.Start(context.Background()))
	require.NoError(t, trigger.Start(context.Background()))
	require.NoError(t, trigger.Stop(context.Background()))
	require.NoError(t, trigger.Stop(context.Background()))
}

func TestIntervalTrigger_StopCancelsTaskContext(t *testing.T) {
	started := make(chan struct{})
	finished := make(chan struct{})
	trigger, err := NewIntervalTrigger(IntervalTriggerConfig{
		Interval:   time.Hour,
		RunOnStart: true,
	}, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(finished)
	}, nil)
	require.NoError(t, err)

	require.NoError(t, trigger.Start(context.Background()))
	<-started

	require.NoError(t, trigger.Stop(context.Background()))
	select {
	case <-finished:
	default:
		t.Fatal("stop returned before the task observed cancellation")
	}
}

func TestIntervalTrigger_StopTimesOut(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	trigger, err := NewIntervalTrigger(IntervalTriggerConfig{
		Interval:   time.Hour,
		RunOnStart: true,
	}, func(ctx context.Context) {
		close(started)
		<-release
	}, nil)
	require.NoError(t, err)

	require.NoError(t, trigger.Start(context.Background()))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, trigger.Stop(ctx), context.DeadlineExceeded)

	close(release)
}

func TestIntervalTrigger_SurvivesPanic(t *testing.T) {
	var count atomic.Int32
	trigger, err := NewIntervalTrigger(IntervalTriggerConfig{
		Interval:   5 * time.Millisecond,
		RunOnStart: true,
	}, func(ctx context.Context) {
		if count.Add(1) == 1 {
			panic("boom")
		}
	}, nil)
	require.NoError(t, err)

	require.NoError(t, trigger.Start(context.Background()))
	defer trigger.Stop(context.Background())

	assert.Eventually(t, func() bool { return count.Load() >= 2 }, time.Second, 5*time.Millisecond)
}
