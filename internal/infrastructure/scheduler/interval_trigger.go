package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrInvalidConfig wraps every rejected trigger configuration
var ErrInvalidConfig = errors.New("scheduler: invalid trigger configuration")

// ---------------------------------------------------------------------------
// IntervalTriggerConfig
// ---------------------------------------------------------------------------

// IntervalTriggerConfig holds configuration for an interval trigger
type IntervalTriggerConfig struct {
	// Name identifies the trigger in logs
	Name string

	// Interval is the time between two runs
	Interval time.Duration

	// RunOnStart runs the task once immediately when the trigger starts
	RunOnStart bool
}

// Validate validates the trigger configuration
func (c IntervalTriggerConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidConfig, c.Interval)
	}
	return nil
}

// Task is the unit of work run by a trigger. It must return when ctx is done.
type Task func(ctx context.Context)

// ---------------------------------------------------------------------------
// IntervalTrigger
// ---------------------------------------------------------------------------

// IntervalTrigger runs a task on a fixed interval in its own goroutine.
// Runs never overlap: a tick arriving while the task is still running is dropped.
type IntervalTrigger struct {
	config IntervalTriggerConfig
	task   Task
	logger *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	runs atomic.Int64
}

// NewIntervalTrigger creates a new interval trigger
func NewIntervalTrigger(config IntervalTriggerConfig, task Task, logger *zap.Logger) (*IntervalTrigger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("%w: task is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntervalTrigger{
		config: config,
		task:   task,
		logger: logger.With(zap.String("trigger", config.Name)),
	}, nil
}

// Start starts the trigger. Starting a running trigger is a no-op.
func (t *IntervalTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.mu.Unlock()

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Interval trigger started",
		zap.Duration("interval", t.config.Interval),
		zap.Bool("run_on_start", t.config.RunOnStart),
	)
	return nil
}

// Stop cancels the trigger and waits for an in-flight run to return or ctx to expire
func (t *IntervalTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Interval trigger stopped", zap.Int64("runs", t.runs.Load()))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning returns true if the trigger is started
func (t *IntervalTrigger) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isRunning
}

// Runs returns how many times the task has completed
func (t *IntervalTrigger) Runs() int64 {
	return t.runs.Load()
}

// runLoop runs the task on every tick
func (t *IntervalTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()

	if t.config.RunOnStart {
		t.runOnce(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.runOnce(ctx)
		}
	}
}

// runOnce runs the task, containing any panic so the loop survives
func (t *IntervalTrigger) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	defer func() {
		t.runs.Add(1)
		if r := recover(); r != nil {
			t.logger.Error("Interval task panicked", zap.Any("panic", r))
		}
	}()
	t.task(ctx)
}
