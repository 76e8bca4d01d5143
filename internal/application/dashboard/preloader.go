package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/storepulse/backend/internal/application/integration"
	"github.com/storepulse/backend/internal/application/report"
	domainreport "github.com/storepulse/backend/internal/domain/report"
	"github.com/storepulse/backend/internal/domain/storefront"
	"github.com/storepulse/backend/internal/infrastructure/cache"
	"github.com/storepulse/backend/internal/infrastructure/scheduler"
	"github.com/storepulse/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Namespace is the cache namespace of every preloaded snapshot
const Namespace = "dashboard"

// Errors returned by the dashboard read path
var (
	// ErrNotReady means the first month snapshot has not been built yet. It is
	// not the same as a period with no orders.
	ErrNotReady = errors.New("dashboard: stats not ready")
	// ErrUnknownPeriod is returned for a period name that is not preloaded
	ErrUnknownPeriod = errors.New("dashboard: unknown period")
	// ErrSnapshotUnavailable means the snapshot failed to refresh and has expired
	ErrSnapshotUnavailable = errors.New("dashboard: snapshot unavailable")
	// ErrInvalidRange is returned for a reversed or oversized date range
	ErrInvalidRange = errors.New("dashboard: invalid date range")
)

// Cache keys
const (
	KeyTopProducts  = Namespace + ":top_products:" + string(PeriodYear)
	KeyTopCustomers = Namespace + ":top_customers:" + string(PeriodYear)
)

// StatsKey returns the cache key of a period snapshot
func StatsKey(p Period) string {
	return Namespace + ":stats:" + string(p)
}

// DailyKey returns the cache key of a period's daily series
func DailyKey(p Period) string {
	return Namespace + ":daily:" + string(p)
}

// OrderSource is the part of the fetcher the preloader reads from
type OrderSource interface {
	FetchOrders(ctx context.Context, window *storefront.PeriodWindow, opts map[string]string) (*integration.OrderSet, error)
}

// SnapshotCache is where snapshots are written
type SnapshotCache interface {
	Set(key string, value any, ttl time.Duration)
	ClearNamespace(ns string) int
}

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// PreloaderConfig holds preloader settings
type PreloaderConfig struct {
	// RefreshInterval is the time between two full preloads. Snapshots live twice as long.
	RefreshInterval time.Duration
	// TopN bounds the year leaderboards
	TopN int
}

// DefaultPreloaderConfig returns default configuration
func DefaultPreloaderConfig() PreloaderConfig {
	return PreloaderConfig{
		RefreshInterval: 10 * time.Minute,
		TopN:            10,
	}
}

func (c *PreloaderConfig) applyDefaults() {
	d := DefaultPreloaderConfig()
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = d.RefreshInterval
	}
	if c.TopN <= 0 {
		c.TopN = d.TopN
	}
}

// ---------------------------------------------------------------------------
// Preloader
// ---------------------------------------------------------------------------

// Preloader keeps period snapshots, daily series and year leaderboards warm
// in the expiring cache so reads never wait on the storefront
type Preloader struct {
	orders  OrderSource
	cache   SnapshotCache
	mirror  *cache.SnapshotMirror
	config  PreloaderConfig
	metrics *telemetry.PipelineMetrics
	logger  *zap.Logger
	now     func() time.Time

	ready   atomic.Bool
	runMu   sync.Mutex
	mu      sync.Mutex
	trigger *scheduler.IntervalTrigger
}

// PreloaderOption configures a Preloader
type PreloaderOption func(*Preloader)

// WithPreloaderLogger sets the logger
func WithPreloaderLogger(logger *zap.Logger) PreloaderOption {
	return func(p *Preloader) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithSnapshotMirror also publishes every snapshot to Redis
func WithSnapshotMirror(m *cache.SnapshotMirror) PreloaderOption {
	return func(p *Preloader) {
		p.mirror = m
	}
}

// WithPreloaderMetrics records preload passes
func WithPreloaderMetrics(m *telemetry.PipelineMetrics) PreloaderOption {
	return func(p *Preloader) {
		p.metrics = m
	}
}

// WithPreloaderClock overrides the clock used to resolve periods
func WithPreloaderClock(now func() time.Time) PreloaderOption {
	return func(p *Preloader) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPreloader creates a preloader
func NewPreloader(orders OrderSource, snapshots SnapshotCache, config PreloaderConfig, opts ...PreloaderOption) *Preloader {
	config.applyDefaults()
	p := &Preloader{
		orders: orders,
		cache:  snapshots,
		config: config,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IsReady returns true once the month snapshot has been stored at least once
func (p *Preloader) IsReady() bool {
	return p.ready.Load()
}

// TTL is how long a snapshot stays served without a refresh
func (p *Preloader) TTL() time.Duration {
	return 2 * p.config.RefreshInterval
}

// Start drops snapshots left from an earlier run, preloads once synchronously
// and then refreshes every RefreshInterval. A failed first preload is logged;
// the preloader stays not ready until a refresh stores the month snapshot.
func (p *Preloader) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.trigger != nil {
		return nil
	}

	removed := p.cache.ClearNamespace(Namespace)
	if purged, err := p.mirror.Purge(ctx); err != nil {
		p.logger.Warn("Failed to purge mirrored snapshots", zap.Error(err))
	} else {
		removed += purged
	}
	p.logger.Info("Dashboard snapshots reset", zap.Int("removed", removed))

	if err := p.Preload(ctx); err != nil {
		p.logger.Warn("Initial preload incomplete", zap.Bool("ready", p.IsReady()), zap.Error(err))
	}

	trigger, err := scheduler.NewIntervalTrigger(scheduler.IntervalTriggerConfig{
		Name:     "dashboard-preload",
		Interval: p.config.RefreshInterval,
	}, p.refresh, p.logger)
	if err != nil {
		return fmt.Errorf("failed to create preload trigger: %w", err)
	}
	if err := trigger.Start(ctx); err != nil {
		return fmt.Errorf("failed to start preload trigger: %w", err)
	}
	p.trigger = trigger
	return nil
}

// Stop stops the refresh trigger
func (p *Preloader) Stop(ctx context.Context) error {
	p.mu.Lock()
	trigger := p.trigger
	p.trigger = nil
	p.mu.Unlock()

	if trigger == nil {
		return nil
	}
	return trigger.Stop(ctx)
}

func (p *Preloader) refresh(ctx context.Context) {
	if err := p.Preload(ctx); err != nil {
		p.logger.Warn("Preload incomplete", zap.Error(err))
	}
}

// Preload rebuilds every snapshot. A failing period is logged and skipped;
// its previous snapshot keeps serving until it expires. The returned error
// joins every period failure.
func (p *Preloader) Preload(ctx context.Context) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	ctx, span := telemetry.StartServiceSpan(ctx, "preloader", "preload")
	defer span.End()

	start := time.Now()
	now := p.now()
	var errs []error
	for _, period := range AllPeriods() {
		if err := p.preloadPeriod(ctx, period, now); err != nil {
			p.logger.Error("Failed to preload period",
				zap.String("period", string(period)),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", period, err))
			// Continue with other periods
		}
	}

	err := errors.Join(errs...)
	p.metrics.RecordPreload(ctx, err)
	if err != nil {
		telemetry.RecordError(span, err)
	} else {
		telemetry.SetOK(span)
	}
	p.logger.Info("Dashboard preload finished",
		zap.Int("failed_periods", len(errs)),
		zap.Bool("ready", p.IsReady()),
		zap.Duration("duration", time.Since(start)),
	)
	return err
}

func (p *Preloader) preloadPeriod(ctx context.Context, period Period, now time.Time) error {
	window, err := period.Window(now)
	if err != nil {
		return err
	}
	set, err := p.orders.FetchOrders(ctx, &window, nil)
	if err != nil {
		return err
	}

	snapshot := report.BuildPeriodSnapshot(string(period), window, set.Orders, set.Totals, set.Partial, now)
	p.store(ctx, StatsKey(period), snapshot)

	p.store(ctx, DailyKey(period), &domainreport.DailySeries{
		Period:      string(period),
		Days:        report.BucketDaily(set.Orders, window),
		Partial:     set.Partial,
		GeneratedAt: now,
	})

	if period == PeriodYear {
		p.store(ctx, KeyTopProducts, &domainreport.ProductLeaderboard{
			Period:      string(period),
			ByRevenue:   report.TopProductsByRevenue(set.Orders, p.config.TopN),
			ByQuantity:  report.TopProductsByQuantity(set.Orders, p.config.TopN),
			Partial:     set.Partial,
			GeneratedAt: now,
		})
		p.store(ctx, KeyTopCustomers, &domainreport.CustomerLeaderboard{
			Period:      string(period),
			Customers:   report.TopCustomers(set.Orders, p.config.TopN),
			Partial:     set.Partial,
			GeneratedAt: now,
		})
	}

	if period == PeriodMonth && !p.ready.Swap(true) {
		p.logger.Info("Dashboard stats ready")
	}
	p.logger.Debug("Period preloaded",
		zap.String("period", string(period)),
		zap.Int64("orders", set.Totals.OrderCount),
		zap.Bool("partial", set.Partial),
	)
	return nil
}

// store writes one snapshot to the cache and, when configured, the mirror.
// Mirror failures only cost out-of-process readers a refresh.
func (p *Preloader) store(ctx context.Context, key string, value any) {
	p.cache.Set(key, value, p.TTL())
	if err := p.mirror.Publish(ctx, key, value, p.TTL()); err != nil {
		p.logger.Warn("Failed to mirror snapshot", zap.String("key", key), zap.Error(err))
	}
}
