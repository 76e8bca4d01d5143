package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/storepulse/backend/internal/application/report"
	"github.com/storepulse/backend/internal/domain/analytics"
	"github.com/storepulse/backend/internal/domain/storefront"
	"github.com/storepulse/backend/internal/infrastructure/logger"
	"github.com/storepulse/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ErrSyncPanicked wraps a panic recovered inside a sync phase
var ErrSyncPanicked = errors.New("integration: sync phase panicked")

// Phase names a step of a sync run
type Phase string

// Phases run in this order
const (
	PhaseDaily    Phase = "daily"
	PhaseProduct  Phase = "product"
	PhaseCustomer Phase = "customer"
	PhaseCoupon   Phase = "coupon"
)

// syncLogTimeout bounds the audit write, which runs even when the run context is done
const syncLogTimeout = 10 * time.Second

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// SyncConfig holds the lookback of each phase, in days
type SyncConfig struct {
	DailyLookbackDays   int
	ProductLookbackDays int
	CouponLookbackDays  int
}

// DefaultSyncConfig returns default configuration
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		DailyLookbackDays:   90,
		ProductLookbackDays: 30,
		CouponLookbackDays:  90,
	}
}

func (c *SyncConfig) applyDefaults() {
	d := DefaultSyncConfig()
	if c.DailyLookbackDays <= 0 {
		c.DailyLookbackDays = d.DailyLookbackDays
	}
	if c.ProductLookbackDays <= 0 {
		c.ProductLookbackDays = d.ProductLookbackDays
	}
	if c.CouponLookbackDays <= 0 {
		c.CouponLookbackDays = d.CouponLookbackDays
	}
}

// CacheInvalidator drops every cache entry of a namespace
type CacheInvalidator interface {
	ClearNamespace(ns string) int
}

// ---------------------------------------------------------------------------
// Reports
// ---------------------------------------------------------------------------

// PhaseSummary describes one completed phase
type PhaseSummary struct {
	Phase   Phase `json:"phase"`
	Records int   `json:"records"`
	// Partial is set when the phase worked from a truncated fetch
	Partial  bool          `json:"partial,omitempty"`
	Skipped  int           `json:"skipped,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// SyncReport is the outcome of one Run call
type SyncReport struct {
	RunID string
	// Skipped is set when another run was in progress; nothing else is filled in then
	Skipped     bool
	Status      analytics.SyncStatus
	Phases      []PhaseSummary
	Transitions []analytics.BleedingTransition
	StartedAt   time.Time
	FinishedAt  time.Time
	Err         error
}

// RecordsProcessed sums the records of every completed phase
func (r *SyncReport) RecordsProcessed() int64 {
	var total int64
	for _, p := range r.Phases {
		total += int64(p.Records)
	}
	return total
}

// ---------------------------------------------------------------------------
// SyncOrchestrator
// ---------------------------------------------------------------------------

// SyncOrchestrator materializes storefront data into the analytics tables.
// At most one run is in progress at a time; overlapping calls are skipped.
type SyncOrchestrator struct {
	fetcher     *Fetcher
	repos       analytics.Repositories
	invalidator CacheInvalidator
	notifier    CouponAlertNotifier
	config      SyncConfig
	metrics     *telemetry.PipelineMetrics
	logger      *zap.Logger
	now         func() time.Time

	running atomic.Bool
	mu      sync.RWMutex
	last    *SyncReport
}

// SyncOrchestratorOption configures a SyncOrchestrator
type SyncOrchestratorOption func(*SyncOrchestrator)

// WithSyncLogger sets the logger
func WithSyncLogger(logger *zap.Logger) SyncOrchestratorOption {
	return func(o *SyncOrchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSyncMetrics records run and phase metrics
func WithSyncMetrics(m *telemetry.PipelineMetrics) SyncOrchestratorOption {
	return func(o *SyncOrchestrator) {
		o.metrics = m
	}
}

// WithCouponAlertNotifier replaces the default log notifier
func WithCouponAlertNotifier(n CouponAlertNotifier) SyncOrchestratorOption {
	return func(o *SyncOrchestrator) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithCacheInvalidator clears fetched namespaces after a successful run
func WithCacheInvalidator(inv CacheInvalidator) SyncOrchestratorOption {
	return func(o *SyncOrchestrator) {
		o.invalidator = inv
	}
}

// WithSyncClock overrides the clock used for windows and timestamps
func WithSyncClock(now func() time.Time) SyncOrchestratorOption {
	return func(o *SyncOrchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewSyncOrchestrator creates a new sync orchestrator
func NewSyncOrchestrator(fetcher *Fetcher, repos analytics.Repositories, config SyncConfig, opts ...SyncOrchestratorOption) *SyncOrchestrator {
	config.applyDefaults()
	o := &SyncOrchestrator{
		fetcher: fetcher,
		repos:   repos,
		config:  config,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.notifier == nil {
		o.notifier = NewLogAlertNotifier(o.logger)
	}
	return o
}

// IsRunning returns true while a run is in progress
func (o *SyncOrchestrator) IsRunning() bool {
	return o.running.Load()
}

// LastReport returns the report of the most recent completed run, or nil
func (o *SyncOrchestrator) LastReport() *SyncReport {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.last
}

// Tick adapts Run to a scheduler task
func (o *SyncOrchestrator) Tick(ctx context.Context) {
	o.Run(ctx)
}

// Run executes daily, product, customer and coupon phases in order.
// The first failing phase ends the run. Run never panics and never returns
// an error; the outcome is in the report and in the appended SyncLog.
func (o *SyncOrchestrator) Run(ctx context.Context) *SyncReport {
	if !o.running.CompareAndSwap(false, true) {
		o.logger.Info("Sync already in progress, skipping run")
		return &SyncReport{Skipped: true}
	}
	defer o.running.Store(false)

	runID := uuid.NewString()
	ctx, log := logger.WithSyncRunID(ctx, o.logger, runID)
	ctx, span := telemetry.StartServiceSpan(ctx, "sync", "run",
		telemetry.WithAttribute(telemetry.SpanAttrRunID, runID),
	)
	defer span.End()

	rep := &SyncReport{RunID: runID, StartedAt: o.now()}
	log.Info("Sync run started")

	err := o.runPhases(ctx, rep)
	rep.FinishedAt = o.now()
	if err != nil {
		rep.Status = analytics.SyncStatusError
		rep.Err = err
		telemetry.RecordError(span, err)
		log.Error("Sync run failed",
			zap.Int("completed_phases", len(rep.Phases)),
			zap.Error(err),
		)
	} else {
		rep.Status = analytics.SyncStatusSuccess
		o.invalidate(log)
		telemetry.SetOK(span)
		log.Info("Sync run completed",
			zap.Int64("records_processed", rep.RecordsProcessed()),
			zap.Int("bleeding_transitions", len(rep.Transitions)),
			zap.Duration("duration", rep.FinishedAt.Sub(rep.StartedAt)),
		)
	}

	o.appendSyncLog(ctx, log, rep)
	o.metrics.RecordSyncRun(ctx, string(rep.Status), rep.FinishedAt.Sub(rep.StartedAt))

	o.mu.Lock()
	o.last = rep
	o.mu.Unlock()
	return rep
}

type phaseFunc func(ctx context.Context, now time.Time, rep *SyncReport) (PhaseSummary, error)

func (o *SyncOrchestrator) runPhases(ctx context.Context, rep *SyncReport) error {
	phases := []struct {
		name Phase
		run  phaseFunc
	}{
		{PhaseDaily, o.syncDaily},
		{PhaseProduct, o.syncProducts},
		{PhaseCustomer, o.syncCustomers},
		{PhaseCoupon, o.syncCoupons},
	}

	now := rep.StartedAt
	for _, p := range phases {
		summary, err := o.runPhase(ctx, p.name, now, rep, p.run)
		if err != nil {
			return fmt.Errorf("%s phase: %w", p.name, err)
		}
		rep.Phases = append(rep.Phases, summary)
	}
	return nil
}

func (o *SyncOrchestrator) runPhase(ctx context.Context, name Phase, now time.Time, rep *SyncReport, run phaseFunc) (summary PhaseSummary, err error) {
	ctx, span := telemetry.StartSpan(ctx, "sync.phase",
		telemetry.WithAttribute(telemetry.SpanAttrPhase, string(name)),
	)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSyncPanicked, r)
		}
		summary.Phase = name
		summary.Duration = time.Since(start)
		o.metrics.RecordSyncPhase(ctx, string(name), summary.Records, summary.Duration, err)
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.SetAttributes(span,
				telemetry.SpanAttrRecords, summary.Records,
				telemetry.SpanAttrPartial, summary.Partial,
			)
		}
		span.End()
	}()

	summary, err = run(ctx, now, rep)
	if err == nil {
		logger.FromContext(ctx).Info("Sync phase completed",
			zap.String("phase", string(name)),
			zap.Int("records", summary.Records),
			zap.Bool("partial", summary.Partial),
		)
	}
	return summary, err
}

// syncDaily upserts one row per day of the lookback, zero days included.
// A truncated fetch only writes the days it saw orders for, so stored rows
// of the unseen days are not zeroed.
func (o *SyncOrchestrator) syncDaily(ctx context.Context, now time.Time, _ *SyncReport) (PhaseSummary, error) {
	window := storefront.LastDays(now, o.config.DailyLookbackDays)
	set, err := o.fetcher.FetchOrders(ctx, &window, nil)
	if err != nil {
		return PhaseSummary{}, err
	}

	stats := report.DailyStatsFromBuckets(report.BucketDaily(set.Orders, window))
	if set.Partial {
		stats = daysWithOrders(stats)
	}
	if err := o.repos.Daily.UpsertDailyStats(ctx, stats); err != nil {
		return PhaseSummary{}, err
	}
	return PhaseSummary{Records: len(stats), Partial: set.Partial, Skipped: set.Skipped}, nil
}

// syncProducts upserts per-product totals over the product lookback
func (o *SyncOrchestrator) syncProducts(ctx context.Context, now time.Time, _ *SyncReport) (PhaseSummary, error) {
	window := storefront.LastDays(now, o.config.ProductLookbackDays)
	set, err := o.fetcher.FetchOrders(ctx, &window, nil)
	if err != nil {
		return PhaseSummary{}, err
	}

	stats := report.ProductStatsFromOrders(set.Orders)
	if err := o.repos.Products.UpsertProductStats(ctx, stats); err != nil {
		return PhaseSummary{}, err
	}
	return PhaseSummary{Records: len(stats), Partial: set.Partial, Skipped: set.Skipped}, nil
}

func daysWithOrders(stats []analytics.DailyStat) []analytics.DailyStat {
	kept := stats[:0]
	for _, s := range stats {
		if s.OrderCount > 0 {
			kept = append(kept, s)
		}
	}
	return kept
}

// syncCustomers upserts the whole customer collection. Last order times come
// from the daily lookback orders, which the daily phase has already cached.
func (o *SyncOrchestrator) syncCustomers(ctx context.Context, now time.Time, _ *SyncReport) (PhaseSummary, error) {
	set, err := o.fetcher.FetchCustomers(ctx, nil, nil)
	if err != nil {
		return PhaseSummary{}, err
	}
	window := storefront.LastDays(now, o.config.DailyLookbackDays)
	orders, err := o.fetcher.FetchOrders(ctx, &window, nil)
	if err != nil {
		return PhaseSummary{}, err
	}

	stats := report.CustomerStatsFromCustomers(set.Items, orders.Orders)
	if err := o.repos.Customers.UpsertCustomerStats(ctx, stats); err != nil {
		return PhaseSummary{}, err
	}
	return PhaseSummary{
		Records: len(stats),
		Partial: set.Partial || orders.Partial,
		Skipped: set.Skipped + orders.Skipped,
	}, nil
}

// syncCoupons classifies every discount code against the coupon lookback and
// forwards bleeding transitions to the notifier
func (o *SyncOrchestrator) syncCoupons(ctx context.Context, now time.Time, rep *SyncReport) (PhaseSummary, error) {
	codes, err := o.fetcher.FetchDiscountCodes(ctx, nil)
	if err != nil {
		return PhaseSummary{}, err
	}
	window := storefront.LastDays(now, o.config.CouponLookbackDays)
	orders, err := o.fetcher.FetchOrders(ctx, &window, nil)
	if err != nil {
		return PhaseSummary{}, err
	}

	stats := report.CouponStatsFromUsage(codes.Items, orders.Orders, now)
	transitions, err := o.repos.Coupons.UpsertCouponStats(ctx, stats)
	if err != nil {
		return PhaseSummary{}, err
	}

	rep.Transitions = transitions
	for _, t := range transitions {
		o.metrics.RecordBleedingTransition(ctx, t.Bleeding)
	}
	if len(transitions) > 0 {
		// Alert delivery is best effort; the flags are already persisted
		if err := o.notifier.NotifyBleedingTransitions(ctx, transitions); err != nil {
			logger.FromContext(ctx).Warn("Coupon alert delivery failed",
				zap.Int("transitions", len(transitions)),
				zap.Error(err),
			)
		}
	}

	return PhaseSummary{
		Records: len(stats),
		Partial: codes.Partial || orders.Partial,
		Skipped: codes.Skipped + orders.Skipped,
	}, nil
}

// invalidate drops cached fetches so the next preload reads fresh data
func (o *SyncOrchestrator) invalidate(log *zap.Logger) {
	if o.invalidator == nil {
		return
	}
	removed := 0
	for _, ns := range []string{CollectionOrders, CollectionCustomers, CollectionDiscountCodes} {
		removed += o.invalidator.ClearNamespace(ns)
	}
	log.Debug("Invalidated fetch cache", zap.Int("entries", removed))
}

func (o *SyncOrchestrator) appendSyncLog(ctx context.Context, log *zap.Logger, rep *SyncReport) {
	summary, _ := json.Marshal(rep.Phases)

	var entry *analytics.SyncLog
	if rep.Status == analytics.SyncStatusSuccess {
		entry = analytics.NewSuccessSyncLog(analytics.SyncTypeFull, rep.RecordsProcessed(), string(summary), rep.StartedAt, rep.FinishedAt)
	} else {
		entry = analytics.NewErrorSyncLog(analytics.SyncTypeFull, rep.RecordsProcessed(), string(summary), rep.Err, rep.StartedAt, rep.FinishedAt)
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), syncLogTimeout)
	defer cancel()
	if err := o.repos.SyncLogs.Append(writeCtx, entry); err != nil {
		log.Error("Failed to append sync log",
			zap.String("status", string(entry.Status)),
			zap.Error(err),
		)
	}
}
