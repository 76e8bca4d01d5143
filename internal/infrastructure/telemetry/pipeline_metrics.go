package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// PipelineMetrics records the health of the storefront sync pipeline: remote
// page fetches, sync runs and phases, preload passes and the expiring cache.
// A nil *PipelineMetrics is valid and records nothing.
type PipelineMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Remote fetches
	pageRequestsTotal *Counter
	pageDuration      *Histogram
	fetchesTotal      *Counter
	partialFetches    *Counter
	skippedRecords    *Counter

	// Sync runs
	syncRunsTotal       *Counter
	syncRunDuration     *Histogram
	phaseDuration       *Histogram
	recordsProcessed    *Counter
	bleedingTransitions *Counter

	// Preloader
	preloadRunsTotal *Counter

	cacheRegistration metric.Registration
}

// PipelineMetricsConfig holds configuration for pipeline metrics.
type PipelineMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// CacheStatsFunc reports the cumulative hit and miss counters and current size of a cache.
type CacheStatsFunc func() (hits, misses, size int64)

// NewPipelineMetrics creates a new PipelineMetrics instance.
func NewPipelineMetrics(cfg PipelineMetricsConfig) (*PipelineMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pm := &PipelineMetrics{
		meter:  cfg.Meter,
		logger: logger,
	}

	var err error
	counters := []struct {
		target      **Counter
		name        string
		description string
		unit        string
	}{
		{&pm.pageRequestsTotal, "storepulse_storefront_page_requests_total", "Remote page requests by collection and outcome", "{requests}"},
		{&pm.fetchesTotal, "storepulse_fetches_total", "Fetcher calls by collection, split by cache hit", "{fetches}"},
		{&pm.partialFetches, "storepulse_fetches_partial_total", "Fetches truncated by a page error", "{fetches}"},
		{&pm.skippedRecords, "storepulse_records_skipped_total", "Remote records dropped by validation", "{records}"},
		{&pm.syncRunsTotal, "storepulse_sync_runs_total", "Sync runs by status", "{runs}"},
		{&pm.recordsProcessed, "storepulse_sync_records_processed_total", "Records upserted per sync phase", "{records}"},
		{&pm.bleedingTransitions, "storepulse_coupon_bleeding_transitions_total", "Coupon bleeding flag transitions", "{transitions}"},
		{&pm.preloadRunsTotal, "storepulse_preload_runs_total", "Dashboard preload passes by status", "{runs}"},
	}
	for _, c := range counters {
		*c.target, err = NewCounter(cfg.Meter, c.name, c.description, c.unit)
		if err != nil {
			return nil, err
		}
	}

	pm.pageDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "storepulse_storefront_page_duration_seconds",
		Description: "Latency of a single remote page request",
		Unit:        "s",
		Boundaries:  PageDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	pm.syncRunDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "storepulse_sync_run_duration_seconds",
		Description: "Duration of a full sync run",
		Unit:        "s",
		Boundaries:  RunDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	pm.phaseDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "storepulse_sync_phase_duration_seconds",
		Description: "Duration of a single sync phase",
		Unit:        "s",
		Boundaries:  RunDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	return pm, nil
}

// ObserveCache registers observable gauges reading the cache counters on every collection.
func (pm *PipelineMetrics) ObserveCache(stats CacheStatsFunc) error {
	if pm == nil || stats == nil {
		return nil
	}

	hits, err := pm.meter.Int64ObservableGauge("storepulse_cache_hits",
		metric.WithDescription("Cumulative expiring cache hits"), metric.WithUnit("{reads}"))
	if err != nil {
		return err
	}
	misses, err := pm.meter.Int64ObservableGauge("storepulse_cache_misses",
		metric.WithDescription("Cumulative expiring cache misses"), metric.WithUnit("{reads}"))
	if err != nil {
		return err
	}
	size, err := pm.meter.Int64ObservableGauge("storepulse_cache_entries",
		metric.WithDescription("Entries currently held by the expiring cache"), metric.WithUnit("{entries}"))
	if err != nil {
		return err
	}

	pm.cacheRegistration, err = pm.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		h, m, s := stats()
		o.ObserveInt64(hits, h)
		o.ObserveInt64(misses, m)
		o.ObserveInt64(size, s)
		return nil
	}, hits, misses, size)
	return err
}

// Stop unregisters the cache callback.
func (pm *PipelineMetrics) Stop() {
	if pm == nil || pm.cacheRegistration == nil {
		return
	}
	if err := pm.cacheRegistration.Unregister(); err != nil {
		pm.logger.Warn("Failed to unregister cache metrics callback", zap.Error(err))
	}
	pm.cacheRegistration = nil
}

// =============================================================================
// Remote fetch recording
// =============================================================================

// RecordPageRequest records one remote page request.
func (pm *PipelineMetrics) RecordPageRequest(ctx context.Context, collection string, d time.Duration, err error) {
	if pm == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrCollection.String(collection), AttrStatus.String(outcome(err))}
	pm.pageRequestsTotal.Inc(ctx, attrs...)
	pm.pageDuration.RecordDuration(ctx, d, AttrCollection.String(collection))
}

// RecordFetch records one fetcher call.
func (pm *PipelineMetrics) RecordFetch(ctx context.Context, collection string, cacheHit, partial bool, skipped int) {
	if pm == nil {
		return
	}
	pm.fetchesTotal.Inc(ctx, AttrCollection.String(collection), AttrCacheHit.Bool(cacheHit))
	if partial {
		pm.partialFetches.Inc(ctx, AttrCollection.String(collection))
	}
	if skipped > 0 {
		pm.skippedRecords.Add(ctx, int64(skipped), AttrCollection.String(collection))
	}
}

// =============================================================================
// Sync recording
// =============================================================================

// RecordSyncRun records a finished sync run.
func (pm *PipelineMetrics) RecordSyncRun(ctx context.Context, status string, d time.Duration) {
	if pm == nil {
		return
	}
	pm.syncRunsTotal.Inc(ctx, AttrStatus.String(status))
	pm.syncRunDuration.RecordDuration(ctx, d, AttrStatus.String(status))
}

// RecordSyncPhase records a finished sync phase and the records it upserted.
func (pm *PipelineMetrics) RecordSyncPhase(ctx context.Context, phase string, records int, d time.Duration, err error) {
	if pm == nil {
		return
	}
	pm.phaseDuration.RecordDuration(ctx, d, AttrPhase.String(phase), AttrStatus.String(outcome(err)))
	if records > 0 {
		pm.recordsProcessed.Add(ctx, int64(records), AttrPhase.String(phase))
	}
}

// RecordBleedingTransition records a coupon entering or leaving the bleeding state.
func (pm *PipelineMetrics) RecordBleedingTransition(ctx context.Context, bleeding bool) {
	if pm == nil {
		return
	}
	state := "recovered"
	if bleeding {
		state = "bleeding"
	}
	pm.bleedingTransitions.Inc(ctx, AttrStatus.String(state))
}

// RecordPreload records one dashboard preload pass.
func (pm *PipelineMetrics) RecordPreload(ctx context.Context, err error) {
	if pm == nil {
		return
	}
	pm.preloadRunsTotal.Inc(ctx, AttrStatus.String(outcome(err)))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ErrMeterNil is returned by NewPipelineMetrics without a meter
var ErrMeterNil = errors.New("telemetry: pipeline metrics need a meter")
