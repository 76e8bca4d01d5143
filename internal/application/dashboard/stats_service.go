package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/storepulse/backend/internal/domain/analytics"
	domainreport "github.com/storepulse/backend/internal/domain/report"
	"github.com/storepulse/backend/internal/domain/storefront"
	"github.com/storepulse/backend/internal/infrastructure/cache"
)

const (
	// defaultSyncLogLimit is used when GetRecentSyncLogs gets a non-positive limit
	defaultSyncLogLimit = 20
	// maxDailyRangeDays bounds GetDailyStats
	maxDailyRangeDays = 366
	// mirrorReadTimeout bounds one fallback read from the snapshot mirror
	mirrorReadTimeout = 2 * time.Second
)

// SnapshotReader is the read side of the expiring cache
type SnapshotReader interface {
	Get(key string) (any, bool)
	Stats() cache.Stats
	Info(key string) (cache.EntryInfo, bool)
}

// SnapshotLoader reads snapshots published by any preloader process.
// cache.SnapshotMirror implements it.
type SnapshotLoader interface {
	Load(ctx context.Context, name string, dest any) error
}

// ReadinessChecker reports whether preloaded data can be served
type ReadinessChecker interface {
	IsReady() bool
}

// StatsService serves dashboard reads from preloaded snapshots and from the
// durable analytics tables. It never calls the storefront.
type StatsService struct {
	snapshots SnapshotReader
	mirror    SnapshotLoader
	readiness ReadinessChecker
	daily     analytics.DailyStatRepository
	coupons   analytics.CouponStatRepository
	syncLogs  analytics.SyncLogRepository
}

// StatsServiceOption configures a StatsService
type StatsServiceOption func(*StatsService)

// WithMirrorFallback serves a snapshot from the mirror when the local copy has
// expired, for example after the local refreshes failed while another
// process kept publishing
func WithMirrorFallback(m SnapshotLoader) StatsServiceOption {
	return func(s *StatsService) {
		s.mirror = m
	}
}

// NewStatsService creates a new StatsService. Only the daily, coupon and sync
// log stores of repos are read.
func NewStatsService(snapshots SnapshotReader, readiness ReadinessChecker, repos analytics.Repositories, opts ...StatsServiceOption) *StatsService {
	s := &StatsService{
		snapshots: snapshots,
		readiness: readiness,
		daily:     repos.Daily,
		coupons:   repos.Coupons,
		syncLogs:  repos.SyncLogs,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ===================== Preloaded snapshots =====================

// GetStats returns the totals snapshot of a period
func (s *StatsService) GetStats(period string) (*domainreport.PeriodSnapshot, error) {
	p, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	return lookup[*domainreport.PeriodSnapshot](s, StatsKey(p))
}

// GetDailySales returns the gap-free daily series of a period
func (s *StatsService) GetDailySales(period string) (*domainreport.DailySeries, error) {
	p, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	return lookup[*domainreport.DailySeries](s, DailyKey(p))
}

// GetTopProducts returns the year product leaderboard
func (s *StatsService) GetTopProducts() (*domainreport.ProductLeaderboard, error) {
	return lookup[*domainreport.ProductLeaderboard](s, KeyTopProducts)
}

// GetTopCustomers returns the year customer leaderboard
func (s *StatsService) GetTopCustomers() (*domainreport.CustomerLeaderboard, error) {
	return lookup[*domainreport.CustomerLeaderboard](s, KeyTopCustomers)
}

// CacheStats returns the cache counters
func (s *StatsService) CacheStats() cache.Stats {
	return s.snapshots.Stats()
}

// CacheInfo describes one cache entry
func (s *StatsService) CacheInfo(key string) (cache.EntryInfo, bool) {
	return s.snapshots.Info(key)
}

func lookup[T any](s *StatsService, key string) (T, error) {
	var zero T
	if !s.readiness.IsReady() {
		return zero, ErrNotReady
	}
	v, ok := s.snapshots.Get(key)
	if !ok {
		return loadMirrored[T](s.mirror, key)
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s holds %T", ErrSnapshotUnavailable, key, v)
	}
	return typed, nil
}

func loadMirrored[T any](mirror SnapshotLoader, key string) (T, error) {
	var v T
	if mirror == nil {
		return v, fmt.Errorf("%w: %s", ErrSnapshotUnavailable, key)
	}

	ctx, cancel := context.WithTimeout(context.Background(), mirrorReadTimeout)
	defer cancel()

	if err := mirror.Load(ctx, key, &v); err != nil {
		if errors.Is(err, cache.ErrSnapshotNotFound) {
			return v, fmt.Errorf("%w: %s", ErrSnapshotUnavailable, key)
		}
		return v, fmt.Errorf("%w: %s: %w", ErrSnapshotUnavailable, key, err)
	}
	return v, nil
}

// ===================== Durable aggregates =====================

// GetDailyStats returns the persisted daily rows between two calendar days,
// inclusive. Days the sync has not reached yet are absent, not zero.
func (s *StatsService) GetDailyStats(ctx context.Context, from, to time.Time) ([]analytics.DailyStat, error) {
	w := storefront.NewDayWindow(from, to)
	if w.IsEmpty() {
		return nil, fmt.Errorf("%w: %s starts after it ends", ErrInvalidRange, w)
	}
	if days := len(w.Days()); days > maxDailyRangeDays {
		return nil, fmt.Errorf("%w: %d days exceeds %d", ErrInvalidRange, days, maxDailyRangeDays)
	}
	return s.daily.FindDailyStats(ctx, w.Start, w.End)
}

// GetBleedingCoupons returns coupons currently flagged as bleeding money
func (s *StatsService) GetBleedingCoupons(ctx context.Context) ([]analytics.CouponStat, error) {
	return s.coupons.FindBleedingCoupons(ctx)
}

// GetRecentSyncLogs returns the most recent sync runs, newest first
func (s *StatsService) GetRecentSyncLogs(ctx context.Context, limit int) ([]analytics.SyncLog, error) {
	if limit <= 0 {
		limit = defaultSyncLogLimit
	}
	return s.syncLogs.FindRecent(ctx, limit)
}
