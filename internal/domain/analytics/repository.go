package analytics

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by single-row lookups that match nothing
var ErrNotFound = errors.New("analytics: record not found")

// DailyStatRepository persists DailyStat rows keyed by date
type DailyStatRepository interface {
	// UpsertDailyStats creates or overwrites one row per date
	UpsertDailyStats(ctx context.Context, stats []DailyStat) error
	// FindDailyStats returns rows with from <= date <= to ordered by date
	FindDailyStats(ctx context.Context, from, to time.Time) ([]DailyStat, error)
}

// ProductStatRepository persists ProductStat rows keyed by product id
type ProductStatRepository interface {
	// UpsertProductStats creates or updates rows, leaving current_stock of existing rows untouched
	UpsertProductStats(ctx context.Context, stats []ProductStat) error
	FindProductStat(ctx context.Context, productID int64) (*ProductStat, error)
	FindTopProductStats(ctx context.Context, limit int) ([]ProductStat, error)
}

// CustomerStatRepository persists CustomerStat rows keyed by customer id
type CustomerStatRepository interface {
	UpsertCustomerStats(ctx context.Context, stats []CustomerStat) error
	FindCustomerStat(ctx context.Context, customerID int64) (*CustomerStat, error)
}

// CouponStatRepository persists CouponStat rows keyed by coupon code
type CouponStatRepository interface {
	// UpsertCouponStats writes the usage columns of every stat and writes the
	// bleeding flag only for codes whose flag changed. It returns those changes.
	UpsertCouponStats(ctx context.Context, stats []CouponStat) ([]BleedingTransition, error)
	FindCouponStat(ctx context.Context, code string) (*CouponStat, error)
	FindBleedingCoupons(ctx context.Context) ([]CouponStat, error)
}

// SyncLogRepository appends and lists sync audit records
type SyncLogRepository interface {
	Append(ctx context.Context, log *SyncLog) error
	FindRecent(ctx context.Context, limit int) ([]SyncLog, error)
}

// Repositories groups the durable stores a sync run writes to
type Repositories struct {
	Daily     DailyStatRepository
	Products  ProductStatRepository
	Customers CustomerStatRepository
	Coupons   CouponStatRepository
	SyncLogs  SyncLogRepository
}
