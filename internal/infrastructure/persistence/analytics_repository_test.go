package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/storepulse/backend/internal/domain/analytics"
	"github.com/storepulse/backend/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLite accepts the same INSERT .. ON CONFLICT (col) DO UPDATE form GORM emits
// for PostgreSQL, so upserts are covered here as well as in tests/integration.
func setupAnalyticsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A second pooled connection would see a different in-memory database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(models.All()...))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ---------------------------------------------------------------------------
// DailyStatRepository
// ---------------------------------------------------------------------------

func TestDailyStatRepository_Upsert(t *testing.T) {
	db := setupAnalyticsTestDB(t)
	repo := NewDailyStatRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertDailyStats(ctx, []analytics.DailyStat{
		analytics.NewDailyStat(day(2024, 1, 1), dec("150"), 2),
		analytics.NewDailyStat(day(2024, 1, 2), decimal.Zero, 0),
	}))

	t.Run("overwrites existing date", func(t *testing.T) {
		require.NoError(t, repo.UpsertDailyStats(ctx, []analytics.DailyStat{
			analytics.NewDailyStat(day(2024, 1, 1), dec("300"), 3),
		}))

		stats, err := repo.FindDailyStats(ctx, day(2024, 1, 1), day(2024, 1, 1))
		require.NoError(t, err)
		require.Len(t, stats, 1)
		assert.True(t, dec("300").Equal(stats[0].TotalSales))
		assert.Equal(t, int64(3), stats[0].OrderCount)
		assert.True(t, dec("100").Equal(stats[0].AvgOrderValue))
	})

	t.Run("one row per date", func(t *testing.T) {
		var count int64
		require.NoError(t, db.Model(&models.DailyStatModel{}).Count(&count).Error)
		assert.Equal(t, int64(2), count)
	})

	t.Run("non-midnight dates collapse onto the day", func(t *testing.T) {
		require.NoError(t, repo.UpsertDailyStats(ctx, []analytics.DailyStat{
			analytics.NewDailyStat(day(2024, 1, 2).Add(15*time.Hour), dec("20"), 1),
		}))

		stats, err := repo.FindDailyStats(ctx, day(2024, 1, 2), day(2024, 1, 2))
		require.NoError(t, err)
		require.Len(t, stats, 1)
		assert.Equal(t, day(2024, 1, 2), stats[0].Date)
		assert.Equal(t, int64(1), stats[0].OrderCount)
	})

	t.Run("empty input is a no-op", func(t *testing.T) {
		assert.NoError(t, repo.UpsertDailyStats(ctx, nil))
	})
}

func TestDailyStatRepository_KeepsLocalCalendarDay(t *testing.T) {
	db := setupAnalyticsTestDB(t)
	repo := NewDailyStatRepository(db)
	ctx := context.Background()
	berlin := time.FixedZone("UTC+2", 2*60*60)

	localMidnight := time.Date(2024, 1, 2, 0, 0, 0, 0, berlin)
	require.NoError(t, repo.UpsertDailyStats(ctx, []analytics.DailyStat{
		analytics.NewDailyStat(localMidnight, dec("80"), 2),
	}))

	var row models.DailyStatModel
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, "2024-01-02", row.Date.UTC().Format(time.DateOnly))

	stats, err := repo.FindDailyStats(ctx, localMidnight, localMidnight.Add(23*time.Hour))
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, day(2024, 1, 2), stats[0].Date)

	stats, err = repo.FindDailyStats(ctx, day(2024, 1, 1), day(2024, 1, 1))
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestDailyStatRepository_FindDailyStats_OrderedRange(t *testing.T) {
	db := setupAnalyticsTestDB(t)
	repo := NewDailyStatRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertDailyStats(ctx, []analytics.DailyStat{
		analytics.NewDailyStat(day(2024, 1, 3), dec("30"), 1),
		analytics.NewDailyStat(day(2024, 1, 1), dec("10"), 1),
		analytics.NewDailyStat(day(2024, 1, 2), dec("20"), 1),
		analytics.NewDailyStat(day(2024, 1, 9), dec("90"), 1),
	}))

	stats, err := repo.FindDailyStats(ctx, day(2024, 1, 1), day(2024, 1, 3))
	require.NoError(t, err)
	require.Len(t, stats, 3)
	assert.Equal(t, day(2024, 1, 1), stats[0].Date)
	assert.Equal(t, day(2024, 1, 2), stats[1].Date)
	assert.Equal(t, day(2024, 1, 3), stats[2].Date)
}

// ---------------------------------------------------------------------------
// ProductStatRepository
// ---------------------------------------------------------------------------

func TestProductStatRepository_UpsertPreservesStock(t *testing.T) {
	db := setupAnalyticsTestDB(t)
	repo := NewProductStatRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertProductStats(ctx, []analytics.ProductStat{
		{ProductID: 7, Title: "Mug", TotalQuantitySold: 2, TotalRevenue: dec("20")},
	}))

	// Stock is owned by the inventory process
	require.NoError(t, db.Model(&models.ProductStatModel{}).
		Where("product_id = ?", 7).
		Update("current_stock", 42).Error)

	require.NoError(t, repo.UpsertProductStats(ctx, []analytics.ProductStat{
		{ProductID: 7, Title: "Mug v2", TotalQuantitySold: 5, TotalRevenue: dec("55.5"), CurrentStock: 0},
	}))

	found, err := repo.FindProductStat(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Mug v2", found.Title)
	assert.Equal(t, int64(5), found.TotalQuantitySold)
	assert.True(t, dec("55.5").Equal(found.TotalRevenue))
	assert.Equal(t, int64(42), found.CurrentStock)
}

func TestProductStatRepository_FindProductStat_NotFound(t *testing.T) {
	repo := NewProductStatRepository(setupAnalyticsTestDB(t))

	found, err := repo.FindProductStat(context.Background(), 404)

	assert.ErrorIs(t, err, analytics.ErrNotFound)
	assert.Nil(t, found)
}

func TestProductStatRepository_FindTopProductStats(t *testing.T) {
	repo := NewProductStatRepository(setupAnalyticsTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.UpsertProductStats(ctx, []analytics.ProductStat{
		{ProductID: 1, Title: "A", TotalRevenue: dec("10")},
		{ProductID: 2, Title: "B", TotalRevenue: dec("300")},
		{ProductID: 3, Title: "C", TotalRevenue: dec("300")},
		{ProductID: 4, Title: "D", TotalRevenue: dec("50")},
	}))

	top, err := repo.FindTopProductStats(ctx, 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, []int64{2, 3, 4}, []int64{top[0].ProductID, top[1].ProductID, top[2].ProductID})

	none, err := repo.FindTopProductStats(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

// ---------------------------------------------------------------------------
// CustomerStatRepository
// ---------------------------------------------------------------------------

func TestCustomerStatRepository_Upsert(t *testing.T) {
	repo := NewCustomerStatRepository(setupAnalyticsTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.UpsertCustomerStats(ctx, []analytics.CustomerStat{
		{CustomerID: 11, Email: "a@example.com", FirstName: "Ada", TotalOrders: 1, TotalSpent: dec("10")},
	}))
	require.NoError(t, repo.UpsertCustomerStats(ctx, []analytics.CustomerStat{
		{CustomerID: 11, Email: "ada@example.com", FirstName: "Ada", LastName: "L", TotalOrders: 4, TotalSpent: dec("99.99")},
	}))

	found, err := repo.FindCustomerStat(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", found.Email)
	assert.Equal(t, "L", found.LastName)
	assert.Equal(t, int64(4), found.TotalOrders)
	assert.True(t, dec("99.99").Equal(found.TotalSpent))
	assert.Nil(t, found.LastOrderAt)

	_, err = repo.FindCustomerStat(ctx, 12)
	assert.ErrorIs(t, err, analytics.ErrNotFound)
}

func TestCustomerStatRepository_KeepsLastOrderAt(t *testing.T) {
	repo := NewCustomerStatRepository(setupAnalyticsTestDB(t))
	ctx := context.Background()
	first := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	second := time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC)

	require.NoError(t, repo.UpsertCustomerStats(ctx, []analytics.CustomerStat{
		{CustomerID: 21, Email: "bo@example.com", TotalOrders: 1, LastOrderAt: &first},
	}))
	// The order fell out of the lookback; the stored time stays
	require.NoError(t, repo.UpsertCustomerStats(ctx, []analytics.CustomerStat{
		{CustomerID: 21, Email: "bo@example.com", TotalOrders: 1},
	}))

	found, err := repo.FindCustomerStat(ctx, 21)
	require.NoError(t, err)
	require.NotNil(t, found.LastOrderAt)
	assert.True(t, first.Equal(*found.LastOrderAt))

	require.NoError(t, repo.UpsertCustomerStats(ctx, []analytics.CustomerStat{
		{CustomerID: 21, Email: "bo@example.com", TotalOrders: 2, LastOrderAt: &second},
	}))
	found, err = repo.FindCustomerStat(ctx, 21)
	require.NoError(t, err)
	require.NotNil(t, found.LastOrderAt)
	assert.True(t, second.Equal(*found.LastOrderAt))
}

// ---------------------------------------------------------------------------
// CouponStatRepository
// ---------------------------------------------------------------------------

func coupon(code, discount, revenue string) analytics.CouponStat {
	c := analytics.CouponStat{
		CouponCode:            code,
		CouponType:            "percentage",
		DiscountValue:         dec("10"),
		TotalDiscountGiven:    dec(discount),
		TotalRevenueGenerated: dec(revenue),
		IsActive:              true,
		Status:                "active",
	}
	c.Classify()
	return c
}

func TestCouponStatRepository_UpsertCouponStats(t *testing.T) {
	db := setupAnalyticsTestDB(t)
	repo := NewCouponStatRepository(db)
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return at }
	ctx := context.Background()

	t.Run("first run reports only codes that start out bleeding", func(t *testing.T) {
		transitions, err := repo.UpsertCouponStats(ctx, []analytics.CouponStat{
			coupon("FINE", "5", "100"),
			coupon("BLEED", "40", "100"),
		})
		require.NoError(t, err)
		require.Len(t, transitions, 1)
		assert.Equal(t, "BLEED", transitions[0].CouponCode)
		assert.True(t, transitions[0].Bleeding)
		assert.Equal(t, at, transitions[0].At)

		bleed, err := repo.FindCouponStat(ctx, "BLEED")
		require.NoError(t, err)
		assert.True(t, bleed.IsBleedingMoney)
	})

	t.Run("unchanged flags produce no transitions", func(t *testing.T) {
		transitions, err := repo.UpsertCouponStats(ctx, []analytics.CouponStat{
			coupon("FINE", "6", "100"),
			coupon("BLEED", "50", "100"),
		})
		require.NoError(t, err)
		assert.Empty(t, transitions)

		fine, err := repo.FindCouponStat(ctx, "FINE")
		require.NoError(t, err)
		assert.True(t, dec("6").Equal(fine.TotalDiscountGiven))
	})

	t.Run("flags flip in both directions", func(t *testing.T) {
		transitions, err := repo.UpsertCouponStats(ctx, []analytics.CouponStat{
			coupon("FINE", "31", "100"),
			coupon("BLEED", "1", "100"),
		})
		require.NoError(t, err)
		require.Len(t, transitions, 2)

		fine, err := repo.FindCouponStat(ctx, "FINE")
		require.NoError(t, err)
		assert.True(t, fine.IsBleedingMoney)

		bleed, err := repo.FindCouponStat(ctx, "BLEED")
		require.NoError(t, err)
		assert.False(t, bleed.IsBleedingMoney)
	})

	t.Run("zero revenue is never bleeding", func(t *testing.T) {
		transitions, err := repo.UpsertCouponStats(ctx, []analytics.CouponStat{
			coupon("UNUSED", "500", "0"),
		})
		require.NoError(t, err)
		assert.Empty(t, transitions)
	})

	t.Run("empty input", func(t *testing.T) {
		transitions, err := repo.UpsertCouponStats(ctx, nil)
		assert.NoError(t, err)
		assert.Nil(t, transitions)
	})
}

func TestCouponStatRepository_FindBleedingCoupons(t *testing.T) {
	repo := NewCouponStatRepository(setupAnalyticsTestDB(t))
	ctx := context.Background()

	_, err := repo.UpsertCouponStats(ctx, []analytics.CouponStat{
		coupon("SMALL", "40", "100"),
		coupon("BIG", "400", "1000"),
		coupon("OK", "1", "100"),
	})
	require.NoError(t, err)

	bleeding, err := repo.FindBleedingCoupons(ctx)
	require.NoError(t, err)
	require.Len(t, bleeding, 2)
	assert.Equal(t, "BIG", bleeding[0].CouponCode)
	assert.Equal(t, "SMALL", bleeding[1].CouponCode)

	_, err = repo.FindCouponStat(ctx, "MISSING")
	assert.ErrorIs(t, err, analytics.ErrNotFound)
}

// ---------------------------------------------------------------------------
// SyncLogRepository
// ---------------------------------------------------------------------------

func TestSyncLogRepository_AppendAndFindRecent(t *testing.T) {
	repo := NewSyncLogRepository(setupAnalyticsTestDB(t))
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		start := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, repo.Append(ctx,
			analytics.NewSuccessSyncLog(analytics.SyncTypeFull, int64(i), `{"daily":1}`, start, start.Add(time.Minute))))
	}
	failed := analytics.NewErrorSyncLog(analytics.SyncTypeFull, 0, "", assert.AnError, base.Add(5*time.Hour), base.Add(5*time.Hour))
	require.NoError(t, repo.Append(ctx, failed))

	logs, err := repo.FindRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, failed.ID, logs[0].ID)
	assert.Equal(t, analytics.SyncStatusError, logs[0].Status)
	assert.Equal(t, assert.AnError.Error(), logs[0].ErrorMessage)
	assert.Equal(t, int64(2), logs[1].RecordsProcessed)

	all, err := repo.FindRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestNewRepositories(t *testing.T) {
	repos := NewRepositories(setupAnalyticsTestDB(t))

	assert.NotNil(t, repos.Daily)
	assert.NotNil(t, repos.Products)
	assert.NotNil(t, repos.Customers)
	assert.NotNil(t, repos.Coupons)
	assert.NotNil(t, repos.SyncLogs)
}
