package integration

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/storepulse/backend/internal/domain/analytics"
	"github.com/storepulse/backend/internal/infrastructure/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAnalyticsRepositories_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := NewTestDB(t)
	repos := persistence.NewRepositories(testDB.DB)
	ctx := context.Background()

	t.Run("daily stats overwrite by date", func(t *testing.T) {
		day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, repos.Daily.UpsertDailyStats(ctx, []analytics.DailyStat{
			analytics.NewDailyStat(day, dec("100.00"), 2),
			analytics.NewDailyStat(day.AddDate(0, 0, 1), decimal.Zero, 0),
		}))
		require.NoError(t, repos.Daily.UpsertDailyStats(ctx, []analytics.DailyStat{
			analytics.NewDailyStat(day.Add(15*time.Hour), dec("90.00"), 3),
		}))

		stats, err := repos.Daily.FindDailyStats(ctx, day, day.AddDate(0, 0, 1))
		require.NoError(t, err)
		require.Len(t, stats, 2)
		assert.True(t, dec("90.00").Equal(stats[0].TotalSales))
		assert.Equal(t, int64(3), stats[0].OrderCount)
		assert.True(t, dec("30.00").Equal(stats[0].AvgOrderValue))
		assert.True(t, stats[1].TotalSales.IsZero())
	})

	t.Run("product upsert keeps current stock", func(t *testing.T) {
		require.NoError(t, repos.Products.UpsertProductStats(ctx, []analytics.ProductStat{
			{ProductID: 100, Title: "Mug", TotalQuantitySold: 3, TotalRevenue: dec("45.00")},
		}))
		require.NoError(t, testDB.DB.Exec("UPDATE product_stats SET current_stock = 17 WHERE product_id = 100").Error)

		require.NoError(t, repos.Products.UpsertProductStats(ctx, []analytics.ProductStat{
			{ProductID: 100, Title: "Mug v2", TotalQuantitySold: 5, TotalRevenue: dec("75.00")},
			{ProductID: 200, Title: "Plate", TotalQuantitySold: 1, TotalRevenue: dec("120.00")},
		}))

		mug, err := repos.Products.FindProductStat(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, "Mug v2", mug.Title)
		assert.Equal(t, int64(5), mug.TotalQuantitySold)
		assert.Equal(t, int64(17), mug.CurrentStock)

		top, err := repos.Products.FindTopProductStats(ctx, 1)
		require.NoError(t, err)
		require.Len(t, top, 1)
		assert.Equal(t, int64(200), top[0].ProductID)

		_, err = repos.Products.FindProductStat(ctx, 999)
		assert.ErrorIs(t, err, analytics.ErrNotFound)
	})

	t.Run("customer upsert", func(t *testing.T) {
		lastOrder := time.Date(2024, 3, 30, 18, 0, 0, 0, time.UTC)
		require.NoError(t, repos.Customers.UpsertCustomerStats(ctx, []analytics.CustomerStat{
			{CustomerID: 1, Email: "ada@example.com", FirstName: "Ada", TotalOrders: 2, TotalSpent: dec("80.00"), LastOrderAt: &lastOrder},
		}))
		require.NoError(t, repos.Customers.UpsertCustomerStats(ctx, []analytics.CustomerStat{
			{CustomerID: 1, Email: "ada@example.com", FirstName: "Ada", TotalOrders: 3, TotalSpent: dec("95.50")},
		}))

		c, err := repos.Customers.FindCustomerStat(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(3), c.TotalOrders)
		assert.True(t, dec("95.50").Equal(c.TotalSpent))
		require.NotNil(t, c.LastOrderAt)
		assert.True(t, lastOrder.Equal(*c.LastOrderAt))
	})

	t.Run("coupon flag only changes on transitions", func(t *testing.T) {
		bleeding := analytics.CouponStat{
			CouponCode: "SAVE40", CouponType: "percentage", DiscountValue: dec("40"),
			TimesUsed: 1, TotalDiscountGiven: dec("40.00"), TotalRevenueGenerated: dec("100.00"),
			IsActive: true, Status: "active",
		}
		bleeding.Classify()
		healthy := analytics.CouponStat{CouponCode: "SAVE5", TotalDiscountGiven: dec("5"), TotalRevenueGenerated: dec("100")}
		healthy.Classify()

		transitions, err := repos.Coupons.UpsertCouponStats(ctx, []analytics.CouponStat{bleeding, healthy})
		require.NoError(t, err)
		require.Len(t, transitions, 1, "a new code only transitions when it starts out bleeding")
		assert.Equal(t, "SAVE40", transitions[0].CouponCode)
		assert.True(t, transitions[0].Bleeding)

		transitions, err = repos.Coupons.UpsertCouponStats(ctx, []analytics.CouponStat{bleeding, healthy})
		require.NoError(t, err)
		assert.Empty(t, transitions)

		recovered := bleeding
		recovered.TotalRevenueGenerated = dec("400.00")
		recovered.TimesUsed = 4
		recovered.Classify()
		transitions, err = repos.Coupons.UpsertCouponStats(ctx, []analytics.CouponStat{recovered})
		require.NoError(t, err)
		require.Len(t, transitions, 1)
		assert.False(t, transitions[0].Bleeding)

		stored, err := repos.Coupons.FindCouponStat(ctx, "SAVE40")
		require.NoError(t, err)
		assert.False(t, stored.IsBleedingMoney)
		assert.Equal(t, int64(4), stored.TimesUsed)

		flagged, err := repos.Coupons.FindBleedingCoupons(ctx)
		require.NoError(t, err)
		assert.Empty(t, flagged)
	})

	t.Run("sync logs newest first", func(t *testing.T) {
		start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, repos.SyncLogs.Append(ctx,
			analytics.NewSuccessSyncLog(analytics.SyncTypeFull, 10, `[]`, start, start.Add(time.Minute))))
		require.NoError(t, repos.SyncLogs.Append(ctx,
			analytics.NewErrorSyncLog(analytics.SyncTypeFull, 0, `[]`, assert.AnError, start.Add(time.Hour), start.Add(time.Hour+time.Second))))

		logs, err := repos.SyncLogs.FindRecent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, analytics.SyncStatusError, logs[0].Status)
		assert.Contains(t, logs[0].ErrorMessage, assert.AnError.Error())
		assert.Equal(t, analytics.SyncStatusSuccess, logs[1].Status)
		assert.Equal(t, time.Minute, logs[1].Duration())
	})

	t.Run("clean tables", func(t *testing.T) {
		testDB.CleanTables()
		logs, err := repos.SyncLogs.FindRecent(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, logs)
	})
}
