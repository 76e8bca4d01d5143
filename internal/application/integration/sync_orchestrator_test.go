package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/storepulse/backend/internal/domain/analytics"
	"github.com/storepulse/backend/internal/domain/storefront"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingInvalidator struct {
	mu         sync.Mutex
	namespaces []string
}

func (r *recordingInvalidator) ClearNamespace(ns string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.namespaces = append(r.namespaces, ns)
	return 1
}

// syncFixture wires an orchestrator over a scripted storefront and mocked repositories
type syncFixture struct {
	store       *fakeStorefront
	repos       *mockRepos
	notifier    *mockNotifier
	invalidator *recordingInvalidator
	logs        *observer.ObservedLogs
	orch        *SyncOrchestrator
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()

	store := newFakeStorefront()
	store.orders = []scriptedPage[storefront.Order]{{items: []storefront.Order{
		{
			ID:             1,
			CreatedAt:      fixedNow.Add(-2 * time.Hour),
			CustomerID:     7,
			SubtotalPrice:  dec("100.00"),
			TotalPrice:     dec("100.00"),
			TotalDiscounts: dec("40.00"),
			DiscountCodes:  []storefront.AppliedDiscount{{Code: "save40", Amount: dec("40.00")}},
			LineItems: []storefront.LineItem{
				{ID: 11, ProductID: 100, Title: "Mug", Quantity: 2, Price: dec("50.00")},
			},
		},
		order(2, fixedNow.AddDate(0, 0, -40), "30.00"),
	}}}
	store.customers = []scriptedPage[storefront.Customer]{{items: []storefront.Customer{
		{ID: 7, Email: "ana@example.com", OrdersCount: 1, TotalSpent: dec("100.00"), CreatedAt: fixedNow},
	}}}
	store.codes = []scriptedPage[storefront.DiscountCode]{{items: []storefront.DiscountCode{
		{ID: 1, Code: "SAVE40", ValueType: storefront.DiscountValueTypePercentage, Value: dec("40")},
		{ID: 2, Code: "UNUSED", ValueType: storefront.DiscountValueTypeFixedAmount, Value: dec("5")},
	}}}

	f, _ := newTestFetcher(store, noDelay())
	core, logs := observer.New(zapcore.DebugLevel)
	fx := &syncFixture{
		store:       store,
		repos:       newMockRepos(),
		notifier:    &mockNotifier{},
		invalidator: &recordingInvalidator{},
		logs:        logs,
	}
	fx.orch = NewSyncOrchestrator(f, fx.repos.repositories(), SyncConfig{},
		WithSyncLogger(zap.New(core)),
		WithCouponAlertNotifier(fx.notifier),
		WithCacheInvalidator(fx.invalidator),
		WithSyncClock(fixedClock),
	)
	return fx
}

func (fx *syncFixture) expectAllPhasesSucceed(transitions []analytics.BleedingTransition) {
	fx.repos.daily.On("UpsertDailyStats", mock.Anything, mock.Anything).Return(nil)
	fx.repos.products.On("UpsertProductStats", mock.Anything, mock.Anything).Return(nil)
	fx.repos.customers.On("UpsertCustomerStats", mock.Anything, mock.Anything).Return(nil)
	fx.repos.coupons.On("UpsertCouponStats", mock.Anything, mock.Anything).Return(transitions, nil)
}

func statusIs(status analytics.SyncStatus) any {
	return mock.MatchedBy(func(l *analytics.SyncLog) bool { return l.Status == status })
}

func TestDefaultSyncConfig(t *testing.T) {
	cfg := DefaultSyncConfig()

	assert.Equal(t, 90, cfg.DailyLookbackDays)
	assert.Equal(t, 30, cfg.ProductLookbackDays)
	assert.Equal(t, 90, cfg.CouponLookbackDays)
}

func TestSyncOrchestrator_Run(t *testing.T) {
	t.Run("runs every phase and records a success log", func(t *testing.T) {
		fx := newSyncFixture(t)
		transitions := []analytics.BleedingTransition{{CouponCode: "SAVE40", Bleeding: true, Ratio: dec("0.4")}}
		fx.expectAllPhasesSucceed(transitions)
		fx.notifier.On("NotifyBleedingTransitions", mock.Anything, transitions).Return(nil)

		var logged *analytics.SyncLog
		fx.repos.syncLogs.On("Append", mock.Anything, statusIs(analytics.SyncStatusSuccess)).
			Run(func(args mock.Arguments) { logged = args.Get(1).(*analytics.SyncLog) }).
			Return(nil)

		rep := fx.orch.Run(context.Background())

		require.NoError(t, rep.Err)
		assert.Equal(t, analytics.SyncStatusSuccess, rep.Status)
		assert.False(t, rep.Skipped)
		assert.NotEmpty(t, rep.RunID)
		assert.Equal(t, transitions, rep.Transitions)

		require.Len(t, rep.Phases, 4)
		for i, phase := range []Phase{PhaseDaily, PhaseProduct, PhaseCustomer, PhaseCoupon} {
			assert.Equal(t, phase, rep.Phases[i].Phase)
		}
		assert.Equal(t, 90, rep.Phases[0].Records)
		assert.Equal(t, 1, rep.Phases[1].Records)
		assert.Equal(t, 1, rep.Phases[2].Records)
		assert.Equal(t, 2, rep.Phases[3].Records)

		require.NotNil(t, logged)
		assert.Equal(t, analytics.SyncTypeFull, logged.SyncType)
		assert.Equal(t, rep.RecordsProcessed(), logged.RecordsProcessed)
		assert.Empty(t, logged.ErrorMessage)
		assert.Contains(t, logged.Summary, `"phase":"coupon"`)

		assert.ElementsMatch(t,
			[]string{CollectionOrders, CollectionCustomers, CollectionDiscountCodes},
			fx.invalidator.namespaces,
		)
		assert.Same(t, rep, fx.orch.LastReport())
		assert.False(t, fx.orch.IsRunning())
		fx.notifier.AssertExpectations(t)
	})

	t.Run("daily phase writes one zero-filled row per day", func(t *testing.T) {
		fx := newSyncFixture(t)
		fx.expectAllPhasesSucceed(nil)
		fx.repos.syncLogs.On("Append", mock.Anything, mock.Anything).Return(nil)

		var daily []analytics.DailyStat
		fx.repos.daily.ExpectedCalls = nil
		fx.repos.daily.On("UpsertDailyStats", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { daily = args.Get(1).([]analytics.DailyStat) }).
			Return(nil)

		fx.orch.Run(context.Background())

		require.Len(t, daily, 90)
		assert.Equal(t, "2024-01-02", daily[0].Date.Format(storefront.DayLayout))
		last := daily[89]
		assert.Equal(t, "2024-03-31", last.Date.Format(storefront.DayLayout))
		assert.Equal(t, int64(1), last.OrderCount)
		assert.True(t, dec("100.00").Equal(last.TotalSales))
		assert.Equal(t, int64(0), daily[50].OrderCount)
	})

	t.Run("coupon stats cover every discount code", func(t *testing.T) {
		fx := newSyncFixture(t)
		fx.expectAllPhasesSucceed(nil)
		fx.repos.syncLogs.On("Append", mock.Anything, mock.Anything).Return(nil)

		var coupons []analytics.CouponStat
		fx.repos.coupons.ExpectedCalls = nil
		fx.repos.coupons.On("UpsertCouponStats", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { coupons = args.Get(1).([]analytics.CouponStat) }).
			Return(nil, nil)

		fx.orch.Run(context.Background())

		require.Len(t, coupons, 2)
		assert.Equal(t, "SAVE40", coupons[0].CouponCode)
		assert.Equal(t, int64(1), coupons[0].TimesUsed)
		assert.True(t, coupons[0].IsBleedingMoney)
		assert.Equal(t, int64(0), coupons[1].TimesUsed)
		assert.False(t, coupons[1].IsBleedingMoney)
		fx.notifier.AssertNotCalled(t, "NotifyBleedingTransitions", mock.Anything, mock.Anything)
	})

	t.Run("failing phase stops the run", func(t *testing.T) {
		fx := newSyncFixture(t)
		dbErr := errors.New("connection reset")
		fx.repos.daily.On("UpsertDailyStats", mock.Anything, mock.Anything).Return(nil)
		fx.repos.products.On("UpsertProductStats", mock.Anything, mock.Anything).Return(dbErr)

		var logged *analytics.SyncLog
		fx.repos.syncLogs.On("Append", mock.Anything, statusIs(analytics.SyncStatusError)).
			Run(func(args mock.Arguments) { logged = args.Get(1).(*analytics.SyncLog) }).
			Return(nil)

		rep := fx.orch.Run(context.Background())

		assert.Equal(t, analytics.SyncStatusError, rep.Status)
		assert.ErrorIs(t, rep.Err, dbErr)
		require.Len(t, rep.Phases, 1)
		assert.Equal(t, PhaseDaily, rep.Phases[0].Phase)

		require.NotNil(t, logged)
		assert.Contains(t, logged.ErrorMessage, "product phase")
		assert.Equal(t, int64(90), logged.RecordsProcessed)

		fx.repos.customers.AssertNotCalled(t, "UpsertCustomerStats", mock.Anything, mock.Anything)
		fx.repos.coupons.AssertNotCalled(t, "UpsertCouponStats", mock.Anything, mock.Anything)
		assert.Empty(t, fx.invalidator.namespaces)
		assert.Equal(t, 1, fx.logs.FilterMessage("Sync run failed").Len())
	})

	t.Run("fetch failure is reported as a phase error", func(t *testing.T) {
		fx := newSyncFixture(t)
		fx.store.customers = []scriptedPage[storefront.Customer]{{err: storefront.ErrStorefrontAuthFailed}}
		fx.repos.daily.On("UpsertDailyStats", mock.Anything, mock.Anything).Return(nil)
		fx.repos.products.On("UpsertProductStats", mock.Anything, mock.Anything).Return(nil)
		fx.repos.syncLogs.On("Append", mock.Anything, statusIs(analytics.SyncStatusError)).Return(nil)

		rep := fx.orch.Run(context.Background())

		assert.ErrorIs(t, rep.Err, ErrFetchFailed)
		assert.ErrorIs(t, rep.Err, storefront.ErrStorefrontAuthFailed)
		assert.Contains(t, rep.Err.Error(), "customer phase")
		assert.Len(t, rep.Phases, 2)
	})

	t.Run("unconfigured storefront fails the first phase", func(t *testing.T) {
		fx := newSyncFixture(t)
		fx.store.configured = false
		fx.repos.syncLogs.On("Append", mock.Anything, statusIs(analytics.SyncStatusError)).Return(nil)

		rep := fx.orch.Run(context.Background())

		assert.ErrorIs(t, rep.Err, storefront.ErrStorefrontNotConfigured)
		assert.Empty(t, rep.Phases)
		assert.Equal(t, 0, fx.store.callCount(CollectionOrders))
	})

	t.Run("panicking phase is recovered", func(t *testing.T) {
		fx := newSyncFixture(t)
		fx.repos.daily.On("UpsertDailyStats", mock.Anything, mock.Anything).Panic("boom")
		fx.repos.syncLogs.On("Append", mock.Anything, statusIs(analytics.SyncStatusError)).Return(nil)

		var rep *SyncReport
		require.NotPanics(t, func() { rep = fx.orch.Run(context.Background()) })

		assert.ErrorIs(t, rep.Err, ErrSyncPanicked)
		assert.Contains(t, rep.Err.Error(), "boom")
		assert.False(t, fx.orch.IsRunning())
	})

	t.Run("partial fetch is persisted and flagged", func(t *testing.T) {
		fx := newSyncFixture(t)
		fx.store.orders = append(fx.store.orders, scriptedPage[storefront.Order]{err: storefront.ErrStorefrontUnavailable})
		fx.expectAllPhasesSucceed(nil)
		fx.repos.syncLogs.On("Append", mock.Anything, statusIs(analytics.SyncStatusSuccess)).Return(nil)

		rep := fx.orch.Run(context.Background())

		require.NoError(t, rep.Err)
		assert.True(t, rep.Phases[0].Partial)
		assert.True(t, rep.Phases[2].Partial)
	})

	t.Run("partial fetch leaves days without orders untouched", func(t *testing.T) {
		fx := newSyncFixture(t)
		fx.store.orders = append(fx.store.orders, scriptedPage[storefront.Order]{err: storefront.ErrStorefrontUnavailable})
		fx.expectAllPhasesSucceed(nil)
		fx.repos.syncLogs.On("Append", mock.Anything, mock.Anything).Return(nil)

		var daily []analytics.DailyStat
		fx.repos.daily.ExpectedCalls = nil
		fx.repos.daily.On("UpsertDailyStats", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { daily = args.Get(1).([]analytics.DailyStat) }).
			Return(nil)

		rep := fx.orch.Run(context.Background())

		require.NoError(t, rep.Err)
		require.Len(t, daily, 2)
		assert.Equal(t, 2, rep.Phases[0].Records)
		for _, d := range daily {
			assert.Positive(t, d.OrderCount, d.Date.Format(storefront.DayLayout))
		}
		assert.Equal(t, "2024-03-31", daily[1].Date.Format(storefront.DayLayout))
	})

	t.Run("customer stats carry the last order inside the lookback", func(t *testing.T) {
		fx := newSyncFixture(t)
		fx.expectAllPhasesSucceed(nil)
		fx.repos.syncLogs.On("Append", mock.Anything, mock.Anything).Return(nil)

		var customers []analytics.CustomerStat
		fx.repos.customers.ExpectedCalls = nil
		fx.repos.customers.On("UpsertCustomerStats", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { customers = args.Get(1).([]analytics.CustomerStat) }).
			Return(nil)

		fx.orch.Run(context.Background())

		require.Len(t, customers, 1)
		require.NotNil(t, customers[0].LastOrderAt)
		assert.True(t, fixedNow.Add(-2*time.Hour).Equal(*customers[0].LastOrderAt))
	})

	t.Run("notifier failure does not fail the run", func(t *testing.T) {
		fx := newSyncFixture(t)
		transitions := []analytics.BleedingTransition{{CouponCode: "SAVE40", Bleeding: true}}
		fx.expectAllPhasesSucceed(transitions)
		fx.notifier.On("NotifyBleedingTransitions", mock.Anything, transitions).Return(errors.New("webhook down"))
		fx.repos.syncLogs.On("Append", mock.Anything, statusIs(analytics.SyncStatusSuccess)).Return(nil)

		rep := fx.orch.Run(context.Background())

		require.NoError(t, rep.Err)
		assert.Equal(t, 1, fx.logs.FilterMessage("Coupon alert delivery failed").Len())
	})

	t.Run("sync log write failure is logged", func(t *testing.T) {
		fx := newSyncFixture(t)
		fx.expectAllPhasesSucceed(nil)
		fx.repos.syncLogs.On("Append", mock.Anything, mock.Anything).Return(errors.New("disk full"))

		rep := fx.orch.Run(context.Background())

		assert.Equal(t, analytics.SyncStatusSuccess, rep.Status)
		assert.Equal(t, 1, fx.logs.FilterMessage("Failed to append sync log").Len())
	})

	t.Run("sync log is written after cancellation", func(t *testing.T) {
		fx := newSyncFixture(t)
		ctx, cancel := context.WithCancel(context.Background())
		fx.repos.daily.On("UpsertDailyStats", mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { cancel() }).
			Return(context.Canceled)

		var writeCtxErr error
		fx.repos.syncLogs.On("Append", mock.Anything, statusIs(analytics.SyncStatusError)).
			Run(func(args mock.Arguments) { writeCtxErr = args.Get(0).(context.Context).Err() }).
			Return(nil)

		rep := fx.orch.Run(ctx)

		assert.ErrorIs(t, rep.Err, context.Canceled)
		assert.NoError(t, writeCtxErr)
		fx.repos.syncLogs.AssertNumberOfCalls(t, "Append", 1)
	})
}

func TestSyncOrchestrator_SkipsOverlappingRun(t *testing.T) {
	fx := newSyncFixture(t)
	fx.store.entered = make(chan struct{}, 1)
	fx.store.release = make(chan struct{})
	fx.expectAllPhasesSucceed(nil)
	fx.repos.syncLogs.On("Append", mock.Anything, mock.Anything).Return(nil)

	done := make(chan *SyncReport, 1)
	go func() { done <- fx.orch.Run(context.Background()) }()
	<-fx.store.entered

	assert.True(t, fx.orch.IsRunning())
	skipped := fx.orch.Run(context.Background())
	assert.True(t, skipped.Skipped)
	assert.Empty(t, skipped.RunID)
	assert.Equal(t, 1, fx.logs.FilterMessage("Sync already in progress, skipping run").Len())

	close(fx.store.release)
	first := <-done
	assert.False(t, first.Skipped)
	assert.Equal(t, analytics.SyncStatusSuccess, first.Status)
	fx.repos.syncLogs.AssertNumberOfCalls(t, "Append", 1)
	assert.Same(t, first, fx.orch.LastReport())
}

func TestSyncOrchestrator_Tick(t *testing.T) {
	fx := newSyncFixture(t)
	fx.expectAllPhasesSucceed(nil)
	fx.repos.syncLogs.On("Append", mock.Anything, mock.Anything).Return(nil)

	assert.Nil(t, fx.orch.LastReport())
	fx.orch.Tick(context.Background())

	require.NotNil(t, fx.orch.LastReport())
	assert.Equal(t, analytics.SyncStatusSuccess, fx.orch.LastReport().Status)
}

func TestSyncReport_RecordsProcessed(t *testing.T) {
	rep := &SyncReport{Phases: []PhaseSummary{{Records: 90}, {Records: 3}, {Records: 0}}}
	assert.Equal(t, int64(93), rep.RecordsProcessed())
}
