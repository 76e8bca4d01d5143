package integration

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/storepulse/backend/internal/domain/analytics"
	"github.com/storepulse/backend/internal/domain/storefront"
	"github.com/stretchr/testify/mock"
)

// ---------------------------------------------------------------------------
// Scripted storefront
// ---------------------------------------------------------------------------

// scriptedPage is one canned response; PageInfo "" serves index 0, "1" index 1, ...
type scriptedPage[T any] struct {
	items   []T
	skipped int
	err     error
}

type fakeStorefront struct {
	mu         sync.Mutex
	configured bool

	orders    []scriptedPage[storefront.Order]
	customers []scriptedPage[storefront.Customer]
	products  []scriptedPage[storefront.Product]
	codes     []scriptedPage[storefront.DiscountCode]

	calls         map[string]int
	orderRequests []storefront.PageRequest

	// When set, ListOrders signals entered and then waits for release
	entered chan struct{}
	release chan struct{}
}

func newFakeStorefront() *fakeStorefront {
	return &fakeStorefront{configured: true, calls: map[string]int{}}
}

func (f *fakeStorefront) Name() string       { return "fake" }
func (f *fakeStorefront) IsConfigured() bool { return f.configured }

func (f *fakeStorefront) callCount(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[collection]
}

func (f *fakeStorefront) record(collection string) {
	f.mu.Lock()
	f.calls[collection]++
	f.mu.Unlock()
}

func (f *fakeStorefront) ListOrders(ctx context.Context, req storefront.PageRequest) (*storefront.Page[storefront.Order], error) {
	f.record(CollectionOrders)
	f.mu.Lock()
	f.orderRequests = append(f.orderRequests, req)
	entered, release := f.entered, f.release
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return servePage(f.orders, req)
}

func (f *fakeStorefront) ListCustomers(_ context.Context, req storefront.PageRequest) (*storefront.Page[storefront.Customer], error) {
	f.record(CollectionCustomers)
	return servePage(f.customers, req)
}

func (f *fakeStorefront) ListProducts(_ context.Context, req storefront.PageRequest) (*storefront.Page[storefront.Product], error) {
	f.record(CollectionProducts)
	return servePage(f.products, req)
}

func (f *fakeStorefront) ListDiscountCodes(_ context.Context, req storefront.PageRequest) (*storefront.Page[storefront.DiscountCode], error) {
	f.record(CollectionDiscountCodes)
	return servePage(f.codes, req)
}

func servePage[T any](pages []scriptedPage[T], req storefront.PageRequest) (*storefront.Page[T], error) {
	idx := 0
	if req.PageInfo != "" {
		idx, _ = strconv.Atoi(req.PageInfo)
	}
	if idx >= len(pages) {
		return &storefront.Page[T]{}, nil
	}
	p := pages[idx]
	if p.err != nil {
		return nil, p.err
	}
	page := &storefront.Page[T]{Items: p.items, Skipped: p.skipped}
	if idx+1 < len(pages) {
		page.HasNext = true
		page.NextPageInfo = strconv.Itoa(idx + 1)
	}
	return page, nil
}

var _ storefront.Storefront = (*fakeStorefront)(nil)

// ---------------------------------------------------------------------------
// Record builders
// ---------------------------------------------------------------------------

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func order(id int64, at time.Time, total string) storefront.Order {
	return storefront.Order{
		ID:            id,
		CreatedAt:     at,
		CustomerID:    id % 3,
		SubtotalPrice: dec(total),
		TotalPrice:    dec(total),
	}
}

// ---------------------------------------------------------------------------
// Repository mocks
// ---------------------------------------------------------------------------

type mockDailyRepo struct{ mock.Mock }

func (m *mockDailyRepo) UpsertDailyStats(ctx context.Context, stats []analytics.DailyStat) error {
	return m.Called(ctx, stats).Error(0)
}

func (m *mockDailyRepo) FindDailyStats(ctx context.Context, from, to time.Time) ([]analytics.DailyStat, error) {
	args := m.Called(ctx, from, to)
	stats, _ := args.Get(0).([]analytics.DailyStat)
	return stats, args.Error(1)
}

type mockProductRepo struct{ mock.Mock }

func (m *mockProductRepo) UpsertProductStats(ctx context.Context, stats []analytics.ProductStat) error {
	return m.Called(ctx, stats).Error(0)
}

func (m *mockProductRepo) FindProductStat(ctx context.Context, productID int64) (*analytics.ProductStat, error) {
	args := m.Called(ctx, productID)
	stat, _ := args.Get(0).(*analytics.ProductStat)
	return stat, args.Error(1)
}

func (m *mockProductRepo) FindTopProductStats(ctx context.Context, limit int) ([]analytics.ProductStat, error) {
	args := m.Called(ctx, limit)
	stats, _ := args.Get(0).([]analytics.ProductStat)
	return stats, args.Error(1)
}

type mockCustomerRepo struct{ mock.Mock }

func (m *mockCustomerRepo) UpsertCustomerStats(ctx context.Context, stats []analytics.CustomerStat) error {
	return m.Called(ctx, stats).Error(0)
}

func (m *mockCustomerRepo) FindCustomerStat(ctx context.Context, customerID int64) (*analytics.CustomerStat, error) {
	args := m.Called(ctx, customerID)
	stat, _ := args.Get(0).(*analytics.CustomerStat)
	return stat, args.Error(1)
}

type mockCouponRepo struct{ mock.Mock }

func (m *mockCouponRepo) UpsertCouponStats(ctx context.Context, stats []analytics.CouponStat) ([]analytics.BleedingTransition, error) {
	args := m.Called(ctx, stats)
	transitions, _ := args.Get(0).([]analytics.BleedingTransition)
	return transitions, args.Error(1)
}

func (m *mockCouponRepo) FindCouponStat(ctx context.Context, code string) (*analytics.CouponStat, error) {
	args := m.Called(ctx, code)
	stat, _ := args.Get(0).(*analytics.CouponStat)
	return stat, args.Error(1)
}

func (m *mockCouponRepo) FindBleedingCoupons(ctx context.Context) ([]analytics.CouponStat, error) {
	args := m.Called(ctx)
	stats, _ := args.Get(0).([]analytics.CouponStat)
	return stats, args.Error(1)
}

type mockSyncLogRepo struct{ mock.Mock }

func (m *mockSyncLogRepo) Append(ctx context.Context, log *analytics.SyncLog) error {
	return m.Called(ctx, log).Error(0)
}

func (m *mockSyncLogRepo) FindRecent(ctx context.Context, limit int) ([]analytics.SyncLog, error) {
	args := m.Called(ctx, limit)
	logs, _ := args.Get(0).([]analytics.SyncLog)
	return logs, args.Error(1)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) NotifyBleedingTransitions(ctx context.Context, transitions []analytics.BleedingTransition) error {
	return m.Called(ctx, transitions).Error(0)
}

type mockRepos struct {
	daily     *mockDailyRepo
	products  *mockProductRepo
	customers *mockCustomerRepo
	coupons   *mockCouponRepo
	syncLogs  *mockSyncLogRepo
}

func newMockRepos() *mockRepos {
	return &mockRepos{
		daily:     &mockDailyRepo{},
		products:  &mockProductRepo{},
		customers: &mockCustomerRepo{},
		coupons:   &mockCouponRepo{},
		syncLogs:  &mockSyncLogRepo{},
	}
}

func (r *mockRepos) repositories() analytics.Repositories {
	return analytics.Repositories{
		Daily:     r.daily,
		Products:  r.products,
		Customers: r.customers,
		Coupons:   r.coupons,
		SyncLogs:  r.syncLogs,
	}
}
