package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/storepulse/backend/internal/application/report"
	domainreport "github.com/storepulse/backend/internal/domain/report"
	"github.com/storepulse/backend/internal/domain/storefront"
	"github.com/storepulse/backend/internal/infrastructure/cache"
	"github.com/storepulse/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Collection names, also used as cache namespaces
const (
	CollectionOrders        = "orders"
	CollectionCustomers     = "customers"
	CollectionProducts      = "products"
	CollectionDiscountCodes = "discount_codes"
)

// ErrFetchFailed wraps a fetch that produced no records at all
var ErrFetchFailed = errors.New("integration: fetch failed")

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// FetcherConfig controls pagination pacing and cache lifetimes
type FetcherConfig struct {
	// PageSize is the limit sent with every page request
	PageSize int
	// PageDelay is the pause between consecutive pages; zero disables it
	PageDelay time.Duration

	OrdersTTL        time.Duration
	CustomersTTL     time.Duration
	ProductsTTL      time.Duration
	DiscountCodesTTL time.Duration
}

// DefaultFetcherConfig returns default configuration
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		PageSize:         250,
		PageDelay:        250 * time.Millisecond,
		OrdersTTL:        5 * time.Minute,
		CustomersTTL:     5 * time.Minute,
		ProductsTTL:      10 * time.Minute,
		DiscountCodesTTL: 30 * time.Minute,
	}
}

func (c *FetcherConfig) applyDefaults() {
	d := DefaultFetcherConfig()
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	if c.PageDelay < 0 {
		c.PageDelay = 0
	}
	if c.OrdersTTL <= 0 {
		c.OrdersTTL = d.OrdersTTL
	}
	if c.CustomersTTL <= 0 {
		c.CustomersTTL = d.CustomersTTL
	}
	if c.ProductsTTL <= 0 {
		c.ProductsTTL = d.ProductsTTL
	}
	if c.DiscountCodesTTL <= 0 {
		c.DiscountCodesTTL = d.DiscountCodesTTL
	}
}

// RecordCache is the part of the expiring cache the fetcher reads and fills
type RecordCache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
}

// ---------------------------------------------------------------------------
// Result sets
// ---------------------------------------------------------------------------

// RecordSet is the accumulated result of paginating one collection.
// Cached sets are shared between callers and must not be mutated.
type RecordSet[T any] struct {
	Items []T
	// Partial is set when a page error or cancellation stopped pagination early
	Partial bool
	// Skipped counts records dropped at ingestion
	Skipped   int
	Pages     int
	FetchedAt time.Time
}

// OrderSet is a fetched set of orders with totals computed once
type OrderSet struct {
	Orders    []storefront.Order
	Totals    domainreport.Totals
	Partial   bool
	Skipped   int
	FetchedAt time.Time
}

// ---------------------------------------------------------------------------
// Fetcher
// ---------------------------------------------------------------------------

// Fetcher pages through storefront collections, caching complete results
type Fetcher struct {
	store   storefront.Storefront
	cache   RecordCache
	config  FetcherConfig
	metrics *telemetry.PipelineMetrics
	logger  *zap.Logger
	now     func() time.Time
	flights singleflight.Group
}

// FetcherOption configures a Fetcher
type FetcherOption func(*Fetcher)

// WithFetcherLogger sets the logger
func WithFetcherLogger(logger *zap.Logger) FetcherOption {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithFetcherMetrics records page and fetch counters
func WithFetcherMetrics(m *telemetry.PipelineMetrics) FetcherOption {
	return func(f *Fetcher) {
		f.metrics = m
	}
}

// WithFetcherClock overrides the clock used for FetchedAt
func WithFetcherClock(now func() time.Time) FetcherOption {
	return func(f *Fetcher) {
		if now != nil {
			f.now = now
		}
	}
}

// NewFetcher creates a fetcher over a storefront port and a record cache
func NewFetcher(store storefront.Storefront, recordCache RecordCache, config FetcherConfig, opts ...FetcherOption) *Fetcher {
	config.applyDefaults()
	f := &Fetcher{
		store:  store,
		cache:  recordCache,
		config: config,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchOrders returns orders created inside window. A nil window fetches the
// whole collection; an empty window returns an empty set without any request.
func (f *Fetcher) FetchOrders(ctx context.Context, window *storefront.PeriodWindow, opts map[string]string) (*OrderSet, error) {
	if window != nil && window.IsEmpty() {
		return &OrderSet{FetchedAt: f.now()}, nil
	}

	v, err := f.fetch(ctx, CollectionOrders, f.config.OrdersTTL, window, opts, func(ctx context.Context) (fetchResult, error) {
		set, err := paginate(ctx, f, CollectionOrders, f.store.ListOrders, window, opts)
		if err != nil {
			return fetchResult{}, err
		}
		return fetchResult{
			value: &OrderSet{
				Orders:    set.Items,
				Totals:    report.Summarize(set.Items),
				Partial:   set.Partial,
				Skipped:   set.Skipped,
				FetchedAt: set.FetchedAt,
			},
			partial: set.Partial,
			skipped: set.Skipped,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*OrderSet), nil
}

// FetchCustomers returns customers created inside window, or all when window is nil
func (f *Fetcher) FetchCustomers(ctx context.Context, window *storefront.PeriodWindow, opts map[string]string) (*RecordSet[storefront.Customer], error) {
	if window != nil && window.IsEmpty() {
		return &RecordSet[storefront.Customer]{FetchedAt: f.now()}, nil
	}
	return fetchRecords(ctx, f, CollectionCustomers, f.config.CustomersTTL, window, opts, f.store.ListCustomers)
}

// FetchProducts returns the whole product catalog
func (f *Fetcher) FetchProducts(ctx context.Context, opts map[string]string) (*RecordSet[storefront.Product], error) {
	return fetchRecords(ctx, f, CollectionProducts, f.config.ProductsTTL, nil, opts, f.store.ListProducts)
}

// FetchDiscountCodes returns every discount code with its price rule value
func (f *Fetcher) FetchDiscountCodes(ctx context.Context, opts map[string]string) (*RecordSet[storefront.DiscountCode], error) {
	return fetchRecords(ctx, f, CollectionDiscountCodes, f.config.DiscountCodesTTL, nil, opts, f.store.ListDiscountCodes)
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

type fetchResult struct {
	value   any
	partial bool
	skipped int
	hit     bool
}

type pageFunc[T any] func(ctx context.Context, req storefront.PageRequest) (*storefront.Page[T], error)

func fetchRecords[T any](
	ctx context.Context,
	f *Fetcher,
	collection string,
	ttl time.Duration,
	window *storefront.PeriodWindow,
	opts map[string]string,
	list pageFunc[T],
) (*RecordSet[T], error) {
	v, err := f.fetch(ctx, collection, ttl, window, opts, func(ctx context.Context) (fetchResult, error) {
		set, err := paginate(ctx, f, collection, list, window, opts)
		if err != nil {
			return fetchResult{}, err
		}
		return fetchResult{value: set, partial: set.Partial, skipped: set.Skipped}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*RecordSet[T]), nil
}

// fetch serves key from cache, or runs load once for all concurrent callers
// of the same key. Partial results are returned but never cached.
func (f *Fetcher) fetch(
	ctx context.Context,
	collection string,
	ttl time.Duration,
	window *storefront.PeriodWindow,
	opts map[string]string,
	load func(ctx context.Context) (fetchResult, error),
) (any, error) {
	if !f.store.IsConfigured() {
		return nil, storefront.ErrStorefrontNotConfigured
	}

	key := cacheKey(collection, window, opts)
	ctx, span := telemetry.StartServiceSpan(ctx, "fetcher", collection,
		telemetry.WithAttribute(telemetry.SpanAttrCacheKey, key),
	)
	defer span.End()

	if v, ok := f.cache.Get(key); ok {
		telemetry.SetAttributes(span, "cache.hit", true)
		f.metrics.RecordFetch(ctx, collection, true, false, 0)
		return v, nil
	}

	shared, err, _ := f.flights.Do(key, func() (any, error) {
		// A flight that finished just before this one may have filled the key
		if v, ok := f.cache.Get(key); ok {
			return fetchResult{value: v, hit: true}, nil
		}
		res, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if !res.partial {
			f.cache.Set(key, res.value, ttl)
		}
		return res, nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	res := shared.(fetchResult)
	telemetry.SetAttributes(span,
		"cache.hit", res.hit,
		telemetry.SpanAttrPartial, res.partial,
	)
	f.metrics.RecordFetch(ctx, collection, res.hit, res.partial, res.skipped)
	return res.value, nil
}

// paginate follows continuation tokens until the storefront announces no next
// page. A page error after at least one good page ends the loop with a partial
// set; a failing first page, or a configuration error, is returned.
func paginate[T any](
	ctx context.Context,
	f *Fetcher,
	collection string,
	list pageFunc[T],
	window *storefront.PeriodWindow,
	opts map[string]string,
) (*RecordSet[T], error) {
	set := &RecordSet[T]{}
	req := storefront.PageRequest{
		Window:  window,
		Limit:   f.config.PageSize,
		Options: opts,
	}

	for {
		hasNext, err := f.requestPage(ctx, collection, set.Pages+1, func(ctx context.Context) (int, bool, error) {
			p, err := list(ctx, req)
			if err != nil {
				return 0, false, err
			}
			set.Items = append(set.Items, p.Items...)
			set.Skipped += p.Skipped
			req = storefront.PageRequest{Limit: f.config.PageSize, PageInfo: p.NextPageInfo}
			return len(p.Items), p.HasNext && p.NextPageInfo != "", nil
		})
		if err != nil {
			if errors.Is(err, storefront.ErrStorefrontNotConfigured) {
				return nil, err
			}
			if set.Pages == 0 {
				return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, collection, err)
			}
			f.logger.Warn("Page request failed, keeping partial result",
				zap.String("collection", collection),
				zap.Int("page", set.Pages+1),
				zap.Int("records", len(set.Items)),
				zap.Error(err),
			)
			set.Partial = true
			break
		}
		set.Pages++

		if !hasNext {
			break
		}
		if err := f.pause(ctx); err != nil {
			f.logger.Warn("Pagination interrupted between pages",
				zap.String("collection", collection),
				zap.Int("pages", set.Pages),
				zap.Error(err),
			)
			set.Partial = true
			break
		}
	}

	set.FetchedAt = f.now()
	f.logger.Debug("Collection fetched",
		zap.String("collection", collection),
		zap.Int("pages", set.Pages),
		zap.Int("records", len(set.Items)),
		zap.Int("skipped", set.Skipped),
		zap.Bool("partial", set.Partial),
	)
	return set, nil
}

// requestPage runs one page call inside a client span and reports whether another page follows
func (f *Fetcher) requestPage(ctx context.Context, collection string, pageNo int, call func(ctx context.Context) (int, bool, error)) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "storefront.page",
		telemetry.WithAttribute(telemetry.SpanAttrCollection, collection),
		telemetry.WithAttribute(telemetry.SpanAttrPages, pageNo),
		telemetry.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	start := time.Now()
	records, hasNext, err := call(ctx)
	f.metrics.RecordPageRequest(ctx, collection, time.Since(start), err)
	if err != nil {
		telemetry.RecordError(span, err)
		return false, err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrRecords, records)
	return hasNext, nil
}

// pause waits PageDelay, returning early with the context's error
func (f *Fetcher) pause(ctx context.Context) error {
	if f.config.PageDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(f.config.PageDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func cacheKey(collection string, window *storefront.PeriodWindow, opts map[string]string) string {
	if window == nil {
		return cache.GenerateKey(collection, nil, nil, opts)
	}
	return cache.GenerateKey(collection, &window.Start, &window.End, opts)
}
