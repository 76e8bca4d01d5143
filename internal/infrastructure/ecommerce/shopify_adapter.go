package ecommerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"github.com/storepulse/backend/internal/domain/storefront"
	"go.uber.org/zap"
)

// maxResponseSize is the maximum allowed response size from the Shopify API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// ShopifyAdapter implements storefront.Storefront over the Shopify Admin REST API.
// Every call issues one page request; requests go through a circuit breaker.
type ShopifyAdapter struct {
	config     *ShopifyConfig
	configErr  error
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewShopifyAdapter creates a new Shopify adapter. An invalid configuration does
// not fail construction; every call then returns storefront.ErrStorefrontNotConfigured.
func NewShopifyAdapter(config *ShopifyConfig, logger *zap.Logger) *ShopifyAdapter {
	if config == nil {
		config = &ShopifyConfig{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	configErr := config.Validate()

	a := &ShopifyAdapter{
		config:    config,
		configErr: configErr,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		logger: logger,
	}
	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "shopify-" + config.ShopDomain,
		Timeout: time.Duration(config.BreakerCooldownSeconds) * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= config.BreakerFailures
		},
		// Only outages and throttling count toward opening the circuit
		IsSuccessful: func(err error) bool {
			return err == nil ||
				!(errors.Is(err, storefront.ErrStorefrontUnavailable) || errors.Is(err, storefront.ErrStorefrontRateLimited))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Storefront circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return a
}

// Name returns the adapter name
func (a *ShopifyAdapter) Name() string {
	return "shopify"
}

// IsConfigured reports whether credentials are present
func (a *ShopifyAdapter) IsConfigured() bool {
	return a.configErr == nil
}

// BreakerState exposes the circuit state for health reporting
func (a *ShopifyAdapter) BreakerState() gobreaker.State {
	return a.breaker.State()
}

// ---------------------------------------------------------------------------
// Collections
// ---------------------------------------------------------------------------

// ListOrders fetches one page of orders
func (a *ShopifyAdapter) ListOrders(ctx context.Context, req storefront.PageRequest) (*storefront.Page[storefront.Order], error) {
	query := a.pageQuery(req, "created_at", map[string]string{"status": "any"})
	resp, err := a.get(ctx, "/orders.json", query)
	if err != nil {
		return nil, err
	}

	var body ShopifyOrdersResponse
	if err := json.Unmarshal(resp.body, &body); err != nil {
		return nil, fmt.Errorf("%w: failed to parse orders: %v", storefront.ErrStorefrontInvalidResponse, err)
	}
	orders, skipped := convertRecords(body.Orders, (*ShopifyOrder).toRecord)
	a.logSkipped("orders", skipped)

	return &storefront.Page[storefront.Order]{
		Items:        orders,
		NextPageInfo: resp.next,
		HasNext:      resp.next != "",
		Skipped:      skipped,
	}, nil
}

// ListCustomers fetches one page of customers
func (a *ShopifyAdapter) ListCustomers(ctx context.Context, req storefront.PageRequest) (*storefront.Page[storefront.Customer], error) {
	query := a.pageQuery(req, "created_at", nil)
	resp, err := a.get(ctx, "/customers.json", query)
	if err != nil {
		return nil, err
	}

	var body ShopifyCustomersResponse
	if err := json.Unmarshal(resp.body, &body); err != nil {
		return nil, fmt.Errorf("%w: failed to parse customers: %v", storefront.ErrStorefrontInvalidResponse, err)
	}
	customers, skipped := convertRecords(body.Customers, (*ShopifyCustomer).toRecord)
	a.logSkipped("customers", skipped)

	return &storefront.Page[storefront.Customer]{
		Items:        customers,
		NextPageInfo: resp.next,
		HasNext:      resp.next != "",
		Skipped:      skipped,
	}, nil
}

// ListProducts fetches one page of products
func (a *ShopifyAdapter) ListProducts(ctx context.Context, req storefront.PageRequest) (*storefront.Page[storefront.Product], error) {
	query := a.pageQuery(req, "created_at", nil)
	resp, err := a.get(ctx, "/products.json", query)
	if err != nil {
		return nil, err
	}

	var body ShopifyProductsResponse
	if err := json.Unmarshal(resp.body, &body); err != nil {
		return nil, fmt.Errorf("%w: failed to parse products: %v", storefront.ErrStorefrontInvalidResponse, err)
	}
	products, skipped := convertRecords(body.Products, (*ShopifyProduct).toRecord)
	a.logSkipped("products", skipped)

	return &storefront.Page[storefront.Product]{
		Items:        products,
		NextPageInfo: resp.next,
		HasNext:      resp.next != "",
		Skipped:      skipped,
	}, nil
}

// ListDiscountCodes fetches one page of price rules and expands every rule into
// its discount codes. The continuation token pages over price rules.
func (a *ShopifyAdapter) ListDiscountCodes(ctx context.Context, req storefront.PageRequest) (*storefront.Page[storefront.DiscountCode], error) {
	query := a.pageQuery(req, "", nil)
	resp, err := a.get(ctx, "/price_rules.json", query)
	if err != nil {
		return nil, err
	}

	var body ShopifyPriceRulesResponse
	if err := json.Unmarshal(resp.body, &body); err != nil {
		return nil, fmt.Errorf("%w: failed to parse price rules: %v", storefront.ErrStorefrontInvalidResponse, err)
	}

	page := &storefront.Page[storefront.DiscountCode]{
		NextPageInfo: resp.next,
		HasNext:      resp.next != "",
	}
	for i := range body.PriceRules {
		rule := &body.PriceRules[i]
		codes, skipped, err := a.listRuleCodes(ctx, rule)
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, codes...)
		page.Skipped += skipped
	}
	a.logSkipped("discount_codes", page.Skipped)
	return page, nil
}

// listRuleCodes follows every page of one price rule's discount codes
func (a *ShopifyAdapter) listRuleCodes(ctx context.Context, rule *ShopifyPriceRule) ([]storefront.DiscountCode, int, error) {
	path := "/price_rules/" + strconv.FormatInt(rule.ID, 10) + "/discount_codes.json"
	convert := func(d *ShopifyDiscountCode) (storefront.DiscountCode, error) {
		return d.toRecord(rule)
	}

	var codes []storefront.DiscountCode
	skipped := 0
	pageInfo := ""
	for {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(a.config.PageSize))
		if pageInfo != "" {
			query.Set("page_info", pageInfo)
		}
		resp, err := a.get(ctx, path, query)
		if err != nil {
			return nil, 0, err
		}

		var body ShopifyDiscountCodesResponse
		if err := json.Unmarshal(resp.body, &body); err != nil {
			return nil, 0, fmt.Errorf("%w: failed to parse discount codes: %v", storefront.ErrStorefrontInvalidResponse, err)
		}
		page, n := convertRecords(body.DiscountCodes, convert)
		codes = append(codes, page...)
		skipped += n

		if resp.next == "" {
			return codes, skipped, nil
		}
		pageInfo = resp.next
	}
}

// pageQuery builds the query of a page request. The first request carries the
// window and filters; continuation requests carry only page_info and limit.
func (a *ShopifyAdapter) pageQuery(req storefront.PageRequest, dateField string, defaults map[string]string) url.Values {
	limit := req.Limit
	if limit <= 0 || limit > a.config.PageSize {
		limit = a.config.PageSize
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if !req.IsFirst() {
		query.Set("page_info", req.PageInfo)
		return query
	}

	for k, v := range defaults {
		query.Set(k, v)
	}
	for k, v := range req.Options {
		query.Set(k, v)
	}
	if req.Window != nil && dateField != "" {
		query.Set(dateField+"_min", req.Window.Start.Format(time.RFC3339))
		query.Set(dateField+"_max", req.Window.End.Format(time.RFC3339))
	}
	return query
}

func (a *ShopifyAdapter) logSkipped(collection string, skipped int) {
	if skipped > 0 {
		a.logger.Warn("Skipped malformed storefront records",
			zap.String("collection", collection),
			zap.Int("skipped", skipped))
	}
}

// ---------------------------------------------------------------------------
// HTTP
// ---------------------------------------------------------------------------

// shopifyResponse is a successful response body and its next-page cursor
type shopifyResponse struct {
	body []byte
	next string
}

// get issues a GET through the circuit breaker
func (a *ShopifyAdapter) get(ctx context.Context, path string, query url.Values) (*shopifyResponse, error) {
	if a.configErr != nil {
		return nil, fmt.Errorf("%w: %w", storefront.ErrStorefrontNotConfigured, a.configErr)
	}

	result, err := a.breaker.Execute(func() (interface{}, error) {
		return a.doRequest(ctx, path, query)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: circuit %s", storefront.ErrStorefrontUnavailable, a.breaker.State())
	}
	if err != nil {
		return nil, err
	}
	return result.(*shopifyResponse), nil
}

// doRequest performs a single request and maps failures onto storefront errors
func (a *ShopifyAdapter) doRequest(ctx context.Context, path string, query url.Values) (*shopifyResponse, error) {
	endpoint := a.config.BaseURL() + path
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("shopify: failed to create request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", a.config.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storefront.ErrStorefrontUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", storefront.ErrStorefrontUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: HTTP 429 (retry after %s)", storefront.ErrStorefrontRateLimited, resp.Header.Get("Retry-After"))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: HTTP %d", storefront.ErrStorefrontAuthFailed, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", storefront.ErrStorefrontUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: HTTP %d", storefront.ErrStorefrontRequestFailed, resp.StatusCode)
	}

	return &shopifyResponse{
		body: body,
		next: parseNextPageInfo(resp.Header.Get("Link")),
	}, nil
}

// Ensure ShopifyAdapter implements storefront.Storefront
var _ storefront.Storefront = (*ShopifyAdapter)(nil)
