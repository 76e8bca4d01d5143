package storefront

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Storefront errors
var (
	// ErrStorefrontNotConfigured is returned when credentials are missing; never retried
	ErrStorefrontNotConfigured = errors.New("storefront: not configured")
	// ErrStorefrontUnavailable is returned when the remote API cannot be reached
	ErrStorefrontUnavailable = errors.New("storefront: service unavailable")
	// ErrStorefrontRequestFailed is returned when the remote API rejects a request
	ErrStorefrontRequestFailed = errors.New("storefront: request failed")
	// ErrStorefrontInvalidResponse is returned when a response body cannot be decoded
	ErrStorefrontInvalidResponse = errors.New("storefront: invalid response")
	// ErrStorefrontRateLimited is returned on HTTP 429
	ErrStorefrontRateLimited = errors.New("storefront: rate limited")
	// ErrStorefrontAuthFailed is returned when the access token is rejected
	ErrStorefrontAuthFailed = errors.New("storefront: authentication failed")
	// ErrInvalidRecord marks a single record rejected at ingestion
	ErrInvalidRecord = errors.New("storefront: invalid record")
)

// PageRequest describes one page request against a remote collection
type PageRequest struct {
	// Window filters by creation time; nil means the whole collection
	Window *PeriodWindow
	// Limit is the page size ceiling; adapters clamp it to what the API accepts
	Limit int
	// PageInfo is the continuation token from the previous page, empty for the first page
	PageInfo string
	// Options carries extra filters (e.g. "status"); ignored on continuation pages
	Options map[string]string
}

// IsFirst returns true if this is the first request of a pagination loop
func (r PageRequest) IsFirst() bool {
	return r.PageInfo == ""
}

// Page is a single page of records
type Page[T any] struct {
	Items []T
	// NextPageInfo is the continuation token for the next page
	NextPageInfo string
	// HasNext is set only when the response explicitly announced another page
	HasNext bool
	// Skipped counts records dropped at ingestion
	Skipped int
}

// Storefront is the port to a remote commerce API.
// Implementations must treat each call as a single page request with a bounded timeout.
type Storefront interface {
	// Name returns the adapter name for logs and metrics
	Name() string

	// IsConfigured reports whether credentials are present
	IsConfigured() bool

	ListOrders(ctx context.Context, req PageRequest) (*Page[Order], error)
	ListCustomers(ctx context.Context, req PageRequest) (*Page[Customer], error)
	ListProducts(ctx context.Context, req PageRequest) (*Page[Product], error)
	ListDiscountCodes(ctx context.Context, req PageRequest) (*Page[DiscountCode], error)
}

// ---------------------------------------------------------------------------
// Ingestion validation
// ---------------------------------------------------------------------------

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func recordValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateRecord checks required fields on a decoded record.
// The returned error wraps ErrInvalidRecord.
func ValidateRecord(record any) error {
	if err := recordValidator().Struct(record); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return nil
}

// FilterValid keeps the records that pass ValidateRecord and returns how many were dropped
func FilterValid[T any](records []T) ([]T, int) {
	valid := make([]T, 0, len(records))
	skipped := 0
	for i := range records {
		if err := ValidateRecord(&records[i]); err != nil {
			skipped++
			continue
		}
		valid = append(valid, records[i])
	}
	return valid, skipped
}
