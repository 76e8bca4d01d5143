package ecommerce

import (
	"errors"
	"fmt"
	"strings"
)

// ShopifyConfig holds configuration for the Shopify Admin REST API
type ShopifyConfig struct {
	// ShopDomain is the shop's myshopify domain (e.g. "acme.myshopify.com")
	ShopDomain string
	// AccessToken is the Admin API access token
	AccessToken string
	// APIVersion is the dated Admin API version (e.g. "2024-01")
	APIVersion string
	// APIBaseURL overrides the URL derived from ShopDomain and APIVersion
	APIBaseURL string
	// TimeoutSeconds is the HTTP timeout of a single page request
	TimeoutSeconds int
	// PageSize is the default page size ceiling
	PageSize int
	// BreakerFailures is the number of consecutive failures that opens the circuit
	BreakerFailures uint32
	// BreakerCooldownSeconds is how long the circuit stays open before a trial request
	BreakerCooldownSeconds int
}

const (
	// ShopifyDefaultAPIVersion is the Admin API version used when none is configured
	ShopifyDefaultAPIVersion = "2024-01"
	// ShopifyMaxPageSize is the largest limit the REST Admin API accepts
	ShopifyMaxPageSize = 250

	shopifyDefaultTimeoutSeconds  = 30
	shopifyDefaultBreakerFailures = 5
	shopifyDefaultBreakerCooldown = 30
)

// Errors for Shopify configuration
var (
	ErrShopifyConfigMissingShopDomain  = errors.New("shopify: shop domain is required")
	ErrShopifyConfigMissingAccessToken = errors.New("shopify: access token is required")
)

// NewShopifyConfig creates a new Shopify configuration with defaults
func NewShopifyConfig(shopDomain, accessToken string) *ShopifyConfig {
	return &ShopifyConfig{
		ShopDomain:             shopDomain,
		AccessToken:            accessToken,
		APIVersion:             ShopifyDefaultAPIVersion,
		TimeoutSeconds:         shopifyDefaultTimeoutSeconds,
		PageSize:               ShopifyMaxPageSize,
		BreakerFailures:        shopifyDefaultBreakerFailures,
		BreakerCooldownSeconds: shopifyDefaultBreakerCooldown,
	}
}

// Validate validates the Shopify configuration and fills defaults
func (c *ShopifyConfig) Validate() error {
	if strings.TrimSpace(c.ShopDomain) == "" && c.APIBaseURL == "" {
		return ErrShopifyConfigMissingShopDomain
	}
	if strings.TrimSpace(c.AccessToken) == "" {
		return ErrShopifyConfigMissingAccessToken
	}
	if c.APIVersion == "" {
		c.APIVersion = ShopifyDefaultAPIVersion
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = shopifyDefaultTimeoutSeconds
	}
	if c.PageSize <= 0 || c.PageSize > ShopifyMaxPageSize {
		c.PageSize = ShopifyMaxPageSize
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = shopifyDefaultBreakerFailures
	}
	if c.BreakerCooldownSeconds <= 0 {
		c.BreakerCooldownSeconds = shopifyDefaultBreakerCooldown
	}
	return nil
}

// BaseURL returns the Admin API root without a trailing slash
func (c *ShopifyConfig) BaseURL() string {
	if c.APIBaseURL != "" {
		return strings.TrimRight(c.APIBaseURL, "/")
	}
	domain := strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(c.ShopDomain, "https://"), "http://"), "/")
	return fmt.Sprintf("https://%s/admin/api/%s", domain, c.APIVersion)
}
