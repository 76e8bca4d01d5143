package ecommerce

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/storepulse/backend/internal/domain/storefront"
)

// ---------------------------------------------------------------------------
// Shopify wire types
// ---------------------------------------------------------------------------

// ShopifyOrdersResponse is the body of GET /orders.json
type ShopifyOrdersResponse struct {
	Orders []ShopifyOrder `json:"orders"`
}

// ShopifyOrder is an order as returned by the REST Admin API.
// Money fields are decimal strings.
type ShopifyOrder struct {
	ID              int64                        `json:"id"`
	Name            string                       `json:"name"`
	Email           string                       `json:"email"`
	CreatedAt       string                       `json:"created_at"`
	Currency        string                       `json:"currency"`
	FinancialStatus string                       `json:"financial_status"`
	SubtotalPrice   string                       `json:"subtotal_price"`
	TotalPrice      string                       `json:"total_price"`
	TotalDiscounts  string                       `json:"total_discounts"`
	TotalTax        string                       `json:"total_tax"`
	Customer        *ShopifyOrderCustomer        `json:"customer,omitempty"`
	DiscountCodes   []ShopifyDiscountApplication `json:"discount_codes"`
	LineItems       []ShopifyLineItem            `json:"line_items"`
}

// ShopifyOrderCustomer is the customer stub embedded in an order
type ShopifyOrderCustomer struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// ShopifyDiscountApplication is a discount code applied to an order
type ShopifyDiscountApplication struct {
	Code   string `json:"code"`
	Amount string `json:"amount"`
	Type   string `json:"type"`
}

// ShopifyLineItem is a line of an order. ProductID is null for custom items.
type ShopifyLineItem struct {
	ID            int64  `json:"id"`
	ProductID     *int64 `json:"product_id"`
	VariantID     *int64 `json:"variant_id"`
	Title         string `json:"title"`
	Quantity      int64  `json:"quantity"`
	Price         string `json:"price"`
	TotalDiscount string `json:"total_discount"`
}

// ShopifyCustomersResponse is the body of GET /customers.json
type ShopifyCustomersResponse struct {
	Customers []ShopifyCustomer `json:"customers"`
}

// ShopifyCustomer is a customer as returned by the REST Admin API
type ShopifyCustomer struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	State       string `json:"state"`
	OrdersCount int64  `json:"orders_count"`
	TotalSpent  string `json:"total_spent"`
	LastOrderID *int64 `json:"last_order_id"`
	CreatedAt   string `json:"created_at"`
}

// ShopifyProductsResponse is the body of GET /products.json
type ShopifyProductsResponse struct {
	Products []ShopifyProduct `json:"products"`
}

// ShopifyProduct is a catalog product
type ShopifyProduct struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Status      string           `json:"status"`
	Vendor      string           `json:"vendor"`
	ProductType string           `json:"product_type"`
	CreatedAt   string           `json:"created_at"`
	Variants    []ShopifyVariant `json:"variants"`
}

// ShopifyVariant is a purchasable variant of a product
type ShopifyVariant struct {
	ID                int64  `json:"id"`
	SKU               string `json:"sku"`
	Price             string `json:"price"`
	InventoryQuantity int64  `json:"inventory_quantity"`
}

// ShopifyPriceRulesResponse is the body of GET /price_rules.json
type ShopifyPriceRulesResponse struct {
	PriceRules []ShopifyPriceRule `json:"price_rules"`
}

// ShopifyPriceRule carries the value of the discount codes attached to it.
// Value is negative (e.g. "-10.0").
type ShopifyPriceRule struct {
	ID        int64   `json:"id"`
	Title     string  `json:"title"`
	ValueType string  `json:"value_type"`
	Value     string  `json:"value"`
	StartsAt  string  `json:"starts_at"`
	EndsAt    *string `json:"ends_at"`
}

// ShopifyDiscountCodesResponse is the body of GET /price_rules/{id}/discount_codes.json
type ShopifyDiscountCodesResponse struct {
	DiscountCodes []ShopifyDiscountCode `json:"discount_codes"`
}

// ShopifyDiscountCode is a redeemable code of a price rule
type ShopifyDiscountCode struct {
	ID          int64  `json:"id"`
	PriceRuleID int64  `json:"price_rule_id"`
	Code        string `json:"code"`
	UsageCount  int64  `json:"usage_count"`
	CreatedAt   string `json:"created_at"`
}

// ---------------------------------------------------------------------------
// Conversion to storefront records
// ---------------------------------------------------------------------------

// ParseMoney parses a decimal money string. An empty string is zero.
func ParseMoney(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: malformed amount %q", storefront.ErrInvalidRecord, s)
	}
	return d, nil
}

// parseTimestamp parses an RFC 3339 timestamp. An empty string is the zero time.
func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: malformed timestamp %q", storefront.ErrInvalidRecord, s)
	}
	return t, nil
}

// moneyFields parses several money strings, stopping at the first malformed one
type moneyFields struct {
	err error
}

func (m *moneyFields) parse(s string) decimal.Decimal {
	if m.err != nil {
		return decimal.Zero
	}
	d, err := ParseMoney(s)
	if err != nil {
		m.err = err
	}
	return d
}

func (o *ShopifyOrder) toRecord() (storefront.Order, error) {
	createdAt, err := parseTimestamp(o.CreatedAt)
	if err != nil {
		return storefront.Order{}, err
	}

	var m moneyFields
	order := storefront.Order{
		ID:              o.ID,
		Name:            o.Name,
		CreatedAt:       createdAt,
		CustomerEmail:   o.Email,
		Currency:        o.Currency,
		FinancialStatus: o.FinancialStatus,
		SubtotalPrice:   m.parse(o.SubtotalPrice),
		TotalPrice:      m.parse(o.TotalPrice),
		TotalDiscounts:  m.parse(o.TotalDiscounts),
		TotalTax:        m.parse(o.TotalTax),
	}
	if o.Customer != nil {
		order.CustomerID = o.Customer.ID
		order.CustomerFirstName = o.Customer.FirstName
		order.CustomerLastName = o.Customer.LastName
		if order.CustomerEmail == "" {
			order.CustomerEmail = o.Customer.Email
		}
	}
	for _, dc := range o.DiscountCodes {
		order.DiscountCodes = append(order.DiscountCodes, storefront.AppliedDiscount{
			Code:   dc.Code,
			Amount: m.parse(dc.Amount),
			Type:   dc.Type,
		})
	}
	for _, li := range o.LineItems {
		item := storefront.LineItem{
			ID:            li.ID,
			Title:         li.Title,
			Quantity:      li.Quantity,
			Price:         m.parse(li.Price),
			TotalDiscount: m.parse(li.TotalDiscount),
		}
		if li.ProductID != nil {
			item.ProductID = *li.ProductID
		}
		if li.VariantID != nil {
			item.VariantID = *li.VariantID
		}
		order.LineItems = append(order.LineItems, item)
	}
	if m.err != nil {
		return storefront.Order{}, m.err
	}
	return order, nil
}

func (c *ShopifyCustomer) toRecord() (storefront.Customer, error) {
	createdAt, err := parseTimestamp(c.CreatedAt)
	if err != nil {
		return storefront.Customer{}, err
	}
	spent, err := ParseMoney(c.TotalSpent)
	if err != nil {
		return storefront.Customer{}, err
	}
	customer := storefront.Customer{
		ID:          c.ID,
		Email:       c.Email,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		State:       c.State,
		OrdersCount: c.OrdersCount,
		TotalSpent:  spent,
		CreatedAt:   createdAt,
	}
	if c.LastOrderID != nil {
		customer.LastOrderID = *c.LastOrderID
	}
	return customer, nil
}

func (p *ShopifyProduct) toRecord() (storefront.Product, error) {
	createdAt, err := parseTimestamp(p.CreatedAt)
	if err != nil {
		return storefront.Product{}, err
	}
	var m moneyFields
	product := storefront.Product{
		ID:          p.ID,
		Title:       p.Title,
		Status:      p.Status,
		Vendor:      p.Vendor,
		ProductType: p.ProductType,
		CreatedAt:   createdAt,
	}
	for _, v := range p.Variants {
		product.Variants = append(product.Variants, storefront.Variant{
			ID:                v.ID,
			SKU:               v.SKU,
			Price:             m.parse(v.Price),
			InventoryQuantity: v.InventoryQuantity,
		})
	}
	if m.err != nil {
		return storefront.Product{}, m.err
	}
	return product, nil
}

func (d *ShopifyDiscountCode) toRecord(rule *ShopifyPriceRule) (storefront.DiscountCode, error) {
	createdAt, err := parseTimestamp(d.CreatedAt)
	if err != nil {
		return storefront.DiscountCode{}, err
	}
	startsAt, err := parseTimestamp(rule.StartsAt)
	if err != nil {
		return storefront.DiscountCode{}, err
	}
	value, err := ParseMoney(rule.Value)
	if err != nil {
		return storefront.DiscountCode{}, err
	}
	code := storefront.DiscountCode{
		ID:          d.ID,
		Code:        d.Code,
		PriceRuleID: rule.ID,
		ValueType:   storefront.DiscountValueType(rule.ValueType),
		Value:       value.Abs(),
		UsageCount:  d.UsageCount,
		StartsAt:    startsAt,
		CreatedAt:   createdAt,
	}
	if rule.EndsAt != nil && *rule.EndsAt != "" {
		endsAt, err := parseTimestamp(*rule.EndsAt)
		if err != nil {
			return storefront.DiscountCode{}, err
		}
		code.EndsAt = &endsAt
	}
	return code, nil
}

// convertRecords converts and validates wire records, counting the ones dropped
func convertRecords[W any, T any](wire []W, convert func(*W) (T, error)) ([]T, int) {
	records := make([]T, 0, len(wire))
	skipped := 0
	for i := range wire {
		record, err := convert(&wire[i])
		if err != nil {
			skipped++
			continue
		}
		if err := storefront.ValidateRecord(&record); err != nil {
			skipped++
			continue
		}
		records = append(records, record)
	}
	return records, skipped
}

// ---------------------------------------------------------------------------
// Link header pagination
// ---------------------------------------------------------------------------

// parseNextPageInfo extracts the page_info cursor of the rel="next" link.
// An empty result means the response announced no further page.
func parseNextPageInfo(linkHeader string) string {
	for _, part := range strings.Split(linkHeader, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		isNext := false
		for _, attr := range segments[1:] {
			attr = strings.TrimSpace(attr)
			if attr == `rel="next"` || attr == "rel=next" {
				isNext = true
				break
			}
		}
		if !isNext {
			continue
		}
		raw := strings.TrimSpace(segments[0])
		raw = strings.TrimSuffix(strings.TrimPrefix(raw, "<"), ">")
		u, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		return u.Query().Get("page_info")
	}
	return ""
}
