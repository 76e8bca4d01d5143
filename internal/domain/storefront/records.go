package storefront

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// Order is a snapshot of one remote order. Line items are read-only children.
type Order struct {
	// ID is the remote order id
	ID int64 `json:"id" validate:"required"`
	// Name is the display name of the order (e.g. "#1001")
	Name string `json:"name"`
	// CreatedAt is the order creation time on the storefront
	CreatedAt time.Time `json:"created_at" validate:"required"`
	// CustomerID is the remote customer id, 0 for guest checkouts
	CustomerID        int64  `json:"customer_id"`
	CustomerEmail     string `json:"customer_email,omitempty"`
	CustomerFirstName string `json:"customer_first_name,omitempty"`
	CustomerLastName  string `json:"customer_last_name,omitempty"`
	Currency          string `json:"currency"`
	FinancialStatus   string `json:"financial_status"`

	// SubtotalPrice is the line item total after discounts, before tax and shipping
	SubtotalPrice decimal.Decimal `json:"subtotal_price"`
	// TotalPrice is the amount actually charged
	TotalPrice     decimal.Decimal `json:"total_price"`
	TotalDiscounts decimal.Decimal `json:"total_discounts"`
	TotalTax       decimal.Decimal `json:"total_tax"`

	DiscountCodes []AppliedDiscount `json:"discount_codes,omitempty"`
	LineItems     []LineItem        `json:"line_items" validate:"dive"`
}

// AppliedDiscount is a discount code applied at checkout
type AppliedDiscount struct {
	Code   string          `json:"code" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
	Type   string          `json:"type,omitempty"`
}

// LineItem is a single purchased product line on an order
type LineItem struct {
	ID int64 `json:"id"`
	// ProductID is 0 for custom line items without a catalog product
	ProductID     int64           `json:"product_id"`
	VariantID     int64           `json:"variant_id"`
	Title         string          `json:"title"`
	Quantity      int64           `json:"quantity" validate:"gte=0"`
	Price         decimal.Decimal `json:"price"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
}

// Revenue returns price * quantity minus the line-level discount
func (li LineItem) Revenue() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(li.Quantity)).Sub(li.TotalDiscount)
}

// HasCustomer returns true if the order belongs to a known customer
func (o *Order) HasCustomer() bool {
	return o.CustomerID != 0
}

// CustomerKey identifies the buyer of an order for per-customer rollups.
// Guest orders fall back to the lower-cased email; orders with neither are anonymous.
func (o *Order) CustomerKey() string {
	if o.CustomerID != 0 {
		return "id:" + formatID(o.CustomerID)
	}
	if email := strings.TrimSpace(o.CustomerEmail); email != "" {
		return "email:" + strings.ToLower(email)
	}
	return ""
}

// ---------------------------------------------------------------------------
// Customers
// ---------------------------------------------------------------------------

// Customer is a snapshot of one remote customer
type Customer struct {
	ID          int64           `json:"id" validate:"required"`
	Email       string          `json:"email"`
	FirstName   string          `json:"first_name"`
	LastName    string          `json:"last_name"`
	State       string          `json:"state"`
	OrdersCount int64           `json:"orders_count" validate:"gte=0"`
	TotalSpent  decimal.Decimal `json:"total_spent"`
	LastOrderID int64           `json:"last_order_id"`
	// LastOrderAt is nil when the customer never ordered or the storefront did not report it
	LastOrderAt *time.Time `json:"last_order_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" validate:"required"`
}

// FullName joins first and last name
func (c *Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

// Product is a snapshot of one remote catalog product
type Product struct {
	ID          int64     `json:"id" validate:"required"`
	Title       string    `json:"title" validate:"required"`
	Status      string    `json:"status"`
	Vendor      string    `json:"vendor,omitempty"`
	ProductType string    `json:"product_type,omitempty"`
	Variants    []Variant `json:"variants"`
	CreatedAt   time.Time `json:"created_at"`
}

// Variant is a purchasable variant of a product
type Variant struct {
	ID                int64           `json:"id"`
	SKU               string          `json:"sku,omitempty"`
	Price             decimal.Decimal `json:"price"`
	InventoryQuantity int64           `json:"inventory_quantity"`
}

// TotalInventory sums the stock of all variants
func (p *Product) TotalInventory() int64 {
	var total int64
	for _, v := range p.Variants {
		total += v.InventoryQuantity
	}
	return total
}

// ---------------------------------------------------------------------------
// Discount codes
// ---------------------------------------------------------------------------

// DiscountValueType is how a discount value is applied
type DiscountValueType string

const (
	// DiscountValueTypePercentage takes a percentage off the order
	DiscountValueTypePercentage DiscountValueType = "percentage"
	// DiscountValueTypeFixedAmount takes a fixed amount off the order
	DiscountValueTypeFixedAmount DiscountValueType = "fixed_amount"
)

// DiscountStatus is the lifecycle state of a discount code at a point in time
type DiscountStatus string

const (
	DiscountStatusActive    DiscountStatus = "active"
	DiscountStatusScheduled DiscountStatus = "scheduled"
	DiscountStatusExpired   DiscountStatus = "expired"
)

// DiscountCode is a snapshot of one remote discount code together with the
// value configured on its price rule
type DiscountCode struct {
	ID          int64             `json:"id" validate:"required"`
	Code        string            `json:"code" validate:"required"`
	PriceRuleID int64             `json:"price_rule_id"`
	ValueType   DiscountValueType `json:"value_type"`
	// Value is stored as a positive magnitude (the remote API reports it negated)
	Value      decimal.Decimal `json:"value"`
	UsageCount int64           `json:"usage_count" validate:"gte=0"`
	StartsAt   time.Time       `json:"starts_at"`
	EndsAt     *time.Time      `json:"ends_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Status reports whether the code is scheduled, active or expired at now
func (d *DiscountCode) Status(now time.Time) DiscountStatus {
	if !d.StartsAt.IsZero() && now.Before(d.StartsAt) {
		return DiscountStatusScheduled
	}
	if d.EndsAt != nil && now.After(*d.EndsAt) {
		return DiscountStatusExpired
	}
	return DiscountStatusActive
}

// IsActive returns true if the code can be redeemed at now
func (d *DiscountCode) IsActive(now time.Time) bool {
	return d.Status(now) == DiscountStatusActive
}

// NormalizedCode is the case-insensitive form used to match codes applied on orders
func NormalizedCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
