package report

import (
	"time"

	"github.com/shopspring/decimal"
)

// Totals is the summary of one set of orders
// This is a read model, never persisted
type Totals struct {
	// GrossSales is the pre-discount amount (subtotal + discounts)
	GrossSales decimal.Decimal `json:"gross_sales"`
	// NetSales is the amount actually charged
	NetSales      decimal.Decimal `json:"net_sales"`
	Discounts     decimal.Decimal `json:"discounts"`
	Tax           decimal.Decimal `json:"tax"`
	OrderCount    int64           `json:"order_count"`
	AvgOrderValue decimal.Decimal `json:"avg_order_value"`
}

// DailyBucket is the sales of one calendar day
type DailyBucket struct {
	Date   time.Time       `json:"date"`
	Sales  decimal.Decimal `json:"sales"`
	Orders int64           `json:"orders"`
}

// ProductRollup is the per-product sum over line items
type ProductRollup struct {
	Rank      int             `json:"rank,omitempty"`
	ProductID int64           `json:"product_id"`
	Title     string          `json:"title"`
	Quantity  int64           `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// CustomerRollup is the per-customer sum over orders
type CustomerRollup struct {
	Rank int `json:"rank,omitempty"`
	// Key is "id:<id>" for known customers or "email:<email>" for guests
	Key         string          `json:"key"`
	CustomerID  int64           `json:"customer_id,omitempty"`
	Email       string          `json:"email,omitempty"`
	Name        string          `json:"name,omitempty"`
	OrderCount  int64           `json:"order_count"`
	TotalSpent  decimal.Decimal `json:"total_spent"`
	LastOrderAt time.Time       `json:"last_order_at"`
}

// CouponUsage is the usage of one discount code across a set of orders
type CouponUsage struct {
	Code          string          `json:"code"`
	TimesUsed     int64           `json:"times_used"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	IsBleeding    bool            `json:"is_bleeding"`
}

// PeriodSnapshot is the ready-to-serve summary of a named period
type PeriodSnapshot struct {
	Period      string    `json:"period"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Totals      Totals    `json:"totals"`
	// UniqueCustomers counts distinct buyers, anonymous orders excluded
	UniqueCustomers       int `json:"unique_customers"`
	ReturningCustomerRate int `json:"returning_customer_rate"`
	// Partial is set when pagination stopped early on a page error
	Partial     bool      `json:"partial"`
	GeneratedAt time.Time `json:"generated_at"`
}

// DailySeries is the gap-free daily sales of a named period
type DailySeries struct {
	Period      string        `json:"period"`
	Days        []DailyBucket `json:"days"`
	Partial     bool          `json:"partial"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// ProductLeaderboard ranks products of a named period
type ProductLeaderboard struct {
	Period      string          `json:"period"`
	ByRevenue   []ProductRollup `json:"by_revenue"`
	ByQuantity  []ProductRollup `json:"by_quantity"`
	Partial     bool            `json:"partial"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// CustomerLeaderboard ranks customers of a named period by spend
type CustomerLeaderboard struct {
	Period      string           `json:"period"`
	Customers   []CustomerRollup `json:"customers"`
	Partial     bool             `json:"partial"`
	GeneratedAt time.Time        `json:"generated_at"`
}
