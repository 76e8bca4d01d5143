package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

// BleedingThreshold is the discount/revenue ratio a coupon must exceed to be bleeding
var BleedingThreshold = decimal.RequireFromString("0.30")

// BleedingRatio returns discount/revenue, or zero when revenue is not positive
func BleedingRatio(discount, revenue decimal.Decimal) decimal.Decimal {
	if !revenue.IsPositive() {
		return decimal.Zero
	}
	return discount.Div(revenue)
}

// IsBleeding reports whether a coupon gives away more than BleedingThreshold of
// its attributed revenue. Zero revenue is never bleeding.
func IsBleeding(discount, revenue decimal.Decimal) bool {
	if !revenue.IsPositive() {
		return false
	}
	return BleedingRatio(discount, revenue).GreaterThan(BleedingThreshold)
}

// ---------------------------------------------------------------------------
// DailyStat
// ---------------------------------------------------------------------------

// DailyStat is one row per calendar day
type DailyStat struct {
	Date          time.Time       `json:"date"`
	TotalSales    decimal.Decimal `json:"total_sales"`
	OrderCount    int64           `json:"order_count"`
	AvgOrderValue decimal.Decimal `json:"avg_order_value"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewDailyStat derives the average order value from sales and count
func NewDailyStat(date time.Time, totalSales decimal.Decimal, orderCount int64) DailyStat {
	return DailyStat{
		Date:          date,
		TotalSales:    totalSales,
		OrderCount:    orderCount,
		AvgOrderValue: AverageOrderValue(totalSales, orderCount),
	}
}

// AverageOrderValue divides sales by count, 0 when count is 0
func AverageOrderValue(sales decimal.Decimal, count int64) decimal.Decimal {
	if count <= 0 {
		return decimal.Zero
	}
	return sales.Div(decimal.NewFromInt(count)).Round(2)
}

// ---------------------------------------------------------------------------
// ProductStat
// ---------------------------------------------------------------------------

// ProductStat is one row per remote product.
// CurrentStock belongs to the inventory process; upserts never overwrite it.
type ProductStat struct {
	ProductID         int64           `json:"product_id"`
	Title             string          `json:"title"`
	TotalQuantitySold int64           `json:"total_quantity_sold"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	CurrentStock      int64           `json:"current_stock"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ---------------------------------------------------------------------------
// CustomerStat
// ---------------------------------------------------------------------------

// CustomerStat is one row per remote customer
type CustomerStat struct {
	CustomerID  int64           `json:"customer_id"`
	Email       string          `json:"email"`
	FirstName   string          `json:"first_name"`
	LastName    string          `json:"last_name"`
	TotalOrders int64           `json:"total_orders"`
	TotalSpent  decimal.Decimal `json:"total_spent"`
	LastOrderAt *time.Time      `json:"last_order_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ---------------------------------------------------------------------------
// CouponStat
// ---------------------------------------------------------------------------

// CouponStat is one row per coupon code
type CouponStat struct {
	CouponCode            string          `json:"coupon_code"`
	CouponType            string          `json:"coupon_type"`
	DiscountValue         decimal.Decimal `json:"discount_value"`
	TimesUsed             int64           `json:"times_used"`
	TotalDiscountGiven    decimal.Decimal `json:"total_discount_given"`
	TotalRevenueGenerated decimal.Decimal `json:"total_revenue_generated"`
	IsActive              bool            `json:"is_active"`
	Status                string          `json:"status"`
	IsBleedingMoney       bool            `json:"is_bleeding_money"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Classify recomputes IsBleedingMoney from the usage totals
func (c *CouponStat) Classify() {
	c.IsBleedingMoney = IsBleeding(c.TotalDiscountGiven, c.TotalRevenueGenerated)
}

// Ratio returns the discount/revenue ratio of the coupon
func (c *CouponStat) Ratio() decimal.Decimal {
	return BleedingRatio(c.TotalDiscountGiven, c.TotalRevenueGenerated)
}

// BleedingTransition records a coupon whose bleeding flag changed state
type BleedingTransition struct {
	CouponCode            string          `json:"coupon_code"`
	Bleeding              bool            `json:"bleeding"`
	Ratio                 decimal.Decimal `json:"ratio"`
	TotalDiscountGiven    decimal.Decimal `json:"total_discount_given"`
	TotalRevenueGenerated decimal.Decimal `json:"total_revenue_generated"`
	At                    time.Time       `json:"at"`
}

// DetectBleedingTransitions compares freshly classified stats with the flags
// already persisted. A code seen for the first time only transitions when it
// starts out bleeding.
func DetectBleedingTransitions(previous map[string]bool, stats []CouponStat, at time.Time) []BleedingTransition {
	var transitions []BleedingTransition
	for i := range stats {
		s := &stats[i]
		was, known := previous[s.CouponCode]
		if known && was == s.IsBleedingMoney {
			continue
		}
		if !known && !s.IsBleedingMoney {
			continue
		}
		transitions = append(transitions, BleedingTransition{
			CouponCode:            s.CouponCode,
			Bleeding:              s.IsBleedingMoney,
			Ratio:                 s.Ratio(),
			TotalDiscountGiven:    s.TotalDiscountGiven,
			TotalRevenueGenerated: s.TotalRevenueGenerated,
			At:                    at,
		})
	}
	return transitions
}
