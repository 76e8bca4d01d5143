package report

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"github.com/storepulse/backend/internal/domain/analytics"
	"github.com/storepulse/backend/internal/domain/report"
	"github.com/storepulse/backend/internal/domain/storefront"
)

// ---------------------------------------------------------------------------
// Totals
// ---------------------------------------------------------------------------

// Summarize reduces a set of orders to period totals.
// Gross is subtotal + discounts; net is the amount actually charged.
func Summarize(orders []storefront.Order) report.Totals {
	var t report.Totals
	for i := range orders {
		o := &orders[i]
		t.GrossSales = t.GrossSales.Add(o.SubtotalPrice.Add(o.TotalDiscounts))
		t.NetSales = t.NetSales.Add(o.TotalPrice)
		t.Discounts = t.Discounts.Add(o.TotalDiscounts)
		t.Tax = t.Tax.Add(o.TotalTax)
		t.OrderCount++
	}
	t.AvgOrderValue = analytics.AverageOrderValue(t.NetSales, t.OrderCount)
	return t
}

// ---------------------------------------------------------------------------
// Daily bucketing
// ---------------------------------------------------------------------------

// BucketDaily groups order net totals by calendar day. Every day of the window
// is present, zero-filled, in ascending order. Orders outside the window are dropped.
func BucketDaily(orders []storefront.Order, window storefront.PeriodWindow) []report.DailyBucket {
	days := window.Days()
	if len(days) == 0 {
		return []report.DailyBucket{}
	}

	loc := window.Start.Location()
	buckets := make([]report.DailyBucket, len(days))
	index := make(map[string]int, len(days))
	for i, d := range days {
		buckets[i] = report.DailyBucket{Date: d, Sales: decimal.Zero}
		index[d.Format(storefront.DayLayout)] = i
	}

	for i := range orders {
		o := &orders[i]
		if !window.Contains(o.CreatedAt) {
			continue
		}
		idx, ok := index[o.CreatedAt.In(loc).Format(storefront.DayLayout)]
		if !ok {
			continue
		}
		buckets[idx].Sales = buckets[idx].Sales.Add(o.TotalPrice)
		buckets[idx].Orders++
	}
	return buckets
}

// DailyStatsFromBuckets converts buckets into DailyStat rows
func DailyStatsFromBuckets(buckets []report.DailyBucket) []analytics.DailyStat {
	stats := make([]analytics.DailyStat, 0, len(buckets))
	for _, b := range buckets {
		stats = append(stats, analytics.NewDailyStat(b.Date, b.Sales, b.Orders))
	}
	return stats
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

// RollupProducts sums quantity and revenue per product id, in first-seen order.
// The latest title seen wins. Line items without a product id or with a
// non-positive quantity are skipped.
func RollupProducts(orders []storefront.Order) []report.ProductRollup {
	var rollups []report.ProductRollup
	index := make(map[int64]int)

	for i := range orders {
		for _, li := range orders[i].LineItems {
			if li.ProductID == 0 || li.Quantity <= 0 {
				continue
			}
			idx, ok := index[li.ProductID]
			if !ok {
				idx = len(rollups)
				index[li.ProductID] = idx
				rollups = append(rollups, report.ProductRollup{ProductID: li.ProductID, Revenue: decimal.Zero})
			}
			r := &rollups[idx]
			if li.Title != "" {
				r.Title = li.Title
			}
			r.Quantity += li.Quantity
			r.Revenue = r.Revenue.Add(li.Revenue())
		}
	}
	return rollups
}

// TopProductsByRevenue returns the n products with the highest revenue.
// Ties keep first-seen order.
func TopProductsByRevenue(orders []storefront.Order, n int) []report.ProductRollup {
	rollups := RollupProducts(orders)
	slices.SortStableFunc(rollups, func(a, b report.ProductRollup) int {
		return b.Revenue.Cmp(a.Revenue)
	})
	return rankProducts(rollups, n)
}

// TopProductsByQuantity returns the n products with the most units sold.
// Ties keep first-seen order.
func TopProductsByQuantity(orders []storefront.Order, n int) []report.ProductRollup {
	rollups := RollupProducts(orders)
	slices.SortStableFunc(rollups, func(a, b report.ProductRollup) int {
		return cmp.Compare(b.Quantity, a.Quantity)
	})
	return rankProducts(rollups, n)
}

func rankProducts(rollups []report.ProductRollup, n int) []report.ProductRollup {
	if n >= 0 && len(rollups) > n {
		rollups = rollups[:n]
	}
	for i := range rollups {
		rollups[i].Rank = i + 1
	}
	return rollups
}

// ---------------------------------------------------------------------------
// Customers
// ---------------------------------------------------------------------------

// RollupCustomers sums orders and net spend per buyer in first-seen order.
// Anonymous orders (no customer id and no email) are not attributed.
func RollupCustomers(orders []storefront.Order) []report.CustomerRollup {
	var rollups []report.CustomerRollup
	index := make(map[string]int)

	for i := range orders {
		o := &orders[i]
		key := o.CustomerKey()
		if key == "" {
			continue
		}
		idx, ok := index[key]
		if !ok {
			idx = len(rollups)
			index[key] = idx
			rollups = append(rollups, report.CustomerRollup{
				Key:        key,
				CustomerID: o.CustomerID,
				TotalSpent: decimal.Zero,
			})
		}
		r := &rollups[idx]
		if o.CustomerEmail != "" {
			r.Email = o.CustomerEmail
		}
		if name := joinName(o.CustomerFirstName, o.CustomerLastName); name != "" {
			r.Name = name
		}
		r.OrderCount++
		r.TotalSpent = r.TotalSpent.Add(o.TotalPrice)
		if o.CreatedAt.After(r.LastOrderAt) {
			r.LastOrderAt = o.CreatedAt
		}
	}
	return rollups
}

// TopCustomers returns the n buyers with the highest net spend
func TopCustomers(orders []storefront.Order, n int) []report.CustomerRollup {
	rollups := RollupCustomers(orders)
	slices.SortStableFunc(rollups, func(a, b report.CustomerRollup) int {
		return b.TotalSpent.Cmp(a.TotalSpent)
	})
	if n >= 0 && len(rollups) > n {
		rollups = rollups[:n]
	}
	for i := range rollups {
		rollups[i].Rank = i + 1
	}
	return rollups
}

// ReturningCustomerRate is the rounded percentage of buyers with more than one
// order in the set, 0 when there are no identifiable buyers
func ReturningCustomerRate(orders []storefront.Order) int {
	rollups := RollupCustomers(orders)
	if len(rollups) == 0 {
		return 0
	}
	returning := 0
	for _, r := range rollups {
		if r.OrderCount > 1 {
			returning++
		}
	}
	return int(math.Round(float64(returning) / float64(len(rollups)) * 100))
}

// ---------------------------------------------------------------------------
// Coupons
// ---------------------------------------------------------------------------

// CouponUsage attributes orders to the given discount codes. Codes match
// case-insensitively. When an order carries several codes its total discount
// is split evenly between them and its net total counts as revenue for each.
// One entry is returned per distinct code, in the order given.
func CouponUsage(orders []storefront.Order, codes []storefront.DiscountCode) []report.CouponUsage {
	usages := make([]report.CouponUsage, 0, len(codes))
	index := make(map[string]int, len(codes))
	for _, c := range codes {
		norm := storefront.NormalizedCode(c.Code)
		if norm == "" {
			continue
		}
		if _, dup := index[norm]; dup {
			continue
		}
		index[norm] = len(usages)
		usages = append(usages, report.CouponUsage{
			Code:          c.Code,
			TotalDiscount: decimal.Zero,
			TotalRevenue:  decimal.Zero,
		})
	}

	for i := range orders {
		o := &orders[i]
		applied := distinctCodes(o.DiscountCodes)
		if len(applied) == 0 {
			continue
		}
		share := o.TotalDiscounts.Div(decimal.NewFromInt(int64(len(applied))))
		for _, code := range applied {
			idx, ok := index[code]
			if !ok {
				continue
			}
			u := &usages[idx]
			u.TimesUsed++
			u.TotalDiscount = u.TotalDiscount.Add(share)
			u.TotalRevenue = u.TotalRevenue.Add(o.TotalPrice)
		}
	}

	for i := range usages {
		usages[i].IsBleeding = analytics.IsBleeding(usages[i].TotalDiscount, usages[i].TotalRevenue)
	}
	return usages
}

func distinctCodes(applied []storefront.AppliedDiscount) []string {
	var codes []string
	seen := make(map[string]struct{}, len(applied))
	for _, a := range applied {
		norm := storefront.NormalizedCode(a.Code)
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		codes = append(codes, norm)
	}
	return codes
}

// ---------------------------------------------------------------------------
// Snapshots
// ---------------------------------------------------------------------------

// BuildPeriodSnapshot assembles the serving snapshot of a named period
func BuildPeriodSnapshot(period string, window storefront.PeriodWindow, orders []storefront.Order, totals report.Totals, partial bool, now time.Time) *report.PeriodSnapshot {
	return &report.PeriodSnapshot{
		Period:                period,
		PeriodStart:           window.Start,
		PeriodEnd:             window.End,
		Totals:                totals,
		UniqueCustomers:       len(RollupCustomers(orders)),
		ReturningCustomerRate: ReturningCustomerRate(orders),
		Partial:               partial,
		GeneratedAt:           now,
	}
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}
