package report

import (
	"time"

	"github.com/storepulse/backend/internal/domain/analytics"
	"github.com/storepulse/backend/internal/domain/storefront"
)

// ProductStatsFromOrders rolls orders up into ProductStat rows.
// CurrentStock is left at zero; the repository preserves stored stock on update.
func ProductStatsFromOrders(orders []storefront.Order) []analytics.ProductStat {
	rollups := RollupProducts(orders)
	stats := make([]analytics.ProductStat, 0, len(rollups))
	for _, r := range rollups {
		stats = append(stats, analytics.ProductStat{
			ProductID:         r.ProductID,
			Title:             r.Title,
			TotalQuantitySold: r.Quantity,
			TotalRevenue:      r.Revenue,
		})
	}
	return stats
}

// CustomerStatsFromCustomers maps customer records onto CustomerStat rows.
// Lifetime order count and spend come from the storefront. LastOrderAt is the
// later of the storefront's value and the newest order by that customer in
// orders.
func CustomerStatsFromCustomers(customers []storefront.Customer, orders []storefront.Order) []analytics.CustomerStat {
	lastOrder := make(map[int64]time.Time)
	for _, r := range RollupCustomers(orders) {
		if r.CustomerID != 0 {
			lastOrder[r.CustomerID] = r.LastOrderAt
		}
	}

	stats := make([]analytics.CustomerStat, 0, len(customers))
	for i := range customers {
		c := &customers[i]
		last := c.LastOrderAt
		if seen, ok := lastOrder[c.ID]; ok && (last == nil || seen.After(*last)) {
			last = &seen
		}
		stats = append(stats, analytics.CustomerStat{
			CustomerID:  c.ID,
			Email:       c.Email,
			FirstName:   c.FirstName,
			LastName:    c.LastName,
			TotalOrders: c.OrdersCount,
			TotalSpent:  c.TotalSpent,
			LastOrderAt: last,
		})
	}
	return stats
}

// CouponStatsFromUsage combines discount code configuration with usage
// observed in orders and classifies each code
func CouponStatsFromUsage(codes []storefront.DiscountCode, orders []storefront.Order, now time.Time) []analytics.CouponStat {
	usages := CouponUsage(orders, codes)
	byCode := make(map[string]int, len(usages))
	for i, u := range usages {
		byCode[storefront.NormalizedCode(u.Code)] = i
	}

	stats := make([]analytics.CouponStat, 0, len(usages))
	seen := make(map[string]struct{}, len(usages))
	for i := range codes {
		c := &codes[i]
		norm := storefront.NormalizedCode(c.Code)
		idx, ok := byCode[norm]
		if !ok {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}

		u := usages[idx]
		stat := analytics.CouponStat{
			CouponCode:            c.Code,
			CouponType:            string(c.ValueType),
			DiscountValue:         c.Value,
			TimesUsed:             u.TimesUsed,
			TotalDiscountGiven:    u.TotalDiscount,
			TotalRevenueGenerated: u.TotalRevenue,
			IsActive:              c.IsActive(now),
			Status:                string(c.Status(now)),
		}
		stat.Classify()
		stats = append(stats, stat)
	}
	return stats
}
