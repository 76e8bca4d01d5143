// Package analytics contains the durable aggregates derived from storefront data.
//
// Key concepts:
//   - DailyStat / ProductStat / CustomerStat / CouponStat: rows keyed by a business id, upserted by sync runs
//   - SyncLog: append-only audit record of one sync run
//   - Bleeding coupon: a code whose granted discount exceeds BleedingThreshold of the revenue it generated
//
// Aggregates are mutated only by the sync orchestrator. Repositories are
// ports defined here and implemented in the persistence layer.
package analytics
