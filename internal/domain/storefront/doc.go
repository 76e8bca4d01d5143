// Package storefront contains the Storefront bounded context.
// It describes the records mirrored from the remote commerce API and the port
// used to page through them.
//
// Key concepts:
//   - Storefront: Port interface for paging remote collections (orders, customers, products, discount codes)
//   - Order / Customer / Product / DiscountCode: Immutable snapshots returned by one fetch
//   - PeriodWindow: Creation-date range used both as a query filter and as a cache key component
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package storefront
