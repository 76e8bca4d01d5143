package persistence

import (
	"github.com/storepulse/backend/internal/domain/analytics"
	"gorm.io/gorm"
)

// upsertBatchSize bounds the rows per INSERT .. ON CONFLICT statement
const upsertBatchSize = 100

// NewRepositories wires every analytics repository onto one connection
func NewRepositories(db *gorm.DB) analytics.Repositories {
	return analytics.Repositories{
		Daily:     NewDailyStatRepository(db),
		Products:  NewProductStatRepository(db),
		Customers: NewCustomerStatRepository(db),
		Coupons:   NewCouponStatRepository(db),
		SyncLogs:  NewSyncLogRepository(db),
	}
}
