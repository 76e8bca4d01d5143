package persistence

import (
	"context"
	"errors"

	"github.com/storepulse/backend/internal/domain/analytics"
	"github.com/storepulse/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CustomerStatRepository implements analytics.CustomerStatRepository using GORM
type CustomerStatRepository struct {
	db *gorm.DB
}

// NewCustomerStatRepository creates a new customer stat repository
func NewCustomerStatRepository(db *gorm.DB) *CustomerStatRepository {
	return &CustomerStatRepository{db: db}
}

// UpsertCustomerStats creates or overwrites customer rows. A row without a
// last order time keeps the one already stored.
func (r *CustomerStatRepository) UpsertCustomerStats(ctx context.Context, stats []analytics.CustomerStat) error {
	if len(stats) == 0 {
		return nil
	}

	rows := make([]*models.CustomerStatModel, len(stats))
	for i, s := range stats {
		rows[i] = models.CustomerStatModelFromDomain(s)
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "customer_id"}},
		DoUpdates: append(clause.AssignmentColumns([]string{
			"email",
			"first_name",
			"last_name",
			"total_orders",
			"total_spent",
			"updated_at",
		}), clause.Assignment{
			Column: clause.Column{Name: "last_order_at"},
			Value:  gorm.Expr("COALESCE(excluded.last_order_at, customer_stats.last_order_at)"),
		}),
	}).CreateInBatches(rows, upsertBatchSize).Error
}

// FindCustomerStat retrieves one customer row by remote id
func (r *CustomerStatRepository) FindCustomerStat(ctx context.Context, customerID int64) (*analytics.CustomerStat, error) {
	var row models.CustomerStatModel
	if err := r.db.WithContext(ctx).First(&row, "customer_id = ?", customerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, analytics.ErrNotFound
		}
		return nil, err
	}
	stat := row.ToDomain()
	return &stat, nil
}
