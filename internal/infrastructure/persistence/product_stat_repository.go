package persistence

import (
	"context"
	"errors"

	"github.com/storepulse/backend/internal/domain/analytics"
	"github.com/storepulse/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductStatRepository implements analytics.ProductStatRepository using GORM
type ProductStatRepository struct {
	db *gorm.DB
}

// NewProductStatRepository creates a new product stat repository
func NewProductStatRepository(db *gorm.DB) *ProductStatRepository {
	return &ProductStatRepository{db: db}
}

// UpsertProductStats creates or updates product rows.
// current_stock is written on insert only; existing stock levels are kept.
func (r *ProductStatRepository) UpsertProductStats(ctx context.Context, stats []analytics.ProductStat) error {
	if len(stats) == 0 {
		return nil
	}

	rows := make([]*models.ProductStatModel, len(stats))
	for i, s := range stats {
		rows[i] = models.ProductStatModelFromDomain(s)
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title",
			"total_quantity_sold",
			"total_revenue",
			"updated_at",
		}),
	}).CreateInBatches(rows, upsertBatchSize).Error
}

// FindProductStat retrieves one product row by remote id
func (r *ProductStatRepository) FindProductStat(ctx context.Context, productID int64) (*analytics.ProductStat, error) {
	var row models.ProductStatModel
	if err := r.db.WithContext(ctx).First(&row, "product_id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, analytics.ErrNotFound
		}
		return nil, err
	}
	stat := row.ToDomain()
	return &stat, nil
}

// FindTopProductStats returns the highest-revenue products, ties broken by id
func (r *ProductStatRepository) FindTopProductStats(ctx context.Context, limit int) ([]analytics.ProductStat, error) {
	if limit <= 0 {
		return []analytics.ProductStat{}, nil
	}

	var rows []models.ProductStatModel
	err := r.db.WithContext(ctx).
		Order("total_revenue DESC").
		Order("product_id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := make([]analytics.ProductStat, len(rows))
	for i := range rows {
		stats[i] = rows[i].ToDomain()
	}
	return stats, nil
}
