package persistence

import (
	"context"
	"time"

	"github.com/storepulse/backend/internal/domain/analytics"
	"github.com/storepulse/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DailyStatRepository implements analytics.DailyStatRepository using GORM
type DailyStatRepository struct {
	db *gorm.DB
}

// NewDailyStatRepository creates a new daily stat repository
func NewDailyStatRepository(db *gorm.DB) *DailyStatRepository {
	return &DailyStatRepository{db: db}
}

// UpsertDailyStats creates or overwrites one row per date
func (r *DailyStatRepository) UpsertDailyStats(ctx context.Context, stats []analytics.DailyStat) error {
	if len(stats) == 0 {
		return nil
	}

	rows := make([]*models.DailyStatModel, len(stats))
	for i, s := range stats {
		rows[i] = models.DailyStatModelFromDomain(s)
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_sales",
			"order_count",
			"avg_order_value",
			"updated_at",
		}),
	}).CreateInBatches(rows, upsertBatchSize).Error
}

// FindDailyStats returns rows with from <= date <= to ordered by date
func (r *DailyStatRepository) FindDailyStats(ctx context.Context, from, to time.Time) ([]analytics.DailyStat, error) {
	var rows []models.DailyStatModel
	err := r.db.WithContext(ctx).
		Where("date >= ? AND date <= ?", models.CalendarDate(from), models.CalendarDate(to)).
		Order("date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := make([]analytics.DailyStat, len(rows))
	for i := range rows {
		stats[i] = rows[i].ToDomain()
	}
	return stats, nil
}
