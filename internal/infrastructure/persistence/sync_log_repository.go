package persistence

import (
	"context"

	"github.com/storepulse/backend/internal/domain/analytics"
	"github.com/storepulse/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

const defaultSyncLogLimit = 20

// SyncLogRepository implements analytics.SyncLogRepository using GORM
type SyncLogRepository struct {
	db *gorm.DB
}

// NewSyncLogRepository creates a new sync log repository
func NewSyncLogRepository(db *gorm.DB) *SyncLogRepository {
	return &SyncLogRepository{db: db}
}

// Append inserts a sync log; rows are never updated
func (r *SyncLogRepository) Append(ctx context.Context, log *analytics.SyncLog) error {
	return r.db.WithContext(ctx).Create(models.SyncLogModelFromDomain(log)).Error
}

// FindRecent returns the newest logs first
func (r *SyncLogRepository) FindRecent(ctx context.Context, limit int) ([]analytics.SyncLog, error) {
	if limit <= 0 {
		limit = defaultSyncLogLimit
	}

	var rows []models.SyncLogModel
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	logs := make([]analytics.SyncLog, len(rows))
	for i := range rows {
		logs[i] = rows[i].ToDomain()
	}
	return logs, nil
}
