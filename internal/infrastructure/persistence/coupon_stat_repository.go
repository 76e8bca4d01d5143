package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/storepulse/backend/internal/domain/analytics"
	"github.com/storepulse/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CouponStatRepository implements analytics.CouponStatRepository using GORM
type CouponStatRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewCouponStatRepository creates a new coupon stat repository
func NewCouponStatRepository(db *gorm.DB) *CouponStatRepository {
	return &CouponStatRepository{db: db, now: time.Now}
}

// UpsertCouponStats writes usage columns for every code and flips
// is_bleeding_money only where the freshly classified flag differs from the
// stored one. The returned transitions are exactly the flags that changed.
func (r *CouponStatRepository) UpsertCouponStats(ctx context.Context, stats []analytics.CouponStat) ([]analytics.BleedingTransition, error) {
	if len(stats) == 0 {
		return nil, nil
	}

	var transitions []analytics.BleedingTransition
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		previous, err := r.loadFlags(tx, stats)
		if err != nil {
			return err
		}
		transitions = analytics.DetectBleedingTransitions(previous, stats, r.now())

		rows := make([]*models.CouponStatModel, len(stats))
		for i, s := range stats {
			rows[i] = models.CouponStatModelFromDomain(s)
		}

		// New codes are inserted with their computed flag; existing codes keep theirs here.
		err = tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "coupon_code"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"coupon_type",
				"discount_value",
				"times_used",
				"total_discount_given",
				"total_revenue_generated",
				"is_active",
				"status",
				"updated_at",
			}),
		}).CreateInBatches(rows, upsertBatchSize).Error
		if err != nil {
			return err
		}

		for _, t := range transitions {
			if _, known := previous[t.CouponCode]; !known {
				continue
			}
			err := tx.Model(&models.CouponStatModel{}).
				Where("coupon_code = ?", t.CouponCode).
				Update("is_bleeding_money", t.Bleeding).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transitions, nil
}

func (r *CouponStatRepository) loadFlags(tx *gorm.DB, stats []analytics.CouponStat) (map[string]bool, error) {
	codes := make([]string, len(stats))
	for i := range stats {
		codes[i] = stats[i].CouponCode
	}

	var rows []models.CouponStatModel
	err := tx.Select("coupon_code", "is_bleeding_money").
		Where("coupon_code IN ?", codes).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	flags := make(map[string]bool, len(rows))
	for _, row := range rows {
		flags[row.CouponCode] = row.IsBleedingMoney
	}
	return flags, nil
}

// FindCouponStat retrieves one coupon row by code
func (r *CouponStatRepository) FindCouponStat(ctx context.Context, code string) (*analytics.CouponStat, error) {
	var row models.CouponStatModel
	if err := r.db.WithContext(ctx).First(&row, "coupon_code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, analytics.ErrNotFound
		}
		return nil, err
	}
	stat := row.ToDomain()
	return &stat, nil
}

// FindBleedingCoupons lists flagged coupons, largest discount first
func (r *CouponStatRepository) FindBleedingCoupons(ctx context.Context) ([]analytics.CouponStat, error) {
	var rows []models.CouponStatModel
	err := r.db.WithContext(ctx).
		Where("is_bleeding_money = ?", true).
		Order("total_discount_given DESC").
		Order("coupon_code ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := make([]analytics.CouponStat, len(rows))
	for i := range rows {
		stats[i] = rows[i].ToDomain()
	}
	return stats, nil
}
