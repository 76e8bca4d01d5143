package integration

import (
	"context"

	"github.com/storepulse/backend/internal/domain/analytics"
	"go.uber.org/zap"
)

// CouponAlertNotifier is told about coupons whose bleeding flag changed in a sync run.
// It is called once per run, only when at least one flag changed.
type CouponAlertNotifier interface {
	NotifyBleedingTransitions(ctx context.Context, transitions []analytics.BleedingTransition) error
}

// LogAlertNotifier writes bleeding transitions to the log
type LogAlertNotifier struct {
	logger *zap.Logger
}

// NewLogAlertNotifier creates a notifier that logs transitions
func NewLogAlertNotifier(logger *zap.Logger) *LogAlertNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogAlertNotifier{logger: logger}
}

// NotifyBleedingTransitions logs one line per transition
func (n *LogAlertNotifier) NotifyBleedingTransitions(_ context.Context, transitions []analytics.BleedingTransition) error {
	for _, t := range transitions {
		fields := []zap.Field{
			zap.String("coupon_code", t.CouponCode),
			zap.String("ratio", t.Ratio.StringFixed(4)),
			zap.String("total_discount_given", t.TotalDiscountGiven.String()),
			zap.String("total_revenue_generated", t.TotalRevenueGenerated.String()),
		}
		if t.Bleeding {
			n.logger.Warn("Coupon started bleeding money", fields...)
		} else {
			n.logger.Info("Coupon stopped bleeding money", fields...)
		}
	}
	return nil
}

var _ CouponAlertNotifier = (*LogAlertNotifier)(nil)
