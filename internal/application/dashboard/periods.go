package dashboard

import (
	"fmt"
	"time"

	"github.com/storepulse/backend/internal/domain/storefront"
)

// Period names a preloaded date range
type Period string

const (
	PeriodToday     Period = "today"
	PeriodWeek      Period = "week"
	PeriodMonth     Period = "month"
	PeriodLastMonth Period = "lastMonth"
	PeriodYear      Period = "year"
)

// AllPeriods lists the preloaded periods in refresh order
func AllPeriods() []Period {
	return []Period{PeriodToday, PeriodWeek, PeriodMonth, PeriodLastMonth, PeriodYear}
}

// IsValid returns true if p is one of the preloaded periods
func (p Period) IsValid() bool {
	switch p {
	case PeriodToday, PeriodWeek, PeriodMonth, PeriodLastMonth, PeriodYear:
		return true
	}
	return false
}

// ParsePeriod validates a period name
func ParsePeriod(s string) (Period, error) {
	p := Period(s)
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPeriod, s)
	}
	return p, nil
}

// Window resolves the period against now. Every window covers whole days:
// week is the last seven days including today, month and year run from
// their first day to the end of today, lastMonth is the previous calendar month.
func (p Period) Window(now time.Time) (storefront.PeriodWindow, error) {
	y, m, _ := now.Date()
	loc := now.Location()

	switch p {
	case PeriodToday:
		return storefront.NewDayWindow(now, now), nil
	case PeriodWeek:
		return storefront.LastDays(now, 7), nil
	case PeriodMonth:
		return storefront.NewDayWindow(time.Date(y, m, 1, 0, 0, 0, 0, loc), now), nil
	case PeriodLastMonth:
		first := time.Date(y, m-1, 1, 0, 0, 0, 0, loc)
		return storefront.NewDayWindow(first, first.AddDate(0, 1, -1)), nil
	case PeriodYear:
		return storefront.NewDayWindow(time.Date(y, time.January, 1, 0, 0, 0, 0, loc), now), nil
	default:
		return storefront.PeriodWindow{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, string(p))
	}
}
