package storefront

import (
	"strconv"
	"time"
)

// DayLayout is the day-granularity layout used for cache keys and daily rows
const DayLayout = "2006-01-02"

// PeriodWindow bounds a query by creation time. Both ends are inclusive on query.
type PeriodWindow struct {
	Start time.Time
	End   time.Time
}

// NewDayWindow builds a window covering whole calendar days, from the start of
// startDay to the last instant of endDay, in startDay's location.
func NewDayWindow(startDay, endDay time.Time) PeriodWindow {
	return PeriodWindow{
		Start: StartOfDay(startDay),
		End:   EndOfDay(endDay),
	}
}

// LastDays returns a window covering the n calendar days ending with now's day
func LastDays(now time.Time, n int) PeriodWindow {
	if n < 1 {
		n = 1
	}
	return NewDayWindow(now.AddDate(0, 0, -(n - 1)), now)
}

// IsEmpty reports whether the window can match nothing (start at or after end)
func (w PeriodWindow) IsEmpty() bool {
	return !w.Start.Before(w.End)
}

// Contains reports whether t falls inside the window, both ends inclusive
func (w PeriodWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Days lists every calendar day in the window, inclusive. Empty windows yield nil.
func (w PeriodWindow) Days() []time.Time {
	if w.IsEmpty() {
		return nil
	}
	loc := w.Start.Location()
	last := StartOfDay(w.End.In(loc))
	var days []time.Time
	for d := StartOfDay(w.Start); !d.After(last); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// StartKey renders the start day for cache keys
func (w PeriodWindow) StartKey() string {
	return w.Start.Format(DayLayout)
}

// EndKey renders the end day for cache keys
func (w PeriodWindow) EndKey() string {
	return w.End.Format(DayLayout)
}

// String renders the window as "start..end" at day granularity
func (w PeriodWindow) String() string {
	return w.StartKey() + ".." + w.EndKey()
}

// StartOfDay truncates t to midnight in its own location
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last representable instant of t's day
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
