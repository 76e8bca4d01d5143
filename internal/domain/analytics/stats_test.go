package analytics

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// ---------------------------------------------------------------------------
// Bleeding classification Tests
// ---------------------------------------------------------------------------

func TestIsBleeding(t *testing.T) {
	tests := []struct {
		name     string
		discount string
		revenue  string
		expected bool
	}{
		{"zero revenue with discount", "500", "0", false},
		{"zero revenue zero discount", "0", "0", false},
		{"negative revenue", "10", "-5", false},
		{"exactly at threshold", "30", "100", false},
		{"just above threshold", "30.01", "100", true},
		{"ratio 0.3001", "3001", "10000", true},
		{"well below", "5", "100", false},
		{"one order total 100 discount 40", "40", "100", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsBleeding(dec(tt.discount), dec(tt.revenue)))
		})
	}
}

func TestBleedingRatio(t *testing.T) {
	assert.True(t, dec("0.4").Equal(BleedingRatio(dec("40"), dec("100"))))
	assert.True(t, BleedingRatio(dec("40"), decimal.Zero).IsZero())
}

func TestCouponStat_Classify(t *testing.T) {
	c := CouponStat{CouponCode: "SAVE40", TotalDiscountGiven: dec("40"), TotalRevenueGenerated: dec("100")}
	c.Classify()
	assert.True(t, c.IsBleedingMoney)

	c.TotalRevenueGenerated = dec("1000")
	c.Classify()
	assert.False(t, c.IsBleedingMoney)
}

func TestDetectBleedingTransitions(t *testing.T) {
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	previous := map[string]bool{
		"STEADY":  false,
		"FLIPON":  false,
		"FLIPOFF": true,
		"STILLON": true,
	}
	stats := []CouponStat{
		{CouponCode: "STEADY", IsBleedingMoney: false},
		{CouponCode: "FLIPON", IsBleedingMoney: true, TotalDiscountGiven: dec("40"), TotalRevenueGenerated: dec("100")},
		{CouponCode: "FLIPOFF", IsBleedingMoney: false},
		{CouponCode: "STILLON", IsBleedingMoney: true},
		{CouponCode: "NEWBLEED", IsBleedingMoney: true},
		{CouponCode: "NEWFINE", IsBleedingMoney: false},
	}

	transitions := DetectBleedingTransitions(previous, stats, at)
	require.Len(t, transitions, 3)

	assert.Equal(t, "FLIPON", transitions[0].CouponCode)
	assert.True(t, transitions[0].Bleeding)
	assert.True(t, dec("0.4").Equal(transitions[0].Ratio))
	assert.Equal(t, at, transitions[0].At)

	assert.Equal(t, "FLIPOFF", transitions[1].CouponCode)
	assert.False(t, transitions[1].Bleeding)

	assert.Equal(t, "NEWBLEED", transitions[2].CouponCode)
}

// ---------------------------------------------------------------------------
// DailyStat Tests
// ---------------------------------------------------------------------------

func TestNewDailyStat(t *testing.T) {
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	s := NewDailyStat(date, dec("150"), 2)
	assert.True(t, dec("75").Equal(s.AvgOrderValue))
	assert.Equal(t, int64(2), s.OrderCount)

	empty := NewDailyStat(date, decimal.Zero, 0)
	assert.True(t, empty.AvgOrderValue.IsZero())
}

// ---------------------------------------------------------------------------
// SyncLog Tests
// ---------------------------------------------------------------------------

func TestNewSyncLogs(t *testing.T) {
	start := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)

	ok := NewSuccessSyncLog(SyncTypeFull, 12, `{"daily":3}`, start, end)
	assert.NotEqual(t, uuid.Nil, ok.ID)
	assert.Equal(t, SyncStatusSuccess, ok.Status)
	assert.Empty(t, ok.ErrorMessage)
	assert.Equal(t, 90*time.Second, ok.Duration())

	failed := NewErrorSyncLog(SyncTypeFull, 3, "", errors.New("product phase: boom"), start, end)
	assert.Equal(t, SyncStatusError, failed.Status)
	assert.Equal(t, "product phase: boom", failed.ErrorMessage)
	assert.NotEqual(t, ok.ID, failed.ID)
}
