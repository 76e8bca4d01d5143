package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storepulse/backend/internal/domain/analytics"
)

// All lists every analytics model for AutoMigrate in tests.
// Production schemas come from the SQL files under migrations/.
func All() []any {
	return []any{
		&DailyStatModel{},
		&ProductStatModel{},
		&CustomerStatModel{},
		&CouponStatModel{},
		&SyncLogModel{},
	}
}

// ---------------------------------------------------------------------------
// daily_stats
// ---------------------------------------------------------------------------

// DailyStatModel is the persistence model for one calendar day of sales
type DailyStatModel struct {
	Date          time.Time       `gorm:"type:date;primaryKey"`
	TotalSales    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	OrderCount    int64           `gorm:"not null;default:0"`
	AvgOrderValue decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	CreatedAt     time.Time       `gorm:"not null"`
	UpdatedAt     time.Time       `gorm:"not null"`
}

// TableName returns the table name for DailyStatModel
func (DailyStatModel) TableName() string {
	return "daily_stats"
}

// CalendarDate keys t by the calendar day it falls on in its own location,
// stored as UTC midnight. Converting to UTC first would move local midnight
// east of UTC onto the previous day.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ToDomain converts the model to a domain DailyStat
func (m *DailyStatModel) ToDomain() analytics.DailyStat {
	return analytics.DailyStat{
		Date:          m.Date.UTC(),
		TotalSales:    m.TotalSales,
		OrderCount:    m.OrderCount,
		AvgOrderValue: m.AvgOrderValue,
		UpdatedAt:     m.UpdatedAt,
	}
}

// DailyStatModelFromDomain creates a model from a domain DailyStat
func DailyStatModelFromDomain(s analytics.DailyStat) *DailyStatModel {
	return &DailyStatModel{
		Date:          CalendarDate(s.Date),
		TotalSales:    s.TotalSales,
		OrderCount:    s.OrderCount,
		AvgOrderValue: s.AvgOrderValue,
		UpdatedAt:     s.UpdatedAt,
	}
}

// ---------------------------------------------------------------------------
// product_stats
// ---------------------------------------------------------------------------

// ProductStatModel is the persistence model for per-product sales totals
type ProductStatModel struct {
	ProductID         int64           `gorm:"primaryKey;autoIncrement:false"`
	Title             string          `gorm:"size:255;not null;default:''"`
	TotalQuantitySold int64           `gorm:"not null;default:0"`
	TotalRevenue      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	CurrentStock      int64           `gorm:"not null;default:0"`
	CreatedAt         time.Time       `gorm:"not null"`
	UpdatedAt         time.Time       `gorm:"not null"`
}

// TableName returns the table name for ProductStatModel
func (ProductStatModel) TableName() string {
	return "product_stats"
}

// ToDomain converts the model to a domain ProductStat
func (m *ProductStatModel) ToDomain() analytics.ProductStat {
	return analytics.ProductStat{
		ProductID:         m.ProductID,
		Title:             m.Title,
		TotalQuantitySold: m.TotalQuantitySold,
		TotalRevenue:      m.TotalRevenue,
		CurrentStock:      m.CurrentStock,
		UpdatedAt:         m.UpdatedAt,
	}
}

// ProductStatModelFromDomain creates a model from a domain ProductStat
func ProductStatModelFromDomain(s analytics.ProductStat) *ProductStatModel {
	return &ProductStatModel{
		ProductID:         s.ProductID,
		Title:             s.Title,
		TotalQuantitySold: s.TotalQuantitySold,
		TotalRevenue:      s.TotalRevenue,
		CurrentStock:      s.CurrentStock,
		UpdatedAt:         s.UpdatedAt,
	}
}

// ---------------------------------------------------------------------------
// customer_stats
// ---------------------------------------------------------------------------

// CustomerStatModel is the persistence model for a remote customer's lifetime totals
type CustomerStatModel struct {
	CustomerID  int64           `gorm:"primaryKey;autoIncrement:false"`
	Email       string          `gorm:"size:255;index"`
	FirstName   string          `gorm:"size:100"`
	LastName    string          `gorm:"size:100"`
	TotalOrders int64           `gorm:"not null;default:0"`
	TotalSpent  decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	LastOrderAt *time.Time
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for CustomerStatModel
func (CustomerStatModel) TableName() string {
	return "customer_stats"
}

// ToDomain converts the model to a domain CustomerStat
func (m *CustomerStatModel) ToDomain() analytics.CustomerStat {
	return analytics.CustomerStat{
		CustomerID:  m.CustomerID,
		Email:       m.Email,
		FirstName:   m.FirstName,
		LastName:    m.LastName,
		TotalOrders: m.TotalOrders,
		TotalSpent:  m.TotalSpent,
		LastOrderAt: m.LastOrderAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// CustomerStatModelFromDomain creates a model from a domain CustomerStat
func CustomerStatModelFromDomain(s analytics.CustomerStat) *CustomerStatModel {
	return &CustomerStatModel{
		CustomerID:  s.CustomerID,
		Email:       s.Email,
		FirstName:   s.FirstName,
		LastName:    s.LastName,
		TotalOrders: s.TotalOrders,
		TotalSpent:  s.TotalSpent,
		LastOrderAt: s.LastOrderAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// ---------------------------------------------------------------------------
// coupon_stats
// ---------------------------------------------------------------------------

// CouponStatModel is the persistence model for coupon usage and the bleeding flag
type CouponStatModel struct {
	CouponCode            string          `gorm:"size:100;primaryKey"`
	CouponType            string          `gorm:"size:50;not null;default:''"`
	DiscountValue         decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	TimesUsed             int64           `gorm:"not null;default:0"`
	TotalDiscountGiven    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	TotalRevenueGenerated decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	IsActive              bool            `gorm:"not null;default:false"`
	Status                string          `gorm:"size:20;not null;default:''"`
	IsBleedingMoney       bool            `gorm:"not null;default:false;index"`
	CreatedAt             time.Time       `gorm:"not null"`
	UpdatedAt             time.Time       `gorm:"not null"`
}

// TableName returns the table name for CouponStatModel
func (CouponStatModel) TableName() string {
	return "coupon_stats"
}

// ToDomain converts the model to a domain CouponStat
func (m *CouponStatModel) ToDomain() analytics.CouponStat {
	return analytics.CouponStat{
		CouponCode:            m.CouponCode,
		CouponType:            m.CouponType,
		DiscountValue:         m.DiscountValue,
		TimesUsed:             m.TimesUsed,
		TotalDiscountGiven:    m.TotalDiscountGiven,
		TotalRevenueGenerated: m.TotalRevenueGenerated,
		IsActive:              m.IsActive,
		Status:                m.Status,
		IsBleedingMoney:       m.IsBleedingMoney,
		UpdatedAt:             m.UpdatedAt,
	}
}

// CouponStatModelFromDomain creates a model from a domain CouponStat
func CouponStatModelFromDomain(s analytics.CouponStat) *CouponStatModel {
	return &CouponStatModel{
		CouponCode:            s.CouponCode,
		CouponType:            s.CouponType,
		DiscountValue:         s.DiscountValue,
		TimesUsed:             s.TimesUsed,
		TotalDiscountGiven:    s.TotalDiscountGiven,
		TotalRevenueGenerated: s.TotalRevenueGenerated,
		IsActive:              s.IsActive,
		Status:                s.Status,
		IsBleedingMoney:       s.IsBleedingMoney,
		UpdatedAt:             s.UpdatedAt,
	}
}

// ---------------------------------------------------------------------------
// sync_logs
// ---------------------------------------------------------------------------

// SyncLogModel is the persistence model for the sync audit trail
type SyncLogModel struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	SyncType         string    `gorm:"size:20;not null"`
	Status           string    `gorm:"size:20;not null;index"`
	RecordsProcessed int64     `gorm:"not null;default:0"`
	ErrorMessage     string    `gorm:"type:text"`
	Summary          string    `gorm:"type:text"`
	StartedAt        time.Time `gorm:"not null;index"`
	FinishedAt       time.Time `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null"`
}

// TableName returns the table name for SyncLogModel
func (SyncLogModel) TableName() string {
	return "sync_logs"
}

// ToDomain converts the model to a domain SyncLog
func (m *SyncLogModel) ToDomain() analytics.SyncLog {
	return analytics.SyncLog{
		ID:               m.ID,
		SyncType:         analytics.SyncType(m.SyncType),
		Status:           analytics.SyncStatus(m.Status),
		RecordsProcessed: m.RecordsProcessed,
		ErrorMessage:     m.ErrorMessage,
		Summary:          m.Summary,
		StartedAt:        m.StartedAt,
		FinishedAt:       m.FinishedAt,
	}
}

// SyncLogModelFromDomain creates a model from a domain SyncLog
func SyncLogModelFromDomain(l *analytics.SyncLog) *SyncLogModel {
	return &SyncLogModel{
		ID:               l.ID,
		SyncType:         string(l.SyncType),
		Status:           string(l.Status),
		RecordsProcessed: l.RecordsProcessed,
		ErrorMessage:     l.ErrorMessage,
		Summary:          l.Summary,
		StartedAt:        l.StartedAt,
		FinishedAt:       l.FinishedAt,
	}
}
