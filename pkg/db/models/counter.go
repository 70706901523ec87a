package models

import (
	"time"

	"github.com/google/uuid"
)

// Counter is a POS till.
type Counter struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Name          string     `gorm:"column:name;not null"`
	IsDefault     bool       `gorm:"column:is_default;not null;default:false"`
	IsActive      bool       `gorm:"column:is_active;not null;default:true"`
	LastSessionAt *time.Time `gorm:"column:last_session_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// CounterSequence holds the last number issued for a (scope, day) pair.
type CounterSequence struct {
	Scope     string    `gorm:"column:scope;primaryKey"`
	Day       string    `gorm:"column:day;primaryKey"`
	Sequence  int64     `gorm:"column:sequence;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// DailySummary is keyed by calendar day (YYYYMMDD, UTC).
type DailySummary struct {
	Day                 string    `gorm:"column:day;primaryKey"`
	SalesCount          int64     `gorm:"column:sales_count;not null;default:0"`
	SalesTotalCents     int64     `gorm:"column:sales_total_cents;not null;default:0"`
	PurchasesTotalCents int64     `gorm:"column:purchases_total_cents;not null;default:0"`
	UpdatedAt           time.Time `gorm:"column:updated_at;not null"`
}
