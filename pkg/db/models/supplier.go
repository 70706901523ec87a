package models

import (
	"time"

	"github.com/google/uuid"
)

// Supplier aggregates move only by signed deltas applied alongside purchase mutations.
type Supplier struct {
	ID                  uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Name                string     `gorm:"column:name;not null"`
	Phone               *string    `gorm:"column:phone"`
	Email               *string    `gorm:"column:email"`
	IsActive            bool       `gorm:"column:is_active;not null;default:true"`
	CurrentDueCents     int64      `gorm:"column:current_due_cents;not null;default:0"`
	TotalPurchasesCents int64      `gorm:"column:total_purchases_cents;not null;default:0"`
	LastPurchaseDate    *time.Time `gorm:"column:last_purchase_date"`
	CreatedAt           time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
