package models

import (
	"time"

	"github.com/google/uuid"
)

type Customer struct {
	ID                  uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name                string    `gorm:"column:name;not null"`
	Phone               *string   `gorm:"column:phone;index"`
	TotalPurchasesCents int64     `gorm:"column:total_purchases_cents;not null;default:0"`
	LoyaltyPoints       int64     `gorm:"column:loyalty_points;not null;default:0"`
	DueBalanceCents     int64     `gorm:"column:due_balance_cents;not null;default:0"`
	CreatedAt           time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
