package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rxledger/pharmacy-backend/pkg/enums"
)

// Tenant is one pharmacy registered on the control plane.
type Tenant struct {
	ID                 uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	Name               string                   `gorm:"column:name;not null"`
	Slug               string                   `gorm:"column:slug;not null;uniqueIndex"`
	Plan               enums.SubscriptionPlan   `gorm:"column:plan;not null"`
	SubscriptionStatus enums.SubscriptionStatus `gorm:"column:subscription_status;not null"`
	SubscriptionStart  time.Time                `gorm:"column:subscription_start;not null"`
	SubscriptionEnd    *time.Time               `gorm:"column:subscription_end"`
	TaxRateBps         int                      `gorm:"column:tax_rate_bps;not null;default:0"`
	IsActive           bool                     `gorm:"column:is_active;not null;default:true"`
	PartitionName      string                   `gorm:"column:partition_name;not null;uniqueIndex"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
