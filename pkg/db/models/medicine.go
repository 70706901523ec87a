package models

import (
	"time"

	"github.com/google/uuid"
)

type Medicine struct {
	ID                   uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name                 string    `gorm:"column:name;not null;index"`
	GenericName          *string   `gorm:"column:generic_name"`
	Manufacturer         *string   `gorm:"column:manufacturer"`
	Category             *string   `gorm:"column:category"`
	Unit                 string    `gorm:"column:unit;not null;default:'unit'"`
	RequiresPrescription bool      `gorm:"column:requires_prescription;not null;default:false"`
	IsActive             bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt            time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
