package tenants

import (
	"time"

	"github.com/google/uuid"

	"github.com/rxledger/pharmacy-backend/pkg/db/models"
	"github.com/rxledger/pharmacy-backend/pkg/enums"
)

// RegisterInput onboards a pharmacy and its owner. The password hash is
// produced upstream.
type RegisterInput struct {
	Name              string                 `json:"name" validate:"required"`
	Slug              string                 `json:"slug" validate:"required"`
	Plan              enums.SubscriptionPlan `json:"plan"`
	TaxRateBps        int                    `json:"taxRateBps" validate:"gte=0,lte=10000"`
	OwnerName         string                 `json:"ownerName" validate:"required"`
	OwnerEmail        string                 `json:"ownerEmail" validate:"required,email"`
	OwnerPasswordHash string                 `json:"ownerPasswordHash" validate:"required"`
}

// SubscriptionInput changes a tenant's plan and subscription state.
type SubscriptionInput struct {
	Plan   enums.SubscriptionPlan   `json:"plan" validate:"required"`
	Status enums.SubscriptionStatus `json:"status" validate:"required"`
	End    *time.Time               `json:"end,omitempty"`
}

// TenantDTO is the control-plane view of a tenant.
type TenantDTO struct {
	ID                 uuid.UUID                `json:"id"`
	Name               string                   `json:"name"`
	Slug               string                   `json:"slug"`
	Plan               enums.SubscriptionPlan   `json:"plan"`
	SubscriptionStatus enums.SubscriptionStatus `json:"subscriptionStatus"`
	SubscriptionStart  time.Time                `json:"subscriptionStart"`
	SubscriptionEnd    *time.Time               `json:"subscriptionEnd,omitempty"`
	TaxRateBps         int                      `json:"taxRateBps"`
	IsActive           bool                     `json:"isActive"`
	PartitionName      string                   `json:"partitionName"`
	OwnerID            *uuid.UUID               `json:"ownerId,omitempty"`
}

// NewTenantDTO maps a persisted tenant.
func NewTenantDTO(t *models.Tenant) TenantDTO {
	return TenantDTO{
		ID:                 t.ID,
		Name:               t.Name,
		Slug:               t.Slug,
		Plan:               t.Plan,
		SubscriptionStatus: t.SubscriptionStatus,
		SubscriptionStart:  t.SubscriptionStart,
		SubscriptionEnd:    t.SubscriptionEnd,
		TaxRateBps:         t.TaxRateBps,
		IsActive:           t.IsActive,
		PartitionName:      t.PartitionName,
	}
}
