package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rxledger/pharmacy-backend/pkg/enums"
)

// InventoryBatch is one received lot of a medicine. Status is derived from
// Quantity and ExpiryDate and is rewritten on every save.
type InventoryBatch struct {
	ID                 uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	MedicineID         uuid.UUID         `gorm:"column:medicine_id;type:uuid;not null;uniqueIndex:idx_inventory_batches_medicine_batch,priority:1"`
	BatchNumber        string            `gorm:"column:batch_number;not null;uniqueIndex:idx_inventory_batches_medicine_batch,priority:2"`
	Quantity           int               `gorm:"column:quantity;not null;check:quantity >= 0"`
	InitialQuantity    int               `gorm:"column:initial_quantity;not null"`
	ExpiryDate         time.Time         `gorm:"column:expiry_date;not null;index"`
	PurchasePriceCents int64             `gorm:"column:purchase_price_cents;not null"`
	MRPCents           int64             `gorm:"column:mrp_cents;not null"`
	SellingPriceCents  int64             `gorm:"column:selling_price_cents;not null"`
	AlertThreshold     int               `gorm:"column:alert_threshold;not null;default:10"`
	SupplierID         *uuid.UUID        `gorm:"column:supplier_id;type:uuid"`
	PurchaseDate       time.Time         `gorm:"column:purchase_date;not null"`
	Status             enums.BatchStatus `gorm:"column:status;not null;index"`
	CreatedAt          time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
