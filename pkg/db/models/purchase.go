package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rxledger/pharmacy-backend/pkg/enums"
)

// Purchase is a supplier order. DueAmountCents and PaymentStatus are derived
// from the totals and status at every mutation.
type Purchase struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber     string               `gorm:"column:order_number;not null;uniqueIndex"`
	SupplierID      uuid.UUID            `gorm:"column:supplier_id;type:uuid;not null;index"`
	CreatedBy       uuid.UUID            `gorm:"column:created_by;type:uuid;not null"`
	OrderDate       time.Time            `gorm:"column:order_date;not null"`
	ExpectedDate    *time.Time           `gorm:"column:expected_date"`
	ReceivedDate    *time.Time           `gorm:"column:received_date"`
	InvoiceRef      *string              `gorm:"column:invoice_ref"`
	SubtotalCents   int64                `gorm:"column:subtotal_cents;not null"`
	DiscountCents   int64                `gorm:"column:discount_cents;not null;default:0"`
	TaxCents        int64                `gorm:"column:tax_cents;not null;default:0"`
	GrandTotalCents int64                `gorm:"column:grand_total_cents;not null"`
	AmountPaidCents int64                `gorm:"column:amount_paid_cents;not null;default:0"`
	DueAmountCents  int64                `gorm:"column:due_amount_cents;not null;default:0"`
	Status          enums.PurchaseStatus `gorm:"column:status;not null;index"`
	PaymentStatus   enums.PaymentStatus  `gorm:"column:payment_status;not null"`
	Notes           string               `gorm:"column:notes;not null;default:''"`
	Items           []PurchaseItem       `gorm:"foreignKey:PurchaseID"`
	Payments        []PurchasePayment    `gorm:"foreignKey:PurchaseID"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

type PurchaseItem struct {
	ID                   uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	PurchaseID           uuid.UUID  `gorm:"column:purchase_id;type:uuid;not null;index"`
	LineIndex            int        `gorm:"column:line_index;not null"`
	MedicineID           uuid.UUID  `gorm:"column:medicine_id;type:uuid;not null"`
	BatchNumber          string     `gorm:"column:batch_number;not null"`
	Quantity             int        `gorm:"column:quantity;not null"`
	FreeQuantity         int        `gorm:"column:free_quantity;not null;default:0"`
	ReceivedQuantity     int        `gorm:"column:received_quantity;not null;default:0"`
	ReceivedFreeQuantity int        `gorm:"column:received_free_quantity;not null;default:0"`
	ExpiryDate           time.Time  `gorm:"column:expiry_date;not null"`
	PurchasePriceCents   int64      `gorm:"column:purchase_price_cents;not null"`
	MRPCents             int64      `gorm:"column:mrp_cents;not null"`
	SellingPriceCents    int64      `gorm:"column:selling_price_cents;not null"`
	AlertThreshold       int        `gorm:"column:alert_threshold;not null;default:10"`
	TotalCents           int64      `gorm:"column:total_cents;not null"`
	BatchID              *uuid.UUID `gorm:"column:batch_id;type:uuid"`
	CreatedAt            time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// PurchasePayment is one entry in a purchase's append-only payment ledger.
type PurchasePayment struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	PurchaseID  uuid.UUID           `gorm:"column:purchase_id;type:uuid;not null;index"`
	AmountCents int64               `gorm:"column:amount_cents;not null"`
	Method      enums.PaymentMethod `gorm:"column:method;not null"`
	Reference   *string             `gorm:"column:reference"`
	PaidAt      time.Time           `gorm:"column:paid_at;not null"`
	RecordedBy  uuid.UUID           `gorm:"column:recorded_by;type:uuid;not null"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
}
