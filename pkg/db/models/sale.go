package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rxledger/pharmacy-backend/pkg/enums"
)

// Sale is a POS invoice. Items are snapshots taken at sale time.
type Sale struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	InvoiceNumber       string              `gorm:"column:invoice_number;not null;uniqueIndex"`
	CounterID           uuid.UUID           `gorm:"column:counter_id;type:uuid;not null"`
	CustomerID          *uuid.UUID          `gorm:"column:customer_id;type:uuid"`
	SoldBy              uuid.UUID           `gorm:"column:sold_by;type:uuid;not null"`
	PrescriptionRef     *string             `gorm:"column:prescription_ref"`
	SubtotalCents       int64               `gorm:"column:subtotal_cents;not null"`
	DiscountCents       int64               `gorm:"column:discount_cents;not null;default:0"`
	TaxCents            int64               `gorm:"column:tax_cents;not null;default:0"`
	GrandTotalCents     int64               `gorm:"column:grand_total_cents;not null"`
	AmountPaidCents     int64               `gorm:"column:amount_paid_cents;not null"`
	ChangeReturnedCents int64               `gorm:"column:change_returned_cents;not null;default:0"`
	ReturnedAmountCents int64               `gorm:"column:returned_amount_cents;not null;default:0"`
	PaymentMethod       enums.PaymentMethod `gorm:"column:payment_method;not null"`
	Status              enums.SaleStatus    `gorm:"column:status;not null"`
	SaleDay             string              `gorm:"column:sale_day;not null;index"`
	Items               []SaleItem          `gorm:"foreignKey:SaleID"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

type SaleItem struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SaleID           uuid.UUID `gorm:"column:sale_id;type:uuid;not null;uniqueIndex:idx_sale_items_line,priority:1"`
	LineIndex        int       `gorm:"column:line_index;not null;uniqueIndex:idx_sale_items_line,priority:2"`
	MedicineID       uuid.UUID `gorm:"column:medicine_id;type:uuid;not null"`
	BatchID          uuid.UUID `gorm:"column:batch_id;type:uuid;not null"`
	MedicineName     string    `gorm:"column:medicine_name;not null"`
	BatchNumber      string    `gorm:"column:batch_number;not null"`
	UnitPriceCents   int64     `gorm:"column:unit_price_cents;not null"`
	DiscountCents    int64     `gorm:"column:discount_cents;not null;default:0"`
	Quantity         int       `gorm:"column:quantity;not null"`
	ReturnedQuantity int       `gorm:"column:returned_quantity;not null;default:0"`
	TotalCents       int64     `gorm:"column:total_cents;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
