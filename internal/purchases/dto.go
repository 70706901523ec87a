package purchases

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rxledger/pharmacy-backend/pkg/db/models"
	"github.com/rxledger/pharmacy-backend/pkg/enums"
)

// LineInput is one ordered batch. Money is in major units; ExpiryDate is YYYY-MM-DD.
type LineInput struct {
	MedicineID     uuid.UUID       `json:"medicineId" validate:"required"`
	BatchNumber    string          `json:"batchNumber"`
	Quantity       int             `json:"quantity"`
	FreeQuantity   int             `json:"freeQuantity"`
	ExpiryDate     string          `json:"expiryDate"`
	PurchasePrice  decimal.Decimal `json:"purchasePrice"`
	MRP            decimal.Decimal `json:"mrp"`
	SellingPrice   decimal.Decimal `json:"sellingPrice"`
	AlertThreshold *int            `json:"alertThreshold,omitempty"`
}

// CreatePurchaseInput places a purchase order with a supplier.
type CreatePurchaseInput struct {
	SupplierID    uuid.UUID           `json:"supplierId" validate:"required"`
	Items         []LineInput         `json:"items" validate:"required,min=1,dive"`
	ExpectedDate  *string             `json:"expectedDate,omitempty"`
	InvoiceRef    *string             `json:"invoiceRef,omitempty"`
	Discount      decimal.Decimal     `json:"discount"`
	Tax           decimal.Decimal     `json:"tax"`
	AmountPaid    decimal.Decimal     `json:"amountPaid"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod,omitempty"`
	Notes         string              `json:"notes"`
}

// ReceiveLineInput overrides what arrived for the line at LineIndex.
type ReceiveLineInput struct {
	LineIndex            int `json:"lineIndex" validate:"gte=0"`
	ReceivedQuantity     int `json:"receivedQuantity"`
	ReceivedFreeQuantity int `json:"receivedFreeQuantity"`
}

// ReceivePurchaseInput lists receive overrides. Lines without one are
// received in full.
type ReceivePurchaseInput struct {
	Items        []ReceiveLineInput `json:"items" validate:"dive"`
	ReceivedDate *string            `json:"receivedDate,omitempty"`
	InvoiceRef   *string            `json:"invoiceRef,omitempty"`
}

// PaymentInput records money paid to the supplier against the order.
type PaymentInput struct {
	Amount    decimal.Decimal     `json:"amount"`
	Method    enums.PaymentMethod `json:"method" validate:"required"`
	Reference *string             `json:"reference,omitempty"`
}

// CancelInput carries the reason appended to the order notes.
type CancelInput struct {
	Reason string `json:"reason"`
}

// ItemDTO is a purchase line.
type ItemDTO struct {
	LineIndex            int        `json:"lineIndex"`
	MedicineID           uuid.UUID  `json:"medicineId"`
	BatchNumber          string     `json:"batchNumber"`
	Quantity             int        `json:"quantity"`
	FreeQuantity         int        `json:"freeQuantity"`
	ReceivedQuantity     int        `json:"receivedQuantity"`
	ReceivedFreeQuantity int        `json:"receivedFreeQuantity"`
	ExpiryDate           time.Time  `json:"expiryDate"`
	PurchasePriceCents   int64      `json:"purchasePriceCents"`
	MRPCents             int64      `json:"mrpCents"`
	SellingPriceCents    int64      `json:"sellingPriceCents"`
	TotalCents           int64      `json:"totalCents"`
	BatchID              *uuid.UUID `json:"batchId,omitempty"`
}

// PaymentDTO is one payment ledger entry.
type PaymentDTO struct {
	AmountCents int64               `json:"amountCents"`
	Method      enums.PaymentMethod `json:"method"`
	Reference   *string             `json:"reference,omitempty"`
	PaidAt      time.Time           `json:"paidAt"`
	RecordedBy  uuid.UUID           `json:"recordedBy"`
}

// PurchaseDTO is the purchase order returned to callers.
type PurchaseDTO struct {
	ID              uuid.UUID            `json:"id"`
	OrderNumber     string               `json:"orderNumber"`
	SupplierID      uuid.UUID            `json:"supplierId"`
	CreatedBy       uuid.UUID            `json:"createdBy"`
	OrderDate       time.Time            `json:"orderDate"`
	ExpectedDate    *time.Time           `json:"expectedDate,omitempty"`
	ReceivedDate    *time.Time           `json:"receivedDate,omitempty"`
	InvoiceRef      *string              `json:"invoiceRef,omitempty"`
	SubtotalCents   int64                `json:"subtotalCents"`
	DiscountCents   int64                `json:"discountCents"`
	TaxCents        int64                `json:"taxCents"`
	GrandTotalCents int64                `json:"grandTotalCents"`
	AmountPaidCents int64                `json:"amountPaidCents"`
	DueAmountCents  int64                `json:"dueAmountCents"`
	Status          enums.PurchaseStatus `json:"status"`
	PaymentStatus   enums.PaymentStatus  `json:"paymentStatus"`
	Notes           string               `json:"notes"`
	Items           []ItemDTO            `json:"items"`
	Payments        []PaymentDTO         `json:"payments"`
}

// NewPurchaseDTO maps a persisted purchase.
func NewPurchaseDTO(p *models.Purchase) *PurchaseDTO {
	dto := &PurchaseDTO{
		ID:              p.ID,
		OrderNumber:     p.OrderNumber,
		SupplierID:      p.SupplierID,
		CreatedBy:       p.CreatedBy,
		OrderDate:       p.OrderDate,
		ExpectedDate:    p.ExpectedDate,
		ReceivedDate:    p.ReceivedDate,
		InvoiceRef:      p.InvoiceRef,
		SubtotalCents:   p.SubtotalCents,
		DiscountCents:   p.DiscountCents,
		TaxCents:        p.TaxCents,
		GrandTotalCents: p.GrandTotalCents,
		AmountPaidCents: p.AmountPaidCents,
		DueAmountCents:  p.DueAmountCents,
		Status:          p.Status,
		PaymentStatus:   p.PaymentStatus,
		Notes:           p.Notes,
		Items:           make([]ItemDTO, 0, len(p.Items)),
		Payments:        make([]PaymentDTO, 0, len(p.Payments)),
	}
	for _, item := range p.Items {
		dto.Items = append(dto.Items, ItemDTO{
			LineIndex:            item.LineIndex,
			MedicineID:           item.MedicineID,
			BatchNumber:          item.BatchNumber,
			Quantity:             item.Quantity,
			FreeQuantity:         item.FreeQuantity,
			ReceivedQuantity:     item.ReceivedQuantity,
			ReceivedFreeQuantity: item.ReceivedFreeQuantity,
			ExpiryDate:           item.ExpiryDate,
			PurchasePriceCents:   item.PurchasePriceCents,
			MRPCents:             item.MRPCents,
			SellingPriceCents:    item.SellingPriceCents,
			TotalCents:           item.TotalCents,
			BatchID:              item.BatchID,
		})
	}
	for _, payment := range p.Payments {
		dto.Payments = append(dto.Payments, PaymentDTO{
			AmountCents: payment.AmountCents,
			Method:      payment.Method,
			Reference:   payment.Reference,
			PaidAt:      payment.PaidAt,
			RecordedBy:  payment.RecordedBy,
		})
	}
	return dto
}

type purchaseEvent struct {
	PurchaseID  uuid.UUID            `json:"purchaseId"`
	OrderNumber string               `json:"orderNumber"`
	SupplierID  uuid.UUID            `json:"supplierId"`
	Status      enums.PurchaseStatus `json:"status"`
	GrandTotal  int64                `json:"grandTotalCents"`
}

type inventoryEvent struct {
	BatchIDs []uuid.UUID `json:"batchIds"`
	Reason   string      `json:"reason"`
}
