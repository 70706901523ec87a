package sales

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rxledger/pharmacy-backend/pkg/db/models"
	"github.com/rxledger/pharmacy-backend/pkg/enums"
)

// LineInput is one requested sale line. SellingPrice overrides the batch price.
type LineInput struct {
	MedicineID   uuid.UUID        `json:"medicineId" validate:"required"`
	BatchID      uuid.UUID        `json:"batchId" validate:"required"`
	Quantity     int              `json:"quantity"`
	SellingPrice *decimal.Decimal `json:"sellingPrice,omitempty"`
	Discount     decimal.Decimal  `json:"discount"`
}

// CreateSaleInput is the POS checkout payload. Money is in major units.
type CreateSaleInput struct {
	Items           []LineInput         `json:"items" validate:"required,min=1,dive"`
	PaymentMethod   enums.PaymentMethod `json:"paymentMethod" validate:"required"`
	AmountPaid      decimal.Decimal     `json:"amountPaid"`
	TotalDiscount   decimal.Decimal     `json:"totalDiscount"`
	CustomerID      *uuid.UUID          `json:"customerId,omitempty"`
	CounterID       *uuid.UUID          `json:"counterId,omitempty"`
	PrescriptionRef *string             `json:"prescriptionRef,omitempty"`
}

// ReturnLineInput returns Quantity units of the line at LineIndex.
type ReturnLineInput struct {
	LineIndex int `json:"lineIndex" validate:"gte=0"`
	Quantity  int `json:"quantity"`
}

// ReturnSaleInput lists the lines being returned.
type ReturnSaleInput struct {
	Items []ReturnLineInput `json:"items" validate:"required,min=1,dive"`
}

// SaleItemDTO is a sale line snapshot.
type SaleItemDTO struct {
	LineIndex        int       `json:"lineIndex"`
	MedicineID       uuid.UUID `json:"medicineId"`
	BatchID          uuid.UUID `json:"batchId"`
	MedicineName     string    `json:"medicineName"`
	BatchNumber      string    `json:"batchNumber"`
	UnitPriceCents   int64     `json:"unitPriceCents"`
	DiscountCents    int64     `json:"discountCents"`
	Quantity         int       `json:"quantity"`
	ReturnedQuantity int       `json:"returnedQuantity"`
	TotalCents       int64     `json:"totalCents"`
}

// SaleDTO is the invoice returned to callers.
type SaleDTO struct {
	ID                  uuid.UUID           `json:"id"`
	InvoiceNumber       string              `json:"invoiceNumber"`
	CounterID           uuid.UUID           `json:"counterId"`
	CustomerID          *uuid.UUID          `json:"customerId,omitempty"`
	SoldBy              uuid.UUID           `json:"soldBy"`
	PrescriptionRef     *string             `json:"prescriptionRef,omitempty"`
	SubtotalCents       int64               `json:"subtotalCents"`
	DiscountCents       int64               `json:"discountCents"`
	TaxCents            int64               `json:"taxCents"`
	GrandTotalCents     int64               `json:"grandTotalCents"`
	AmountPaidCents     int64               `json:"amountPaidCents"`
	ChangeReturnedCents int64               `json:"changeReturnedCents"`
	ReturnedAmountCents int64               `json:"returnedAmountCents"`
	PaymentMethod       enums.PaymentMethod `json:"paymentMethod"`
	Status              enums.SaleStatus    `json:"status"`
	Items               []SaleItemDTO       `json:"items"`
	CreatedAt           time.Time           `json:"createdAt"`
}

// NewSaleDTO maps a persisted sale.
func NewSaleDTO(sale *models.Sale) *SaleDTO {
	dto := &SaleDTO{
		ID:                  sale.ID,
		InvoiceNumber:       sale.InvoiceNumber,
		CounterID:           sale.CounterID,
		CustomerID:          sale.CustomerID,
		SoldBy:              sale.SoldBy,
		PrescriptionRef:     sale.PrescriptionRef,
		SubtotalCents:       sale.SubtotalCents,
		DiscountCents:       sale.DiscountCents,
		TaxCents:            sale.TaxCents,
		GrandTotalCents:     sale.GrandTotalCents,
		AmountPaidCents:     sale.AmountPaidCents,
		ChangeReturnedCents: sale.ChangeReturnedCents,
		ReturnedAmountCents: sale.ReturnedAmountCents,
		PaymentMethod:       sale.PaymentMethod,
		Status:              sale.Status,
		Items:               make([]SaleItemDTO, 0, len(sale.Items)),
		CreatedAt:           sale.CreatedAt,
	}
	for _, item := range sale.Items {
		dto.Items = append(dto.Items, SaleItemDTO{
			LineIndex:        item.LineIndex,
			MedicineID:       item.MedicineID,
			BatchID:          item.BatchID,
			MedicineName:     item.MedicineName,
			BatchNumber:      item.BatchNumber,
			UnitPriceCents:   item.UnitPriceCents,
			DiscountCents:    item.DiscountCents,
			Quantity:         item.Quantity,
			ReturnedQuantity: item.ReturnedQuantity,
			TotalCents:       item.TotalCents,
		})
	}
	return dto
}

// TodaySummary is the cached sales-today read.
type TodaySummary struct {
	Day                 string `json:"day"`
	SalesCount          int64  `json:"salesCount"`
	SalesTotalCents     int64  `json:"salesTotalCents"`
	PurchasesTotalCents int64  `json:"purchasesTotalCents"`
}

// Event payloads.
type saleEvent struct {
	SaleID        uuid.UUID `json:"saleId"`
	InvoiceNumber string    `json:"invoiceNumber"`
	GrandTotal    int64     `json:"grandTotalCents"`
}

type inventoryEvent struct {
	BatchIDs []uuid.UUID `json:"batchIds"`
	Reason   string      `json:"reason"`
}
