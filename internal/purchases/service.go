// Package purchases implements the supplier purchase order lifecycle:
// ORDERED, then RECEIVED or COMPLETED, with CANCELLED reachable only before
// anything was received.
package purchases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rxledger/pharmacy-backend/internal/commerce"
	"github.com/rxledger/pharmacy-backend/internal/counters"
	"github.com/rxledger/pharmacy-backend/internal/inventory"
	"github.com/rxledger/pharmacy-backend/internal/tenancy"
	"github.com/rxledger/pharmacy-backend/pkg/cache"
	"github.com/rxledger/pharmacy-backend/pkg/db/models"
	"github.com/rxledger/pharmacy-backend/pkg/enums"
	pkgerrors "github.com/rxledger/pharmacy-backend/pkg/errors"
	"github.com/rxledger/pharmacy-backend/pkg/validate"
)

// OrderPrefix starts every purchase order number.
const OrderPrefix = "PO"

const (
	opCreate  = "purchase_create"
	opReceive = "purchase_receive"
	opPay     = "purchase_pay"
	opCancel  = "purchase_cancel"

	defaultAlertThreshold = 10
)

var receiveTags = append([]string{cache.TagProductSearch}, cache.InventoryTags...)

// Service exposes the purchase order lifecycle.
type Service interface {
	Create(ctx context.Context, actor tenancy.Actor, input CreatePurchaseInput) (*PurchaseDTO, error)
	Receive(ctx context.Context, actor tenancy.Actor, purchaseID uuid.UUID, input ReceivePurchaseInput) (*PurchaseDTO, error)
	RecordPayment(ctx context.Context, actor tenancy.Actor, purchaseID uuid.UUID, input PaymentInput) (*PurchaseDTO, error)
	Cancel(ctx context.Context, actor tenancy.Actor, purchaseID uuid.UUID, input CancelInput) (*PurchaseDTO, error)
	Get(ctx context.Context, actor tenancy.Actor, purchaseID uuid.UUID) (*PurchaseDTO, error)
}

type service struct {
	engine *commerce.Engine
}

// NewService constructs a purchase service.
func NewService(engine *commerce.Engine) (Service, error) {
	if engine == nil {
		return nil, fmt.Errorf("commerce engine required")
	}
	return &service{engine: engine}, nil
}

type plannedLine struct {
	medicineID     uuid.UUID
	batchNumber    string
	quantity       int
	freeQuantity   int
	expiry         time.Time
	purchasePrice  int64
	mrp            int64
	sellingPrice   int64
	alertThreshold int
}

type purchasePlan struct {
	supplierID   uuid.UUID
	lines        []plannedLine
	expectedDate *time.Time
	invoiceRef   *string
	discount     int64
	tax          int64
	amountPaid   int64
	method       enums.PaymentMethod
	notes        string
}

// Create places a purchase order. Supplier due and total purchases move by
// the order's due and grand total.
func (s *service) Create(ctx context.Context, actor tenancy.Actor, input CreatePurchaseInput) (*PurchaseDTO, error) {
	plan, err := s.planPurchase(input)
	if err != nil {
		return nil, err
	}

	var created *models.Purchase
	err = s.engine.Run(ctx, actor, opCreate, func(tx *gorm.DB) error {
		purchase, err := s.createInTx(tx.Statement.Context, tx, actor, plan)
		if err != nil {
			return err
		}
		created = purchase
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.engine.AfterCommit(ctx, actor, cache.InventoryTags, commerce.Event{
		Name:    enums.NotificationEventPurchaseCreated,
		Payload: newPurchaseEvent(created),
	})
	s.logDone(ctx, actor, created, "purchase created")
	return NewPurchaseDTO(created), nil
}

func (s *service) planPurchase(input CreatePurchaseInput) (purchasePlan, error) {
	var errs validate.Errors
	errs.Struct(input)

	today := counters.DayKey(s.engine.Now())
	plan := purchasePlan{supplierID: input.SupplierID, method: input.PaymentMethod}
	seen := map[string]int{}
	for i, line := range input.Items {
		field := fmt.Sprintf("items[%d]", i)
		planned := plannedLine{
			medicineID:     line.MedicineID,
			batchNumber:    validate.Check(&errs, field+".batchNumber", validate.Trim(line.BatchNumber, true)),
			quantity:       validate.Check(&errs, field+".quantity", validate.PositiveInt(line.Quantity)),
			freeQuantity:   validate.Check(&errs, field+".freeQuantity", validate.NonNegativeInt(line.FreeQuantity)),
			expiry:         validate.Check(&errs, field+".expiryDate", validate.Date(line.ExpiryDate)),
			purchasePrice:  validate.Check(&errs, field+".purchasePrice", validate.Money(line.PurchasePrice)),
			mrp:            validate.Check(&errs, field+".mrp", validate.Money(line.MRP)),
			sellingPrice:   validate.Check(&errs, field+".sellingPrice", validate.Money(line.SellingPrice)),
			alertThreshold: defaultAlertThreshold,
		}
		if line.AlertThreshold != nil {
			planned.alertThreshold = validate.Check(&errs, field+".alertThreshold", validate.NonNegativeInt(*line.AlertThreshold))
		}
		if !planned.expiry.IsZero() && counters.DayKey(planned.expiry) <= today {
			errs.Add(field+".expiryDate", "must be in the future")
		}
		if planned.batchNumber != "" {
			key := line.MedicineID.String() + "/" + strings.ToUpper(planned.batchNumber)
			if first, dup := seen[key]; dup {
				errs.AddReason(field+".batchNumber", fmt.Sprintf("duplicates items[%d]", first), pkgerrors.ReasonDuplicateBatch)
			} else {
				seen[key] = i
			}
		}
		plan.lines = append(plan.lines, planned)
	}

	if input.ExpectedDate != nil {
		expected := validate.Check(&errs, "expectedDate", validate.Date(*input.ExpectedDate))
		plan.expectedDate = &expected
	}
	plan.invoiceRef = validate.Check(&errs, "invoiceRef", validate.OptionalTrim(input.InvoiceRef))
	plan.discount = validate.Check(&errs, "discount", validate.Money(input.Discount))
	plan.tax = validate.Check(&errs, "tax", validate.Money(input.Tax))
	plan.amountPaid = validate.Check(&errs, "amountPaid", validate.Money(input.AmountPaid))
	switch {
	case input.PaymentMethod != "" && !input.PaymentMethod.IsValid():
		errs.Add("paymentMethod", "is not supported")
	case plan.amountPaid > 0 && input.PaymentMethod == "":
		errs.Add("paymentMethod", "is required when an amount is paid")
	}
	plan.notes = strings.TrimSpace(input.Notes)

	if err := errs.Err("invalid purchase"); err != nil {
		return purchasePlan{}, err
	}
	return plan, nil
}

func (s *service) createInTx(ctx context.Context, tx *gorm.DB, actor tenancy.Actor, plan purchasePlan) (*models.Purchase, error) {
	repo := NewRepository(tx)
	var errs validate.Errors

	supplier, err := repo.FindSupplier(ctx, plan.supplierID)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "supplier not found")
		}
		return nil, fmt.Errorf("load supplier: %w", err)
	}
	if !supplier.IsActive {
		errs.AddReason("supplierId", "supplier is inactive", pkgerrors.ReasonInactiveSupplier)
	}

	ids := make([]uuid.UUID, 0, len(plan.lines))
	for _, line := range plan.lines {
		ids = append(ids, line.medicineID)
	}
	known, err := repo.MedicinesExist(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load medicines: %w", err)
	}
	for _, id := range ids {
		if !known[id] {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("medicine %s not found", id))
		}
	}

	items := make([]models.PurchaseItem, 0, len(plan.lines))
	var subtotal int64
	for i, line := range plan.lines {
		total := line.purchasePrice * int64(line.quantity)
		subtotal += total
		items = append(items, models.PurchaseItem{
			LineIndex:          i,
			MedicineID:         line.medicineID,
			BatchNumber:        line.batchNumber,
			Quantity:           line.quantity,
			FreeQuantity:       line.freeQuantity,
			ExpiryDate:         line.expiry,
			PurchasePriceCents: line.purchasePrice,
			MRPCents:           line.mrp,
			SellingPriceCents:  line.sellingPrice,
			AlertThreshold:     line.alertThreshold,
			TotalCents:         total,
		})
	}
	if plan.discount > subtotal {
		errs.Add("discount", "cannot exceed the subtotal")
	}
	grandTotal := max(subtotal-plan.discount+plan.tax, 0)
	if plan.amountPaid > grandTotal {
		errs.AddReason("amountPaid", fmt.Sprintf("amount paid %s exceeds the grand total %s",
			validate.FromCents(plan.amountPaid).StringFixed(2), validate.FromCents(grandTotal).StringFixed(2)),
			pkgerrors.ReasonDueExceeded)
	}
	if err := errs.Err("invalid purchase"); err != nil {
		return nil, err
	}

	now := s.engine.Now().UTC()
	day := counters.DayKey(now)
	seq, err := s.engine.Counters().Next(ctx, tx, counters.ScopePurchase, day)
	if err != nil {
		return nil, err
	}
	due := DueFor(grandTotal, plan.amountPaid)
	purchase := &models.Purchase{
		OrderNumber:     counters.Format(OrderPrefix, day, seq),
		SupplierID:      plan.supplierID,
		CreatedBy:       actor.ActorID,
		OrderDate:       now,
		ExpectedDate:    plan.expectedDate,
		InvoiceRef:      plan.invoiceRef,
		SubtotalCents:   subtotal,
		DiscountCents:   plan.discount,
		TaxCents:        plan.tax,
		GrandTotalCents: grandTotal,
		AmountPaidCents: plan.amountPaid,
		DueAmountCents:  due,
		Status:          enums.PurchaseStatusOrdered,
		PaymentStatus:   PaymentStatusFor(enums.PurchaseStatusOrdered, grandTotal, plan.amountPaid),
		Notes:           plan.notes,
		Items:           items,
	}
	if plan.amountPaid > 0 {
		purchase.Payments = []models.PurchasePayment{{
			AmountCents: plan.amountPaid,
			Method:      plan.method,
			PaidAt:      now,
			RecordedBy:  actor.ActorID,
		}}
	}
	if err := repo.CreatePurchase(ctx, purchase); err != nil {
		return nil, fmt.Errorf("insert purchase: %w", err)
	}
	if err := repo.ApplySupplierDelta(ctx, plan.supplierID, SupplierDelta{
		CurrentDueCents:     due,
		TotalPurchasesCents: grandTotal,
		LastPurchaseDate:    &now,
	}); err != nil {
		return nil, fmt.Errorf("update supplier: %w", err)
	}
	return purchase, nil
}

// Receive books the delivered goods into inventory. Lines are merged into an
// existing batch with the same number, or create a new one. Only ORDERED
// purchases can be received, so repeating the call never double counts.
func (s *service) Receive(ctx context.Context, actor tenancy.Actor, purchaseID uuid.UUID, input ReceivePurchaseInput) (*PurchaseDTO, error) {
	var errs validate.Errors
	if purchaseID == uuid.Nil {
		errs.Add("purchaseId", "is required")
	}
	errs.Struct(input)
	for i, line := range input.Items {
		field := fmt.Sprintf("items[%d]", i)
		validate.Check(&errs, field+".receivedQuantity", validate.NonNegativeInt(line.ReceivedQuantity))
		validate.Check(&errs, field+".receivedFreeQuantity", validate.NonNegativeInt(line.ReceivedFreeQuantity))
	}
	var receivedAt time.Time
	if input.ReceivedDate != nil {
		receivedAt = validate.Check(&errs, "receivedDate", validate.Date(*input.ReceivedDate))
	}
	invoiceRef := validate.Check(&errs, "invoiceRef", validate.OptionalTrim(input.InvoiceRef))
	if err := errs.Err("invalid receipt"); err != nil {
		return nil, err
	}

	var (
		updated *models.Purchase
		batches []uuid.UUID
	)
	err := s.engine.Run(ctx, actor, opReceive, func(tx *gorm.DB) error {
		purchase, touched, err := s.receiveInTx(tx.Statement.Context, tx, purchaseID, input.Items, receivedAt, invoiceRef)
		if err != nil {
			return err
		}
		updated, batches = purchase, touched
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.engine.AfterCommit(ctx, actor, receiveTags,
		commerce.Event{Name: enums.NotificationEventPurchaseReceived, Payload: newPurchaseEvent(updated)},
		commerce.Event{Name: enums.NotificationEventInventoryUpdated, Payload: inventoryEvent{BatchIDs: batches, Reason: "purchase-receipt"}},
	)
	s.logDone(ctx, actor, updated, "purchase received")
	return NewPurchaseDTO(updated), nil
}

func (s *service) receiveInTx(ctx context.Context, tx *gorm.DB, purchaseID uuid.UUID, overrides []ReceiveLineInput, receivedAt time.Time, invoiceRef *string) (*models.Purchase, []uuid.UUID, error) {
	repo := NewRepository(tx)
	stock := inventory.NewRepository(tx, s.engine.Now)

	purchase, err := repo.FindPurchase(ctx, purchaseID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")
		}
		return nil, nil, fmt.Errorf("load purchase: %w", err)
	}
	switch purchase.Status {
	case enums.PurchaseStatusOrdered:
	case enums.PurchaseStatusCancelled:
		return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cannot receive a cancelled purchase")
	default:
		return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "purchase already received").
			WithDetails(map[string]string{"status": purchase.Status.String()})
	}

	lines := make(map[int]*models.PurchaseItem, len(purchase.Items))
	for i := range purchase.Items {
		item := &purchase.Items[i]
		item.ReceivedQuantity = item.Quantity
		item.ReceivedFreeQuantity = item.FreeQuantity
		lines[item.LineIndex] = item
	}
	var errs validate.Errors
	for i, override := range overrides {
		field := fmt.Sprintf("items[%d]", i)
		item, ok := lines[override.LineIndex]
		if !ok {
			errs.Add(field+".lineIndex", "does not exist on the purchase")
			continue
		}
		if override.ReceivedQuantity > item.Quantity {
			errs.Add(field+".receivedQuantity", fmt.Sprintf("cannot exceed the ordered %d", item.Quantity))
		}
		if override.ReceivedFreeQuantity > item.FreeQuantity {
			errs.Add(field+".receivedFreeQuantity", fmt.Sprintf("cannot exceed the ordered %d", item.FreeQuantity))
		}
		item.ReceivedQuantity = override.ReceivedQuantity
		item.ReceivedFreeQuantity = override.ReceivedFreeQuantity
	}
	if err := errs.Err("invalid receipt"); err != nil {
		return nil, nil, err
	}

	now := s.engine.Now().UTC()
	if receivedAt.IsZero() {
		receivedAt = now
	}
	var touched []uuid.UUID
	for i := range purchase.Items {
		item := &purchase.Items[i]
		units := item.ReceivedQuantity + item.ReceivedFreeQuantity
		if units > 0 {
			batch, err := s.mergeBatch(ctx, stock, purchase.SupplierID, item, units, receivedAt)
			if err != nil {
				return nil, nil, err
			}
			item.BatchID = &batch.ID
			touched = append(touched, batch.ID)
		}
		if err := repo.UpdateItem(ctx, item); err != nil {
			return nil, nil, fmt.Errorf("update purchase line %d: %w", item.LineIndex, err)
		}
	}

	purchase.Status = settledStatus(purchase.DueAmountCents)
	purchase.ReceivedDate = &receivedAt
	if invoiceRef != nil {
		purchase.InvoiceRef = invoiceRef
	}
	if err := repo.UpdatePurchase(ctx, purchase); err != nil {
		return nil, nil, fmt.Errorf("update purchase: %w", err)
	}
	if err := s.engine.Counters().AddToSummary(ctx, tx, counters.DayKey(now), counters.SummaryDelta{
		PurchasesTotalCents: purchase.GrandTotalCents,
	}); err != nil {
		return nil, nil, err
	}
	return purchase, touched, nil
}

// mergeBatch adds units to the batch with the line's number, creating it when
// missing. Pricing, expiry and supplier follow the latest receipt.
func (s *service) mergeBatch(ctx context.Context, stock *inventory.Repository, supplierID uuid.UUID, item *models.PurchaseItem, units int, receivedAt time.Time) (*models.InventoryBatch, error) {
	batch, err := stock.FindBatchByNumber(ctx, item.MedicineID, item.BatchNumber)
	switch {
	case err == nil:
		batch.Quantity += units
		batch.InitialQuantity += units
	case isNotFound(err):
		batch = &models.InventoryBatch{
			MedicineID:      item.MedicineID,
			BatchNumber:     item.BatchNumber,
			Quantity:        units,
			InitialQuantity: units,
		}
	default:
		return nil, fmt.Errorf("load batch %s: %w", item.BatchNumber, err)
	}
	batch.ExpiryDate = item.ExpiryDate
	batch.PurchasePriceCents = item.PurchasePriceCents
	batch.MRPCents = item.MRPCents
	batch.SellingPriceCents = item.SellingPriceCents
	batch.AlertThreshold = item.AlertThreshold
	batch.SupplierID = &supplierID
	batch.PurchaseDate = receivedAt
	if err := stock.SaveBatch(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// RecordPayment appends a payment to the ledger. A received order that
// becomes fully paid completes.
func (s *service) RecordPayment(ctx context.Context, actor tenancy.Actor, purchaseID uuid.UUID, input PaymentInput) (*PurchaseDTO, error) {
	var errs validate.Errors
	if purchaseID == uuid.Nil {
		errs.Add("purchaseId", "is required")
	}
	errs.Struct(input)
	amount := validate.Check(&errs, "amount", validate.Money(input.Amount))
	if amount == 0 {
		errs.Add("amount", "must be greater than 0")
	}
	if input.Method != "" && !input.Method.IsValid() {
		errs.Add("method", "is not supported")
	}
	reference := validate.Check(&errs, "reference", validate.OptionalTrim(input.Reference))
	if err := errs.Err("invalid payment"); err != nil {
		return nil, err
	}

	var updated *models.Purchase
	err := s.engine.Run(ctx, actor, opPay, func(tx *gorm.DB) error {
		ctx := tx.Statement.Context
		repo := NewRepository(tx)
		purchase, err := repo.FindPurchase(ctx, purchaseID)
		if err != nil {
			if isNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")
			}
			return fmt.Errorf("load purchase: %w", err)
		}
		if purchase.Status == enums.PurchaseStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cannot pay a cancelled purchase")
		}
		if purchase.DueAmountCents == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "purchase already fully paid")
		}
		if amount > purchase.DueAmountCents {
			return pkgerrors.Validation("invalid payment", map[string]string{
				"amount": fmt.Sprintf("exceeds the remaining due %s", validate.FromCents(purchase.DueAmountCents).StringFixed(2)),
			}).WithReason(pkgerrors.ReasonDueExceeded)
		}

		now := s.engine.Now().UTC()
		payment := &models.PurchasePayment{
			PurchaseID:  purchase.ID,
			AmountCents: amount,
			Method:      input.Method,
			Reference:   reference,
			PaidAt:      now,
			RecordedBy:  actor.ActorID,
		}
		if err := repo.AppendPayment(ctx, payment); err != nil {
			return fmt.Errorf("append payment: %w", err)
		}
		purchase.Payments = append(purchase.Payments, *payment)
		purchase.AmountPaidCents += amount
		purchase.DueAmountCents = DueFor(purchase.GrandTotalCents, purchase.AmountPaidCents)
		if purchase.Status == enums.PurchaseStatusReceived {
			purchase.Status = settledStatus(purchase.DueAmountCents)
		}
		purchase.PaymentStatus = PaymentStatusFor(purchase.Status, purchase.GrandTotalCents, purchase.AmountPaidCents)
		if err := repo.UpdatePurchase(ctx, purchase); err != nil {
			return fmt.Errorf("update purchase: %w", err)
		}
		if err := repo.ApplySupplierDelta(ctx, purchase.SupplierID, SupplierDelta{CurrentDueCents: -amount}); err != nil {
			return fmt.Errorf("update supplier: %w", err)
		}
		updated = purchase
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.engine.AfterCommit(ctx, actor, cache.InventoryTags)
	s.logDone(ctx, actor, updated, "purchase payment recorded")
	return NewPurchaseDTO(updated), nil
}

// Cancel voids an order that was not received and reverses its supplier
// aggregates. The reason is appended to the notes.
func (s *service) Cancel(ctx context.Context, actor tenancy.Actor, purchaseID uuid.UUID, input CancelInput) (*PurchaseDTO, error) {
	if purchaseID == uuid.Nil {
		return nil, pkgerrors.Validation("invalid cancellation", map[string]string{"purchaseId": "is required"})
	}
	reason := strings.TrimSpace(input.Reason)

	var updated *models.Purchase
	err := s.engine.Run(ctx, actor, opCancel, func(tx *gorm.DB) error {
		ctx := tx.Statement.Context
		repo := NewRepository(tx)
		purchase, err := repo.FindPurchase(ctx, purchaseID)
		if err != nil {
			if isNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")
			}
			return fmt.Errorf("load purchase: %w", err)
		}
		switch purchase.Status {
		case enums.PurchaseStatusOrdered:
		case enums.PurchaseStatusCancelled:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "purchase already cancelled")
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cannot cancel a received purchase").
				WithDetails(map[string]string{"status": purchase.Status.String()})
		}

		if err := repo.ApplySupplierDelta(ctx, purchase.SupplierID, SupplierDelta{
			CurrentDueCents:     -purchase.DueAmountCents,
			TotalPurchasesCents: -purchase.GrandTotalCents,
		}); err != nil {
			return fmt.Errorf("update supplier: %w", err)
		}
		purchase.Status = enums.PurchaseStatusCancelled
		purchase.PaymentStatus = PaymentStatusFor(purchase.Status, purchase.GrandTotalCents, purchase.AmountPaidCents)
		purchase.Notes = appendNote(purchase.Notes, cancellationNote(reason))
		if err := repo.UpdatePurchase(ctx, purchase); err != nil {
			return fmt.Errorf("update purchase: %w", err)
		}
		updated = purchase
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.engine.AfterCommit(ctx, actor, cache.InventoryTags)
	s.logDone(ctx, actor, updated, "purchase cancelled")
	return NewPurchaseDTO(updated), nil
}

// Get loads one purchase with its lines and payments.
func (s *service) Get(ctx context.Context, actor tenancy.Actor, purchaseID uuid.UUID) (*PurchaseDTO, error) {
	var purchase *models.Purchase
	err := s.engine.Read(ctx, actor, func(conn *gorm.DB) error {
		var err error
		purchase, err = NewRepository(conn).FindPurchase(ctx, purchaseID)
		return err
	})
	switch {
	case err == nil:
		return NewPurchaseDTO(purchase), nil
	case isNotFound(err):
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")
	case pkgerrors.As(err) != nil:
		return nil, err
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load purchase")
	}
}

func (s *service) logDone(ctx context.Context, actor tenancy.Actor, p *models.Purchase, msg string) {
	logg := s.engine.Logger()
	logg.Info(logg.WithFields(s.engine.LogContext(ctx, actor), map[string]any{
		"order_number": p.OrderNumber,
		"status":       p.Status.String(),
		"due_cents":    p.DueAmountCents,
	}), msg)
}

func newPurchaseEvent(p *models.Purchase) purchaseEvent {
	return purchaseEvent{
		PurchaseID:  p.ID,
		OrderNumber: p.OrderNumber,
		SupplierID:  p.SupplierID,
		Status:      p.Status,
		GrandTotal:  p.GrandTotalCents,
	}
}

func cancellationNote(reason string) string {
	if reason == "" {
		return "Cancelled"
	}
	return "Cancelled: " + reason
}

func appendNote(notes, note string) string {
	if notes == "" {
		return note
	}
	return notes + "\n" + note
}
