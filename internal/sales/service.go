// Package sales implements point-of-sale invoices and returns.
package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
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

// InvoicePrefix starts every sale invoice number.
const InvoicePrefix = "INV"

const (
	opCreate = "sale_create"
	opReturn = "sale_return"
)

// Tax is not applied yet; tenant tax settings are stored but unused.
const taxCents int64 = 0

// loyaltyUnitCents earns one loyalty point.
const loyaltyUnitCents = 100 * 100

var mutationTags = append([]string{cache.TagSalesToday, cache.TagProductSearch}, cache.InventoryTags...)

// Service exposes sale creation, returns and sale reads.
type Service interface {
	Create(ctx context.Context, actor tenancy.Actor, input CreateSaleInput) (*SaleDTO, error)
	Return(ctx context.Context, actor tenancy.Actor, saleID uuid.UUID, input ReturnSaleInput) (*SaleDTO, error)
	Get(ctx context.Context, actor tenancy.Actor, saleID uuid.UUID) (*SaleDTO, error)
	TodaySummary(ctx context.Context, actor tenancy.Actor) (cache.Result[TodaySummary], error)
}

// Options tune the cached sales-today read.
type Options struct {
	SummaryTTL        time.Duration
	SummaryStaleAfter time.Duration
}

type service struct {
	engine *commerce.Engine
	opts   Options
}

// NewService constructs a sales service.
func NewService(engine *commerce.Engine, opts Options) (Service, error) {
	if engine == nil {
		return nil, fmt.Errorf("commerce engine required")
	}
	if opts.SummaryTTL <= 0 {
		opts.SummaryTTL = 10 * time.Minute
	}
	if opts.SummaryStaleAfter <= 0 {
		opts.SummaryStaleAfter = 30 * time.Second
	}
	return &service{engine: engine, opts: opts}, nil
}

type plannedLine struct {
	medicineID    uuid.UUID
	batchID       uuid.UUID
	quantity      int
	priceCents    *int64
	discountCents int64
}

type salePlan struct {
	lines           []plannedLine
	method          enums.PaymentMethod
	amountPaid      int64
	totalDiscount   int64
	customerID      *uuid.UUID
	counterID       *uuid.UUID
	prescriptionRef *string
}

// Create records a sale: stock is deducted from the chosen batches, an
// invoice number is issued and the customer's totals move, all in one
// transaction. Every business rule is checked before the first write.
func (s *service) Create(ctx context.Context, actor tenancy.Actor, input CreateSaleInput) (*SaleDTO, error) {
	plan, err := planSale(input)
	if err != nil {
		return nil, err
	}

	var (
		created *models.Sale
		batches []uuid.UUID
	)
	err = s.engine.Run(ctx, actor, opCreate, func(tx *gorm.DB) error {
		sale, touched, err := s.createInTx(tx.Statement.Context, tx, actor, plan)
		if err != nil {
			return err
		}
		created, batches = sale, touched
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.engine.AfterCommit(ctx, actor, mutationTags,
		commerce.Event{Name: enums.NotificationEventSaleCreated, Payload: saleEvent{
			SaleID:        created.ID,
			InvoiceNumber: created.InvoiceNumber,
			GrandTotal:    created.GrandTotalCents,
		}},
		commerce.Event{Name: enums.NotificationEventInventoryUpdated, Payload: inventoryEvent{BatchIDs: batches, Reason: "sale"}},
	)
	logg := s.engine.Logger()
	logg.Info(logg.WithField(s.engine.LogContext(ctx, actor), "invoice_number", created.InvoiceNumber), "sale created")
	return NewSaleDTO(created), nil
}

func planSale(input CreateSaleInput) (salePlan, error) {
	var errs validate.Errors
	errs.Struct(input)

	plan := salePlan{
		method:     input.PaymentMethod,
		customerID: input.CustomerID,
		counterID:  input.CounterID,
	}
	if input.PaymentMethod != "" && !input.PaymentMethod.IsValid() {
		errs.Add("paymentMethod", "is not supported")
	}
	for i, line := range input.Items {
		field := fmt.Sprintf("items[%d]", i)
		planned := plannedLine{
			medicineID:    line.MedicineID,
			batchID:       line.BatchID,
			quantity:      validate.Check(&errs, field+".quantity", validate.PositiveInt(line.Quantity)),
			discountCents: validate.Check(&errs, field+".discount", validate.Money(line.Discount)),
		}
		if line.SellingPrice != nil {
			price := validate.Check(&errs, field+".sellingPrice", validate.Money(*line.SellingPrice))
			planned.priceCents = &price
		}
		plan.lines = append(plan.lines, planned)
	}
	plan.amountPaid = validate.Check(&errs, "amountPaid", validate.Money(input.AmountPaid))
	plan.totalDiscount = validate.Check(&errs, "totalDiscount", validate.Money(input.TotalDiscount))
	plan.prescriptionRef = validate.Check(&errs, "prescriptionRef", validate.OptionalTrim(input.PrescriptionRef))
	if plan.method == enums.PaymentMethodCredit && plan.customerID == nil {
		errs.Add("customerId", "is required for credit sales")
	}

	if err := errs.Err("invalid sale"); err != nil {
		return salePlan{}, err
	}
	return plan, nil
}

func (s *service) createInTx(ctx context.Context, tx *gorm.DB, actor tenancy.Actor, plan salePlan) (*models.Sale, []uuid.UUID, error) {
	repo := NewRepository(tx)
	stock := inventory.NewRepository(tx, s.engine.Now)
	var errs validate.Errors

	batches := map[uuid.UUID]*models.InventoryBatch{}
	medicines := map[uuid.UUID]*models.Medicine{}
	requested := map[uuid.UUID]int{}
	var order []uuid.UUID
	for i, line := range plan.lines {
		batch, ok := batches[line.batchID]
		if !ok {
			loaded, err := stock.FindBatch(ctx, line.batchID)
			if err != nil {
				if isNotFound(err) {
					return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("batch %s not found", line.batchID))
				}
				return nil, nil, fmt.Errorf("load batch %s: %w", line.batchID, err)
			}
			batch = loaded
			batches[line.batchID] = batch
			order = append(order, line.batchID)
		}
		if batch.MedicineID != line.medicineID {
			errs.Add(fmt.Sprintf("items[%d].batchId", i), "does not belong to the medicine")
		}
		if _, ok := medicines[line.medicineID]; !ok {
			medicine, err := stock.FindMedicine(ctx, line.medicineID)
			if err != nil {
				if isNotFound(err) {
					return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("medicine %s not found", line.medicineID))
				}
				return nil, nil, fmt.Errorf("load medicine %s: %w", line.medicineID, err)
			}
			medicines[line.medicineID] = medicine
		}
		requested[line.batchID] += line.quantity
	}
	for _, id := range order {
		batch := batches[id]
		if requested[id] > batch.Quantity {
			errs.AddReason("items", fmt.Sprintf("insufficient stock for batch %s: available %d, requested %d",
				batch.BatchNumber, batch.Quantity, requested[id]), pkgerrors.ReasonInsufficientStock)
		}
	}

	items := make([]models.SaleItem, 0, len(plan.lines))
	var subtotal int64
	for i, line := range plan.lines {
		batch := batches[line.batchID]
		unit := batch.SellingPriceCents
		if line.priceCents != nil {
			unit = *line.priceCents
		}
		total := unit*int64(line.quantity) - line.discountCents
		if total < 0 {
			errs.Add(fmt.Sprintf("items[%d].discount", i), "exceeds the line amount")
			total = 0
		}
		subtotal += total
		items = append(items, models.SaleItem{
			LineIndex:      i,
			MedicineID:     line.medicineID,
			BatchID:        line.batchID,
			MedicineName:   medicines[line.medicineID].Name,
			BatchNumber:    batch.BatchNumber,
			UnitPriceCents: unit,
			DiscountCents:  line.discountCents,
			Quantity:       line.quantity,
			TotalCents:     total,
		})
	}
	if plan.totalDiscount > subtotal {
		errs.Add("totalDiscount", "cannot exceed the subtotal")
	} else {
		lineTotals := make([]int64, len(items))
		for i := range items {
			lineTotals[i] = items[i].TotalCents
		}
		for i, share := range allocateDiscount(lineTotals, plan.totalDiscount) {
			items[i].DiscountCents += share
			items[i].TotalCents -= share
		}
	}

	grandTotal := subtotal - plan.totalDiscount + taxCents
	var change int64
	if plan.method != enums.PaymentMethodCredit {
		if plan.amountPaid < grandTotal {
			errs.AddReason("amountPaid", fmt.Sprintf("amount paid %s is less than the grand total %s",
				validate.FromCents(plan.amountPaid).StringFixed(2), validate.FromCents(grandTotal).StringFixed(2)),
				pkgerrors.ReasonInsufficientPayment)
		} else {
			change = plan.amountPaid - grandTotal
		}
	}

	counter, err := repo.ResolveCounter(ctx, plan.counterID)
	if err != nil {
		if !isNotFound(err) {
			return nil, nil, fmt.Errorf("resolve counter: %w", err)
		}
		errs.AddReason("counterId", "no active counter available", pkgerrors.ReasonNoActiveCounter)
	}

	if plan.customerID != nil {
		if _, err := repo.FindCustomer(ctx, *plan.customerID); err != nil {
			if isNotFound(err) {
				return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
			}
			return nil, nil, fmt.Errorf("load customer: %w", err)
		}
	}

	if err := errs.Err("invalid sale"); err != nil {
		return nil, nil, err
	}

	now := s.engine.Now().UTC()
	for _, id := range order {
		batch := batches[id]
		batch.Quantity -= requested[id]
		if err := stock.SaveBatch(ctx, batch); err != nil {
			return nil, nil, err
		}
	}

	day := counters.DayKey(now)
	seq, err := s.engine.Counters().Next(ctx, tx, counters.ScopeSale, day)
	if err != nil {
		return nil, nil, err
	}
	sale := &models.Sale{
		InvoiceNumber:       counters.Format(InvoicePrefix, day, seq),
		CounterID:           counter.ID,
		CustomerID:          plan.customerID,
		SoldBy:              actor.ActorID,
		PrescriptionRef:     plan.prescriptionRef,
		SubtotalCents:       subtotal,
		DiscountCents:       plan.totalDiscount,
		TaxCents:            taxCents,
		GrandTotalCents:     grandTotal,
		AmountPaidCents:     plan.amountPaid,
		ChangeReturnedCents: change,
		PaymentMethod:       plan.method,
		Status:              enums.SaleStatusCompleted,
		SaleDay:             day,
		Items:               items,
	}
	if err := repo.CreateSale(ctx, sale); err != nil {
		return nil, nil, fmt.Errorf("insert sale: %w", err)
	}
	if err := repo.TouchCounter(ctx, counter.ID, now); err != nil {
		return nil, nil, fmt.Errorf("touch counter: %w", err)
	}

	if plan.customerID != nil {
		delta := CustomerDelta{
			TotalPurchasesCents: grandTotal,
			LoyaltyPoints:       loyaltyPoints(grandTotal),
		}
		if plan.method == enums.PaymentMethodCredit {
			delta.DueBalanceCents = creditDue(grandTotal, plan.amountPaid)
		}
		if err := repo.ApplyCustomerDelta(ctx, *plan.customerID, delta); err != nil {
			return nil, nil, fmt.Errorf("update customer: %w", err)
		}
	}

	if err := s.engine.Counters().AddToSummary(ctx, tx, day, counters.SummaryDelta{
		SalesCount:      1,
		SalesTotalCents: grandTotal,
	}); err != nil {
		return nil, nil, err
	}
	return sale, order, nil
}

// Return restocks returned units and reduces the sale by their share of each
// line total. Returning a line's whole remainder refunds exactly what is left
// of that line.
func (s *service) Return(ctx context.Context, actor tenancy.Actor, saleID uuid.UUID, input ReturnSaleInput) (*SaleDTO, error) {
	var errs validate.Errors
	if saleID == uuid.Nil {
		errs.Add("saleId", "is required")
	}
	errs.Struct(input)
	for i, line := range input.Items {
		validate.Check(&errs, fmt.Sprintf("items[%d].quantity", i), validate.PositiveInt(line.Quantity))
	}
	if err := errs.Err("invalid return"); err != nil {
		return nil, err
	}

	var (
		updated  *models.Sale
		refunded int64
		batches  []uuid.UUID
	)
	err := s.engine.Run(ctx, actor, opReturn, func(tx *gorm.DB) error {
		sale, amount, touched, err := s.returnInTx(tx.Statement.Context, tx, saleID, input)
		if err != nil {
			return err
		}
		updated, refunded, batches = sale, amount, touched
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.engine.AfterCommit(ctx, actor, mutationTags,
		commerce.Event{Name: enums.NotificationEventSaleReturned, Payload: saleEvent{
			SaleID:        updated.ID,
			InvoiceNumber: updated.InvoiceNumber,
			GrandTotal:    updated.GrandTotalCents,
		}},
		commerce.Event{Name: enums.NotificationEventInventoryUpdated, Payload: inventoryEvent{BatchIDs: batches, Reason: "sale-return"}},
	)
	logg := s.engine.Logger()
	logg.Info(logg.WithFields(s.engine.LogContext(ctx, actor), map[string]any{
		"invoice_number": updated.InvoiceNumber,
		"refund_cents":   refunded,
	}), "sale returned")
	return NewSaleDTO(updated), nil
}

func (s *service) returnInTx(ctx context.Context, tx *gorm.DB, saleID uuid.UUID, input ReturnSaleInput) (*models.Sale, int64, []uuid.UUID, error) {
	repo := NewRepository(tx)
	stock := inventory.NewRepository(tx, s.engine.Now)

	sale, err := repo.FindSale(ctx, saleID)
	if err != nil {
		if isNotFound(err) {
			return nil, 0, nil, pkgerrors.New(pkgerrors.CodeNotFound, "sale not found")
		}
		return nil, 0, nil, fmt.Errorf("load sale: %w", err)
	}
	if sale.Status == enums.SaleStatusReturned {
		return nil, 0, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "sale already fully returned")
	}

	lines := make(map[int]*models.SaleItem, len(sale.Items))
	for i := range sale.Items {
		lines[sale.Items[i].LineIndex] = &sale.Items[i]
	}
	var errs validate.Errors
	requested := map[int]int{}
	var order []int
	for i, line := range input.Items {
		if _, ok := lines[line.LineIndex]; !ok {
			errs.Add(fmt.Sprintf("items[%d].lineIndex", i), "does not exist on the sale")
			continue
		}
		if _, seen := requested[line.LineIndex]; !seen {
			order = append(order, line.LineIndex)
		}
		requested[line.LineIndex] += line.Quantity
	}
	if err := errs.Err("invalid return"); err != nil {
		return nil, 0, nil, err
	}

	over := map[string]string{}
	for _, idx := range order {
		if item := lines[idx]; requested[idx] > item.Quantity {
			over[fmt.Sprintf("items[%d]", idx)] = fmt.Sprintf("returning %d but only %d remain", requested[idx], item.Quantity)
		}
	}
	if len(over) > 0 {
		return nil, 0, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "return exceeds remaining quantity").WithDetails(over)
	}

	batches := map[uuid.UUID]*models.InventoryBatch{}
	var touched []uuid.UUID
	for _, idx := range order {
		id := lines[idx].BatchID
		if _, ok := batches[id]; ok {
			continue
		}
		batch, err := stock.FindBatch(ctx, id)
		if err != nil {
			if isNotFound(err) {
				return nil, 0, nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("batch %s not found", id))
			}
			return nil, 0, nil, fmt.Errorf("load batch %s: %w", id, err)
		}
		batches[id] = batch
		touched = append(touched, id)
	}

	var refund int64
	for _, idx := range order {
		item := lines[idx]
		qty := requested[idx]
		amount := min(refundFor(item.TotalCents, item.Quantity, qty), sale.GrandTotalCents-taxCents-refund)
		item.Quantity -= qty
		item.TotalCents -= amount
		item.ReturnedQuantity += qty
		if err := repo.UpdateItem(ctx, item); err != nil {
			return nil, 0, nil, fmt.Errorf("update sale line %d: %w", idx, err)
		}
		batch := batches[item.BatchID]
		batch.Quantity += qty
		refund += amount
	}
	for _, id := range touched {
		if err := stock.SaveBatch(ctx, batches[id]); err != nil {
			return nil, 0, nil, err
		}
	}

	previousTotal := sale.GrandTotalCents
	sale.GrandTotalCents -= refund
	sale.ReturnedAmountCents += refund
	sale.Status = enums.SaleStatusReturned
	for _, item := range sale.Items {
		if item.Quantity > 0 {
			sale.Status = enums.SaleStatusPartialReturn
			break
		}
	}
	if err := repo.UpdateSale(ctx, sale); err != nil {
		return nil, 0, nil, fmt.Errorf("update sale: %w", err)
	}

	if sale.CustomerID != nil {
		delta := CustomerDelta{
			TotalPurchasesCents: -refund,
			LoyaltyPoints:       loyaltyPoints(sale.GrandTotalCents) - loyaltyPoints(previousTotal),
		}
		if sale.PaymentMethod == enums.PaymentMethodCredit {
			delta.DueBalanceCents = -(creditDue(previousTotal, sale.AmountPaidCents) - creditDue(sale.GrandTotalCents, sale.AmountPaidCents))
		}
		err := repo.ApplyCustomerDelta(ctx, *sale.CustomerID, delta)
		if err != nil && !isNotFound(err) {
			return nil, 0, nil, fmt.Errorf("update customer: %w", err)
		}
	}

	day := counters.DayKey(s.engine.Now())
	if err := s.engine.Counters().AddToSummary(ctx, tx, day, counters.SummaryDelta{SalesTotalCents: -refund}); err != nil {
		return nil, 0, nil, err
	}
	return sale, refund, touched, nil
}

// Get loads one sale with its lines.
func (s *service) Get(ctx context.Context, actor tenancy.Actor, saleID uuid.UUID) (*SaleDTO, error) {
	var sale *models.Sale
	err := s.engine.Read(ctx, actor, func(conn *gorm.DB) error {
		var err error
		sale, err = NewRepository(conn).FindSale(ctx, saleID)
		return err
	})
	switch {
	case err == nil:
		return NewSaleDTO(sale), nil
	case isNotFound(err):
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sale not found")
	case pkgerrors.As(err) != nil:
		return nil, err
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load sale")
	}
}

// TodaySummary reports today's sale count and totals through the cache.
func (s *service) TodaySummary(ctx context.Context, actor tenancy.Actor) (cache.Result[TodaySummary], error) {
	if err := actor.Validate(); err != nil {
		return cache.Result[TodaySummary]{}, err
	}
	day := counters.DayKey(s.engine.Now())
	key := cache.Key{
		Tenant: actor.TenantID.String(),
		Tag:    cache.TagSalesToday,
		Params: map[string]string{"day": day},
	}
	load := func(ctx context.Context) (TodaySummary, error) {
		var row models.DailySummary
		err := s.engine.Read(ctx, actor, func(conn *gorm.DB) error {
			var err error
			row, err = s.engine.Counters().Summary(ctx, conn, day)
			return err
		})
		if err != nil {
			if pkgerrors.As(err) != nil {
				return TodaySummary{}, err
			}
			return TodaySummary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: read daily summary")
		}
		return TodaySummary{
			Day:                 row.Day,
			SalesCount:          row.SalesCount,
			SalesTotalCents:     row.SalesTotalCents,
			PurchasesTotalCents: row.PurchasesTotalCents,
		}, nil
	}
	return cache.Fetch(ctx, s.engine.Cache(), key, load, cache.FetchOptions[TodaySummary]{
		TTL:        s.opts.SummaryTTL,
		StaleAfter: s.opts.SummaryStaleAfter,
	})
}

func loyaltyPoints(grandTotalCents int64) int64 {
	if grandTotalCents <= 0 {
		return 0
	}
	return grandTotalCents / loyaltyUnitCents
}

// refundFor prorates a line total over its remaining quantity.
func refundFor(lineTotalCents int64, remaining, returned int) int64 {
	if returned >= remaining {
		return lineTotalCents
	}
	return decimal.NewFromInt(lineTotalCents).
		Div(decimal.NewFromInt(int64(remaining))).
		Mul(decimal.NewFromInt(int64(returned))).
		Round(0).
		IntPart()
}

// creditDue is what a credit sale still owes. Refunds settle the due before
// anything already paid.
func creditDue(grandTotalCents, paidCents int64) int64 {
	return max(grandTotalCents-paidCents, 0)
}

// allocateDiscount spreads a bill discount over line totals in proportion to
// each total. Shares never exceed their line and always sum to discount.
func allocateDiscount(lineTotals []int64, discount int64) []int64 {
	shares := make([]int64, len(lineTotals))
	var subtotal int64
	for _, total := range lineTotals {
		subtotal += total
	}
	if discount <= 0 || subtotal <= 0 {
		return shares
	}
	if discount > subtotal {
		discount = subtotal
	}
	remaining := discount
	for i, total := range lineTotals {
		shares[i] = decimal.NewFromInt(discount).
			Mul(decimal.NewFromInt(total)).
			Div(decimal.NewFromInt(subtotal)).
			Floor().
			IntPart()
		remaining -= shares[i]
	}
	for remaining > 0 {
		for i, total := range lineTotals {
			if remaining == 0 {
				break
			}
			if shares[i] < total {
				shares[i]++
				remaining--
			}
		}
	}
	return shares
}
