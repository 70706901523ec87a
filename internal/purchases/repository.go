package purchases

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rxledger/pharmacy-backend/pkg/db/models"
)

// Repository persists purchase orders and the supplier aggregates they move.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindPurchase loads a purchase with its lines and payment ledger.
func (r *Repository) FindPurchase(ctx context.Context, id uuid.UUID) (*models.Purchase, error) {
	var purchase models.Purchase
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("line_index ASC") }).
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("paid_at ASC") }).
		Where("id = ?", id).
		First(&purchase).Error
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

// CreatePurchase inserts the order with its lines and any initial payment.
func (r *Repository) CreatePurchase(ctx context.Context, purchase *models.Purchase) error {
	return r.db.WithContext(ctx).Create(purchase).Error
}

// UpdatePurchase rewrites the order header.
func (r *Repository) UpdatePurchase(ctx context.Context, purchase *models.Purchase) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(purchase).Error
}

// UpdateItem rewrites one purchase line.
func (r *Repository) UpdateItem(ctx context.Context, item *models.PurchaseItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

// AppendPayment adds a ledger entry. Entries are never updated.
func (r *Repository) AppendPayment(ctx context.Context, payment *models.PurchasePayment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

// FindSupplier loads a supplier by id.
func (r *Repository) FindSupplier(ctx context.Context, id uuid.UUID) (*models.Supplier, error) {
	var supplier models.Supplier
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&supplier).Error; err != nil {
		return nil, err
	}
	return &supplier, nil
}

// MedicinesExist returns the subset of ids that exist.
func (r *Repository) MedicinesExist(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	var found []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Medicine{}).
		Where("id IN ?", ids).
		Pluck("id", &found).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]bool, len(found))
	for _, id := range found {
		out[id] = true
	}
	return out, nil
}

// SupplierDelta is a signed change to a supplier's running aggregates.
type SupplierDelta struct {
	CurrentDueCents     int64
	TotalPurchasesCents int64
	LastPurchaseDate    *time.Time
}

// ApplySupplierDelta adjusts the supplier's aggregates in place.
func (r *Repository) ApplySupplierDelta(ctx context.Context, id uuid.UUID, delta SupplierDelta) error {
	updates := map[string]any{
		"current_due_cents":     gorm.Expr("current_due_cents + ?", delta.CurrentDueCents),
		"total_purchases_cents": gorm.Expr("total_purchases_cents + ?", delta.TotalPurchasesCents),
	}
	if delta.LastPurchaseDate != nil {
		updates["last_purchase_date"] = delta.LastPurchaseDate.UTC()
	}
	res := r.db.WithContext(ctx).
		Model(&models.Supplier{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
