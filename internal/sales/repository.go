package sales

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rxledger/pharmacy-backend/pkg/db/models"
)

// Repository persists sales and the counter/customer rows a sale touches.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindSale loads a sale with its lines in line order.
func (r *Repository) FindSale(ctx context.Context, id uuid.UUID) (*models.Sale, error) {
	var sale models.Sale
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("line_index ASC") }).
		Where("id = ?", id).
		First(&sale).Error
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// CreateSale inserts the sale and its lines.
func (r *Repository) CreateSale(ctx context.Context, sale *models.Sale) error {
	return r.db.WithContext(ctx).Create(sale).Error
}

// UpdateSale rewrites the sale header without touching its lines.
func (r *Repository) UpdateSale(ctx context.Context, sale *models.Sale) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(sale).Error
}

// UpdateItem rewrites one sale line.
func (r *Repository) UpdateItem(ctx context.Context, item *models.SaleItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

// ResolveCounter returns the requested counter when it is active, or the
// active default counter when id is nil. It returns gorm.ErrRecordNotFound
// when neither exists.
func (r *Repository) ResolveCounter(ctx context.Context, id *uuid.UUID) (*models.Counter, error) {
	query := r.db.WithContext(ctx).Where("is_active = ?", true)
	if id != nil {
		query = query.Where("id = ?", *id)
	} else {
		query = query.Where("is_default = ?", true)
	}
	var counter models.Counter
	if err := query.Order("created_at ASC").First(&counter).Error; err != nil {
		return nil, err
	}
	return &counter, nil
}

// TouchCounter records the time of the counter's latest sale.
func (r *Repository) TouchCounter(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Counter{}).
		Where("id = ?", id).
		Update("last_session_at", at).Error
}

// FindCustomer loads a customer by id.
func (r *Repository) FindCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// CustomerDelta is a signed change to a customer's running totals.
type CustomerDelta struct {
	TotalPurchasesCents int64
	LoyaltyPoints       int64
	DueBalanceCents     int64
}

// ApplyCustomerDelta adjusts the customer's totals in place. Loyalty points
// never go below zero.
func (r *Repository) ApplyCustomerDelta(ctx context.Context, id uuid.UUID, delta CustomerDelta) error {
	res := r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"total_purchases_cents": gorm.Expr("total_purchases_cents + ?", delta.TotalPurchasesCents),
			"loyalty_points":        gorm.Expr("CASE WHEN loyalty_points + ? < 0 THEN 0 ELSE loyalty_points + ? END", delta.LoyaltyPoints, delta.LoyaltyPoints),
			"due_balance_cents":     gorm.Expr("due_balance_cents + ?", delta.DueBalanceCents),
		})
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
