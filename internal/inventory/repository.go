package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rxledger/pharmacy-backend/pkg/db/models"
	"github.com/rxledger/pharmacy-backend/pkg/enums"
)

// ErrNegativeQuantity guards the quantity >= 0 invariant before the database does.
var ErrNegativeQuantity = errors.New("batch quantity cannot be negative")

// Repository is the only writer of inventory batches. Every save recomputes
// the batch status.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository binds a repository to one tenant partition.
func NewRepository(db *gorm.DB, now func() time.Time) *Repository {
	if now == nil {
		now = time.Now
	}
	return &Repository{db: db, now: now}
}

// FindBatch loads a batch by id.
func (r *Repository) FindBatch(ctx context.Context, id uuid.UUID) (*models.InventoryBatch, error) {
	var batch models.InventoryBatch
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&batch).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// FindBatchByNumber loads the batch identified by (medicineID, batchNumber).
func (r *Repository) FindBatchByNumber(ctx context.Context, medicineID uuid.UUID, batchNumber string) (*models.InventoryBatch, error) {
	var batch models.InventoryBatch
	err := r.db.WithContext(ctx).
		Where("medicine_id = ? AND batch_number = ?", medicineID, batchNumber).
		First(&batch).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// FindMedicine loads a medicine by id.
func (r *Repository) FindMedicine(ctx context.Context, id uuid.UUID) (*models.Medicine, error) {
	var medicine models.Medicine
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&medicine).Error; err != nil {
		return nil, err
	}
	return &medicine, nil
}

// SaveBatch inserts or updates b after recomputing its status.
func (r *Repository) SaveBatch(ctx context.Context, b *models.InventoryBatch) error {
	if b.Quantity < 0 {
		return ErrNegativeQuantity
	}
	b.ExpiryDate = b.ExpiryDate.UTC()
	b.PurchaseDate = b.PurchaseDate.UTC()
	Refresh(b, r.now())

	conn := r.db.WithContext(ctx)
	if b.ID == uuid.Nil {
		if err := conn.Create(b).Error; err != nil {
			return fmt.Errorf("insert batch %s: %w", b.BatchNumber, err)
		}
		return nil
	}
	if err := conn.Save(b).Error; err != nil {
		return fmt.Errorf("update batch %s: %w", b.BatchNumber, err)
	}
	return nil
}

// RefreshStatuses persists the corrected status of every batch whose stored
// status drifted because time passed (active to near_expiry to expired) and
// returns the ids it changed. Each update only applies while the row still
// holds the status and quantity it was read with; a concurrent mutation
// recomputes status on its own save.
func (r *Repository) RefreshStatuses(ctx context.Context) ([]uuid.UUID, error) {
	now := r.now()
	candidates, err := r.driftCandidates(ctx, now)
	if err != nil {
		return nil, err
	}
	var changed []uuid.UUID
	for i := range candidates {
		batch := candidates[i]
		previous := batch.Status
		if !Refresh(&batch, now) {
			continue
		}
		res := r.db.WithContext(ctx).
			Model(&models.InventoryBatch{}).
			Where("id = ? AND status = ? AND quantity = ?", batch.ID, previous, batch.Quantity).
			Update("status", batch.Status)
		if res.Error != nil {
			return changed, fmt.Errorf("refresh batch %s status: %w", batch.BatchNumber, res.Error)
		}
		if res.RowsAffected > 0 {
			changed = append(changed, batch.ID)
		}
	}
	return changed, nil
}

func (r *Repository) driftCandidates(ctx context.Context, now time.Time) ([]models.InventoryBatch, error) {
	var candidates []models.InventoryBatch
	err := r.db.WithContext(ctx).
		Where("quantity > 0 AND status IN ? AND expiry_date < ?",
			[]enums.BatchStatus{enums.BatchStatusActive, enums.BatchStatusNearExpiry},
			now.UTC().Add(NearExpiryWindow)).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("list batch status drift: %w", err)
	}
	return candidates, nil
}
