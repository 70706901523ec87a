package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxledger/pharmacy-backend/pkg/db"
	"github.com/rxledger/pharmacy-backend/pkg/db/dbtest"
	"github.com/rxledger/pharmacy-backend/pkg/db/models"
	"github.com/rxledger/pharmacy-backend/pkg/enums"
)

func TestSaveBatchRecomputesStatus(t *testing.T) {
	conn := dbtest.OpenTenant(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	repo := NewRepository(conn, func() time.Time { return now })
	medicine := dbtest.MustCreateMedicine(t, conn, "Paracetamol 500")

	batch := &models.InventoryBatch{
		MedicineID:        medicine.ID,
		BatchNumber:       "P-1",
		Quantity:          4,
		InitialQuantity:   4,
		ExpiryDate:        now.AddDate(0, 0, 10),
		SellingPriceCents: 500,
		PurchaseDate:      now,
		Status:            enums.BatchStatusActive,
	}
	require.NoError(t, repo.SaveBatch(ctx, batch))
	assert.Equal(t, enums.BatchStatusNearExpiry, batch.Status)

	batch.Quantity = 0
	require.NoError(t, repo.SaveBatch(ctx, batch))

	stored, err := repo.FindBatchByNumber(ctx, medicine.ID, "P-1")
	require.NoError(t, err)
	assert.Equal(t, enums.BatchStatusOutOfStock, stored.Status)
	assert.Equal(t, 0, stored.Quantity)

	batch.Quantity = -1
	assert.ErrorIs(t, repo.SaveBatch(ctx, batch), ErrNegativeQuantity)
}

func TestSaveBatchRejectsDuplicateNumberPerMedicine(t *testing.T) {
	conn := dbtest.OpenTenant(t)
	ctx := context.Background()
	repo := NewRepository(conn, nil)
	medicine := dbtest.MustCreateMedicine(t, conn, "Cetirizine")
	dbtest.MustCreateBatch(t, conn, medicine.ID, "C-1", 5, 300)

	dup := &models.InventoryBatch{
		MedicineID:   medicine.ID,
		BatchNumber:  "C-1",
		Quantity:     1,
		ExpiryDate:   time.Now().AddDate(1, 0, 0),
		PurchaseDate: time.Now(),
	}
	err := repo.SaveBatch(ctx, dup)
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, ""))
}

func TestRefreshStatusesMovesBatchesAlongExpiry(t *testing.T) {
	conn := dbtest.OpenTenant(t)
	ctx := context.Background()
	medicine := dbtest.MustCreateMedicine(t, conn, "Amoxicillin")
	soon := dbtest.MustCreateBatch(t, conn, medicine.ID, "A-1", 5, 1000)
	gone := dbtest.MustCreateBatch(t, conn, medicine.ID, "A-2", 5, 1000)
	steady := dbtest.MustCreateBatch(t, conn, medicine.ID, "A-3", 5, 1000)

	now := time.Now().UTC()
	require.NoError(t, conn.Model(&models.InventoryBatch{}).Where("id = ?", soon.ID).
		Update("expiry_date", now.AddDate(0, 0, 5)).Error)
	require.NoError(t, conn.Model(&models.InventoryBatch{}).Where("id = ?", gone.ID).
		Update("expiry_date", now.AddDate(0, 0, -1)).Error)

	repo := NewRepository(conn, func() time.Time { return now })
	changed, err := repo.RefreshStatuses(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{soon.ID, gone.ID}, changed)

	var nearExpiry, expired, active models.InventoryBatch
	dbtest.MustReload(t, conn, &nearExpiry, soon.ID)
	dbtest.MustReload(t, conn, &expired, gone.ID)
	dbtest.MustReload(t, conn, &active, steady.ID)
	assert.Equal(t, enums.BatchStatusNearExpiry, nearExpiry.Status)
	assert.Equal(t, enums.BatchStatusExpired, expired.Status)
	assert.Equal(t, enums.BatchStatusActive, active.Status)
}

func TestRefreshStatusesPersistsDrift(t *testing.T) {
	conn := dbtest.OpenTenant(t)
	ctx := context.Background()
	medicine := dbtest.MustCreateMedicine(t, conn, "Cetirizine")
	stale := dbtest.MustCreateBatch(t, conn, medicine.ID, "C-1", 5, 1000)
	fresh := dbtest.MustCreateBatch(t, conn, medicine.ID, "C-2", 5, 1000)

	now := time.Now().UTC()
	require.NoError(t, conn.Model(&models.InventoryBatch{}).Where("id = ?", stale.ID).
		Update("expiry_date", now.AddDate(0, 0, -2)).Error)

	repo := NewRepository(conn, func() time.Time { return now })
	changed, err := repo.RefreshStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{stale.ID}, changed)

	var expired, active models.InventoryBatch
	dbtest.MustReload(t, conn, &expired, stale.ID)
	assert.Equal(t, enums.BatchStatusExpired, expired.Status)
	dbtest.MustReload(t, conn, &active, fresh.ID)
	assert.Equal(t, enums.BatchStatusActive, active.Status)

	again, err := repo.RefreshStatuses(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)
}
