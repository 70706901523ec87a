package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/rxledger/pharmacy-backend/internal/tenants"
	"github.com/rxledger/pharmacy-backend/pkg/cache"
	"github.com/rxledger/pharmacy-backend/pkg/db/dbtest"
	"github.com/rxledger/pharmacy-backend/pkg/db/models"
	"github.com/rxledger/pharmacy-backend/pkg/enums"
	"github.com/rxledger/pharmacy-backend/pkg/logger"
)

type staticTenants []tenants.TenantDTO

func (s staticTenants) ListActive(context.Context) ([]tenants.TenantDTO, error) {
	return s, nil
}

type mapRouter map[uuid.UUID]*gorm.DB

func (m mapRouter) TenantConnection(_ context.Context, tenantID uuid.UUID) (*gorm.DB, error) {
	conn, ok := m[tenantID]
	if !ok {
		return nil, errors.New("partition unavailable")
	}
	return conn, nil
}

type recordingInvalidator struct {
	mu    sync.Mutex
	calls map[string][]string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, tenantID string, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = map[string][]string{}
	}
	r.calls[tenantID] = append(r.calls[tenantID], tags...)
}

type recordingEmitter struct {
	events []enums.NotificationEvent
	tenant []uuid.UUID
}

func (r *recordingEmitter) Emit(_ context.Context, tenantID uuid.UUID, event enums.NotificationEvent, _ any) {
	r.events = append(r.events, event)
	r.tenant = append(r.tenant, tenantID)
}

func TestBatchStatusRefreshJob(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	drifting := dbtest.OpenTenant(t)
	medicine := dbtest.MustCreateMedicine(t, drifting, "Insulin Glargine")
	expiring := dbtest.MustCreateBatch(t, drifting, medicine.ID, "IG-1", 8, 90000)
	require.NoError(t, drifting.Model(&models.InventoryBatch{}).Where("id = ?", expiring.ID).
		Update("expiry_date", now.AddDate(0, 0, 10)).Error)

	steady := dbtest.OpenTenant(t)
	other := dbtest.MustCreateMedicine(t, steady, "Metformin 500")
	dbtest.MustCreateBatch(t, steady, other.ID, "MF-1", 40, 1200)

	driftingID, steadyID, missingID := uuid.New(), uuid.New(), uuid.New()
	invalidator := &recordingInvalidator{}
	emitter := &recordingEmitter{}
	job, err := NewBatchStatusRefreshJob(BatchStatusJobParams{
		Logger:   logger.Nop(),
		Tenants:  staticTenants{{ID: driftingID}, {ID: missingID}, {ID: steadyID}},
		Router:   mapRouter{driftingID: drifting, steadyID: steady},
		Cache:    invalidator,
		Notifier: emitter,
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)
	assert.Equal(t, BatchStatusJobName, job.Name())

	err = job.Run(ctx)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)
	assert.Contains(t, err.Error(), missingID.String())

	var reloaded models.InventoryBatch
	dbtest.MustReload(t, drifting, &reloaded, expiring.ID)
	assert.Equal(t, enums.BatchStatusNearExpiry, reloaded.Status)

	assert.Equal(t, map[string][]string{
		driftingID.String(): {cache.TagExpiry, cache.TagInventorySummary, cache.TagLowStock},
	}, invalidator.calls)
	assert.Equal(t, []enums.NotificationEvent{enums.NotificationEventInventoryUpdated}, emitter.events)
	assert.Equal(t, []uuid.UUID{driftingID}, emitter.tenant)
}

func TestNewBatchStatusRefreshJobRequiresCollaborators(t *testing.T) {
	_, err := NewBatchStatusRefreshJob(BatchStatusJobParams{Tenants: staticTenants{}, Router: mapRouter{}})
	assert.Error(t, err)
	_, err = NewBatchStatusRefreshJob(BatchStatusJobParams{Logger: logger.Nop(), Router: mapRouter{}})
	assert.Error(t, err)
	_, err = NewBatchStatusRefreshJob(BatchStatusJobParams{Logger: logger.Nop(), Tenants: staticTenants{}})
	assert.Error(t, err)
}
