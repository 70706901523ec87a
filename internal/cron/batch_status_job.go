package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/rxledger/pharmacy-backend/internal/inventory"
	"github.com/rxledger/pharmacy-backend/internal/tenants"
	"github.com/rxledger/pharmacy-backend/pkg/cache"
	"github.com/rxledger/pharmacy-backend/pkg/enums"
	"github.com/rxledger/pharmacy-backend/pkg/logger"
)

// BatchStatusJobName labels the batch status refresh in logs and metrics.
const BatchStatusJobName = "batch-status-refresh"

var batchStatusTags = []string{cache.TagExpiry, cache.TagInventorySummary, cache.TagLowStock}

type tenantLister interface {
	ListActive(ctx context.Context) ([]tenants.TenantDTO, error)
}

type tenantConnector interface {
	TenantConnection(ctx context.Context, tenantID uuid.UUID) (*gorm.DB, error)
}

type tagInvalidator interface {
	Invalidate(ctx context.Context, tenantID string, tags ...string)
}

type eventEmitter interface {
	Emit(ctx context.Context, tenantID uuid.UUID, event enums.NotificationEvent, payload any)
}

// BatchStatusJobParams wires the batch status refresh job.
type BatchStatusJobParams struct {
	Logger   *logger.Logger
	Tenants  tenantLister
	Router   tenantConnector
	Cache    tagInvalidator
	Notifier eventEmitter
	Now      func() time.Time
}

type batchStatusJob struct {
	logg     *logger.Logger
	tenants  tenantLister
	router   tenantConnector
	cache    tagInvalidator
	notifier eventEmitter
	now      func() time.Time
}

type batchStatusEvent struct {
	BatchIDs []uuid.UUID `json:"batchIds"`
	Reason   string      `json:"reason"`
}

// NewBatchStatusRefreshJob builds the job that persists status changes
// caused by the passage of time (active to near_expiry to expired).
func NewBatchStatusRefreshJob(params BatchStatusJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Tenants == nil {
		return nil, fmt.Errorf("tenant lister required")
	}
	if params.Router == nil {
		return nil, fmt.Errorf("tenant router required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &batchStatusJob{
		logg:     params.Logger,
		tenants:  params.Tenants,
		router:   params.Router,
		cache:    params.Cache,
		notifier: params.Notifier,
		now:      now,
	}, nil
}

func (j *batchStatusJob) Name() string { return BatchStatusJobName }

// Run refreshes every active tenant. One tenant failing does not stop the
// others; all failures are returned together.
func (j *batchStatusJob) Run(ctx context.Context) error {
	active, err := j.tenants.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active tenants: %w", err)
	}

	var errs error
	total := 0
	for _, tenant := range active {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		changed, err := j.refreshTenant(ctx, tenant.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("tenant %s: %w", tenant.ID, err))
			continue
		}
		total += changed
	}

	ctx = j.logg.WithFields(ctx, map[string]any{"tenants": len(active), "batches_updated": total})
	j.logg.Info(ctx, "batch status refresh finished")
	return errs
}

func (j *batchStatusJob) refreshTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	conn, err := j.router.TenantConnection(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	changed, err := inventory.NewRepository(conn, j.now).RefreshStatuses(ctx)
	if len(changed) > 0 {
		tenantKey := tenantID.String()
		if j.cache != nil {
			j.cache.Invalidate(ctx, tenantKey, batchStatusTags...)
		}
		if j.notifier != nil {
			j.notifier.Emit(ctx, tenantID, enums.NotificationEventInventoryUpdated, batchStatusEvent{
				BatchIDs: changed,
				Reason:   "status-refresh",
			})
		}
		j.logg.Debug(j.logg.WithFields(ctx, map[string]any{"tenant_id": tenantKey, "batches": len(changed)}), "batch statuses refreshed")
	}
	return len(changed), err
}
