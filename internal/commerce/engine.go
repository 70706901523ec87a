// Package commerce holds the transactional plumbing shared by the sales and
// purchases services: tenant routing, bounded retry, post-commit cache
// invalidation and notifications.
package commerce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rxledger/pharmacy-backend/internal/counters"
	"github.com/rxledger/pharmacy-backend/internal/tenancy"
	"github.com/rxledger/pharmacy-backend/pkg/cache"
	"github.com/rxledger/pharmacy-backend/pkg/config"
	"github.com/rxledger/pharmacy-backend/pkg/db"
	"github.com/rxledger/pharmacy-backend/pkg/enums"
	pkgerrors "github.com/rxledger/pharmacy-backend/pkg/errors"
	"github.com/rxledger/pharmacy-backend/pkg/logger"
	"github.com/rxledger/pharmacy-backend/pkg/metrics"
)

// Connector resolves tenant partitions.
type Connector interface {
	TenantConnection(ctx context.Context, tenantID uuid.UUID) (*gorm.DB, error)
	ReportFailure(ctx context.Context, tenantID uuid.UUID, err error)
}

// Notifier receives post-commit events.
type Notifier interface {
	Emit(ctx context.Context, tenantID uuid.UUID, event enums.NotificationEvent, payload any)
}

// Event is a notification queued for emission after commit.
type Event struct {
	Name    enums.NotificationEvent
	Payload any
}

// Engine runs commerce mutations against a tenant partition.
type Engine struct {
	conns    Connector
	cache    *cache.Cache
	notifier Notifier
	counters *counters.Service
	logg     *logger.Logger
	metrics  *metrics.CommerceMetrics
	policy   db.RetryPolicy
}

// Options carries the optional collaborators. Nil cache, notifier and metrics
// are skipped.
type Options struct {
	Cache    *cache.Cache
	Notifier Notifier
	Counters *counters.Service
	Logger   *logger.Logger
	Metrics  *metrics.CommerceMetrics
	Policy   db.RetryPolicy
}

// PolicyFromConfig builds the transaction retry policy.
func PolicyFromConfig(cfg config.CommerceConfig) db.RetryPolicy {
	policy := db.DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		policy.Attempts = cfg.MaxAttempts
	}
	policy.AttemptTimeout = cfg.AttemptTimeout
	return policy
}

func NewEngine(conns Connector, opts Options) (*Engine, error) {
	if conns == nil {
		return nil, fmt.Errorf("tenant connector required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Counters == nil {
		opts.Counters = counters.NewService(nil)
	}
	if opts.Policy.Attempts <= 0 {
		opts.Policy.Attempts = db.DefaultAttempts
	}
	if opts.Policy.IsTransient == nil {
		opts.Policy.IsTransient = db.IsTransient
	}
	return &Engine{
		conns:    conns,
		cache:    opts.Cache,
		notifier: opts.Notifier,
		counters: opts.Counters,
		logg:     opts.Logger,
		metrics:  opts.Metrics,
		policy:   opts.Policy,
	}, nil
}

// Counters exposes the sequence service shared by the commerce services.
func (e *Engine) Counters() *counters.Service {
	return e.counters
}

// Now is the engine clock, shared with the counter service.
func (e *Engine) Now() time.Time {
	return e.counters.Now()
}

// Logger returns the engine logger.
func (e *Engine) Logger() *logger.Logger {
	return e.logg
}

// LogContext decorates ctx with the actor's tenant and id.
func (e *Engine) LogContext(ctx context.Context, actor tenancy.Actor) context.Context {
	ctx = e.logg.WithTenantID(ctx, actor.TenantID.String())
	return e.logg.WithActorID(ctx, actor.ActorID.String())
}

// Connection validates actor and returns its tenant partition.
func (e *Engine) Connection(ctx context.Context, actor tenancy.Actor) (*gorm.DB, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	return e.conns.TenantConnection(ctx, actor.TenantID)
}

// Read runs fn against the actor's partition outside a transaction. Failed
// reads other than a missing row are reported to the router so a lost
// connection is deregistered.
func (e *Engine) Read(ctx context.Context, actor tenancy.Actor, fn func(conn *gorm.DB) error) error {
	conn, err := e.Connection(ctx, actor)
	if err != nil {
		return err
	}
	if err := fn(conn); err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			e.conns.ReportFailure(ctx, actor.TenantID, err)
		}
		return err
	}
	return nil
}

// Run executes fn in a retried transaction on the actor's partition. fn must
// only use the tx handle and tx.Statement.Context; it is replayed from the
// start after a transient failure. Storage errors that are not already typed
// surface as DEPENDENCY_ERROR.
func (e *Engine) Run(ctx context.Context, actor tenancy.Actor, op string, fn func(tx *gorm.DB) error) error {
	conn, err := e.Connection(ctx, actor)
	if err != nil {
		e.metrics.Observe(op, resultLabel(err))
		return err
	}

	logCtx := e.logg.WithField(e.LogContext(ctx, actor), "operation", op)
	policy := e.policy
	policy.OnRetry = func(attempt int, err error) {
		e.metrics.IncRetry(op)
		e.logg.Warn(e.logg.WithFields(logCtx, map[string]any{"attempt": attempt, "error": err.Error()}), "transient conflict; replaying transaction")
	}

	err = db.RunInTx(ctx, conn, policy, fn)
	if err != nil {
		e.conns.ReportFailure(ctx, actor.TenantID, err)
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
		}
		typed := pkgerrors.As(err)
		switch typed.Code() {
		case pkgerrors.CodeValidation, pkgerrors.CodeNotFound, pkgerrors.CodeStateConflict, pkgerrors.CodeConflict:
			e.logg.Info(e.logg.WithField(logCtx, "code", string(typed.Code())), "commerce operation rejected: "+typed.Message())
		default:
			e.logg.Error(logCtx, "commerce operation failed", err)
		}
		e.metrics.Observe(op, resultLabel(err))
		return err
	}
	e.metrics.Observe(op, "ok")
	return nil
}

// AfterCommit invalidates the tenant's cached reads for tags and emits events.
// Neither step can fail the caller.
func (e *Engine) AfterCommit(ctx context.Context, actor tenancy.Actor, tags []string, events ...Event) {
	if len(tags) > 0 {
		e.cache.Invalidate(ctx, actor.TenantID.String(), tags...)
	}
	if e.notifier == nil {
		return
	}
	for _, event := range events {
		e.notifier.Emit(ctx, actor.TenantID, event.Name, event.Payload)
	}
}

// Cache returns the read cache, possibly nil.
func (e *Engine) Cache() *cache.Cache {
	return e.cache
}

func resultLabel(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return string(typed.Code())
	}
	return string(pkgerrors.CodeInternal)
}
