// Package tenancy routes requests to per-tenant storage partitions.
package tenancy

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/rxledger/pharmacy-backend/pkg/db"
	pkgerrors "github.com/rxledger/pharmacy-backend/pkg/errors"
	"github.com/rxledger/pharmacy-backend/pkg/logger"
	"github.com/rxledger/pharmacy-backend/pkg/metrics"
)

// Dialer opens the storage partition for one tenant.
type Dialer interface {
	Dial(ctx context.Context, tenantID uuid.UUID, partition string) (*gorm.DB, error)
}

// Options tune the registry. Zero values fall back to the defaults below.
type Options struct {
	IdleTimeout      time.Duration
	SweepInterval    time.Duration
	HealthCheckAfter time.Duration
	PingTimeout      time.Duration
	SchemaPrefix     string
	Now              func() time.Time
}

const (
	defaultIdleTimeout      = 30 * time.Minute
	defaultSweepInterval    = 5 * time.Minute
	defaultHealthCheckAfter = time.Minute
	defaultPingTimeout      = 2 * time.Second
)

// Eviction reasons.
const (
	reasonIdle      = "idle"
	reasonUnhealthy = "unhealthy"
	reasonFailure   = "failure"
	reasonExplicit  = "explicit"
	reasonShutdown  = "shutdown"
)

type entry struct {
	conn       *gorm.DB
	partition  string
	createdAt  time.Time
	lastAccess atomic.Int64
}

func (e *entry) touch(now time.Time) {
	e.lastAccess.Store(now.UnixNano())
}

func (e *entry) idleSince() time.Time {
	return time.Unix(0, e.lastAccess.Load())
}

// Router owns the admin connection and a registry of lazily created tenant
// connections. Concurrent first requests for one tenant share a single dial.
type Router struct {
	admin   *gorm.DB
	dialer  Dialer
	opts    Options
	logg    *logger.Logger
	metrics *metrics.RouterMetrics

	mu      sync.RWMutex
	entries map[uuid.UUID]*entry
	closed  bool
	group   singleflight.Group
}

// NewRouter builds a router. admin may be nil until SetAdmin is called;
// AdminConnection fails with NOT_CONNECTED meanwhile.
func NewRouter(admin *gorm.DB, dialer Dialer, opts Options, logg *logger.Logger, m *metrics.RouterMetrics) (*Router, error) {
	if dialer == nil {
		return nil, fmt.Errorf("tenant dialer required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.HealthCheckAfter <= 0 {
		opts.HealthCheckAfter = defaultHealthCheckAfter
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = defaultPingTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Router{
		admin:   admin,
		dialer:  dialer,
		opts:    opts,
		logg:    logg,
		metrics: m,
		entries: map[uuid.UUID]*entry{},
	}, nil
}

// SetAdmin installs the admin partition connection.
func (r *Router) SetAdmin(admin *gorm.DB) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admin = admin
}

// AdminConnection returns the control-plane connection.
func (r *Router) AdminConnection() (*gorm.DB, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.admin == nil || r.closed {
		return nil, notConnected("admin connection not initialised")
	}
	return r.admin, nil
}

// TenantConnection returns the live connection for tenantID, creating and
// registering it on first use. Handles idle for longer than HealthCheckAfter
// are pinged before reuse and redialled if the ping fails.
func (r *Router) TenantConnection(ctx context.Context, tenantID uuid.UUID) (*gorm.DB, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.Validation("tenant required", map[string]string{"tenantId": "is required"})
	}

	now := r.opts.Now()
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, notConnected("router closed")
	}
	e, ok := r.entries[tenantID]
	var idleFor time.Duration
	if ok {
		idleFor = now.Sub(e.idleSince())
		e.touch(now)
	}
	r.mu.RUnlock()

	if ok {
		if idleFor <= r.opts.HealthCheckAfter || r.healthy(ctx, e) {
			return e.conn, nil
		}
		r.logg.Warn(r.logCtx(ctx, tenantID), "tenant connection failed health check; redialling")
		r.evict(ctx, tenantID, e, reasonUnhealthy)
	}

	// The shared dial outlives any single caller; the dialer's connect
	// timeout bounds it.
	dialCtx := context.WithoutCancel(ctx)
	results := r.group.DoChan(tenantID.String(), func() (any, error) {
		return r.dial(dialCtx, tenantID)
	})
	select {
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*gorm.DB), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Router) dial(ctx context.Context, tenantID uuid.UUID) (*gorm.DB, error) {
	r.mu.RLock()
	if e, ok := r.entries[tenantID]; ok {
		r.mu.RUnlock()
		e.touch(r.opts.Now())
		return e.conn, nil
	}
	r.mu.RUnlock()

	partition := PartitionName(r.opts.SchemaPrefix, tenantID)
	logCtx := r.logCtx(ctx, tenantID)
	conn, err := r.dialer.Dial(ctx, tenantID, partition)
	if err != nil {
		r.metrics.IncDial("error")
		r.logg.Error(logCtx, "tenant connection failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "tenant partition unavailable").
			WithReason(pkgerrors.ReasonNotConnected)
	}
	r.metrics.IncDial("ok")

	now := r.opts.Now()
	e := &entry{conn: conn, partition: partition, createdAt: now}
	e.touch(now)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = closeConn(conn)
		return nil, notConnected("router closed")
	}
	r.entries[tenantID] = e
	open := len(r.entries)
	r.mu.Unlock()

	r.metrics.SetOpen(open)
	r.logg.Info(r.logg.WithField(logCtx, "partition", partition), "tenant connection established")
	return conn, nil
}

func (r *Router) healthy(ctx context.Context, e *entry) bool {
	sqlDB, err := e.conn.DB()
	if err != nil {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, r.opts.PingTimeout)
	defer cancel()
	return sqlDB.PingContext(pingCtx) == nil
}

// CloseTenantConnection closes and deregisters the tenant's connection. It is
// a no-op when none is registered.
func (r *Router) CloseTenantConnection(ctx context.Context, tenantID uuid.UUID) error {
	r.mu.RLock()
	e, ok := r.entries[tenantID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return r.evict(ctx, tenantID, e, reasonExplicit)
}

// ReportFailure deregisters the tenant's connection when err indicates the
// connection itself was lost, so the next request redials.
func (r *Router) ReportFailure(ctx context.Context, tenantID uuid.UUID, err error) {
	if !db.IsConnectivity(err) {
		return
	}
	r.mu.RLock()
	e, ok := r.entries[tenantID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	r.logg.Warn(r.logCtx(ctx, tenantID), "tenant connection lost; deregistering")
	_ = r.evict(ctx, tenantID, e, reasonFailure)
}

// evict removes e if it is still the registered entry for tenantID.
func (r *Router) evict(ctx context.Context, tenantID uuid.UUID, e *entry, reason string) error {
	r.mu.Lock()
	current, ok := r.entries[tenantID]
	if !ok || current != e {
		r.mu.Unlock()
		return nil
	}
	delete(r.entries, tenantID)
	open := len(r.entries)
	r.mu.Unlock()

	r.metrics.SetOpen(open)
	r.metrics.IncEviction(reason)
	if err := closeConn(e.conn); err != nil {
		r.logg.Error(r.logCtx(ctx, tenantID), "closing tenant connection failed", err)
		return err
	}
	r.logg.Info(r.logg.WithField(r.logCtx(ctx, tenantID), "reason", reason), "tenant connection closed")
	return nil
}

// Sweep closes every connection idle for longer than IdleTimeout and returns
// how many were closed. Close failures are logged.
func (r *Router) Sweep(ctx context.Context) int {
	cutoff := r.opts.Now().Add(-r.opts.IdleTimeout)

	r.mu.Lock()
	stale := map[uuid.UUID]*entry{}
	for id, e := range r.entries {
		if e.idleSince().Before(cutoff) {
			stale[id] = e
			delete(r.entries, id)
		}
	}
	open := len(r.entries)
	r.mu.Unlock()

	if len(stale) == 0 {
		return 0
	}
	r.metrics.SetOpen(open)
	for id, e := range stale {
		r.metrics.IncEviction(reasonIdle)
		if err := closeConn(e.conn); err != nil {
			r.logg.Error(r.logCtx(ctx, id), "closing idle tenant connection failed", err)
		}
	}
	r.logg.Info(r.logg.WithField(ctx, "closed", len(stale)), "idle tenant connections swept")
	return len(stale)
}

// Run sweeps on SweepInterval until ctx is done.
func (r *Router) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// CloseAll drains every tenant connection and the admin connection. The
// router refuses new work afterwards.
func (r *Router) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	entries := r.entries
	r.entries = map[uuid.UUID]*entry{}
	admin := r.admin
	r.mu.Unlock()

	var err error
	for id, e := range entries {
		r.metrics.IncEviction(reasonShutdown)
		if closeErr := closeConn(e.conn); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("tenant %s: %w", id, closeErr))
		}
	}
	if admin != nil {
		if closeErr := closeConn(admin); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("admin: %w", closeErr))
		}
	}
	r.metrics.SetOpen(0)
	r.logg.Info(r.logg.WithField(ctx, "tenants", len(entries)), "all connections closed")
	return err
}

// ConnectionStats describes one registered tenant connection.
type ConnectionStats struct {
	TenantID   uuid.UUID   `json:"tenantId"`
	Partition  string      `json:"partition"`
	LastAccess time.Time   `json:"lastAccess"`
	Age        string      `json:"age"`
	Pool       sql.DBStats `json:"pool"`
}

// Stats snapshots the registry, ordered by tenant id.
func (r *Router) Stats() []ConnectionStats {
	now := r.opts.Now()
	r.mu.RLock()
	out := make([]ConnectionStats, 0, len(r.entries))
	for id, e := range r.entries {
		stat := ConnectionStats{
			TenantID:   id,
			Partition:  e.partition,
			LastAccess: e.idleSince(),
			Age:        now.Sub(e.createdAt).Round(time.Second).String(),
		}
		if sqlDB, err := e.conn.DB(); err == nil {
			stat.Pool = sqlDB.Stats()
		}
		out = append(out, stat)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TenantID.String() < out[j].TenantID.String() })
	return out
}

// Len reports how many tenant connections are registered.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Router) logCtx(ctx context.Context, tenantID uuid.UUID) context.Context {
	return r.logg.WithTenantID(ctx, tenantID.String())
}

func closeConn(conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notConnected(msg string) error {
	return pkgerrors.New(pkgerrors.CodeDependency, msg).WithReason(pkgerrors.ReasonNotConnected)
}
