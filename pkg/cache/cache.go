// Package cache implements a tenant-scoped stale-while-revalidate cache in
// front of expensive reads. Cache failures are logged and counted; they never
// fail the caller.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rxledger/pharmacy-backend/pkg/logger"
	"github.com/rxledger/pharmacy-backend/pkg/metrics"
)

// Tags group cached reads so mutations can invalidate them together.
const (
	TagSalesToday       = "sales-today"
	TagProductSearch    = "product-search"
	TagInventorySummary = "inventory-summary"
	TagLowStock         = "low-stock"
	TagExpiry           = "expiry"
	TagMedicineList     = "medicine-list"
)

// InventoryTags are the reads that depend on batch quantities or expiry.
var InventoryTags = []string{TagInventorySummary, TagLowStock, TagExpiry, TagMedicineList}

// Store is the backing key/value store. *redis.Client satisfies it.
type Store interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	DeletePattern(ctx context.Context, pattern string) (int64, error)
	CacheKey(tenantID, tag, hash string) string
	CachePattern(tenantID, tag string) string
}

// Config sizes the background refresh pool.
type Config struct {
	Workers        int
	QueueSize      int
	RefreshTimeout time.Duration
	Now            func() time.Time
}

type refreshTask struct {
	key string
	run func(ctx context.Context)
	ctx context.Context
}

// Cache fronts read paths with stale-while-revalidate semantics.
type Cache struct {
	store          Store
	logg           *logger.Logger
	metrics        *metrics.CacheMetrics
	now            func() time.Time
	refreshTimeout time.Duration

	mu       sync.Mutex
	closed   bool
	inflight map[string]struct{}
	queue    chan refreshTask
	workers  sync.WaitGroup
	pending  sync.WaitGroup
}

// New starts the refresh workers. Call Close to stop them.
func New(store Store, cfg Config, logg *logger.Logger, m *metrics.CacheMetrics) (*Cache, error) {
	if store == nil {
		return nil, fmt.Errorf("cache store required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	c := &Cache{
		store:          store,
		logg:           logg,
		metrics:        m,
		now:            cfg.Now,
		refreshTimeout: cfg.RefreshTimeout,
		inflight:       map[string]struct{}{},
		queue:          make(chan refreshTask, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		c.workers.Add(1)
		go c.worker()
	}
	return c, nil
}

// Invalidate removes a tenant's cached reads for the given tags, or every
// cached read of the tenant when no tag is given.
func (c *Cache) Invalidate(ctx context.Context, tenantID string, tags ...string) {
	if c == nil {
		return
	}
	if tenantID == "" {
		c.logg.Warn(ctx, "cache invalidation skipped: empty tenant")
		return
	}
	if len(tags) == 0 {
		c.InvalidatePatterns(ctx, c.store.CachePattern(tenantID, ""))
		return
	}
	patterns := make([]string, 0, len(tags))
	for _, tag := range tags {
		patterns = append(patterns, c.store.CachePattern(tenantID, tag))
	}
	c.InvalidatePatterns(ctx, patterns...)
}

// InvalidatePatterns deletes every key matching each glob pattern.
func (c *Cache) InvalidatePatterns(ctx context.Context, patterns ...string) {
	for _, pattern := range patterns {
		deleted, err := c.store.DeletePattern(ctx, pattern)
		if err != nil {
			c.logg.Error(c.logg.WithField(ctx, "pattern", pattern), "cache invalidation failed", err)
			continue
		}
		if deleted > 0 {
			c.logg.Debug(c.logg.WithFields(ctx, map[string]any{"pattern": pattern, "deleted": deleted}), "cache invalidated")
		}
	}
}

// Wait blocks until every queued background refresh has finished.
func (c *Cache) Wait() {
	if c == nil {
		return
	}
	c.pending.Wait()
}

// Close stops accepting refreshes and waits for the workers to drain.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()

	c.workers.Wait()
	return nil
}

var errQueueFull = errors.New("refresh queue full")

// schedule enqueues run unless a refresh for key is already in flight. It
// reports whether a refresh for key is now pending.
func (c *Cache) schedule(ctx context.Context, key string, run func(ctx context.Context)) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, fmt.Errorf("cache closed")
	}
	if _, busy := c.inflight[key]; busy {
		return true, nil
	}

	c.pending.Add(1)
	select {
	case c.queue <- refreshTask{key: key, run: run, ctx: ctx}:
		c.inflight[key] = struct{}{}
		return true, nil
	default:
		c.pending.Done()
		return false, errQueueFull
	}
}

func (c *Cache) worker() {
	defer c.workers.Done()
	for task := range c.queue {
		c.runTask(task)
	}
}

func (c *Cache) runTask(task refreshTask) {
	defer func() {
		c.mu.Lock()
		delete(c.inflight, task.key)
		c.mu.Unlock()
		c.pending.Done()
	}()
	defer func() {
		if r := recover(); r != nil {
			c.logg.Error(task.ctx, "cache refresh panicked", fmt.Errorf("panic: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(task.ctx), c.refreshTimeout)
	defer cancel()
	task.run(ctx)
}
