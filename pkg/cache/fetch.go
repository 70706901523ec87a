package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rxledger/pharmacy-backend/pkg/metrics"
	rxredis "github.com/rxledger/pharmacy-backend/pkg/redis"
)

// Key identifies one cached read. Params are hashed with BuildHash.
type Key struct {
	Tenant string
	Tag    string
	Params any
}

// FetchOptions control freshness. TTL bounds how long the store keeps the
// entry; StaleAfter is the age past which a hit triggers a background reload.
type FetchOptions[T any] struct {
	TTL        time.Duration
	StaleAfter time.Duration
	OnFresh    func(T)
}

// Result is what Fetch hands back to the caller.
type Result[T any] struct {
	Data           T
	FromCache      bool
	IsRevalidating bool
}

type envelope struct {
	Data     json.RawMessage `json:"data"`
	CachedAt time.Time       `json:"cachedAt"`
}

// Loader produces the authoritative value.
type Loader[T any] func(ctx context.Context) (T, error)

// Fetch returns the cached value for key, loading it on a miss. A stale entry
// is returned immediately while one background reload refreshes it.
func Fetch[T any](ctx context.Context, c *Cache, key Key, load Loader[T], opts FetchOptions[T]) (Result[T], error) {
	if c == nil {
		data, err := load(ctx)
		return Result[T]{Data: data}, err
	}
	hash, err := BuildHash(key.Params)
	if err != nil {
		c.logg.Error(ctx, "cache key hashing failed; bypassing cache", err)
		data, loadErr := load(ctx)
		return Result[T]{Data: data}, loadErr
	}
	storeKey := c.store.CacheKey(key.Tenant, key.Tag, hash)
	logCtx := c.logg.WithFields(ctx, map[string]any{"cache_key": storeKey, "tenant_id": key.Tenant})

	env, found := c.read(logCtx, storeKey)
	if found {
		var data T
		if err := json.Unmarshal(env.Data, &data); err != nil {
			c.logg.Warn(logCtx, "cache envelope undecodable; reloading")
			found = false
		} else {
			age := c.now().Sub(env.CachedAt)
			if age <= opts.StaleAfter {
				c.metrics.Inc(key.Tenant, key.Tag, metrics.CacheHit)
				return Result[T]{Data: data, FromCache: true}, nil
			}

			c.metrics.Inc(key.Tenant, key.Tag, metrics.CacheStale)
			revalidating, err := c.schedule(ctx, storeKey, func(bg context.Context) {
				refresh(bg, c, key, storeKey, load, opts)
			})
			if err != nil {
				c.metrics.Inc(key.Tenant, key.Tag, metrics.CacheDropped)
				c.logg.Warn(logCtx, "cache refresh not scheduled: "+err.Error())
			}
			return Result[T]{Data: data, FromCache: true, IsRevalidating: revalidating}, nil
		}
	}

	c.metrics.Inc(key.Tenant, key.Tag, metrics.CacheMiss)
	data, err := load(ctx)
	if err != nil {
		return Result[T]{}, err
	}
	c.write(logCtx, storeKey, data, opts.TTL)
	return Result[T]{Data: data}, nil
}

func refresh[T any](ctx context.Context, c *Cache, key Key, storeKey string, load Loader[T], opts FetchOptions[T]) {
	logCtx := c.logg.WithFields(ctx, map[string]any{"cache_key": storeKey, "tenant_id": key.Tenant})
	data, err := load(ctx)
	if err != nil {
		c.metrics.Inc(key.Tenant, key.Tag, metrics.CacheRefreshError)
		c.logg.Error(logCtx, "background cache refresh failed", err)
		return
	}
	if !c.write(logCtx, storeKey, data, opts.TTL) {
		c.metrics.Inc(key.Tenant, key.Tag, metrics.CacheRefreshError)
		return
	}
	c.metrics.Inc(key.Tenant, key.Tag, metrics.CacheRefresh)
	if opts.OnFresh != nil {
		opts.OnFresh(data)
	}
}

func (c *Cache) read(ctx context.Context, key string) (envelope, bool) {
	raw, err := c.store.GetBytes(ctx, key)
	if err != nil {
		if !errors.Is(err, rxredis.Nil) {
			c.logg.Error(ctx, "cache read failed", err)
		}
		return envelope{}, false
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logg.Warn(ctx, "cache envelope corrupt; reloading")
		return envelope{}, false
	}
	return env, true
}

func (c *Cache) write(ctx context.Context, key string, data any, ttl time.Duration) bool {
	payload, err := json.Marshal(data)
	if err != nil {
		c.logg.Error(ctx, "cache encode failed", err)
		return false
	}
	raw, err := json.Marshal(envelope{Data: payload, CachedAt: c.now()})
	if err != nil {
		c.logg.Error(ctx, "cache encode failed", err)
		return false
	}
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		c.logg.Error(ctx, "cache write failed", err)
		return false
	}
	return true
}
