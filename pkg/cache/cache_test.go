package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxledger/pharmacy-backend/pkg/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(t *testing.T, clock *fakeClock) (*Cache, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore(clock.Now)
	c, err := New(store, Config{Workers: 2, QueueSize: 8, Now: clock.Now}, nil, metrics.NewCacheMetrics(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, store
}

type summary struct {
	Units int `json:"units"`
}

func countingLoader(calls *int32) Loader[summary] {
	return func(context.Context) (summary, error) {
		n := atomic.AddInt32(calls, 1)
		return summary{Units: int(n) * 10}, nil
	}
}

func TestFetchStaleWhileRevalidateTiming(t *testing.T) {
	clock := newFakeClock()
	c, _ := newTestCache(t, clock)
	ctx := context.Background()
	key := Key{Tenant: "t1", Tag: TagInventorySummary, Params: map[string]any{"scope": "all"}}

	var calls int32
	var fresh []summary
	var freshMu sync.Mutex
	opts := FetchOptions[summary]{
		TTL:        100 * time.Second,
		StaleAfter: 50 * time.Second,
		OnFresh: func(s summary) {
			freshMu.Lock()
			fresh = append(fresh, s)
			freshMu.Unlock()
		},
	}

	first, err := Fetch(ctx, c, key, countingLoader(&calls), opts)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.False(t, first.IsRevalidating)
	assert.Equal(t, 10, first.Data.Units)

	clock.Advance(40 * time.Second)
	hit, err := Fetch(ctx, c, key, countingLoader(&calls), opts)
	require.NoError(t, err)
	c.Wait()
	assert.True(t, hit.FromCache)
	assert.False(t, hit.IsRevalidating)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "fresh entry must not reload")

	clock.Advance(20 * time.Second)
	stale, err := Fetch(ctx, c, key, countingLoader(&calls), opts)
	require.NoError(t, err)
	assert.True(t, stale.FromCache)
	assert.True(t, stale.IsRevalidating)
	assert.Equal(t, 10, stale.Data.Units, "stale value is served immediately")

	c.Wait()
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "exactly one background reload")
	freshMu.Lock()
	assert.Equal(t, []summary{{Units: 20}}, fresh)
	freshMu.Unlock()

	after, err := Fetch(ctx, c, key, countingLoader(&calls), opts)
	require.NoError(t, err)
	assert.True(t, after.FromCache)
	assert.False(t, after.IsRevalidating)
	assert.Equal(t, 20, after.Data.Units)
}

func TestFetchReloadsAfterTTLExpiry(t *testing.T) {
	clock := newFakeClock()
	c, _ := newTestCache(t, clock)
	ctx := context.Background()
	key := Key{Tenant: "t1", Tag: TagLowStock}
	opts := FetchOptions[summary]{TTL: 100 * time.Second, StaleAfter: 50 * time.Second}

	var calls int32
	_, err := Fetch(ctx, c, key, countingLoader(&calls), opts)
	require.NoError(t, err)

	clock.Advance(101 * time.Second)
	res, err := Fetch(ctx, c, key, countingLoader(&calls), opts)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, 20, res.Data.Units)
}

func TestConcurrentStaleReadsShareOneRefresh(t *testing.T) {
	clock := newFakeClock()
	c, _ := newTestCache(t, clock)
	ctx := context.Background()
	key := Key{Tenant: "t1", Tag: TagExpiry, Params: map[string]int{"days": 30}}
	opts := FetchOptions[summary]{TTL: time.Hour, StaleAfter: time.Minute}

	var calls int32
	_, err := Fetch(ctx, c, key, countingLoader(&calls), opts)
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	release := make(chan struct{})
	blocking := func(context.Context) (summary, error) {
		<-release
		atomic.AddInt32(&calls, 1)
		return summary{Units: 99}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := Fetch(ctx, c, key, blocking, opts)
			assert.NoError(t, err)
			assert.True(t, res.IsRevalidating)
		}()
	}
	wg.Wait()
	close(release)
	c.Wait()

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestBackgroundRefreshFailureIsSwallowed(t *testing.T) {
	clock := newFakeClock()
	c, _ := newTestCache(t, clock)
	ctx := context.Background()
	key := Key{Tenant: "t1", Tag: TagMedicineList}
	opts := FetchOptions[summary]{TTL: time.Hour, StaleAfter: time.Second}

	var calls int32
	_, err := Fetch(ctx, c, key, countingLoader(&calls), opts)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	res, err := Fetch(ctx, c, key, func(context.Context) (summary, error) {
		return summary{}, errors.New("db down")
	}, opts)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Data.Units)
	c.Wait()

	again, err := Fetch(ctx, c, key, countingLoader(&calls), opts)
	require.NoError(t, err)
	assert.True(t, again.FromCache, "failed refresh keeps the old entry")
}

func TestStoreFailuresFallBackToLoader(t *testing.T) {
	clock := newFakeClock()
	c, store := newTestCache(t, clock)
	store.FailWith(errors.New("redis unavailable"))

	var calls int32
	res, err := Fetch(context.Background(), c, Key{Tenant: "t1", Tag: TagSalesToday}, countingLoader(&calls),
		FetchOptions[summary]{TTL: time.Minute, StaleAfter: time.Second})
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, 10, res.Data.Units)

	c.Invalidate(context.Background(), "t1", TagSalesToday)
}

func TestLoaderErrorOnMissIsReturned(t *testing.T) {
	c, _ := newTestCache(t, newFakeClock())
	boom := errors.New("boom")
	_, err := Fetch(context.Background(), c, Key{Tenant: "t1", Tag: TagSalesToday}, func(context.Context) (summary, error) {
		return summary{}, boom
	}, FetchOptions[summary]{TTL: time.Minute})
	assert.ErrorIs(t, err, boom)
}

func TestInvalidateIsTenantScoped(t *testing.T) {
	clock := newFakeClock()
	c, store := newTestCache(t, clock)
	ctx := context.Background()
	opts := FetchOptions[summary]{TTL: time.Hour, StaleAfter: time.Minute}

	var calls int32
	for _, k := range []Key{
		{Tenant: "t1", Tag: TagLowStock},
		{Tenant: "t1", Tag: TagExpiry},
		{Tenant: "t1", Tag: TagSalesToday},
		{Tenant: "t2", Tag: TagLowStock},
	} {
		_, err := Fetch(ctx, c, k, countingLoader(&calls), opts)
		require.NoError(t, err)
	}
	require.Equal(t, 4, store.Len())

	c.Invalidate(ctx, "t1", TagLowStock, TagExpiry)
	assert.Equal(t, 2, store.Len())

	c.Invalidate(ctx, "t1")
	assert.Equal(t, 1, store.Len(), "only the other tenant's entry remains")
}

func TestBuildHashIgnoresKeyOrder(t *testing.T) {
	a, err := BuildHash(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	b, err := BuildHash(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	c, err := BuildHash(map[string]any{"a": 2})
	require.NoError(t, err)
	d, err := BuildHash(map[string]any{"a": 1})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, d, c)

	type params struct {
		B int `json:"b"`
		A int `json:"a"`
	}
	e, err := BuildHash(params{A: 1, B: 2})
	require.NoError(t, err)
	assert.Equal(t, a, e, "struct field order does not matter either")

	nested1, _ := BuildHash(map[string]any{"outer": map[string]any{"x": 1, "y": []int{1, 2}}})
	nested2, _ := BuildHash(map[string]any{"outer": map[string]any{"y": []int{1, 2}, "x": 1}})
	assert.Equal(t, nested1, nested2)
}

func TestNilCacheLoadsDirectly(t *testing.T) {
	var calls int32
	res, err := Fetch(context.Background(), nil, Key{Tenant: "t1"}, countingLoader(&calls), FetchOptions[summary]{})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Data.Units)
	var c *Cache
	c.Invalidate(context.Background(), "t1")
}
