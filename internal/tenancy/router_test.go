package tenancy

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rxledger/pharmacy-backend/pkg/config"
	"github.com/rxledger/pharmacy-backend/pkg/enums"
	pkgerrors "github.com/rxledger/pharmacy-backend/pkg/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingDialer struct {
	inner SQLiteDialer
	dials atomic.Int32
	delay time.Duration
	fail  error
}

func (d *countingDialer) Dial(ctx context.Context, tenantID uuid.UUID, partition string) (*gorm.DB, error) {
	d.dials.Add(1)
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.fail != nil {
		return nil, d.fail
	}
	return d.inner.Dial(ctx, tenantID, partition)
}

func newTestRouter(t *testing.T, dialer Dialer, clock *fakeClock) *Router {
	t.Helper()
	router, err := NewRouter(nil, dialer, Options{
		IdleTimeout:      30 * time.Minute,
		HealthCheckAfter: time.Minute,
		Now:              clock.Now,
	}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = router.CloseAll(context.Background()) })
	return router
}

func TestTenantConnectionConcurrentFirstUseDialsOnce(t *testing.T) {
	dialer := &countingDialer{delay: 20 * time.Millisecond}
	router := newTestRouter(t, dialer, &fakeClock{now: time.Now()})
	tenant := uuid.New()

	const workers = 16
	conns := make([]*gorm.DB, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := router.TenantConnection(context.Background(), tenant)
			assert.NoError(t, err)
			conns[i] = conn
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), dialer.dials.Load())
	for _, conn := range conns {
		assert.Same(t, conns[0], conn)
	}
	assert.Equal(t, 1, router.Len())
}

type gatedDialer struct {
	inner   SQLiteDialer
	dials   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (d *gatedDialer) Dial(ctx context.Context, tenantID uuid.UUID, partition string) (*gorm.DB, error) {
	if d.dials.Add(1) == 1 {
		close(d.started)
	}
	<-d.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.inner.Dial(ctx, tenantID, partition)
}

func TestTenantConnectionSharedDialSurvivesFirstCallerCancel(t *testing.T) {
	dialer := &gatedDialer{started: make(chan struct{}), release: make(chan struct{})}
	router := newTestRouter(t, dialer, &fakeClock{now: time.Now()})
	tenant := uuid.New()

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := router.TenantConnection(firstCtx, tenant)
		firstErr <- err
	}()
	<-dialer.started

	type result struct {
		conn *gorm.DB
		err  error
	}
	second := make(chan result, 1)
	go func() {
		conn, err := router.TenantConnection(context.Background(), tenant)
		second <- result{conn: conn, err: err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(dialer.release)

	got := <-second
	require.NoError(t, got.err)
	assert.NotNil(t, got.conn)
	assert.Equal(t, int32(1), dialer.dials.Load())
	assert.Equal(t, 1, router.Len())
}

func TestSweepEvictsIdleConnectionsAndNextUseRedials(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)}
	dialer := &countingDialer{}
	router := newTestRouter(t, dialer, clock)
	ctx := context.Background()
	idle, busy := uuid.New(), uuid.New()

	_, err := router.TenantConnection(ctx, idle)
	require.NoError(t, err)
	clock.Advance(20 * time.Minute)
	_, err = router.TenantConnection(ctx, busy)
	require.NoError(t, err)

	clock.Advance(11 * time.Minute)
	assert.Equal(t, 1, router.Sweep(ctx))
	assert.Equal(t, 1, router.Len())

	stats := router.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, busy, stats[0].TenantID)

	_, err = router.TenantConnection(ctx, idle)
	require.NoError(t, err)
	assert.Equal(t, int32(3), dialer.dials.Load())
}

func TestTenantConnectionRedialsAfterFailedHealthCheck(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	dialer := &countingDialer{}
	router := newTestRouter(t, dialer, clock)
	ctx := context.Background()
	tenant := uuid.New()

	first, err := router.TenantConnection(ctx, tenant)
	require.NoError(t, err)
	sqlDB, err := first.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	clock.Advance(30 * time.Second)
	same, err := router.TenantConnection(ctx, tenant)
	require.NoError(t, err)
	assert.Same(t, first, same, "recently used handles skip the health check")

	clock.Advance(2 * time.Minute)
	second, err := router.TenantConnection(ctx, tenant)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), dialer.dials.Load())
}

func TestTenantConnectionDialFailureIsNotCached(t *testing.T) {
	dialer := &countingDialer{fail: errors.New("connection refused")}
	router := newTestRouter(t, dialer, &fakeClock{now: time.Now()})
	tenant := uuid.New()

	_, err := router.TenantConnection(context.Background(), tenant)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeDependency, typed.Code())
	assert.Equal(t, pkgerrors.ReasonNotConnected, typed.Reason())
	assert.Equal(t, 0, router.Len())

	dialer.fail = nil
	_, err = router.TenantConnection(context.Background(), tenant)
	require.NoError(t, err)
	assert.Equal(t, int32(2), dialer.dials.Load())
}

func TestTenantConnectionRejectsNilTenant(t *testing.T) {
	router := newTestRouter(t, &countingDialer{}, &fakeClock{now: time.Now()})
	_, err := router.TenantConnection(context.Background(), uuid.Nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestAdminConnectionBeforeInit(t *testing.T) {
	router := newTestRouter(t, &countingDialer{}, &fakeClock{now: time.Now()})
	_, err := router.AdminConnection()
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ReasonNotConnected, pkgerrors.As(err).Reason())

	admin, err := (&SQLiteDialer{}).Dial(context.Background(), uuid.Nil, "admin_"+uuid.NewString()[:8])
	require.NoError(t, err)
	router.SetAdmin(admin)
	got, err := router.AdminConnection()
	require.NoError(t, err)
	assert.Same(t, admin, got)
}

func TestCloseTenantConnectionIsIdempotent(t *testing.T) {
	dialer := &countingDialer{}
	router := newTestRouter(t, dialer, &fakeClock{now: time.Now()})
	ctx := context.Background()
	tenant := uuid.New()

	require.NoError(t, router.CloseTenantConnection(ctx, tenant))
	_, err := router.TenantConnection(ctx, tenant)
	require.NoError(t, err)
	require.NoError(t, router.CloseTenantConnection(ctx, tenant))
	require.NoError(t, router.CloseTenantConnection(ctx, tenant))
	assert.Equal(t, 0, router.Len())
}

func TestReportFailureOnlyEvictsConnectivityErrors(t *testing.T) {
	router := newTestRouter(t, &countingDialer{}, &fakeClock{now: time.Now()})
	ctx := context.Background()
	tenant := uuid.New()
	_, err := router.TenantConnection(ctx, tenant)
	require.NoError(t, err)

	router.ReportFailure(ctx, tenant, pkgerrors.Validation("bad input", nil))
	assert.Equal(t, 1, router.Len())

	router.ReportFailure(ctx, tenant, sql.ErrConnDone)
	assert.Equal(t, 0, router.Len())
}

func TestCloseAllRefusesNewWork(t *testing.T) {
	router := newTestRouter(t, &countingDialer{}, &fakeClock{now: time.Now()})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := router.TenantConnection(ctx, uuid.New())
		require.NoError(t, err)
	}

	require.NoError(t, router.CloseAll(ctx))
	assert.Equal(t, 0, router.Len())
	_, err := router.TenantConnection(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	require.NoError(t, router.CloseAll(ctx))
}

func TestPartitionNameAndTenantDSN(t *testing.T) {
	id := uuid.MustParse("3f2a4b5c-0000-4000-8000-00000000abcd")
	name := PartitionName("", id)
	assert.Equal(t, "tenant_3f2a4b5c00004000800000000000abcd", name)

	dsn, err := TenantDSN("postgres://rx:secret@db:5432/rx?sslmode=disable", name, config.TenancyConfig{
		ConnectTimeout:   5 * time.Second,
		StatementTimeout: 30 * time.Second,
	})
	require.NoError(t, err)
	u, err := url.Parse(dsn)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, name, q.Get("search_path"))
	assert.Equal(t, "5", q.Get("connect_timeout"))
	assert.Equal(t, "30000", q.Get("statement_timeout"))
	assert.Equal(t, "disable", q.Get("sslmode"))

	_, err = TenantDSN("mysql://nope", name, config.TenancyConfig{})
	assert.Error(t, err)
}

func TestActorValidate(t *testing.T) {
	err := Actor{Role: enums.MemberRoleCashier}.Validate()
	require.Error(t, err)
	fields, _ := pkgerrors.As(err).Details().(map[string]string)
	assert.Contains(t, fields, "tenantId")
	assert.Contains(t, fields, "actorId")

	assert.NoError(t, Actor{TenantID: uuid.New(), ActorID: uuid.New(), Role: enums.MemberRoleOwner}.Validate())
}
