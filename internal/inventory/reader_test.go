package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxledger/pharmacy-backend/internal/tenancy"
	"github.com/rxledger/pharmacy-backend/pkg/cache"
	"github.com/rxledger/pharmacy-backend/pkg/db/dbtest"
	"github.com/rxledger/pharmacy-backend/pkg/db/models"
	"github.com/rxledger/pharmacy-backend/pkg/enums"
	pkgerrors "github.com/rxledger/pharmacy-backend/pkg/errors"
	"github.com/rxledger/pharmacy-backend/pkg/logger"
)

func newTestReader(t *testing.T) (*Reader, *cache.Cache, *dbtest.StaticRouter) {
	t.Helper()
	router := &dbtest.StaticRouter{Conn: dbtest.OpenTenant(t)}
	c, err := cache.New(cache.NewMemoryStore(nil), cache.Config{Workers: 1, QueueSize: 4}, logger.Nop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	reader, err := NewReader(router, c, ReaderOptions{TTL: time.Minute, StaleAfter: time.Minute})
	require.NoError(t, err)
	return reader, c, router
}

func testActor() tenancy.Actor {
	return tenancy.Actor{TenantID: uuid.New(), ActorID: uuid.New(), Role: enums.MemberRolePharmacist}
}

func TestSearchServesFromCacheUntilInvalidated(t *testing.T) {
	reader, c, router := newTestReader(t)
	ctx := context.Background()
	actor := testActor()
	conn := router.Conn

	para := dbtest.MustCreateMedicine(t, conn, "Paracetamol 500")
	dbtest.MustCreateBatch(t, conn, para.ID, "PX-1", 10, 5000)
	dbtest.MustCreateBatch(t, conn, para.ID, "PX-EMPTY", 0, 5000)
	other := dbtest.MustCreateMedicine(t, conn, "Ibuprofen")
	dbtest.MustCreateBatch(t, conn, other.ID, "IB-1", 4, 2000)

	first, err := reader.Search(ctx, actor, SearchQuery{Term: "  PARA "})
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	require.Len(t, first.Data, 1)
	assert.Equal(t, "PX-1", first.Data[0].BatchNumber)
	assert.Equal(t, int64(5000), first.Data[0].SellingPriceCents)

	dbtest.MustCreateBatch(t, conn, para.ID, "PX-2", 3, 5000)

	cached, err := reader.Search(ctx, actor, SearchQuery{Term: "para"})
	require.NoError(t, err)
	assert.True(t, cached.FromCache, "normalised terms share a key")
	assert.Len(t, cached.Data, 1)

	c.Invalidate(ctx, actor.TenantID.String(), cache.TagProductSearch)
	fresh, err := reader.Search(ctx, actor, SearchQuery{Term: "para"})
	require.NoError(t, err)
	assert.False(t, fresh.FromCache)
	assert.Len(t, fresh.Data, 2)
}

func TestSummaryAndAlerts(t *testing.T) {
	reader, _, router := newTestReader(t)
	ctx := context.Background()
	actor := testActor()
	conn := router.Conn

	medicine := dbtest.MustCreateMedicine(t, conn, "Metformin")
	dbtest.MustCreateBatch(t, conn, medicine.ID, "M-1", 40, 200)
	low := dbtest.MustCreateBatch(t, conn, medicine.ID, "M-2", 3, 200)
	expiring := dbtest.MustCreateBatch(t, conn, medicine.ID, "M-3", 20, 200)
	require.NoError(t, conn.Model(&models.InventoryBatch{}).Where("id = ?", expiring.ID).
		Updates(map[string]any{"expiry_date": time.Now().UTC().AddDate(0, 0, 7), "status": enums.BatchStatusNearExpiry}).Error)

	summary, err := reader.Summary(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.Data.Batches)
	assert.Equal(t, int64(63), summary.Data.Units)
	assert.Equal(t, int64(63*100), summary.Data.StockValueCents)
	assert.Equal(t, int64(2), summary.Data.ByStatus[enums.BatchStatusActive])
	assert.Equal(t, int64(1), summary.Data.ByStatus[enums.BatchStatusNearExpiry])

	lowStock, err := reader.LowStock(ctx, actor)
	require.NoError(t, err)
	require.Len(t, lowStock.Data, 1)
	assert.Equal(t, low.ID, lowStock.Data[0].BatchID)
	assert.Equal(t, "Metformin", lowStock.Data[0].MedicineName)

	soon, err := reader.Expiring(ctx, actor, 30)
	require.NoError(t, err)
	require.Len(t, soon.Data, 1)
	assert.Equal(t, "M-3", soon.Data[0].BatchNumber)

	medicines, err := reader.Medicines(ctx, actor)
	require.NoError(t, err)
	require.Len(t, medicines.Data, 1)
	assert.Equal(t, int64(63), medicines.Data[0].OnHand)
	assert.Equal(t, int64(3), medicines.Data[0].Batches)
}

func TestReaderRejectsAnonymousActor(t *testing.T) {
	reader, _, _ := newTestReader(t)
	_, err := reader.Summary(context.Background(), tenancy.Actor{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestReaderReportsFailedLoads(t *testing.T) {
	reader, _, router := newTestReader(t)
	sqlDB, err := router.Conn.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = reader.LowStock(context.Background(), testActor())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Len(t, router.Failures(), 1)
}

func TestReaderWithoutCacheReadsStorage(t *testing.T) {
	router := &dbtest.StaticRouter{Conn: dbtest.OpenTenant(t)}
	reader, err := NewReader(router, nil, ReaderOptions{})
	require.NoError(t, err)
	dbtest.MustCreateMedicine(t, router.Conn, "Zinc")

	res, err := reader.Medicines(context.Background(), testActor())
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	require.Len(t, res.Data, 1)
	assert.Equal(t, int64(0), res.Data[0].OnHand)
}
