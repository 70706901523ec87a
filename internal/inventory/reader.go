package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rxledger/pharmacy-backend/internal/tenancy"
	"github.com/rxledger/pharmacy-backend/pkg/cache"
	"github.com/rxledger/pharmacy-backend/pkg/enums"
	pkgerrors "github.com/rxledger/pharmacy-backend/pkg/errors"
)

type connector interface {
	TenantConnection(ctx context.Context, tenantID uuid.UUID) (*gorm.DB, error)
	ReportFailure(ctx context.Context, tenantID uuid.UUID, err error)
}

// ReaderOptions control cache freshness for stock reads.
type ReaderOptions struct {
	TTL        time.Duration
	StaleAfter time.Duration
	Now        func() time.Time
}

// Reader serves the stock read paths through the tenant-scoped cache.
type Reader struct {
	conns connector
	cache *cache.Cache
	opts  ReaderOptions
}

// NewReader builds a reader. A nil cache reads straight from storage.
func NewReader(conns connector, c *cache.Cache, opts ReaderOptions) (*Reader, error) {
	if conns == nil {
		return nil, fmt.Errorf("tenant connector required")
	}
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Minute
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reader{conns: conns, cache: c, opts: opts}, nil
}

// SearchQuery filters the product search.
type SearchQuery struct {
	Term  string `json:"term"`
	Limit int    `json:"limit"`
}

// SearchHit is one sellable batch matching a search.
type SearchHit struct {
	MedicineID        uuid.UUID         `json:"medicineId"`
	MedicineName      string            `json:"medicineName"`
	GenericName       *string           `json:"genericName,omitempty"`
	BatchID           uuid.UUID         `json:"batchId"`
	BatchNumber       string            `json:"batchNumber"`
	Quantity          int               `json:"quantity"`
	SellingPriceCents int64             `json:"sellingPriceCents"`
	ExpiryDate        time.Time         `json:"expiryDate"`
	Status            enums.BatchStatus `json:"status"`
}

// Summary aggregates stock across all batches.
type Summary struct {
	Batches         int64                       `json:"batches"`
	Units           int64                       `json:"units"`
	StockValueCents int64                       `json:"stockValueCents"`
	ByStatus        map[enums.BatchStatus]int64 `json:"byStatus"`
}

// BatchView is a batch with its medicine name, used by alert lists.
type BatchView struct {
	BatchID        uuid.UUID         `json:"batchId"`
	MedicineID     uuid.UUID         `json:"medicineId"`
	MedicineName   string            `json:"medicineName"`
	BatchNumber    string            `json:"batchNumber"`
	Quantity       int               `json:"quantity"`
	AlertThreshold int               `json:"alertThreshold"`
	ExpiryDate     time.Time         `json:"expiryDate"`
	Status         enums.BatchStatus `json:"status"`
}

// MedicineStock is an active medicine with its on-hand total.
type MedicineStock struct {
	MedicineID  uuid.UUID `json:"medicineId"`
	Name        string    `json:"name"`
	GenericName *string   `json:"genericName,omitempty"`
	Unit        string    `json:"unit"`
	OnHand      int64     `json:"onHand"`
	Batches     int64     `json:"batches"`
}

const defaultSearchLimit = 20

// Search finds sellable batches whose medicine name, generic name or batch
// number contains the term.
func (r *Reader) Search(ctx context.Context, actor tenancy.Actor, q SearchQuery) (cache.Result[[]SearchHit], error) {
	q.Term = strings.ToLower(strings.TrimSpace(q.Term))
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = defaultSearchLimit
	}
	return fetch(ctx, r, actor, cache.TagProductSearch, q, func(ctx context.Context, conn *gorm.DB) ([]SearchHit, error) {
		hits := []SearchHit{}
		query := conn.WithContext(ctx).
			Table("inventory_batches AS b").
			Select(`m.id AS medicine_id, m.name AS medicine_name, m.generic_name AS generic_name,
				b.id AS batch_id, b.batch_number, b.quantity, b.selling_price_cents, b.expiry_date, b.status`).
			Joins("JOIN medicines m ON m.id = b.medicine_id").
			Where("m.is_active = ? AND b.quantity > 0 AND b.status <> ?", true, enums.BatchStatusExpired)
		if q.Term != "" {
			like := "%" + q.Term + "%"
			query = query.Where("LOWER(m.name) LIKE ? OR LOWER(COALESCE(m.generic_name, '')) LIKE ? OR LOWER(b.batch_number) LIKE ?", like, like, like)
		}
		err := query.Order("m.name ASC, b.expiry_date ASC").Limit(q.Limit).Scan(&hits).Error
		return hits, err
	})
}

// Summary reports units, stock value at purchase price and batch counts per status.
func (r *Reader) Summary(ctx context.Context, actor tenancy.Actor) (cache.Result[Summary], error) {
	return fetch(ctx, r, actor, cache.TagInventorySummary, nil, func(ctx context.Context, conn *gorm.DB) (Summary, error) {
		var rows []struct {
			Status enums.BatchStatus
			Count  int64
			Units  int64
			Value  int64
		}
		err := conn.WithContext(ctx).
			Table("inventory_batches").
			Select("status, COUNT(*) AS count, COALESCE(SUM(quantity), 0) AS units, COALESCE(SUM(quantity * purchase_price_cents), 0) AS value").
			Group("status").
			Scan(&rows).Error
		if err != nil {
			return Summary{}, err
		}
		summary := Summary{ByStatus: map[enums.BatchStatus]int64{}}
		for _, row := range rows {
			summary.Batches += row.Count
			summary.Units += row.Units
			summary.StockValueCents += row.Value
			summary.ByStatus[row.Status] = row.Count
		}
		return summary, nil
	})
}

// LowStock lists in-stock, unexpired batches at or below their alert threshold.
func (r *Reader) LowStock(ctx context.Context, actor tenancy.Actor) (cache.Result[[]BatchView], error) {
	return fetch(ctx, r, actor, cache.TagLowStock, nil, func(ctx context.Context, conn *gorm.DB) ([]BatchView, error) {
		views := []BatchView{}
		err := batchViews(ctx, conn).
			Where("b.quantity > 0 AND b.quantity <= b.alert_threshold AND b.status <> ?", enums.BatchStatusExpired).
			Order("b.quantity ASC, m.name ASC").
			Scan(&views).Error
		return views, err
	})
}

// Expiring lists in-stock batches expiring within days, soonest first.
// Already expired batches are included.
func (r *Reader) Expiring(ctx context.Context, actor tenancy.Actor, days int) (cache.Result[[]BatchView], error) {
	if days <= 0 {
		days = int(NearExpiryWindow / (24 * time.Hour))
	}
	params := map[string]int{"days": days}
	return fetch(ctx, r, actor, cache.TagExpiry, params, func(ctx context.Context, conn *gorm.DB) ([]BatchView, error) {
		horizon := r.opts.Now().UTC().AddDate(0, 0, days)
		views := []BatchView{}
		err := batchViews(ctx, conn).
			Where("b.quantity > 0 AND b.expiry_date < ?", horizon).
			Order("b.expiry_date ASC").
			Scan(&views).Error
		return views, err
	})
}

// Medicines lists active medicines with their on-hand stock.
func (r *Reader) Medicines(ctx context.Context, actor tenancy.Actor) (cache.Result[[]MedicineStock], error) {
	return fetch(ctx, r, actor, cache.TagMedicineList, nil, func(ctx context.Context, conn *gorm.DB) ([]MedicineStock, error) {
		stock := []MedicineStock{}
		err := conn.WithContext(ctx).
			Table("medicines AS m").
			Select(`m.id AS medicine_id, m.name, m.generic_name, m.unit,
				COALESCE(SUM(b.quantity), 0) AS on_hand, COUNT(b.id) AS batches`).
			Joins("LEFT JOIN inventory_batches b ON b.medicine_id = m.id").
			Where("m.is_active = ?", true).
			Group("m.id, m.name, m.generic_name, m.unit").
			Order("m.name ASC").
			Scan(&stock).Error
		return stock, err
	})
}

func batchViews(ctx context.Context, conn *gorm.DB) *gorm.DB {
	return conn.WithContext(ctx).
		Table("inventory_batches AS b").
		Select(`b.id AS batch_id, m.id AS medicine_id, m.name AS medicine_name, b.batch_number,
			b.quantity, b.alert_threshold, b.expiry_date, b.status`).
		Joins("JOIN medicines m ON m.id = b.medicine_id")
}

func fetch[T any](ctx context.Context, r *Reader, actor tenancy.Actor, tag string, params any, query func(context.Context, *gorm.DB) (T, error)) (cache.Result[T], error) {
	if err := actor.Validate(); err != nil {
		return cache.Result[T]{}, err
	}
	load := func(ctx context.Context) (T, error) {
		var zero T
		conn, err := r.conns.TenantConnection(ctx, actor.TenantID)
		if err != nil {
			return zero, err
		}
		out, err := query(ctx, conn)
		if err != nil {
			r.conns.ReportFailure(ctx, actor.TenantID, err)
			return zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: read "+tag)
		}
		return out, nil
	}
	key := cache.Key{Tenant: actor.TenantID.String(), Tag: tag, Params: params}
	return cache.Fetch(ctx, r.cache, key, load, cache.FetchOptions[T]{
		TTL:        r.opts.TTL,
		StaleAfter: r.opts.StaleAfter,
	})
}
