package counters

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/rxledger/pharmacy-backend/pkg/db/models"
)

// SummaryDelta is a signed change to one day's aggregate.
type SummaryDelta struct {
	SalesCount          int64
	SalesTotalCents     int64
	PurchasesTotalCents int64
}

const summaryUpsertSQL = `INSERT INTO daily_summaries (day, sales_count, sales_total_cents, purchases_total_cents, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (day) DO UPDATE
SET sales_count = daily_summaries.sales_count + excluded.sales_count,
    sales_total_cents = daily_summaries.sales_total_cents + excluded.sales_total_cents,
    purchases_total_cents = daily_summaries.purchases_total_cents + excluded.purchases_total_cents,
    updated_at = excluded.updated_at`

// AddToSummary applies delta to day's aggregate, creating the row on first use.
func (s *Service) AddToSummary(ctx context.Context, conn *gorm.DB, day string, delta SummaryDelta) error {
	if conn == nil {
		return fmt.Errorf("summary connection required")
	}
	if day == "" {
		return fmt.Errorf("summary day required")
	}
	err := conn.WithContext(ctx).Exec(summaryUpsertSQL,
		day, delta.SalesCount, delta.SalesTotalCents, delta.PurchasesTotalCents, s.now().UTC()).Error
	if err != nil {
		return fmt.Errorf("update daily summary %s: %w", day, err)
	}
	return nil
}

// Summary reads day's aggregate; a day without activity reads as zeros.
func (s *Service) Summary(ctx context.Context, conn *gorm.DB, day string) (models.DailySummary, error) {
	var rows []models.DailySummary
	if err := conn.WithContext(ctx).Where("day = ?", day).Limit(1).Find(&rows).Error; err != nil {
		return models.DailySummary{}, fmt.Errorf("read daily summary %s: %w", day, err)
	}
	if len(rows) == 0 {
		return models.DailySummary{Day: day}, nil
	}
	return rows[0], nil
}

// Now exposes the service clock so callers stamp documents with the same day.
func (s *Service) Now() time.Time {
	return s.now()
}
