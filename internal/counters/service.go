// Package counters issues gap-free per-scope, per-day sequence numbers.
package counters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Scopes used by the commerce services.
const (
	ScopeSale     = "sale"
	ScopePurchase = "purchase"

	dayLayout = "20060102"
)

const upsertSQL = `INSERT INTO counter_sequences (scope, day, sequence, updated_at)
VALUES (?, ?, 1, ?)
ON CONFLICT (scope, day) DO UPDATE
SET sequence = counter_sequences.sequence + 1, updated_at = excluded.updated_at
RETURNING sequence`

// Service increments counters with a single upsert statement, so concurrent
// callers on the same key never observe the same value. Pass a transaction
// handle as conn to make the increment commit or roll back with it.
type Service struct {
	now func() time.Time
}

func NewService(now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{now: now}
}

// Next returns the next value for (scope, day), starting at 1.
func (s *Service) Next(ctx context.Context, conn *gorm.DB, scope, day string) (int64, error) {
	if conn == nil {
		return 0, fmt.Errorf("counter connection required")
	}
	scope = strings.TrimSpace(scope)
	if scope == "" || day == "" {
		return 0, fmt.Errorf("counter scope and day required")
	}

	var seq int64
	if err := conn.WithContext(ctx).Raw(upsertSQL, scope, day, s.now().UTC()).Scan(&seq).Error; err != nil {
		return 0, fmt.Errorf("increment counter %s/%s: %w", scope, day, err)
	}
	if seq <= 0 {
		return 0, fmt.Errorf("increment counter %s/%s: no sequence returned", scope, day)
	}
	return seq, nil
}

// DayKey renders t's UTC calendar day as YYYYMMDD.
func DayKey(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// Format renders a document number such as INV-20261015-0001.
func Format(prefix, day string, seq int64) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, day, seq)
}
