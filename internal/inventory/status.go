// Package inventory owns inventory batches: the derived batch status, the only
// writer of batch rows, and the cached stock read paths.
package inventory

import (
	"time"

	"github.com/rxledger/pharmacy-backend/pkg/db/models"
	"github.com/rxledger/pharmacy-backend/pkg/enums"
)

// NearExpiryWindow is how far ahead of expiry a batch is flagged.
const NearExpiryWindow = 30 * 24 * time.Hour

// StatusFor derives a batch status from its quantity and expiry at now.
func StatusFor(quantity int, expiry, now time.Time) enums.BatchStatus {
	switch {
	case quantity <= 0:
		return enums.BatchStatusOutOfStock
	case expiry.Before(now):
		return enums.BatchStatusExpired
	case expiry.Before(now.Add(NearExpiryWindow)):
		return enums.BatchStatusNearExpiry
	default:
		return enums.BatchStatusActive
	}
}

// Refresh rewrites b.Status for now and reports whether it changed.
func Refresh(b *models.InventoryBatch, now time.Time) bool {
	next := StatusFor(b.Quantity, b.ExpiryDate, now)
	if next == b.Status {
		return false
	}
	b.Status = next
	return true
}
