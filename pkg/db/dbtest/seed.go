package dbtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rxledger/pharmacy-backend/pkg/db/models"
	"github.com/rxledger/pharmacy-backend/pkg/enums"
)

// StaticRouter hands out one partition for every tenant and records reported failures.
type StaticRouter struct {
	Conn *gorm.DB

	mu       sync.Mutex
	failures []error
}

func (s *StaticRouter) TenantConnection(context.Context, uuid.UUID) (*gorm.DB, error) {
	return s.Conn, nil
}

func (s *StaticRouter) ReportFailure(_ context.Context, _ uuid.UUID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, err)
}

// Failures returns the errors passed to ReportFailure.
func (s *StaticRouter) Failures() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.failures...)
}

func MustCreateMedicine(t testing.TB, conn *gorm.DB, name string) *models.Medicine {
	t.Helper()
	medicine := &models.Medicine{Name: name, Unit: "strip", IsActive: true}
	if err := conn.Create(medicine).Error; err != nil {
		t.Fatalf("create medicine: %v", err)
	}
	return medicine
}

// MustCreateBatch inserts an active batch expiring in a year.
func MustCreateBatch(t testing.TB, conn *gorm.DB, medicineID uuid.UUID, number string, quantity int, sellingPriceCents int64) *models.InventoryBatch {
	t.Helper()
	now := time.Now().UTC()
	batch := &models.InventoryBatch{
		MedicineID:         medicineID,
		BatchNumber:        number,
		Quantity:           quantity,
		InitialQuantity:    quantity,
		ExpiryDate:         now.AddDate(1, 0, 0),
		PurchasePriceCents: sellingPriceCents / 2,
		MRPCents:           sellingPriceCents,
		SellingPriceCents:  sellingPriceCents,
		AlertThreshold:     10,
		PurchaseDate:       now,
		Status:             enums.BatchStatusActive,
	}
	if quantity == 0 {
		batch.Status = enums.BatchStatusOutOfStock
	}
	if err := conn.Create(batch).Error; err != nil {
		t.Fatalf("create batch: %v", err)
	}
	return batch
}

func MustCreateCounter(t testing.TB, conn *gorm.DB, name string, isDefault bool) *models.Counter {
	t.Helper()
	counter := &models.Counter{Name: name, IsDefault: isDefault, IsActive: true}
	if err := conn.Create(counter).Error; err != nil {
		t.Fatalf("create counter: %v", err)
	}
	return counter
}

func MustCreateSupplier(t testing.TB, conn *gorm.DB, name string) *models.Supplier {
	t.Helper()
	supplier := &models.Supplier{Name: name, IsActive: true}
	if err := conn.Create(supplier).Error; err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	return supplier
}

func MustCreateCustomer(t testing.TB, conn *gorm.DB, name string) *models.Customer {
	t.Helper()
	customer := &models.Customer{Name: name}
	if err := conn.Create(customer).Error; err != nil {
		t.Fatalf("create customer: %v", err)
	}
	return customer
}

// MustReload re-reads dest by primary key.
func MustReload(t testing.TB, conn *gorm.DB, dest any, id uuid.UUID) {
	t.Helper()
	if err := conn.Where("id = ?", id).First(dest).Error; err != nil {
		t.Fatalf("reload %T: %v", dest, err)
	}
}
