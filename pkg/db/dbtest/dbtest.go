// Package dbtest opens throwaway SQLite partitions for package tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rxledger/pharmacy-backend/pkg/db"
	"github.com/rxledger/pharmacy-backend/pkg/db/models"
)

// DSN returns a private shared-cache in-memory database name.
func DSN() string {
	return fmt.Sprintf("file:rx_%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
}

// OpenTenant returns a migrated tenant partition. A single pooled connection
// serialises writers the way one SQLite file would.
func OpenTenant(t testing.TB) *gorm.DB {
	t.Helper()
	return open(t, models.TenantModels())
}

// OpenAdmin returns a migrated control-plane database.
func OpenAdmin(t testing.TB) *gorm.DB {
	t.Helper()
	return open(t, models.AdminModels())
}

// Migrate creates the tenant tables on an existing connection.
func Migrate(conn *gorm.DB) error {
	return conn.AutoMigrate(models.TenantModels()...)
}

func open(t testing.TB, tables []any) *gorm.DB {
	t.Helper()
	conn, err := db.Open(sqlite.Open(DSN()))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(tables...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}
