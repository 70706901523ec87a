package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/admin/*.sql migrations/tenant/*.sql
var embedded embed.FS

// AdminFS returns the embedded control-plane migrations.
func AdminFS() fs.FS {
	sub, _ := fs.Sub(embedded, "migrations/admin")
	return sub
}

// TenantFS returns the embedded tenant-partition migrations.
func TenantFS() fs.FS {
	sub, _ := fs.Sub(embedded, "migrations/tenant")
	return sub
}

// UpAdmin applies the embedded control-plane migrations.
func UpAdmin(ctx context.Context, db *sql.DB) (int, error) {
	return up(ctx, db, AdminFS())
}

// ProvisionTenant applies the embedded tenant migrations on a connection whose
// search_path already points at the tenant schema. Each call builds its own
// goose provider, so partitions can be provisioned concurrently.
func ProvisionTenant(ctx context.Context, db *sql.DB) (int, error) {
	return up(ctx, db, TenantFS())
}

func up(ctx context.Context, db *sql.DB, fsys fs.FS) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("db is required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return 0, fmt.Errorf("goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return len(results), fmt.Errorf("goose up: %w", err)
	}
	return len(results), nil
}
