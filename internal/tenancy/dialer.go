package tenancy

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rxledger/pharmacy-backend/pkg/config"
	"github.com/rxledger/pharmacy-backend/pkg/db"
	"github.com/rxledger/pharmacy-backend/pkg/db/models"
	"github.com/rxledger/pharmacy-backend/pkg/logger"
	"github.com/rxledger/pharmacy-backend/pkg/migrate"
)

// PostgresDialer places each tenant in its own schema of the shared cluster
// and provisions the schema on first dial.
type PostgresDialer struct {
	Admin   *gorm.DB
	BaseDSN string
	Config  config.TenancyConfig
	Logger  *logger.Logger
}

func (d *PostgresDialer) Dial(ctx context.Context, tenantID uuid.UUID, partition string) (*gorm.DB, error) {
	if d.Admin == nil {
		return nil, fmt.Errorf("admin connection required to provision %s", partition)
	}
	if err := d.Admin.WithContext(ctx).Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %q`, partition)).Error; err != nil {
		return nil, fmt.Errorf("creating schema %s: %w", partition, err)
	}

	dsn, err := TenantDSN(d.BaseDSN, partition, d.Config)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}))
	if err != nil {
		return nil, err
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(d.Config.MaxConns)
	sqlDB.SetMaxIdleConns(max(d.Config.MinConns, 1))
	if d.Config.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(d.Config.ConnMaxIdleTime)
	}

	pingCtx := ctx
	if d.Config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, d.Config.ConnectTimeout)
		defer cancel()
	}
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("pinging %s: %w", partition, err)
	}

	applied, err := migrate.ProvisionTenant(ctx, sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("provisioning %s: %w", partition, err)
	}
	if applied > 0 && d.Logger != nil {
		d.Logger.Info(d.Logger.WithFields(ctx, map[string]any{
			"tenant_id":  tenantID.String(),
			"partition":  partition,
			"migrations": applied,
		}), "tenant partition provisioned")
	}
	return conn, nil
}

// TenantDSN scopes base to one schema and applies the per-connection timeouts.
func TenantDSN(base, partition string, cfg config.TenancyConfig) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing base dsn: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("base dsn must be a postgres url")
	}
	q := u.Query()
	q.Set("search_path", partition)
	if cfg.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(max(int(cfg.ConnectTimeout/time.Second), 1)))
	}
	if cfg.StatementTimeout > 0 {
		q.Set("statement_timeout", strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SQLiteDialer keeps one SQLite database per tenant, on disk under Dir or in
// memory when Dir is empty. Used for local runs and tests.
type SQLiteDialer struct {
	Dir string
}

func (d *SQLiteDialer) Dial(ctx context.Context, _ uuid.UUID, partition string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", partition)
	if d.Dir != "" {
		if err := os.MkdirAll(d.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", d.Dir, err)
		}
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000", filepath.Join(d.Dir, partition+".db"))
	}
	conn, err := db.Open(sqlite.Open(dsn))
	if err != nil {
		return nil, err
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxIdleTime(0)
	if err := conn.WithContext(ctx).AutoMigrate(models.TenantModels()...); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrating %s: %w", partition, err)
	}
	return conn, nil
}
