package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/rxledger/pharmacy-backend/internal/tenancy"
	"github.com/rxledger/pharmacy-backend/internal/tenants"
	"github.com/rxledger/pharmacy-backend/pkg/config"
	"github.com/rxledger/pharmacy-backend/pkg/db"
	"github.com/rxledger/pharmacy-backend/pkg/logger"
	"github.com/rxledger/pharmacy-backend/pkg/migrate"
)

func main() {
	ctx := context.Background()
	// bootstrap logger early (then re-init after config load)
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate|tenants")
	set := flag.String("set", "admin", "migration set: admin|tenant")

	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")

	flag.Parse()

	migrationSet, err := migrate.ParseSet(*set)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	dir := migrationSet.Dir()

	// create and validate work on files only
	switch *cmd {
	case "create":
		if *name == "" {
			fmt.Fprintln(os.Stderr, "missing -name for create")
			os.Exit(1)
		}
		path, err := migrate.CreateSQLMigration(dir, migrationSet, *name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create migration: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("created migration:", path)
		return

	case "validate":
		if err := multierr.Combine(migrate.ValidateFS(migrate.AdminFS()), migrate.ValidateFS(migrate.TenantFS())); err != nil {
			fmt.Fprintf(os.Stderr, "migration validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
		"set": *set,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	if *cmd == "tenants" {
		if err := provisionTenants(ctx, cfg, logg, dbClient); err != nil {
			fmt.Fprintf(os.Stderr, "tenant provisioning failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *set != "admin" {
		fmt.Fprintln(os.Stderr, "tenant partitions are migrated with -cmd=tenants")
		os.Exit(1)
	}

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	logg.Info(ctx, "migrate ready")

	switch *cmd {
	case "up", "down", "status":
		if err := migrate.Run(ctx, sqlDB, dir, *cmd); err != nil {
			fmt.Fprintf(os.Stderr, "goose %s failed: %v\n", *cmd, err)
			os.Exit(1)
		}

	case "version":
		if *version == "" {
			fmt.Fprintln(os.Stderr, "missing -version for version command")
			os.Exit(1)
		}
		if err := migrate.MigrateToVersion(ctx, sqlDB, dir, *version); err != nil {
			fmt.Fprintf(os.Stderr, "goose version migrate failed: %v\n", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *cmd)
		os.Exit(1)
	}
}

// provisionTenants dials every active tenant once. Dialing applies any
// pending tenant migrations to that partition.
func provisionTenants(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client) error {
	router, err := tenancy.NewRouter(dbClient.DB(), &tenancy.PostgresDialer{
		Admin:   dbClient.DB(),
		BaseDSN: cfg.DB.DSN,
		Config:  cfg.Tenancy,
		Logger:  logg,
	}, tenancy.Options{SchemaPrefix: cfg.Tenancy.SchemaPrefix}, logg, nil)
	if err != nil {
		return err
	}

	registry, err := tenants.NewService(router, tenants.Options{SchemaPrefix: cfg.Tenancy.SchemaPrefix}, logg)
	if err != nil {
		return err
	}
	active, err := registry.ListActive(ctx)
	if err != nil {
		return err
	}

	var errs error
	for _, tenant := range active {
		if _, err := router.TenantConnection(ctx, tenant.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("tenant %s: %w", tenant.Slug, err))
			continue
		}
		if err := router.CloseTenantConnection(ctx, tenant.ID); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	logg.Info(logg.WithField(ctx, "tenants", len(active)), "tenant partitions migrated")
	return errs
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
