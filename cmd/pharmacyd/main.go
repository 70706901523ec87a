package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rxledger/pharmacy-backend/api/controllers"
	"github.com/rxledger/pharmacy-backend/api/routes"
	"github.com/rxledger/pharmacy-backend/internal/cron"
	"github.com/rxledger/pharmacy-backend/internal/notifications"
	"github.com/rxledger/pharmacy-backend/internal/tenancy"
	"github.com/rxledger/pharmacy-backend/pkg/cache"
	"github.com/rxledger/pharmacy-backend/pkg/config"
	"github.com/rxledger/pharmacy-backend/pkg/db"
	"github.com/rxledger/pharmacy-backend/pkg/instance"
	"github.com/rxledger/pharmacy-backend/pkg/logger"
	"github.com/rxledger/pharmacy-backend/pkg/metrics"
	"github.com/rxledger/pharmacy-backend/pkg/migrate"
	"github.com/rxledger/pharmacy-backend/pkg/redis"
)

const (
	serviceName     = "pharmacyd"
	cronLockName    = "cron"
	shutdownTimeout = 30 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	router, err := tenancy.NewRouter(dbClient.DB(), &tenancy.PostgresDialer{
		Admin:   dbClient.DB(),
		BaseDSN: cfg.DB.DSN,
		Config:  cfg.Tenancy,
		Logger:  logg,
	}, tenancy.Options{
		IdleTimeout:      cfg.Tenancy.IdleTimeout,
		SweepInterval:    cfg.Tenancy.SweepInterval,
		HealthCheckAfter: cfg.Tenancy.HealthCheckAfter,
		SchemaPrefix:     cfg.Tenancy.SchemaPrefix,
	}, logg, metrics.NewRouterMetrics(registry))
	if err != nil {
		logg.Error(ctx, "failed to create tenant router", err)
		os.Exit(1)
	}
	defer func() {
		if err := router.CloseAll(context.Background()); err != nil {
			logg.Error(context.Background(), "error closing tenant connections", err)
		}
	}()

	readCache, err := cache.New(redisClient, cache.Config{
		Workers:        cfg.Cache.Workers,
		QueueSize:      cfg.Cache.QueueSize,
		RefreshTimeout: cfg.Cache.RefreshTimeout,
	}, logg, metrics.NewCacheMetrics(registry))
	if err != nil {
		logg.Error(ctx, "failed to create cache", err)
		os.Exit(1)
	}
	defer func() {
		if err := readCache.Close(); err != nil {
			logg.Error(context.Background(), "error closing cache", err)
		}
	}()

	notifyMetrics := metrics.NewNotificationMetrics(registry)
	hub := notifications.NewHub(notifications.HubOptions{Buffer: cfg.Notifications.SubscriberBuffer}, logg, notifyMetrics)
	defer hub.Close()

	app, err := newServices(cfg, logg, router, readCache, hub, metrics.NewCommerceMetrics(registry))
	if err != nil {
		logg.Error(ctx, "failed to create services", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redislock.New(redisClient.Raw()), redisClient.LockKey(cronLockName), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(ctx, "failed to create cron lock", err)
		os.Exit(1)
	}
	statusJob, err := cron.NewBatchStatusRefreshJob(cron.BatchStatusJobParams{
		Logger:   logg,
		Tenants:  app.tenants,
		Router:   router,
		Cache:    readCache,
		Notifier: hub,
	})
	if err != nil {
		logg.Error(ctx, "failed to create batch status job", err)
		os.Exit(1)
	}
	scheduler, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(statusJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(registry),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	var workers sync.WaitGroup
	background := func(name string, run func(context.Context) error) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logg.Error(logg.WithField(ctx, "worker", name), "background worker stopped unexpectedly", err)
			}
		}()
	}
	background("tenant-sweep", router.Run)
	background("cron", scheduler.Run)
	if cfg.Notifications.RelayEnabled {
		relay, err := notifications.NewRedisRelay(hub, redisClient, logg, notifyMetrics)
		if err != nil {
			logg.Error(ctx, "failed to create notification relay", err)
			os.Exit(1)
		}
		background("notification-relay", relay.Run)
	}

	server := &http.Server{
		Addr: ":" + cfg.App.Port,
		Handler: routes.NewOpsRouter(routes.OpsParams{
			Config:   cfg,
			Logger:   logg,
			Gatherer: registry,
			Router:   router,
			Deps: map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
			},
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "ops server forced to shutdown", err)
		}
	}()

	logg.Info(logg.WithField(ctx, "addr", server.Addr), "starting pharmacy backend")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "ops server stopped unexpectedly", err)
		stop()
	}

	workers.Wait()
	readCache.Wait()
	logg.Info(context.Background(), "pharmacy backend shut down gracefully")
}
