package main

import (
	"github.com/rxledger/pharmacy-backend/internal/commerce"
	"github.com/rxledger/pharmacy-backend/internal/counters"
	"github.com/rxledger/pharmacy-backend/internal/inventory"
	"github.com/rxledger/pharmacy-backend/internal/notifications"
	"github.com/rxledger/pharmacy-backend/internal/purchases"
	"github.com/rxledger/pharmacy-backend/internal/sales"
	"github.com/rxledger/pharmacy-backend/internal/tenancy"
	"github.com/rxledger/pharmacy-backend/internal/tenants"
	"github.com/rxledger/pharmacy-backend/pkg/cache"
	"github.com/rxledger/pharmacy-backend/pkg/config"
	"github.com/rxledger/pharmacy-backend/pkg/logger"
	"github.com/rxledger/pharmacy-backend/pkg/metrics"
)

// services is the domain surface a transport layer mounts.
type services struct {
	tenants   tenants.Service
	sales     sales.Service
	purchases purchases.Service
	inventory *inventory.Reader
}

func newServices(
	cfg *config.Config,
	logg *logger.Logger,
	router *tenancy.Router,
	readCache *cache.Cache,
	hub *notifications.Hub,
	commerceMetrics *metrics.CommerceMetrics,
) (*services, error) {
	tenantSvc, err := tenants.NewService(router, tenants.Options{SchemaPrefix: cfg.Tenancy.SchemaPrefix}, logg)
	if err != nil {
		return nil, err
	}

	engine, err := commerce.NewEngine(router, commerce.Options{
		Cache:    readCache,
		Notifier: hub,
		Counters: counters.NewService(nil),
		Logger:   logg,
		Metrics:  commerceMetrics,
		Policy:   commerce.PolicyFromConfig(cfg.Commerce),
	})
	if err != nil {
		return nil, err
	}

	salesSvc, err := sales.NewService(engine, sales.Options{
		SummaryTTL:        cfg.Cache.DefaultTTL,
		SummaryStaleAfter: cfg.Cache.StaleAfter,
	})
	if err != nil {
		return nil, err
	}
	purchaseSvc, err := purchases.NewService(engine)
	if err != nil {
		return nil, err
	}
	reader, err := inventory.NewReader(router, readCache, inventory.ReaderOptions{
		TTL:        cfg.Cache.DefaultTTL,
		StaleAfter: cfg.Cache.StaleAfter,
	})
	if err != nil {
		return nil, err
	}

	return &services{
		tenants:   tenantSvc,
		sales:     salesSvc,
		purchases: purchaseSvc,
		inventory: reader,
	}, nil
}
