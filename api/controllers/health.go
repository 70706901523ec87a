package controllers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/rxledger/pharmacy-backend/api/responses"
	"github.com/rxledger/pharmacy-backend/internal/tenancy"
	pkgerrors "github.com/rxledger/pharmacy-backend/pkg/errors"
	"github.com/rxledger/pharmacy-backend/pkg/logger"
)

const healthCheckTimeout = 2 * time.Second

// Pinger is any dependency with a liveness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Healthz pings every named dependency and reports 503 if any fails.
func Healthz(env string, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Rx-Env", env)
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		checks := make(map[string]string, len(names))
		var failed []string
		for _, name := range names {
			if err := deps[name].Ping(ctx); err != nil {
				checks[name] = err.Error()
				failed = append(failed, name)
				continue
			}
			checks[name] = "ok"
		}
		if len(failed) > 0 {
			err := pkgerrors.New(pkgerrors.CodeDependency, "dependency check failed").WithDetails(checks)
			responses.WriteError(r.Context(), logg, w, err, false)
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ok", "checks": checks})
	}
}

// ConnectionStatser reports the open tenant connections.
type ConnectionStatser interface {
	Stats() []tenancy.ConnectionStats
}

// Connections lists the router's live tenant connections.
func Connections(router ConnectionStatser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := router.Stats()
		responses.WriteSuccess(w, map[string]any{"open": len(stats), "connections": stats})
	}
}
