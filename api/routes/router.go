package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rxledger/pharmacy-backend/api/controllers"
	"github.com/rxledger/pharmacy-backend/api/middleware"
	"github.com/rxledger/pharmacy-backend/pkg/config"
	"github.com/rxledger/pharmacy-backend/pkg/logger"
)

const (
	pathHealth      = "/healthz"
	pathMetrics     = "/metrics"
	pathConnections = "/internal/connections"
)

// OpsParams are the collaborators behind the operational endpoints.
type OpsParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Gatherer prometheus.Gatherer
	Router   controllers.ConnectionStatser
	Deps     map[string]controllers.Pinger
}

// NewOpsRouter serves health, metrics and tenant connection stats.
func NewOpsRouter(p OpsParams) http.Handler {
	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	devMode := p.Config != nil && p.Config.App.IsDev()
	env := ""
	if p.Config != nil {
		env = p.Config.App.Env
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(p.Logger, devMode),
		middleware.RequestID(p.Logger),
		middleware.Logging(p.Logger, pathHealth, pathMetrics),
	)

	r.Get(pathHealth, controllers.Healthz(env, p.Logger, p.Deps))
	r.Handle(pathMetrics, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	if p.Router != nil {
		r.Get(pathConnections, controllers.Connections(p.Router))
	}
	return r
}
