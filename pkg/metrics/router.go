package metrics

import "github.com/prometheus/client_golang/prometheus"

// RouterMetrics tracks the tenant connection registry.
type RouterMetrics struct {
	open      prometheus.Gauge
	dials     *prometheus.CounterVec
	evictions *prometheus.CounterVec
}

func NewRouterMetrics(reg prometheus.Registerer) *RouterMetrics {
	if reg == nil {
		return &RouterMetrics{}
	}
	open := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rx_tenant_connections_open",
		Help: "Tenant partition connections currently registered.",
	})
	dials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rx_tenant_connection_dials_total",
		Help: "Tenant partition connection attempts by result.",
	}, []string{"result"})
	evictions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rx_tenant_connection_evictions_total",
		Help: "Tenant partition connections closed by reason.",
	}, []string{"reason"})
	reg.MustRegister(open, dials, evictions)
	return &RouterMetrics{open: open, dials: dials, evictions: evictions}
}

// SetOpen publishes the registry size.
func (r *RouterMetrics) SetOpen(n int) {
	if r == nil || r.open == nil {
		return
	}
	r.open.Set(float64(n))
}

// IncDial records a dial attempt; result is "ok" or "error".
func (r *RouterMetrics) IncDial(result string) {
	if r == nil || r.dials == nil {
		return
	}
	r.dials.WithLabelValues(result).Inc()
}

// IncEviction records a closed connection; reason is idle, unhealthy, failure, explicit or shutdown.
func (r *RouterMetrics) IncEviction(reason string) {
	if r == nil || r.evictions == nil {
		return
	}
	r.evictions.WithLabelValues(normalizeLabel(reason)).Inc()
}
