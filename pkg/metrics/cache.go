package metrics

import "github.com/prometheus/client_golang/prometheus"

// Cache outcomes.
const (
	CacheHit          = "hit"
	CacheStale        = "stale"
	CacheMiss         = "miss"
	CacheRefresh      = "refresh"
	CacheRefreshError = "refresh_error"
	CacheDropped      = "dropped"
)

// CacheMetrics counts stale-while-revalidate outcomes per tenant and tag.
type CacheMetrics struct {
	events *prometheus.CounterVec
}

func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	if reg == nil {
		return &CacheMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rx_cache_events_total",
		Help: "Cache lookups and background refreshes by outcome.",
	}, []string{"tenant", "tag", "outcome"})
	reg.MustRegister(events)
	return &CacheMetrics{events: events}
}

// Inc records one cache event.
func (c *CacheMetrics) Inc(tenant, tag, outcome string) {
	if c == nil || c.events == nil {
		return
	}
	c.events.WithLabelValues(normalizeLabel(tenant), normalizeLabel(tag), outcome).Inc()
}
