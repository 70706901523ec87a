package metrics

import "github.com/prometheus/client_golang/prometheus"

// CommerceMetrics counts transactional operations and their retries.
type CommerceMetrics struct {
	outcomes *prometheus.CounterVec
	retries  *prometheus.CounterVec
}

func NewCommerceMetrics(reg prometheus.Registerer) *CommerceMetrics {
	if reg == nil {
		return &CommerceMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rx_commerce_operations_total",
		Help: "Commerce operations by result code.",
	}, []string{"operation", "result"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rx_commerce_retries_total",
		Help: "Transaction attempts replayed after a transient conflict.",
	}, []string{"operation"})
	reg.MustRegister(outcomes, retries)
	return &CommerceMetrics{outcomes: outcomes, retries: retries}
}

// Observe records the final result of an operation ("ok" or an error code).
func (c *CommerceMetrics) Observe(operation, result string) {
	if c == nil || c.outcomes == nil {
		return
	}
	c.outcomes.WithLabelValues(operation, normalizeLabel(result)).Inc()
}

// IncRetry records one replayed transaction attempt.
func (c *CommerceMetrics) IncRetry(operation string) {
	if c == nil || c.retries == nil {
		return
	}
	c.retries.WithLabelValues(operation).Inc()
}
