package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	NotificationDelivered = "delivered"
	NotificationDropped   = "dropped"
	NotificationRelayed   = "relayed"
	NotificationReceived  = "received"
)

// NotificationMetrics counts event fan-out per subscriber and relay hop.
type NotificationMetrics struct {
	events *prometheus.CounterVec
}

func NewNotificationMetrics(reg prometheus.Registerer) *NotificationMetrics {
	if reg == nil {
		return &NotificationMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rx_notification_events_total",
		Help: "Notification events by outcome.",
	}, []string{"event", "result"})
	reg.MustRegister(events)
	return &NotificationMetrics{events: events}
}

// Inc records one event outcome.
func (n *NotificationMetrics) Inc(event, result string) {
	if n == nil || n.events == nil {
		return
	}
	n.events.WithLabelValues(normalizeLabel(event), result).Inc()
}
