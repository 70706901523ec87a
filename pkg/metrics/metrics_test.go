package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCacheMetricsLabelsByTenantTagOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCacheMetrics(reg)
	m.Inc("t1", "low-stock", CacheHit)
	m.Inc("t1", "low-stock", CacheHit)
	m.Inc("t1", "low-stock", CacheStale)
	m.Inc("", "", CacheMiss)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got := counterWithLabels(mfs, "rx_cache_events_total", map[string]string{"tenant": "t1", "tag": "low-stock", "outcome": CacheHit}); got != 2 {
		t.Fatalf("expected 2 hits, got %f", got)
	}
	if got := counterWithLabels(mfs, "rx_cache_events_total", map[string]string{"tenant": "unknown", "tag": "unknown", "outcome": CacheMiss}); got != 1 {
		t.Fatalf("expected empty labels to normalise, got %f", got)
	}
}

func TestRouterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRouterMetrics(reg)
	m.SetOpen(3)
	m.IncDial("ok")
	m.IncEviction("idle")
	m.IncEviction("idle")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	gauge := findMetricFamily(mfs, "rx_tenant_connections_open")
	if gauge == nil || gauge.GetMetric()[0].GetGauge().GetValue() != 3 {
		t.Fatalf("expected open gauge of 3")
	}
	if got, err := fetchCounterValue(mfs, "rx_tenant_connection_evictions_total", "reason", "idle"); err != nil || got != 2 {
		t.Fatalf("expected 2 idle evictions, got %f err=%v", got, err)
	}
}

func TestCommerceMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCommerceMetrics(reg)
	m.IncRetry("sale.create")
	m.Observe("sale.create", "ok")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "rx_commerce_retries_total", "operation", "sale.create"); err != nil || got != 1 {
		t.Fatalf("expected 1 retry, got %f err=%v", got, err)
	}
	if got := counterWithLabels(mfs, "rx_commerce_operations_total", map[string]string{"operation": "sale.create", "result": "ok"}); got != 1 {
		t.Fatalf("expected 1 ok outcome, got %f", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var cache *CacheMetrics
	cache.Inc("t", "tag", CacheHit)
	var router *RouterMetrics
	router.SetOpen(1)
	router.IncDial("ok")
	NewCommerceMetrics(nil).Observe("op", "ok")
	NewCronJobMetrics(nil).IncSuccess("job")
}

func counterWithLabels(mfs []*dto.MetricFamily, name string, labels map[string]string) float64 {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return -1
	}
	for _, metric := range mf.GetMetric() {
		matched := true
		for k, v := range labels {
			if !matchesLabel(metric.GetLabel(), k, v) {
				matched = false
				break
			}
		}
		if matched {
			return metric.GetCounter().GetValue()
		}
	}
	return -1
}
