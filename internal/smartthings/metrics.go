package smartthings

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks client behaviour: request volume per outcome, cache
// effectiveness, and how often the retry and rate-limit paths fire.
//
// A dedicated registry keeps the metric surface limited to what this
// client exports; the Go runtime collectors are added explicitly.
type Metrics struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	retries     prometheus.Counter
	rateWaits   prometheus.Counter
}

// NewMetrics creates the client metric set on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stbridge",
			Subsystem: "smartthings",
			Name:      "requests_total",
			Help:      "API requests by outcome (success, client_error, server_error, network_error).",
		}, []string{"outcome"}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "stbridge",
			Subsystem: "smartthings",
			Name:      "status_cache_hits_total",
			Help:      "Device status reads served from the TTL cache.",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "stbridge",
			Subsystem: "smartthings",
			Name:      "status_cache_misses_total",
			Help:      "Device status reads that required a cloud round-trip.",
		}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "stbridge",
			Subsystem: "smartthings",
			Name:      "request_retries_total",
			Help:      "Retry attempts after transient failures.",
		}),
		rateWaits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "stbridge",
			Subsystem: "smartthings",
			Name:      "rate_limit_waits_total",
			Help:      "Requests that had to wait for a rate limiter slot.",
		}),
	}
}

// Handler returns an HTTP handler serving the metric registry in the
// Prometheus exposition format. Mounted at /metrics by the API server.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) recordRequest(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) recordCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

func (m *Metrics) recordRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) recordRateWait() {
	if m == nil {
		return
	}
	m.rateWaits.Inc()
}
