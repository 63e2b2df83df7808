package obs

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the search service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	SearchesTotal       *prometheus.CounterVec
	UpstreamAttempts    *prometheus.CounterVec
	UpstreamLatency     prometheus.Histogram
	CacheFallbacks      *prometheus.CounterVec
	EnrichmentFailures  prometheus.Counter
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsTotal   *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		SearchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "search_requests_total",
			Help: "Search requests by final outcome",
		}, []string{"outcome"}),
		UpstreamAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upstream_attempts_total",
			Help: "Upstream search attempts by result class",
		}, []string{"result"}),
		UpstreamLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "upstream_attempt_duration_seconds",
			Help:    "Duration of individual upstream search attempts",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 11),
		}),
		CacheFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "search_cache_fallbacks_total",
			Help: "Responses served from the search cache, by reason",
		}, []string{"reason"}),
		EnrichmentFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "static_enrichment_failures_total",
			Help: "Static-data lookups that failed and were skipped",
		}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "route", "status"}),
		registry: reg,
	}

	reg.MustRegister(
		m.SearchesTotal,
		m.UpstreamAttempts,
		m.UpstreamLatency,
		m.CacheFallbacks,
		m.EnrichmentFailures,
		m.HTTPRequestDuration,
		m.HTTPRequestsTotal,
	)

	return m
}

func (m *Metrics) IncSearch(outcome string) {
	if m == nil {
		return
	}
	m.SearchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveUpstreamAttempt records one attempt; status 0 means transport failure.
func (m *Metrics) ObserveUpstreamAttempt(status int, seconds float64) {
	if m == nil {
		return
	}
	m.UpstreamAttempts.WithLabelValues(StatusClass(status)).Inc()
	m.UpstreamLatency.Observe(seconds)
}

func (m *Metrics) IncCacheFallback(reason string) {
	if m == nil {
		return
	}
	m.CacheFallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncEnrichmentFailures() {
	if m == nil {
		return
	}
	m.EnrichmentFailures.Inc()
}

func (m *Metrics) ObserveHTTPRequest(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	s := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, route, s).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route, s).Observe(seconds)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StatusClass buckets an HTTP status into "2xx".."5xx", or "transport" for 0.
func StatusClass(status int) string {
	if status <= 0 {
		return "transport"
	}
	return strconv.Itoa(status/100) + "xx"
}
