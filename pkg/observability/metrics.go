package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the access-control service
type Metrics struct {
	// Decision metrics
	DecisionsTotal     *prometheus.CounterVec
	DecisionDuration   *prometheus.HistogramVec
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
	CacheInvalidations prometheus.Counter

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsSwept  prometheus.Counter

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accessd_decisions_total",
				Help: "Total number of permission decisions by outcome and reason",
			},
			[]string{"allowed", "reason", "cached"},
		),
		DecisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "accessd_decision_duration_seconds",
				Help:    "Permission decision latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"cached"},
		),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accessd_decision_cache_hits_total",
			Help: "Total decision cache hits",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accessd_decision_cache_misses_total",
			Help: "Total decision cache misses",
		}),
		CacheInvalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accessd_decision_cache_invalidations_total",
			Help: "Total per-user decision cache invalidations",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "accessd_sessions_active",
			Help: "Number of active access sessions",
		}),
		SessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accessd_sessions_swept_total",
			Help: "Total sessions ended by the idle sweep",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accessd_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "accessd_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.DecisionsTotal,
		m.DecisionDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheInvalidations,
		m.SessionsActive,
		m.SessionsSwept,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveDecision records one permission decision. Implements the evaluator's
// Observer contract together with ObserveCacheInvalidation.
func (m *Metrics) ObserveDecision(allowed bool, reason string, cached bool, elapsed time.Duration) {
	m.DecisionsTotal.WithLabelValues(
		strconv.FormatBool(allowed), reason, strconv.FormatBool(cached),
	).Inc()
	m.DecisionDuration.WithLabelValues(strconv.FormatBool(cached)).Observe(elapsed.Seconds())
	if cached {
		m.CacheHitsTotal.Inc()
	} else {
		m.CacheMissesTotal.Inc()
	}
}

// ObserveCacheInvalidation records per-user cache invalidations.
func (m *Metrics) ObserveCacheInvalidation(users int) {
	m.CacheInvalidations.Add(float64(users))
}

// ObserveSessionsSwept records idle sessions removed by a sweep.
func (m *Metrics) ObserveSessionsSwept(n int) {
	m.SessionsSwept.Add(float64(n))
}

// SetSessionsActive records the current active session count.
func (m *Metrics) SetSessionsActive(n int) {
	m.SessionsActive.Set(float64(n))
}

// ObserveHTTPRequest records one handled HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
