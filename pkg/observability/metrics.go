package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthnFailuresTotal  *prometheus.CounterVec
	AuthzDecisionsTotal *prometheus.CounterVec
	GuardDuration       prometheus.Histogram

	// Store metrics
	StoreErrorsTotal *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	// Business metrics
	ImpersonationsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantadmin_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantadmin_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		AuthnFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantadmin_authn_failures_total",
				Help: "Requests rejected by the authentication guard",
			},
			[]string{"reason"},
		),
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantadmin_authz_decisions_total",
				Help: "Permission guard decisions by deciding rule and outcome",
			},
			[]string{"rule", "outcome"},
		),
		GuardDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tenantadmin_authz_guard_duration_seconds",
				Help:    "Time spent evaluating the permission guard",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
		),

		StoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantadmin_store_errors_total",
				Help: "Store lookups that failed during authorization",
			},
			[]string{"operation"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantadmin_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantadmin_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tenantadmin_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tenantadmin_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),

		ImpersonationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantadmin_impersonations_total",
				Help: "Impersonation session operations",
			},
			[]string{"operation", "outcome"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthnFailuresTotal,
		m.AuthzDecisionsTotal,
		m.GuardDuration,
		m.StoreErrorsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.ImpersonationsTotal,
	)

	return m
}

// RecordAuthnFailure counts a rejected credential
func (m *Metrics) RecordAuthnFailure(reason string) {
	if m == nil {
		return
	}
	m.AuthnFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordDecision counts a guard decision and observes its latency
func (m *Metrics) RecordDecision(rule, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.AuthzDecisionsTotal.WithLabelValues(rule, outcome).Inc()
	m.GuardDuration.Observe(elapsed.Seconds())
}

// RecordStoreError counts a failed store lookup
func (m *Metrics) RecordStoreError(operation string) {
	if m == nil {
		return
	}
	m.StoreErrorsTotal.WithLabelValues(operation).Inc()
}

// RecordCache counts a cache hit or miss
func (m *Metrics) RecordCache(cacheType string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cacheType).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(cacheType).Inc()
}

// RecordImpersonation counts an impersonation start or stop
func (m *Metrics) RecordImpersonation(operation, outcome string) {
	if m == nil {
		return
	}
	m.ImpersonationsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordDBStats copies connection pool stats into gauges
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routeLabel uses the matched route template so path parameters don't blow up cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(serveMux *http.ServeMux, registry *prometheus.Registry) {
	serveMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
