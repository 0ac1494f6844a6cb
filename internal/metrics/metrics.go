// Package metrics exposes the Prometheus endpoint and the process-wide
// collectors that belong to no single subsystem. Domain collectors live next
// to the code they instrument (provider, webhook, pipeline).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts requests served by the ingest and API routes.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status code",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration observes request latency per route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method and route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// DBPoolConnections tracks pgx pool connections by state.
	DBPoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "db_pool_connections",
		Help: "Database pool connections by state (acquired, idle, max)",
	}, []string{"state"})

	// BuildInfo carries the running version as a constant-1 gauge.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata of the running binary",
	}, []string{"version"})
)

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(method, route, status string, seconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

// SetBuildInfo publishes the version label once at startup.
func SetBuildInfo(version string) {
	BuildInfo.WithLabelValues(version).Set(1)
}
