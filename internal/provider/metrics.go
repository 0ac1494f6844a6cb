package provider

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// Metric result labels
const (
	ResultSuccess = "success"
	ResultFailure = "failure"

	CacheHit  = "hit"
	CacheMiss = "miss"
)

// providerMetrics holds Prometheus collectors shared by every composite.
type providerMetrics struct {
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	circuitState *prometheus.GaugeVec
	cacheLookups *prometheus.CounterVec
}

var (
	globalMetrics *providerMetrics
	metricsOnce   sync.Once
)

// initMetrics registers the collectors exactly once in a thread-safe manner
func initMetrics() *providerMetrics {
	metricsOnce.Do(func() {
		globalMetrics = &providerMetrics{
			requests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "provider_requests_total",
					Help: "Total bar fetch attempts per provider",
				},
				[]string{"provider", "result"},
			),
			latency: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "provider_request_duration_seconds",
					Help:    "Bar fetch latency per provider",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			circuitState: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "provider_circuit_state",
					Help: "Provider circuit state (0=closed, 1=open, 2=half_open)",
				},
				[]string{"provider"},
			),
			cacheLookups: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "composite_cache_lookups_total",
					Help: "Composite bar cache lookups by outcome",
				},
				[]string{"result"},
			),
		}
	})
	return globalMetrics
}

// recordCircuitState maps a gobreaker state onto the gauge.
func (m *providerMetrics) recordCircuitState(provider string, state gobreaker.State) {
	var v float64
	switch state {
	case gobreaker.StateClosed:
		v = 0
	case gobreaker.StateOpen:
		v = 1
	case gobreaker.StateHalfOpen:
		v = 2
	}
	m.circuitState.WithLabelValues(provider).Set(v)
}

// recordAttempt counts one fetch attempt and its latency.
func (m *providerMetrics) recordAttempt(provider string, success bool, seconds float64) {
	result := ResultSuccess
	if !success {
		result = ResultFailure
	}
	m.requests.WithLabelValues(provider, result).Inc()
	m.latency.WithLabelValues(provider).Observe(seconds)
}

// recordCacheLookup counts one composite cache lookup.
func (m *providerMetrics) recordCacheLookup(hit bool) {
	result := CacheMiss
	if hit {
		result = CacheHit
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
