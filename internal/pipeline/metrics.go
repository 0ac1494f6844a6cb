package pipeline

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// pipelineMetrics holds Prometheus collectors shared by every orchestrator.
type pipelineMetrics struct {
	analyses *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	globalMetrics *pipelineMetrics
	metricsOnce   sync.Once
)

// initMetrics registers the collectors exactly once in a thread-safe manner
func initMetrics() *pipelineMetrics {
	metricsOnce.Do(func() {
		globalMetrics = &pipelineMetrics{
			analyses: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "pipeline_analyses_total",
					Help: "Analysis runs by report kind and result",
				},
				[]string{"kind", "result"},
			),
			duration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "pipeline_analysis_duration_seconds",
					Help:    "End-to-end analysis latency by report kind",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"kind"},
			),
		}
	})
	return globalMetrics
}

// recordAnalysis counts one analysis run and its latency.
func (m *pipelineMetrics) recordAnalysis(kind string, success bool, seconds float64) {
	if kind == "" {
		kind = "unknown"
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.analyses.WithLabelValues(kind, result).Inc()
	m.duration.WithLabelValues(kind).Observe(seconds)
}
