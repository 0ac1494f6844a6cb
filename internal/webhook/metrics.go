package webhook

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Alert outcome labels.
const (
	OutcomeValid       = "valid"
	OutcomeInvalid     = "invalid"
	OutcomeDuplicate   = "duplicate"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)

// webhookMetrics holds Prometheus collectors shared by every server.
type webhookMetrics struct {
	alerts   *prometheus.CounterVec
	duration prometheus.Histogram
}

var (
	globalMetrics *webhookMetrics
	metricsOnce   sync.Once
)

// initMetrics registers the collectors exactly once in a thread-safe manner
func initMetrics() *webhookMetrics {
	metricsOnce.Do(func() {
		globalMetrics = &webhookMetrics{
			alerts: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "webhook_alerts_total",
					Help: "Inbound webhook alerts by outcome",
				},
				[]string{"outcome"},
			),
			duration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "webhook_processing_duration_seconds",
					Help:    "Webhook request processing latency",
					Buckets: prometheus.DefBuckets,
				},
			),
		}
	})
	return globalMetrics
}

func (m *webhookMetrics) recordOutcome(outcome string) {
	m.alerts.WithLabelValues(outcome).Inc()
}
