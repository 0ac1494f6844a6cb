package webhook

import (
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of ingest counters.
// AverageProcessingTime is in milliseconds over every handled request.
type Stats struct {
	TotalAlerts           int64   `json:"totalAlerts"`
	ValidAlerts           int64   `json:"validAlerts"`
	InvalidAlerts         int64   `json:"invalidAlerts"`
	DuplicateAlerts       int64   `json:"duplicateAlerts"`
	RateLimitedAlerts     int64   `json:"rateLimitedAlerts"`
	ProcessingErrors      int64   `json:"processingErrors"`
	AverageProcessingTime float64 `json:"averageProcessingTime"`
}

// statsRecorder accumulates ingest counters behind one mutex; the handler
// touches it a handful of times per request so contention is negligible.
type statsRecorder struct {
	mu          sync.Mutex
	stats       Stats
	totalNanos  int64
	sampleCount int64
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{}
}

func (r *statsRecorder) IncTotal() {
	r.mu.Lock()
	r.stats.TotalAlerts++
	r.mu.Unlock()
}

func (r *statsRecorder) IncValid() {
	r.mu.Lock()
	r.stats.ValidAlerts++
	r.mu.Unlock()
}

func (r *statsRecorder) IncInvalid() {
	r.mu.Lock()
	r.stats.InvalidAlerts++
	r.mu.Unlock()
}

func (r *statsRecorder) IncDuplicate() {
	r.mu.Lock()
	r.stats.DuplicateAlerts++
	r.mu.Unlock()
}

func (r *statsRecorder) IncRateLimited() {
	r.mu.Lock()
	r.stats.RateLimitedAlerts++
	r.mu.Unlock()
}

func (r *statsRecorder) IncProcessingError() {
	r.mu.Lock()
	r.stats.ProcessingErrors++
	r.mu.Unlock()
}

// ObserveProcessing folds one request duration into the rolling average.
func (r *statsRecorder) ObserveProcessing(d time.Duration) {
	r.mu.Lock()
	r.totalNanos += d.Nanoseconds()
	r.sampleCount++
	r.mu.Unlock()
}

// Snapshot copies the counters and materializes the average.
func (r *statsRecorder) Snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	if r.sampleCount > 0 {
		s.AverageProcessingTime = float64(r.totalNanos) / float64(r.sampleCount) / 1e6
	}
	return s
}
