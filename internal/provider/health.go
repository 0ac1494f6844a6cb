package provider

import (
	"sync"
	"time"
)

// DefaultHealthAlpha is the EMA smoothing factor for provider health.
const DefaultHealthAlpha = 0.1

// Health tracks a provider's success rate and latency as exponential moving
// averages. The success EMA lives on a 0-100 scale so it compares directly
// against a configured health threshold.
type Health struct {
	mu sync.Mutex

	alpha         float64
	successEMA    float64
	latencyEMA    time.Duration
	attempts      uint64
	successes     uint64
	failures      uint64
	lastError     string
	lastAttempt   time.Time
	lastSuccessAt time.Time
	lastErrorAt   time.Time
}

// HealthSnapshot is a point-in-time copy safe to hand out without a lock.
type HealthSnapshot struct {
	SuccessEMA    float64       `json:"success_ema"`
	LatencyEMA    time.Duration `json:"latency_ema"`
	Attempts      uint64        `json:"attempts"`
	Successes     uint64        `json:"successes"`
	Failures      uint64        `json:"failures"`
	LastError     string        `json:"last_error,omitempty"`
	LastAttempt   time.Time     `json:"last_attempt"`
	LastSuccessAt time.Time     `json:"last_success_at"`
	LastErrorAt   time.Time     `json:"last_error_at"`
}

// NewHealth creates a tracker with the given smoothing factor. A provider
// starts fully healthy; only observed failures pull the EMA down.
func NewHealth(alpha float64) *Health {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultHealthAlpha
	}
	return &Health{
		alpha:      alpha,
		successEMA: 100,
	}
}

// Record folds one attempt into the moving averages.
func (h *Health) Record(success bool, latency time.Duration, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now().UTC()
	sample := 0.0
	if success {
		sample = 100.0
		h.successes++
		h.lastError = ""
		h.lastSuccessAt = now
	} else {
		h.failures++
		h.lastErrorAt = now
		if err != nil {
			h.lastError = err.Error()
		}
	}
	h.attempts++
	h.lastAttempt = now

	h.successEMA = h.alpha*sample + (1-h.alpha)*h.successEMA
	if latency > 0 {
		if h.latencyEMA == 0 {
			h.latencyEMA = latency
		} else {
			h.latencyEMA = time.Duration(h.alpha*float64(latency) + (1-h.alpha)*float64(h.latencyEMA))
		}
	}
}

// SuccessEMA returns the current success moving average.
func (h *Health) SuccessEMA() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.successEMA
}

// Snapshot copies the current state out.
func (h *Health) Snapshot() HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HealthSnapshot{
		SuccessEMA:    h.successEMA,
		LatencyEMA:    h.latencyEMA,
		Attempts:      h.attempts,
		Successes:     h.successes,
		Failures:      h.failures,
		LastError:     h.lastError,
		LastAttempt:   h.lastAttempt,
		LastSuccessAt: h.lastSuccessAt,
		LastErrorAt:   h.lastErrorAt,
	}
}
