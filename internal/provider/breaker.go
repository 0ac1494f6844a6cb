package provider

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Circuit breaker defaults
const (
	DefaultBreakerThreshold  = 30.0             // Success EMA below this trips the circuit
	DefaultBreakerReset      = 30 * time.Second // How long the circuit stays open
	DefaultBreakerHalfProbes = 3                // Successes required to close from half-open
)

// BreakerConfig configures the per-provider circuit breaker
type BreakerConfig struct {
	Threshold      float64       // Success-EMA floor; below it the circuit opens
	Reset          time.Duration // Open duration before half-open probes begin
	HalfOpenProbes uint32        // Consecutive probe successes required to close
}

// DefaultBreakerConfig returns default circuit breaker configuration
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Threshold:      DefaultBreakerThreshold,
		Reset:          DefaultBreakerReset,
		HalfOpenProbes: DefaultBreakerHalfProbes,
	}
}

// newBreaker builds a circuit breaker whose trip decision reads the
// provider's success EMA rather than gobreaker's own failure counts, so the
// circuit and the health table can never disagree about what "unhealthy"
// means. Half-open probe accounting stays with gobreaker.
func newBreaker(name string, cfg BreakerConfig, health *Health, metrics *providerMetrics) *gobreaker.CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultBreakerThreshold
	}
	if cfg.Reset <= 0 {
		cfg.Reset = DefaultBreakerReset
	}
	if cfg.HalfOpenProbes == 0 {
		cfg.HalfOpenProbes = DefaultBreakerHalfProbes
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenProbes,
		Timeout:     cfg.Reset,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return health.SuccessEMA() < cfg.Threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Provider circuit state changed")
			if metrics != nil {
				metrics.recordCircuitState(name, to)
			}
		},
	})
}
