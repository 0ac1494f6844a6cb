// Package cache provides the byte-value TTL stores used for bar windows and
// assembled reports, plus the deterministic key schema and the partial
// coverage heuristic for range queries.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
)

// Store is a TTL cache for serialized values. Write failures are logged by
// implementations and never block the request path; callers may ignore the
// returned error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	FlushAll(ctx context.Context) error
}

// DefaultCoverageThreshold is the fraction of expected bars a cached range
// must hold to count as a hit.
const DefaultCoverageThreshold = 0.90

var defaultTTLs = map[market.Timeframe]time.Duration{
	market.TimeframeM1:  60 * time.Second,
	market.TimeframeM5:  5 * time.Minute,
	market.TimeframeM10: 10 * time.Minute,
	market.TimeframeH1:  time.Hour,
	market.TimeframeH4:  4 * time.Hour,
	market.TimeframeD1:  24 * time.Hour,
}

// TTLPolicy maps timeframes onto cache lifetimes, with per-timeframe
// overrides from config.
type TTLPolicy struct {
	overrides map[market.Timeframe]time.Duration
}

// NewTTLPolicy parses override entries keyed by timeframe string.
func NewTTLPolicy(overrides map[string]time.Duration) (TTLPolicy, error) {
	parsed := make(map[market.Timeframe]time.Duration, len(overrides))
	for raw, ttl := range overrides {
		tf, err := market.ParseTimeframe(raw)
		if err != nil {
			return TTLPolicy{}, market.NewConfigurationError(
				fmt.Sprintf("cache ttl override: unsupported timeframe %q", raw))
		}
		if ttl <= 0 {
			return TTLPolicy{}, market.NewConfigurationError(
				fmt.Sprintf("cache ttl override for %s must be positive", tf))
		}
		parsed[tf] = ttl
	}
	return TTLPolicy{overrides: parsed}, nil
}

// TTLFor returns the cache lifetime for a timeframe.
func (p TTLPolicy) TTLFor(tf market.Timeframe) time.Duration {
	if ttl, ok := p.overrides[tf]; ok {
		return ttl
	}
	if ttl, ok := defaultTTLs[tf]; ok {
		return ttl
	}
	return 60 * time.Second
}

// BarsKey builds the deterministic composite bar-window key:
// composite:bars:{symbol}:{timeframe}:{from|null}:{to|null}:{limit|null}.
// Bounds encode as UTC unix seconds.
func BarsKey(symbol string, tf market.Timeframe, from, to *time.Time, limit int) string {
	fromPart, toPart, limitPart := "null", "null", "null"
	if from != nil {
		fromPart = strconv.FormatInt(from.UTC().Unix(), 10)
	}
	if to != nil {
		toPart = strconv.FormatInt(to.UTC().Unix(), 10)
	}
	if limit > 0 {
		limitPart = strconv.Itoa(limit)
	}
	return fmt.Sprintf("composite:bars:%s:%s:%s:%s:%s", symbol, tf, fromPart, toPart, limitPart)
}

// ReportKey builds the report cache key:
// {kind}:{symbol}:{timeframe}:{YYYY-MM-DD}:{configHash}:v1.
func ReportKey(kind, symbol string, tf market.Timeframe, date, configHash string) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s:v1", kind, symbol, tf, date, configHash)
}

// Coverage measures how completely a cached bar slice fills the inclusive
// [from, to] window: the fraction of expected bars present, and whether the
// interior is contiguous at the bar timeframe (no mid-window gaps). A range
// hit requires fraction >= threshold and a contiguous interior.
func Coverage(bars []market.Bar, tf market.Timeframe, from, to time.Time) (float64, bool) {
	expected := market.ExpectedBarCount(tf, from, to)
	if expected == 0 {
		return 0, false
	}
	if len(bars) == 0 {
		return 0, true
	}
	step := tf.Duration()
	contiguous := true
	for i := 1; i < len(bars); i++ {
		if bars[i].Timestamp.Sub(bars[i-1].Timestamp) != step {
			contiguous = false
			break
		}
	}
	fraction := float64(len(bars)) / float64(expected)
	if fraction > 1 {
		fraction = 1
	}
	return fraction, contiguous
}

// CoversWindow applies the coverage heuristic with the given threshold.
func CoversWindow(bars []market.Bar, tf market.Timeframe, from, to time.Time, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultCoverageThreshold
	}
	fraction, contiguous := Coverage(bars, tf, from, to)
	return contiguous && fraction >= threshold
}
