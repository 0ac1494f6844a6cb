package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
)

// TestBarsKey tests the deterministic composite key schema
func TestBarsKey(t *testing.T) {
	from := time.Date(2024, 6, 3, 13, 30, 0, 0, time.UTC)
	to := time.Date(2024, 6, 3, 20, 0, 0, 0, time.UTC)

	key := BarsKey("ES", market.TimeframeM5, &from, &to, 78)
	assert.Equal(t, "composite:bars:ES:5m:1717421400:1717444800:78", key)

	assert.Equal(t, "composite:bars:SPY:1m:null:null:null",
		BarsKey("SPY", market.TimeframeM1, nil, nil, 0))

	// Same instants in another zone produce the same key.
	est, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	fromEST := from.In(est)
	assert.Equal(t, key, BarsKey("ES", market.TimeframeM5, &fromEST, &to, 78))
}

// TestReportKey tests the report key schema
func TestReportKey(t *testing.T) {
	assert.Equal(t, "bias:ES:5m:2024-06-03:1a2b3c:v1",
		ReportKey("bias", "ES", market.TimeframeM5, "2024-06-03", "1a2b3c"))
}

// TestTTLPolicy tests defaults and overrides
func TestTTLPolicy(t *testing.T) {
	policy, err := NewTTLPolicy(nil)
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, policy.TTLFor(market.TimeframeM1))
	assert.Equal(t, 5*time.Minute, policy.TTLFor(market.TimeframeM5))
	assert.Equal(t, 10*time.Minute, policy.TTLFor(market.TimeframeM10))
	assert.Equal(t, time.Hour, policy.TTLFor(market.TimeframeH1))
	assert.Equal(t, 4*time.Hour, policy.TTLFor(market.TimeframeH4))
	assert.Equal(t, 24*time.Hour, policy.TTLFor(market.TimeframeD1))

	policy, err = NewTTLPolicy(map[string]time.Duration{"5m": 90 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, policy.TTLFor(market.TimeframeM5), "Override wins")
	assert.Equal(t, time.Hour, policy.TTLFor(market.TimeframeH1), "Others keep defaults")

	_, err = NewTTLPolicy(map[string]time.Duration{"7m": time.Minute})
	require.Error(t, err)
	assert.Equal(t, market.KindConfiguration, market.KindOf(err))

	_, err = NewTTLPolicy(map[string]time.Duration{"5m": -time.Minute})
	require.Error(t, err)
}

func windowBars(start time.Time, n int, step time.Duration) []market.Bar {
	bars := make([]market.Bar, 0, n)
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * step)
		bars = append(bars, market.Bar{Timestamp: ts, Open: 1, High: 1, Low: 1, Close: 1})
	}
	return bars
}

// TestCoverage tests the partial-coverage range heuristic
func TestCoverage(t *testing.T) {
	from := time.Date(2024, 6, 3, 13, 30, 0, 0, time.UTC)
	to := from.Add(99 * 5 * time.Minute) // expects 100 bars

	full := windowBars(from, 100, 5*time.Minute)
	fraction, contiguous := Coverage(full, market.TimeframeM5, from, to)
	assert.Equal(t, 1.0, fraction)
	assert.True(t, contiguous)
	assert.True(t, CoversWindow(full, market.TimeframeM5, from, to, 0.90))

	// 95 bars missing only the tail: covered.
	tailShort := full[:95]
	assert.True(t, CoversWindow(tailShort, market.TimeframeM5, from, to, 0.90))

	// 80% coverage: below the threshold.
	assert.False(t, CoversWindow(full[:80], market.TimeframeM5, from, to, 0.90))

	// Interior gap: 95 bars but not contiguous.
	gapped := append(append([]market.Bar{}, full[:50]...), full[55:]...)
	fraction, contiguous = Coverage(gapped, market.TimeframeM5, from, to)
	assert.Equal(t, 0.95, fraction)
	assert.False(t, contiguous)
	assert.False(t, CoversWindow(gapped, market.TimeframeM5, from, to, 0.90),
		"Interior gaps must force a refetch")

	// Empty window.
	assert.False(t, CoversWindow(nil, market.TimeframeM5, from, to, 0.90))

	// Threshold is configurable.
	assert.True(t, CoversWindow(full[:80], market.TimeframeM5, from, to, 0.75))
}
