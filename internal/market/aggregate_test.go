package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minuteBars builds n consecutive 1m bars starting at start with a simple
// deterministic shape.
func minuteBars(start time.Time, n int) []Bar {
	bars := make([]Bar, 0, n)
	price := 100.0
	for i := 0; i < n; i++ {
		open := price
		close := price + 0.1
		bars = append(bars, Bar{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      open,
			High:      close + 0.05,
			Low:       open - 0.05,
			Close:     close,
			Volume:    float64(10 + i),
		})
		price = close
	}
	return bars
}

// TestAggregateM1ToM5 tests OHLCV folding into complete buckets
func TestAggregateM1ToM5(t *testing.T) {
	start := time.Date(2024, 6, 3, 13, 30, 0, 0, time.UTC) // aligned to 5m
	src := minuteBars(start, 10)

	out, err := Aggregate(src, TimeframeM1, TimeframeM5, false)
	require.NoError(t, err)
	require.Len(t, out, 2)

	first := out[0]
	assert.True(t, first.Timestamp.Equal(start), "Bucket timestamp is the bucket start")
	assert.Equal(t, src[0].Open, first.Open, "Open is the first source open")
	assert.Equal(t, src[4].Close, first.Close, "Close is the last source close")

	wantHigh, wantLow, wantVol := src[0].High, src[0].Low, 0.0
	for _, b := range src[:5] {
		if b.High > wantHigh {
			wantHigh = b.High
		}
		if b.Low < wantLow {
			wantLow = b.Low
		}
		wantVol += b.Volume
	}
	assert.Equal(t, wantHigh, first.High)
	assert.Equal(t, wantLow, first.Low)
	assert.Equal(t, wantVol, first.Volume)

	assert.NoError(t, ValidateBars(out))
}

// TestAggregatePartialTrailingBucket tests the allowPartial switch
func TestAggregatePartialTrailingBucket(t *testing.T) {
	start := time.Date(2024, 6, 3, 13, 30, 0, 0, time.UTC)
	src := minuteBars(start, 7) // one full 5m bucket + 2 spare minutes

	out, err := Aggregate(src, TimeframeM1, TimeframeM5, false)
	require.NoError(t, err)
	assert.Len(t, out, 1, "Trailing partial bucket dropped")

	out, err = Aggregate(src, TimeframeM1, TimeframeM5, true)
	require.NoError(t, err)
	require.Len(t, out, 2, "Trailing partial bucket kept")
	assert.Equal(t, src[5].Open, out[1].Open)
	assert.Equal(t, src[6].Close, out[1].Close)
}

// TestAggregateUnalignedStart tests floored bucketing of a mid-bucket start
func TestAggregateUnalignedStart(t *testing.T) {
	start := time.Date(2024, 6, 3, 13, 32, 0, 0, time.UTC) // 2 minutes into a 5m bucket
	src := minuteBars(start, 8)

	out, err := Aggregate(src, TimeframeM1, TimeframeM5, true)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, time.Date(2024, 6, 3, 13, 30, 0, 0, time.UTC), out[0].Timestamp.UTC())
	assert.Equal(t, time.Date(2024, 6, 3, 13, 35, 0, 0, time.UTC), out[1].Timestamp.UTC())
}

// TestAggregateRejectsNonMultiple tests the integer-multiple precondition
func TestAggregateRejectsNonMultiple(t *testing.T) {
	src := minuteBars(time.Date(2024, 6, 3, 13, 30, 0, 0, time.UTC), 10)

	_, err := Aggregate(src, TimeframeM10, TimeframeM1, false)
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = Aggregate(src, Timeframe("3m"), TimeframeM5, false)
	require.Error(t, err)
}

// TestAggregateSameTimeframe tests the k=1 passthrough
func TestAggregateSameTimeframe(t *testing.T) {
	src := minuteBars(time.Date(2024, 6, 3, 13, 30, 0, 0, time.UTC), 3)
	out, err := Aggregate([]Bar{src[2], src[0], src[1], src[1]}, TimeframeM1, TimeframeM1, false)
	require.NoError(t, err)
	require.Len(t, out, 3, "Passthrough still sorts and dedups")
	assert.NoError(t, ValidateBars(out))
}

// TestAggregateEmpty tests the empty input edge case
func TestAggregateEmpty(t *testing.T) {
	out, err := Aggregate(nil, TimeframeM1, TimeframeM5, false)
	require.NoError(t, err)
	assert.Empty(t, out)
}

// TestExpectedBarCount tests the coverage window estimate
func TestExpectedBarCount(t *testing.T) {
	start := time.Date(2024, 6, 3, 13, 30, 0, 0, time.UTC)
	assert.Equal(t, 79, ExpectedBarCount(TimeframeM5, start, start.Add(6*time.Hour+30*time.Minute)))
	assert.Equal(t, 1, ExpectedBarCount(TimeframeM5, start, start))
	assert.Equal(t, 0, ExpectedBarCount(TimeframeM5, start, start.Add(-time.Minute)))
}
