package bias

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
)

// hlBar builds the i-th 5-minute bar with the given high and low; the body
// sits midway.
func hlBar(i int, high, low float64) market.Bar {
	t0 := time.Date(2024, 6, 3, 13, 30, 0, 0, time.UTC)
	mid := (high + low) / 2
	return market.Bar{
		Timestamp: t0.Add(time.Duration(i) * 5 * time.Minute),
		Open:      mid,
		High:      high,
		Low:       low,
		Close:     mid,
		Volume:    500,
	}
}

// TestScanSwingsHigh tests peak detection and strength measurement
func TestScanSwingsHigh(t *testing.T) {
	highs := []float64{101, 102, 104, 102, 101, 100.5, 101.5}
	bars := make([]market.Bar, len(highs))
	for i, h := range highs {
		bars[i] = hlBar(i, h, h-1)
	}

	swingHighs, swingLows := scanSwings(bars, 2)
	require.Len(t, swingHighs, 1)
	assert.Empty(t, swingLows)

	sh := swingHighs[0]
	assert.Equal(t, 2, sh.Index)
	assert.Equal(t, 104.0, sh.Price)
	assert.Equal(t, SwingHigh, sh.Kind)
	assert.InDelta(t, 2.0, sh.Strength, 1e-9, "Peak clears the best neighbor by 2")
}

// TestScanSwingsLow tests trough detection
func TestScanSwingsLow(t *testing.T) {
	lows := []float64{103, 102, 100, 102, 103}
	bars := make([]market.Bar, len(lows))
	for i, l := range lows {
		bars[i] = hlBar(i, l+1, l)
	}

	swingHighs, swingLows := scanSwings(bars, 2)
	assert.Empty(t, swingHighs)
	require.Len(t, swingLows, 1)

	sl := swingLows[0]
	assert.Equal(t, 2, sl.Index)
	assert.Equal(t, 100.0, sl.Price)
	assert.Equal(t, SwingLow, sl.Kind)
	assert.InDelta(t, 2.0, sl.Strength, 1e-9)
}

// TestScanSwingsEdgesNeverConfirm tests that edge bars are excluded
func TestScanSwingsEdgesNeverConfirm(t *testing.T) {
	// Highest high sits at the last index where no right-side neighbors exist.
	highs := []float64{101, 102, 103, 104, 105}
	bars := make([]market.Bar, len(highs))
	for i, h := range highs {
		bars[i] = hlBar(i, h, h-1)
	}

	swingHighs, _ := scanSwings(bars, 2)
	assert.Empty(t, swingHighs)
}

// TestStructureOf tests the swing-pair decision table
func TestStructureOf(t *testing.T) {
	sp := func(price float64) SwingPoint { return SwingPoint{Price: price} }

	tests := []struct {
		name          string
		highs, lows   []SwingPoint
		want          Structure
		indeterminate bool
	}{
		{
			name:  "higher highs and higher lows",
			highs: []SwingPoint{sp(100), sp(102)},
			lows:  []SwingPoint{sp(98), sp(99)},
			want:  StructureBullish,
		},
		{
			name:  "lower highs and lower lows",
			highs: []SwingPoint{sp(102), sp(100)},
			lows:  []SwingPoint{sp(99), sp(98)},
			want:  StructureBearish,
		},
		{
			name:          "mixed pairs are ranging",
			highs:         []SwingPoint{sp(100), sp(102)},
			lows:          []SwingPoint{sp(99), sp(98)},
			want:          StructureRanging,
			indeterminate: true,
		},
		{
			name:          "too few swings",
			highs:         []SwingPoint{sp(100)},
			lows:          []SwingPoint{sp(98), sp(99)},
			want:          StructureRanging,
			indeterminate: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, indeterminate := structureOf(tt.highs, tt.lows)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.indeterminate, indeterminate)
		})
	}
}

// closeBars builds bars from a close path with thin ranges around the close.
func closeBars(closes []float64) []market.Bar {
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = hlBar(i, c+0.05, c-0.05)
		bars[i].Close = c
		bars[i].Open = c
	}
	return bars
}

// TestDetectBOSUp tests confirmation of an upward break
func TestDetectBOSUp(t *testing.T) {
	closes := []float64{100, 100, 100, 100, 100, 104.5, 104.8}
	bars := closeBars(closes)
	highs := []SwingPoint{{Index: 2, Price: 104.0}}

	bos := detectBOS(bars, highs, nil, 2)
	require.NotNil(t, bos)
	assert.Equal(t, "up", bos.Direction)
	assert.Equal(t, 6, bos.Index, "Second consecutive close seals the break")
	assert.Equal(t, 104.0, bos.Level)
}

// TestDetectBOSStreakReset tests that an interrupted run does not confirm
func TestDetectBOSStreakReset(t *testing.T) {
	closes := []float64{100, 100, 100, 104.5, 103.9, 104.5}
	bars := closeBars(closes)
	highs := []SwingPoint{{Index: 2, Price: 104.0}}

	bos := detectBOS(bars, highs, nil, 2)
	assert.Nil(t, bos, "Closes back inside reset the confirmation streak")
}

// TestDetectBOSLatestWins tests that the later of two breaks is reported
func TestDetectBOSLatestWins(t *testing.T) {
	closes := []float64{100, 100, 100, 104.5, 104.8, 95.5, 95.2, 95.0}
	bars := closeBars(closes)
	highs := []SwingPoint{{Index: 1, Price: 104.0}}
	lows := []SwingPoint{{Index: 2, Price: 96.0}}

	bos := detectBOS(bars, highs, lows, 2)
	require.NotNil(t, bos)
	assert.Equal(t, "down", bos.Direction)
	assert.Equal(t, 6, bos.Index)
	assert.Equal(t, 96.0, bos.Level)
}
