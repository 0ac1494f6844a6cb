package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/bias"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/confluence"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/risk"
)

func barsAround(closes ...float64) []market.Bar {
	start := time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      c - 0.05,
			High:      c + 0.10,
			Low:       c - 0.10,
			Close:     c,
			Volume:    1000,
		}
	}
	return bars
}

func longBias() *bias.Result {
	return &bias.Result{Label: bias.LabelLong}
}

func shortBias() *bias.Result {
	return &bias.Result{Label: bias.LabelShort}
}

func TestDeriveSetupRejectsMissingOrNeutralBias(t *testing.T) {
	bars := barsAround(100, 101, 102)

	setup, reason := deriveSetup(nil, nil, bars, nil, 2.0, 10)
	assert.Nil(t, setup)
	assert.Equal(t, "bias unavailable; no execution setup", reason)

	setup, reason = deriveSetup(&bias.Result{Label: bias.LabelNeutral}, nil, bars, nil, 2.0, 10)
	assert.Nil(t, setup)
	assert.Equal(t, "neutral bias; no execution setup", reason)
}

func TestDeriveSetupPrefersTightestSupportingZone(t *testing.T) {
	bars := barsAround(100.0, 100.5, 101.0)
	conf := &confluence.Report{
		FVGZones: []confluence.FVGZone{
			{Direction: confluence.DirectionBullish, Low: 99.5, High: 99.8},
			{Direction: confluence.DirectionBullish, Low: 100.2, High: 100.4},
			{Direction: confluence.DirectionBullish, Low: 100.6, High: 100.8, Filled: true}, // filled, skipped
			{Direction: confluence.DirectionBearish, Low: 100.7, High: 100.9},               // wrong side
		},
		OrderBlocks: []confluence.OrderBlock{
			{Direction: confluence.DirectionBullish, Low: 98.0, High: 98.5},
		},
	}

	setup, reason := deriveSetup(longBias(), conf, bars, nil, 2.0, 10)
	require.NotNil(t, setup, reason)
	assert.Equal(t, risk.DirectionLong, setup.direction)
	assert.Equal(t, 101.0, setup.entry)
	assert.Equal(t, 100.2, setup.stop, "highest unfilled supporting low below entry wins")
	assert.Equal(t, "zone", setup.stopBasis)
	assert.InDelta(t, 101.0+2.0*0.8, setup.takeProfit, 1e-9)
}

func TestDeriveSetupShortUsesZoneHighAboveEntry(t *testing.T) {
	bars := barsAround(102.0, 101.5, 101.0)
	conf := &confluence.Report{
		FVGZones: []confluence.FVGZone{
			{Direction: confluence.DirectionBearish, Low: 101.4, High: 101.6},
			{Direction: confluence.DirectionBearish, Low: 102.0, High: 102.3},
		},
	}

	setup, reason := deriveSetup(shortBias(), conf, bars, nil, 1.5, 10)
	require.NotNil(t, setup, reason)
	assert.Equal(t, risk.DirectionShort, setup.direction)
	assert.Equal(t, 101.0, setup.entry)
	assert.Equal(t, 101.6, setup.stop, "lowest unmitigated resisting high above entry wins")
	assert.InDelta(t, 101.0-1.5*0.6, setup.takeProfit, 1e-9)
}

func TestDeriveSetupFallsBackToSwingExtreme(t *testing.T) {
	bars := barsAround(100.0, 100.4, 100.8, 101.2)

	setup, reason := deriveSetup(longBias(), nil, bars, nil, 2.0, 10)
	require.NotNil(t, setup, reason)
	assert.Equal(t, "swing", setup.stopBasis)
	assert.Equal(t, 99.9, setup.stop, "lowest low of the trailing window")
}

func TestDeriveSetupAuxiliaryWindowRefinesEntry(t *testing.T) {
	bars := barsAround(100.0, 100.4, 100.8, 101.2)
	aux := barsAround(101.2, 101.3, 101.45)

	setup, reason := deriveSetup(longBias(), nil, bars, aux, 2.0, 10)
	require.NotNil(t, setup, reason)
	assert.Equal(t, 101.45, setup.entry, "entry follows the finest window's last close")
}

func TestDeriveSetupRejectsStoplessGeometry(t *testing.T) {
	// Every low sits above the would-be entry, so a long has nowhere to hide.
	bars := barsAround(102.0, 102.5, 103.0)
	bars[len(bars)-1].Close = 101.0 // entry below the whole window

	setup, reason := deriveSetup(longBias(), nil, bars, nil, 2.0, 2)
	assert.Nil(t, setup)
	assert.Equal(t, "no protective stop below entry; no execution setup", reason)
}

func TestZoneStopIgnoresSpentZones(t *testing.T) {
	conf := &confluence.Report{
		FVGZones: []confluence.FVGZone{
			{Direction: confluence.DirectionBullish, Low: 99.0, High: 99.2, Filled: true},
		},
		OrderBlocks: []confluence.OrderBlock{
			{Direction: confluence.DirectionBullish, Low: 98.0, High: 98.4, Mitigated: true},
		},
	}

	_, ok := zoneStop(risk.DirectionLong, 100.0, conf)
	assert.False(t, ok, "filled and mitigated zones offer no protection")

	_, ok = zoneStop(risk.DirectionLong, 100.0, nil)
	assert.False(t, ok)
}

func TestSwingStopRespectsLookback(t *testing.T) {
	bars := barsAround(100, 90, 101, 102, 103)

	// Full window sees the deep low at 89.9.
	stop, ok := swingStop(risk.DirectionLong, 103.0, bars, 10)
	require.True(t, ok)
	assert.Equal(t, 89.9, stop)

	// A 3-bar window trims the outlier away.
	stop, ok = swingStop(risk.DirectionLong, 103.0, bars, 3)
	require.True(t, ok)
	assert.Equal(t, 100.9, stop)

	stop, ok = swingStop(risk.DirectionShort, 100.0, bars, 3)
	require.True(t, ok)
	assert.Equal(t, 103.1, stop)
}
