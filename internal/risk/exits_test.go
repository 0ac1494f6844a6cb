package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
)

func TestBuildPartialExitsRMultiple(t *testing.T) {
	exits, err := BuildPartialExits(DefaultExitConfig(), DirectionLong, 100, 2)
	require.NoError(t, err)
	require.Len(t, exits, 3)

	assert.InDelta(t, 102.0, exits[0].Price, 1e-9)
	assert.InDelta(t, 104.0, exits[1].Price, 1e-9)
	assert.InDelta(t, 106.0, exits[2].Price, 1e-9)

	assert.Equal(t, 50.0, exits[0].ExitPercent)
	assert.Equal(t, 30.0, exits[1].ExitPercent)
	assert.Equal(t, 20.0, exits[2].ExitPercent)

	assert.Equal(t, 50.0, exits[0].CumulativePercent)
	assert.Equal(t, 80.0, exits[1].CumulativePercent)
	assert.Equal(t, 100.0, exits[2].CumulativePercent)

	assert.InDelta(t, 1.0, exits[0].RMultiple, 1e-9)
	assert.InDelta(t, 3.0, exits[2].RMultiple, 1e-9)
}

func TestBuildPartialExitsShortSortsDescending(t *testing.T) {
	exits, err := BuildPartialExits(DefaultExitConfig(), DirectionShort, 100, 2)
	require.NoError(t, err)
	require.Len(t, exits, 3)

	assert.InDelta(t, 98.0, exits[0].Price, 1e-9)
	assert.InDelta(t, 96.0, exits[1].Price, 1e-9)
	assert.InDelta(t, 94.0, exits[2].Price, 1e-9)
	assert.Equal(t, 100.0, exits[2].CumulativePercent)
}

func TestBuildPartialExitsPercentage(t *testing.T) {
	cfg := ExitConfig{Strategy: ExitPercentage}
	exits, err := BuildPartialExits(cfg, DirectionLong, 200, 4)
	require.NoError(t, err)
	require.Len(t, exits, 3)

	// 1% of 200 = 2 points = 0.5R against a 4-point risk.
	assert.InDelta(t, 202.0, exits[0].Price, 1e-9)
	assert.InDelta(t, 0.5, exits[0].RMultiple, 1e-9)
	assert.InDelta(t, 206.0, exits[2].Price, 1e-9)
	assert.InDelta(t, 1.5, exits[2].RMultiple, 1e-9)
}

func TestBuildPartialExitsFibonacci(t *testing.T) {
	cfg := ExitConfig{Strategy: ExitFibonacci}
	exits, err := BuildPartialExits(cfg, DirectionLong, 100, 10)
	require.NoError(t, err)
	require.Len(t, exits, 4)

	assert.InDelta(t, 106.18, exits[0].Price, 1e-9)
	assert.InDelta(t, 110.0, exits[1].Price, 1e-9)
	assert.InDelta(t, 116.18, exits[2].Price, 1e-9)
	assert.InDelta(t, 126.18, exits[3].Price, 1e-9)
	for _, e := range exits {
		assert.Equal(t, 25.0, e.ExitPercent)
	}
	assert.Equal(t, 100.0, exits[3].CumulativePercent)
}

func TestBuildPartialExitsCustom(t *testing.T) {
	cfg := ExitConfig{
		Strategy: ExitCustom,
		Levels:   []ExitLevel{{Trigger: 1, ExitPercent: 40}, {Trigger: 2.5, ExitPercent: 60}},
	}
	exits, err := BuildPartialExits(cfg, DirectionLong, 50, 1)
	require.NoError(t, err)
	require.Len(t, exits, 2)
	assert.InDelta(t, 51.0, exits[0].Price, 1e-9)
	assert.InDelta(t, 52.5, exits[1].Price, 1e-9)
	assert.Equal(t, 100.0, exits[1].CumulativePercent)
}

func TestBuildPartialExitsRejectsBadPercents(t *testing.T) {
	cfg := ExitConfig{
		Strategy: ExitCustom,
		Levels:   []ExitLevel{{Trigger: 1, ExitPercent: 50}, {Trigger: 2, ExitPercent: 49}},
	}
	_, err := BuildPartialExits(cfg, DirectionLong, 100, 2)
	require.Error(t, err)
	assert.Equal(t, market.KindValidation, market.KindOf(err))

	cfg.Levels = []ExitLevel{{Trigger: 1, ExitPercent: -10}, {Trigger: 2, ExitPercent: 110}}
	_, err = BuildPartialExits(cfg, DirectionLong, 100, 2)
	require.Error(t, err)

	cfg.Levels = []ExitLevel{{Trigger: 0, ExitPercent: 100}}
	_, err = BuildPartialExits(cfg, DirectionLong, 100, 2)
	require.Error(t, err)
}

func TestBuildPartialExitsResidualToLast(t *testing.T) {
	cfg := ExitConfig{
		Strategy: ExitCustom,
		Levels: []ExitLevel{
			{Trigger: 1, ExitPercent: 33.33},
			{Trigger: 2, ExitPercent: 33.33},
			{Trigger: 3, ExitPercent: 33.335},
		},
	}
	exits, err := BuildPartialExits(cfg, DirectionLong, 100, 2)
	require.NoError(t, err)
	require.Len(t, exits, 3)

	// Sum was 99.995; the residual folds into the last rung.
	assert.Equal(t, 100.0, exits[2].CumulativePercent)
	assert.InDelta(t, 33.34, exits[2].ExitPercent, 1e-6)
}

func TestTrailingConfig(t *testing.T) {
	assert.False(t, TrailingConfig{}.Enabled())
	assert.False(t, TrailingConfig{ActivateR: 1}.Enabled())

	tc := TrailingConfig{ActivateR: 2, DistanceR: 1}
	require.True(t, tc.Enabled())

	long := tc.Materialize(DirectionLong, 100, 3)
	assert.InDelta(t, 106.0, long.Activation, 1e-9)
	assert.InDelta(t, 3.0, long.Distance, 1e-9)

	short := tc.Materialize(DirectionShort, 100, 3)
	assert.InDelta(t, 94.0, short.Activation, 1e-9)
	assert.InDelta(t, 3.0, short.Distance, 1e-9)
}
