package risk

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTrackerAt(t *testing.T, cfg DailyStopConfig, now time.Time) *DailyStopTracker {
	t.Helper()
	tracker, err := NewDailyStopTracker(cfg)
	require.NoError(t, err)
	tracker.now = func() time.Time { return now }
	return tracker
}

func TestDailyStopLimitReached(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2024, 6, 3, 14, 30, 0, 0, loc)

	tracker := newTrackerAt(t, DailyStopConfig{MaxLossPercent: 3, Timezone: "America/New_York"}, now)
	tracker.RecordTrade(TradeRecord{Symbol: "SPY", PnL: -150, ClosedAt: now.Add(-3 * time.Hour)})
	tracker.RecordTrade(TradeRecord{Symbol: "SPY", PnL: -160, ClosedAt: now.Add(-1 * time.Hour)})

	state := tracker.State(10000, 0)
	assert.Equal(t, "2024-06-03", state.Date)
	assert.InDelta(t, 310.0, state.RealizedLoss, 1e-9)
	assert.InDelta(t, 300.0, state.MaxDailyLoss, 1e-9)
	assert.True(t, state.IsLimitReached)
	assert.Zero(t, state.RemainingCapacity)
	assert.False(t, state.CanTakeNewTrade(50))

	wantReset := time.Date(2024, 6, 4, 0, 0, 0, 0, loc)
	assert.True(t, state.ResetTime.Equal(wantReset), "reset at next local midnight")
}

func TestDailyStopCapacity(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	now := time.Date(2024, 6, 3, 14, 30, 0, 0, loc)

	tracker := newTrackerAt(t, DailyStopConfig{MaxLossPercent: 3, Timezone: "America/New_York"}, now)
	tracker.RecordTrade(TradeRecord{Symbol: "ES", PnL: -100, ClosedAt: now.Add(-2 * time.Hour)})
	tracker.RecordTrade(TradeRecord{Symbol: "ES", PnL: 80, ClosedAt: now.Add(-1 * time.Hour)})

	// Wins do not refill the loss bucket; they only break streaks.
	state := tracker.State(10000, 50)
	assert.InDelta(t, 100.0, state.RealizedLoss, 1e-9)
	assert.InDelta(t, 50.0, state.OpenRisk, 1e-9)
	assert.InDelta(t, 150.0, state.RemainingCapacity, 1e-9)
	assert.False(t, state.IsLimitReached)
	assert.Zero(t, state.ConsecutiveLosses)
	assert.True(t, state.CanTakeNewTrade(150))
	assert.False(t, state.CanTakeNewTrade(150.01))
}

func TestDailyStopIncludeFees(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	now := time.Date(2024, 6, 3, 14, 30, 0, 0, loc)

	cfg := DailyStopConfig{MaxLossPercent: 3, IncludeFees: true, Timezone: "America/New_York"}
	tracker := newTrackerAt(t, cfg, now)
	tracker.RecordTrade(TradeRecord{PnL: -100, Fees: 10, ClosedAt: now.Add(-2 * time.Hour)})
	tracker.RecordTrade(TradeRecord{PnL: 50, Fees: 5, ClosedAt: now.Add(-1 * time.Hour)})

	state := tracker.State(10000, 0)
	assert.InDelta(t, 115.0, state.RealizedLoss, 1e-9)
}

func TestDailyStopConsecutiveLosses(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	now := time.Date(2024, 6, 3, 14, 30, 0, 0, loc)

	cfg := DailyStopConfig{MaxLossPercent: 3, MaxConsecutiveLosses: 3, Timezone: "America/New_York"}
	tracker := newTrackerAt(t, cfg, now)
	// Tiny losses: far from the loss budget on a 100k account.
	tracker.RecordTrade(TradeRecord{PnL: -10, ClosedAt: now.Add(-4 * time.Hour)})
	tracker.RecordTrade(TradeRecord{PnL: -10, ClosedAt: now.Add(-3 * time.Hour)})
	tracker.RecordTrade(TradeRecord{PnL: -10, ClosedAt: now.Add(-2 * time.Hour)})

	state := tracker.State(100000, 0)
	assert.Equal(t, 3, state.ConsecutiveLosses)
	assert.True(t, state.IsLimitReached)
	assert.Zero(t, state.RemainingCapacity, "limit and capacity stay consistent")
	assert.False(t, state.CanTakeNewTrade(1))
}

func TestDailyStopWinBreaksStreak(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	now := time.Date(2024, 6, 3, 14, 30, 0, 0, loc)

	cfg := DailyStopConfig{MaxLossPercent: 3, MaxConsecutiveLosses: 3, Timezone: "America/New_York"}
	tracker := newTrackerAt(t, cfg, now)
	tracker.RecordTrade(TradeRecord{PnL: -10, ClosedAt: now.Add(-4 * time.Hour)})
	tracker.RecordTrade(TradeRecord{PnL: -10, ClosedAt: now.Add(-3 * time.Hour)})
	tracker.RecordTrade(TradeRecord{PnL: 5, ClosedAt: now.Add(-2 * time.Hour)})
	tracker.RecordTrade(TradeRecord{PnL: -10, ClosedAt: now.Add(-1 * time.Hour)})

	state := tracker.State(100000, 0)
	assert.Equal(t, 1, state.ConsecutiveLosses)
	assert.False(t, state.IsLimitReached)
}

func TestDailyStopTimezoneBucketing(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	now := time.Date(2024, 6, 3, 23, 0, 0, 0, loc)

	tracker := newTrackerAt(t, DailyStopConfig{MaxLossPercent: 3, Timezone: "America/New_York"}, now)
	// 01:00 UTC June 4 is still June 3 in New York.
	tracker.RecordTrade(TradeRecord{PnL: -200, ClosedAt: time.Date(2024, 6, 4, 1, 0, 0, 0, time.UTC)})
	// Noon UTC June 2 belongs to the previous account day.
	tracker.RecordTrade(TradeRecord{PnL: -500, ClosedAt: time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC)})

	state := tracker.State(10000, 0)
	assert.Equal(t, "2024-06-03", state.Date)
	assert.InDelta(t, 200.0, state.RealizedLoss, 1e-9)
}

func TestDailyStopAbsoluteCap(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	now := time.Date(2024, 6, 3, 14, 30, 0, 0, loc)

	cfg := DailyStopConfig{MaxLossPercent: 3, MaxLossAmount: 200, Timezone: "America/New_York"}
	tracker := newTrackerAt(t, cfg, now)

	// min(3% of 10000, 200) = 200.
	state := tracker.State(10000, 0)
	assert.InDelta(t, 200.0, state.MaxDailyLoss, 1e-9)
	assert.InDelta(t, 200.0, state.RemainingCapacity, 1e-9)
}

func TestDailyStopConcurrentAccess(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	now := time.Date(2024, 6, 3, 14, 30, 0, 0, loc)
	tracker := newTrackerAt(t, DailyStopConfig{MaxLossPercent: 3, Timezone: "America/New_York"}, now)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				tracker.RecordTrade(TradeRecord{PnL: -1, ClosedAt: now.Add(-time.Minute)})
				_ = tracker.State(10000, 0)
			}
		}()
	}
	wg.Wait()

	state := tracker.State(10000, 0)
	assert.InDelta(t, 200.0, state.RealizedLoss, 1e-9)
}

func TestNewDailyStopTrackerValidation(t *testing.T) {
	_, err := NewDailyStopTracker(DailyStopConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)

	_, err = NewDailyStopTracker(DailyStopConfig{MaxLossPercent: 150})
	require.Error(t, err)

	_, err = NewDailyStopTracker(DailyStopConfig{MaxLossAmount: -5})
	require.Error(t, err)

	tracker, err := NewDailyStopTracker(DailyStopConfig{})
	require.NoError(t, err)
	assert.Equal(t, 3.0, tracker.cfg.MaxLossPercent)
	assert.Equal(t, "America/New_York", tracker.cfg.Timezone)
}
