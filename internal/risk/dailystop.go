package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
)

// DailyStopConfig tunes daily loss accounting. MaxLossAmount of zero means
// no absolute cap; MaxConsecutiveLosses of zero means unlimited.
type DailyStopConfig struct {
	MaxLossPercent       float64 `mapstructure:"max_loss_percent"`
	MaxLossAmount        float64 `mapstructure:"max_loss_amount"`
	MaxConsecutiveLosses int     `mapstructure:"max_consecutive_losses"`
	IncludeFees          bool    `mapstructure:"include_fees"`
	Timezone             string  `mapstructure:"timezone"`
}

// DefaultDailyStopConfig allows a 3% daily drawdown in New York time.
func DefaultDailyStopConfig() DailyStopConfig {
	return DailyStopConfig{
		MaxLossPercent: 3.0,
		Timezone:       "America/New_York",
	}
}

// TradeRecord is one closed trade fed into daily accounting. Fees count
// against capacity only when the tracker is configured with IncludeFees.
type TradeRecord struct {
	Symbol   string    `json:"symbol"`
	PnL      float64   `json:"pnl"`
	Fees     float64   `json:"fees"`
	ClosedAt time.Time `json:"closedAt"`
}

// DailyStopState is a snapshot of one account day. RemainingCapacity is zero
// exactly when IsLimitReached is true, including when the consecutive-loss
// limit trips before the loss budget is spent.
type DailyStopState struct {
	Date              string    `json:"date"`
	RealizedLoss      float64   `json:"realizedLoss"`
	OpenRisk          float64   `json:"openRisk"`
	MaxDailyLoss      float64   `json:"maxDailyLoss"`
	RemainingCapacity float64   `json:"remainingCapacity"`
	IsLimitReached    bool      `json:"isLimitReached"`
	ConsecutiveLosses int       `json:"consecutiveLosses"`
	ResetTime         time.Time `json:"resetTime"`
}

// CanTakeNewTrade reports whether a trade risking newRisk fits the day.
func (s DailyStopState) CanTakeNewTrade(newRisk float64) bool {
	return !s.IsLimitReached && newRisk <= s.RemainingCapacity
}

// DailyStopTracker accumulates closed trades and answers capacity questions
// for the current account day. Safe for concurrent use.
type DailyStopTracker struct {
	mu     sync.Mutex
	cfg    DailyStopConfig
	loc    *time.Location
	trades []TradeRecord
	now    func() time.Time
}

// NewDailyStopTracker validates the configuration and resolves the account
// timezone.
func NewDailyStopTracker(cfg DailyStopConfig) (*DailyStopTracker, error) {
	if cfg.MaxLossPercent <= 0 {
		cfg.MaxLossPercent = 3.0
	}
	if cfg.MaxLossPercent > 100 {
		return nil, market.NewValidationError(market.CodeInvalidArgs, "maxLossPercent above 100")
	}
	if cfg.MaxLossAmount < 0 {
		return nil, market.NewValidationError(market.CodeInvalidArgs, "maxLossAmount must not be negative")
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "America/New_York"
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, market.NewConfigurationError(
			fmt.Sprintf("unknown account timezone %q", cfg.Timezone)).WithCause(err)
	}
	return &DailyStopTracker{
		cfg: cfg,
		loc: loc,
		now: time.Now,
	}, nil
}

// RecordTrade appends a closed trade. Records older than two account days
// are swept on the way in.
func (t *DailyStopTracker) RecordTrade(rec TradeRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-48 * time.Hour)
	kept := t.trades[:0]
	for _, old := range t.trades {
		if old.ClosedAt.After(cutoff) {
			kept = append(kept, old)
		}
	}
	t.trades = append(kept, rec)

	log.Debug().
		Str("symbol", rec.Symbol).
		Float64("pnl", rec.PnL).
		Float64("fees", rec.Fees).
		Time("closed_at", rec.ClosedAt).
		Msg("Trade recorded for daily accounting")
}

// State computes the current account day's snapshot against the given
// balance and aggregate open-position risk.
func (t *DailyStopTracker) State(balance, openRisk float64) DailyStopState {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().In(t.loc)
	date := now.Format("2006-01-02")

	var realizedLoss float64
	consecutive := 0
	for _, rec := range t.trades {
		if rec.ClosedAt.In(t.loc).Format("2006-01-02") != date {
			continue
		}
		if rec.PnL < 0 {
			realizedLoss += -rec.PnL
			consecutive++
		} else {
			consecutive = 0
		}
		if t.cfg.IncludeFees {
			realizedLoss += rec.Fees
		}
	}

	maxDailyLoss := balance * t.cfg.MaxLossPercent / 100
	if t.cfg.MaxLossAmount > 0 && t.cfg.MaxLossAmount < maxDailyLoss {
		maxDailyLoss = t.cfg.MaxLossAmount
	}

	totalRisk := realizedLoss + openRisk
	remaining := maxDailyLoss - totalRisk
	if remaining < 0 {
		remaining = 0
	}
	limitReached := totalRisk >= maxDailyLoss
	if t.cfg.MaxConsecutiveLosses > 0 && consecutive >= t.cfg.MaxConsecutiveLosses {
		limitReached = true
		remaining = 0
	}

	return DailyStopState{
		Date:              date,
		RealizedLoss:      realizedLoss,
		OpenRisk:          openRisk,
		MaxDailyLoss:      maxDailyLoss,
		RemainingCapacity: remaining,
		IsLimitReached:    limitReached,
		ConsecutiveLosses: consecutive,
		ResetTime:         nextLocalMidnight(now),
	}
}

// CanTakeNewTrade is a convenience wrapper over the state method.
func (t *DailyStopTracker) CanTakeNewTrade(state DailyStopState, newRisk float64) bool {
	return state.CanTakeNewTrade(newRisk)
}

// nextLocalMidnight returns 00:00 of the following day in now's location.
func nextLocalMidnight(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
}
