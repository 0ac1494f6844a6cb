package risk

import (
	"fmt"
	"math"
)

// SizingMode selects the position sizing formula.
type SizingMode string

const (
	SizingFixed SizingMode = "fixed"
	SizingKelly SizingMode = "kelly"
)

const (
	// DefaultKellyFraction applies quarter-Kelly for drawdown control.
	DefaultKellyFraction = 0.25
	// MaxKellyRisk caps the effective Kelly fraction at 25% of balance
	// regardless of how aggressive the raw criterion comes out.
	MaxKellyRisk = 0.25
	// MinKellyRisk floors the effective fraction so a valid history always
	// produces some position.
	MinKellyRisk = 0.01
)

// TradingStats summarizes closed-trade history for Kelly sizing.
type TradingStats struct {
	TotalTrades   int     `json:"totalTrades"`
	WinningTrades int     `json:"winningTrades"`
	LosingTrades  int     `json:"losingTrades"`
	AvgWin        float64 `json:"avgWin"`  // average winning trade P&L, positive
	AvgLoss       float64 `json:"avgLoss"` // average losing trade P&L, positive magnitude
}

// WinRate returns the fraction of winning trades, zero when no history.
func (s *TradingStats) WinRate() float64 {
	if s == nil || s.TotalTrades == 0 {
		return 0
	}
	return float64(s.WinningTrades) / float64(s.TotalTrades)
}

// WinLossRatio returns avgWin/avgLoss, zero when undefined.
func (s *TradingStats) WinLossRatio() float64 {
	if s == nil || s.AvgLoss == 0 {
		return 0
	}
	return s.AvgWin / s.AvgLoss
}

// fixedSize implements fixed-fractional sizing:
//
//	shares = floor((balance * maxRiskPercent/100) / riskPerUnit)
//
// capped so shares*entry stays within balance * maxPositionPercent/100, and
// floored to the lot granularity.
func (e *Engine) fixedSize(balance, entry, riskPerUnit float64) float64 {
	riskBudget := balance * e.cfg.MaxRiskPercent / 100
	size := riskBudget / riskPerUnit

	maxValue := balance * e.cfg.MaxPositionPercent / 100
	if size*entry > maxValue {
		size = maxValue / entry
	}
	return roundToLot(size, e.cfg.LotSize)
}

// kellySize implements fractional Kelly sizing:
//
//	f* = (p*b - (1-p)) / b
//
// where p is the win rate and b the win/loss ratio. f* is scaled by
// KellyFraction and clamped to [MinKellyRisk, MaxKellyRisk]; the resulting
// fraction of balance becomes position value. A negative f* (no edge) keeps
// the floor rather than zeroing the trade. ok=false signals the stats cannot
// support Kelly at all and the caller must use fixed sizing; warn carries
// the reason either way.
func (e *Engine) kellySize(balance, entry float64, stats *TradingStats) (size float64, warn string, ok bool) {
	if stats == nil || stats.TotalTrades == 0 {
		return 0, "kelly sizing requested without trade history; using fixed sizing", false
	}
	p := stats.WinRate()
	b := stats.WinLossRatio()
	if p <= 0 || p >= 1 || b <= 0 {
		return 0, fmt.Sprintf(
			"kelly inputs out of range (winRate=%.3f winLossRatio=%.3f); using fixed sizing", p, b), false
	}

	f := (p*b - (1 - p)) / b
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, "kelly fraction not finite; using fixed sizing", false
	}
	if f <= 0 {
		warn = fmt.Sprintf("kelly fraction %.4f indicates no edge; using minimal %.0f%% position", f, MinKellyRisk*100)
		f = MinKellyRisk
	} else {
		f *= e.cfg.KellyFraction
		if f > MaxKellyRisk {
			f = MaxKellyRisk
		}
		if f < MinKellyRisk {
			f = MinKellyRisk
		}
	}

	size = balance * f / entry

	maxValue := balance * e.cfg.MaxPositionPercent / 100
	if size*entry > maxValue {
		size = maxValue / entry
	}
	return roundToLot(size, e.cfg.LotSize), warn, true
}
