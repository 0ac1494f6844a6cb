// Package risk turns an analysis signal into a risk-managed execution plan:
// position size from fixed-fractional or Kelly sizing, partial exit ladders,
// an optional trailing stop, and daily-loss accounting that can veto or shrink
// new trades.
package risk

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
)

// Direction is the side of a planned trade.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// ExecutionPlan is the assembled trade plan. For a long plan
// stop < entry < takeProfit; for a short plan the ordering inverts.
// RiskAmount never exceeds balance x maxRiskPercent.
type ExecutionPlan struct {
	Direction    Direction     `json:"direction"`
	EntryPrice   float64       `json:"entryPrice"`
	StopLoss     float64       `json:"stopLoss"`
	TakeProfit   float64       `json:"takeProfit"`
	PositionSize float64       `json:"positionSize"`
	RiskAmount   float64       `json:"riskAmount"`
	RewardAmount float64       `json:"rewardAmount"`
	RRRatio      float64       `json:"rrRatio"`
	PartialExits []PartialExit `json:"partialExits"`
	TrailingStop *TrailingStop `json:"trailingStop,omitempty"`
	SizingMode   SizingMode    `json:"sizingMode"`
	Warnings     []string      `json:"warnings,omitempty"`
}

// TrailingStop is the activation level and follow distance in price terms.
// Once price reaches Activation the stop trails Distance behind.
type TrailingStop struct {
	Activation float64 `json:"activation"`
	Distance   float64 `json:"distance"`
}

// PlanRequest carries the trade parameters the engine sizes against. Stats
// feeds Kelly sizing and may be nil, which forces the fixed fallback.
type PlanRequest struct {
	Direction  Direction
	Entry      float64
	Stop       float64
	TakeProfit float64
	Balance    float64
	Stats      *TradingStats
}

// Config tunes the engine. Zero values take the documented defaults.
type Config struct {
	Sizing             SizingMode      `mapstructure:"sizing"`               // fixed | kelly
	MaxRiskPercent     float64         `mapstructure:"max_risk_percent"`     // % of balance risked per trade (default 1)
	MaxPositionPercent float64         `mapstructure:"max_position_percent"` // % of balance in position value (default 100)
	LotSize            float64         `mapstructure:"lot_size"`             // size granularity, rounded down (default 1)
	KellyFraction      float64         `mapstructure:"kelly_fraction"`       // safety multiplier on raw Kelly (default 0.25)
	Exits              ExitConfig      `mapstructure:"exits"`
	Trailing           TrailingConfig  `mapstructure:"trailing"`
	DailyStop          DailyStopConfig `mapstructure:"daily_stop"`
}

// DefaultConfig returns the standard tuning: fixed 1% risk, full position
// cap, whole-unit lots, quarter Kelly and a three-step R-multiple ladder.
func DefaultConfig() Config {
	return Config{
		Sizing:             SizingFixed,
		MaxRiskPercent:     1.0,
		MaxPositionPercent: 100.0,
		LotSize:            1.0,
		KellyFraction:      DefaultKellyFraction,
		Exits:              DefaultExitConfig(),
		Trailing:           TrailingConfig{},
		DailyStop:          DefaultDailyStopConfig(),
	}
}

func (c *Config) applyDefaults() {
	if c.Sizing == "" {
		c.Sizing = SizingFixed
	}
	if c.MaxRiskPercent <= 0 {
		c.MaxRiskPercent = 1.0
	}
	if c.MaxPositionPercent <= 0 {
		c.MaxPositionPercent = 100.0
	}
	if c.LotSize <= 0 {
		c.LotSize = 1.0
	}
	if c.KellyFraction <= 0 {
		c.KellyFraction = DefaultKellyFraction
	}
	c.Exits.applyDefaults()
}

// Engine builds execution plans. The optional tracker adds daily-loss
// accounting: plans shrink to the remaining capacity and zero out once the
// day's limit is hit.
type Engine struct {
	cfg     Config
	tracker *DailyStopTracker
}

// NewEngine validates the configuration and returns a ready engine.
// tracker may be nil when daily-stop accounting is handled elsewhere.
func NewEngine(cfg Config, tracker *DailyStopTracker) (*Engine, error) {
	cfg.applyDefaults()
	if cfg.Sizing != SizingFixed && cfg.Sizing != SizingKelly {
		return nil, market.NewValidationError(market.CodeInvalidArgs,
			fmt.Sprintf("unknown sizing mode %q", cfg.Sizing))
	}
	if cfg.MaxRiskPercent > 100 {
		return nil, market.NewValidationError(market.CodeInvalidArgs, "maxRiskPercent above 100")
	}
	if cfg.KellyFraction > 1 {
		return nil, market.NewValidationError(market.CodeInvalidArgs, "kellyFraction above 1")
	}
	if err := cfg.Exits.validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, tracker: tracker}, nil
}

// Tracker exposes the daily stop tracker, if one is attached.
func (e *Engine) Tracker() *DailyStopTracker { return e.tracker }

// BuildPlan sizes the trade and assembles the full plan. Geometry violations
// (stop on the wrong side, zero risk) are validation errors; degraded sizing
// paths (Kelly fallback, daily-stop clamping) succeed with warnings.
func (e *Engine) BuildPlan(req PlanRequest) (*ExecutionPlan, error) {
	if err := validateGeometry(req); err != nil {
		return nil, err
	}

	riskPerUnit := math.Abs(req.Entry - req.Stop)
	rewardPerUnit := math.Abs(req.TakeProfit - req.Entry)

	size, warnings := e.size(req, riskPerUnit)

	if e.tracker != nil {
		var clampWarnings []string
		size, clampWarnings = e.clampToDailyCapacity(req, size, riskPerUnit)
		warnings = append(warnings, clampWarnings...)
	}

	plan := &ExecutionPlan{
		Direction:    req.Direction,
		EntryPrice:   req.Entry,
		StopLoss:     req.Stop,
		TakeProfit:   req.TakeProfit,
		PositionSize: size,
		RiskAmount:   size * riskPerUnit,
		RewardAmount: size * rewardPerUnit,
		RRRatio:      rewardPerUnit / riskPerUnit,
		SizingMode:   e.cfg.Sizing,
		Warnings:     warnings,
	}

	exits, err := BuildPartialExits(e.cfg.Exits, req.Direction, req.Entry, riskPerUnit)
	if err != nil {
		return nil, err
	}
	plan.PartialExits = exits

	if e.cfg.Trailing.Enabled() {
		plan.TrailingStop = e.cfg.Trailing.Materialize(req.Direction, req.Entry, riskPerUnit)
	}

	log.Debug().
		Str("direction", string(req.Direction)).
		Float64("entry", req.Entry).
		Float64("stop", req.Stop).
		Float64("size", plan.PositionSize).
		Float64("risk", plan.RiskAmount).
		Float64("rr", plan.RRRatio).
		Str("sizing", string(e.cfg.Sizing)).
		Msg("Execution plan built")

	return plan, nil
}

// size runs the configured sizing mode. Kelly degrades to fixed when the
// stats cannot support it, and the stricter of the two results wins when both
// are available.
func (e *Engine) size(req PlanRequest, riskPerUnit float64) (float64, []string) {
	fixed := e.fixedSize(req.Balance, req.Entry, riskPerUnit)
	if e.cfg.Sizing != SizingKelly {
		return fixed, nil
	}

	kelly, warn, ok := e.kellySize(req.Balance, req.Entry, req.Stats)
	var warnings []string
	if warn != "" {
		warnings = append(warnings, warn)
	}
	if !ok {
		return fixed, warnings
	}
	// Kelly never overrides the fixed-risk ceiling; the stricter size wins.
	if kelly < fixed {
		return kelly, warnings
	}
	return fixed, warnings
}

// clampToDailyCapacity shrinks the position so its risk fits the day's
// remaining loss capacity. A day at its limit zeroes the plan.
func (e *Engine) clampToDailyCapacity(req PlanRequest, size, riskPerUnit float64) (float64, []string) {
	state := e.tracker.State(req.Balance, 0)
	riskAmount := size * riskPerUnit

	if e.tracker.CanTakeNewTrade(state, riskAmount) {
		return size, nil
	}
	if state.IsLimitReached {
		return 0, []string{fmt.Sprintf("daily loss limit reached for %s; no new trades", state.Date)}
	}

	clamped := roundToLot(state.RemainingCapacity/riskPerUnit, e.cfg.LotSize)
	if clamped <= 0 {
		return 0, []string{fmt.Sprintf("remaining daily capacity %.2f cannot fit one lot", state.RemainingCapacity)}
	}
	return clamped, []string{fmt.Sprintf(
		"position reduced from %.4g to %.4g units to fit remaining daily capacity %.2f",
		size, clamped, state.RemainingCapacity)}
}

// validateGeometry enforces the plan ordering invariants.
func validateGeometry(req PlanRequest) error {
	if req.Balance <= 0 {
		return market.NewValidationError(market.CodeInvalidArgs, "balance must be positive")
	}
	for name, v := range map[string]float64{
		"entry": req.Entry, "stop": req.Stop, "takeProfit": req.TakeProfit,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return market.NewValidationError(market.CodeInvalidArgs,
				fmt.Sprintf("%s must be a positive finite price", name))
		}
	}

	switch req.Direction {
	case DirectionLong:
		if !(req.Stop < req.Entry && req.Entry < req.TakeProfit) {
			return market.NewValidationError(market.CodeInvalidArgs,
				"long plan requires stop < entry < takeProfit")
		}
	case DirectionShort:
		if !(req.Stop > req.Entry && req.Entry > req.TakeProfit) {
			return market.NewValidationError(market.CodeInvalidArgs,
				"short plan requires stop > entry > takeProfit")
		}
	default:
		return market.NewValidationError(market.CodeInvalidArgs,
			fmt.Sprintf("unknown direction %q", req.Direction))
	}
	return nil
}

// roundToLot floors size to the lot granularity.
func roundToLot(size, lot float64) float64 {
	if lot <= 0 {
		return math.Floor(size)
	}
	return math.Floor(size/lot) * lot
}
