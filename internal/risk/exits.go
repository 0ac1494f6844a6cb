package risk

import (
	"fmt"
	"math"
	"sort"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
)

// ExitStrategy names a partial exit ladder scheme.
type ExitStrategy string

const (
	ExitRMultiple  ExitStrategy = "r-multiple"
	ExitPercentage ExitStrategy = "percentage"
	ExitFibonacci  ExitStrategy = "fibonacci"
	ExitCustom     ExitStrategy = "custom"
)

// exitPercentTolerance bounds how far a ladder's percents may drift from 100
// before it is rejected; anything inside gets folded into the last level.
const exitPercentTolerance = 0.01

// ExitLevel is one rung of a ladder before price materialization. Trigger is
// in R multiples for r-multiple, fibonacci and custom ladders, and in percent
// move from entry for percentage ladders.
type ExitLevel struct {
	Trigger     float64 `json:"trigger" mapstructure:"trigger"`
	ExitPercent float64 `json:"exitPercent" mapstructure:"exit_percent"`
}

// ExitConfig selects a ladder strategy. Levels applies to custom ladders;
// the named strategies carry their own defaults.
type ExitConfig struct {
	Strategy ExitStrategy `mapstructure:"strategy"`
	Levels   []ExitLevel  `mapstructure:"levels"`
}

// DefaultExitConfig scales out 50/30/20 at 1R, 2R and 3R.
func DefaultExitConfig() ExitConfig {
	return ExitConfig{Strategy: ExitRMultiple}
}

func (c *ExitConfig) applyDefaults() {
	if c.Strategy == "" {
		c.Strategy = ExitRMultiple
	}
}

func (c *ExitConfig) validate() error {
	switch c.Strategy {
	case ExitRMultiple, ExitPercentage, ExitFibonacci:
		return nil
	case ExitCustom:
		if len(c.Levels) == 0 {
			return market.NewValidationError(market.CodeInvalidArgs,
				"custom exit strategy requires at least one level")
		}
		return nil
	default:
		return market.NewValidationError(market.CodeInvalidArgs,
			fmt.Sprintf("unknown exit strategy %q", c.Strategy))
	}
}

// PartialExit is a materialized ladder rung. The list a plan carries is
// sorted by price in the profit direction and CumulativePercent reaches 100
// at the last rung.
type PartialExit struct {
	Price             float64 `json:"price"`
	ExitPercent       float64 `json:"exitPercent"`
	CumulativePercent float64 `json:"cumulativePercent"`
	RMultiple         float64 `json:"rMultiple"`
}

// ladderFor returns the raw levels for the configured strategy.
func ladderFor(cfg ExitConfig) []ExitLevel {
	switch cfg.Strategy {
	case ExitPercentage:
		// percent moves from entry
		return []ExitLevel{{1, 50}, {2, 30}, {3, 20}}
	case ExitFibonacci:
		// fib extensions of the initial risk
		return []ExitLevel{{0.618, 25}, {1.0, 25}, {1.618, 25}, {2.618, 25}}
	case ExitCustom:
		return cfg.Levels
	default: // r-multiple
		return []ExitLevel{{1, 50}, {2, 30}, {3, 20}}
	}
}

// BuildPartialExits materializes the ladder into exit prices for the given
// entry and per-unit risk. Percents must sum to 100 within tolerance; the
// rounding residual lands on the last rung so the cumulative column closes at
// exactly 100.
func BuildPartialExits(cfg ExitConfig, dir Direction, entry, riskPerUnit float64) ([]PartialExit, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	levels := ladderFor(cfg)

	var sum float64
	for _, lvl := range levels {
		if lvl.ExitPercent <= 0 {
			return nil, market.NewValidationError(market.CodeInvalidArgs,
				"exit level percents must be positive")
		}
		if lvl.Trigger <= 0 {
			return nil, market.NewValidationError(market.CodeInvalidArgs,
				"exit level triggers must be positive")
		}
		sum += lvl.ExitPercent
	}
	if math.Abs(sum-100) > exitPercentTolerance {
		return nil, market.NewValidationError(market.CodeInvalidArgs,
			fmt.Sprintf("exit percents sum to %.4f, expected 100", sum))
	}

	exits := make([]PartialExit, 0, len(levels))
	for _, lvl := range levels {
		var price, r float64
		if cfg.Strategy == ExitPercentage {
			move := entry * lvl.Trigger / 100
			price = offsetInProfit(dir, entry, move)
			r = move / riskPerUnit
		} else {
			price = offsetInProfit(dir, entry, lvl.Trigger*riskPerUnit)
			r = lvl.Trigger
		}
		exits = append(exits, PartialExit{
			Price:       price,
			ExitPercent: lvl.ExitPercent,
			RMultiple:   r,
		})
	}

	// Profit direction: ascending prices for longs, descending for shorts.
	sort.Slice(exits, func(i, j int) bool {
		if dir == DirectionShort {
			return exits[i].Price > exits[j].Price
		}
		return exits[i].Price < exits[j].Price
	})

	cumulative := 0.0
	for i := range exits {
		cumulative += exits[i].ExitPercent
		exits[i].CumulativePercent = cumulative
	}
	// Fold the tolerance residual into the last rung.
	if n := len(exits); n > 0 && exits[n-1].CumulativePercent != 100 {
		residual := 100 - exits[n-1].CumulativePercent
		exits[n-1].ExitPercent += residual
		exits[n-1].CumulativePercent = 100
	}
	return exits, nil
}

func offsetInProfit(dir Direction, entry, move float64) float64 {
	if dir == DirectionShort {
		return entry - move
	}
	return entry + move
}

// TrailingConfig describes a trailing stop in R units. Zero values disable
// trailing.
type TrailingConfig struct {
	ActivateR float64 `mapstructure:"activate_r"` // profit distance that arms the trail
	DistanceR float64 `mapstructure:"distance_r"` // follow distance once armed
}

// Enabled reports whether both trailing parameters are set.
func (t TrailingConfig) Enabled() bool { return t.ActivateR > 0 && t.DistanceR > 0 }

// Materialize converts the R-unit parameters into price terms for a plan.
func (t TrailingConfig) Materialize(dir Direction, entry, riskPerUnit float64) *TrailingStop {
	return &TrailingStop{
		Activation: offsetInProfit(dir, entry, t.ActivateR*riskPerUnit),
		Distance:   t.DistanceR * riskPerUnit,
	}
}
