package confluence

import (
	"fmt"
	"math"
	"sort"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/indicators"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
)

// weightTolerance bounds how far the weight sum may drift from 1.
const weightTolerance = 0.01

var knownFactors = map[string]bool{
	FactorFVG:        true,
	FactorOrderBlock: true,
	FactorOverlap:    true,
	FactorMomentum:   true,
}

// validateWeights enforces Σ weights = 1 ± weightTolerance over known factor
// names with non-negative weights.
func validateWeights(weights map[string]float64) error {
	sum := 0.0
	for name, w := range weights {
		if !knownFactors[name] {
			return market.NewValidationError(market.CodeInvalidArgs,
				fmt.Sprintf("unknown confluence factor %q", name))
		}
		if w < 0 {
			return market.NewValidationError(market.CodeInvalidArgs,
				fmt.Sprintf("confluence factor %q has negative weight", name))
		}
		sum += w
	}
	if math.Abs(sum-1) > weightTolerance {
		return market.NewValidationError(market.CodeInvalidArgs,
			fmt.Sprintf("confluence weights sum to %.4f, need 1 ± %.2f", sum, weightTolerance))
	}
	return nil
}

func sortedFactorNames(weights map[string]float64) []string {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// neutralFactors renders the configured factors with zero values for the
// empty-window report.
func neutralFactors(weights map[string]float64) []Factor {
	factors := make([]Factor, 0, len(weights))
	for _, name := range sortedFactorNames(weights) {
		factors = append(factors, Factor{Name: name, Weight: weights[name], Description: "no data"})
	}
	return factors
}

// score folds the configured factors into 100 × Σ weight·value, clamped to
// [0, 100]. Factor values are each normalized to [0, 1] by the factor's own
// scale.
func (e *Engine) score(sc *scanContext, report *Report) (float64, []Factor, []string) {
	var warnings []string

	total := 0.0
	factors := make([]Factor, 0, len(e.cfg.Weights))
	for _, name := range sortedFactorNames(e.cfg.Weights) {
		var f Factor
		switch name {
		case FactorFVG:
			f = e.fvgFactor(report)
		case FactorOrderBlock:
			f = e.orderBlockFactor(report)
		case FactorOverlap:
			f = e.overlapFactor(sc, report)
		case FactorMomentum:
			var warn string
			f, warn = e.momentumFactor(sc)
			if warn != "" {
				warnings = append(warnings, warn)
			}
		}
		f.Name = name
		f.Weight = e.cfg.Weights[name]
		total += f.Weight * f.Value
		factors = append(factors, f)
	}

	return clamp(total*100, 0, 100), factors, warnings
}

func (e *Engine) fvgFactor(report *Report) Factor {
	strength := 0.0
	unfilled := 0
	for _, z := range report.FVGZones {
		if !z.Filled {
			strength += z.Strength
			unfilled++
		}
	}
	return Factor{
		Value:       clamp01(strength / e.cfg.ReferenceStrength),
		Description: fmt.Sprintf("%d unfilled of %d gaps, strength %.2f", unfilled, len(report.FVGZones), strength),
	}
}

func (e *Engine) orderBlockFactor(report *Report) Factor {
	strength := 0.0
	unmitigated := 0
	for _, b := range report.OrderBlocks {
		if !b.Mitigated {
			strength += b.Strength
			unmitigated++
		}
	}
	return Factor{
		Value:       clamp01(strength / e.cfg.ReferenceStrength),
		Description: fmt.Sprintf("%d unmitigated of %d blocks, strength %.2f", unmitigated, len(report.OrderBlocks), strength),
	}
}

// overlapFactor normalizes the total overlap size by one ATR when available,
// falling back to the reference strength.
func (e *Engine) overlapFactor(sc *scanContext, report *Report) Factor {
	total := 0.0
	for _, o := range report.Overlaps {
		total += o.Size
	}
	norm := e.cfg.ReferenceStrength
	if atr, ok := sc.atrAt(len(sc.bars) - 1); ok && atr > 0 {
		norm = atr
	}
	return Factor{
		Value:       clamp01(total / norm),
		Description: fmt.Sprintf("%d overlaps, total size %.4f", len(report.Overlaps), total),
	}
}

// momentumFactor maps RSI distance from the 50 midline onto [0, 1].
func (e *Engine) momentumFactor(sc *scanContext) (Factor, string) {
	closings := make([]float64, len(sc.bars))
	for i, b := range sc.bars {
		closings[i] = b.Close
	}

	rsi, err := indicators.LatestRSI(closings, e.cfg.RSIPeriod)
	if err != nil {
		return Factor{Description: "insufficient closings for RSI"},
			fmt.Sprintf("momentum factor unavailable: %v", err)
	}
	return Factor{
		Value:       clamp01(math.Abs(rsi-50) / 50),
		Description: fmt.Sprintf("RSI %.1f (%s)", rsi, indicators.ClassifyRSI(rsi)),
	}, ""
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
