package bias

import (
	"math"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
)

// scanSwings finds confirmed local extremes: bar i is a swing high when its
// high strictly exceeds every high within lookback bars on both sides, and
// symmetrically for lows. Bars too close to either edge can never confirm.
func scanSwings(bars []market.Bar, lookback int) (highs, lows []SwingPoint) {
	for i := lookback; i < len(bars)-lookback; i++ {
		isHigh, isLow := true, true
		maxNeighborHigh := math.Inf(-1)
		minNeighborLow := math.Inf(1)

		for j := i - lookback; j <= i+lookback; j++ {
			if j == i {
				continue
			}
			if bars[j].High >= bars[i].High {
				isHigh = false
			}
			if bars[j].Low <= bars[i].Low {
				isLow = false
			}
			maxNeighborHigh = math.Max(maxNeighborHigh, bars[j].High)
			minNeighborLow = math.Min(minNeighborLow, bars[j].Low)
		}

		if isHigh {
			highs = append(highs, SwingPoint{
				Index:     i,
				Timestamp: bars[i].Timestamp,
				Price:     bars[i].High,
				Kind:      SwingHigh,
				Strength:  bars[i].High - maxNeighborHigh,
			})
		}
		if isLow {
			lows = append(lows, SwingPoint{
				Index:     i,
				Timestamp: bars[i].Timestamp,
				Price:     bars[i].Low,
				Kind:      SwingLow,
				Strength:  minNeighborLow - bars[i].Low,
			})
		}
	}
	return highs, lows
}

// structureOf reads the last two swing pairs: higher high plus higher low is
// bullish, lower high plus lower low bearish. Anything else is ranging;
// indeterminate reports whether the caller may apply a tiebreak (mixed pairs
// or too few swings to judge).
func structureOf(highs, lows []SwingPoint) (s Structure, indeterminate bool) {
	if len(highs) < 2 || len(lows) < 2 {
		return StructureRanging, true
	}

	h1, h2 := highs[len(highs)-2], highs[len(highs)-1]
	l1, l2 := lows[len(lows)-2], lows[len(lows)-1]

	switch {
	case h2.Price > h1.Price && l2.Price > l1.Price:
		return StructureBullish, false
	case h2.Price < h1.Price && l2.Price < l1.Price:
		return StructureBearish, false
	default:
		return StructureRanging, true
	}
}

// detectBOS looks for the latest confirmed break of the most recent swing
// extreme: confirm consecutive closes beyond the level seal the break. When
// both sides broke, the later confirmation wins.
func detectBOS(bars []market.Bar, highs, lows []SwingPoint, confirm int) *BreakOfStructure {
	var best *BreakOfStructure

	if len(highs) > 0 {
		sh := highs[len(highs)-1]
		if idx, ok := confirmBreak(bars, sh.Index, sh.Price, confirm, true); ok {
			best = &BreakOfStructure{Direction: "up", Index: idx, Level: sh.Price, Timestamp: bars[idx].Timestamp}
		}
	}
	if len(lows) > 0 {
		sl := lows[len(lows)-1]
		if idx, ok := confirmBreak(bars, sl.Index, sl.Price, confirm, false); ok {
			if best == nil || idx > best.Index {
				best = &BreakOfStructure{Direction: "down", Index: idx, Level: sl.Price, Timestamp: bars[idx].Timestamp}
			}
		}
	}
	return best
}

// confirmBreak returns the index of the bar completing a run of confirm
// consecutive closes beyond level, scanning after the swing bar.
func confirmBreak(bars []market.Bar, after int, level float64, confirm int, above bool) (int, bool) {
	streak := 0
	for j := after + 1; j < len(bars); j++ {
		crossed := bars[j].Close > level
		if !above {
			crossed = bars[j].Close < level
		}
		if crossed {
			streak++
			if streak >= confirm {
				return j, true
			}
		} else {
			streak = 0
		}
	}
	return 0, false
}
