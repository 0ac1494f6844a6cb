package confluence

import (
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/indicators"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
)

// scanContext carries the bar window and its ATR series through the scans.
// The ATR output is shorter than the window by the indicator warm-up, so
// atrAt clamps early indexes to the first available value.
type scanContext struct {
	bars []market.Bar
	cfg  Config
	atr  []float64
	off  int
}

func newScanContext(bars []market.Bar, cfg Config) *scanContext {
	sc := &scanContext{bars: bars, cfg: cfg}
	if cfg.ATRPeriod > 0 {
		if atr, err := indicators.ATRSeries(bars, cfg.ATRPeriod); err == nil {
			sc.atr = atr
			sc.off = len(bars) - len(atr)
		}
	}
	return sc
}

// atrAt returns the ATR in effect at bar index i, or ok=false when no ATR is
// available for the window.
func (sc *scanContext) atrAt(i int) (float64, bool) {
	if sc.atr == nil {
		return 0, false
	}
	idx := i - sc.off
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sc.atr) {
		idx = len(sc.atr) - 1
	}
	return sc.atr[idx], true
}

// minGapAt resolves the gap floor at bar index i in price units.
func (sc *scanContext) minGapAt(i int) float64 {
	if sc.cfg.MinGapATR {
		if atr, ok := sc.atrAt(i); ok {
			return sc.cfg.MinGapSize * atr
		}
	}
	return sc.cfg.MinGapSize
}

// strengthAt normalizes a price distance to ATR units at bar index i, or
// leaves it absolute when no ATR is available.
func (sc *scanContext) strengthAt(i int, dist float64) float64 {
	if atr, ok := sc.atrAt(i); ok && atr > 0 {
		return dist / atr
	}
	return dist
}

// scanFVGs walks the window looking for 3-bar displacements: a bullish gap
// when bar[i].low clears bar[i-2].high, bearish when bar[i].high undercuts
// bar[i-2].low. Zones of zero or sub-threshold size are not emitted. Each
// zone is then scanned forward and marked filled on the first bar whose
// range enters the gap.
func scanFVGs(sc *scanContext) []FVGZone {
	bars := sc.bars
	var zones []FVGZone

	for i := 2; i < len(bars); i++ {
		minGap := sc.minGapAt(i)

		if gap := bars[i].Low - bars[i-2].High; gap > 0 && gap >= minGap {
			zones = append(zones, FVGZone{
				Direction:   DirectionBullish,
				Low:         bars[i-2].High,
				High:        bars[i].Low,
				OriginIndex: i,
				Strength:    sc.strengthAt(i, gap),
			})
		}
		if gap := bars[i-2].Low - bars[i].High; gap > 0 && gap >= minGap {
			zones = append(zones, FVGZone{
				Direction:   DirectionBearish,
				Low:         bars[i].High,
				High:        bars[i-2].Low,
				OriginIndex: i,
				Strength:    sc.strengthAt(i, gap),
			})
		}
	}

	for z := range zones {
		markFilled(&zones[z], bars)
	}
	return zones
}

// markFilled flags the zone on the first later bar whose range trades inside
// the gap. Touching an edge exactly does not fill.
func markFilled(z *FVGZone, bars []market.Bar) {
	for j := z.OriginIndex + 1; j < len(bars); j++ {
		if bars[j].Low < z.High && bars[j].High > z.Low {
			z.Filled = true
			return
		}
	}
}
