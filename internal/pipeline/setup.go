package pipeline

import (
	"fmt"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/bias"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/confluence"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/risk"
)

// tradeSetup is the geometry handed to the risk engine: where to enter,
// where the idea is wrong, and where to take profit.
type tradeSetup struct {
	direction  risk.Direction
	entry      float64
	stop       float64
	takeProfit float64
	stopBasis  string
}

// deriveSetup turns the day's bias and zone map into trade geometry. The
// stop goes under (over, for shorts) the nearest supporting zone; without a
// usable zone it falls back to the recent swing extreme. A neutral bias or
// degenerate geometry yields no setup and the reason why.
func deriveSetup(biasRes *bias.Result, conf *confluence.Report, bars, auxBars []market.Bar, rewardR float64, stopLookback int) (*tradeSetup, string) {
	if biasRes == nil {
		return nil, "bias unavailable; no execution setup"
	}

	var dir risk.Direction
	switch biasRes.Label {
	case bias.LabelLong, bias.LabelLongIntoEQ:
		dir = risk.DirectionLong
	case bias.LabelShort, bias.LabelShortIntoEQ:
		dir = risk.DirectionShort
	default:
		return nil, "neutral bias; no execution setup"
	}

	entry := bars[len(bars)-1].Close
	if len(auxBars) > 0 {
		// The finer window carries the most recent print.
		entry = auxBars[len(auxBars)-1].Close
	}

	stop, basis, ok := protectiveStop(dir, entry, conf, bars, stopLookback)
	if !ok {
		return nil, fmt.Sprintf("no protective stop %s entry; no execution setup", stopSide(dir))
	}

	setup := &tradeSetup{direction: dir, entry: entry, stop: stop, stopBasis: basis}
	riskPerUnit := entry - stop
	if dir == risk.DirectionShort {
		riskPerUnit = stop - entry
	}
	if dir == risk.DirectionLong {
		setup.takeProfit = entry + rewardR*riskPerUnit
	} else {
		setup.takeProfit = entry - rewardR*riskPerUnit
	}
	return setup, ""
}

// protectiveStop picks the stop level: the tightest zone boundary on the
// protected side of entry, else the swing extreme of the last stopLookback
// bars.
func protectiveStop(dir risk.Direction, entry float64, conf *confluence.Report, bars []market.Bar, stopLookback int) (float64, string, bool) {
	if level, ok := zoneStop(dir, entry, conf); ok {
		return level, "zone", true
	}
	if level, ok := swingStop(dir, entry, bars, stopLookback); ok {
		return level, "swing", true
	}
	return 0, "", false
}

// zoneStop scans unfilled FVGs and unmitigated order blocks aligned with the
// trade direction. Longs stop under the highest supporting zone low below
// entry; shorts stop over the lowest supporting zone high above entry.
func zoneStop(dir risk.Direction, entry float64, conf *confluence.Report) (float64, bool) {
	if conf == nil {
		return 0, false
	}

	want := confluence.DirectionBullish
	if dir == risk.DirectionShort {
		want = confluence.DirectionBearish
	}

	best := 0.0
	found := false
	consider := func(zoneDir confluence.Direction, low, high float64) {
		if zoneDir != want {
			return
		}
		if dir == risk.DirectionLong {
			if low < entry && (!found || low > best) {
				best, found = low, true
			}
			return
		}
		if high > entry && (!found || high < best) {
			best, found = high, true
		}
	}

	for _, z := range conf.FVGZones {
		if z.Filled {
			continue
		}
		consider(z.Direction, z.Low, z.High)
	}
	for _, ob := range conf.OrderBlocks {
		if ob.Mitigated {
			continue
		}
		consider(ob.Direction, ob.Low, ob.High)
	}
	return best, found
}

// swingStop falls back to the extreme of the trailing window.
func swingStop(dir risk.Direction, entry float64, bars []market.Bar, lookback int) (float64, bool) {
	if lookback <= 0 {
		lookback = 10
	}
	start := len(bars) - lookback
	if start < 0 {
		start = 0
	}
	window := bars[start:]

	if dir == risk.DirectionLong {
		low := window[0].Low
		for _, b := range window[1:] {
			if b.Low < low {
				low = b.Low
			}
		}
		if low < entry {
			return low, true
		}
		return 0, false
	}

	high := window[0].High
	for _, b := range window[1:] {
		if b.High > high {
			high = b.High
		}
	}
	if high > entry {
		return high, true
	}
	return 0, false
}

func stopSide(dir risk.Direction) string {
	if dir == risk.DirectionLong {
		return "below"
	}
	return "above"
}
