package confluence

import "math"

// move is a displacement window: the close-to-close delta from the base bar
// at start to the bar at end crossed the configured threshold.
type move struct {
	start, end int
	delta      float64
}

// findMoves scans left to right for the earliest displacement reachable from
// each base bar, consuming the window up to the move end so overlapping
// moves collapse into one.
func findMoves(sc *scanContext) []move {
	bars := sc.bars
	var moves []move

	s := 0
	for s < len(bars)-1 {
		found := false
		for e := s + 1; e <= s+sc.cfg.MoveWindow && e < len(bars); e++ {
			delta := bars[e].Close - bars[s].Close
			threshold := sc.moveThresholdAt(s)
			if threshold > 0 && math.Abs(delta) >= threshold {
				moves = append(moves, move{start: s, end: e, delta: delta})
				s = e
				found = true
				break
			}
		}
		if !found {
			s++
		}
	}
	return moves
}

// moveThresholdAt resolves the displacement threshold at bar index i in
// price units.
func (sc *scanContext) moveThresholdAt(i int) float64 {
	if sc.cfg.MoveThresholdATR {
		if atr, ok := sc.atrAt(i); ok {
			return sc.cfg.MoveThreshold * atr
		}
	}
	return sc.cfg.MoveThreshold
}

// scanOrderBlocks finds the last opposite-color candle at or before each
// displacement base: the final down candle ahead of an up move is a bullish
// block, the final up candle ahead of a down move a bearish one. The candle's
// full range defines the zone. A block is mitigated once a later bar trades
// through its far edge.
func scanOrderBlocks(sc *scanContext) []OrderBlock {
	bars := sc.bars
	var blocks []OrderBlock

	for _, m := range findMoves(sc) {
		bullish := m.delta > 0

		origin := -1
		for k := m.start; k >= 0; k-- {
			if bullish && bars[k].Close < bars[k].Open {
				origin = k
				break
			}
			if !bullish && bars[k].Close > bars[k].Open {
				origin = k
				break
			}
		}
		if origin < 0 {
			continue
		}

		ob := OrderBlock{
			Low:         bars[origin].Low,
			High:        bars[origin].High,
			OriginIndex: origin,
			Volume:      bars[origin].Volume,
			Strength:    sc.strengthAt(m.start, math.Abs(m.delta)),
		}
		if bullish {
			ob.Direction = DirectionBullish
		} else {
			ob.Direction = DirectionBearish
		}
		markMitigated(&ob, sc, m.end)
		blocks = append(blocks, ob)
	}
	return blocks
}

// markMitigated flags the block once price trades back through it after the
// move completes: below the low for a bullish block, above the high for a
// bearish one.
func markMitigated(ob *OrderBlock, sc *scanContext, moveEnd int) {
	for j := moveEnd + 1; j < len(sc.bars); j++ {
		if ob.Direction == DirectionBullish && sc.bars[j].Low < ob.Low {
			ob.Mitigated = true
			return
		}
		if ob.Direction == DirectionBearish && sc.bars[j].High > ob.High {
			ob.Mitigated = true
			return
		}
	}
}
