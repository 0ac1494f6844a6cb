package confluence

// findOverlaps intersects every unfilled FVG with every unmitigated order
// block. Two zones overlap when fvg.low ≤ ob.high and fvg.high ≥ ob.low; the
// shared band is [max(lows), min(highs)]. Results preserve scan order.
func findOverlaps(fvgs []FVGZone, blocks []OrderBlock) []Overlap {
	var overlaps []Overlap

	for fi, fvg := range fvgs {
		if fvg.Filled {
			continue
		}
		for oi, ob := range blocks {
			if ob.Mitigated {
				continue
			}
			if fvg.Low > ob.High || fvg.High < ob.Low {
				continue
			}

			low := fvg.Low
			if ob.Low > low {
				low = ob.Low
			}
			high := fvg.High
			if ob.High < high {
				high = ob.High
			}
			overlaps = append(overlaps, Overlap{
				FVGIndex:    fi,
				OBIndex:     oi,
				OverlapLow:  low,
				OverlapHigh: high,
				Size:        high - low,
			})
		}
	}
	return overlaps
}
