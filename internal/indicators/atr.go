package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/volatility"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
)

// DefaultATRPeriod is the conventional 14-sample ATR window.
const DefaultATRPeriod = 14

// ATRSeries computes the average true range of the bars, aligned to the tail
// of the input. True range needs a prior close, so at least period+1 bars are
// required.
func ATRSeries(bars []market.Bar, period int) ([]float64, error) {
	if period < 1 || period >= len(bars) {
		return nil, fmt.Errorf("invalid ATR period %d for %d bars", period, len(bars))
	}

	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closings := make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closings[i] = b.Close
	}

	atr := volatility.NewAtrWithPeriod[float64](period)
	out := collect(atr.Compute(sliceChan(highs), sliceChan(lows), sliceChan(closings)))
	if len(out) == 0 {
		return nil, fmt.Errorf("no ATR values produced")
	}
	return out, nil
}

// LatestATR returns the most recent ATR value.
func LatestATR(bars []market.Bar, period int) (float64, error) {
	series, err := ATRSeries(bars, period)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}
