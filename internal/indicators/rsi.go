package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/momentum"
)

// DefaultRSIPeriod is the conventional 14-sample RSI window.
const DefaultRSIPeriod = 14

// RSISeries computes the relative strength index of the closing prices,
// aligned to the tail of the input.
func RSISeries(closings []float64, period int) ([]float64, error) {
	if period < 1 || period > len(closings) {
		return nil, fmt.Errorf("invalid RSI period %d for %d closings", period, len(closings))
	}

	rsi := momentum.NewRsiWithPeriod[float64](period)
	out := collect(rsi.Compute(sliceChan(closings)))
	if len(out) == 0 {
		return nil, fmt.Errorf("no RSI values produced")
	}
	return out, nil
}

// LatestRSI returns the most recent RSI value.
func LatestRSI(closings []float64, period int) (float64, error) {
	series, err := RSISeries(closings, period)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

// ClassifyRSI labels an RSI reading with the conventional 30/70 bands.
func ClassifyRSI(value float64) string {
	switch {
	case value < 30:
		return "oversold"
	case value > 70:
		return "overbought"
	default:
		return "neutral"
	}
}
