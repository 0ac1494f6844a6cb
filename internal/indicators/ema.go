package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/trend"
)

// Trend labels the latest price relative to its moving average.
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

// DefaultEMAPeriod is the conventional 20-sample trend filter window.
const DefaultEMAPeriod = 20

// EMASeries computes the exponential moving average of values. The returned
// slice is aligned to the tail of the input: its last element corresponds to
// the last input value.
func EMASeries(values []float64, period int) ([]float64, error) {
	if period < 1 || period > len(values) {
		return nil, fmt.Errorf("invalid EMA period %d for %d values", period, len(values))
	}

	ema := trend.NewEmaWithPeriod[float64](period)
	out := collect(ema.Compute(sliceChan(values)))
	if len(out) == 0 {
		return nil, fmt.Errorf("no EMA values produced")
	}
	return out, nil
}

// EMATrend computes the EMA over values and labels the latest value against
// it. A price sitting exactly on its average reads as neutral.
func EMATrend(values []float64, period int) (float64, Trend, error) {
	series, err := EMASeries(values, period)
	if err != nil {
		return 0, TrendNeutral, err
	}

	current := series[len(series)-1]
	price := values[len(values)-1]
	switch {
	case price > current:
		return current, TrendBullish, nil
	case price < current:
		return current, TrendBearish, nil
	default:
		return current, TrendNeutral, nil
	}
}
