// Package indicators adapts the channel-based cinar indicator streams to
// slice helpers shaped for bar analysis. Indicator outputs are shorter than
// their inputs by the indicator's warm-up; callers align results to the tail
// of the input series.
package indicators

// sliceChan loads values into a closed buffered channel for an indicator
// pipeline.
func sliceChan(values []float64) chan float64 {
	ch := make(chan float64, len(values))
	for _, v := range values {
		ch <- v
	}
	close(ch)
	return ch
}

// collect drains an indicator output channel.
func collect(ch <-chan float64) []float64 {
	var out []float64
	for v := range ch {
		out = append(out, v)
	}
	return out
}
