package market

import (
	"fmt"
	"time"
)

// Aggregate folds bars of timeframe from into bars of timeframe to. Buckets
// are floored against the UTC epoch (a 4h bucket starts at 00:00, 04:00, ...)
// and emit open=first, high=max, low=min, close=last, volume=sum with the
// bucket start as timestamp. The trailing bucket is dropped when it holds
// fewer than to/from source bars, unless allowPartial is set. Interior
// buckets shortened by market closures are kept as-is.
func Aggregate(bars []Bar, from, to Timeframe, allowPartial bool) ([]Bar, error) {
	if !from.Valid() {
		return nil, NewValidationError(CodeInvalidArgs,
			fmt.Sprintf("unsupported source timeframe %q", from))
	}
	if !to.Valid() {
		return nil, NewValidationError(CodeInvalidArgs,
			fmt.Sprintf("unsupported target timeframe %q", to))
	}
	if !to.MultipleOf(from) {
		return nil, NewValidationError(CodeInvalidArgs,
			fmt.Sprintf("timeframe %s is not an integer multiple of %s", to, from))
	}

	sorted := SortDedup(bars)
	if from == to {
		return sorted, nil
	}
	if len(sorted) == 0 {
		return nil, nil
	}

	bucketSize := to.Duration()
	perBucket := int(bucketSize / from.Duration())

	var (
		out    []Bar
		counts []int
	)
	for _, b := range sorted {
		bucket := b.Timestamp.UTC().Truncate(bucketSize)
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(bucket) {
			cur := &out[n-1]
			if b.High > cur.High {
				cur.High = b.High
			}
			if b.Low < cur.Low {
				cur.Low = b.Low
			}
			cur.Close = b.Close
			cur.Volume += b.Volume
			counts[n-1]++
			continue
		}
		out = append(out, Bar{
			Timestamp: bucket,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
		counts = append(counts, 1)
	}

	if !allowPartial && len(out) > 0 && counts[len(out)-1] < perBucket {
		out = out[:len(out)-1]
	}
	return out, nil
}

// ExpectedBarCount estimates how many tf bars an inclusive [start, end]
// window holds, used by the cache coverage heuristic.
func ExpectedBarCount(tf Timeframe, start, end time.Time) int {
	if !tf.Valid() || end.Before(start) {
		return 0
	}
	return int(end.Sub(start)/tf.Duration()) + 1
}
