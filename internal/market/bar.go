// Package market defines the core data contracts shared by every component:
// OHLCV bars, timeframes, symbol normalization and the error taxonomy.
package market

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// Bar is a single immutable OHLCV candle. Timestamp is the UTC open time of
// the bucket; identity across the system is (symbol, timeframe, timestamp).
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// barJSON keeps the wire form stable: ISO-8601 UTC timestamps regardless of
// the location attached to Timestamp.
type barJSON struct {
	Timestamp string  `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// MarshalJSON renders the timestamp as an ISO-8601 UTC string.
func (b Bar) MarshalJSON() ([]byte, error) {
	return json.Marshal(barJSON{
		Timestamp: b.Timestamp.UTC().Format(time.RFC3339Nano),
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.Volume,
	})
}

// UnmarshalJSON parses the ISO-8601 timestamp back into UTC.
func (b *Bar) UnmarshalJSON(data []byte) error {
	var raw barJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
	if err != nil {
		return fmt.Errorf("invalid bar timestamp %q: %w", raw.Timestamp, err)
	}
	b.Timestamp = ts.UTC()
	b.Open = raw.Open
	b.High = raw.High
	b.Low = raw.Low
	b.Close = raw.Close
	b.Volume = raw.Volume
	return nil
}

// Validate checks the OHLCV invariants: high >= max(open, close, low),
// low <= min(open, close, high), volume >= 0 and all fields finite.
func (b Bar) Validate() error {
	for name, v := range map[string]float64{
		"open": b.Open, "high": b.High, "low": b.Low, "close": b.Close, "volume": b.Volume,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewValidationError(CodeInvalidFormat,
				fmt.Sprintf("bar %s is not a finite number", name))
		}
	}
	if b.Timestamp.IsZero() {
		return NewValidationError(CodeInvalidFormat, "bar timestamp is zero")
	}
	if b.High < b.Open || b.High < b.Close || b.High < b.Low {
		return NewValidationError(CodeInvalidFormat,
			fmt.Sprintf("bar high %.8f below open/close/low", b.High)).
			WithData("timestamp", b.Timestamp.UTC().Format(time.RFC3339))
	}
	if b.Low > b.Open || b.Low > b.Close {
		return NewValidationError(CodeInvalidFormat,
			fmt.Sprintf("bar low %.8f above open/close", b.Low)).
			WithData("timestamp", b.Timestamp.UTC().Format(time.RFC3339))
	}
	if b.Volume < 0 {
		return NewValidationError(CodeInvalidFormat,
			fmt.Sprintf("bar volume %.8f is negative", b.Volume))
	}
	return nil
}

// IsBullish reports whether the bar closed above its open.
func (b Bar) IsBullish() bool { return b.Close > b.Open }

// IsBearish reports whether the bar closed below its open.
func (b Bar) IsBearish() bool { return b.Close < b.Open }

// Range is the full high-low extent of the bar.
func (b Bar) Range() float64 { return b.High - b.Low }

// Body is the absolute open-close distance.
func (b Bar) Body() float64 { return math.Abs(b.Close - b.Open) }

// ValidateBars validates every bar and requires strictly increasing
// timestamps.
func ValidateBars(bars []Bar) error {
	for i, b := range bars {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("bar %d: %w", i, err)
		}
		if i > 0 && !bars[i-1].Timestamp.Before(b.Timestamp) {
			return NewValidationError(CodeInvalidFormat,
				fmt.Sprintf("bar %d timestamp not increasing", i))
		}
	}
	return nil
}

// SortDedup returns bars sorted ascending by timestamp with duplicates
// collapsed. When two bars share a timestamp the later element wins, matching
// the last-writer-wins policy of the cache layer. The input is not mutated.
func SortDedup(bars []Bar) []Bar {
	if len(bars) == 0 {
		return nil
	}
	sorted := make([]Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	out := sorted[:0]
	for _, b := range sorted {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(b.Timestamp) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

// ClampBars filters bars to the inclusive [from, to] window. Nil bounds are
// open-ended.
func ClampBars(bars []Bar, from, to *time.Time) []Bar {
	if from == nil && to == nil {
		return bars
	}
	out := make([]Bar, 0, len(bars))
	for _, b := range bars {
		if from != nil && b.Timestamp.Before(*from) {
			continue
		}
		if to != nil && b.Timestamp.After(*to) {
			continue
		}
		out = append(out, b)
	}
	return out
}
