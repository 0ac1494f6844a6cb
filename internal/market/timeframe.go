package market

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is the closed set of bar durations the service understands. The
// string form follows provider API conventions ("1m", "5m", ...).
type Timeframe string

const (
	TimeframeM1  Timeframe = "1m"
	TimeframeM5  Timeframe = "5m"
	TimeframeM10 Timeframe = "10m"
	TimeframeH1  Timeframe = "1h"
	TimeframeH4  Timeframe = "4h"
	TimeframeD1  Timeframe = "1d"
)

// Timeframes lists all supported timeframes ordered by ascending duration.
func Timeframes() []Timeframe {
	return []Timeframe{TimeframeM1, TimeframeM5, TimeframeM10, TimeframeH1, TimeframeH4, TimeframeD1}
}

var timeframeDurations = map[Timeframe]time.Duration{
	TimeframeM1:  time.Minute,
	TimeframeM5:  5 * time.Minute,
	TimeframeM10: 10 * time.Minute,
	TimeframeH1:  time.Hour,
	TimeframeH4:  4 * time.Hour,
	TimeframeD1:  24 * time.Hour,
}

// timeframeAliases maps the letter-first spellings (M5, h1, ...) onto the
// canonical provider form.
var timeframeAliases = map[string]Timeframe{
	"m1": TimeframeM1, "m5": TimeframeM5, "m10": TimeframeM10,
	"h1": TimeframeH1, "h4": TimeframeH4, "d1": TimeframeD1,
}

// ParseTimeframe normalizes a user- or provider-supplied timeframe string.
// Both "5m" and "M5" spellings are accepted, case-insensitively.
func ParseTimeframe(s string) (Timeframe, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	if normalized == "" {
		return "", NewValidationError(CodeInvalidArgs, "timeframe is required")
	}
	tf := Timeframe(normalized)
	if _, ok := timeframeDurations[tf]; ok {
		return tf, nil
	}
	if alias, ok := timeframeAliases[normalized]; ok {
		return alias, nil
	}
	return "", NewValidationError(CodeInvalidArgs,
		fmt.Sprintf("unsupported timeframe %q", s))
}

// Valid reports whether the timeframe is one of the supported values.
func (tf Timeframe) Valid() bool {
	_, ok := timeframeDurations[tf]
	return ok
}

// Duration returns the bucket length of the timeframe. Unknown timeframes
// return zero.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

// Less orders timeframes by duration.
func (tf Timeframe) Less(other Timeframe) bool {
	return tf.Duration() < other.Duration()
}

// MultipleOf reports whether tf is an exact integer multiple of base, the
// precondition for aggregating base bars into tf bars.
func (tf Timeframe) MultipleOf(base Timeframe) bool {
	bd := base.Duration()
	if bd == 0 || tf.Duration() == 0 {
		return false
	}
	return tf.Duration()%bd == 0 && tf.Duration() >= bd
}

func (tf Timeframe) String() string { return string(tf) }
