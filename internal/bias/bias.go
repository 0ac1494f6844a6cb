// Package bias labels the directional lean of a trading day. Market
// structure comes from swing highs and lows, the daily label from where
// price sits against the range equilibrium, and the day profile from which
// session extremes were swept later in the day.
package bias

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/indicators"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/session"
)

// SwingKind separates swing highs from swing lows.
type SwingKind string

const (
	SwingHigh SwingKind = "high"
	SwingLow  SwingKind = "low"
)

// SwingPoint is a confirmed local extreme. Strength measures how far the
// extreme clears its strongest neighbor inside the lookback window.
type SwingPoint struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Kind      SwingKind `json:"kind"`
	Strength  float64   `json:"strength"`
}

// Structure is the swing-pair market structure state.
type Structure string

const (
	StructureBullish Structure = "bullish"
	StructureBearish Structure = "bearish"
	StructureRanging Structure = "ranging"
)

// Label is the daily bias decision.
type Label string

const (
	LabelLong        Label = "long"
	LabelLongIntoEQ  Label = "long-into-eq"
	LabelShort       Label = "short"
	LabelShortIntoEQ Label = "short-into-eq"
	LabelNeutral     Label = "neutral"
)

// Profile classifies the day by which session liquidity was taken.
type Profile string

const (
	ProfileP1 Profile = "P1" // reversal: London extreme swept
	ProfileP2 Profile = "P2" // expansion: Asia extreme swept
	ProfileP3 Profile = "P3" // continuation: neither swept
)

// BreakOfStructure records a confirmed close-through of the prior swing
// extreme.
type BreakOfStructure struct {
	Direction string    `json:"direction"` // up | down
	Index     int       `json:"index"`
	Level     float64   `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionExtreme is a session's range plus whether later price took either
// side out.
type SessionExtreme struct {
	Session   string  `json:"session"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	SweptHigh bool    `json:"sweptHigh"`
	SweptLow  bool    `json:"sweptLow"`
}

// Result is the full daily bias analysis.
type Result struct {
	Symbol          string             `json:"symbol"`
	Timeframe       market.Timeframe   `json:"timeframe"`
	Date            string             `json:"date"`
	Label           Label              `json:"bias"`
	Structure       Structure          `json:"structure"`
	Profile         Profile            `json:"profile"`
	EMATrend        indicators.Trend   `json:"emaTrend"`
	RangeHigh       float64            `json:"rangeHigh"`
	RangeLow        float64            `json:"rangeLow"`
	Midpoint        float64            `json:"midpoint"`
	Close           float64            `json:"close"`
	SwingHighs      []SwingPoint       `json:"swingHighs"`
	SwingLows       []SwingPoint       `json:"swingLows"`
	BOS             *BreakOfStructure  `json:"bos,omitempty"`
	Sessions        []session.Boundary `json:"sessions"`
	SessionExtremes []SessionExtreme   `json:"sessionExtremes"`
	Warnings        []string           `json:"warnings,omitempty"`
}

// Config tunes swing detection and structure confirmation.
type Config struct {
	SwingLookback          int `mapstructure:"swing_lookback"`           // bars on each side a swing must dominate
	BOSConfirmationCandles int `mapstructure:"bos_confirmation_candles"` // closes beyond the extreme to confirm a break
	EMAPeriod              int `mapstructure:"ema_period"`               // trend filter used as a structure tiebreak
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		SwingLookback:          5,
		BOSConfirmationCandles: 2,
		EMAPeriod:              indicators.DefaultEMAPeriod,
	}
}

func (c *Config) applyDefaults() {
	if c.SwingLookback <= 0 {
		c.SwingLookback = 5
	}
	if c.BOSConfirmationCandles <= 0 {
		c.BOSConfirmationCandles = 2
	}
	if c.EMAPeriod <= 0 {
		c.EMAPeriod = indicators.DefaultEMAPeriod
	}
}

// Engine runs the bias analysis against a session calendar.
type Engine struct {
	cal *session.Calendar
	cfg Config
}

// NewEngine builds a bias engine on the given calendar.
func NewEngine(cal *session.Calendar, cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{cal: cal, cfg: cfg}
}

// Analyze labels the day from the bar window. An empty window yields a
// neutral result with a warning. The date selects the session boundaries;
// when empty it is derived from the last bar's UTC date.
func (e *Engine) Analyze(sym market.Symbol, tf market.Timeframe, date string, bars []market.Bar) (*Result, error) {
	result := &Result{
		Symbol:    sym.Canonical,
		Timeframe: tf,
		Date:      date,
		Label:     LabelNeutral,
		Structure: StructureRanging,
		Profile:   ProfileP3,
		EMATrend:  indicators.TrendNeutral,
	}

	if len(bars) == 0 {
		result.Warnings = append(result.Warnings, "no bars provided; returning neutral bias")
		return result, nil
	}
	if result.Date == "" {
		result.Date = bars[len(bars)-1].Timestamp.UTC().Format("2006-01-02")
	}

	result.SwingHighs, result.SwingLows = scanSwings(bars, e.cfg.SwingLookback)

	closings := make([]float64, len(bars))
	for i, b := range bars {
		closings[i] = b.Close
	}
	if _, trend, err := indicators.EMATrend(closings, e.cfg.EMAPeriod); err == nil {
		result.EMATrend = trend
	}

	structure, indeterminate := structureOf(result.SwingHighs, result.SwingLows)
	if indeterminate && result.EMATrend != indicators.TrendNeutral {
		// Swings alone cannot settle the state; let the trend filter break
		// the tie.
		if result.EMATrend == indicators.TrendBullish {
			structure = StructureBullish
		} else {
			structure = StructureBearish
		}
		result.Warnings = append(result.Warnings, "structure resolved by EMA tiebreak")
	}
	result.Structure = structure

	result.BOS = detectBOS(bars, result.SwingHighs, result.SwingLows, e.cfg.BOSConfirmationCandles)

	result.RangeHigh, result.RangeLow = windowRange(bars)
	result.Midpoint = (result.RangeHigh + result.RangeLow) / 2
	result.Close = bars[len(bars)-1].Close
	result.Label = labelFor(result.Structure, result.Close, result.Midpoint)

	sessions, err := e.tradingDaySessions(result.Date, sym, bars)
	if err != nil {
		result.Warnings = append(result.Warnings, "session boundaries unavailable: "+err.Error())
	} else {
		result.Sessions = sessions
		var profWarnings []string
		result.Profile, result.SessionExtremes, profWarnings = dayProfile(bars, sessions)
		result.Warnings = append(result.Warnings, profWarnings...)
	}

	log.Debug().
		Str("symbol", sym.Canonical).
		Str("date", result.Date).
		Str("bias", string(result.Label)).
		Str("structure", string(result.Structure)).
		Str("profile", string(result.Profile)).
		Int("swing_highs", len(result.SwingHighs)).
		Int("swing_lows", len(result.SwingLows)).
		Msg("Bias analysis complete")

	return result, nil
}

// tradingDaySessions merges the previous and current civil dates' session
// windows, so overnight sessions that began the evening before are attributed
// to this trading day, and keeps those overlapping the bar span.
func (e *Engine) tradingDaySessions(date string, sym market.Symbol, bars []market.Bar) ([]session.Boundary, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, market.NewValidationError(market.CodeInvalidArgs,
			fmt.Sprintf("invalid date %q, want YYYY-MM-DD", date))
	}
	prev := day.AddDate(0, 0, -1).Format("2006-01-02")

	prevBounds, err := e.cal.BoundariesFor(prev, sym)
	if err != nil {
		return nil, err
	}
	curBounds, err := e.cal.BoundariesFor(date, sym)
	if err != nil {
		return nil, err
	}

	first := bars[0].Timestamp
	last := bars[len(bars)-1].Timestamp

	var windows []session.Boundary
	for _, b := range append(prevBounds, curBounds...) {
		if !b.Start.After(last) && b.End.After(first) {
			windows = append(windows, b)
		}
	}
	sort.Slice(windows, func(i, j int) bool {
		return windows[i].Start.Before(windows[j].Start)
	})
	return windows, nil
}

// windowRange returns the high and low of the full window.
func windowRange(bars []market.Bar) (high, low float64) {
	high, low = bars[0].High, bars[0].Low
	for _, b := range bars[1:] {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return high, low
}

// labelFor applies the equilibrium decision table. A close sitting exactly
// on the midpoint counts as with-trend rather than into-equilibrium.
func labelFor(structure Structure, close, midpoint float64) Label {
	switch structure {
	case StructureBullish:
		if close >= midpoint {
			return LabelLong
		}
		return LabelLongIntoEQ
	case StructureBearish:
		if close <= midpoint {
			return LabelShort
		}
		return LabelShortIntoEQ
	default:
		return LabelNeutral
	}
}
