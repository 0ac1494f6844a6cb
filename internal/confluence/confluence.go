// Package confluence detects fair value gaps and order blocks over a bar
// window, measures where the zones overlap, and folds the evidence into a
// weighted 0-100 score. Zones reference bars by index into the analyzed
// window rather than carrying bar copies.
package confluence

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/indicators"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
)

// Direction marks which side a zone supports.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
)

// FVGZone is a fair value gap: the price band skipped by a 3-bar
// displacement. OriginIndex is the index of the bar that completed the
// pattern.
type FVGZone struct {
	Direction   Direction `json:"direction"`
	Low         float64   `json:"low"`
	High        float64   `json:"high"`
	OriginIndex int       `json:"originIndex"`
	Filled      bool      `json:"filled"`
	Strength    float64   `json:"strength"`
}

// OrderBlock is the last opposite-color candle before a displacement move;
// its full range defines the zone.
type OrderBlock struct {
	Direction   Direction `json:"direction"`
	Low         float64   `json:"low"`
	High        float64   `json:"high"`
	OriginIndex int       `json:"originIndex"`
	Volume      float64   `json:"volume"`
	Mitigated   bool      `json:"mitigated"`
	Strength    float64   `json:"strength"`
}

// Overlap records the intersection of an unfilled FVG and an unmitigated
// order block. Indexes refer to positions in the report's zone slices.
type Overlap struct {
	FVGIndex    int     `json:"fvgIndex"`
	OBIndex     int     `json:"obIndex"`
	OverlapLow  float64 `json:"overlapLow"`
	OverlapHigh float64 `json:"overlapHigh"`
	Size        float64 `json:"size"`
}

// Factor is one weighted scoring input with its normalized value.
type Factor struct {
	Name        string  `json:"name"`
	Weight      float64 `json:"weight"`
	Value       float64 `json:"value"`
	Description string  `json:"description"`
}

// Report is the full confluence analysis for one symbol and timeframe.
type Report struct {
	Symbol      string           `json:"symbol"`
	Timeframe   market.Timeframe `json:"timeframe"`
	Timestamp   time.Time        `json:"timestamp"`
	Score       float64          `json:"score"`
	Factors     []Factor         `json:"factors"`
	FVGZones    []FVGZone        `json:"fvgZones"`
	OrderBlocks []OrderBlock     `json:"orderBlocks"`
	Overlaps    []Overlap        `json:"overlaps"`
	Warnings    []string         `json:"warnings,omitempty"`
}

// Factor names accepted in Config.Weights.
const (
	FactorFVG        = "fvg"
	FactorOrderBlock = "order_block"
	FactorOverlap    = "overlap"
	FactorMomentum   = "momentum"
)

// Config tunes the scans and the scoring weights. Threshold values are read
// as multiples of ATR(ATRPeriod) when the matching ATR flag is set and as
// absolute price units otherwise. ATRPeriod 0 disables ATR normalization
// entirely, which also switches zone strengths to absolute price units.
type Config struct {
	MinGapSize float64 `mapstructure:"min_gap_size"` // smallest gap worth emitting
	MinGapATR  bool    `mapstructure:"min_gap_atr"`

	MoveThreshold    float64 `mapstructure:"move_threshold"` // close-to-close displacement that defines a move
	MoveThresholdATR bool    `mapstructure:"move_threshold_atr"`
	MoveWindow       int     `mapstructure:"move_window"` // max bars a displacement move may span

	ATRPeriod         int     `mapstructure:"atr_period"`
	RSIPeriod         int     `mapstructure:"rsi_period"`
	ReferenceStrength float64 `mapstructure:"reference_strength"` // zone strength sum that saturates a factor at 1.0

	Weights map[string]float64 `mapstructure:"weights"`
}

// DefaultConfig returns the standard scan tuning: any positive gap, one-ATR
// displacement moves over up to 6 bars, and the stock factor weights.
func DefaultConfig() Config {
	return Config{
		MinGapSize:        0,
		MinGapATR:         false,
		MoveThreshold:     1.0,
		MoveThresholdATR:  true,
		MoveWindow:        6,
		ATRPeriod:         indicators.DefaultATRPeriod,
		RSIPeriod:         indicators.DefaultRSIPeriod,
		ReferenceStrength: 3.0,
		Weights: map[string]float64{
			FactorFVG:        0.30,
			FactorOrderBlock: 0.30,
			FactorOverlap:    0.25,
			FactorMomentum:   0.15,
		},
	}
}

func (c *Config) applyDefaults() {
	if c.MoveWindow <= 0 {
		c.MoveWindow = 6
	}
	if c.RSIPeriod <= 0 {
		c.RSIPeriod = indicators.DefaultRSIPeriod
	}
	if c.ReferenceStrength <= 0 {
		c.ReferenceStrength = 3.0
	}
	if c.Weights == nil {
		c.Weights = DefaultConfig().Weights
	}
}

// Engine runs the confluence analysis with a fixed configuration.
type Engine struct {
	cfg Config
}

// NewEngine validates the scoring weights and returns a ready engine.
func NewEngine(cfg Config) (*Engine, error) {
	cfg.applyDefaults()
	if err := validateWeights(cfg.Weights); err != nil {
		return nil, err
	}
	if cfg.MinGapSize < 0 {
		return nil, market.NewValidationError(market.CodeInvalidArgs, "minGapSize must not be negative")
	}
	if cfg.MoveThreshold <= 0 {
		return nil, market.NewValidationError(market.CodeInvalidArgs, "moveThreshold must be positive")
	}
	return &Engine{cfg: cfg}, nil
}

// Analyze scans the bars for zones and scores their confluence. An empty
// window yields a neutral report with a warning rather than an error.
func (e *Engine) Analyze(sym market.Symbol, tf market.Timeframe, bars []market.Bar) (*Report, error) {
	report := &Report{
		Symbol:    sym.Canonical,
		Timeframe: tf,
		Timestamp: time.Now().UTC(),
	}

	if len(bars) == 0 {
		report.Warnings = append(report.Warnings, "no bars provided; returning neutral confluence")
		report.Factors = neutralFactors(e.cfg.Weights)
		return report, nil
	}
	report.Timestamp = bars[len(bars)-1].Timestamp.UTC()

	sc := newScanContext(bars, e.cfg)
	if sc.atr == nil && e.cfg.ATRPeriod > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("window too short for ATR(%d); thresholds read as absolute", e.cfg.ATRPeriod))
	}

	report.FVGZones = scanFVGs(sc)
	report.OrderBlocks = scanOrderBlocks(sc)
	report.Overlaps = findOverlaps(report.FVGZones, report.OrderBlocks)

	score, factors, warnings := e.score(sc, report)
	report.Score = score
	report.Factors = factors
	report.Warnings = append(report.Warnings, warnings...)

	log.Debug().
		Str("symbol", sym.Canonical).
		Str("timeframe", tf.String()).
		Int("bars", len(bars)).
		Int("fvg_zones", len(report.FVGZones)).
		Int("order_blocks", len(report.OrderBlocks)).
		Int("overlaps", len(report.Overlaps)).
		Float64("score", report.Score).
		Msg("Confluence analysis complete")

	return report, nil
}
