package pipeline

import (
	"fmt"
	"time"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/bias"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/confluence"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/risk"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/session"
)

// Kind selects the primary artifact an analysis run must produce. The run
// may carry additional sections, but Success reflects the primary one only.
type Kind string

const (
	// KindDaily labels the day: bias, structure and session profile.
	KindDaily Kind = "daily"
	// KindConfluence scans FVG and order-block zones with their overlaps.
	KindConfluence Kind = "confluence"
	// KindExecution runs every engine and ends in an execution plan.
	KindExecution Kind = "execution"
)

// ParseKind normalizes a requested report kind; empty defaults to execution.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "":
		return KindExecution, nil
	case KindDaily, KindConfluence, KindExecution:
		return Kind(s), nil
	default:
		return "", market.NewValidationError(market.CodeInvalidArgs,
			fmt.Sprintf("unknown report kind %q", s))
	}
}

func (k Kind) wantsBias() bool       { return k == KindDaily || k == KindExecution }
func (k Kind) wantsConfluence() bool { return k == KindConfluence || k == KindExecution }
func (k Kind) wantsExecution() bool  { return k == KindExecution }

// Request describes one analysis run. Symbol and Timeframe are raw user
// input; the orchestrator normalizes both. Date selects the trading day
// (YYYY-MM-DD) and may be empty, in which case it derives from the last bar.
// AuxTimeframe optionally adds a finer window used to refine the entry
// price; a short or failing auxiliary fetch degrades to a warning.
type Request struct {
	Symbol       string
	Timeframe    string
	AuxTimeframe string
	Date         string
	Kind         Kind

	// Bar window bounds. Zero values fetch the most recent Limit bars,
	// falling back to the configured default window.
	From  *time.Time
	To    *time.Time
	Limit int

	// Account inputs for the execution plan. Stats feeds Kelly sizing and
	// may be nil.
	Balance float64
	Stats   *risk.TradingStats
}

// Analysis is the bias section of a report. Detail carries the full result
// when the bias engine ran.
type Analysis struct {
	Bias     bias.Label         `json:"bias"`
	Profile  bias.Profile       `json:"profile"`
	Sessions []session.Boundary `json:"sessions"`
	Detail   *bias.Result       `json:"detail,omitempty"`
}

// Range is the price envelope of the analyzed window.
type Range struct {
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Statistics summarizes the bar window a report was computed from.
type Statistics struct {
	BarsAnalyzed    int              `json:"barsAnalyzed"`
	AuxBarsAnalyzed int              `json:"auxBarsAnalyzed,omitempty"`
	Timeframe       market.Timeframe `json:"timeframe"`
	Range           Range            `json:"range"`
}

// Report is the assembled output of one analysis run. It is immutable after
// return: cached copies round-trip through JSON unchanged except for the
// CacheHit flag, which is set on the serving side.
type Report struct {
	Symbol     string              `json:"symbol"`
	Timeframe  market.Timeframe    `json:"timeframe"`
	Date       string              `json:"date"`
	Kind       Kind                `json:"kind"`
	Success    bool                `json:"success"`
	CacheHit   bool                `json:"cacheHit"`
	Analysis   Analysis            `json:"analysis"`
	Statistics Statistics          `json:"statistics"`
	Confluence *confluence.Report  `json:"confluence,omitempty"`
	Execution  *risk.ExecutionPlan `json:"execution,omitempty"`
	Warnings   []string            `json:"warnings,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
}

// rangeOf computes the window envelope. Callers guarantee a non-empty slice.
func rangeOf(bars []market.Bar) Range {
	r := Range{High: bars[0].High, Low: bars[0].Low, Close: bars[len(bars)-1].Close}
	for _, b := range bars[1:] {
		if b.High > r.High {
			r.High = b.High
		}
		if b.Low < r.Low {
			r.Low = b.Low
		}
	}
	return r
}
