// Package provider contains the market-data adapters and the composite
// facade that coordinates them. Every adapter speaks the same contract:
// ascending, deduplicated bars clamped to the requested window, with
// failures expressed through the market error taxonomy.
package provider

import (
	"context"
	"time"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
)

// Capabilities describes what an adapter can serve
type Capabilities struct {
	SupportedTimeframes   []market.Timeframe `json:"supported_timeframes"`
	MaxBarsPerRequest     int                `json:"max_bars_per_request"`
	NeedsAuth             bool               `json:"needs_auth"`
	RateLimitPerSecond    float64            `json:"rate_limit_per_second"`
	HistoricalFrom        time.Time          `json:"historical_from"`
	SupportsExtendedHours bool               `json:"supports_extended_hours"`
	SupportsRealtime      bool               `json:"supports_realtime"`
}

// Supports reports whether the adapter serves the timeframe natively.
func (c Capabilities) Supports(tf market.Timeframe) bool {
	for _, s := range c.SupportedTimeframes {
		if s == tf {
			return true
		}
	}
	return false
}

// SourceTimeframe picks the timeframe an adapter should actually fetch for a
// request. Native support wins; otherwise the coarsest supported timeframe
// the request is a whole multiple of is chosen, so the fetched series can be
// folded up by the aggregator with the fewest bars.
func (c Capabilities) SourceTimeframe(requested market.Timeframe) (market.Timeframe, bool) {
	if c.Supports(requested) {
		return requested, true
	}

	var best market.Timeframe
	for _, s := range c.SupportedTimeframes {
		if !requested.MultipleOf(s) {
			continue
		}
		if best == "" || s.Duration() > best.Duration() {
			best = s
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}

// Query is a bar request against a single adapter or the composite.
// Nil bounds are open-ended; Limit of 0 means no cap. With a Limit and no
// lower bound the most recent bars are returned, still ascending.
type Query struct {
	Symbol    market.Symbol
	Timeframe market.Timeframe
	From      *time.Time
	To        *time.Time
	Limit     int
}

// BarHandler receives streamed bars from a realtime subscription.
type BarHandler func(symbol market.Symbol, tf market.Timeframe, bar market.Bar)

// Provider is the adapter contract. GetBars returns bars with
// from <= timestamp <= to, ascending and deduplicated.
type Provider interface {
	Capabilities() Capabilities
	GetBars(ctx context.Context, q Query) ([]market.Bar, error)
	ValidateSymbol(sym market.Symbol) bool
}

// Subscriber is implemented by adapters that can stream live bars.
type Subscriber interface {
	Subscribe(ctx context.Context, sym market.Symbol, tf market.Timeframe, handler BarHandler) error
	UnsubscribeAll()
}

// normalizeBars applies the shared post-fetch contract: sort ascending,
// drop duplicate timestamps (last writer wins), clamp to the window, and
// keep only the newest Limit bars when one is set.
func normalizeBars(bars []market.Bar, q Query) []market.Bar {
	out := market.SortDedup(bars)
	out = market.ClampBars(out, q.From, q.To)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}
