package provider

import (
	"context"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
)

// FixtureConfig shapes the synthetic series a Fixture generates
type FixtureConfig struct {
	BasePrice float64 // Anchor price for the first bar (default 100)
	Trend     float64 // Per-bar drift added to the close
	Noise     float64 // Max absolute random deviation per bar
	Seed      int64   // Seed for the noise stream
	Volume    float64 // Base volume per bar (default 1000)
}

// Fixture serves deterministic synthetic bars. The same query against the
// same config always yields the same series, which makes it the adapter of
// choice for tests and offline runs.
type Fixture struct {
	cfg  FixtureConfig
	caps Capabilities
}

// NewFixture creates a synthetic bar provider.
func NewFixture(cfg FixtureConfig) *Fixture {
	if cfg.BasePrice == 0 {
		cfg.BasePrice = 100
	}
	if cfg.Volume == 0 {
		cfg.Volume = 1000
	}
	return &Fixture{
		cfg: cfg,
		caps: Capabilities{
			SupportedTimeframes:   market.Timeframes(),
			MaxBarsPerRequest:     10000,
			NeedsAuth:             false,
			RateLimitPerSecond:    0,
			HistoricalFrom:        time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
			SupportsExtendedHours: true,
			SupportsRealtime:      false,
		},
	}
}

// Capabilities implements Provider.
func (f *Fixture) Capabilities() Capabilities {
	return f.caps
}

// ValidateSymbol implements Provider. The fixture serves any symbol.
func (f *Fixture) ValidateSymbol(sym market.Symbol) bool {
	return sym.Canonical != ""
}

// GetBars implements Provider.
func (f *Fixture) GetBars(ctx context.Context, q Query) ([]market.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, market.NewCancelledError(err)
	}
	if !q.Timeframe.Valid() {
		return nil, market.NewValidationError(market.CodeInvalidArgs, "unknown timeframe "+string(q.Timeframe))
	}

	d := q.Timeframe.Duration()
	var start, end time.Time

	switch {
	case q.From != nil:
		start = q.From.UTC().Truncate(d)
		if start.Before(q.From.UTC()) {
			start = start.Add(d)
		}
		if q.To != nil {
			end = q.To.UTC().Truncate(d)
		} else {
			end = time.Now().UTC().Truncate(d)
		}
	case q.Limit > 0:
		if q.To != nil {
			end = q.To.UTC().Truncate(d)
		} else {
			end = time.Now().UTC().Truncate(d)
		}
		start = end.Add(-time.Duration(q.Limit-1) * d)
	default:
		return nil, market.NewValidationError(market.CodeInvalidArgs, "query needs a lower bound or a limit")
	}

	if end.Before(start) {
		return []market.Bar{}, nil
	}

	count := int(end.Sub(start)/d) + 1
	if count > f.caps.MaxBarsPerRequest {
		count = f.caps.MaxBarsPerRequest
	}

	rng := rand.New(rand.NewSource(f.seedFor(q.Symbol.Canonical, q.Timeframe)))
	bars := make([]market.Bar, 0, count)
	prev := f.cfg.BasePrice
	for i := 0; i < count; i++ {
		wobble := (rng.Float64()*2 - 1) * f.cfg.Noise
		open := prev
		closePrice := prev + f.cfg.Trend + wobble
		high := open
		if closePrice > high {
			high = closePrice
		}
		low := open
		if closePrice < low {
			low = closePrice
		}
		if f.cfg.Noise > 0 {
			high += rng.Float64() * f.cfg.Noise * 0.5
			low -= rng.Float64() * f.cfg.Noise * 0.5
		}

		bars = append(bars, market.Bar{
			Timestamp: start.Add(time.Duration(i) * d),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    f.cfg.Volume * (0.5 + rng.Float64()),
		})
		prev = closePrice
	}

	return normalizeBars(bars, q), nil
}

// seedFor derives the noise seed so different series stay distinct while the
// same series always reproduces.
func (f *Fixture) seedFor(symbol string, tf market.Timeframe) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	h.Write([]byte("|"))
	h.Write([]byte(tf))
	return f.cfg.Seed ^ int64(h.Sum64())
}
