package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/cache"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/store"
)

// DefaultAttemptTimeout bounds a single adapter fetch when the config does
// not name one.
const DefaultAttemptTimeout = 10 * time.Second

// AdapterConfig ranks one adapter inside the composite
type AdapterConfig struct {
	Name            string
	Adapter         Provider
	Priority        int           // Lower is tried first
	Timeout         time.Duration // Per-attempt timeout
	HealthThreshold float64       // Success-EMA floor for candidate selection
	FallbackOnly    bool          // Only consulted when every primary is out
}

// CompositeConfig contains configuration for the composite provider
type CompositeConfig struct {
	Providers         []AdapterConfig
	Retry             RetryConfig
	Breaker           BreakerConfig
	CoverageThreshold float64 // Range-read coverage for cache/archive hits
}

// managedProvider pairs an adapter with its health record and circuit.
type managedProvider struct {
	cfg     AdapterConfig
	health  *Health
	breaker *gobreaker.CircuitBreaker
}

// ProviderStatus is a reporting view of one managed adapter.
type ProviderStatus struct {
	Name         string         `json:"name"`
	Priority     int            `json:"priority"`
	FallbackOnly bool           `json:"fallback_only"`
	CircuitState string         `json:"circuit_state"`
	Health       HealthSnapshot `json:"health"`
}

// Composite presents a single GetBars that degrades gracefully across ranked
// adapters: cache first, then the archive for covered range reads, then each
// healthy adapter in priority order with retry, write-through on success.
type Composite struct {
	providers []*managedProvider
	retry     RetryConfig
	coverage  float64
	cache     cache.Store
	ttl       cache.TTLPolicy
	archive   *store.BarStore
	metrics   *providerMetrics
}

// NewComposite builds the facade. cacheStore and archive may be nil; the
// composite then degrades to pure adapter fan-out.
func NewComposite(cfg CompositeConfig, cacheStore cache.Store, ttl cache.TTLPolicy, archive *store.BarStore) (*Composite, error) {
	if len(cfg.Providers) == 0 {
		return nil, market.NewConfigurationError("composite needs at least one provider")
	}

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.CoverageThreshold <= 0 {
		cfg.CoverageThreshold = cache.DefaultCoverageThreshold
	}

	metrics := initMetrics()

	seen := make(map[string]struct{}, len(cfg.Providers))
	providers := make([]*managedProvider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		if pc.Name == "" {
			return nil, market.NewConfigurationError("every provider needs a name")
		}
		if pc.Adapter == nil {
			return nil, market.NewConfigurationError(fmt.Sprintf("provider %s has no adapter", pc.Name))
		}
		if _, dup := seen[pc.Name]; dup {
			return nil, market.NewConfigurationError(fmt.Sprintf("duplicate provider name %s", pc.Name))
		}
		seen[pc.Name] = struct{}{}

		if pc.Timeout <= 0 {
			pc.Timeout = DefaultAttemptTimeout
		}
		if pc.HealthThreshold <= 0 {
			pc.HealthThreshold = DefaultBreakerThreshold
		}

		health := NewHealth(DefaultHealthAlpha)
		providers = append(providers, &managedProvider{
			cfg:     pc,
			health:  health,
			breaker: newBreaker(pc.Name, cfg.Breaker, health, metrics),
		})
	}

	sort.SliceStable(providers, func(i, j int) bool {
		return providers[i].cfg.Priority < providers[j].cfg.Priority
	})

	return &Composite{
		providers: providers,
		retry:     cfg.Retry,
		coverage:  cfg.CoverageThreshold,
		cache:     cacheStore,
		ttl:       ttl,
		archive:   archive,
		metrics:   metrics,
	}, nil
}

// GetBars implements the composite read path.
func (c *Composite) GetBars(ctx context.Context, q Query) ([]market.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, market.NewCancelledError(err)
	}
	if !q.Timeframe.Valid() {
		return nil, market.NewValidationError(market.CodeInvalidArgs, "unknown timeframe "+string(q.Timeframe))
	}

	key := cache.BarsKey(q.Symbol.Canonical, q.Timeframe, q.From, q.To, q.Limit)
	if bars, ok := c.cachedBars(ctx, key, q); ok {
		c.metrics.recordCacheLookup(true)
		return bars, nil
	}
	c.metrics.recordCacheLookup(false)

	if bars, ok := c.archivedBars(ctx, q); ok {
		c.writeCache(ctx, key, q.Timeframe, bars)
		return bars, nil
	}

	var lastErr error
	for _, mp := range c.candidates() {
		bars, err := c.fetchWithRetry(ctx, mp, q)
		if err != nil {
			lastErr = err
			if market.KindOf(err) == market.KindCancelled {
				return nil, err
			}
			log.Warn().
				Err(err).
				Str("provider", mp.cfg.Name).
				Str("symbol", q.Symbol.Canonical).
				Str("timeframe", q.Timeframe.String()).
				Msg("Provider exhausted, trying next")
			continue
		}

		c.writeCache(ctx, key, q.Timeframe, bars)
		c.archiveBars(q, bars)
		return bars, nil
	}

	return nil, fmt.Errorf("all providers failed: %w", lastErr)
}

// cachedBars serves the fast path. Range reads must cover the window;
// gappy entries are treated as misses so a refetch can repair them.
func (c *Composite) cachedBars(ctx context.Context, key string, q Query) ([]market.Bar, bool) {
	if c.cache == nil {
		return nil, false
	}
	data, ok := c.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}

	var bars []market.Bar
	if err := json.Unmarshal(data, &bars); err != nil {
		log.Debug().
			Err(err).
			Str("key", key).
			Msg("Discarding undecodable cache entry")
		return nil, false
	}
	if q.From != nil && q.To != nil && !cache.CoversWindow(bars, q.Timeframe, *q.From, *q.To, c.coverage) {
		return nil, false
	}
	return bars, true
}

// archivedBars consults the persistent bar store for covered range reads.
func (c *Composite) archivedBars(ctx context.Context, q Query) ([]market.Bar, bool) {
	if c.archive == nil || q.From == nil || q.To == nil {
		return nil, false
	}

	bars, err := c.archive.GetBars(ctx, q.Symbol.Canonical, q.Timeframe, q.From, q.To, 0)
	if err != nil {
		log.Debug().
			Err(err).
			Str("symbol", q.Symbol.Canonical).
			Msg("Archive read failed, falling through to providers")
		return nil, false
	}
	if !cache.CoversWindow(bars, q.Timeframe, *q.From, *q.To, c.coverage) {
		return nil, false
	}
	if q.Limit > 0 && len(bars) > q.Limit {
		bars = bars[len(bars)-q.Limit:]
	}
	return bars, true
}

// candidates selects adapters in priority order: healthy primaries first,
// then healthy fallback-only adapters, and if everything is filtered out,
// every adapter -- a request should not fail while an adapter might serve it.
func (c *Composite) candidates() []*managedProvider {
	var primary, fallback []*managedProvider
	for _, mp := range c.providers {
		if !c.healthy(mp) {
			continue
		}
		if mp.cfg.FallbackOnly {
			fallback = append(fallback, mp)
		} else {
			primary = append(primary, mp)
		}
	}
	if len(primary) > 0 {
		return primary
	}
	if len(fallback) > 0 {
		return fallback
	}
	return c.providers
}

func (c *Composite) healthy(mp *managedProvider) bool {
	if mp.breaker.State() == gobreaker.StateOpen {
		return false
	}
	return mp.health.SuccessEMA() >= mp.cfg.HealthThreshold
}

// fetchWithRetry runs one adapter's attempts through its circuit breaker,
// recording health and metrics per real attempt. Breaker rejections are not
// retried; they simply move the composite on to the next adapter.
func (c *Composite) fetchWithRetry(ctx context.Context, mp *managedProvider, q Query) ([]market.Bar, error) {
	var bars []market.Bar
	err := WithRetry(ctx, c.retry, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, mp.cfg.Timeout)
		defer cancel()

		start := time.Now()
		result, err := mp.breaker.Execute(func() (interface{}, error) {
			return mp.adapter().GetBars(attemptCtx, q)
		})
		elapsed := time.Since(start)

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			// The attempt never reached the provider; health stays as-is.
			return err
		}

		success := err == nil
		mp.health.Record(success, elapsed, err)
		c.metrics.recordAttempt(mp.cfg.Name, success, elapsed.Seconds())
		c.metrics.recordCircuitState(mp.cfg.Name, mp.breaker.State())

		if err != nil {
			return err
		}
		bars, _ = result.([]market.Bar)
		return nil
	})
	return bars, err
}

// writeCache stores the fetched series with a recency TTL. Failures are the
// backend's problem to log; the request path never blocks on them.
func (c *Composite) writeCache(ctx context.Context, key string, tf market.Timeframe, bars []market.Bar) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(bars)
	if err != nil {
		log.Warn().
			Err(err).
			Str("key", key).
			Msg("Failed to serialize bars for cache")
		return
	}
	_ = c.cache.Set(ctx, key, data, c.ttl.TTLFor(tf))
}

// archiveBars upserts the series into the persistent store off the request
// path.
func (c *Composite) archiveBars(q Query, bars []market.Bar) {
	if c.archive == nil || len(bars) == 0 {
		return
	}
	symbol := q.Symbol.Canonical
	tf := q.Timeframe
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := c.archive.UpsertBars(ctx, symbol, tf, bars); err != nil {
			log.Warn().
				Err(err).
				Str("symbol", symbol).
				Str("timeframe", tf.String()).
				Msg("Failed to archive bars")
		}
	}()
}

// ValidateSymbol reports whether any adapter recognizes the symbol.
func (c *Composite) ValidateSymbol(sym market.Symbol) bool {
	for _, mp := range c.providers {
		if mp.adapter().ValidateSymbol(sym) {
			return true
		}
	}
	return false
}

// Subscribe delegates to the first healthy adapter that advertises realtime
// support.
func (c *Composite) Subscribe(ctx context.Context, sym market.Symbol, tf market.Timeframe, handler BarHandler) error {
	for _, mp := range c.providers {
		if !mp.adapter().Capabilities().SupportsRealtime || !c.healthy(mp) {
			continue
		}
		sub, ok := mp.adapter().(Subscriber)
		if !ok {
			continue
		}
		if err := sub.Subscribe(ctx, sym, tf, handler); err != nil {
			log.Warn().
				Err(err).
				Str("provider", mp.cfg.Name).
				Msg("Subscription failed, trying next provider")
			continue
		}
		log.Debug().
			Str("provider", mp.cfg.Name).
			Str("symbol", sym.Canonical).
			Str("timeframe", tf.String()).
			Msg("Realtime subscription established")
		return nil
	}
	return market.NewTransportError("composite", fmt.Errorf("no realtime-capable provider available"))
}

// UnsubscribeAll fans out to every adapter that can stream.
func (c *Composite) UnsubscribeAll() {
	for _, mp := range c.providers {
		if sub, ok := mp.adapter().(Subscriber); ok {
			sub.UnsubscribeAll()
		}
	}
}

// Status snapshots every managed adapter for the read-only API.
func (c *Composite) Status() []ProviderStatus {
	out := make([]ProviderStatus, 0, len(c.providers))
	for _, mp := range c.providers {
		out = append(out, ProviderStatus{
			Name:         mp.cfg.Name,
			Priority:     mp.cfg.Priority,
			FallbackOnly: mp.cfg.FallbackOnly,
			CircuitState: mp.breaker.State().String(),
			Health:       mp.health.Snapshot(),
		})
	}
	return out
}

func (mp *managedProvider) adapter() Provider {
	return mp.cfg.Adapter
}
