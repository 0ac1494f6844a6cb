// Package pipeline composes the data and analysis layers into single-call
// report generation: resolve the symbol, fetch bars through the composite
// provider, fan the engines out, assemble the report, then cache, archive
// and publish it.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/bias"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/cache"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/confluence"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/provider"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/risk"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/session"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/store"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/webhook"
)

// BarSource is the slice of the composite provider the orchestrator needs.
type BarSource interface {
	GetBars(ctx context.Context, q provider.Query) ([]market.Bar, error)
	ValidateSymbol(sym market.Symbol) bool
}

// Config tunes the orchestrator and carries the engine tunings. The engine
// sections participate in the report cache key, so retuning any of them
// invalidates previously cached reports.
type Config struct {
	Confluence confluence.Config `mapstructure:"confluence"`
	Bias       bias.Config       `mapstructure:"bias"`
	Risk       risk.Config       `mapstructure:"risk"`

	// BarLimit is the window fetched when a request sets no bounds.
	BarLimit int `mapstructure:"bar_limit"`
	// MinPrimaryBars is the shortest primary window analysis accepts. A
	// shorter auxiliary window only warns.
	MinPrimaryBars int `mapstructure:"min_primary_bars"`
	// StopLookback bounds the swing-extreme fallback for stop placement.
	StopLookback int `mapstructure:"stop_lookback"`
	// RewardRTarget is the take-profit distance in R when the setup itself
	// does not pin one.
	RewardRTarget float64 `mapstructure:"reward_r_target"`
	// DefaultTimeframe serves alert-triggered runs whose alert carries no
	// usable timeframe.
	DefaultTimeframe string `mapstructure:"default_timeframe"`
	// DefaultBalance sizes alert-triggered execution plans. Zero skips the
	// plan unless the request supplies a balance.
	DefaultBalance float64 `mapstructure:"default_balance"`
}

// DefaultConfig returns the standard orchestrator tuning with engine
// defaults.
func DefaultConfig() Config {
	return Config{
		Confluence:       confluence.DefaultConfig(),
		Bias:             bias.DefaultConfig(),
		Risk:             risk.DefaultConfig(),
		BarLimit:         200,
		MinPrimaryBars:   30,
		StopLookback:     10,
		RewardRTarget:    2.0,
		DefaultTimeframe: string(market.TimeframeM5),
	}
}

func (c *Config) applyDefaults() {
	if c.BarLimit <= 0 {
		c.BarLimit = 200
	}
	if c.MinPrimaryBars <= 0 {
		c.MinPrimaryBars = 30
	}
	if c.StopLookback <= 0 {
		c.StopLookback = 10
	}
	if c.RewardRTarget <= 0 {
		c.RewardRTarget = 2.0
	}
	if c.DefaultTimeframe == "" {
		c.DefaultTimeframe = string(market.TimeframeM5)
	}
}

// Deps are the infrastructure hooks an orchestrator runs on. Source and
// Calendar are required; everything else degrades gracefully when absent.
type Deps struct {
	Source   BarSource
	Cache    cache.Store // report cache; nil disables report caching
	TTL      cache.TTLPolicy
	Calendar *session.Calendar
	Tracker  *risk.DailyStopTracker // nil skips daily-loss accounting
	Reports  *store.ReportStore     // nil skips archiving
	Events   Publisher              // nil skips event publishing
}

// Orchestrator runs the end-to-end analysis: fetch, analyze, assemble,
// remember. Safe for concurrent use.
type Orchestrator struct {
	cfg        Config
	source     BarSource
	cache      cache.Store
	ttl        cache.TTLPolicy
	confluence *confluence.Engine
	bias       *bias.Engine
	risk       *risk.Engine
	reports    *store.ReportStore
	events     Publisher
	configHash string

	mu     sync.RWMutex
	latest map[string][]byte // canonical symbol -> last assembled report
}

// New builds the orchestrator and its engines.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	cfg.applyDefaults()
	if deps.Source == nil {
		return nil, market.NewConfigurationError("orchestrator needs a bar source")
	}
	if deps.Calendar == nil {
		return nil, market.NewConfigurationError("orchestrator needs a session calendar")
	}

	confEngine, err := confluence.NewEngine(cfg.Confluence)
	if err != nil {
		return nil, err
	}
	riskEngine, err := risk.NewEngine(cfg.Risk, deps.Tracker)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:        cfg,
		source:     deps.Source,
		cache:      deps.Cache,
		ttl:        deps.TTL,
		confluence: confEngine,
		bias:       bias.NewEngine(deps.Calendar, cfg.Bias),
		risk:       riskEngine,
		reports:    deps.Reports,
		events:     deps.Events,
		configHash: hashConfig(cfg),
		latest:     make(map[string][]byte),
	}

	log.Info().
		Str("config_hash", o.configHash).
		Int("bar_limit", cfg.BarLimit).
		Int("min_primary_bars", cfg.MinPrimaryBars).
		Msg("Pipeline orchestrator initialized")

	return o, nil
}

// hashConfig fingerprints every tuning that changes analysis output. The
// fingerprint keys cached reports, so stale tunings never serve.
func hashConfig(cfg Config) string {
	payload, err := json.Marshal(struct {
		Confluence confluence.Config
		Bias       bias.Config
		Risk       risk.Config
		MinBars    int
		Lookback   int
		RewardR    float64
	}{cfg.Confluence, cfg.Bias, cfg.Risk, cfg.MinPrimaryBars, cfg.StopLookback, cfg.RewardRTarget})
	if err != nil {
		// Config structs are plain data; this cannot fail at runtime.
		payload = []byte(fmt.Sprintf("%+v", cfg))
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:6])
}

// ConfigHash exposes the cache-key fingerprint, mainly for logs and tests.
func (o *Orchestrator) ConfigHash() string { return o.configHash }

// Analyze runs one analysis request end to end and returns the assembled
// report. Validation failures, an unresolvable symbol, a short primary
// window and cancellation return errors; sub-engine trouble degrades the
// affected section and lands in report warnings instead.
func (o *Orchestrator) Analyze(ctx context.Context, req Request) (*Report, error) {
	start := time.Now()
	rep, err := o.analyze(ctx, req)
	initMetrics().recordAnalysis(string(req.Kind), err == nil, time.Since(start).Seconds())
	return rep, err
}

func (o *Orchestrator) analyze(ctx context.Context, req Request) (*Report, error) {
	start := time.Now()

	kind, err := ParseKind(string(req.Kind))
	if err != nil {
		return nil, err
	}
	sym, err := market.NormalizeSymbol(req.Symbol)
	if err != nil {
		return nil, err
	}
	if !o.source.ValidateSymbol(sym) {
		return nil, market.NewSymbolResolutionError(sym.Canonical, "")
	}
	tf, err := market.ParseTimeframe(req.Timeframe)
	if err != nil {
		return nil, err
	}
	var auxTf market.Timeframe
	if req.AuxTimeframe != "" {
		if auxTf, err = market.ParseTimeframe(req.AuxTimeframe); err != nil {
			return nil, err
		}
	}
	if req.Date != "" {
		if _, err := time.Parse("2006-01-02", req.Date); err != nil {
			return nil, market.NewValidationError(market.CodeInvalidFormat,
				fmt.Sprintf("date %q is not YYYY-MM-DD", req.Date))
		}
		if rep, ok := o.cachedReport(ctx, kind, sym, tf, req.Date); ok {
			return rep, nil
		}
	}

	limit := req.Limit
	if limit <= 0 && req.From == nil {
		limit = o.cfg.BarLimit
	}
	bars, err := o.source.GetBars(ctx, provider.Query{
		Symbol: sym, Timeframe: tf, From: req.From, To: req.To, Limit: limit,
	})
	if err != nil {
		return nil, err
	}
	if len(bars) < o.cfg.MinPrimaryBars {
		return nil, market.NewError(market.KindInsufficientBars, market.CodeMissingData,
			fmt.Sprintf("primary %s window holds %d bars; analysis needs %d", tf, len(bars), o.cfg.MinPrimaryBars)).
			WithData("received", len(bars)).
			WithData("required", o.cfg.MinPrimaryBars)
	}

	date := req.Date
	if date == "" {
		date = bars[len(bars)-1].Timestamp.UTC().Format("2006-01-02")
		if rep, ok := o.cachedReport(ctx, kind, sym, tf, date); ok {
			return rep, nil
		}
	}

	var warnings []string
	var auxBars []market.Bar
	if auxTf != "" {
		auxBars, err = o.source.GetBars(ctx, provider.Query{
			Symbol: sym, Timeframe: auxTf, From: req.From, To: req.To, Limit: limit,
		})
		switch {
		case err != nil && (market.KindOf(err) == market.KindCancelled || ctx.Err() != nil):
			return nil, err
		case err != nil:
			warnings = append(warnings, fmt.Sprintf("auxiliary %s window unavailable: %v", auxTf, err))
			auxBars = nil
		case len(auxBars) < o.cfg.MinPrimaryBars:
			warnings = append(warnings,
				fmt.Sprintf("auxiliary %s window holds %d bars; using it for entry refinement only", auxTf, len(auxBars)))
		}
	}

	var (
		confReport *confluence.Report
		confWarn   string
		biasResult *bias.Result
		biasWarn   string
	)
	g, _ := errgroup.WithContext(ctx)
	if kind.wantsConfluence() {
		g.Go(func() error {
			rep, err := o.confluence.Analyze(sym, tf, bars)
			if err != nil {
				confWarn = fmt.Sprintf("confluence section degraded to neutral: %v", err)
				return nil
			}
			confReport = rep
			return nil
		})
	}
	if kind.wantsBias() {
		g.Go(func() error {
			res, err := o.bias.Analyze(sym, tf, date, bars)
			if err != nil {
				biasWarn = fmt.Sprintf("bias section degraded to neutral: %v", err)
				return nil
			}
			biasResult = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, market.NewCancelledError(err)
	}

	rep := &Report{
		Symbol:    sym.Canonical,
		Timeframe: tf,
		Date:      date,
		Kind:      kind,
		Statistics: Statistics{
			BarsAnalyzed:    len(bars),
			AuxBarsAnalyzed: len(auxBars),
			Timeframe:       tf,
			Range:           rangeOf(bars),
		},
		Timestamp: time.Now().UTC(),
	}
	rep.Warnings = append(rep.Warnings, warnings...)
	if confWarn != "" {
		rep.Warnings = append(rep.Warnings, confWarn)
	}
	if biasWarn != "" {
		rep.Warnings = append(rep.Warnings, biasWarn)
	}

	rep.Analysis = Analysis{Bias: bias.LabelNeutral, Profile: bias.ProfileP3}
	if biasResult != nil {
		rep.Analysis = Analysis{
			Bias:     biasResult.Label,
			Profile:  biasResult.Profile,
			Sessions: biasResult.Sessions,
			Detail:   biasResult,
		}
	}
	rep.Confluence = confReport

	if kind.wantsExecution() {
		plan, planWarnings := o.buildExecution(req, biasResult, confReport, bars, auxBars)
		rep.Execution = plan
		rep.Warnings = append(rep.Warnings, planWarnings...)
	}

	switch kind {
	case KindDaily:
		rep.Success = biasResult != nil
	case KindConfluence:
		rep.Success = confReport != nil
	case KindExecution:
		rep.Success = rep.Execution != nil
	}

	payload, err := json.Marshal(rep)
	if err != nil {
		return nil, market.NewError(market.KindAnalysisError, market.CodeInternalError,
			"report serialization failed").WithCause(err)
	}

	o.rememberLatest(sym.Canonical, payload)
	if o.cache != nil {
		key := cache.ReportKey(string(kind), sym.Canonical, tf, date, o.configHash)
		if err := o.cache.Set(ctx, key, payload, o.ttl.TTLFor(tf)); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Report cache write failed")
		}
	}
	if o.reports != nil {
		if err := o.reports.SaveReport(ctx, store.ReportRecord{
			Kind:      string(kind),
			Symbol:    sym.Canonical,
			Timeframe: tf,
			Date:      date,
			Payload:   payload,
		}); err != nil {
			log.Warn().Err(err).Str("symbol", sym.Canonical).Msg("Report archive write failed")
		}
	}
	if o.events != nil {
		if err := o.events.PublishReport(ctx, rep); err != nil {
			log.Warn().Err(err).Str("symbol", sym.Canonical).Msg("Report publish failed")
		}
	}

	log.Info().
		Str("symbol", sym.Canonical).
		Str("timeframe", tf.String()).
		Str("kind", string(kind)).
		Str("date", date).
		Bool("success", rep.Success).
		Int("bars", len(bars)).
		Int("warnings", len(rep.Warnings)).
		Dur("elapsed", time.Since(start)).
		Msg("Analysis complete")

	return rep, nil
}

// buildExecution derives trade geometry from the analysis sections and sizes
// it. Missing geometry or plan rejection is a warning, not a failure: the
// rest of the report still renders.
func (o *Orchestrator) buildExecution(req Request, biasRes *bias.Result, conf *confluence.Report, bars, auxBars []market.Bar) (*risk.ExecutionPlan, []string) {
	setup, reason := deriveSetup(biasRes, conf, bars, auxBars, o.cfg.RewardRTarget, o.cfg.StopLookback)
	if setup == nil {
		return nil, []string{reason}
	}

	balance := req.Balance
	if balance <= 0 {
		balance = o.cfg.DefaultBalance
	}
	if balance <= 0 {
		return nil, []string{"no account balance provided; skipping execution plan"}
	}

	plan, err := o.risk.BuildPlan(risk.PlanRequest{
		Direction:  setup.direction,
		Entry:      setup.entry,
		Stop:       setup.stop,
		TakeProfit: setup.takeProfit,
		Balance:    balance,
		Stats:      req.Stats,
	})
	if err != nil {
		return nil, []string{fmt.Sprintf("execution plan skipped: %v", err)}
	}

	log.Debug().
		Str("direction", string(setup.direction)).
		Float64("entry", setup.entry).
		Float64("stop", setup.stop).
		Str("stop_basis", setup.stopBasis).
		Float64("take_profit", setup.takeProfit).
		Msg("Execution setup derived")

	return plan, nil
}

// cachedReport serves a previously assembled report when one is cached under
// the same kind, symbol, timeframe, date and config fingerprint.
func (o *Orchestrator) cachedReport(ctx context.Context, kind Kind, sym market.Symbol, tf market.Timeframe, date string) (*Report, bool) {
	if o.cache == nil {
		return nil, false
	}
	key := cache.ReportKey(string(kind), sym.Canonical, tf, date, o.configHash)
	payload, ok := o.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var rep Report
	if err := json.Unmarshal(payload, &rep); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cached report unreadable; recomputing")
		return nil, false
	}
	rep.CacheHit = true
	log.Debug().Str("key", key).Msg("Report served from cache")
	return &rep, true
}

func (o *Orchestrator) rememberLatest(symbol string, payload []byte) {
	o.mu.Lock()
	o.latest[symbol] = payload
	o.mu.Unlock()
}

// LatestReport returns the most recent report assembled for a symbol in this
// process. It backs the read-only report endpoint.
func (o *Orchestrator) LatestReport(ctx context.Context, symbol string) (json.RawMessage, bool, error) {
	sym, err := market.NormalizeSymbol(symbol)
	if err != nil {
		return nil, false, err
	}
	o.mu.RLock()
	payload, ok := o.latest[sym.Canonical]
	o.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return json.RawMessage(payload), true, nil
}

// DispatchAlert feeds an accepted webhook alert into the analytical path:
// the alert is forwarded to downstream consumers, then the alert's symbol is
// re-analyzed on its timeframe.
func (o *Orchestrator) DispatchAlert(ctx context.Context, alert *webhook.Alert) error {
	if alert == nil {
		return market.NewValidationError(market.CodeInvalidArgs, "nil alert")
	}
	if o.events != nil {
		if err := o.events.PublishAlert(ctx, alert); err != nil {
			log.Warn().Err(err).Str("alert_id", alert.ID).Msg("Alert publish failed")
		}
	}

	tf := o.cfg.DefaultTimeframe
	if alert.Timeframe != "" {
		if _, err := market.ParseTimeframe(alert.Timeframe); err == nil {
			tf = alert.Timeframe
		} else {
			log.Debug().
				Str("alert_id", alert.ID).
				Str("timeframe", alert.Timeframe).
				Msg("Alert timeframe unsupported; using default")
		}
	}

	_, err := o.Analyze(ctx, Request{Symbol: alert.Symbol, Timeframe: tf, Kind: KindExecution})
	return err
}
