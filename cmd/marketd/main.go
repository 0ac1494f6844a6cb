// marketd is the market-data analysis service: ranked provider chain with
// caching, session-aware bias / confluence / risk analytics, and a webhook
// ingest endpoint feeding the same pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/cache"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/config"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/metrics"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/pipeline"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/provider"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/risk"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/session"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/store"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/webhook"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	verifyConfig := flag.Bool("verify-config", false, "Validate configuration and exit")
	verifyProviders := flag.Bool("verify-providers", false, "Probe provider endpoints during startup validation")
	flag.Parse()

	if err := run(*configPath, *verifyConfig, *verifyProviders); err != nil {
		fmt.Fprintf(os.Stderr, "marketd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, verifyConfig, verifyProviders bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	metrics.SetBuildInfo(config.Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Secrets resolve from Vault when enabled, else stay with env/config.
	if err := config.LoadSecretsFromVault(ctx, cfg, config.GetVaultConfigFromEnv()); err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}

	opts := config.DefaultValidatorOptions()
	opts.VerifyProviders = verifyProviders
	if verifyConfig {
		if err := config.NewValidator(cfg, opts).ValidateStartup(ctx); err != nil {
			return err
		}
		log.Info().Msg("Configuration is valid")
		return nil
	}
	if err := config.NewValidator(cfg, opts).ValidateStartup(ctx); err != nil {
		return fmt.Errorf("startup validation failed: %w", err)
	}

	log.Info().
		Str("version", config.Version).
		Str("environment", cfg.App.Environment).
		Msg("Starting marketd")

	// Cache backend: Redis when enabled, in-memory otherwise.
	var cacheStore cache.Store
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("Redis unreachable at startup; cache reads will miss until it recovers")
		}
		cacheStore = cache.NewRedis(redisClient, cfg.Cache.ScanPattern)
		defer func() { _ = redisClient.Close() }()
	} else {
		cacheStore = cache.NewMemory()
	}

	ttl, err := cache.NewTTLPolicy(cfg.Cache.TTLOverrides)
	if err != nil {
		return fmt.Errorf("invalid cache TTL overrides: %w", err)
	}

	// Optional Postgres archive.
	var barStore *store.BarStore
	var reportStore *store.ReportStore
	var poolUpdater *metrics.PoolUpdater
	if cfg.Database.Enabled {
		db, err := store.New(ctx, cfg.Database.GetDSN())
		if err != nil {
			return fmt.Errorf("failed to connect to archive database: %w", err)
		}
		defer db.Close()
		barStore = store.NewBarStore(db.Pool())
		reportStore = store.NewReportStore(db.Pool())

		poolUpdater = metrics.NewPoolUpdater(db.Pool(), 15*time.Second)
		go poolUpdater.Start(ctx)
		defer poolUpdater.Stop()
	}

	adapters, err := buildAdapters(cfg.Providers)
	if err != nil {
		return err
	}
	composite, err := provider.NewComposite(provider.CompositeConfig{
		Providers: adapters,
		Retry: provider.RetryConfig{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialDelay:    cfg.Retry.InitialDelay,
			MaxDelay:        cfg.Retry.MaxDelay,
			ExponentialBase: cfg.Retry.ExponentialBase,
			Jitter:          cfg.Retry.Jitter,
		},
		Breaker: provider.BreakerConfig{
			Threshold:      cfg.Breaker.Threshold,
			Reset:          cfg.Breaker.Reset,
			HalfOpenProbes: cfg.Breaker.HalfOpenProbes,
		},
		CoverageThreshold: cfg.Cache.CoverageThreshold,
	}, cacheStore, ttl, barStore)
	if err != nil {
		return fmt.Errorf("failed to build composite provider: %w", err)
	}
	defer composite.UnsubscribeAll()

	calendar, err := session.NewCalendar(cfg.Session)
	if err != nil {
		return fmt.Errorf("failed to build session calendar: %w", err)
	}

	tracker, err := risk.NewDailyStopTracker(cfg.Pipeline.Risk.DailyStop)
	if err != nil {
		return fmt.Errorf("failed to build daily stop tracker: %w", err)
	}

	deps := pipeline.Deps{
		Source:   composite,
		Cache:    cacheStore,
		TTL:      ttl,
		Calendar: calendar,
		Tracker:  tracker,
		Reports:  reportStore,
	}
	if cfg.NATS.Enabled {
		bus, err := pipeline.NewBus(pipeline.BusConfig{
			URL:            cfg.NATS.URL,
			Name:           cfg.NATS.Name,
			ReportsSubject: cfg.NATS.ReportsSubject,
			AlertsSubject:  cfg.NATS.AlertsSubject,
		})
		if err != nil {
			return fmt.Errorf("failed to connect event bus: %w", err)
		}
		defer bus.Close()
		deps.Events = bus
	}

	orch, err := pipeline.New(cfg.Pipeline, deps)
	if err != nil {
		return fmt.Errorf("failed to build orchestrator: %w", err)
	}

	srv, err := webhook.NewServer(webhook.Config{
		Host:         cfg.Webhook.Host,
		Port:         cfg.Webhook.Port,
		Path:         cfg.Webhook.Path,
		Secret:       cfg.Webhook.Secret,
		MaxBodyBytes: cfg.Webhook.MaxBodyBytes,
		RateLimit: webhook.RateLimitConfig{
			PerMinute: cfg.Webhook.RateLimit.PerMinute,
			PerHour:   cfg.Webhook.RateLimit.PerHour,
		},
		DedupWindow:  cfg.Webhook.DedupWindow,
		AllowOrigins: cfg.Webhook.AllowOrigins,
		Dispatcher:   orch,
		Providers:    composite,
		Reports:      orch,
	})
	if err != nil {
		return fmt.Errorf("failed to build webhook server: %w", err)
	}

	var metricsServer *metrics.Server
	if cfg.Monitoring.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Monitoring.PrometheusPort, log.Logger)
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Webhook server shutdown failed")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Metrics server shutdown failed")
		}
	}

	log.Info().Msg("marketd stopped")
	return nil
}

// buildAdapters turns provider config entries into ranked composite slots.
func buildAdapters(entries []config.ProviderConfig) ([]provider.AdapterConfig, error) {
	adapters := make([]provider.AdapterConfig, 0, len(entries))
	for _, p := range entries {
		adapter, err := buildAdapter(p)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, provider.AdapterConfig{
			Name:            p.Name,
			Adapter:         adapter,
			Priority:        p.Priority,
			Timeout:         p.Timeout,
			HealthThreshold: p.HealthThreshold,
			FallbackOnly:    p.FallbackOnly,
		})
	}
	return adapters, nil
}

func buildAdapter(p config.ProviderConfig) (provider.Provider, error) {
	switch p.Type {
	case "fixture":
		return provider.NewFixture(provider.FixtureConfig{
			BasePrice: p.Fixture.BasePrice,
			Trend:     p.Fixture.Trend,
			Noise:     p.Fixture.Noise,
			Seed:      p.Fixture.Seed,
			Volume:    p.Fixture.Volume,
		}), nil
	case "httpapi":
		timeframes, err := parseTimeframes(p.HTTPAPI.Timeframes)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", p.Name, err)
		}
		var historicalFrom time.Time
		if p.HTTPAPI.HistoricalFrom != "" {
			historicalFrom, err = time.Parse("2006-01-02", p.HTTPAPI.HistoricalFrom)
			if err != nil {
				return nil, fmt.Errorf("provider %s: historical_from %q is not YYYY-MM-DD", p.Name, p.HTTPAPI.HistoricalFrom)
			}
		}
		return provider.NewHTTPAPI(provider.HTTPAPIConfig{
			BaseURL:               p.HTTPAPI.BaseURL,
			BarsPath:              p.HTTPAPI.BarsPath,
			APIKey:                p.HTTPAPI.APIKey,
			AuthHeader:            p.HTTPAPI.AuthHeader,
			Timeout:               p.HTTPAPI.Timeout,
			RateLimitPerSecond:    p.HTTPAPI.RateLimitPerSecond,
			RateBurst:             p.HTTPAPI.RateBurst,
			SupportedTimeframes:   timeframes,
			MaxBarsPerRequest:     p.HTTPAPI.MaxBarsPerRequest,
			HistoricalFrom:        historicalFrom,
			SupportsExtendedHours: p.HTTPAPI.ExtendedHours,
			WebsocketURL:          p.HTTPAPI.WebsocketURL,
		})
	case "binance":
		return provider.NewBinance(provider.BinanceConfig{
			APIKey:    p.Binance.APIKey,
			SecretKey: p.Binance.SecretKey,
			Testnet:   p.Binance.Testnet,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q for provider %s", p.Type, p.Name)
	}
}

func parseTimeframes(raw []string) ([]market.Timeframe, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]market.Timeframe, 0, len(raw))
	for _, s := range raw {
		tf, err := market.ParseTimeframe(s)
		if err != nil {
			return nil, err
		}
		out = append(out, tf)
	}
	return out, nil
}
