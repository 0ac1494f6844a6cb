package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/pipeline"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/session"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Providers  []ProviderConfig `mapstructure:"providers"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Session    session.Config   `mapstructure:"session"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Pipeline   pipeline.Config  `mapstructure:"pipeline"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // json or console
}

// DatabaseConfig contains PostgreSQL settings for the bar and report archive.
// The archive is optional; with Enabled false marketd runs cache-only.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis settings for the bar and report cache. The
// cache is optional; with Enabled false every read goes to the providers.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig contains event bus settings
type NATSConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	URL            string `mapstructure:"url"`
	Name           string `mapstructure:"name"`
	ReportsSubject string `mapstructure:"reports_subject"`
	AlertsSubject  string `mapstructure:"alerts_subject"`
}

// ProviderConfig describes one ranked market-data adapter. Type selects the
// adapter implementation; exactly one of the type-specific sections applies.
type ProviderConfig struct {
	Name            string        `mapstructure:"name"`
	Type            string        `mapstructure:"type"` // fixture, httpapi, binance
	Priority        int           `mapstructure:"priority"`
	Timeout         time.Duration `mapstructure:"timeout"`
	HealthThreshold float64       `mapstructure:"health_threshold"`
	FallbackOnly    bool          `mapstructure:"fallback_only"`

	HTTPAPI HTTPAPIProviderConfig `mapstructure:"httpapi"`
	Binance BinanceProviderConfig `mapstructure:"binance"`
	Fixture FixtureProviderConfig `mapstructure:"fixture"`
}

// HTTPAPIProviderConfig configures a generic JSON REST bars upstream
type HTTPAPIProviderConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	BarsPath           string        `mapstructure:"bars_path"`
	APIKey             string        `mapstructure:"api_key"`
	AuthHeader         string        `mapstructure:"auth_header"`
	Timeout            time.Duration `mapstructure:"timeout"`
	RateLimitPerSecond float64       `mapstructure:"rate_limit_per_second"`
	RateBurst          int           `mapstructure:"rate_burst"`
	Timeframes         []string      `mapstructure:"timeframes"`
	MaxBarsPerRequest  int           `mapstructure:"max_bars_per_request"`
	HistoricalFrom     string        `mapstructure:"historical_from"` // YYYY-MM-DD
	ExtendedHours      bool          `mapstructure:"extended_hours"`
	WebsocketURL       string        `mapstructure:"websocket_url"`
}

// BinanceProviderConfig configures the Binance spot adapter
type BinanceProviderConfig struct {
	APIKey    string `mapstructure:"api_key"`
	SecretKey string `mapstructure:"secret_key"`
	Testnet   bool   `mapstructure:"testnet"`
}

// FixtureProviderConfig configures the deterministic synthetic adapter
type FixtureProviderConfig struct {
	BasePrice float64 `mapstructure:"base_price"`
	Trend     float64 `mapstructure:"trend"`
	Noise     float64 `mapstructure:"noise"`
	Seed      int64   `mapstructure:"seed"`
	Volume    float64 `mapstructure:"volume"`
}

// RetryConfig contains per-adapter retry settings
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialDelay    time.Duration `mapstructure:"initial_delay"`
	MaxDelay        time.Duration `mapstructure:"max_delay"`
	ExponentialBase float64       `mapstructure:"exponential_base"`
	Jitter          time.Duration `mapstructure:"jitter"`
}

// BreakerConfig contains circuit breaker settings
type BreakerConfig struct {
	Threshold      float64       `mapstructure:"threshold"`
	Reset          time.Duration `mapstructure:"reset"`
	HalfOpenProbes uint32        `mapstructure:"half_open_probes"`
}

// CacheConfig tunes the read path shared by bars and reports
type CacheConfig struct {
	CoverageThreshold float64                  `mapstructure:"coverage_threshold"`
	TTLOverrides      map[string]time.Duration `mapstructure:"ttl_overrides"`
	ScanPattern       string                   `mapstructure:"scan_pattern"`
}

// WebhookConfig contains the alert ingest HTTP server settings
type WebhookConfig struct {
	Host         string                 `mapstructure:"host"`
	Port         int                    `mapstructure:"port"`
	Path         string                 `mapstructure:"path"`
	Secret       string                 `mapstructure:"secret"`
	MaxBodyBytes int64                  `mapstructure:"max_body_bytes"`
	RateLimit    WebhookRateLimitConfig `mapstructure:"rate_limit"`
	DedupWindow  time.Duration          `mapstructure:"dedup_window"`
	AllowOrigins []string               `mapstructure:"allow_origins"`
}

// WebhookRateLimitConfig contains per-IP rate limit settings
type WebhookRateLimitConfig struct {
	PerMinute int `mapstructure:"per_minute"`
	PerHour   int `mapstructure:"per_hour"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable overrides: MARKETD_DATABASE_PASSWORD
	// overrides database.password, and so on.
	v.AutomaticEnv()
	v.SetEnvPrefix("MARKETD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal into struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// List-valued sections cannot default through viper. An empty provider
	// list gets the offline fixture adapter so a bare binary still serves.
	if len(cfg.Providers) == 0 {
		cfg.Providers = []ProviderConfig{{
			Name:     "fixture",
			Type:     "fixture",
			Priority: 1,
		}}
	}
	if len(cfg.Session.Windows) == 0 {
		cfg.Session = session.DefaultConfig()
	}

	// Validate configuration using comprehensive validation
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "marketd")
	v.SetDefault("app.version", Version)
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", PostgresPort)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "marketd")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	// Redis defaults
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", RedisPort)
	v.SetDefault("redis.db", 0)

	// NATS defaults
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", fmt.Sprintf("nats://localhost:%d", NATSPort))
	v.SetDefault("nats.name", "marketd")
	v.SetDefault("nats.reports_subject", "market.reports")
	v.SetDefault("nats.alerts_subject", "market.alerts")

	// Retry defaults
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_delay", "250ms")
	v.SetDefault("retry.max_delay", "5s")
	v.SetDefault("retry.exponential_base", 2.0)
	v.SetDefault("retry.jitter", "100ms")

	// Breaker defaults. Threshold is on the 0-100 success-EMA scale.
	v.SetDefault("breaker.threshold", 30.0)
	v.SetDefault("breaker.reset", "30s")
	v.SetDefault("breaker.half_open_probes", 2)

	// Cache defaults
	v.SetDefault("cache.coverage_threshold", 0.90)
	v.SetDefault("cache.scan_pattern", "*")

	// Webhook defaults
	v.SetDefault("webhook.host", "0.0.0.0")
	v.SetDefault("webhook.port", WebhookPort)
	v.SetDefault("webhook.path", "/webhook/tradingview")
	v.SetDefault("webhook.max_body_bytes", 1<<20)
	v.SetDefault("webhook.rate_limit.per_minute", 60)
	v.SetDefault("webhook.rate_limit.per_hour", 600)
	v.SetDefault("webhook.dedup_window", "1m")
	v.SetDefault("webhook.allow_origins", []string{"*"})

	// Pipeline defaults
	v.SetDefault("pipeline.bar_limit", 200)
	v.SetDefault("pipeline.min_primary_bars", 30)
	v.SetDefault("pipeline.stop_lookback", 10)
	v.SetDefault("pipeline.reward_r_target", 2.0)
	v.SetDefault("pipeline.default_timeframe", "5m")
	v.SetDefault("pipeline.default_balance", 0.0)

	// Bias engine defaults
	v.SetDefault("pipeline.bias.swing_lookback", 5)
	v.SetDefault("pipeline.bias.bos_confirmation_candles", 2)
	v.SetDefault("pipeline.bias.ema_period", 20)

	// Confluence engine defaults
	v.SetDefault("pipeline.confluence.move_threshold", 1.0)
	v.SetDefault("pipeline.confluence.move_threshold_atr", true)
	v.SetDefault("pipeline.confluence.move_window", 6)
	v.SetDefault("pipeline.confluence.atr_period", 14)
	v.SetDefault("pipeline.confluence.rsi_period", 14)
	v.SetDefault("pipeline.confluence.reference_strength", 3.0)

	// Risk engine defaults
	v.SetDefault("pipeline.risk.sizing", "fixed")
	v.SetDefault("pipeline.risk.max_risk_percent", 1.0)
	v.SetDefault("pipeline.risk.max_position_percent", 100.0)
	v.SetDefault("pipeline.risk.lot_size", 1.0)
	v.SetDefault("pipeline.risk.kelly_fraction", 0.25)

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", MetricsPort)
	v.SetDefault("monitoring.enable_metrics", true)
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetListenAddr returns the webhook server listen address
func (c *WebhookConfig) GetListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
