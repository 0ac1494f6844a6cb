package config

import (
	"fmt"
	"strings"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// Validate performs comprehensive configuration validation
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateDatabase()...)
	errors = append(errors, c.validateRedis()...)
	errors = append(errors, c.validateNATS()...)
	errors = append(errors, c.validateProviders()...)
	errors = append(errors, c.validateCache()...)
	errors = append(errors, c.validateWebhook()...)
	errors = append(errors, c.validatePipeline()...)
	errors = append(errors, c.validateMonitoring()...)
	errors = append(errors, c.validateEnvironmentRequirements()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "app.name",
			Message: "Application name is required",
		})
	}

	if c.App.Environment == "" {
		errors = append(errors, ValidationError{
			Field:   "app.environment",
			Message: "Environment is required (development, staging, or production)",
		})
	} else {
		validEnvs := []string{"development", "staging", "production"}
		valid := false
		for _, env := range validEnvs {
			if c.App.Environment == env {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, ValidationError{
				Field:   "app.environment",
				Message: fmt.Sprintf("Invalid environment '%s'. Must be one of: %v", c.App.Environment, validEnvs),
			})
		}
	}

	if c.App.LogLevel == "" {
		errors = append(errors, ValidationError{
			Field:   "app.log_level",
			Message: "Log level is required (debug, info, warn, error)",
		})
	}

	return errors
}

func (c *Config) validateDatabase() ValidationErrors {
	var errors ValidationErrors

	if !c.Database.Enabled {
		return errors
	}

	if c.Database.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "database.host",
			Message: "Database host is required when the archive is enabled",
		})
	}

	if c.Database.Port == 0 {
		errors = append(errors, ValidationError{
			Field:   "database.port",
			Message: "Database port is required",
		})
	} else if c.Database.Port < 1 || c.Database.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "database.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Database.Port),
		})
	}

	if c.Database.User == "" {
		errors = append(errors, ValidationError{
			Field:   "database.user",
			Message: "Database user is required",
		})
	}

	if c.Database.Database == "" {
		errors = append(errors, ValidationError{
			Field:   "database.database",
			Message: "Database name is required",
		})
	}

	if c.Database.Password == "" && c.App.Environment != "development" {
		errors = append(errors, ValidationError{
			Field:   "database.password",
			Message: "Database password is required in non-development environments",
		})
	}

	if c.Database.PoolSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.pool_size",
			Message: "Database pool size must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateRedis() ValidationErrors {
	var errors ValidationErrors

	if !c.Redis.Enabled {
		return errors
	}

	if c.Redis.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "redis.host",
			Message: "Redis host is required when the cache is enabled",
		})
	}

	if c.Redis.Port == 0 {
		errors = append(errors, ValidationError{
			Field:   "redis.port",
			Message: "Redis port is required",
		})
	} else if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "redis.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Redis.Port),
		})
	}

	return errors
}

func (c *Config) validateNATS() ValidationErrors {
	var errors ValidationErrors

	if !c.NATS.Enabled {
		return errors
	}

	if c.NATS.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: "NATS URL is required when the event bus is enabled",
		})
	} else if !strings.HasPrefix(c.NATS.URL, "nats://") {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: "NATS URL must start with 'nats://'",
		})
	}

	return errors
}

func (c *Config) validateProviders() ValidationErrors {
	var errors ValidationErrors

	if len(c.Providers) == 0 {
		errors = append(errors, ValidationError{
			Field:   "providers",
			Message: "At least one market-data provider must be configured",
		})
		return errors
	}

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		field := fmt.Sprintf("providers[%d]", i)

		if p.Name == "" {
			errors = append(errors, ValidationError{
				Field:   field + ".name",
				Message: "Provider name is required",
			})
		} else if seen[p.Name] {
			errors = append(errors, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("Duplicate provider name '%s'", p.Name),
			})
		}
		seen[p.Name] = true

		switch p.Type {
		case "fixture", "binance":
		case "httpapi":
			if p.HTTPAPI.BaseURL == "" {
				errors = append(errors, ValidationError{
					Field:   field + ".httpapi.base_url",
					Message: "Base URL is required for httpapi providers",
				})
			}
		default:
			errors = append(errors, ValidationError{
				Field:   field + ".type",
				Message: fmt.Sprintf("Invalid provider type '%s'. Must be fixture, httpapi or binance", p.Type),
			})
		}

		if p.HealthThreshold < 0 || p.HealthThreshold > 100 {
			errors = append(errors, ValidationError{
				Field:   field + ".health_threshold",
				Message: fmt.Sprintf("Invalid health_threshold %.2f. Must be on the 0-100 success-EMA scale", p.HealthThreshold),
			})
		}

		if p.Timeout < 0 {
			errors = append(errors, ValidationError{
				Field:   field + ".timeout",
				Message: "Timeout must be non-negative",
			})
		}
	}

	return errors
}

func (c *Config) validateCache() ValidationErrors {
	var errors ValidationErrors

	if c.Cache.CoverageThreshold <= 0 || c.Cache.CoverageThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "cache.coverage_threshold",
			Message: fmt.Sprintf("Invalid coverage_threshold %.2f. Must be between 0-1", c.Cache.CoverageThreshold),
		})
	}

	for raw := range c.Cache.TTLOverrides {
		if _, err := market.ParseTimeframe(raw); err != nil {
			errors = append(errors, ValidationError{
				Field:   "cache.ttl_overrides",
				Message: fmt.Sprintf("Unknown timeframe '%s'", raw),
			})
		}
	}

	return errors
}

func (c *Config) validateWebhook() ValidationErrors {
	var errors ValidationErrors

	if c.Webhook.Port == 0 {
		errors = append(errors, ValidationError{
			Field:   "webhook.port",
			Message: "Webhook port is required",
		})
	} else if c.Webhook.Port < 1 || c.Webhook.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "webhook.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Webhook.Port),
		})
	}

	if c.Webhook.Secret == "" && c.App.Environment != "development" {
		errors = append(errors, ValidationError{
			Field:   "webhook.secret",
			Message: "Webhook HMAC secret is required in non-development environments",
		})
	}

	if c.Webhook.RateLimit.PerMinute < 0 || c.Webhook.RateLimit.PerHour < 0 {
		errors = append(errors, ValidationError{
			Field:   "webhook.rate_limit",
			Message: "Rate limits must be non-negative",
		})
	}

	if c.Webhook.MaxBodyBytes < 0 {
		errors = append(errors, ValidationError{
			Field:   "webhook.max_body_bytes",
			Message: "Max body bytes must be non-negative",
		})
	}

	return errors
}

func (c *Config) validatePipeline() ValidationErrors {
	var errors ValidationErrors

	if c.Pipeline.BarLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.bar_limit",
			Message: "Bar limit must be non-negative",
		})
	}

	if c.Pipeline.MinPrimaryBars < 0 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.min_primary_bars",
			Message: "Minimum primary bars must be non-negative",
		})
	}

	if c.Pipeline.BarLimit > 0 && c.Pipeline.MinPrimaryBars > c.Pipeline.BarLimit {
		errors = append(errors, ValidationError{
			Field:   "pipeline.min_primary_bars",
			Message: fmt.Sprintf("Minimum primary bars (%d) cannot exceed the bar limit (%d)",
				c.Pipeline.MinPrimaryBars, c.Pipeline.BarLimit),
		})
	}

	if c.Pipeline.RewardRTarget < 0 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.reward_r_target",
			Message: "Reward target must be non-negative",
		})
	}

	if c.Pipeline.DefaultTimeframe != "" {
		if _, err := market.ParseTimeframe(c.Pipeline.DefaultTimeframe); err != nil {
			errors = append(errors, ValidationError{
				Field:   "pipeline.default_timeframe",
				Message: fmt.Sprintf("Unknown timeframe '%s'", c.Pipeline.DefaultTimeframe),
			})
		}
	}

	if s := string(c.Pipeline.Risk.Sizing); s != "" && s != "fixed" && s != "kelly" {
		errors = append(errors, ValidationError{
			Field:   "pipeline.risk.sizing",
			Message: fmt.Sprintf("Invalid sizing mode '%s'. Must be 'fixed' or 'kelly'", s),
		})
	}

	if c.Pipeline.Risk.MaxRiskPercent < 0 || c.Pipeline.Risk.MaxRiskPercent > 100 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.risk.max_risk_percent",
			Message: fmt.Sprintf("Invalid max_risk_percent %.2f. Must be between 0-100", c.Pipeline.Risk.MaxRiskPercent),
		})
	}

	return errors
}

func (c *Config) validateMonitoring() ValidationErrors {
	var errors ValidationErrors

	if c.Monitoring.EnableMetrics {
		if c.Monitoring.PrometheusPort < 1 || c.Monitoring.PrometheusPort > 65535 {
			errors = append(errors, ValidationError{
				Field:   "monitoring.prometheus_port",
				Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Monitoring.PrometheusPort),
			})
		}
	}

	return errors
}

func (c *Config) validateEnvironmentRequirements() ValidationErrors {
	var errors ValidationErrors

	// Production-specific validations
	if c.App.Environment == "production" {
		// Validate production secrets strength
		secretErrors := ValidateProductionSecrets(c)
		errors = append(errors, secretErrors...)

		// Ensure no testnet upstreams in production
		for i, p := range c.Providers {
			if p.Type == "binance" && p.Binance.Testnet {
				errors = append(errors, ValidationError{
					Field:   fmt.Sprintf("providers[%d].binance.testnet", i),
					Message: "Testnet mode must be disabled in production",
				})
			}
		}

		// Ensure SSL for database in production
		if c.Database.Enabled && c.Database.SSLMode == "disable" {
			errors = append(errors, ValidationError{
				Field:   "database.ssl_mode",
				Message: "SSL must be enabled for database in production",
			})
		}
	}

	return errors
}

// ValidateAndLoad loads and validates configuration
// Returns the loaded config and any validation errors
// configPath can be empty to use default config locations
func ValidateAndLoad(configPath string) (*Config, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Validation is already called within Load(), but we can call it again
	// for explicit validation if Load() is modified in the future
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
