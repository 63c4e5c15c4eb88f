package config

import (
	"fmt"
	"strings"
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
	errors = append(errors, c.validateMarketData()...)
	errors = append(errors, c.validateSimulation()...)
	errors = append(errors, c.validateAPI()...)
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

	if c.Database.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "database.host",
			Message: "Database host is required",
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

	if c.Redis.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "redis.host",
			Message: "Redis host is required",
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

	if c.Redis.CacheTTL < 0 {
		errors = append(errors, ValidationError{
			Field:   "redis.cache_ttl",
			Message: "Cache TTL must not be negative",
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
			Message: "NATS URL is required when NATS is enabled",
		})
	} else if !strings.HasPrefix(c.NATS.URL, "nats://") {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: "NATS URL must start with 'nats://'",
		})
	}

	if c.NATS.SubjectPrefix == "" {
		errors = append(errors, ValidationError{
			Field:   "nats.subject_prefix",
			Message: "NATS subject prefix is required when NATS is enabled",
		})
	}

	return errors
}

func (c *Config) validateMarketData() ValidationErrors {
	var errors ValidationErrors

	validSources := []string{"binance", "static", "synthetic"}
	valid := false
	for _, source := range validSources {
		if c.MarketData.Source == source {
			valid = true
			break
		}
	}
	if !valid {
		errors = append(errors, ValidationError{
			Field:   "market_data.source",
			Message: fmt.Sprintf("Invalid source '%s'. Must be one of: %v", c.MarketData.Source, validSources),
		})
	}

	if c.MarketData.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "market_data.rate_limit",
			Message: fmt.Sprintf("Rate limit must be positive, got %.2f", c.MarketData.RateLimit),
		})
	}

	if c.MarketData.RateBurst < 1 {
		errors = append(errors, ValidationError{
			Field:   "market_data.rate_burst",
			Message: "Rate burst must be at least 1",
		})
	}

	if c.MarketData.Source == "static" && c.MarketData.StaticFile == "" {
		errors = append(errors, ValidationError{
			Field:   "market_data.static_file",
			Message: "Static source requires a fixture file path",
		})
	}

	return errors
}

func (c *Config) validateSimulation() ValidationErrors {
	var errors ValidationErrors

	if len(c.Simulation.Anchors) == 0 {
		errors = append(errors, ValidationError{
			Field:   "simulation.anchors",
			Message: "At least one anchor symbol is required",
		})
	}

	if c.Simulation.ReserveSymbol == "" {
		errors = append(errors, ValidationError{
			Field:   "simulation.reserve_symbol",
			Message: "Reserve symbol is required",
		})
	}

	for _, anchor := range c.Simulation.Anchors {
		if anchor == c.Simulation.ReserveSymbol {
			errors = append(errors, ValidationError{
				Field:   "simulation.anchors",
				Message: fmt.Sprintf("Anchor %s collides with the reserve symbol", anchor),
			})
		}
	}

	if c.Simulation.UniverseSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "simulation.universe_size",
			Message: "Universe size must be at least 1",
		})
	}

	if c.Simulation.InitialCapital <= 0 {
		errors = append(errors, ValidationError{
			Field:   "simulation.initial_capital",
			Message: fmt.Sprintf("Initial capital must be positive, got %.2f", c.Simulation.InitialCapital),
		})
	}

	if c.Simulation.FeeRate < 0 || c.Simulation.FeeRate > 0.1 {
		errors = append(errors, ValidationError{
			Field:   "simulation.fee_rate",
			Message: fmt.Sprintf("Fee rate must be between 0 and 0.1, got %.4f", c.Simulation.FeeRate),
		})
	}

	if c.Simulation.ConversionFeeRate < 0 || c.Simulation.ConversionFeeRate > 0.1 {
		errors = append(errors, ValidationError{
			Field:   "simulation.conversion_fee_rate",
			Message: fmt.Sprintf("Conversion fee rate must be between 0 and 0.1, got %.4f", c.Simulation.ConversionFeeRate),
		})
	}

	if c.Simulation.HistoryCap > 0 && c.Simulation.WarmupPoints > c.Simulation.HistoryCap {
		errors = append(errors, ValidationError{
			Field:   "simulation.warmup_points",
			Message: fmt.Sprintf("Warmup points (%d) cannot exceed the history cap (%d)", c.Simulation.WarmupPoints, c.Simulation.HistoryCap),
		})
	}

	return errors
}

func (c *Config) validateAPI() ValidationErrors {
	var errors ValidationErrors

	if c.API.Port < 1 || c.API.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "api.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.API.Port),
		})
	}

	if c.Monitoring.EnableMetrics {
		if c.Monitoring.PrometheusPort < 1 || c.Monitoring.PrometheusPort > 65535 {
			errors = append(errors, ValidationError{
				Field:   "monitoring.prometheus_port",
				Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Monitoring.PrometheusPort),
			})
		} else if c.Monitoring.PrometheusPort == c.API.Port {
			errors = append(errors, ValidationError{
				Field:   "monitoring.prometheus_port",
				Message: "Prometheus port collides with the API port",
			})
		}
	}

	return errors
}

// validateEnvironmentRequirements applies the stricter rules of production
// deployments.
func (c *Config) validateEnvironmentRequirements() ValidationErrors {
	var errors ValidationErrors

	if c.App.Environment != "production" {
		return errors
	}

	if c.Database.Password == "" {
		errors = append(errors, ValidationError{
			Field:   "database.password",
			Message: "Database password is required in production",
		})
	}

	if c.Database.SSLMode == "disable" {
		errors = append(errors, ValidationError{
			Field:   "database.ssl_mode",
			Message: "SSL must not be disabled in production",
		})
	}

	if c.Alerts.Enabled && c.Alerts.TelegramToken == "" {
		errors = append(errors, ValidationError{
			Field:   "alerts.telegram_token",
			Message: "Telegram token is required when alerts are enabled",
		})
	}

	errors = append(errors, ValidateProductionSecrets(c)...)

	return errors
}
