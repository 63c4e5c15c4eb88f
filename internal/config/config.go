package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	MarketData MarketDataConfig `mapstructure:"market_data"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Profiles   ProfilesConfig   `mapstructure:"profiles"`
	API        APIConfig        `mapstructure:"api"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// DatabaseConfig contains PostgreSQL settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	CacheTTL int    `mapstructure:"cache_ttl"` // seconds
}

// NATSConfig contains NATS messaging settings
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	Enabled       bool   `mapstructure:"enabled"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// MarketDataConfig contains price-history source settings
type MarketDataConfig struct {
	Source     string  `mapstructure:"source"` // "binance", "static", "synthetic"
	APIKey     string  `mapstructure:"api_key"`
	SecretKey  string  `mapstructure:"secret_key"`
	Testnet    bool    `mapstructure:"testnet"`
	RateLimit  float64 `mapstructure:"rate_limit"` // requests per second
	RateBurst  int     `mapstructure:"rate_burst"`
	StaticFile string  `mapstructure:"static_file"` // fixture path for the static source
}

// SimulationConfig contains the strategy defaults applied to every run
// unless the run request overrides them.
type SimulationConfig struct {
	Symbols           []string `mapstructure:"symbols"`
	Anchors           []string `mapstructure:"anchors"`
	ReserveSymbol     string   `mapstructure:"reserve_symbol"`
	UniverseSize      int      `mapstructure:"universe_size"`
	SelectionInterval int      `mapstructure:"selection_interval"`
	HistoryCap        int      `mapstructure:"history_cap"`
	WarmupPoints      int      `mapstructure:"warmup_points"`
	InitialCapital    float64  `mapstructure:"initial_capital"`
	FeeRate           float64  `mapstructure:"fee_rate"`
	ConversionFeeRate float64  `mapstructure:"conversion_fee_rate"`
	Profile           string   `mapstructure:"profile"`
}

// ProfilesConfig locates calibration profiles.
type ProfilesConfig struct {
	Store string `mapstructure:"store"` // "file" or "postgres"
	Dir   string `mapstructure:"dir"`   // for the file store
}

// APIConfig contains REST API settings. An empty AuthToken leaves the
// mutating endpoints open.
type APIConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	AuthToken string `mapstructure:"auth_token"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// AlertsConfig contains alerting settings
type AlertsConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	TelegramToken string  `mapstructure:"telegram_token"`
	ChatIDs       []int64 `mapstructure:"chat_ids"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("FOLIOSIM")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "FolioSim")
	v.SetDefault("app.version", Version)
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", PostgresPort)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "foliosim")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", RedisPort)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", 300)

	// NATS defaults
	v.SetDefault("nats.url", fmt.Sprintf("nats://localhost:%d", NATSPort))
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.subject_prefix", "foliosim")

	// Market data defaults
	v.SetDefault("market_data.source", "binance")
	v.SetDefault("market_data.testnet", false)
	v.SetDefault("market_data.rate_limit", 10.0)
	v.SetDefault("market_data.rate_burst", 20)

	// Simulation defaults
	v.SetDefault("simulation.symbols", []string{"BTCUSDT", "ETHUSDT", "ADAUSDT", "SOLUSDT", "XRPUSDT"})
	v.SetDefault("simulation.anchors", []string{"BTCUSDT", "ETHUSDT"})
	v.SetDefault("simulation.reserve_symbol", "USDT")
	v.SetDefault("simulation.universe_size", 5)
	v.SetDefault("simulation.selection_interval", 5)
	v.SetDefault("simulation.history_cap", 30)
	v.SetDefault("simulation.warmup_points", 14)
	v.SetDefault("simulation.initial_capital", 100.0)
	v.SetDefault("simulation.fee_rate", 0.001)
	v.SetDefault("simulation.conversion_fee_rate", 0.0005)
	v.SetDefault("simulation.profile", "")

	// Profiles defaults
	v.SetDefault("profiles.store", "file")
	v.SetDefault("profiles.dir", "./profiles")

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", APIServerPort)

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", MetricsPort)
	v.SetDefault("monitoring.enable_metrics", true)

	// Alerts defaults
	v.SetDefault("alerts.enabled", false)
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

// GetAPIAddr returns the API server address
func (c *APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
