// API Server
// Serves the REST and WebSocket interface for simulation runs
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/foliosim/internal/alerts"
	"github.com/ajitpratap0/foliosim/internal/api"
	"github.com/ajitpratap0/foliosim/internal/config"
	"github.com/ajitpratap0/foliosim/internal/db"
	"github.com/ajitpratap0/foliosim/internal/events"
	"github.com/ajitpratap0/foliosim/internal/marketdata"
	"github.com/ajitpratap0/foliosim/internal/metrics"
	"github.com/ajitpratap0/foliosim/internal/profiles"
)

var (
	configPath   = flag.String("config", "", "Path to config file (optional)")
	validateOnly = flag.Bool("validate", false, "Validate configuration and exit")
	verifySource = flag.Bool("verify-source", false, "Also check market data reachability with -validate")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	log.Info().
		Str("version", cfg.App.Version).
		Str("environment", cfg.App.Environment).
		Msg("Starting Foliosim API server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := config.LoadSecretsFromVault(ctx, cfg, config.GetVaultConfigFromEnv()); err != nil {
		log.Warn().Err(err).Msg("Failed to load secrets from Vault, falling back to environment")
	}

	if *validateOnly {
		opts := config.DefaultValidatorOptions()
		opts.VerifyMarketData = *verifySource
		if err := config.NewValidator(cfg, opts).ValidateStartup(ctx); err != nil {
			log.Fatal().Err(err).Msg("Configuration validation failed")
		}
		log.Info().Msg("Configuration is valid")
		return
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Database is optional: without it runs execute but are not persisted
	database, err := db.New(ctx, cfg.Database)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize database, continuing without persistence")
		database = nil
	}
	defer func() {
		if database != nil {
			database.Close()
		}
	}()

	var pool *pgxpool.Pool
	var runs *db.RunStore
	if database != nil {
		pool = database.Pool()
		runs = db.NewRunStoreWithDB(database)
	}

	store, err := profiles.New(profiles.Config{Store: cfg.Profiles.Store, Dir: cfg.Profiles.Dir}, pool)
	if err != nil {
		log.Warn().Err(err).Msg("Profile store unavailable, calibration disabled")
	}

	rdb := redisClient(cfg)
	if rdb != nil {
		defer rdb.Close()
	}

	provider, err := marketdata.New(marketDataConfig(cfg), rdb)
	if err != nil {
		log.Warn().Err(err).Msg("Market data source unavailable, runs will use synthetic prices")
		provider = nil
	}

	var bus *events.Bus
	if cfg.NATS.Enabled {
		bus, err = events.Connect(events.Config{URL: cfg.NATS.URL, SubjectPrefix: cfg.NATS.SubjectPrefix})
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable, run events disabled")
			bus = nil
		} else {
			defer bus.Close()
		}
	}

	manager, err := alerts.New(alerts.Config{
		Enabled:       cfg.Alerts.Enabled,
		TelegramToken: cfg.Alerts.TelegramToken,
		ChatIDs:       cfg.Alerts.ChatIDs,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Alerting unavailable")
	}

	server := api.NewServer(api.Config{
		Host:      cfg.API.Host,
		Port:      cfg.API.Port,
		AuthToken: cfg.API.AuthToken,
		DB:        database,
		Runs:      runs,
		Profiles:  store,
		Provider:  provider,
		Bus:       bus,
		Alerts:    manager,
	})

	var metricsServer *metrics.Server
	if cfg.Monitoring.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Monitoring.PrometheusPort, log.Logger)
		if err := metricsServer.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start metrics server")
			metricsServer = nil
		}

		if pool != nil {
			updater := metrics.NewUpdater(pool, 30*time.Second)
			go updater.Start(ctx)
			defer updater.Stop()
		}
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	select {
	case err := <-serverErrors:
		log.Error().Err(err).Msg("Server error")
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	log.Info().Msg("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to stop metrics server")
		}
	}

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to stop server gracefully")
		os.Exit(1)
	}

	log.Info().Msg("Server stopped successfully")
}

func marketDataConfig(cfg *config.Config) marketdata.Config {
	return marketdata.Config{
		Source:     cfg.MarketData.Source,
		APIKey:     cfg.MarketData.APIKey,
		SecretKey:  cfg.MarketData.SecretKey,
		Testnet:    cfg.MarketData.Testnet,
		RateLimit:  cfg.MarketData.RateLimit,
		RateBurst:  cfg.MarketData.RateBurst,
		StaticFile: cfg.MarketData.StaticFile,
		CacheTTL:   time.Duration(cfg.Redis.CacheTTL) * time.Second,
	}
}

// redisClient dials Redis for the market data cache. A missing Redis is
// not fatal: the provider chain just runs uncached.
func redisClient(cfg *config.Config) *redis.Client {
	if cfg.MarketData.Source != marketdata.SourceBinance {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer pingCancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, market data cache disabled")
		rdb.Close()
		return nil
	}

	return rdb
}
