// Simulation Runner CLI
// Runs daily-rebalance portfolio simulations and reports performance
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/foliosim/internal/alerts"
	"github.com/ajitpratap0/foliosim/internal/config"
	"github.com/ajitpratap0/foliosim/internal/db"
	"github.com/ajitpratap0/foliosim/internal/events"
	"github.com/ajitpratap0/foliosim/internal/marketdata"
	"github.com/ajitpratap0/foliosim/internal/profiles"
	"github.com/ajitpratap0/foliosim/pkg/sim"
)

// ============================================================================
// CLI FLAGS
// ============================================================================

var (
	// Run parameters
	configPath  = flag.String("config", "", "Path to config file (optional)")
	runName     = flag.String("name", "", "Run name (generated when empty)")
	symbols     = flag.String("symbols", "", "Comma-separated symbols (defaults to the configured universe)")
	startDate   = flag.String("start", "", "Start date (YYYY-MM-DD, defaults to today)")
	days        = flag.Int("days", 30, "Simulation length in days")
	capital     = flag.Float64("capital", 0, "Initial capital in USD (defaults to the configured value)")
	interval    = flag.String("interval", "1d", "Candle interval for historical data")
	profileName = flag.String("profile", "", "Calibration profile name (defaults to the configured profile)")
	seed        = flag.Int64("seed", 0, "Random seed (0 seeds from the clock)")

	// Seed sweeps
	seeds    = flag.Int("seeds", 1, "Run this many seed variants and aggregate the results")
	parallel = flag.Int("parallel", 4, "Concurrent variants in a seed sweep")

	// Data source
	synthetic = flag.Bool("synthetic", false, "Force synthetic prices (skip the market data source)")

	// Persistence and output
	save       = flag.Bool("save", false, "Persist runs to the database")
	outputFile = flag.String("output", "", "Output file for the report (optional)")
	jsonOutput = flag.Bool("json", false, "Print the raw result as JSON instead of the report")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
)

// ============================================================================
// MAIN
// ============================================================================

func main() {
	flag.Parse()

	// Logs go to stderr so the report on stdout stays clean
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	simCfg, err := buildRunConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	log.Info().
		Str("name", simCfg.Name).
		Strs("symbols", simCfg.Symbols).
		Int("days", *days).
		Float64("capital", simCfg.InitialCapital).
		Str("profile", simCfg.Profile).
		Msg("Starting simulation")

	ctx := context.Background()

	if err := config.LoadSecretsFromVault(ctx, cfg, config.GetVaultConfigFromEnv()); err != nil {
		log.Warn().Err(err).Msg("Failed to load secrets from Vault, falling back to environment")
	}

	deps, cleanup, err := buildDeps(ctx, cfg, simCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize run dependencies")
	}
	defer cleanup()

	if *seeds > 1 {
		runSweep(ctx, simCfg, deps)
		return
	}

	result, err := executeRun(ctx, simCfg, deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Simulation failed")
	}

	writeOutput(renderResult(result, simCfg.InitialCapital))

	if !result.Success {
		log.Error().Str("reason", result.FailureReason).Msg("Simulation run failed")
		os.Exit(1)
	}

	log.Info().Msg("Simulation completed successfully")
}

// ============================================================================
// RUN CONFIGURATION
// ============================================================================

// buildRunConfig merges the configured simulation defaults with the CLI
// flags into one engine configuration.
func buildRunConfig(cfg *config.Config) (sim.Config, error) {
	symbolList := cfg.Simulation.Symbols
	if *symbols != "" {
		symbolList = parseSymbols(*symbols)
	}

	initialCapital := cfg.Simulation.InitialCapital
	if *capital > 0 {
		initialCapital = *capital
	}

	profile := cfg.Simulation.Profile
	if *profileName != "" {
		profile = *profileName
	}

	simCfg := sim.Config{
		Name:           *runName,
		Symbols:        symbolList,
		Duration:       time.Duration(*days) * 24 * time.Hour,
		InitialCapital: initialCapital,
		Interval:       *interval,
		WarmupPoints:   cfg.Simulation.WarmupPoints,
		HistoryCap:     cfg.Simulation.HistoryCap,
		Profile:        profile,
		Seed:           *seed,
		Strategy: sim.StrategyConfig{
			ReserveSymbol:     cfg.Simulation.ReserveSymbol,
			Anchors:           cfg.Simulation.Anchors,
			UniverseSize:      cfg.Simulation.UniverseSize,
			SelectionInterval: cfg.Simulation.SelectionInterval,
			FeeRate:           cfg.Simulation.FeeRate,
			ConversionFeeRate: cfg.Simulation.ConversionFeeRate,
		},
	}

	if *startDate != "" {
		start, err := time.Parse("2006-01-02", *startDate)
		if err != nil {
			return sim.Config{}, fmt.Errorf("invalid start date %q (use YYYY-MM-DD)", *startDate)
		}
		simCfg.StartDate = start
	}

	if simCfg.Name == "" {
		simCfg.Name = "sim-" + time.Now().UTC().Format("20060102-150405")
	}

	return simCfg, nil
}

// ============================================================================
// DEPENDENCIES
// ============================================================================

// runDeps carries the optional collaborators of a run. Every field may be
// nil; the run then executes without that concern.
type runDeps struct {
	provider marketdata.Provider
	calib    *sim.Calibrator
	bus      *events.Bus
	alerts   *alerts.Manager
	runs     *db.RunStore
}

// buildDeps wires the market data source, profile store, database, event
// bus, and alerting from configuration. The returned cleanup closes
// everything that was opened.
func buildDeps(ctx context.Context, cfg *config.Config, simCfg sim.Config) (runDeps, func(), error) {
	var deps runDeps
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if !*synthetic {
		provider, err := marketdata.New(marketDataConfig(cfg), redisClient(cfg))
		if err != nil {
			return deps, cleanup, fmt.Errorf("market data source: %w", err)
		}
		deps.provider = provider
	}

	profileWanted := simCfg.Profile != ""
	needDB := *save || (profileWanted && cfg.Profiles.Store == "postgres")

	var pool *pgxpool.Pool
	if needDB {
		database, err := db.New(ctx, cfg.Database)
		if err != nil {
			return deps, cleanup, fmt.Errorf("database: %w", err)
		}
		closers = append(closers, database.Close)
		pool = database.Pool()

		if *save {
			deps.runs = db.NewRunStoreWithDB(database)
		}
	}

	if profileWanted {
		store, err := profiles.New(profiles.Config{Store: cfg.Profiles.Store, Dir: cfg.Profiles.Dir}, pool)
		if err != nil {
			return deps, cleanup, fmt.Errorf("profile store: %w", err)
		}
		deps.calib = sim.NewCalibrator(profiles.ForEngine(store))
	}

	if cfg.NATS.Enabled {
		bus, err := events.Connect(events.Config{URL: cfg.NATS.URL, SubjectPrefix: cfg.NATS.SubjectPrefix})
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable, run events disabled")
		} else {
			deps.bus = bus
			closers = append(closers, bus.Close)
		}
	}

	manager, err := alerts.New(alerts.Config{
		Enabled:       cfg.Alerts.Enabled,
		TelegramToken: cfg.Alerts.TelegramToken,
		ChatIDs:       cfg.Alerts.ChatIDs,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Alerting unavailable")
	} else {
		deps.alerts = manager
	}

	return deps, cleanup, nil
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

	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, market data cache disabled")
		rdb.Close()
		return nil
	}

	return rdb
}

// ============================================================================
// RUN EXECUTION
// ============================================================================

// executeRun builds an engine, runs it, and fans the outcome out to the
// configured collaborators. A run that fails mid-flight is still returned
// (with Success false); the error covers configuration rejections only.
func executeRun(ctx context.Context, simCfg sim.Config, deps runDeps) (*sim.RunResult, error) {
	engine, err := sim.NewEngine(simCfg, deps.provider, deps.calib, nil)
	if err != nil {
		return nil, err
	}

	runID := uuid.New()
	deps.bus.RunStarted(runID, simCfg)

	result, runErr := engine.Run(ctx)
	if result == nil {
		return nil, runErr
	}

	for _, rec := range result.Cycles {
		deps.bus.CycleCompleted(runID, result.Name, rec)
		for _, action := range rec.ActionsTaken {
			if action == "protection_entry" {
				deps.alerts.ProtectionEntered(ctx, result.Name, rec)
			}
		}
	}

	if result.Success {
		deps.bus.RunCompleted(runID, result)
		deps.alerts.RunCompleted(ctx, result)
	} else {
		deps.bus.RunFailed(runID, result.Name, result.FailureReason)
		deps.alerts.RunFailed(ctx, result.Name, result.FailureReason)
	}

	if deps.runs != nil {
		if err := saveRun(ctx, deps.runs, runID, simCfg, result); err != nil {
			log.Error().Err(err).Str("run_id", runID.String()).Msg("Failed to persist run")
		} else {
			log.Info().Str("run_id", runID.String()).Msg("Run persisted")
		}
	}

	return result, nil
}

// saveRun records a finished run. The record is created and completed in
// one pass since the simulation already ran.
func saveRun(ctx context.Context, store *db.RunStore, runID uuid.UUID, simCfg sim.Config, result *sim.RunResult) error {
	cfgJSON, err := json.Marshal(simCfg)
	if err != nil {
		return fmt.Errorf("encoding run config: %w", err)
	}

	run := &db.Run{
		ID:     runID,
		Name:   simCfg.Name,
		Config: cfgJSON,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		return err
	}

	if !result.Success {
		return store.FailRun(ctx, runID, result.FailureReason)
	}

	summary := db.RunSummary{
		FinalCapital: result.FinalSummary.FinalCapital,
		TotalReturn:  result.FinalSummary.TotalReturn,
		TotalCycles:  result.TotalCycles,
	}
	if m, err := sim.CalculateRunMetrics(result, simCfg.InitialCapital); err == nil {
		// Summary columns hold fractions; the metrics report percentages.
		summary.MaxDrawdown = m.MaxDrawdownPct / 100
		summary.ProtectionEntries = m.ProtectionEntries
		summary.ProtectionExits = m.ProtectionExits
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding run result: %w", err)
	}

	return store.SaveResult(ctx, runID, resultJSON, summary)
}

// ============================================================================
// SEED SWEEPS
// ============================================================================

// runSweep executes seed variants of the run in parallel and prints an
// aggregate summary. The sweep exits non-zero if any variant failed.
func runSweep(ctx context.Context, base sim.Config, deps runDeps) {
	n := *seeds
	baseSeed := base.Seed
	if baseSeed == 0 {
		baseSeed = time.Now().UnixNano()
	}

	log.Info().Int("variants", n).Int64("base_seed", baseSeed).Msg("Starting seed sweep")

	results := make([]*sim.RunResult, n)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(*parallel)

	for i := 0; i < n; i++ {
		group.Go(func() error {
			variant := base
			variant.Seed = baseSeed + int64(i)
			variant.Name = fmt.Sprintf("%s-s%d", base.Name, variant.Seed)

			result, err := executeRun(groupCtx, variant, deps)
			if err != nil {
				return fmt.Errorf("variant %d: %w", i, err)
			}
			results[i] = result
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Seed sweep failed")
	}

	writeOutput(formatSweepSummary(results, base.InitialCapital))

	failed := 0
	for _, result := range results {
		if !result.Success {
			failed++
		}
	}
	if failed > 0 {
		log.Error().Int("failed", failed).Int("total", n).Msg("Seed sweep finished with failures")
		os.Exit(1)
	}

	log.Info().Int("variants", n).Msg("Seed sweep completed successfully")
}

// formatSweepSummary renders the per-variant outcomes plus aggregate
// statistics over the final capital.
func formatSweepSummary(results []*sim.RunResult, initialCapital float64) string {
	var b strings.Builder

	line := strings.Repeat("=", 72)
	b.WriteString(line + "\n")
	b.WriteString(fmt.Sprintf("SEED SWEEP SUMMARY: %d runs\n", len(results)))
	b.WriteString(line + "\n\n")

	b.WriteString(fmt.Sprintf("%-28s %12s %10s %10s\n", "RUN", "FINAL", "RETURN", "MAX DD"))

	finals := make([]float64, 0, len(results))
	for _, result := range results {
		m, err := sim.CalculateRunMetrics(result, initialCapital)
		if err != nil {
			b.WriteString(fmt.Sprintf("%-28s %12s\n", result.Name, "no cycles"))
			continue
		}

		marker := ""
		if !result.Success {
			marker = " (failed)"
		}
		b.WriteString(fmt.Sprintf("%-28s %12.2f %9.2f%% %9.2f%%%s\n",
			result.Name, m.FinalCapital, m.TotalReturnPct, m.MaxDrawdownPct, marker))
		finals = append(finals, m.FinalCapital)
	}
	b.WriteString("\n")

	if len(finals) > 0 {
		lo, hi, sum := math.Inf(1), math.Inf(-1), 0.0
		for _, v := range finals {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
			sum += v
		}
		mean := sum / float64(len(finals))

		b.WriteString("FINAL CAPITAL\n-------------\n")
		b.WriteString(fmt.Sprintf("Mean:              $%.2f (%+.2f%%)\n", mean, (mean/initialCapital-1)*100))
		b.WriteString(fmt.Sprintf("Best / Worst:      $%.2f / $%.2f\n", hi, lo))
		b.WriteString(fmt.Sprintf("Spread:            $%.2f\n\n", hi-lo))
	}

	b.WriteString(line + "\n")

	return b.String()
}

// ============================================================================
// OUTPUT
// ============================================================================

func renderResult(result *sim.RunResult, initialCapital float64) string {
	if *jsonOutput {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Error().Err(err).Msg("Failed to encode result as JSON")
			return sim.GenerateReport(result, initialCapital)
		}
		return string(data)
	}
	return sim.GenerateReport(result, initialCapital)
}

func writeOutput(report string) {
	fmt.Println(report)

	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, []byte(report), 0644); err != nil {
			log.Warn().Err(err).Str("file", *outputFile).Msg("Failed to write output file")
		} else {
			log.Info().Str("file", *outputFile).Msg("Report written to file")
		}
	}
}

// ============================================================================
// UTILITIES
// ============================================================================

func parseSymbols(s string) []string {
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
