// Package sim implements the daily rebalance simulation engine: momentum
// scoring, regime detection, hybrid signal blending, capital protection,
// and return calibration over a rolling price history.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// Engine-level failure sentinels.
var (
	// ErrInvalidConfig rejects malformed run parameters before the loop starts.
	ErrInvalidConfig = errors.New("invalid simulation config")

	// ErrStrategyExecution marks a run aborted by a failed strategy cycle.
	ErrStrategyExecution = errors.New("strategy execution failed")
)

// Loop defaults.
const (
	DefaultCycleLength  = 24 * time.Hour
	DefaultInterval     = "1d"
	DefaultWarmupPoints = 14

	// MaxCycles is the hard safety bound on any single run.
	MaxCycles = 1000
)

// Config parameterizes one simulation run.
type Config struct {
	Name           string         `json:"name" mapstructure:"name"`
	Symbols        []string       `json:"symbols" mapstructure:"symbols"`
	StartDate      time.Time      `json:"start_date" mapstructure:"start_date"`
	Duration       time.Duration  `json:"duration" mapstructure:"duration"`
	CycleLength    time.Duration  `json:"cycle_length" mapstructure:"cycle_length"`
	InitialCapital float64        `json:"initial_capital" mapstructure:"initial_capital"`
	Interval       string         `json:"interval" mapstructure:"interval"`
	WarmupPoints   int            `json:"warmup_points" mapstructure:"warmup_points"`
	HistoryCap     int            `json:"history_cap" mapstructure:"history_cap"`
	Profile        string         `json:"profile" mapstructure:"profile"`
	Seed           int64          `json:"seed" mapstructure:"seed"`
	Strategy       StrategyConfig `json:"strategy" mapstructure:"strategy"`
}

// withDefaults fills zero values with the package defaults.
func (c Config) withDefaults() Config {
	if c.CycleLength == 0 {
		c.CycleLength = DefaultCycleLength
	}
	if c.Interval == "" {
		c.Interval = DefaultInterval
	}
	if c.WarmupPoints == 0 {
		c.WarmupPoints = DefaultWarmupPoints
	}
	if c.HistoryCap == 0 {
		c.HistoryCap = DefaultHistoryCap
	}
	if c.StartDate.IsZero() {
		c.StartDate = time.Now().UTC().Truncate(24 * time.Hour)
	}
	c.Strategy = c.Strategy.withDefaults()
	return c
}

// validate rejects configurations the loop cannot run. Called after
// defaults are applied.
func (c Config) validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("%w: initial capital must be positive, got %f", ErrInvalidConfig, c.InitialCapital)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %s", ErrInvalidConfig, c.Duration)
	}
	if c.CycleLength <= 0 {
		return fmt.Errorf("%w: cycle length must be positive, got %s", ErrInvalidConfig, c.CycleLength)
	}
	if c.Duration < c.CycleLength {
		return fmt.Errorf("%w: duration %s is shorter than one cycle %s", ErrInvalidConfig, c.Duration, c.CycleLength)
	}
	if c.WarmupPoints < 0 {
		return fmt.Errorf("%w: warmup points must not be negative, got %d", ErrInvalidConfig, c.WarmupPoints)
	}

	universe := unionSymbols(c.Symbols, c.Strategy.Anchors)
	if c.Strategy.UniverseSize > len(universe) {
		return fmt.Errorf("%w: universe size %d exceeds the %d configured symbols",
			ErrInvalidConfig, c.Strategy.UniverseSize, len(universe))
	}

	return nil
}

// priceFeed tracks the remaining real closes for one symbol. Once the
// queue drains the symbol continues on synthetic prices.
type priceFeed struct {
	pending   []float64
	synthetic bool
}

// Engine is the daily rebalance simulation loop. One engine executes one
// run; all state (history, strategy, feeds, randomness) is instance-owned
// so independent runs can execute in parallel. An engine is not safe for
// concurrent use and must not be reused after Run returns.
type Engine struct {
	cfg      Config
	provider PriceProvider
	calib    *Calibrator

	history  *HistoryStore
	strategy *RebalanceStrategy
	model    *SyntheticModel

	symbols    []string
	feeds      map[string]*priceFeed
	lastRegime Regime
}

// NewEngine builds an engine for one run. The provider may be nil to force
// fully synthetic prices, the calibrator may be nil to skip calibration,
// and a nil rng falls back to a source seeded from cfg.Seed (or the clock
// when the seed is zero).
func NewEngine(cfg Config, provider PriceProvider, calib *Calibrator, rng RandSource) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if rng == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng = rand.New(rand.NewSource(seed))
	}
	if calib == nil {
		calib = NewCalibrator(nil)
	}

	return &Engine{
		cfg:        cfg,
		provider:   provider,
		calib:      calib,
		history:    NewHistoryStore(cfg.HistoryCap),
		strategy:   NewRebalanceStrategy(cfg.Strategy),
		model:      NewSyntheticModel(rng),
		symbols:    unionSymbols(cfg.Symbols, cfg.Strategy.Anchors),
		feeds:      make(map[string]*priceFeed),
		lastRegime: RegimeSideways,
	}, nil
}

// Config returns the run configuration after defaults were applied.
func (e *Engine) Config() Config { return e.cfg }

// Run executes the full simulation: warmup, the cycle loop, and
// calibration. A failed cycle aborts the run fail-fast; the returned
// result then carries the completed cycles and the failure reason
// alongside a non-nil error.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	started := time.Now()

	log.Info().
		Str("run", e.cfg.Name).
		Strs("symbols", e.symbols).
		Float64("initial_capital", e.cfg.InitialCapital).
		Time("start_date", e.cfg.StartDate).
		Dur("duration", e.cfg.Duration).
		Str("profile", e.cfg.Profile).
		Msg("Starting simulation run")

	if err := e.warmup(ctx); err != nil {
		return nil, err
	}

	result := &RunResult{
		Name:      e.cfg.Name,
		StartedAt: started,
	}

	end := e.cfg.StartDate.Add(e.cfg.Duration)
	capital := e.cfg.InitialCapital
	cycles := make([]*CycleRecord, 0, int(e.cfg.Duration/e.cfg.CycleLength))

	for cycle := 1; cycle <= MaxCycles; cycle++ {
		date := e.cfg.StartDate.Add(time.Duration(cycle-1) * e.cfg.CycleLength)
		if !date.Before(end) {
			break
		}

		if err := ctx.Err(); err != nil {
			result.Cycles = cycles
			result.TotalCycles = len(cycles)
			result.FailureReason = "run canceled"
			e.finalize(result, capital)
			return result, err
		}

		record, res := e.step(cycle, date, capital)
		cycles = append(cycles, record)

		if !res.Success {
			result.Cycles = cycles
			result.TotalCycles = len(cycles)
			result.FailureReason = res.Reason
			e.finalize(result, capital)
			log.Error().
				Str("run", e.cfg.Name).
				Int("cycle", cycle).
				Str("reason", res.Reason).
				Msg("Simulation aborted by failed cycle")
			return result, fmt.Errorf("%w at cycle %d: %s", ErrStrategyExecution, cycle, res.Reason)
		}

		capital = record.EndingCapital
		e.lastRegime = res.MarketRegime
	}

	calibrated, info := e.calib.Calibrate(ctx, cycles, e.cfg.InitialCapital, e.cfg.Profile)

	result.Success = true
	result.Cycles = calibrated
	result.TotalCycles = len(calibrated)
	result.CalibrationInfo = info
	e.finalize(result, finalCapital(calibrated, e.cfg.InitialCapital))

	log.Info().
		Str("run", e.cfg.Name).
		Int("cycles", result.TotalCycles).
		Float64("final_capital", result.FinalSummary.FinalCapital).
		Float64("total_return", result.FinalSummary.TotalReturn).
		Bool("calibrated", info.ProfileApplied).
		Msg("Simulation run complete")

	return result, nil
}

// step executes one cycle: advance prices, rebalance, realize the
// allocation's return, and record the outcome. A failed rebalance yields a
// record flagged Failed with capital unchanged.
func (e *Engine) step(cycle int, date time.Time, capital float64) (*CycleRecord, *RebalanceResult) {
	previous := e.lastCloses()
	observations, syntheticUsed := e.nextPrices()

	for _, symbol := range e.symbols {
		// Append never fails here: synthetic and provider closes are positive.
		if err := e.history.Append(symbol, observations[symbol]); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Dropped price observation")
		}
	}

	res := e.strategy.Rebalance(e.history, capital)

	record := &CycleRecord{
		CycleNumber:      cycle,
		CycleDate:        date,
		StartingCapital:  capital,
		MarketRegime:     res.MarketRegime.String(),
		ProtectionActive: res.ProtectionActive,
		ExecutionDelay:   res.ExecutionDelay,
		ActionsTaken:     res.Actions,
	}
	if syntheticUsed {
		record.ActionsTaken = append(record.ActionsTaken, "synthetic_prices")
	}

	if !res.Success {
		record.Failed = true
		record.EndingCapital = capital
		record.TotalValue = capital
		record.ReserveValue = capital
		record.ActionsTaken = append(record.ActionsTaken, "cycle_failed")
		return record, res
	}

	rawReturn := realizedReturn(res.Allocations, previous, observations, e.cfg.Strategy.ReserveSymbol)
	gross := capital * (1 + rawReturn)
	net := gross - res.TradingCosts
	if net < 0 {
		net = 0
	}

	reserveWeight := res.Allocations[e.cfg.Strategy.ReserveSymbol]

	record.EndingCapital = net
	record.TotalValue = net
	record.ReserveValue = net * reserveWeight
	record.PortfolioValue = net - record.ReserveValue
	record.AllocationBreakdown = res.Allocations
	record.TradingCosts = res.TradingCosts
	record.RawReturn = rawReturn
	if capital > epsilon {
		record.NetReturn = net/capital - 1
	}

	log.Debug().
		Int("cycle", cycle).
		Str("regime", record.MarketRegime).
		Bool("protected", record.ProtectionActive).
		Float64("raw_return", rawReturn).
		Float64("capital", net).
		Msg("Cycle complete")

	return record, res
}

// warmup seeds the history store with lookback prices per symbol and
// queues the remaining provider closes for the cycle loop. Symbols the
// provider cannot serve fall back to a synthetic warmup path.
func (e *Engine) warmup(ctx context.Context) error {
	total := e.cfg.WarmupPoints + int(e.cfg.Duration/e.cfg.CycleLength) + 1

	var syntheticSymbols []string
	for _, symbol := range e.symbols {
		closes, err := e.fetchCloses(ctx, symbol, total)
		if err != nil || len(closes) == 0 {
			log.Warn().
				Err(err).
				Str("symbol", symbol).
				Msg("Price history unavailable, switching symbol to synthetic data")
			syntheticSymbols = append(syntheticSymbols, symbol)
			e.feeds[symbol] = &priceFeed{synthetic: true}
			continue
		}

		seed := len(closes)
		if seed > e.cfg.WarmupPoints {
			seed = e.cfg.WarmupPoints
		}
		if err := e.history.AppendSeries(symbol, closes[:seed]); err != nil {
			return fmt.Errorf("seeding history for %s: %w", symbol, err)
		}
		e.feeds[symbol] = &priceFeed{pending: closes[seed:]}
	}

	// One batched warmup keeps the draw order stable for seeded runs.
	if len(syntheticSymbols) > 0 {
		for symbol, path := range e.model.Warmup(syntheticSymbols, e.cfg.WarmupPoints) {
			if err := e.history.AppendSeries(symbol, path); err != nil {
				return fmt.Errorf("seeding synthetic history for %s: %w", symbol, err)
			}
		}
	}

	return nil
}

// fetchCloses pulls up to lookback closes for a symbol from the provider,
// oldest first. A nil provider serves nothing.
func (e *Engine) fetchCloses(ctx context.Context, symbol string, lookback int) ([]float64, error) {
	if e.provider == nil {
		return nil, ErrDataUnavailable
	}

	candles, err := e.provider.GetHistory(ctx, symbol, e.cfg.Interval, lookback)
	if err != nil {
		return nil, err
	}

	closes := make([]float64, 0, len(candles))
	for _, c := range candles {
		closes = append(closes, c.Close)
	}
	return closes, nil
}

// nextPrices produces this cycle's close per symbol: the next queued
// provider close, or a synthetic draw once the queue is dry. Returns
// whether any synthetic price was used.
func (e *Engine) nextPrices() (map[string]float64, bool) {
	out := make(map[string]float64, len(e.symbols))

	var syntheticSymbols []string
	for _, symbol := range e.symbols {
		feed := e.feeds[symbol]
		if len(feed.pending) > 0 {
			out[symbol] = feed.pending[0]
			feed.pending = feed.pending[1:]
			continue
		}
		feed.synthetic = true
		syntheticSymbols = append(syntheticSymbols, symbol)
	}

	if len(syntheticSymbols) > 0 {
		prev := make(map[string]float64, len(syntheticSymbols))
		for _, symbol := range syntheticSymbols {
			if p, ok := e.history.Last(symbol); ok {
				prev[symbol] = p
			}
		}
		for symbol, price := range e.model.NextPrices(prev, syntheticSymbols, e.lastRegime) {
			out[symbol] = price
		}
	}

	return out, len(syntheticSymbols) > 0
}

// lastCloses snapshots the latest retained price per symbol before the
// cycle's observations are appended.
func (e *Engine) lastCloses() map[string]float64 {
	out := make(map[string]float64, len(e.symbols))
	for _, symbol := range e.symbols {
		if p, ok := e.history.Last(symbol); ok {
			out[symbol] = p
		}
	}
	return out
}

// finalize stamps the completion time and the headline summary.
func (e *Engine) finalize(result *RunResult, capital float64) {
	result.CompletedAt = time.Now()
	result.FinalSummary = FinalSummary{
		FinalCapital: capital,
		TotalReturn:  capital/e.cfg.InitialCapital - 1,
	}
}

// realizedReturn converts an allocation into the cycle's portfolio return
// under the observed price moves. The reserve weight contributes zero;
// symbols without a prior close contribute zero for their first cycle.
func realizedReturn(alloc map[string]float64, previous, observed map[string]float64, reserveSymbol string) float64 {
	total := 0.0
	for symbol, weight := range alloc {
		if symbol == reserveSymbol {
			continue
		}

		prev, ok := previous[symbol]
		if !ok || prev < epsilon {
			continue
		}

		total += weight * (observed[symbol]/prev - 1)
	}
	return total
}

// finalCapital returns the last cycle's ending capital, or the starting
// capital for an empty sequence.
func finalCapital(cycles []*CycleRecord, startingCapital float64) float64 {
	if len(cycles) == 0 {
		return startingCapital
	}
	return cycles[len(cycles)-1].EndingCapital
}

// unionSymbols merges and sorts symbol lists, dropping duplicates.
func unionSymbols(lists ...[]string) []string {
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, symbol := range list {
			seen[symbol] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for symbol := range seen {
		out = append(out, symbol)
	}
	sort.Strings(out)

	return out
}
