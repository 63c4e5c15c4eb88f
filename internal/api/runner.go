package api

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/foliosim/internal/alerts"
	"github.com/ajitpratap0/foliosim/internal/db"
	"github.com/ajitpratap0/foliosim/internal/events"
	"github.com/ajitpratap0/foliosim/internal/marketdata"
	"github.com/ajitpratap0/foliosim/internal/metrics"
	"github.com/ajitpratap0/foliosim/internal/profiles"
	"github.com/ajitpratap0/foliosim/pkg/sim"
)

// DefaultMaxConcurrentRuns bounds how many simulations execute at once.
const DefaultMaxConcurrentRuns = 4

// Runner executes submitted simulation runs in the background, bounded
// to a fixed number of concurrent engines. Every run lands in a terminal
// status: results and failures are persisted, published on the event
// bus, broadcast to WebSocket clients, and folded into the metrics.
type Runner struct {
	runs     *db.RunStore
	profiles profiles.Store
	provider marketdata.Provider
	bus      *events.Bus
	alerts   *alerts.Manager
	hub      *Hub

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	pending sync.WaitGroup
	active  atomic.Int32
}

// NewRunner creates a runner executing at most maxConcurrent runs at a
// time. Non-positive maxConcurrent falls back to DefaultMaxConcurrentRuns.
func NewRunner(runs *db.RunStore, profileStore profiles.Store, provider marketdata.Provider, bus *events.Bus, alertManager *alerts.Manager, hub *Hub, maxConcurrent int) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRuns
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrent)

	return &Runner{
		runs:     runs,
		profiles: profileStore,
		provider: provider,
		bus:      bus,
		alerts:   alertManager,
		hub:      hub,
		group:    group,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Submit queues a run for execution and returns immediately. When all
// executor slots are busy the run waits its turn; the record stays
// pending until a slot frees up.
func (r *Runner) Submit(runID uuid.UUID, cfg sim.Config) {
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		r.group.Go(func() error {
			// Domain failures are persisted per run, never returned:
			// a failed run must not cancel its siblings in the group.
			r.execute(runID, cfg)
			return nil
		})
	}()
}

// Active returns how many simulations are executing right now.
func (r *Runner) Active() int {
	return int(r.active.Load())
}

// Close aborts executing simulations and waits for the runner to drain.
func (r *Runner) Close() {
	r.cancel()
	r.pending.Wait()
	_ = r.group.Wait()
}

// execute runs one simulation end to end. Persistence uses fresh
// contexts rather than the runner context so a canceled run can still
// record its failure on the way down.
func (r *Runner) execute(runID uuid.UUID, cfg sim.Config) {
	r.active.Add(1)
	defer r.active.Add(-1)

	logger := log.With().Str("run_id", runID.String()).Str("name", cfg.Name).Logger()

	if err := r.runs.UpdateRunStatus(context.Background(), runID, db.RunStatusRunning); err != nil {
		logger.Error().Err(err).Msg("Failed to mark run running")
	}

	metrics.RecordRunStart()
	r.bus.RunStarted(runID, cfg)
	r.notify(MessageTypeRunStarted, runID, events.RunStartedEvent{
		Symbols:        cfg.Symbols,
		StartDate:      cfg.StartDate,
		Days:           int(cfg.Duration.Hours() / 24),
		InitialCapital: cfg.InitialCapital,
		Profile:        cfg.Profile,
	})

	logger.Info().
		Strs("symbols", cfg.Symbols).
		Float64("initial_capital", cfg.InitialCapital).
		Msg("Simulation run starting")

	started := time.Now()
	result, err := r.runEngine(cfg)
	elapsedMs := float64(time.Since(started).Milliseconds())

	if err != nil {
		reason := err.Error()
		if result != nil && result.FailureReason != "" {
			reason = result.FailureReason
		}
		r.finishFailed(runID, cfg.Name, reason, elapsedMs)
		return
	}

	r.finishCompleted(runID, cfg, result, elapsedMs)
}

// runEngine builds and runs one engine. The calibrator reads profiles
// from the configured store; without one the engine runs uncalibrated.
func (r *Runner) runEngine(cfg sim.Config) (*sim.RunResult, error) {
	var calib *sim.Calibrator
	if r.profiles != nil {
		calib = sim.NewCalibrator(profiles.ForEngine(r.profiles))
	}

	engine, err := sim.NewEngine(cfg, r.provider, calib, nil)
	if err != nil {
		return nil, err
	}

	return engine.Run(r.ctx)
}

func (r *Runner) finishFailed(runID uuid.UUID, runName, reason string, elapsedMs float64) {
	logger := log.With().Str("run_id", runID.String()).Str("name", runName).Logger()
	logger.Warn().Str("reason", reason).Msg("Simulation run failed")

	if err := r.runs.FailRun(context.Background(), runID, reason); err != nil {
		logger.Error().Err(err).Msg("Failed to persist run failure")
	}

	metrics.RecordRunFailure(reason, elapsedMs)
	r.bus.RunFailed(runID, runName, reason)
	r.alerts.RunFailed(context.Background(), runName, reason)
	r.notify(MessageTypeRunFailed, runID, events.RunFailedEvent{Reason: reason})
}

func (r *Runner) finishCompleted(runID uuid.UUID, cfg sim.Config, result *sim.RunResult, elapsedMs float64) {
	logger := log.With().Str("run_id", runID.String()).Str("name", result.Name).Logger()

	r.fanOutCycles(runID, result, elapsedMs)

	summary := db.RunSummary{
		FinalCapital: result.FinalSummary.FinalCapital,
		TotalReturn:  result.FinalSummary.TotalReturn,
		TotalCycles:  result.TotalCycles,
	}

	if m, err := sim.CalculateRunMetrics(result, cfg.InitialCapital); err == nil {
		// Summary columns hold fractions; the metrics report percentages.
		summary.MaxDrawdown = m.MaxDrawdownPct / 100
		summary.ProtectionEntries = m.ProtectionEntries
		summary.ProtectionExits = m.ProtectionExits
	} else {
		logger.Warn().Err(err).Msg("Failed to compute run metrics")
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		r.finishFailed(runID, result.Name, fmt.Sprintf("failed to encode result: %v", err), elapsedMs)
		return
	}

	if err := r.runs.SaveResult(context.Background(), runID, resultJSON, summary); err != nil {
		logger.Error().Err(err).Msg("Failed to persist run result")
	}

	metrics.RecordRunComplete(elapsedMs)
	r.bus.RunCompleted(runID, result)
	r.alerts.RunCompleted(context.Background(), result)
	r.notify(MessageTypeRunCompleted, runID, events.RunCompletedEvent{
		FinalCapital:    result.FinalSummary.FinalCapital,
		TotalReturn:     result.FinalSummary.TotalReturn,
		TotalCycles:     result.TotalCycles,
		DurationSeconds: result.CompletedAt.Sub(result.StartedAt).Seconds(),
	})

	logger.Info().
		Float64("final_capital", summary.FinalCapital).
		Float64("total_return", summary.TotalReturn).
		Int("cycles", summary.TotalCycles).
		Msg("Simulation run completed")
}

// fanOutCycles streams the per-cycle records of a finished run to the
// event bus and WebSocket clients, and folds them into the cycle
// metrics. Cycles publish after the run completes so subscribers see
// the calibrated values that were persisted, not the raw mid-run
// trajectory.
func (r *Runner) fanOutCycles(runID uuid.UUID, result *sim.RunResult, elapsedMs float64) {
	if len(result.Cycles) == 0 {
		return
	}

	perCycleMs := elapsedMs / float64(len(result.Cycles))

	for _, rec := range result.Cycles {
		metrics.RecordCycle(rec.MarketRegime, rec.ProtectionActive, perCycleMs)

		for _, action := range rec.ActionsTaken {
			switch action {
			case "protection_entry":
				metrics.RecordProtectionEntry(rec.MarketRegime)
				r.alerts.ProtectionEntered(context.Background(), result.Name, rec)
			case "protection_exit":
				metrics.RecordProtectionExit(rec.MarketRegime)
			case "synthetic_prices":
				metrics.RecordSyntheticCycle()
			case "selection_refresh":
				metrics.RecordSelectionRefresh()
			}
		}

		r.bus.CycleCompleted(runID, result.Name, rec)
		r.notify(MessageTypeCycleCompleted, runID, events.CycleEvent{
			CycleNumber:      rec.CycleNumber,
			CycleDate:        rec.CycleDate,
			TotalValue:       rec.TotalValue,
			NetReturn:        rec.NetReturn,
			MarketRegime:     rec.MarketRegime,
			ProtectionActive: rec.ProtectionActive,
		})
	}
}

// notify broadcasts a run event to WebSocket clients. Payloads reuse the
// event bus types so both streams carry the same shapes.
func (r *Runner) notify(msgType MessageType, runID uuid.UUID, payload interface{}) {
	if r.hub == nil {
		return
	}

	data := map[string]interface{}{
		"run_id": runID.String(),
		"event":  payload,
	}

	if err := r.hub.Broadcast(msgType, data); err != nil {
		log.Warn().Err(err).Str("type", string(msgType)).Msg("Failed to broadcast run event")
	}
}
