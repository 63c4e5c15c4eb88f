package sim

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ErrProfileNotFound signals that a calibration profile store has no
// profile under the requested name. Calibration is skipped, never failed.
var ErrProfileNotFound = errors.New("calibration profile not found")

// CalibrationParams are the six constraint parameters of a profile.
type CalibrationParams struct {
	MarketTimingEfficiency float64 `json:"market_timing_efficiency" yaml:"market_timing_efficiency"`
	DailySlippage          float64 `json:"daily_slippage" yaml:"daily_slippage"`
	TradingFee             float64 `json:"trading_fee" yaml:"trading_fee"`
	VolatilityDrag         float64 `json:"volatility_drag" yaml:"volatility_drag"`
	MaxDailyReturn         float64 `json:"max_daily_return" yaml:"max_daily_return"`
	MinDailyReturn         float64 `json:"min_daily_return" yaml:"min_daily_return"`
}

// CalibrationProfile is a named, versioned parameter set. Parameter values
// are configuration, not behavior: profiles model market frictions and are
// supplied by the operator.
type CalibrationProfile struct {
	Name        string            `json:"name" yaml:"name"`
	Version     string            `json:"version" yaml:"version"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Params      CalibrationParams `json:"calibration_parameters" yaml:"calibration_parameters"`
}

// ProfileStore is the calibration-profile collaborator.
type ProfileStore interface {
	// LoadProfile returns the named profile, or ErrProfileNotFound.
	LoadProfile(ctx context.Context, name string) (*CalibrationProfile, error)
}

// Calibrator rewrites a raw cycle sequence under a profile's constraints.
// It is constructed per run and injected into the engine; there is no
// process-wide profile cache.
type Calibrator struct {
	store ProfileStore
}

// NewCalibrator creates a calibrator over the given profile store. A nil
// store yields a calibrator that always passes sequences through.
func NewCalibrator(store ProfileStore) *Calibrator {
	return &Calibrator{store: store}
}

// Calibrate produces a new cycle sequence whose returns are timing-scaled,
// bounded, and cost-adjusted per the named profile, recompounded from
// startingCapital. The input sequence is never mutated. A missing profile
// (or no profile name) passes the raw sequence through, flagged in the
// returned info.
func (c *Calibrator) Calibrate(ctx context.Context, cycles []*CycleRecord, startingCapital float64, profileName string) ([]*CycleRecord, *CalibrationInfo) {
	info := &CalibrationInfo{
		ProfileApplied: false,
		ProfileName:    profileName,
		OriginalReturn: sequenceReturn(cycles, startingCapital),
	}
	info.CalibratedReturn = info.OriginalReturn

	if profileName == "" {
		info.Reason = "no profile requested"
		return cycles, info
	}
	if c == nil || c.store == nil {
		info.Reason = "no profile store configured"
		return cycles, info
	}

	profile, err := c.store.LoadProfile(ctx, profileName)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			info.Reason = fmt.Sprintf("profile %q not found", profileName)
		} else {
			info.Reason = fmt.Sprintf("profile load failed: %v", err)
		}
		log.Warn().
			Err(err).
			Str("profile", profileName).
			Msg("Calibration skipped, raw trajectory passes through")
		return cycles, info
	}

	calibrated, totalCosts := applyProfile(cycles, startingCapital, profile.Params)

	info.ProfileApplied = true
	info.ProfileVersion = profile.Version
	info.CalibratedReturn = sequenceReturn(calibrated, startingCapital)
	info.Adjustment = info.CalibratedReturn - info.OriginalReturn
	info.TotalTradingCosts = totalCosts

	log.Info().
		Str("profile", profileName).
		Float64("original_return", info.OriginalReturn).
		Float64("calibrated_return", info.CalibratedReturn).
		Float64("adjustment", info.Adjustment).
		Msg("Calibration applied")

	return calibrated, info
}

// applyProfile rewrites each cycle's return and recompounds capital.
// Timing efficiency only scales gains; losses are never softened. The
// profile's cost model (slippage, drag, double-sided fee) replaces the
// strategy's idealized per-cycle costs.
func applyProfile(cycles []*CycleRecord, startingCapital float64, params CalibrationParams) ([]*CycleRecord, float64) {
	out := make([]*CycleRecord, 0, len(cycles))
	capital := startingCapital
	totalCosts := 0.0

	costRate := params.DailySlippage + params.VolatilityDrag + 2*params.TradingFee

	for _, cycle := range cycles {
		raw := cycle.RawReturn

		timingAdjusted := raw
		if raw > 0 {
			timingAdjusted = raw * params.MarketTimingEfficiency
		}

		capped := clamp(timingAdjusted, params.MinDailyReturn, params.MaxDailyReturn)
		afterCosts := capped - costRate

		cycleCosts := costRate * capital
		newCapital := capital * (1 + afterCosts)

		rewritten := *cycle
		rewritten.StartingCapital = capital
		rewritten.EndingCapital = newCapital
		rewritten.TotalValue = newCapital
		rewritten.TradingCosts = cycleCosts
		rewritten.RawReturn = afterCosts
		rewritten.NetReturn = afterCosts

		// Preserve the portfolio/reserve split proportionally.
		if cycle.TotalValue > epsilon {
			scale := newCapital / cycle.TotalValue
			rewritten.PortfolioValue = cycle.PortfolioValue * scale
			rewritten.ReserveValue = cycle.ReserveValue * scale
		} else {
			rewritten.PortfolioValue = 0
			rewritten.ReserveValue = newCapital
		}

		out = append(out, &rewritten)

		capital = newCapital
		totalCosts += cycleCosts
	}

	return out, totalCosts
}

// sequenceReturn is the total return of a cycle sequence relative to the
// starting capital.
func sequenceReturn(cycles []*CycleRecord, startingCapital float64) float64 {
	if len(cycles) == 0 || startingCapital < epsilon {
		return 0
	}
	return cycles[len(cycles)-1].EndingCapital/startingCapital - 1
}
