package sim

import "time"

// CycleRecord is the immutable per-cycle output of a simulation. Records
// are appended in order and never mutated afterward; calibration produces
// a new sequence instead of rewriting one in place.
type CycleRecord struct {
	CycleNumber         int                `json:"cycle_number"`
	CycleDate           time.Time          `json:"cycle_date"`
	StartingCapital     float64            `json:"starting_capital"`
	EndingCapital       float64            `json:"ending_capital"`
	PortfolioValue      float64            `json:"portfolio_value"`
	ReserveValue        float64            `json:"reserve_value"`
	TotalValue          float64            `json:"total_value"`
	AllocationBreakdown map[string]float64 `json:"allocation_breakdown"`
	TradingCosts        float64            `json:"trading_costs"`
	ExecutionDelay      float64            `json:"execution_delay"` // seconds
	Failed              bool               `json:"failed"`
	MarketRegime        string             `json:"market_regime"`
	ProtectionActive    bool               `json:"protection_active"`
	RawReturn           float64            `json:"raw_return"` // before costs
	NetReturn           float64            `json:"net_return"` // after costs
	ActionsTaken        []string           `json:"actions_taken"`
}

// FinalSummary is the headline outcome of a run.
type FinalSummary struct {
	FinalCapital float64 `json:"final_capital"`
	TotalReturn  float64 `json:"total_return"` // fraction, e.g. 0.12 for +12%
}

// CalibrationInfo is the diagnostic summary produced by the Calibration
// Manager. When no profile was applied the raw trajectory passed through
// unchanged.
type CalibrationInfo struct {
	ProfileApplied    bool    `json:"profile_applied"`
	ProfileName       string  `json:"profile_name,omitempty"`
	ProfileVersion    string  `json:"profile_version,omitempty"`
	OriginalReturn    float64 `json:"original_return"`
	CalibratedReturn  float64 `json:"calibrated_return"`
	Adjustment        float64 `json:"adjustment"`
	TotalTradingCosts float64 `json:"total_trading_costs"`
	Reason            string  `json:"reason,omitempty"`
}

// RunResult is the complete outcome of one simulation run. A failed run
// still carries every cycle that completed plus the failure reason; it
// never claims success with fabricated data.
type RunResult struct {
	Name            string           `json:"name"`
	Success         bool             `json:"success"`
	FailureReason   string           `json:"failure_reason,omitempty"`
	Cycles          []*CycleRecord   `json:"cycles"`
	TotalCycles     int              `json:"total_cycles"`
	FinalSummary    FinalSummary     `json:"final_summary"`
	CalibrationInfo *CalibrationInfo `json:"calibration_info,omitempty"`
	StartedAt       time.Time        `json:"started_at"`
	CompletedAt     time.Time        `json:"completed_at"`
}
