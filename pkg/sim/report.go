package sim

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Annualization assumes daily cycles; crypto trades every day of the year.
const tradingDaysPerYear = 365.0

// RunMetrics aggregates the performance of one completed run.
type RunMetrics struct {
	// Returns
	InitialCapital float64 `json:"initial_capital"`
	FinalCapital   float64 `json:"final_capital"`
	TotalReturnPct float64 `json:"total_return_pct"`
	CAGR           float64 `json:"cagr"`

	// Risk
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	Volatility     float64 `json:"volatility"` // annualized, percent
	SharpeRatio    float64 `json:"sharpe_ratio"`

	// Cycle statistics
	TotalCycles   int     `json:"total_cycles"`
	WinningCycles int     `json:"winning_cycles"`
	LosingCycles  int     `json:"losing_cycles"`
	BestCyclePct  float64 `json:"best_cycle_pct"`
	WorstCyclePct float64 `json:"worst_cycle_pct"`

	// Strategy behavior
	RegimeCycles      map[string]int `json:"regime_cycles"`
	ProtectedCycles   int            `json:"protected_cycles"`
	ProtectionEntries int            `json:"protection_entries"`
	ProtectionExits   int            `json:"protection_exits"`
	TotalTradingCosts float64        `json:"total_trading_costs"`

	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// CalculateRunMetrics computes the aggregate metrics of a run's cycle
// sequence.
func CalculateRunMetrics(result *RunResult, initialCapital float64) (*RunMetrics, error) {
	if result == nil || len(result.Cycles) == 0 {
		return nil, fmt.Errorf("no cycles to analyze")
	}

	m := &RunMetrics{
		InitialCapital: initialCapital,
		FinalCapital:   result.FinalSummary.FinalCapital,
		TotalReturnPct: result.FinalSummary.TotalReturn * 100,
		TotalCycles:    len(result.Cycles),
		RegimeCycles:   make(map[string]int),
		StartDate:      result.Cycles[0].CycleDate,
		EndDate:        result.Cycles[len(result.Cycles)-1].CycleDate,
		BestCyclePct:   math.Inf(-1),
		WorstCyclePct:  math.Inf(1),
	}

	peak := initialCapital
	returns := make([]float64, 0, len(result.Cycles))

	for _, cycle := range result.Cycles {
		m.RegimeCycles[cycle.MarketRegime]++
		m.TotalTradingCosts += cycle.TradingCosts

		if cycle.ProtectionActive {
			m.ProtectedCycles++
		}
		for _, action := range cycle.ActionsTaken {
			switch action {
			case "protection_entry":
				m.ProtectionEntries++
			case "protection_exit":
				m.ProtectionExits++
			}
		}

		if cycle.Failed {
			continue
		}

		r := cycle.NetReturn
		returns = append(returns, r)

		if r > 0 {
			m.WinningCycles++
		} else if r < 0 {
			m.LosingCycles++
		}
		if r*100 > m.BestCyclePct {
			m.BestCyclePct = r * 100
		}
		if r*100 < m.WorstCyclePct {
			m.WorstCyclePct = r * 100
		}

		if cycle.TotalValue > peak {
			peak = cycle.TotalValue
		}
		if peak > 0 {
			drawdown := (peak - cycle.TotalValue) / peak * 100
			if drawdown > m.MaxDrawdownPct {
				m.MaxDrawdownPct = drawdown
			}
		}
	}

	if len(returns) == 0 {
		m.BestCyclePct = 0
		m.WorstCyclePct = 0
		return m, nil
	}

	days := m.EndDate.Sub(m.StartDate).Hours()/24 + 1
	if days > 0 && initialCapital > 0 && m.FinalCapital > 0 {
		years := days / 365.25
		if years > 0 {
			m.CAGR = (math.Pow(m.FinalCapital/initialCapital, 1/years) - 1) * 100
		}
	}

	m.Volatility = stdev(returns) * math.Sqrt(tradingDaysPerYear) * 100
	if m.Volatility > 0 {
		annualized := mean(returns) * tradingDaysPerYear * 100
		m.SharpeRatio = annualized / m.Volatility
	}

	return m, nil
}

// GenerateReport renders a human-readable performance report for a run.
func GenerateReport(result *RunResult, initialCapital float64) string {
	var b strings.Builder

	line := strings.Repeat("=", 72)
	b.WriteString(line + "\n")
	b.WriteString("SIMULATION RUN REPORT")
	if result.Name != "" {
		b.WriteString(": " + result.Name)
	}
	b.WriteString("\n" + line + "\n\n")

	if !result.Success {
		b.WriteString(fmt.Sprintf("RUN FAILED: %s\n", result.FailureReason))
		b.WriteString(fmt.Sprintf("Completed cycles before failure: %d\n\n", result.TotalCycles))
	}

	m, err := CalculateRunMetrics(result, initialCapital)
	if err != nil {
		b.WriteString("No cycles completed.\n")
		return b.String()
	}

	b.WriteString("OVERVIEW\n--------\n")
	b.WriteString(fmt.Sprintf("Period:            %s to %s (%d cycles)\n",
		m.StartDate.Format("2006-01-02"), m.EndDate.Format("2006-01-02"), m.TotalCycles))
	b.WriteString(fmt.Sprintf("Initial Capital:   $%.2f\n", m.InitialCapital))
	b.WriteString(fmt.Sprintf("Final Capital:     $%.2f\n", m.FinalCapital))
	b.WriteString(fmt.Sprintf("Total Return:      %.2f%%\n", m.TotalReturnPct))
	b.WriteString(fmt.Sprintf("CAGR:              %.2f%%\n\n", m.CAGR))

	b.WriteString("RISK\n----\n")
	b.WriteString(fmt.Sprintf("Max Drawdown:      %.2f%%\n", m.MaxDrawdownPct))
	b.WriteString(fmt.Sprintf("Volatility (ann.): %.2f%%\n", m.Volatility))
	b.WriteString(fmt.Sprintf("Sharpe Ratio:      %.2f\n\n", m.SharpeRatio))

	b.WriteString("CYCLES\n------\n")
	b.WriteString(fmt.Sprintf("Winning / Losing:  %d / %d\n", m.WinningCycles, m.LosingCycles))
	b.WriteString(fmt.Sprintf("Best Cycle:        %.2f%%\n", m.BestCyclePct))
	b.WriteString(fmt.Sprintf("Worst Cycle:       %.2f%%\n", m.WorstCyclePct))
	b.WriteString(fmt.Sprintf("Trading Costs:     $%.2f\n\n", m.TotalTradingCosts))

	b.WriteString("REGIMES\n-------\n")
	for _, regime := range sortedKeys(m.RegimeCycles) {
		b.WriteString(fmt.Sprintf("%-10s %d cycles\n", regime, m.RegimeCycles[regime]))
	}
	b.WriteString("\n")

	b.WriteString("CAPITAL PROTECTION\n------------------\n")
	b.WriteString(fmt.Sprintf("Protected Cycles:  %d\n", m.ProtectedCycles))
	b.WriteString(fmt.Sprintf("Entries / Exits:   %d / %d\n\n", m.ProtectionEntries, m.ProtectionExits))

	if info := result.CalibrationInfo; info != nil {
		b.WriteString("CALIBRATION\n-----------\n")
		if info.ProfileApplied {
			b.WriteString(fmt.Sprintf("Profile:           %s (v%s)\n", info.ProfileName, info.ProfileVersion))
			b.WriteString(fmt.Sprintf("Original Return:   %.2f%%\n", info.OriginalReturn*100))
			b.WriteString(fmt.Sprintf("Calibrated Return: %.2f%%\n", info.CalibratedReturn*100))
			b.WriteString(fmt.Sprintf("Adjustment:        %.2f%%\n", info.Adjustment*100))
			b.WriteString(fmt.Sprintf("Modeled Costs:     $%.2f\n", info.TotalTradingCosts))
		} else {
			b.WriteString(fmt.Sprintf("Not applied: %s\n", info.Reason))
		}
		b.WriteString("\n")
	}

	b.WriteString(line + "\n")

	return b.String()
}

// sortedKeys returns the map's keys in sorted order for stable output.
func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
