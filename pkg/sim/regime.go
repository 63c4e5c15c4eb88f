package sim

import "fmt"

// Regime classifies recent market behavior. It is a closed set: every
// switch over a Regime handles all four values explicitly so that a new
// regime cannot be silently mishandled.
type Regime int

const (
	RegimeSideways Regime = iota
	RegimeBull
	RegimeBear
	RegimeVolatile
)

// String returns the lowercase regime label used in records and metrics.
func (r Regime) String() string {
	switch r {
	case RegimeSideways:
		return "sideways"
	case RegimeBull:
		return "bull"
	case RegimeBear:
		return "bear"
	case RegimeVolatile:
		return "volatile"
	default:
		return fmt.Sprintf("regime(%d)", int(r))
	}
}

// MarshalText renders the regime label, making records JSON-friendly.
func (r Regime) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// ParseRegime converts a label back into a Regime.
func ParseRegime(s string) (Regime, error) {
	switch s {
	case "sideways":
		return RegimeSideways, nil
	case "bull":
		return RegimeBull, nil
	case "bear":
		return RegimeBear, nil
	case "volatile":
		return RegimeVolatile, nil
	default:
		return RegimeSideways, fmt.Errorf("unknown regime %q", s)
	}
}

// Regime detection windows and thresholds.
const (
	regimeMinPoints    = 14
	regimeShortWindow  = 3
	regimeMediumWindow = 7
	regimeLongWindow   = 14
	regimeVolWindow    = 7

	volatileVolThreshold = 0.06
	bullShortTrend       = 0.012
	bullMediumTrend      = 0.006
	bullCorrelation      = 0.7
	bullMaxVol           = 0.08
	bearShortTrend       = -0.012
	bearMediumTrend      = -0.006
	bearMaxVol           = 0.10
)

// RegimeDetector classifies the market from the price histories of two
// reference assets. Detection is a pure function of its inputs.
type RegimeDetector struct {
	// Reference symbols, typically the two anchor assets.
	Primary   string
	Secondary string
}

// NewRegimeDetector creates a detector over the two reference symbols.
func NewRegimeDetector(primary, secondary string) *RegimeDetector {
	return &RegimeDetector{Primary: primary, Secondary: secondary}
}

// RegimeSnapshot carries the intermediate signals behind a classification,
// useful for logging and reports.
type RegimeSnapshot struct {
	Regime      Regime  `json:"regime"`
	ShortTrend  float64 `json:"short_trend"`
	MediumTrend float64 `json:"medium_trend"`
	LongTrend   float64 `json:"long_trend"`
	Volatility  float64 `json:"volatility"`
	Correlation float64 `json:"correlation"`
}

// Detect classifies the market from the reference histories in the store.
// Fewer than 14 points on either reference defaults to sideways.
func (d *RegimeDetector) Detect(history *HistoryStore) Regime {
	return d.Snapshot(history).Regime
}

// Snapshot classifies the market and returns the signals it was derived
// from. Classification priority is volatile > bull > bear > sideways;
// the volatility check short-circuits the rest.
func (d *RegimeDetector) Snapshot(history *HistoryStore) RegimeSnapshot {
	primary := history.Prices(d.Primary)
	secondary := history.Prices(d.Secondary)

	if len(primary) < regimeMinPoints || len(secondary) < regimeMinPoints {
		return RegimeSnapshot{Regime: RegimeSideways}
	}

	snap := RegimeSnapshot{
		ShortTrend:  averageTrend(primary, secondary, regimeShortWindow),
		MediumTrend: averageTrend(primary, secondary, regimeMediumWindow),
		LongTrend:   averageTrend(primary, secondary, regimeLongWindow),
		Volatility:  averageVolatility(primary, secondary, regimeVolWindow),
		Correlation: referenceCorrelation(primary, secondary, regimeVolWindow),
	}

	switch {
	case snap.Volatility > volatileVolThreshold:
		snap.Regime = RegimeVolatile
	case snap.ShortTrend > bullShortTrend &&
		snap.MediumTrend > bullMediumTrend &&
		snap.Correlation > bullCorrelation &&
		snap.Volatility < bullMaxVol:
		snap.Regime = RegimeBull
	case snap.ShortTrend < bearShortTrend &&
		snap.MediumTrend < bearMediumTrend &&
		snap.Volatility < bearMaxVol:
		snap.Regime = RegimeBear
	default:
		snap.Regime = RegimeSideways
	}

	return snap
}

// trendOver returns the per-day trend over a k-day window:
// (last/first - 1) / k, with the window start clamped to the oldest point.
func trendOver(prices []float64, k int) float64 {
	if k < 1 {
		return 0
	}
	return windowReturn(prices, k) / float64(k)
}

// averageTrend averages the k-day trend across the two reference series.
func averageTrend(primary, secondary []float64, k int) float64 {
	return (trendOver(primary, k) + trendOver(secondary, k)) / 2
}

// averageVolatility averages the stdev of the last k daily returns across
// the two reference series.
func averageVolatility(primary, secondary []float64, k int) float64 {
	volA := stdev(tail(dailyReturns(primary), k))
	volB := stdev(tail(dailyReturns(secondary), k))
	return (volA + volB) / 2
}

// referenceCorrelation correlates the last k daily returns of the two
// reference series.
func referenceCorrelation(primary, secondary []float64, k int) float64 {
	a := tail(dailyReturns(primary), k)
	b := tail(dailyReturns(secondary), k)

	// Align lengths in case one series is shorter
	if len(a) != len(b) {
		n := len(a)
		if len(b) < n {
			n = len(b)
		}
		a = tail(a, n)
		b = tail(b, n)
	}

	return correlation(a, b)
}
