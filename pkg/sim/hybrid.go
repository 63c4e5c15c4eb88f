package sim

import (
	"fmt"
	"math"
)

// Hybrid signal parameters.
const (
	hybridLookback    = 7
	reversionWindow   = 14
	momentumScale     = 5.0
	reversionScale    = 0.5
	maxAdjustFraction = 0.20
)

// blendWeights returns the momentum/mean-reversion mix for a regime.
// Trending markets lean on momentum, choppy ones on reversion.
func blendWeights(regime Regime) (momentum, reversion float64) {
	switch regime {
	case RegimeBull:
		return 0.8, 0.2
	case RegimeBear:
		return 0.3, 0.7
	case RegimeVolatile:
		return 0.4, 0.6
	case RegimeSideways:
		return 0.6, 0.4
	default:
		panic(fmt.Sprintf("unhandled regime %d", int(regime)))
	}
}

// toleranceBand returns the maximum fraction a position may move away from
// its base allocation in the given regime.
func toleranceBand(regime Regime) float64 {
	switch regime {
	case RegimeBull:
		return 0.25
	case RegimeSideways:
		return 0.20
	case RegimeBear:
		return 0.15
	case RegimeVolatile:
		return 0.15
	default:
		panic(fmt.Sprintf("unhandled regime %d", int(regime)))
	}
}

// HybridSignal blends a momentum reading and a mean-reversion reading for
// one asset into a single signal in [-1,1], weighted by regime.
func HybridSignal(prices []float64, regime Regime) float64 {
	momentum := momentumSignal(prices)
	reversion := reversionSignal(prices)

	wm, wr := blendWeights(regime)
	return wm*momentum + wr*reversion
}

// momentumSignal measures the lookback return scaled by how consistently
// the daily moves pointed the same way, normalized into [-1,1].
func momentumSignal(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}

	raw := windowReturn(prices, hybridLookback)
	consistency := trendConsistency(prices, hybridLookback)

	return clamp(raw*consistency*momentumScale, -1, 1)
}

// trendConsistency returns the fraction of daily moves over the lookback
// that point in the direction of the net move, in [0,1].
func trendConsistency(prices []float64, lookback int) float64 {
	returns := tail(dailyReturns(prices), lookback)
	if len(returns) == 0 {
		return 0
	}

	net := windowReturn(prices, lookback)
	if net == 0 {
		return 0
	}

	matching := 0
	for _, r := range returns {
		if (net > 0 && r > 0) || (net < 0 && r < 0) {
			matching++
		}
	}

	return float64(matching) / float64(len(returns))
}

// reversionSignal is the negated z-score of the latest price against its
// 14-day moving average, scaled and clamped. Stretched prices pull the
// signal toward a fade.
func reversionSignal(prices []float64) float64 {
	window := tail(prices, reversionWindow)
	if len(window) < 2 {
		return 0
	}

	ma := mean(window)
	sd := stdev(window)
	if sd < epsilon {
		return 0
	}

	z := (prices[len(prices)-1] - ma) / sd

	return clamp(-z*reversionScale, -1, 1)
}

// AdjustAllocations applies the hybrid signal of each asset to its base
// weight: signal strength scales the weight by up to ±20%, capped by a
// confidence multiplier and the regime tolerance band, then the whole map
// is renormalized to sum to 1.
func AdjustAllocations(base map[string]float64, history *HistoryStore, regime Regime) map[string]float64 {
	adjusted := make(map[string]float64, len(base))
	band := toleranceBand(regime)

	for symbol, weight := range base {
		signal := HybridSignal(history.Prices(symbol), regime)

		// Weak signals get less room to move the position.
		confidence := 0.5 + math.Abs(signal)/2
		delta := clamp(signal*maxAdjustFraction*confidence, -band, band)

		adjusted[symbol] = weight * (1 + delta)
	}

	return normalizeWeights(adjusted)
}

// normalizeWeights rescales the map so weights sum to 1. An all-zero map
// is returned unchanged.
func normalizeWeights(weights map[string]float64) map[string]float64 {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total < epsilon {
		return weights
	}

	for symbol, w := range weights {
		weights[symbol] = w / total
	}

	return weights
}
