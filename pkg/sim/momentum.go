package sim

import (
	"math"
	"sort"
)

// Momentum scoring parameters. The 3-day return carries the largest weight;
// it has been the most predictive window for daily-rebalanced portfolios.
const (
	momentumMinPoints = 7

	weight1Day  = 0.25
	weight3Day  = 0.35
	weight7Day  = 0.25
	weightAccel = 0.15

	volumeProxyCap    = 1.5
	volatilityFloor   = 0.01
	reversionDeviation = 0.30
	reversionDampener = 0.5
)

// MomentumScore computes the composite momentum score for a price series.
// Series with fewer than 7 points score exactly 0: they cannot be ranked
// but remain eligible for selection.
func MomentumScore(prices []float64) float64 {
	if len(prices) < momentumMinPoints {
		return 0
	}

	r1 := windowReturn(prices, 1)
	r3 := windowReturn(prices, 3)
	r7 := windowReturn(prices, 7)

	// Acceleration: recent 3-day move versus the 3-day move before it.
	accel := r3 - previousWindowReturn(prices, 3)

	base := weight1Day*r1 + weight3Day*r3 + weight7Day*r7 + weightAccel*accel

	vol := stdev(tail(dailyReturns(prices), 7))

	// Realized volatility stands in for traded volume: busier assets move
	// more, and a capped proxy keeps illiquid spikes from dominating.
	volumeProxy := 1.0 + math.Min(volumeProxyCap, vol*2)

	riskAdjusted := base * volumeProxy / math.Max(vol, volatilityFloor)

	// A strong linear fit over the last week amplifies the score, a noisy
	// one discounts it.
	trendFactor := 0.5 + regressionR2(tail(prices, 7))

	// Prices stretched far above or below their weekly mean tend to snap
	// back; halve the score beyond a 30% deviation.
	dampener := 1.0
	weekMean := mean(tail(prices, 7))
	if weekMean > epsilon {
		deviation := math.Abs(prices[len(prices)-1]/weekMean - 1)
		if deviation > reversionDeviation {
			dampener = reversionDampener
		}
	}

	return riskAdjusted * trendFactor * dampener
}

// previousWindowReturn returns the k-day return of the window immediately
// preceding the most recent k days, clamped like windowReturn.
func previousWindowReturn(prices []float64, k int) float64 {
	n := len(prices)
	if n < 2 || k < 1 {
		return 0
	}

	end := n - 1 - k
	if end < 1 {
		return 0
	}

	start := end - k
	if start < 0 {
		start = 0
	}

	base := prices[start]
	if base < epsilon {
		base = epsilon
	}

	return prices[end]/base - 1
}

// CoinSelector ranks candidate assets by momentum score and picks a
// fixed-size universe, always keeping the anchor assets in.
type CoinSelector struct {
	UniverseSize int
	Anchors      []string
}

// NewCoinSelector creates a selector for the given universe size and
// anchor symbols.
func NewCoinSelector(universeSize int, anchors []string) *CoinSelector {
	return &CoinSelector{UniverseSize: universeSize, Anchors: anchors}
}

// Select returns the top-N symbols by momentum score along with the score
// of every candidate. Anchors present in the candidate set are forced into
// the selection, displacing the lowest-ranked non-anchor when necessary.
func (s *CoinSelector) Select(history *HistoryStore) ([]string, map[string]float64) {
	candidates := history.Symbols()
	sort.Strings(candidates)

	scores := make(map[string]float64, len(candidates))
	for _, symbol := range candidates {
		scores[symbol] = MomentumScore(history.Prices(symbol))
	}

	// Rank by score descending; ties break alphabetically for determinism.
	ranked := make([]string, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return scores[ranked[i]] > scores[ranked[j]]
	})

	size := s.UniverseSize
	if size <= 0 || size > len(ranked) {
		size = len(ranked)
	}

	selected := ranked[:size]

	for _, anchor := range s.Anchors {
		if _, ok := scores[anchor]; !ok {
			continue // anchor not in the candidate set
		}
		if containsSymbol(selected, anchor) {
			continue
		}

		// Swap out the lowest-ranked non-anchor.
		for i := len(selected) - 1; i >= 0; i-- {
			if !containsSymbol(s.Anchors, selected[i]) {
				selected[i] = anchor
				break
			}
		}
	}

	out := make([]string, len(selected))
	copy(out, selected)
	sort.Strings(out)

	return out, scores
}

func containsSymbol(symbols []string, symbol string) bool {
	for _, s := range symbols {
		if s == symbol {
			return true
		}
	}
	return false
}
