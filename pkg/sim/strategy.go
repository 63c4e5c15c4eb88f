package sim

import (
	"math"
	"sort"

	"github.com/rs/zerolog/log"
)

// Strategy defaults. Weight clamps keep any single position from dominating
// the book while still letting momentum tilt the mix.
const (
	DefaultUniverseSize      = 5
	DefaultSelectionInterval = 5
	DefaultFeeRate           = 0.001
	DefaultConversionFeeRate = 0.0005
	DefaultReserveSymbol     = "USDT"

	minAssetWeight = 0.05
	maxAssetWeight = 0.25

	// Modeled seconds of execution latency per changed position.
	delayPerOrder = 0.25
)

// DefaultAnchors are the two reference assets: always selected, and the
// inputs to regime detection and the protection machine.
func DefaultAnchors() []string { return []string{"BTCUSDT", "ETHUSDT"} }

// StrategyConfig parameterizes one rebalancing strategy instance.
type StrategyConfig struct {
	ReserveSymbol     string   `json:"reserve_symbol" mapstructure:"reserve_symbol"`
	Anchors           []string `json:"anchors" mapstructure:"anchors"`
	UniverseSize      int      `json:"universe_size" mapstructure:"universe_size"`
	SelectionInterval int      `json:"selection_interval" mapstructure:"selection_interval"`
	FeeRate           float64  `json:"fee_rate" mapstructure:"fee_rate"`
	ConversionFeeRate float64  `json:"conversion_fee_rate" mapstructure:"conversion_fee_rate"`
}

// withDefaults fills zero values with the package defaults.
func (c StrategyConfig) withDefaults() StrategyConfig {
	if c.ReserveSymbol == "" {
		c.ReserveSymbol = DefaultReserveSymbol
	}
	if len(c.Anchors) == 0 {
		c.Anchors = DefaultAnchors()
	}
	if c.UniverseSize <= 0 {
		c.UniverseSize = DefaultUniverseSize
	}
	if c.SelectionInterval <= 0 {
		c.SelectionInterval = DefaultSelectionInterval
	}
	if c.FeeRate == 0 {
		c.FeeRate = DefaultFeeRate
	}
	if c.ConversionFeeRate == 0 {
		c.ConversionFeeRate = DefaultConversionFeeRate
	}
	return c
}

// RebalanceResult is the structured outcome of one strategy cycle.
type RebalanceResult struct {
	Success          bool               `json:"success"`
	Reason           string             `json:"reason,omitempty"`
	Allocations      map[string]float64 `json:"allocations"`
	TradingCosts     float64            `json:"trading_costs"`
	MarketRegime     Regime             `json:"market_regime"`
	ProtectionActive bool               `json:"protection_active"`
	ExecutionDelay   float64            `json:"execution_delay"` // seconds
	FailedOrders     int                `json:"failed_orders"`
	Actions          []string           `json:"actions"`
}

// RebalanceStrategy orchestrates coin selection, regime detection, hybrid
// signal blending, and capital protection into one allocation per cycle.
// An instance owns its state (selection cache, protection machine, previous
// allocation) for the duration of a single run and is not safe for
// concurrent use.
type RebalanceStrategy struct {
	cfg        StrategyConfig
	selector   *CoinSelector
	detector   *RegimeDetector
	protection *ProtectionMachine

	cycleCount int
	selected   []string
	prevAlloc  map[string]float64
}

// NewRebalanceStrategy creates a strategy in the unprotected state with an
// empty selection cache.
func NewRebalanceStrategy(cfg StrategyConfig) *RebalanceStrategy {
	cfg = cfg.withDefaults()

	secondary := cfg.Anchors[0]
	if len(cfg.Anchors) > 1 {
		secondary = cfg.Anchors[1]
	}

	return &RebalanceStrategy{
		cfg:        cfg,
		selector:   NewCoinSelector(cfg.UniverseSize, cfg.Anchors),
		detector:   NewRegimeDetector(cfg.Anchors[0], secondary),
		protection: NewProtectionMachine(),
	}
}

// Protection exposes the protection machine, mainly for inspection in
// reports and tests.
func (s *RebalanceStrategy) Protection() *ProtectionMachine { return s.protection }

// Rebalance runs one full strategy cycle against the updated price history
// and the capital at risk. It never mutates the history store.
func (s *RebalanceStrategy) Rebalance(history *HistoryStore, capital float64) *RebalanceResult {
	s.cycleCount++

	marketReturn := s.marketReturn(history)
	events := s.protection.Step(marketReturn)

	regime := s.detector.Detect(history)

	if s.protection.Active() {
		return s.reserveResult(capital, regime, events)
	}

	result := s.allocate(history, capital, regime)
	result.Actions = append(events, result.Actions...)

	if result.Success {
		s.prevAlloc = result.Allocations
	}

	return result
}

// marketReturn is the latest daily return of the primary reference asset,
// the series the protection machine watches.
func (s *RebalanceStrategy) marketReturn(history *HistoryStore) float64 {
	prices := history.Prices(s.cfg.Anchors[0])
	if len(prices) < 2 {
		return 0
	}
	return windowReturn(prices, 1)
}

// reserveResult short-circuits the cycle to 100% reserve. The conversion
// fee is charged only on the entry cycle; parked cycles trade nothing.
func (s *RebalanceStrategy) reserveResult(capital float64, regime Regime, events []string) *RebalanceResult {
	result := &RebalanceResult{
		Success:          true,
		Allocations:      map[string]float64{s.cfg.ReserveSymbol: 1.0},
		MarketRegime:     regime,
		ProtectionActive: true,
		Actions:          events,
	}

	entered := false
	for _, e := range events {
		if e == "protection_entry" {
			entered = true
			break
		}
	}

	if entered {
		result.TradingCosts = s.cfg.ConversionFeeRate * capital
		result.ExecutionDelay = delayPerOrder * float64(len(s.prevAlloc)+1)
		result.Actions = append(result.Actions, "convert_to_reserve")
	} else {
		result.Actions = append(result.Actions, "hold_reserve")
	}

	s.prevAlloc = result.Allocations

	return result
}

// allocate runs the unprotected path: selection, base weighting, hybrid
// adjustment, clamping, and cost estimation.
func (s *RebalanceStrategy) allocate(history *HistoryStore, capital float64, regime Regime) *RebalanceResult {
	actions := []string{"rebalance"}

	if s.needsSelection() {
		selected, scores := s.selector.Select(history)
		s.selected = selected
		if len(selected) > 0 {
			actions = append(actions, "selection_refresh")
			log.Debug().
				Strs("universe", selected).
				Int("candidates", len(scores)).
				Msg("Refreshed coin selection")
		}
	}

	if len(s.selected) == 0 {
		return &RebalanceResult{
			Success:      false,
			Reason:       "no price history available for any candidate",
			MarketRegime: regime,
		}
	}

	base := s.baseWeights(history)
	adjusted := AdjustAllocations(base, history, regime)
	final := clampWeights(adjusted, minAssetWeight, maxAssetWeight)

	costs, changes := s.tradingCosts(final, capital)

	return &RebalanceResult{
		Success:        true,
		Allocations:    final,
		TradingCosts:   costs,
		MarketRegime:   regime,
		ExecutionDelay: delayPerOrder * float64(changes),
		Actions:        actions,
	}
}

// needsSelection reports whether the universe should be refreshed this
// cycle. Selection runs on the first cycle and every SelectionInterval
// cycles after it; between refreshes the cached universe is reused.
func (s *RebalanceStrategy) needsSelection() bool {
	if len(s.selected) == 0 {
		return true
	}
	return (s.cycleCount-1)%s.cfg.SelectionInterval == 0
}

// baseWeights builds the momentum-weighted base allocation over the
// selected universe. Scores are shifted positive so a losing asset still
// ranks without going short; a flat scoreboard degrades to equal weights.
func (s *RebalanceStrategy) baseWeights(history *HistoryStore) map[string]float64 {
	shifted := make(map[string]float64, len(s.selected))

	minScore := math.Inf(1)
	scores := make(map[string]float64, len(s.selected))
	for _, symbol := range s.selected {
		score := MomentumScore(history.Prices(symbol))
		scores[symbol] = score
		if score < minScore {
			minScore = score
		}
	}

	for _, symbol := range s.selected {
		shifted[symbol] = scores[symbol] - minScore + epsilon
	}

	return normalizeWeights(shifted)
}

// tradingCosts estimates the cycle's costs from one-way turnover against
// the previous allocation, and counts the positions that changed.
func (s *RebalanceStrategy) tradingCosts(alloc map[string]float64, capital float64) (float64, int) {
	turnover := 0.0
	changes := 0

	for _, symbol := range allocationUnion(s.prevAlloc, alloc) {
		diff := math.Abs(alloc[symbol] - s.prevAlloc[symbol])
		turnover += diff
		if diff > epsilon {
			changes++
		}
	}

	return turnover / 2 * s.cfg.FeeRate * capital, changes
}

// clampWeights bounds every weight to [lo, hi] and renormalizes once. The
// single renormalization can leave weights marginally past the bounds; the
// sum-to-one invariant wins over the exact clamp.
func clampWeights(weights map[string]float64, lo, hi float64) map[string]float64 {
	clamped := make(map[string]float64, len(weights))
	for symbol, w := range weights {
		clamped[symbol] = clamp(w, lo, hi)
	}
	return normalizeWeights(clamped)
}

// allocationUnion returns the sorted union of symbols across two
// allocation maps.
func allocationUnion(a, b map[string]float64) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for symbol := range a {
		seen[symbol] = struct{}{}
	}
	for symbol := range b {
		seen[symbol] = struct{}{}
	}

	union := make([]string, 0, len(seen))
	for symbol := range seen {
		union = append(union, symbol)
	}
	sort.Strings(union)

	return union
}
