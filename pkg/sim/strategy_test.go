package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStrategyStore seeds a history store with the two anchors plus three
// altcoins, all on gentle non-crashing paths.
func testStrategyStore(t *testing.T) *HistoryStore {
	t.Helper()

	store := NewHistoryStore(DefaultHistoryCap)
	require.NoError(t, store.AppendSeries("BTCUSDT", pricePath(40000, repeat(16, 0.005)...)))
	require.NoError(t, store.AppendSeries("ETHUSDT", pricePath(2500, repeat(16, 0.002, -0.001)...)))
	require.NoError(t, store.AppendSeries("ADAUSDT", pricePath(0.5, repeat(16, 0.05)...)))
	require.NoError(t, store.AppendSeries("SOLUSDT", pricePath(150, repeat(16, 0.01)...)))
	require.NoError(t, store.AppendSeries("XRPUSDT", pricePath(0.6, repeat(16, -0.03)...)))
	return store
}

func TestRebalanceWeightsSumToOne(t *testing.T) {
	strategy := NewRebalanceStrategy(StrategyConfig{})
	store := testStrategyStore(t)

	result := strategy.Rebalance(store, 1000)

	require.True(t, result.Success)
	require.False(t, result.ProtectionActive)

	sum := 0.0
	for symbol, weight := range result.Allocations {
		assert.Greater(t, weight, 0.0, "weight for %s", symbol)
		sum += weight
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.Len(t, result.Allocations, DefaultUniverseSize)
}

func TestRebalanceClampsConcentration(t *testing.T) {
	strategy := NewRebalanceStrategy(StrategyConfig{})
	store := testStrategyStore(t)

	result := strategy.Rebalance(store, 1000)
	require.True(t, result.Success)

	// One runaway momentum asset (ADAUSDT at +5%/day) must not dominate:
	// the [5%,25%] clamps with a single renormalization bound every
	// weight well away from the extremes.
	for symbol, weight := range result.Allocations {
		assert.GreaterOrEqual(t, weight, 0.04, "weight floor for %s", symbol)
		assert.LessOrEqual(t, weight, 0.56, "weight ceiling for %s", symbol)
	}
}

func TestRebalanceFirstCycleCosts(t *testing.T) {
	strategy := NewRebalanceStrategy(StrategyConfig{})
	store := testStrategyStore(t)

	result := strategy.Rebalance(store, 1000)
	require.True(t, result.Success)

	// From all-cash into a full book: one-way turnover is 1.0, so costs
	// are half the fee rate on the whole capital.
	assert.InDelta(t, 0.5*DefaultFeeRate*1000, result.TradingCosts, 1e-9)
	assert.InDelta(t, delayPerOrder*float64(DefaultUniverseSize), result.ExecutionDelay, 1e-9)
	assert.Zero(t, result.FailedOrders)
}

func TestRebalanceProtectionShortCircuit(t *testing.T) {
	strategy := NewRebalanceStrategy(StrategyConfig{})

	store := NewHistoryStore(DefaultHistoryCap)
	// A -13% day on the primary reference forces protection entry alone.
	require.NoError(t, store.AppendSeries("BTCUSDT", append(flatSeries(40000, 14), 34800)))
	require.NoError(t, store.AppendSeries("ETHUSDT", flatSeries(2500, 15)))
	require.NoError(t, store.AppendSeries("ADAUSDT", flatSeries(0.5, 15)))

	result := strategy.Rebalance(store, 1000)

	require.True(t, result.Success)
	assert.True(t, result.ProtectionActive)
	assert.Equal(t, map[string]float64{DefaultReserveSymbol: 1.0}, result.Allocations)
	assert.Contains(t, result.Actions, "protection_entry")
	assert.Contains(t, result.Actions, "convert_to_reserve")
	assert.InDelta(t, DefaultConversionFeeRate*1000, result.TradingCosts, 1e-9)
}

func TestRebalanceParkedCyclesAreFree(t *testing.T) {
	strategy := NewRebalanceStrategy(StrategyConfig{})

	store := NewHistoryStore(DefaultHistoryCap)
	require.NoError(t, store.AppendSeries("BTCUSDT", append(flatSeries(40000, 14), 34800)))
	require.NoError(t, store.AppendSeries("ETHUSDT", flatSeries(2500, 15)))

	first := strategy.Rebalance(store, 1000)
	require.True(t, first.ProtectionActive)

	// Another quiet down day: still parked, nothing traded.
	require.NoError(t, store.Append("BTCUSDT", 34500))
	require.NoError(t, store.Append("ETHUSDT", 2500))

	second := strategy.Rebalance(store, 1000)

	assert.True(t, second.ProtectionActive)
	assert.Zero(t, second.TradingCosts)
	assert.Zero(t, second.ExecutionDelay)
	assert.Contains(t, second.Actions, "hold_reserve")
}

func TestRebalanceFailsWithoutData(t *testing.T) {
	strategy := NewRebalanceStrategy(StrategyConfig{})

	result := strategy.Rebalance(NewHistoryStore(DefaultHistoryCap), 1000)

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Reason)
	assert.Empty(t, result.Allocations)
}

func TestRebalanceSelectionRefreshInterval(t *testing.T) {
	strategy := NewRebalanceStrategy(StrategyConfig{})
	store := testStrategyStore(t)

	step := func(symbol string, ret float64) {
		last, ok := store.Last(symbol)
		require.True(t, ok)
		require.NoError(t, store.Append(symbol, last*(1+ret)))
	}
	advance := func() {
		step("BTCUSDT", 0.005)
		step("ETHUSDT", 0)
		step("ADAUSDT", 0.05)
		step("SOLUSDT", 0.01)
		step("XRPUSDT", -0.03)
	}

	first := strategy.Rebalance(store, 1000)
	require.True(t, first.Success)
	assert.Contains(t, first.Allocations, "XRPUSDT")
	assert.Contains(t, first.Actions, "selection_refresh")

	// A new high-momentum listing appears after the first selection.
	require.NoError(t, store.AppendSeries("NEWUSDT", pricePath(1, repeat(16, 0.08)...)))

	for cycle := 2; cycle <= 5; cycle++ {
		advance()
		step("NEWUSDT", 0.08)
		result := strategy.Rebalance(store, 1000)
		require.True(t, result.Success)
		// The cached universe holds until the next selection cycle.
		assert.NotContains(t, result.Allocations, "NEWUSDT", "cycle %d reused the cached universe", cycle)
		assert.NotContains(t, result.Actions, "selection_refresh")
	}

	advance()
	step("NEWUSDT", 0.08)
	sixth := strategy.Rebalance(store, 1000)
	require.True(t, sixth.Success)

	// Cycle 6 refreshes the selection: the newcomer displaces the
	// weakest incumbent.
	assert.Contains(t, sixth.Actions, "selection_refresh")
	assert.Contains(t, sixth.Allocations, "NEWUSDT")
	assert.NotContains(t, sixth.Allocations, "XRPUSDT")
}
