package sim

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

// RandSource is the randomness consumed by the synthetic return model and
// execution-delay jitter. *math/rand.Rand satisfies it, so callers inject
// rand.New(rand.NewSource(seed)) for reproducible runs.
type RandSource interface {
	Float64() float64
	NormFloat64() float64
}

// Synthetic model defaults: a mild daily drift with crypto-sized noise.
const (
	syntheticBaseDrift = 0.002
	syntheticBaseVol   = 0.03
	syntheticBasePrice = 100.0
)

// regimeMultiplier scales synthetic returns by market regime.
func regimeMultiplier(regime Regime) float64 {
	switch regime {
	case RegimeBull:
		return 1.4
	case RegimeBear:
		return 0.6
	case RegimeVolatile:
		return 1.1
	case RegimeSideways:
		return 1.0
	default:
		panic(fmt.Sprintf("unhandled regime %d", int(regime)))
	}
}

// SyntheticModel generates per-asset returns when real price history is
// unavailable. Draws come from the injected random source; symbols are
// always processed in sorted order so a seeded source yields identical
// runs.
type SyntheticModel struct {
	Drift float64
	Vol   float64
	rng   RandSource
}

// NewSyntheticModel creates a model around the given random source.
func NewSyntheticModel(rng RandSource) *SyntheticModel {
	return &SyntheticModel{
		Drift: syntheticBaseDrift,
		Vol:   syntheticBaseVol,
		rng:   rng,
	}
}

// Returns draws one synthetic daily return per symbol, scaled by the
// regime multiplier.
func (m *SyntheticModel) Returns(symbols []string, regime Regime) map[string]float64 {
	ordered := make([]string, len(symbols))
	copy(ordered, symbols)
	sort.Strings(ordered)

	mult := regimeMultiplier(regime)

	out := make(map[string]float64, len(ordered))
	for _, symbol := range ordered {
		base := m.Drift + m.Vol*m.rng.NormFloat64()
		out[symbol] = base * mult
	}

	return out
}

// NextPrices advances each symbol's price by one synthetic return. Symbols
// missing from prev start at the synthetic base price.
func (m *SyntheticModel) NextPrices(prev map[string]float64, symbols []string, regime Regime) map[string]float64 {
	returns := m.Returns(symbols, regime)

	out := make(map[string]float64, len(symbols))
	for symbol, r := range returns {
		price, ok := prev[symbol]
		if !ok || price <= 0 {
			price = syntheticBasePrice
		}
		out[symbol] = price * (1 + r)
	}

	return out
}

// Warmup generates an n-point synthetic price path per symbol under the
// sideways regime, used to seed history when a symbol has no real data.
func (m *SyntheticModel) Warmup(symbols []string, n int) map[string][]float64 {
	ordered := make([]string, len(symbols))
	copy(ordered, symbols)
	sort.Strings(ordered)

	paths := make(map[string][]float64, len(ordered))
	prices := make(map[string]float64, len(ordered))

	for i := 0; i < n; i++ {
		prices = m.NextPrices(prices, ordered, RegimeSideways)
		for _, symbol := range ordered {
			paths[symbol] = append(paths[symbol], prices[symbol])
		}
	}

	log.Debug().
		Int("symbols", len(ordered)).
		Int("points", n).
		Msg("Generated synthetic warmup history")

	return paths
}
