package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/trend"
	"github.com/rs/zerolog/log"
)

// EMAResult is the most recent EMA reading relative to price.
type EMAResult struct {
	Value float64 `json:"value"`
	Trend string  `json:"trend"` // "bullish", "bearish", "neutral"
}

// EMA calculates the Exponential Moving Average over close prices.
// There is no conventional default period, so one is required.
func (s *Service) EMA(prices []float64, p Params) (*EMAResult, error) {
	if p.Period == 0 {
		return nil, fmt.Errorf("period is required for EMA calculation")
	}
	if p.Period < 1 || p.Period > len(prices) {
		return nil, fmt.Errorf("invalid period: %d (must be between 1 and %d)", p.Period, len(prices))
	}

	values := drain(trend.NewEmaWithPeriod[float64](p.Period).Compute(toChan(prices)))
	if len(values) == 0 {
		return nil, fmt.Errorf("no EMA values calculated")
	}

	current := values[len(values)-1]
	price := prices[len(prices)-1]

	trendSignal := "neutral"
	if price > current {
		trendSignal = "bullish" // Price above EMA
	} else if price < current {
		trendSignal = "bearish" // Price below EMA
	}

	log.Debug().
		Int("prices_count", len(prices)).
		Int("period", p.Period).
		Float64("ema", current).
		Float64("current_price", price).
		Str("trend", trendSignal).
		Msg("EMA calculated")

	return &EMAResult{Value: current, Trend: trendSignal}, nil
}
