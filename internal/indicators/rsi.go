package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/momentum"
	"github.com/rs/zerolog/log"
)

// Conventional RSI bounds.
const (
	rsiOversold   = 30
	rsiOverbought = 70
)

// RSIResult is the most recent RSI reading.
type RSIResult struct {
	Value  float64 `json:"value"`
	Signal string  `json:"signal"` // "oversold", "overbought", "neutral"
}

// RSI calculates the Relative Strength Index over close prices.
// Default period is 14.
func (s *Service) RSI(prices []float64, p Params) (*RSIResult, error) {
	period := p.Period
	if period == 0 {
		period = 14
	}
	if period < 1 || period > len(prices) {
		return nil, fmt.Errorf("invalid period: %d (must be between 1 and %d)", period, len(prices))
	}

	values := drain(momentum.NewRsiWithPeriod[float64](period).Compute(toChan(prices)))
	if len(values) == 0 {
		return nil, fmt.Errorf("no RSI values calculated")
	}
	current := values[len(values)-1]

	signal := "neutral"
	if current < rsiOversold {
		signal = "oversold" // Potential buy signal
	} else if current > rsiOverbought {
		signal = "overbought" // Potential sell signal
	}

	log.Debug().
		Int("prices_count", len(prices)).
		Int("period", period).
		Float64("rsi", current).
		Str("signal", signal).
		Msg("RSI calculated")

	return &RSIResult{Value: current, Signal: signal}, nil
}
