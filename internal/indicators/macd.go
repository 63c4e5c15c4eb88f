package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/trend"
	"github.com/rs/zerolog/log"
)

// MACDResult is the most recent MACD reading.
type MACDResult struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
	Crossover string  `json:"crossover"` // "bullish", "bearish", "none"
}

// MACD calculates the Moving Average Convergence Divergence over close
// prices. Default periods are 12/26/9.
func (s *Service) MACD(prices []float64, p Params) (*MACDResult, error) {
	fast, slow, signal := p.FastPeriod, p.SlowPeriod, p.SignalPeriod
	if fast == 0 {
		fast = 12
	}
	if slow == 0 {
		slow = 26
	}
	if signal == 0 {
		signal = 9
	}

	if fast < 1 || slow < 1 || signal < 1 {
		return nil, fmt.Errorf("invalid periods: fast=%d, slow=%d, signal=%d", fast, slow, signal)
	}
	if fast >= slow {
		return nil, fmt.Errorf("fast period (%d) must be less than slow period (%d)", fast, slow)
	}
	minRequired := slow + signal
	if len(prices) < minRequired {
		return nil, fmt.Errorf("insufficient data: need at least %d prices, got %d", minRequired, len(prices))
	}

	macdChan, signalChan := trend.NewMacdWithPeriod[float64](fast, slow, signal).Compute(toChan(prices))

	// Both channels have to be read in lockstep; draining one first
	// would block the producer.
	var macdValues, signalValues []float64
	for {
		m, mok := <-macdChan
		sv, sok := <-signalChan
		if !mok || !sok {
			break
		}
		macdValues = append(macdValues, m)
		signalValues = append(signalValues, sv)
	}

	if len(macdValues) == 0 {
		return nil, fmt.Errorf("no MACD values calculated")
	}

	currentMACD := macdValues[len(macdValues)-1]
	currentSignal := signalValues[len(signalValues)-1]
	currentHistogram := currentMACD - currentSignal

	crossover := "none"
	if len(macdValues) >= 2 {
		prevHistogram := macdValues[len(macdValues)-2] - signalValues[len(signalValues)-2]

		// Bullish crossover: MACD crosses above signal line
		if prevHistogram <= 0 && currentHistogram > 0 {
			crossover = "bullish"
		}
		// Bearish crossover: MACD crosses below signal line
		if prevHistogram >= 0 && currentHistogram < 0 {
			crossover = "bearish"
		}
	}

	log.Debug().
		Int("prices_count", len(prices)).
		Int("fast", fast).
		Int("slow", slow).
		Int("signal", signal).
		Float64("macd", currentMACD).
		Float64("histogram", currentHistogram).
		Str("crossover", crossover).
		Msg("MACD calculated")

	return &MACDResult{
		MACD:      currentMACD,
		Signal:    currentSignal,
		Histogram: currentHistogram,
		Crossover: crossover,
	}, nil
}
