package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/volatility"
	"github.com/rs/zerolog/log"
)

// BollingerBandsResult is the most recent Bollinger Bands reading.
type BollingerBandsResult struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
	Width  float64 `json:"width"`  // Band width percentage
	Signal string  `json:"signal"` // "buy", "sell", "neutral"
}

// BollingerBands calculates Bollinger Bands over close prices. Default
// period is 20. cinar/indicator computes with a fixed 2 standard
// deviations, so a custom StdDev is validated but not applied.
func (s *Service) BollingerBands(prices []float64, p Params) (*BollingerBandsResult, error) {
	period := p.Period
	if period == 0 {
		period = 20
	}
	stdDev := p.StdDev
	if stdDev == 0 {
		stdDev = 2.0
	}

	if period < 2 || period > len(prices) {
		return nil, fmt.Errorf("invalid period: %d (must be between 2 and %d)", period, len(prices))
	}
	if stdDev <= 0 {
		return nil, fmt.Errorf("invalid std_dev: %f (must be > 0)", stdDev)
	}

	lowerChan, middleChan, upperChan := volatility.NewBollingerBandsWithPeriod[float64](period).Compute(toChan(prices))

	// Read the three bands in lockstep.
	var lower, middle, upper []float64
	for {
		l, lok := <-lowerChan
		m, mok := <-middleChan
		u, uok := <-upperChan
		if !lok || !mok || !uok {
			break
		}
		lower = append(lower, l)
		middle = append(middle, m)
		upper = append(upper, u)
	}

	if len(middle) == 0 {
		return nil, fmt.Errorf("no Bollinger Bands values calculated")
	}

	currentUpper := upper[len(upper)-1]
	currentMiddle := middle[len(middle)-1]
	currentLower := lower[len(lower)-1]
	currentPrice := prices[len(prices)-1]

	// Band width as percentage of the middle band.
	bandWidth := ((currentUpper - currentLower) / currentMiddle) * 100

	signal := "neutral"
	if currentPrice <= currentLower {
		signal = "buy" // Price at or below lower band - potential oversold
	} else if currentPrice >= currentUpper {
		signal = "sell" // Price at or above upper band - potential overbought
	}

	log.Debug().
		Int("prices_count", len(prices)).
		Int("period", period).
		Float64("upper", currentUpper).
		Float64("middle", currentMiddle).
		Float64("lower", currentLower).
		Float64("width", bandWidth).
		Str("signal", signal).
		Msg("Bollinger Bands calculated")

	return &BollingerBandsResult{
		Upper:  currentUpper,
		Middle: currentMiddle,
		Lower:  currentLower,
		Width:  bandWidth,
		Signal: signal,
	}, nil
}
