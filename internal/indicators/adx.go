package indicators

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/foliosim/pkg/sim"
)

// ADXResult is the most recent ADX reading.
type ADXResult struct {
	Value    float64 `json:"value"`
	Strength string  `json:"strength"` // "weak", "strong", "very_strong"
}

// ADX calculates the Average Directional Index from the high/low/close
// series. ADX is not available in cinar/indicator v2, so this is
// Wilder's method implemented by hand. Default period is 14.
func (s *Service) ADX(candles []sim.Candle, p Params) (*ADXResult, error) {
	period := p.Period
	if period == 0 {
		period = 14
	}
	if period < 1 {
		return nil, fmt.Errorf("invalid period: %d (must be >= 1)", period)
	}

	// Wilder's smoothing needs a second window on top of the first.
	minRequired := period * 2
	if len(candles) < minRequired {
		return nil, fmt.Errorf("insufficient data: need at least %d candles, got %d", minRequired, len(candles))
	}

	high := make([]float64, len(candles))
	low := make([]float64, len(candles))
	close := make([]float64, len(candles))
	for i, c := range candles {
		high[i] = c.High
		low[i] = c.Low
		close[i] = c.Close
	}

	adx := wilderADX(high, low, close, period)
	if adx == 0 {
		return nil, fmt.Errorf("ADX calculation failed")
	}

	// ADX < 25: weak or absent trend; 25-50: strong; > 50: very strong.
	strength := "weak"
	if adx >= 25 && adx < 50 {
		strength = "strong"
	} else if adx >= 50 {
		strength = "very_strong"
	}

	log.Debug().
		Int("candles", len(candles)).
		Int("period", period).
		Float64("adx", adx).
		Str("strength", strength).
		Msg("ADX calculated")

	return &ADXResult{Value: adx, Strength: strength}, nil
}

// wilderADX computes the final ADX value over the full series.
func wilderADX(high, low, close []float64, period int) float64 {
	n := len(close)
	if n < period*2 {
		return 0
	}

	// True Range and directional movement per bar.
	tr := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)

	for i := 1; i < n; i++ {
		tr[i] = math.Max(high[i]-low[i],
			math.Max(math.Abs(high[i]-close[i-1]),
				math.Abs(low[i]-close[i-1])))

		upMove := high[i] - high[i-1]
		downMove := low[i-1] - low[i]

		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}

	smoothTR := wilderSmooth(tr, period)
	smoothPlusDM := wilderSmooth(plusDM, period)
	smoothMinusDM := wilderSmooth(minusDM, period)

	// Directional indexes and their spread.
	dx := make([]float64, n)
	for i := period; i < n; i++ {
		if smoothTR[i] == 0 {
			continue
		}
		plusDI := 100 * smoothPlusDM[i] / smoothTR[i]
		minusDI := 100 * smoothMinusDM[i] / smoothTR[i]

		if diSum := plusDI + minusDI; diSum != 0 {
			dx[i] = 100 * math.Abs(plusDI-minusDI) / diSum
		}
	}

	// ADX is the smoothed DX.
	return wilderSmooth(dx, period)[n-1]
}

// wilderSmooth applies Wilder's smoothing: a simple average seed
// followed by the recursive (prev*(n-1)+x)/n update.
func wilderSmooth(data []float64, period int) []float64 {
	n := len(data)
	result := make([]float64, n)

	if n < period {
		return result
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += data[i]
	}
	result[period-1] = sum / float64(period)

	for i := period; i < n; i++ {
		result[i] = (result[i-1]*float64(period-1) + data[i]) / float64(period)
	}

	return result
}
