// Package indicators computes technical analysis readings for the API's
// analysis endpoint and run report annotations.
package indicators

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/foliosim/pkg/sim"
)

// Params carries the tunable knobs shared by all indicators. Zero values
// fall back to each indicator's conventional default.
type Params struct {
	Period       int     `json:"period,omitempty" form:"period"`
	FastPeriod   int     `json:"fast_period,omitempty" form:"fast_period"`
	SlowPeriod   int     `json:"slow_period,omitempty" form:"slow_period"`
	SignalPeriod int     `json:"signal_period,omitempty" form:"signal_period"`
	StdDev       float64 `json:"std_dev,omitempty" form:"std_dev"`
}

// Service provides technical indicator calculations
type Service struct {
	// Can add configuration, caching, etc. here in the future
}

// NewService creates a new indicator service
func NewService() *Service {
	log.Info().Msg("Indicator service initialized")
	return &Service{}
}

// Names lists the indicators Calculate understands.
func Names() []string {
	return []string{"rsi", "ema", "macd", "bollinger", "adx"}
}

// Calculate dispatches to the named indicator. Close prices drive every
// indicator except ADX, which needs the full high/low/close series.
func (s *Service) Calculate(name string, candles []sim.Candle, p Params) (interface{}, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candles to analyze")
	}

	switch strings.ToLower(name) {
	case "rsi":
		return s.RSI(closes(candles), p)
	case "ema":
		return s.EMA(closes(candles), p)
	case "macd":
		return s.MACD(closes(candles), p)
	case "bollinger", "bbands":
		return s.BollingerBands(closes(candles), p)
	case "adx":
		return s.ADX(candles, p)
	}
	return nil, fmt.Errorf("unknown indicator %q", name)
}

// Analyze runs every indicator with conventional defaults and collects
// the readings by name. Indicators the series is too short for are
// skipped rather than failing the whole analysis.
func (s *Service) Analyze(candles []sim.Candle) map[string]interface{} {
	out := make(map[string]interface{}, len(Names()))
	for _, name := range Names() {
		var p Params
		if name == "ema" {
			p.Period = 20
		}
		result, err := s.Calculate(name, candles, p)
		if err != nil {
			log.Debug().Err(err).Str("indicator", name).Msg("Indicator skipped")
			continue
		}
		out[name] = result
	}
	return out
}

// closes extracts the close series from candles.
func closes(candles []sim.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// toChan feeds a price series into the channel form the cinar indicators
// consume.
func toChan(values []float64) chan float64 {
	ch := make(chan float64, len(values))
	for _, v := range values {
		ch <- v
	}
	close(ch)
	return ch
}

// drain collects a single result channel back into a slice. Indicators
// with multiple output channels must read them in lockstep instead, or
// the producer side blocks.
func drain(ch <-chan float64) []float64 {
	var out []float64
	for v := range ch {
		out = append(out, v)
	}
	return out
}
