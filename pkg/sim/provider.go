package sim

import (
	"context"
	"errors"
	"time"
)

// ErrDataUnavailable signals that a price-history collaborator could not
// serve a symbol. The engine recovers locally by switching that symbol to
// the synthetic return model.
var ErrDataUnavailable = errors.New("price history unavailable")

// Candle is one OHLCV row returned by a price-history collaborator.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// PriceProvider is the price-history collaborator consumed by the engine.
// Implementations may return fewer rows than requested; the engine
// tolerates short or empty results by falling back to synthetic data.
type PriceProvider interface {
	// GetHistory returns up to lookback candles for the symbol at the
	// given interval (e.g. "1d"), ordered oldest first.
	GetHistory(ctx context.Context, symbol, interval string, lookback int) ([]Candle, error)
}

// StaticProvider serves fixed price paths, oldest first. It backs tests
// and offline replays.
type StaticProvider struct {
	Interval string
	Series   map[string][]float64
	Start    time.Time
}

// NewStaticProvider wraps per-symbol close series into a provider. Dates
// are synthesized daily from start.
func NewStaticProvider(start time.Time, series map[string][]float64) *StaticProvider {
	return &StaticProvider{
		Interval: "1d",
		Series:   series,
		Start:    start,
	}
}

// GetHistory returns the last lookback closes for the symbol as candles.
func (p *StaticProvider) GetHistory(_ context.Context, symbol, _ string, lookback int) ([]Candle, error) {
	closes, ok := p.Series[symbol]
	if !ok {
		return nil, ErrDataUnavailable
	}

	if lookback > 0 && len(closes) > lookback {
		closes = closes[len(closes)-lookback:]
	}

	candles := make([]Candle, 0, len(closes))
	for i, c := range closes {
		candles = append(candles, Candle{
			Timestamp: p.Start.AddDate(0, 0, i),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    0,
		})
	}

	return candles, nil
}
