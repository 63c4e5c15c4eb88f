package sim

import "fmt"

// DefaultHistoryCap is the number of price points retained per symbol.
const DefaultHistoryCap = 30

// HistoryStore holds a rolling window of prices per symbol. Appends evict
// the oldest entry once the cap is reached. A store is owned by a single
// simulation run and is not safe for concurrent use.
type HistoryStore struct {
	cap    int
	prices map[string][]float64
}

// NewHistoryStore creates a store retaining at most cap prices per symbol.
// A non-positive cap falls back to DefaultHistoryCap.
func NewHistoryStore(cap int) *HistoryStore {
	if cap <= 0 {
		cap = DefaultHistoryCap
	}

	return &HistoryStore{
		cap:    cap,
		prices: make(map[string][]float64),
	}
}

// Append adds a price observation for a symbol, evicting the oldest entry
// when the window is full. Negative prices are rejected.
func (h *HistoryStore) Append(symbol string, price float64) error {
	if price < 0 {
		return fmt.Errorf("negative price %f for symbol %s", price, symbol)
	}

	series := h.prices[symbol]
	series = append(series, price)
	if len(series) > h.cap {
		series = series[len(series)-h.cap:]
	}
	h.prices[symbol] = series

	return nil
}

// AppendSeries appends a whole price series in order.
func (h *HistoryStore) AppendSeries(symbol string, prices []float64) error {
	for _, p := range prices {
		if err := h.Append(symbol, p); err != nil {
			return err
		}
	}
	return nil
}

// Prices returns a copy of the retained series for a symbol, oldest first.
func (h *HistoryStore) Prices(symbol string) []float64 {
	series := h.prices[symbol]
	if len(series) == 0 {
		return nil
	}

	out := make([]float64, len(series))
	copy(out, series)
	return out
}

// Last returns the most recent price for a symbol, or false when the
// symbol has no history.
func (h *HistoryStore) Last(symbol string) (float64, bool) {
	series := h.prices[symbol]
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

// Len returns the number of retained prices for a symbol.
func (h *HistoryStore) Len(symbol string) int {
	return len(h.prices[symbol])
}

// Cap returns the configured retention window.
func (h *HistoryStore) Cap() int {
	return h.cap
}

// Symbols returns the symbols with at least one retained price.
func (h *HistoryStore) Symbols() []string {
	symbols := make([]string, 0, len(h.prices))
	for symbol := range h.prices {
		symbols = append(symbols, symbol)
	}
	return symbols
}
