package indicators

import (
	"testing"
)

func TestBollingerBands(t *testing.T) {
	service := NewService()

	prices := generatePriceData(30, 100.0, 2.0)

	tests := []struct {
		name      string
		prices    []float64
		params    Params
		wantError bool
	}{
		{
			name:   "Valid Bollinger Bands with default period",
			prices: prices,
		},
		{
			name:   "Valid Bollinger Bands with custom period",
			prices: prices,
			params: Params{Period: 10},
		},
		{
			name:   "Custom std_dev is accepted",
			prices: prices,
			params: Params{Period: 15, StdDev: 2.5},
		},
		{
			name:      "Invalid period (below 2)",
			prices:    prices,
			params:    Params{Period: 1},
			wantError: true,
		},
		{
			name:      "Invalid period (too large)",
			prices:    prices,
			params:    Params{Period: len(prices) + 1},
			wantError: true,
		},
		{
			name:      "Invalid std_dev (negative)",
			prices:    prices,
			params:    Params{StdDev: -1.0},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := service.BollingerBands(tt.prices, tt.params)

			if tt.wantError {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}

			// Band ordering must hold for any series with variance
			if result.Upper <= result.Middle {
				t.Errorf("Upper band %.2f not above middle %.2f", result.Upper, result.Middle)
			}
			if result.Middle <= result.Lower {
				t.Errorf("Middle band %.2f not above lower %.2f", result.Middle, result.Lower)
			}
			if result.Width <= 0 {
				t.Errorf("Expected positive band width, got %.4f", result.Width)
			}

			validSignals := map[string]bool{"buy": true, "sell": true, "neutral": true}
			if !validSignals[result.Signal] {
				t.Errorf("Invalid signal: %s", result.Signal)
			}
		})
	}
}

func TestBollingerBandsSignals(t *testing.T) {
	service := NewService()

	// Flat series then a sharp spike: the last price pierces the upper band
	spikeUp := make([]float64, 25)
	for i := range spikeUp {
		spikeUp[i] = 100.0 + (float64(i%2) - 0.5)
	}
	spikeUp[len(spikeUp)-1] = 130.0

	// Flat series then a sharp drop: the last price pierces the lower band
	spikeDown := make([]float64, 25)
	for i := range spikeDown {
		spikeDown[i] = 100.0 + (float64(i%2) - 0.5)
	}
	spikeDown[len(spikeDown)-1] = 70.0

	tests := []struct {
		name           string
		prices         []float64
		expectedSignal string
	}{
		{
			name:           "Spike above the upper band",
			prices:         spikeUp,
			expectedSignal: "sell",
		},
		{
			name:           "Drop below the lower band",
			prices:         spikeDown,
			expectedSignal: "buy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := service.BollingerBands(tt.prices, Params{Period: 20})
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			if result.Signal != tt.expectedSignal {
				t.Errorf("Expected signal %s, got %s (price bands: %.2f / %.2f / %.2f)",
					tt.expectedSignal, result.Signal, result.Lower, result.Middle, result.Upper)
			}
		})
	}
}
