package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/ajitpratap0/foliosim/pkg/sim"
)

// Breaker thresholds for upstream market data.
const (
	breakerName             = "marketdata"
	breakerConsecutiveFails = 5
	breakerOpenTimeout      = 60 * time.Second
	breakerHalfOpenMaxReqs  = 3
)

var (
	breakerMetricsOnce sync.Once
	breakerStateGauge  *prometheus.GaugeVec
)

// initBreakerMetrics registers the breaker gauge exactly once.
func initBreakerMetrics() {
	breakerMetricsOnce.Do(func() {
		breakerStateGauge = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "foliosim_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
			},
			[]string{"name"},
		)
	})
}

func setBreakerStateGauge(name string, state gobreaker.State) {
	var value float64
	switch state {
	case gobreaker.StateClosed:
		value = 0
	case gobreaker.StateOpen:
		value = 1
	case gobreaker.StateHalfOpen:
		value = 2
	}
	breakerStateGauge.WithLabelValues(name).Set(value)
}

// BreakerProvider guards a price provider with a circuit breaker. An
// open circuit reports sim.ErrDataUnavailable, which the engine
// answers by switching the affected symbols to synthetic data instead
// of hammering a failing upstream.
type BreakerProvider struct {
	inner sim.PriceProvider
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerProvider wraps a provider with a circuit breaker that
// trips after consecutive failures.
func NewBreakerProvider(inner sim.PriceProvider) *BreakerProvider {
	initBreakerMetrics()

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: breakerHalfOpenMaxReqs,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerConsecutiveFails
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Market data circuit breaker state change")
			setBreakerStateGauge(name, to)
		},
	})
	setBreakerStateGauge(breakerName, cb.State())

	return &BreakerProvider{inner: inner, cb: cb}
}

// GetHistory forwards through the breaker. Open-circuit and half-open
// overflow errors surface as sim.ErrDataUnavailable.
func (b *BreakerProvider) GetHistory(ctx context.Context, symbol, interval string, lookback int) ([]sim.Candle, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.GetHistory(ctx, symbol, interval, lookback)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			log.Debug().
				Str("symbol", symbol).
				Msg("Circuit open, reporting price history unavailable")
			return nil, sim.ErrDataUnavailable
		}
		return nil, err
	}

	candles, ok := result.([]sim.Candle)
	if !ok {
		return nil, fmt.Errorf("unexpected breaker result type %T", result)
	}
	return candles, nil
}

// Health fails while the circuit is open, otherwise delegates to the
// inner provider when it reports health.
func (b *BreakerProvider) Health(ctx context.Context) error {
	if b.cb.State() == gobreaker.StateOpen {
		return fmt.Errorf("market data circuit breaker is open")
	}
	if h, ok := b.inner.(interface{ Health(context.Context) error }); ok {
		return h.Health(ctx)
	}
	return nil
}

// State exposes the breaker state for status endpoints.
func (b *BreakerProvider) State() gobreaker.State {
	return b.cb.State()
}
