// Package marketdata supplies historical price data to the simulation
// engine. The Binance provider fetches daily klines behind a rate
// limiter; decorators add Redis caching and a circuit breaker. Sources
// the chain cannot serve degrade to the engine's synthetic price model
// rather than failing the run.
package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ajitpratap0/foliosim/internal/metrics"
	"github.com/ajitpratap0/foliosim/pkg/sim"
)

// Known source names for Config.Source.
const (
	SourceBinance   = "binance"
	SourceStatic    = "static"
	SourceSynthetic = "synthetic"
)

// Provider is a price-history source that can also report its own
// health. All concrete providers in this package implement it; the
// engine itself only consumes the narrower sim.PriceProvider.
type Provider interface {
	sim.PriceProvider
	Health(ctx context.Context) error
}

// Config selects and tunes the provider chain.
type Config struct {
	Source     string
	APIKey     string
	SecretKey  string
	Testnet    bool
	RateLimit  float64 // requests per second against Binance
	RateBurst  int
	StaticFile string        // fixture path for the static source
	CacheTTL   time.Duration // Redis history TTL
}

// New builds the provider chain for the configured source. The Binance
// chain is breaker-wrapped and, when a Redis client is supplied,
// cache-fronted. The synthetic source returns a nil provider; the
// engine models every symbol synthetically in that case.
func New(cfg Config, rdb *redis.Client) (Provider, error) {
	switch cfg.Source {
	case SourceSynthetic, "":
		return nil, nil

	case SourceStatic:
		if cfg.StaticFile == "" {
			return nil, fmt.Errorf("static market data source requires a fixture file")
		}
		return LoadStaticFile(cfg.StaticFile)

	case SourceBinance:
		var p Provider = NewBinanceProvider(BinanceConfig{
			APIKey:    cfg.APIKey,
			SecretKey: cfg.SecretKey,
			Testnet:   cfg.Testnet,
			RateLimit: cfg.RateLimit,
			RateBurst: cfg.RateBurst,
		})
		p = NewBreakerProvider(p)
		if rdb != nil {
			p = NewCachedProvider(p, metrics.NewRedisMetrics(rdb), cfg.CacheTTL)
		}
		return p, nil

	default:
		return nil, fmt.Errorf("unknown market data source %q", cfg.Source)
	}
}
