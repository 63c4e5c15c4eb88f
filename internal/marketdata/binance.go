package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/foliosim/internal/metrics"
	"github.com/ajitpratap0/foliosim/pkg/sim"
)

// Binance caps a single klines request at 1000 rows.
const maxKlineLimit = 1000

// Default request budget against the public klines endpoint.
const (
	defaultRateLimit = 10.0
	defaultRateBurst = 20
)

// BinanceConfig contains configuration for the Binance provider.
// API credentials are optional; klines are a public endpoint.
type BinanceConfig struct {
	APIKey    string
	SecretKey string
	Testnet   bool
	RateLimit float64
	RateBurst int
}

// BinanceProvider fetches OHLCV history from Binance klines.
type BinanceProvider struct {
	client  *binance.Client
	limiter *rate.Limiter
	testnet bool
}

// NewBinanceProvider creates a rate-limited Binance klines client.
func NewBinanceProvider(cfg BinanceConfig) *BinanceProvider {
	if cfg.Testnet {
		binance.UseTestnet = true
		log.Info().Msg("Binance market data initialized (testnet)")
	}

	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst < 1 {
		cfg.RateBurst = defaultRateBurst
	}

	return &BinanceProvider{
		client:  binance.NewClient(cfg.APIKey, cfg.SecretKey),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		testnet: cfg.Testnet,
	}
}

// GetHistory returns up to lookback klines for the symbol, oldest
// first. Blocks on the rate limiter before issuing the request.
func (p *BinanceProvider) GetHistory(ctx context.Context, symbol, interval string, lookback int) ([]sim.Candle, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if interval == "" {
		interval = "1d"
	}
	if lookback < 1 || lookback > maxKlineLimit {
		lookback = maxKlineLimit
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	klines, err := p.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(lookback).
		Do(ctx)
	metrics.RecordProviderRequest("binance", "klines", float64(time.Since(start).Milliseconds()), err)

	if err != nil {
		log.Warn().
			Err(err).
			Str("symbol", symbol).
			Str("interval", interval).
			Msg("Binance klines request failed")
		return nil, fmt.Errorf("fetching klines for %s: %w", symbol, err)
	}

	candles := make([]sim.Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := parseKline(k)
		if err != nil {
			return nil, fmt.Errorf("parsing kline for %s: %w", symbol, err)
		}
		candles = append(candles, candle)
	}

	log.Debug().
		Str("symbol", symbol).
		Str("interval", interval).
		Int("candles", len(candles)).
		Msg("Fetched Binance history")

	return candles, nil
}

// Health pings the Binance REST API.
func (p *BinanceProvider) Health(ctx context.Context) error {
	start := time.Now()
	err := p.client.NewPingService().Do(ctx)
	metrics.RecordProviderRequest("binance", "ping", float64(time.Since(start).Milliseconds()), err)

	if err != nil {
		return fmt.Errorf("binance ping failed: %w", err)
	}
	return nil
}

func parseKline(k *binance.Kline) (sim.Candle, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return sim.Candle{}, fmt.Errorf("open %q: %w", k.Open, err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return sim.Candle{}, fmt.Errorf("high %q: %w", k.High, err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return sim.Candle{}, fmt.Errorf("low %q: %w", k.Low, err)
	}
	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return sim.Candle{}, fmt.Errorf("close %q: %w", k.Close, err)
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return sim.Candle{}, fmt.Errorf("volume %q: %w", k.Volume, err)
	}

	return sim.Candle{
		Timestamp: time.UnixMilli(k.OpenTime),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
	}, nil
}
