// Package ops loads the engine configuration: JSON file first, environment
// overrides second. Secrets (database password, Redis password) come from
// the environment only.
package ops

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/errors"
	"main/internal/model"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Postgres    PostgresConfig     `json:"postgres"`
	Redis       RedisConfig        `json:"redis"`
	Feeds       FeedsConfig        `json:"feeds"`
	Instruments []InstrumentConfig `json:"instruments"`
	Flush       FlushConfig        `json:"flush"`
}

// PostgresConfig describes the durable store connection.
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"-"`
	Database string `json:"database"`
	SSLMode  string `json:"sslMode"`
}

// RedisConfig describes the cache and pub/sub connection.
type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

// FeedsConfig wires the upstream price sources.
type FeedsConfig struct {
	Crypto CryptoFeedConfig `json:"crypto"`
	FX     FXFeedConfig     `json:"fx"`
}

// CryptoFeedConfig describes the exchange websocket feed.
type CryptoFeedConfig struct {
	URL     string   `json:"url"`
	Symbols []string `json:"symbols"`
}

// FXFeedConfig describes the gateway relay channel.
type FXFeedConfig struct {
	Channel string `json:"channel"`
}

// InstrumentConfig describes one tradeable instrument.
type InstrumentConfig struct {
	Symbol        string `json:"symbol"`
	BaseCurrency  string `json:"baseCurrency"`
	QuoteCurrency string `json:"quoteCurrency"`
	Tradeable     *bool  `json:"tradeable"`
	TickSize      string `json:"tickSize"`
	MinOrderSize  string `json:"minOrderSize"`
	MaxOrderSize  string `json:"maxOrderSize"`
	MaxLeverage   int    `json:"maxLeverage"`
}

// FlushConfig tunes the candle flush and outbox dispatch cadence.
type FlushConfig struct {
	CandleIntervalSeconds int `json:"candleIntervalSeconds"`
	OutboxIntervalSeconds int `json:"outboxIntervalSeconds"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Postgres       PostgresConfig
	Redis          RedisConfig
	Feeds          FeedsConfig
	Registry       *model.Registry
	CandleInterval time.Duration
	OutboxInterval time.Duration
}

const (
	defaultCandleInterval = time.Minute
	defaultOutboxInterval = time.Second
	defaultEventChannel   = "exec_events"
	defaultFXChannel      = "fx_price_updates"
)

// Load reads the JSON config file, applies environment overrides and builds
// the instrument registry.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "read config")
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, errors.Wrap(err, "parse config")
	}

	applyEnv(&cfg)

	registry, err := buildRegistry(cfg.Instruments)
	if err != nil {
		return Loaded{}, err
	}

	if cfg.Feeds.FX.Channel == "" {
		cfg.Feeds.FX.Channel = defaultFXChannel
	}

	candleInterval := defaultCandleInterval
	if cfg.Flush.CandleIntervalSeconds > 0 {
		candleInterval = time.Duration(cfg.Flush.CandleIntervalSeconds) * time.Second
	}
	outboxInterval := defaultOutboxInterval
	if cfg.Flush.OutboxIntervalSeconds > 0 {
		outboxInterval = time.Duration(cfg.Flush.OutboxIntervalSeconds) * time.Second
	}

	return Loaded{
		Postgres:       cfg.Postgres,
		Redis:          cfg.Redis,
		Feeds:          cfg.Feeds,
		Registry:       registry,
		CandleInterval: candleInterval,
		OutboxInterval: outboxInterval,
	}, nil
}

// EventChannel is the pub/sub channel the outbox dispatcher publishes to.
func EventChannel() string {
	if v := os.Getenv("EVENT_CHANNEL"); v != "" {
		return v
	}
	return defaultEventChannel
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("POSTGRES_DB"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Redis.Port = port
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CRYPTO_FEED_URL"); v != "" {
		cfg.Feeds.Crypto.URL = v
	}
	if v := os.Getenv("FX_FEED_CHANNEL"); v != "" {
		cfg.Feeds.FX.Channel = v
	}
}

func buildRegistry(configs []InstrumentConfig) (*model.Registry, error) {
	if len(configs) == 0 {
		return nil, errors.New("config: no instruments")
	}

	instruments := make([]model.Instrument, 0, len(configs))
	for _, c := range configs {
		if c.Symbol == "" || c.BaseCurrency == "" || c.QuoteCurrency == "" {
			return nil, errors.Errorf("config: instrument %q missing symbol or currencies", c.Symbol)
		}

		tickSize, err := parseDecimal(c.TickSize, "0.00001")
		if err != nil {
			return nil, errors.Wrap(err, "instrument "+c.Symbol+" tickSize")
		}
		minSize, err := parseDecimal(c.MinOrderSize, "0.01")
		if err != nil {
			return nil, errors.Wrap(err, "instrument "+c.Symbol+" minOrderSize")
		}
		maxSize, err := parseDecimal(c.MaxOrderSize, "1000000")
		if err != nil {
			return nil, errors.Wrap(err, "instrument "+c.Symbol+" maxOrderSize")
		}
		if minSize.GreaterThan(maxSize) {
			return nil, errors.Errorf("config: instrument %q min size above max", c.Symbol)
		}

		tradeable := true
		if c.Tradeable != nil {
			tradeable = *c.Tradeable
		}
		maxLeverage := c.MaxLeverage
		if maxLeverage <= 0 {
			maxLeverage = 1
		}

		instruments = append(instruments, model.Instrument{
			Symbol:        c.Symbol,
			BaseCurrency:  c.BaseCurrency,
			QuoteCurrency: c.QuoteCurrency,
			Tradeable:     tradeable,
			TickSize:      tickSize,
			MinOrderSize:  minSize,
			MaxOrderSize:  maxSize,
			MaxLeverage:   maxLeverage,
		})
	}
	return model.NewRegistry(instruments), nil
}

func parseDecimal(raw, fallback string) (decimal.Decimal, error) {
	if raw == "" {
		raw = fallback
	}
	return decimal.NewFromString(raw)
}
