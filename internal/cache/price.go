package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"main/internal/errors"
	"main/internal/model"
	"main/pkg/exception"
)

const priceTTL = 5 * time.Minute

// PriceCache holds the latest quote per symbol under a short TTL so that a
// stalled feed surfaces as a missing price rather than a stale one.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPriceCache(rdb *redis.Client) *PriceCache {
	return &PriceCache{rdb: rdb, ttl: priceTTL}
}

func priceKey(symbol string) string {
	return fmt.Sprintf("price:%s", symbol)
}

type cachedPrice struct {
	Symbol      string          `json:"symbol"`
	Bid         decimal.Decimal `json:"bid"`
	Ask         decimal.Decimal `json:"ask"`
	TimestampMS int64           `json:"timestamp_ms"`
}

// Set overwrites the cached quote for the tick's symbol.
func (c *PriceCache) Set(ctx context.Context, tick model.PriceTick) error {
	raw, err := json.Marshal(cachedPrice{
		Symbol:      tick.Symbol,
		Bid:         tick.Bid,
		Ask:         tick.Ask,
		TimestampMS: tick.TimestampMS,
	})
	if err != nil {
		return errors.Wrap(err, "marshal price")
	}
	if err := c.rdb.Set(ctx, priceKey(tick.Symbol), raw, c.ttl).Err(); err != nil {
		return errors.Wrap(err, "set price")
	}
	return nil
}

// Get returns the last quote, or ErrPriceUnavailable when the symbol has no
// live (unexpired) quote.
func (c *PriceCache) Get(ctx context.Context, symbol string) (model.PriceTick, error) {
	raw, err := c.rdb.Get(ctx, priceKey(symbol)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.PriceTick{}, exception.ErrPriceUnavailable
		}
		return model.PriceTick{}, errors.Wrap(err, "get price")
	}

	var cached cachedPrice
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return model.PriceTick{}, errors.Wrap(err, "unmarshal price")
	}
	return model.PriceTick{
		Symbol:      cached.Symbol,
		Bid:         cached.Bid,
		Ask:         cached.Ask,
		TimestampMS: cached.TimestampMS,
	}, nil
}
