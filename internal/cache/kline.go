package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"main/internal/errors"
	"main/internal/model"
)

const klineRetention = 7 * 24 * time.Hour

// KlineCache keeps a rolling window of sealed bars per symbol in a sorted
// set scored by bucket epoch milliseconds. The cache is a read accelerator:
// the database row is the source of truth and cache failures never fail a
// flush.
type KlineCache struct {
	rdb       *redis.Client
	retention time.Duration
}

func NewKlineCache(rdb *redis.Client) *KlineCache {
	return &KlineCache{rdb: rdb, retention: klineRetention}
}

func klineKey(symbol string) string {
	return fmt.Sprintf("klines:1m:%s", symbol)
}

// Append writes sealed bars and trims entries older than the retention
// window in the same round trip.
func (c *KlineCache) Append(ctx context.Context, candles []*model.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	pipe := c.rdb.Pipeline()
	cutoff := time.Now().Add(-c.retention).UnixMilli()
	touched := make(map[string]struct{}, len(candles))

	for _, candle := range candles {
		raw, err := json.Marshal(candle)
		if err != nil {
			return errors.Wrap(err, "marshal candle")
		}
		key := klineKey(candle.Symbol)
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(candle.Bucket.UnixMilli()),
			Member: raw,
		})
		touched[key] = struct{}{}
	}
	for key := range touched {
		pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%d", cutoff))
		pipe.Expire(ctx, key, c.retention)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "append klines")
	}
	return nil
}

// TrimBefore drops cached bars older than cutoff for the given symbols.
// Appends already trim incrementally; this is the daily sweep for symbols
// that went quiet.
func (c *KlineCache) TrimBefore(ctx context.Context, symbols []string, cutoff time.Time) error {
	pipe := c.rdb.Pipeline()
	for _, symbol := range symbols {
		pipe.ZRemRangeByScore(ctx, klineKey(symbol), "-inf", fmt.Sprintf("(%d", cutoff.UnixMilli()))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "trim klines")
	}
	return nil
}

// Range reads bars with bucket timestamps in [from, to], oldest first.
func (c *KlineCache) Range(ctx context.Context, symbol string, from, to time.Time) ([]*model.Candle, error) {
	raws, err := c.rdb.ZRangeByScore(ctx, klineKey(symbol), &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", from.UnixMilli()),
		Max: fmt.Sprintf("%d", to.UnixMilli()),
	}).Result()
	if err != nil {
		return nil, errors.Wrap(err, "range klines")
	}

	out := make([]*model.Candle, 0, len(raws))
	for _, raw := range raws {
		var candle model.Candle
		if err := json.Unmarshal([]byte(raw), &candle); err != nil {
			return nil, errors.Wrap(err, "unmarshal candle")
		}
		out = append(out, &candle)
	}
	return out, nil
}
