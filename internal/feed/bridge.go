package feed

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/errors"
	"main/internal/model"
	"main/pkg/exception"
)

// FXBridge consumes quote updates relayed by the FX gateway over a Redis
// pub/sub channel. The gateway holds the upstream session; this side only
// normalizes and fans out.
type FXBridge struct {
	rdb     *redis.Client
	channel string
	out     *Distributor
}

func NewFXBridge(rdb *redis.Client, channel string, out *Distributor) *FXBridge {
	return &FXBridge{rdb: rdb, channel: channel, out: out}
}

// fxQuote is the relay payload. Timestamps are epoch milliseconds; prices
// arrive as strings to survive the relay without rounding.
type fxQuote struct {
	Symbol      string `json:"symbol"`
	Bid         string `json:"bid"`
	Ask         string `json:"ask"`
	TimestampMS int64  `json:"timestamp_ms"`
}

func (q fxQuote) toTick(now time.Time) (model.PriceTick, error) {
	if q.Symbol == "" || q.Bid == "" || q.Ask == "" {
		return model.PriceTick{}, exception.ErrFeedInvalidPayload
	}
	bid, err := decimal.NewFromString(q.Bid)
	if err != nil {
		return model.PriceTick{}, errors.Wrap(exception.ErrFeedInvalidPayload, "parse bid")
	}
	ask, err := decimal.NewFromString(q.Ask)
	if err != nil {
		return model.PriceTick{}, errors.Wrap(exception.ErrFeedInvalidPayload, "parse ask")
	}
	ts := q.TimestampMS
	if ts <= 0 {
		ts = now.UnixMilli()
	}
	return model.PriceTick{
		Symbol:      strings.ToUpper(q.Symbol),
		Bid:         bid,
		Ask:         ask,
		TimestampMS: ts,
	}, nil
}

// Run subscribes and pumps messages until the context is cancelled. go-redis
// reconnects the pub/sub session internally.
func (b *FXBridge) Run(ctx context.Context) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	logs.Infof("fx bridge subscribed, channel: %s", b.channel)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var quote fxQuote
			if err := json.Unmarshal([]byte(msg.Payload), &quote); err != nil {
				logs.Warnf("fx payload, err: %+v", errors.Wrap(exception.ErrFeedInvalidPayload, err.Error()))
				continue
			}
			tick, err := quote.toTick(time.Now())
			if err != nil {
				logs.Warnf("fx payload, err: %+v", err)
				continue
			}
			if err := b.out.Publish(tick); err != nil {
				logs.Warnf("fx publish %s, err: %+v", tick.Symbol, err)
			}
		}
	}
}
