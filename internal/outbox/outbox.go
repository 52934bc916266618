// Package outbox delivers committed events to Redis pub/sub. Events are
// written in the same transaction as the financial rows they describe, so a
// crash between commit and publish delays delivery instead of losing it.
package outbox

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/logs"

	"main/internal/errors"
	"main/internal/store"
)

const fetchBatch = 100

// Publisher pushes one event payload to the notification channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisPublisher publishes over Redis pub/sub.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.rdb.Publish(ctx, channel, payload).Err()
}

// Dispatcher polls unsent events and publishes them in creation order.
// Delivery is at-least-once: an event is marked sent only after a successful
// publish.
type Dispatcher struct {
	store   store.OutboxStore
	pub     Publisher
	channel string
}

func NewDispatcher(outboxStore store.OutboxStore, pub Publisher, channel string) *Dispatcher {
	return &Dispatcher{store: outboxStore, pub: pub, channel: channel}
}

// Dispatch publishes one batch and returns how many events went out.
func (d *Dispatcher) Dispatch(ctx context.Context) (int, error) {
	events, err := d.store.FetchUnsent(ctx, fetchBatch)
	if err != nil {
		return 0, errors.Wrap(err, "fetch unsent events")
	}

	sent := 0
	for _, event := range events {
		if err := d.pub.Publish(ctx, d.channel, event.Payload); err != nil {
			// Leave the rest unsent; the next cycle retries from here.
			return sent, errors.Wrap(err, "publish event "+event.ID.String())
		}
		if err := d.store.MarkSent(ctx, event.ID); err != nil {
			return sent, errors.Wrap(err, "mark event sent")
		}
		sent++
	}
	return sent, nil
}

// Run dispatches on the given cadence until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Dispatch(ctx); err != nil {
				logs.Warnf("outbox dispatch, err: %+v", err)
			}
		}
	}
}
