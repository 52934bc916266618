package feed

import (
	"context"
	"sync/atomic"

	"main/internal/model"
	"main/pkg/exception"
)

// Queue is a bounded, non-blocking tick queue. Producers never block on slow
// consumers; overflow is reported to the caller and counted.
type Queue struct {
	ch      chan model.PriceTick
	closed  uint32
	dropped atomic.Uint64
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan model.PriceTick, capacity)}
}

// TryPublish enqueues a tick without blocking.
func (q *Queue) TryPublish(t model.PriceTick) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return exception.ErrFeedQueueClosed
	}
	select {
	case q.ch <- t:
		return nil
	default:
		q.dropped.Add(1)
		return exception.ErrFeedQueueFull
	}
}

// Dropped returns the number of ticks rejected since creation.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops the queue from accepting new ticks.
func (q *Queue) Close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Run consumes ticks until the context is done or the queue is closed.
func (q *Queue) Run(ctx context.Context, handler func(model.PriceTick)) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-q.ch:
			if !ok {
				return
			}
			handler(t)
		}
	}
}
