// Package ohlc folds ticks into 1-minute bars and hands sealed bars to the
// flusher. The book is the single writer of open bars; everything leaving it
// is immutable.
package ohlc

import (
	"sync"
	"time"

	"main/internal/model"
	"main/pkg/exception"
)

// Book keeps one open bar per symbol plus the sealed bars awaiting flush.
// A bar seals when a tick for a later minute arrives or when the flusher
// observes that the bar's minute has passed. Ticks for minutes at or before
// the last sealed bucket are rejected; a bucket is never reopened.
type Book struct {
	mu     sync.Mutex
	open   map[string]*model.Candle
	sealed []*model.Candle
	// highest sealed bucket per symbol, the staleness watermark
	watermark map[string]time.Time
}

func NewBook() *Book {
	return &Book{
		open:      make(map[string]*model.Candle),
		watermark: make(map[string]time.Time),
	}
}

// Ingest folds one tick into its bar.
func (b *Book) Ingest(t model.PriceTick) error {
	bucket := t.Bucket()

	b.mu.Lock()
	defer b.mu.Unlock()

	if wm, ok := b.watermark[t.Symbol]; ok && !bucket.After(wm) {
		return exception.ErrStaleBucket
	}

	cur, ok := b.open[t.Symbol]
	if !ok {
		b.open[t.Symbol] = model.NewCandle(t)
		return nil
	}

	switch {
	case bucket.Equal(cur.Bucket):
		cur.Apply(t)
		return nil
	case bucket.After(cur.Bucket):
		b.seal(cur)
		b.open[t.Symbol] = model.NewCandle(t)
		return nil
	default:
		return exception.ErrStaleBucket
	}
}

// SwapOut seals every open bar whose minute has passed as of asOf, then
// detaches and returns the sealed batch. Runs under a short lock; the caller
// does the slow work outside it.
func (b *Book) SwapOut(asOf time.Time) []*model.Candle {
	edge := asOf.UTC().Truncate(time.Minute)

	b.mu.Lock()
	defer b.mu.Unlock()

	for symbol, cur := range b.open {
		if cur.Bucket.Before(edge) {
			b.seal(cur)
			delete(b.open, symbol)
		}
	}

	batch := b.sealed
	b.sealed = nil
	return batch
}

// Requeue puts a batch back at the front after a failed flush so the next
// cycle retries it.
func (b *Book) Requeue(batch []*model.Candle) {
	if len(batch) == 0 {
		return
	}
	b.mu.Lock()
	b.sealed = append(batch, b.sealed...)
	b.mu.Unlock()
}

func (b *Book) seal(c *model.Candle) {
	b.sealed = append(b.sealed, c)
	if wm, ok := b.watermark[c.Symbol]; !ok || c.Bucket.After(wm) {
		b.watermark[c.Symbol] = c.Bucket
	}
}

// OpenBar returns a copy of the open bar for reads outside the lock.
func (b *Book) OpenBar(symbol string) (model.Candle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.open[symbol]
	if !ok {
		return model.Candle{}, false
	}
	return *cur, true
}
