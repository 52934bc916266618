package ohlc

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/model"
	"main/internal/store"
)

// BarCache receives sealed bars after the durable write succeeds.
type BarCache interface {
	Append(ctx context.Context, candles []*model.Candle) error
}

// Flusher drains the book on a fixed cadence: durable insert first, cache
// append second. A failed insert requeues the batch; a failed cache append
// is logged and forgotten since the rows are already durable.
type Flusher struct {
	book  *Book
	store store.CandleStore
	cache BarCache
}

func NewFlusher(book *Book, candleStore store.CandleStore, cache BarCache) *Flusher {
	return &Flusher{book: book, store: candleStore, cache: cache}
}

// Flush seals expired bars and writes the sealed batch out.
func (f *Flusher) Flush(ctx context.Context, asOf time.Time) error {
	batch := f.book.SwapOut(asOf)
	if len(batch) == 0 {
		return nil
	}

	if err := f.store.InsertCandles(ctx, batch); err != nil {
		f.book.Requeue(batch)
		return err
	}

	if f.cache != nil {
		if err := f.cache.Append(ctx, batch); err != nil {
			logs.Warnf("kline cache append, bars: %d, err: %+v", len(batch), err)
		}
	}
	return nil
}
