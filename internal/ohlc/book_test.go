package ohlc

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/model"
	"main/pkg/exception"
)

func tickAt(symbol string, price int64, at time.Time) model.PriceTick {
	return model.PriceTick{
		Symbol:      symbol,
		Bid:         decimal.NewFromInt(price),
		Ask:         decimal.NewFromInt(price + 1),
		TimestampMS: at.UnixMilli(),
	}
}

func TestBookAggregatesWithinMinute(t *testing.T) {
	base := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	b := NewBook()

	require.NoError(t, b.Ingest(tickAt("EURUSD", 100, base)))
	require.NoError(t, b.Ingest(tickAt("EURUSD", 105, base.Add(20*time.Second))))
	require.NoError(t, b.Ingest(tickAt("EURUSD", 95, base.Add(40*time.Second))))

	bar, ok := b.OpenBar("EURUSD")
	require.True(t, ok)
	assert.Equal(t, 3, bar.TickCount)
	assert.True(t, bar.HighBid.Equal(decimal.NewFromInt(105)))
	assert.True(t, bar.LowBid.Equal(decimal.NewFromInt(95)))
	assert.True(t, bar.CloseBid.Equal(decimal.NewFromInt(95)))
}

func TestBookSealsOnMinuteRoll(t *testing.T) {
	base := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	b := NewBook()

	require.NoError(t, b.Ingest(tickAt("EURUSD", 100, base)))
	require.NoError(t, b.Ingest(tickAt("EURUSD", 101, base.Add(time.Minute))))

	// Sealed bar is in the flush batch, the new minute stays open.
	batch := b.SwapOut(base.Add(time.Minute))
	require.Len(t, batch, 1)
	assert.Equal(t, base, batch[0].Bucket)

	bar, ok := b.OpenBar("EURUSD")
	require.True(t, ok)
	assert.Equal(t, base.Add(time.Minute), bar.Bucket)
}

func TestBookRejectsStaleTickAfterSeal(t *testing.T) {
	base := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	b := NewBook()

	require.NoError(t, b.Ingest(tickAt("EURUSD", 100, base)))
	require.NoError(t, b.Ingest(tickAt("EURUSD", 101, base.Add(time.Minute))))

	err := b.Ingest(tickAt("EURUSD", 99, base.Add(30*time.Second)))
	assert.ErrorIs(t, err, exception.ErrStaleBucket)

	// The sealed bar was not reopened.
	batch := b.SwapOut(base.Add(time.Minute))
	require.Len(t, batch, 1)
	assert.Equal(t, 1, batch[0].TickCount)
}

func TestBookSwapOutSealsExpiredIdleBars(t *testing.T) {
	base := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	b := NewBook()

	require.NoError(t, b.Ingest(tickAt("EURUSD", 100, base)))
	require.NoError(t, b.Ingest(tickAt("BTCUSDT", 50000, base.Add(30*time.Second))))

	// Two minutes later, no further ticks arrived; both bars are expired.
	batch := b.SwapOut(base.Add(2 * time.Minute))
	assert.Len(t, batch, 2)

	_, ok := b.OpenBar("EURUSD")
	assert.False(t, ok)

	// Nothing left for the next cycle.
	assert.Empty(t, b.SwapOut(base.Add(3*time.Minute)))
}

func TestBookSwapOutKeepsCurrentMinuteOpen(t *testing.T) {
	base := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	b := NewBook()

	require.NoError(t, b.Ingest(tickAt("EURUSD", 100, base.Add(10*time.Second))))

	batch := b.SwapOut(base.Add(30 * time.Second))
	assert.Empty(t, batch, "bar for the running minute must not seal")

	_, ok := b.OpenBar("EURUSD")
	assert.True(t, ok)
}

func TestBookSymbolsAreIndependent(t *testing.T) {
	base := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	b := NewBook()

	require.NoError(t, b.Ingest(tickAt("EURUSD", 100, base)))
	require.NoError(t, b.Ingest(tickAt("EURUSD", 101, base.Add(time.Minute))))
	// BTCUSDT never sealed its first bar; its older bucket is still fine.
	require.NoError(t, b.Ingest(tickAt("BTCUSDT", 50000, base.Add(10*time.Second))))
}

type flushRecorder struct {
	batches [][]*model.Candle
	fail    bool
}

func (r *flushRecorder) InsertCandles(_ context.Context, candles []*model.Candle) error {
	if r.fail {
		return exception.ErrTransientStorage
	}
	r.batches = append(r.batches, candles)
	return nil
}

func (r *flushRecorder) CandlesRange(context.Context, string, time.Time, time.Time) ([]*model.Candle, error) {
	return nil, nil
}

type cacheRecorder struct {
	appended int
	fail     bool
}

func (r *cacheRecorder) Append(_ context.Context, candles []*model.Candle) error {
	if r.fail {
		return exception.ErrTransientStorage
	}
	r.appended += len(candles)
	return nil
}

func TestFlusherWritesStoreThenCache(t *testing.T) {
	base := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	b := NewBook()
	require.NoError(t, b.Ingest(tickAt("EURUSD", 100, base)))

	rec := &flushRecorder{}
	cr := &cacheRecorder{}
	f := NewFlusher(b, rec, cr)

	require.NoError(t, f.Flush(context.Background(), base.Add(time.Minute)))
	require.Len(t, rec.batches, 1)
	assert.Equal(t, 1, cr.appended)
}

func TestFlusherRequeuesOnStoreFailure(t *testing.T) {
	base := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	b := NewBook()
	require.NoError(t, b.Ingest(tickAt("EURUSD", 100, base)))

	rec := &flushRecorder{fail: true}
	f := NewFlusher(b, rec, nil)

	err := f.Flush(context.Background(), base.Add(time.Minute))
	require.ErrorIs(t, err, exception.ErrTransientStorage)

	// Next cycle retries the same bar.
	rec.fail = false
	require.NoError(t, f.Flush(context.Background(), base.Add(2*time.Minute)))
	require.Len(t, rec.batches, 1)
	require.Len(t, rec.batches[0], 1)
	assert.Equal(t, base, rec.batches[0][0].Bucket)
}

func TestFlusherCacheFailureDoesNotFailFlush(t *testing.T) {
	base := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	b := NewBook()
	require.NoError(t, b.Ingest(tickAt("EURUSD", 100, base)))

	rec := &flushRecorder{}
	cr := &cacheRecorder{fail: true}
	f := NewFlusher(b, rec, cr)

	assert.NoError(t, f.Flush(context.Background(), base.Add(time.Minute)))
	assert.Len(t, rec.batches, 1)
}
