package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/store"
	"main/pkg/exception"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func testRegistry() *model.Registry {
	return model.NewRegistry([]model.Instrument{{
		Symbol:        "EURUSD",
		BaseCurrency:  "EUR",
		QuoteCurrency: "USD",
		Tradeable:     true,
		MinOrderSize:  dec("0.01"),
		MaxOrderSize:  dec("1000000"),
		MaxLeverage:   100,
	}, {
		Symbol:    "HALTED",
		Tradeable: false,
	}})
}

type execRecorder struct {
	fills []struct {
		order *model.PendingOrder
		price decimal.Decimal
	}
	err error
}

func (r *execRecorder) ExecutePending(_ context.Context, order *model.PendingOrder, fillPrice decimal.Decimal) error {
	if r.err != nil {
		return r.err
	}
	r.fills = append(r.fills, struct {
		order *model.PendingOrder
		price decimal.Decimal
	}{order, fillPrice})
	return nil
}

// blockingExec parks ExecutePending until the test releases it, exposing the
// window where an order is claimed but not yet settled.
type blockingExec struct {
	started chan struct{}
	release chan error
}

func newBlockingExec() *blockingExec {
	return &blockingExec{
		started: make(chan struct{}, 1),
		release: make(chan error),
	}
}

func (x *blockingExec) ExecutePending(context.Context, *model.PendingOrder, decimal.Decimal) error {
	x.started <- struct{}{}
	return <-x.release
}

type fixedPrice struct {
	tick model.PriceTick
	err  error
}

func (p fixedPrice) Get(context.Context, string) (model.PriceTick, error) {
	return p.tick, p.err
}

func quote(symbol, bid, ask string) model.PriceTick {
	return model.PriceTick{
		Symbol:      symbol,
		Bid:         dec(bid),
		Ask:         dec(ask),
		TimestampMS: time.Now().UnixMilli(),
	}
}

func limitBuy(trigger string) *model.PendingOrder {
	return &model.PendingOrder{
		AccountID:    uuid.New(),
		Symbol:       "EURUSD",
		Kind:         enum.OrderKindLimit,
		Side:         enum.OrderSideBuy,
		Product:      enum.ProductTypeSpot,
		Quantity:     dec("100"),
		TriggerPrice: dec(trigger),
	}
}

func TestPlaceAssignsNumberAndPersists(t *testing.T) {
	mem := store.NewMemory()
	exec := &execRecorder{}
	e := NewEngine(mem, testRegistry(), exec, nil)

	order := limitBuy("1.0800")
	require.NoError(t, e.Place(context.Background(), order))

	assert.Equal(t, "ORD-00000001", order.OrderNumber)
	assert.Equal(t, enum.PendingStatusPending, order.Status)
	assert.Equal(t, 1, e.PendingCount())

	persisted, ok := mem.PendingByID(order.ID)
	require.True(t, ok)
	assert.Equal(t, enum.PendingStatusPending, persisted.Status)
}

func TestPlaceValidation(t *testing.T) {
	mem := store.NewMemory()
	e := NewEngine(mem, testRegistry(), &execRecorder{}, nil)
	ctx := context.Background()

	testCases := []struct {
		desc  string
		order *model.PendingOrder
		err   error
	}{
		{"market kind is not conditional", &model.PendingOrder{
			Symbol: "EURUSD", Kind: enum.OrderKindMarket, Side: enum.OrderSideBuy,
			Product: enum.ProductTypeSpot, Quantity: dec("1"), TriggerPrice: dec("1"),
		}, exception.ErrOrderInvalidRequest},
		{"unknown symbol", &model.PendingOrder{
			Symbol: "XXXYYY", Kind: enum.OrderKindLimit, Side: enum.OrderSideBuy,
			Product: enum.ProductTypeSpot, Quantity: dec("1"), TriggerPrice: dec("1"),
		}, exception.ErrInstrumentNotFound},
		{"halted symbol", &model.PendingOrder{
			Symbol: "HALTED", Kind: enum.OrderKindLimit, Side: enum.OrderSideBuy,
			Product: enum.ProductTypeSpot, Quantity: dec("1"), TriggerPrice: dec("1"),
		}, exception.ErrOrderNotTradeable},
		{"below min size", &model.PendingOrder{
			Symbol: "EURUSD", Kind: enum.OrderKindLimit, Side: enum.OrderSideBuy,
			Product: enum.ProductTypeSpot, Quantity: dec("0.001"), TriggerPrice: dec("1"),
		}, exception.ErrOrderSizeOutOfRange},
		{"leverage above max", &model.PendingOrder{
			Symbol: "EURUSD", Kind: enum.OrderKindLimit, Side: enum.OrderSideBuy,
			Product: enum.ProductTypeMargin, Leverage: 500, Quantity: dec("1"), TriggerPrice: dec("1"),
		}, exception.ErrOrderLeverageExceeded},
		{"stop-limit without limit price", &model.PendingOrder{
			Symbol: "EURUSD", Kind: enum.OrderKindStopLimit, Side: enum.OrderSideBuy,
			Product: enum.ProductTypeSpot, Quantity: dec("1"), TriggerPrice: dec("1.1"),
		}, exception.ErrOrderInvalidRequest},
		{"stop-limit buy with limit below trigger", func() *model.PendingOrder {
			limit := dec("1.05")
			return &model.PendingOrder{
				Symbol: "EURUSD", Kind: enum.OrderKindStopLimit, Side: enum.OrderSideBuy,
				Product: enum.ProductTypeSpot, Quantity: dec("1"),
				TriggerPrice: dec("1.10"), LimitPrice: &limit,
			}
		}(), exception.ErrOrderInvalidRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.ErrorIs(t, e.Place(ctx, tc.order), tc.err)
		})
	}
	assert.Equal(t, 0, e.PendingCount())
}

func TestPlaceStopThroughRejected(t *testing.T) {
	mem := store.NewMemory()
	prices := fixedPrice{tick: quote("EURUSD", "1.1200", "1.1202")}
	e := NewEngine(mem, testRegistry(), &execRecorder{}, prices)

	limit := dec("1.1150")
	order := &model.PendingOrder{
		Symbol: "EURUSD", Kind: enum.OrderKindStopLimit, Side: enum.OrderSideBuy,
		Product: enum.ProductTypeSpot, Quantity: dec("1"),
		TriggerPrice: dec("1.1100"), LimitPrice: &limit,
	}
	// Ask 1.1202 is already through the 1.1100 stop.
	assert.ErrorIs(t, e.Place(context.Background(), order), exception.ErrOrderStopThroughPrice)
}

func TestPlaceStopThroughSkippedWithoutQuote(t *testing.T) {
	mem := store.NewMemory()
	prices := fixedPrice{err: exception.ErrPriceUnavailable}
	e := NewEngine(mem, testRegistry(), &execRecorder{}, prices)

	limit := dec("1.1150")
	order := &model.PendingOrder{
		Symbol: "EURUSD", Kind: enum.OrderKindStopLimit, Side: enum.OrderSideBuy,
		Product: enum.ProductTypeSpot, Quantity: dec("1"),
		TriggerPrice: dec("1.1100"), LimitPrice: &limit,
	}
	assert.NoError(t, e.Place(context.Background(), order))
}

func TestOnTickExecutesQualifyingOrder(t *testing.T) {
	mem := store.NewMemory()
	exec := &execRecorder{}
	e := NewEngine(mem, testRegistry(), exec, nil)

	order := limitBuy("1.0800")
	require.NoError(t, e.Place(context.Background(), order))

	// Ask above the trigger: nothing happens.
	e.OnTick(context.Background(), quote("EURUSD", "1.0850", "1.0852"))
	assert.Empty(t, exec.fills)

	// Ask at the trigger: fires once, leaves the set.
	e.OnTick(context.Background(), quote("EURUSD", "1.0798", "1.0800"))
	require.Len(t, exec.fills, 1)
	assert.True(t, exec.fills[0].price.Equal(dec("1.0800")))
	assert.Equal(t, 0, e.PendingCount())

	persisted, ok := mem.PendingByID(order.ID)
	require.True(t, ok)
	assert.Equal(t, enum.PendingStatusExecuted, persisted.Status)
	require.NotNil(t, persisted.ExecutedPrice)
	assert.True(t, persisted.ExecutedPrice.Equal(dec("1.0800")))
}

func TestOnTickBuyEvaluatesAskSellEvaluatesBid(t *testing.T) {
	mem := store.NewMemory()
	exec := &execRecorder{}
	e := NewEngine(mem, testRegistry(), exec, nil)

	buy := limitBuy("1.0800")
	sell := &model.PendingOrder{
		AccountID:    uuid.New(),
		Symbol:       "EURUSD",
		Kind:         enum.OrderKindLimit,
		Side:         enum.OrderSideSell,
		Product:      enum.ProductTypeSpot,
		Quantity:     dec("100"),
		TriggerPrice: dec("1.0900"),
	}
	require.NoError(t, e.Place(context.Background(), buy))
	require.NoError(t, e.Place(context.Background(), sell))

	// Bid crosses the sell trigger, ask stays above the buy trigger.
	e.OnTick(context.Background(), quote("EURUSD", "1.0900", "1.0902"))
	require.Len(t, exec.fills, 1)
	assert.Equal(t, sell.ID, exec.fills[0].order.ID)
	assert.Equal(t, 1, e.PendingCount())
}

func TestFailedExecutionStaysPending(t *testing.T) {
	mem := store.NewMemory()
	exec := &execRecorder{err: exception.ErrInsufficientFunds}
	e := NewEngine(mem, testRegistry(), exec, nil)

	order := limitBuy("1.0800")
	require.NoError(t, e.Place(context.Background(), order))

	e.OnTick(context.Background(), quote("EURUSD", "1.0790", "1.0792"))
	assert.Equal(t, 1, e.PendingCount(), "failed attempt keeps the order pending")

	persisted, ok := mem.PendingByID(order.ID)
	require.True(t, ok)
	assert.Equal(t, enum.PendingStatusPending, persisted.Status)
	require.NotNil(t, persisted.FailureReason)

	// Funds arrive; the next qualifying tick fills it.
	exec.err = nil
	e.OnTick(context.Background(), quote("EURUSD", "1.0790", "1.0792"))
	assert.Len(t, exec.fills, 1)
	assert.Equal(t, 0, e.PendingCount())
}

func TestCancelSemantics(t *testing.T) {
	mem := store.NewMemory()
	exec := &execRecorder{}
	e := NewEngine(mem, testRegistry(), exec, nil)
	ctx := context.Background()

	order := limitBuy("1.0800")
	require.NoError(t, e.Place(ctx, order))

	require.NoError(t, e.Cancel(ctx, order.ID))
	assert.Equal(t, 0, e.PendingCount())

	persisted, ok := mem.PendingByID(order.ID)
	require.True(t, ok)
	assert.Equal(t, enum.PendingStatusCancelled, persisted.Status)

	// Gone from the set now.
	assert.ErrorIs(t, e.Cancel(ctx, order.ID), exception.ErrOrderNotFound)
	assert.ErrorIs(t, e.Cancel(ctx, uuid.New()), exception.ErrOrderNotFound)
}

func TestCancelAfterFillReportsNotFound(t *testing.T) {
	mem := store.NewMemory()
	exec := &execRecorder{}
	e := NewEngine(mem, testRegistry(), exec, nil)
	ctx := context.Background()

	order := limitBuy("1.0800")
	require.NoError(t, e.Place(ctx, order))
	e.OnTick(ctx, quote("EURUSD", "1.0790", "1.0792"))
	require.Len(t, exec.fills, 1)

	assert.ErrorIs(t, e.Cancel(ctx, order.ID), exception.ErrOrderNotFound)
}

func TestCancelDuringFillAttemptReportsAlreadyFilled(t *testing.T) {
	mem := store.NewMemory()
	exec := newBlockingExec()
	e := NewEngine(mem, testRegistry(), exec, nil)
	ctx := context.Background()

	order := limitBuy("1.0800")
	require.NoError(t, e.Place(ctx, order))

	done := make(chan struct{})
	go func() {
		e.OnTick(ctx, quote("EURUSD", "1.0790", "1.0792"))
		close(done)
	}()
	<-exec.started

	// The claim is in flight; cancel loses the race.
	assert.ErrorIs(t, e.Cancel(ctx, order.ID), exception.ErrOrderAlreadyFilled)

	exec.release <- nil
	<-done

	assert.Equal(t, 0, e.PendingCount())
	persisted, ok := mem.PendingByID(order.ID)
	require.True(t, ok)
	assert.Equal(t, enum.PendingStatusExecuted, persisted.Status)

	// Exactly one terminal outcome: the fill.
	assert.ErrorIs(t, e.Cancel(ctx, order.ID), exception.ErrOrderNotFound)
}

func TestCancelDuringFailedAttemptEndsCancelled(t *testing.T) {
	mem := store.NewMemory()
	exec := newBlockingExec()
	e := NewEngine(mem, testRegistry(), exec, nil)
	ctx := context.Background()

	order := limitBuy("1.0800")
	require.NoError(t, e.Place(ctx, order))

	done := make(chan struct{})
	go func() {
		e.OnTick(ctx, quote("EURUSD", "1.0790", "1.0792"))
		close(done)
	}()
	<-exec.started

	assert.ErrorIs(t, e.Cancel(ctx, order.ID), exception.ErrOrderAlreadyFilled)

	// The fill lost; the recorded cancel wins instead of the order
	// returning to pending.
	exec.release <- exception.ErrInsufficientFunds
	<-done

	assert.Equal(t, 0, e.PendingCount())
	persisted, ok := mem.PendingByID(order.ID)
	require.True(t, ok)
	assert.Equal(t, enum.PendingStatusCancelled, persisted.Status)
	require.NotNil(t, persisted.FailureReason)

	assert.ErrorIs(t, e.Cancel(ctx, order.ID), exception.ErrOrderNotFound)
}

func TestLoadRebuildsWorkingSet(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	// Simulate rows surviving a restart.
	survivor := limitBuy("1.0800")
	survivor.ID = uuid.New()
	survivor.Status = enum.PendingStatusPending
	survivor.CreatedAt = time.Now()
	require.NoError(t, mem.InsertPending(ctx, survivor))

	done := limitBuy("1.0700")
	done.ID = uuid.New()
	done.Status = enum.PendingStatusExecuted
	require.NoError(t, mem.InsertPending(ctx, done))

	exec := &execRecorder{}
	e := NewEngine(mem, testRegistry(), exec, nil)
	require.NoError(t, e.Load(ctx))
	assert.Equal(t, 1, e.PendingCount())

	e.OnTick(ctx, quote("EURUSD", "1.0790", "1.0792"))
	assert.Len(t, exec.fills, 1)
}
