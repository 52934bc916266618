/*
Core wires the execution engine together behind one facade.

# Module
  - tick intake: normalized quotes fan out to the bar book, the trigger
    engine and the price cache
  - ohlc book: folds ticks into 1-minute bid/ask bars, flushed to the
    durable store and the kline cache each minute
  - trigger engine: in-memory pending working set, evaluated per tick
  - ledger: atomic settlement of fills, transfers and position closes

# Source
 1. exchange websocket feed (crypto symbols)
 2. gateway relay over Redis pub/sub (FX symbols)

# Produce
  - candle rows and cached klines
  - order, contract and signed movement rows
  - outbox events on the notification channel
*/
package core

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/errors"
	"main/internal/ledger"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/ohlc"
	"main/internal/trigger"
	"main/pkg/exception"
)

// Engine is the facade the process entrypoint drives.
type Engine struct {
	book     *ohlc.Book
	triggers *trigger.Engine
	ledger   *ledger.Service
	prices   trigger.PriceSource
}

func New(book *ohlc.Book, triggers *trigger.Engine, ledgerSvc *ledger.Service, prices trigger.PriceSource) *Engine {
	return &Engine{book: book, triggers: triggers, ledger: ledgerSvc, prices: prices}
}

// IngestTick folds one tick into its bar and evaluates the pending set.
// Stale ticks still reach the trigger engine: a late quote is a real quote
// for the working set, it just never reopens a sealed bar. Staleness is
// logged and swallowed here rather than surfaced to the caller.
func (e *Engine) IngestTick(ctx context.Context, tick model.PriceTick) error {
	err := e.book.Ingest(tick)
	e.triggers.OnTick(ctx, tick)
	if errors.Is(err, exception.ErrStaleBucket) {
		logs.Warnf("stale bucket dropped, symbol: %s, ts: %d", tick.Symbol, tick.TimestampMS)
		return nil
	}
	return err
}

// PlacePendingOrder registers a conditional order.
func (e *Engine) PlacePendingOrder(ctx context.Context, order *model.PendingOrder) error {
	return e.triggers.Place(ctx, order)
}

// CancelPendingOrder removes a pending order from the working set.
func (e *Engine) CancelPendingOrder(ctx context.Context, id uuid.UUID) error {
	return e.triggers.Cancel(ctx, id)
}

// MarketOrderRequest is an immediate-execution request priced off the live
// quote.
type MarketOrderRequest struct {
	AccountID uuid.UUID
	Symbol    string
	Side      enum.OrderSide
	Product   enum.ProductType
	Quantity  decimal.Decimal
	Leverage  int
}

// ExecuteMarketOrder fills at the current cached quote: buyers pay the ask,
// sellers receive the bid. Without a live quote the order is refused.
func (e *Engine) ExecuteMarketOrder(ctx context.Context, req MarketOrderRequest) (*model.Order, error) {
	if e.prices == nil {
		return nil, exception.ErrPriceUnavailable
	}
	tick, err := e.prices.Get(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	return e.ledger.Execute(ctx, ledger.FillRequest{
		AccountID: req.AccountID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Kind:      enum.OrderKindMarket,
		Product:   req.Product,
		Quantity:  req.Quantity,
		Leverage:  req.Leverage,
		Price:     tick.SidePrice(req.Side),
	})
}

// Transfer moves funds between two same-currency accounts; ownerID must own
// the source account. The returned result carries the debit and credit rows.
func (e *Engine) Transfer(ctx context.Context, ownerID int64, fromID, toID uuid.UUID, amount decimal.Decimal, description string) (*ledger.TransferResult, error) {
	return e.ledger.Transfer(ctx, ownerID, fromID, toID, amount, description)
}

// CloseContract closes one open leg at the live quote's mid price.
func (e *Engine) CloseContract(ctx context.Context, accountID, contractID uuid.UUID, symbol string) (*ledger.CloseResult, error) {
	mid, err := e.midPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return e.ledger.CloseContract(ctx, accountID, contractID, mid)
}

// ClosePair closes both hedge legs at the live quote's mid price.
func (e *Engine) ClosePair(ctx context.Context, accountID, pairID uuid.UUID, symbol string) (*ledger.CloseResult, error) {
	mid, err := e.midPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return e.ledger.ClosePair(ctx, accountID, pairID, mid)
}

func (e *Engine) midPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if e.prices == nil {
		return decimal.Zero, exception.ErrPriceUnavailable
	}
	tick, err := e.prices.Get(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return tick.Mid(), nil
}
