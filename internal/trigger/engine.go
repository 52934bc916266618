// Package trigger keeps the conditional working set in memory and fires
// orders against the tick stream. The database copy exists to survive
// restarts; the in-memory set is authoritative while the process lives.
package trigger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/errors"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/store"
	"main/pkg/exception"
)

// Executor fills a triggered order atomically. A returned error means
// nothing was settled and the order may try again on a later tick.
type Executor interface {
	ExecutePending(ctx context.Context, order *model.PendingOrder, fillPrice decimal.Decimal) error
}

// PriceSource exposes the last live quote, used to reject stop orders the
// market has already run through.
type PriceSource interface {
	Get(ctx context.Context, symbol string) (model.PriceTick, error)
}

type entry struct {
	order           *model.PendingOrder
	claimed         bool
	cancelRequested bool
}

// Engine owns the pending working set. A tick claims every qualifying order
// under the lock and executes outside it, so one slow settlement cannot
// stall the feed and a cancel can never race a fill.
type Engine struct {
	store    store.PendingOrderStore
	registry *model.Registry
	exec     Executor
	prices   PriceSource

	mu       sync.Mutex
	bySymbol map[string][]*entry
	byID     map[uuid.UUID]*entry
}

func NewEngine(s store.PendingOrderStore, registry *model.Registry, exec Executor, prices PriceSource) *Engine {
	return &Engine{
		store:    s,
		registry: registry,
		exec:     exec,
		prices:   prices,
		bySymbol: make(map[string][]*entry),
		byID:     make(map[uuid.UUID]*entry),
	}
}

// Load rebuilds the working set from durable pending rows. Call once before
// the tick stream starts.
func (e *Engine) Load(ctx context.Context) error {
	orders, err := e.store.ListPending(ctx, enum.PendingStatusPending)
	if err != nil {
		return errors.Wrap(err, "load pending orders")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, order := range orders {
		e.add(order)
	}
	logs.Infof("pending working set loaded, orders: %d", len(orders))
	return nil
}

// Place validates, persists and registers a conditional order.
func (e *Engine) Place(ctx context.Context, order *model.PendingOrder) error {
	if err := e.validate(ctx, order); err != nil {
		return err
	}

	number, err := e.store.NextOrderNumber(ctx)
	if err != nil {
		return errors.Wrap(err, "allocate order number")
	}

	now := time.Now()
	order.ID = uuid.New()
	order.OrderNumber = number
	order.Status = enum.PendingStatusPending
	order.CreatedAt = now
	order.UpdatedAt = now

	if err := e.store.InsertPending(ctx, order); err != nil {
		return errors.Wrap(err, "persist pending order")
	}

	e.mu.Lock()
	e.add(order)
	e.mu.Unlock()
	return nil
}

// Cancel removes a pending order. An order already claimed by an in-flight
// fill attempt reports ErrOrderAlreadyFilled; the cancel is still recorded,
// so if that attempt fails the order leaves the set cancelled instead of
// returning to pending. Cancellation after a fill reports ErrOrderNotFound
// since the order left the set.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID) error {
	e.mu.Lock()
	ent, ok := e.byID[id]
	if !ok {
		e.mu.Unlock()
		return exception.ErrOrderNotFound
	}
	if ent.claimed {
		ent.cancelRequested = true
		e.mu.Unlock()
		return exception.ErrOrderAlreadyFilled
	}
	e.remove(ent)
	order := ent.order
	e.mu.Unlock()

	order.Status = enum.PendingStatusCancelled
	order.UpdatedAt = time.Now()
	if err := e.store.UpdatePending(ctx, order); err != nil {
		return errors.Wrap(err, "persist cancellation")
	}
	return nil
}

// OnTick evaluates the symbol's pending orders against the tick. Each
// qualifying order gets exactly one execution attempt per tick; a failed
// attempt stays pending for the next qualifying tick unless a cancel arrived
// while the attempt was in flight.
func (e *Engine) OnTick(ctx context.Context, tick model.PriceTick) {
	e.mu.Lock()
	var claimed []*entry
	for _, ent := range e.bySymbol[tick.Symbol] {
		if ent.claimed {
			continue
		}
		if ent.order.ShouldTrigger(tick.SidePrice(ent.order.Side)) {
			ent.claimed = true
			claimed = append(claimed, ent)
		}
	}
	e.mu.Unlock()

	for _, ent := range claimed {
		e.execute(ctx, ent, tick)
	}
}

// PendingCount reports the working set size.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.byID)
}

func (e *Engine) execute(ctx context.Context, ent *entry, tick model.PriceTick) {
	order := ent.order
	market := tick.SidePrice(order.Side)
	fillPrice := order.FillPrice(market)

	if err := e.exec.ExecutePending(ctx, order, fillPrice); err != nil {
		reason := err.Error()
		logs.Warnf("pending execution %s failed, err: %+v", order.OrderNumber, err)

		e.mu.Lock()
		cancelRequested := ent.cancelRequested
		if cancelRequested {
			e.remove(ent)
		} else {
			ent.claimed = false
		}
		e.mu.Unlock()

		order.FailureReason = &reason
		order.UpdatedAt = time.Now()
		if cancelRequested {
			// A cancel arrived while the attempt was in flight; honor it
			// now that the fill lost.
			order.Status = enum.PendingStatusCancelled
		}
		if uerr := e.store.UpdatePending(ctx, order); uerr != nil {
			logs.Errorf("persist failure reason %s, err: %+v", order.OrderNumber, uerr)
		}
		return
	}

	now := time.Now()
	order.Status = enum.PendingStatusExecuted
	order.ExecutedPrice = &fillPrice
	order.ExecutedAt = &now
	order.FailureReason = nil
	order.UpdatedAt = now

	e.mu.Lock()
	e.remove(ent)
	e.mu.Unlock()

	if err := e.store.UpdatePending(ctx, order); err != nil {
		logs.Errorf("persist execution %s, err: %+v", order.OrderNumber, err)
	}
}

func (e *Engine) validate(ctx context.Context, order *model.PendingOrder) error {
	if order == nil || !order.Kind.IsConditional() || !order.Side.IsAvailable() || !order.Product.IsAvailable() {
		return exception.ErrOrderInvalidRequest
	}
	if order.Quantity.IsZero() || order.Quantity.IsNegative() || order.TriggerPrice.IsZero() || order.TriggerPrice.IsNegative() {
		return exception.ErrOrderInvalidRequest
	}

	ins, err := e.registry.Instrument(order.Symbol)
	if err != nil {
		return err
	}
	if !ins.Tradeable {
		return exception.ErrOrderNotTradeable
	}
	if order.Quantity.LessThan(ins.MinOrderSize) || order.Quantity.GreaterThan(ins.MaxOrderSize) {
		return exception.ErrOrderSizeOutOfRange
	}
	if order.Product.IsLeveraged() && (order.Leverage < 1 || order.Leverage > ins.MaxLeverage) {
		return exception.ErrOrderLeverageExceeded
	}

	if order.Kind == enum.OrderKindStopLimit {
		if order.LimitPrice == nil {
			return exception.ErrOrderInvalidRequest
		}
		if order.Side == enum.OrderSideBuy && order.LimitPrice.LessThan(order.TriggerPrice) {
			return exception.ErrOrderInvalidRequest
		}
		if order.Side == enum.OrderSideSell && order.LimitPrice.GreaterThan(order.TriggerPrice) {
			return exception.ErrOrderInvalidRequest
		}
		if err := e.checkStopThrough(ctx, order); err != nil {
			return err
		}
	}
	return nil
}

// checkStopThrough rejects stop orders whose trigger the market already
// passed; they would fire on the next tick as de facto market orders.
func (e *Engine) checkStopThrough(ctx context.Context, order *model.PendingOrder) error {
	if e.prices == nil {
		return nil
	}
	tick, err := e.prices.Get(ctx, order.Symbol)
	if err != nil {
		if errors.Is(err, exception.ErrPriceUnavailable) {
			return nil
		}
		return err
	}

	market := tick.SidePrice(order.Side)
	if order.Side == enum.OrderSideBuy && market.GreaterThanOrEqual(order.TriggerPrice) {
		return exception.ErrOrderStopThroughPrice
	}
	if order.Side == enum.OrderSideSell && market.LessThanOrEqual(order.TriggerPrice) {
		return exception.ErrOrderStopThroughPrice
	}
	return nil
}

func (e *Engine) add(order *model.PendingOrder) {
	ent := &entry{order: order}
	e.byID[order.ID] = ent
	e.bySymbol[order.Symbol] = append(e.bySymbol[order.Symbol], ent)
}

func (e *Engine) remove(ent *entry) {
	delete(e.byID, ent.order.ID)
	list := e.bySymbol[ent.order.Symbol]
	for i, other := range list {
		if other == ent {
			e.bySymbol[ent.order.Symbol] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(e.bySymbol[ent.order.Symbol]) == 0 {
		delete(e.bySymbol, ent.order.Symbol)
	}
}
