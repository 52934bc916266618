package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"main/internal/model/enum"
)

// PendingOrder is a conditional (limit or stop-limit) order waiting in the
// trigger engine's working set. It leaves the set only on fill or
// cancellation; a failed fill attempt keeps it pending.
type PendingOrder struct {
	ID            uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID     uuid.UUID          `gorm:"type:uuid;index" json:"account_id"`
	OrderNumber   string             `gorm:"size:32;uniqueIndex" json:"order_number"`
	Symbol        string             `gorm:"size:32;index:idx_pending_symbol_status" json:"symbol"`
	Kind          enum.OrderKind     `gorm:"not null" json:"kind"`
	Side          enum.OrderSide     `gorm:"not null" json:"side"`
	Quantity      decimal.Decimal    `gorm:"type:numeric(24,8)" json:"quantity"`
	TriggerPrice  decimal.Decimal    `gorm:"type:numeric(24,8)" json:"trigger_price"`
	LimitPrice    *decimal.Decimal   `gorm:"type:numeric(24,8)" json:"limit_price,omitempty"`
	Leverage      int                `gorm:"default:1" json:"leverage"`
	Product       enum.ProductType   `gorm:"not null" json:"product"`
	Status        enum.PendingStatus `gorm:"index:idx_pending_symbol_status" json:"status"`
	FailureReason *string            `gorm:"size:512" json:"failure_reason,omitempty"`
	ExecutedPrice *decimal.Decimal   `gorm:"type:numeric(24,8)" json:"executed_price,omitempty"`
	ExecutedAt    *time.Time         `json:"executed_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// ShouldTrigger evaluates the directional trigger rules against the tick leg
// for the order's side. Ties fire (<=, >=). Stop-limit orders refuse to fire
// once the market has gapped past their limit bound.
func (po *PendingOrder) ShouldTrigger(price decimal.Decimal) bool {
	switch po.Kind {
	case enum.OrderKindLimit:
		if po.Side == enum.OrderSideBuy {
			return price.LessThanOrEqual(po.TriggerPrice)
		}
		return price.GreaterThanOrEqual(po.TriggerPrice)

	case enum.OrderKindStopLimit:
		if po.LimitPrice == nil {
			return false
		}
		if po.Side == enum.OrderSideBuy {
			return price.GreaterThanOrEqual(po.TriggerPrice) && price.LessThanOrEqual(*po.LimitPrice)
		}
		return price.LessThanOrEqual(po.TriggerPrice) && price.GreaterThanOrEqual(*po.LimitPrice)

	default:
		return false
	}
}

// FillPrice picks the execution price for a triggered order. Stop-limits
// fill at their limit bound; limit orders fill at the better of market and
// limit.
func (po *PendingOrder) FillPrice(market decimal.Decimal) decimal.Decimal {
	if po.LimitPrice == nil {
		return market
	}
	if po.Kind == enum.OrderKindStopLimit {
		return *po.LimitPrice
	}
	if po.Side == enum.OrderSideBuy {
		if market.LessThan(*po.LimitPrice) {
			return market
		}
		return *po.LimitPrice
	}
	if market.GreaterThan(*po.LimitPrice) {
		return market
	}
	return *po.LimitPrice
}

// Order is the immutable record of an executed fill.
type Order struct {
	ID             uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID      uuid.UUID        `gorm:"type:uuid;index" json:"account_id"`
	OrderNumber    string           `gorm:"size:32;uniqueIndex" json:"order_number"`
	Symbol         string           `gorm:"size:32;index" json:"symbol"`
	Side           enum.OrderSide   `gorm:"not null" json:"side"`
	Kind           enum.OrderKind   `gorm:"not null" json:"kind"`
	Product        enum.ProductType `gorm:"not null" json:"product"`
	Status         enum.OrderStatus `gorm:"not null" json:"status"`
	Quantity       decimal.Decimal  `gorm:"type:numeric(24,8)" json:"quantity"`
	FilledQuantity decimal.Decimal  `gorm:"type:numeric(24,8)" json:"filled_quantity"`
	AvgFillPrice   *decimal.Decimal `gorm:"type:numeric(24,8)" json:"avg_fill_price,omitempty"`
	PairID         *uuid.UUID       `gorm:"type:uuid;index" json:"pair_id,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Contract is one leg of a leveraged position. Hedged products open two
// opposing legs sharing a pair id.
type Contract struct {
	ID               uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID        uuid.UUID           `gorm:"type:uuid;index" json:"account_id"`
	Symbol           string              `gorm:"size:32;index" json:"symbol"`
	ContractNumber   string              `gorm:"size:32;uniqueIndex" json:"contract_number"`
	Side             enum.ContractSide   `gorm:"not null" json:"side"`
	Status           enum.ContractStatus `gorm:"not null" json:"status"`
	Quantity         decimal.Decimal     `gorm:"type:numeric(24,8)" json:"quantity"`
	EntryPrice       decimal.Decimal     `gorm:"type:numeric(24,8)" json:"entry_price"`
	MarginUsed       decimal.Decimal     `gorm:"type:numeric(24,8)" json:"margin_used"`
	Leverage         int                 `gorm:"default:1" json:"leverage"`
	Commission       decimal.Decimal     `gorm:"type:numeric(24,8)" json:"commission"`
	LiquidationPrice decimal.Decimal     `gorm:"type:numeric(24,8)" json:"liquidation_price"`
	PairID           *uuid.UUID          `gorm:"type:uuid;index" json:"pair_id,omitempty"`
	ClosePrice       *decimal.Decimal    `gorm:"type:numeric(24,8)" json:"close_price,omitempty"`
	PnL              *decimal.Decimal    `gorm:"type:numeric(24,8)" json:"pnl,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	ClosedAt         *time.Time          `json:"closed_at,omitempty"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// UnrealizedPnL values the open leg at the given mark price.
func (c *Contract) UnrealizedPnL(mark decimal.Decimal) decimal.Decimal {
	if c.Side == enum.ContractSideLong {
		return mark.Sub(c.EntryPrice).Mul(c.Quantity)
	}
	return c.EntryPrice.Sub(mark).Mul(c.Quantity)
}
