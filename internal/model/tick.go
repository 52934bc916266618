package model

import (
	"time"

	"github.com/shopspring/decimal"

	"main/internal/model/enum"
)

// PriceTick is the one normalized shape every upstream feed is folded into.
// Ticks are transient: they are never persisted, only folded into candles and
// evaluated against the pending working set.
type PriceTick struct {
	Symbol      string
	Bid         decimal.Decimal
	Ask         decimal.Decimal
	TimestampMS int64
}

// Bucket returns the minute-truncated bar timestamp this tick belongs to.
func (t PriceTick) Bucket() time.Time {
	return time.UnixMilli(t.TimestampMS).UTC().Truncate(time.Minute)
}

func (t PriceTick) Mid() decimal.Decimal {
	return t.Bid.Add(t.Ask).Div(decimal.NewFromInt(2))
}

// SidePrice returns the leg a taker on the given side trades against:
// buyers lift the ask, sellers hit the bid.
func (t PriceTick) SidePrice(side enum.OrderSide) decimal.Decimal {
	if side == enum.OrderSideBuy {
		return t.Ask
	}
	return t.Bid
}
