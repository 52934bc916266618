package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is a 1-minute OHLC bar carrying both the bid and the ask leg.
// (symbol, bucket) is the composite key; a bar is mutated in place for the
// lifetime of its minute and sealed once the minute rolls.
type Candle struct {
	Symbol string    `gorm:"primaryKey;size:32" json:"symbol"`
	Bucket time.Time `gorm:"primaryKey" json:"bucket"`

	OpenBid  decimal.Decimal `gorm:"type:numeric(24,8)" json:"open_bid"`
	HighBid  decimal.Decimal `gorm:"type:numeric(24,8)" json:"high_bid"`
	LowBid   decimal.Decimal `gorm:"type:numeric(24,8)" json:"low_bid"`
	CloseBid decimal.Decimal `gorm:"type:numeric(24,8)" json:"close_bid"`

	OpenAsk  decimal.Decimal `gorm:"type:numeric(24,8)" json:"open_ask"`
	HighAsk  decimal.Decimal `gorm:"type:numeric(24,8)" json:"high_ask"`
	LowAsk   decimal.Decimal `gorm:"type:numeric(24,8)" json:"low_ask"`
	CloseAsk decimal.Decimal `gorm:"type:numeric(24,8)" json:"close_ask"`

	TickCount int `gorm:"not null" json:"tick_count"`
}

// NewCandle opens a bar from the first tick of a minute.
func NewCandle(t PriceTick) *Candle {
	return &Candle{
		Symbol:    t.Symbol,
		Bucket:    t.Bucket(),
		OpenBid:   t.Bid,
		HighBid:   t.Bid,
		LowBid:    t.Bid,
		CloseBid:  t.Bid,
		OpenAsk:   t.Ask,
		HighAsk:   t.Ask,
		LowAsk:    t.Ask,
		CloseAsk:  t.Ask,
		TickCount: 1,
	}
}

// Apply folds one more tick of the same bucket into the bar.
func (c *Candle) Apply(t PriceTick) {
	if t.Bid.GreaterThan(c.HighBid) {
		c.HighBid = t.Bid
	}
	if t.Bid.LessThan(c.LowBid) {
		c.LowBid = t.Bid
	}
	c.CloseBid = t.Bid

	if t.Ask.GreaterThan(c.HighAsk) {
		c.HighAsk = t.Ask
	}
	if t.Ask.LessThan(c.LowAsk) {
		c.LowAsk = t.Ask
	}
	c.CloseAsk = t.Ask

	c.TickCount++
}
