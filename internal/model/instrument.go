package model

import (
	"strings"

	"github.com/shopspring/decimal"

	"main/pkg/exception"
)

// Instrument is immutable reference data, created by configuration and never
// mutated by the engine.
type Instrument struct {
	Symbol        string
	BaseCurrency  string
	QuoteCurrency string
	Tradeable     bool
	TickSize      decimal.Decimal
	MinOrderSize  decimal.Decimal
	MaxOrderSize  decimal.Decimal
	MaxLeverage   int
}

// Registry resolves symbols to instruments. Lookups are read-only after
// construction, so the registry needs no locking.
type Registry struct {
	instruments map[string]Instrument
}

func NewRegistry(instruments []Instrument) *Registry {
	m := make(map[string]Instrument, len(instruments))
	for _, ins := range instruments {
		m[strings.ToUpper(ins.Symbol)] = ins
	}
	return &Registry{instruments: m}
}

func (r *Registry) Instrument(symbol string) (Instrument, error) {
	ins, ok := r.instruments[strings.ToUpper(symbol)]
	if !ok {
		return Instrument{}, exception.ErrInstrumentNotFound
	}
	return ins, nil
}

func (r *Registry) Has(symbol string) bool {
	_, ok := r.instruments[strings.ToUpper(symbol)]
	return ok
}

func (r *Registry) Symbols() []string {
	out := make([]string, 0, len(r.instruments))
	for s := range r.instruments {
		out = append(out, s)
	}
	return out
}
