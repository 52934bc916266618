package exception

import "errors"

var (
	ErrStaleBucket      = errors.New("candle: tick for an already-rolled bucket")
	ErrPriceUnavailable = errors.New("candle: no usable price for symbol")
)
