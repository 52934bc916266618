package exception

import "errors"

var (
	ErrOrderInvalidRequest   = errors.New("order: invalid request")
	ErrOrderNotFound         = errors.New("order: not found")
	ErrOrderAlreadyFilled    = errors.New("order: already filled")
	ErrOrderNotTradeable     = errors.New("order: instrument not tradeable")
	ErrOrderSizeOutOfRange   = errors.New("order: size out of range")
	ErrOrderLeverageExceeded = errors.New("order: leverage exceeds instrument cap")
	ErrOrderStopThroughPrice = errors.New("order: stop price already breached")
)
