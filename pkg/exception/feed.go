package exception

import "errors"

var (
	ErrFeedInvalidPayload = errors.New("feed: invalid payload")
	ErrFeedQueueFull      = errors.New("feed: queue full")
	ErrFeedQueueClosed    = errors.New("feed: queue closed")
	ErrFeedUnknownSymbol  = errors.New("feed: unknown symbol")
	ErrFeedDisconnected   = errors.New("feed: disconnected")
)
