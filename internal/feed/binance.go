package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/errors"
	"main/internal/model"
	"main/pkg/exception"
)

const (
	binanceHandshakeTimeout = 10 * time.Second
	binanceReadTimeout      = 60 * time.Second
	binancePingInterval     = 30 * time.Second
	binanceMaxBackoff       = 30 * time.Second
)

// BinanceFeed consumes the combined bookTicker stream and folds each frame
// into a normalized tick. The connection is retried forever with capped
// exponential backoff; ticks lost during an outage are not replayed.
type BinanceFeed struct {
	url     string
	symbols []string
	out     *Distributor

	mu   sync.Mutex
	conn *websocket.Conn
	wg   sync.WaitGroup
}

// NewBinanceFeed builds a feed for the given stream endpoint and symbols.
func NewBinanceFeed(url string, symbols []string, out *Distributor) *BinanceFeed {
	return &BinanceFeed{url: url, symbols: symbols, out: out}
}

type binanceSubscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// binanceBookTicker mirrors the bookTicker frame shape. Prices arrive as
// strings and are parsed exactly.
type binanceBookTicker struct {
	UpdateID int64  `json:"u"`
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

func (p binanceBookTicker) toTick(at time.Time) (model.PriceTick, error) {
	if p.Symbol == "" || p.BidPrice == "" || p.AskPrice == "" {
		return model.PriceTick{}, exception.ErrFeedInvalidPayload
	}
	bid, err := decimal.NewFromString(p.BidPrice)
	if err != nil {
		return model.PriceTick{}, errors.Wrap(exception.ErrFeedInvalidPayload, "parse bid")
	}
	ask, err := decimal.NewFromString(p.AskPrice)
	if err != nil {
		return model.PriceTick{}, errors.Wrap(exception.ErrFeedInvalidPayload, "parse ask")
	}
	return model.PriceTick{
		Symbol:      strings.ToUpper(p.Symbol),
		Bid:         bid,
		Ask:         ask,
		TimestampMS: at.UnixMilli(),
	}, nil
}

// Run dials, subscribes and pumps frames until the context is cancelled.
func (f *BinanceFeed) Run(ctx context.Context) {
	retry := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := f.connect(ctx); err != nil {
			delay := backoff(retry)
			retry++
			logs.Warnf("binance connect failed, retry in %s, err: %+v", delay, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		retry = 0
		f.readLoop(ctx)
	}
}

func (f *BinanceFeed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: binanceHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return errors.Wrap(err, "dial")
	}

	params := make([]string, 0, len(f.symbols))
	for _, s := range f.symbols {
		params = append(params, fmt.Sprintf("%s@bookTicker", strings.ToLower(s)))
	}
	req := binanceSubscribeRequest{Method: "SUBSCRIBE", Params: params, ID: 1}
	if err := conn.WriteJSON(req); err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "subscribe")
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	f.wg.Add(1)
	go f.pingLoop(ctx, conn)

	logs.Infof("binance feed connected, streams: %d", len(params))
	return nil
}

func (f *BinanceFeed) readLoop(ctx context.Context) {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		return
	}
	defer f.closeConn()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(binanceReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			logs.Warnf("binance read, err: %+v", errors.Wrap(exception.ErrFeedDisconnected, err.Error()))
			return
		}

		var frame binanceBookTicker
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Symbol == "" {
			// Subscribe acks and unknown frames land here; skip quietly.
			continue
		}

		tick, err := frame.toTick(time.Now())
		if err != nil {
			logs.Warnf("binance payload, err: %+v", err)
			continue
		}
		if err := f.out.Publish(tick); err != nil {
			logs.Warnf("binance publish %s, err: %+v", tick.Symbol, err)
		}
	}
}

func (f *BinanceFeed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	defer f.wg.Done()
	ticker := time.NewTicker(binancePingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(binanceHandshakeTimeout)
			if err := conn.WriteControl(websocket.PongMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (f *BinanceFeed) closeConn() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		_ = f.conn.Close()
		f.conn = nil
	}
}

// Close tears down the active connection.
func (f *BinanceFeed) Close() {
	f.closeConn()
	f.wg.Wait()
}

func backoff(retry int) time.Duration {
	d := time.Second << uint(retry)
	if retry > 5 || d > binanceMaxBackoff {
		return binanceMaxBackoff
	}
	return d
}
