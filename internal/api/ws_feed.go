package api

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const reconnectDelay = 5 * time.Second

// PriceFeed maintains a live last-price cache from Upbit's websocket
// ticker stream. It only shortcuts REST polling: the trader consults the
// cache first and falls back to REST when a symbol has no tick yet, so a
// dropped feed degrades to polling instead of stalling the loop.
type PriceFeed struct {
	wsURL  string
	logger *zap.Logger

	mu    sync.Mutex // guards conn and codes; also serializes writes
	conn  *websocket.Conn
	codes []string

	priceMu sync.RWMutex
	prices  map[string]float64
}

type tickerFrame struct {
	Type       string  `json:"type"`
	Code       string  `json:"code"`
	TradePrice float64 `json:"trade_price"`
}

func NewPriceFeed(wsURL string, logger *zap.Logger) *PriceFeed {
	return &PriceFeed{
		wsURL:  wsURL,
		logger: logger.With(zap.String("component", "pricefeed")),
		prices: make(map[string]float64),
	}
}

// Start runs the connect/read loop until ctx is cancelled, reconnecting
// with a fixed delay after any failure.
func (f *PriceFeed) Start(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := f.run(ctx); err != nil && ctx.Err() == nil {
			f.logger.Warn("price feed disconnected, reconnecting", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (f *PriceFeed) run(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.mu.Lock()
	f.conn = conn
	if len(f.codes) > 0 {
		err = subscribe(conn, f.codes)
	}
	f.mu.Unlock()
	if err != nil {
		return err
	}

	// unblock the read when the context ends
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			f.mu.Lock()
			f.conn = nil
			f.mu.Unlock()
			return err
		}
		var tick tickerFrame
		if err := sonic.Unmarshal(raw, &tick); err != nil {
			continue
		}
		if tick.Type != "ticker" || tick.Code == "" || tick.TradePrice <= 0 {
			continue
		}
		f.priceMu.Lock()
		f.prices[tick.Code] = tick.TradePrice
		f.priceMu.Unlock()
	}
}

// Watch replaces the subscribed symbol set. Called once per cycle with
// the union of scan candidates and held symbols; resubscribes only when
// the set actually changed.
func (f *PriceFeed) Watch(codes []string) {
	sorted := append([]string(nil), codes...)
	sort.Strings(sorted)

	f.mu.Lock()
	defer f.mu.Unlock()
	if equalCodes(f.codes, sorted) {
		return
	}
	f.codes = sorted
	if f.conn == nil || len(sorted) == 0 {
		return
	}
	if err := subscribe(f.conn, sorted); err != nil {
		f.logger.Warn("resubscribe failed", zap.Error(err))
	}
}

// Price returns the cached last price for a symbol, if a tick arrived.
func (f *PriceFeed) Price(symbol string) (float64, bool) {
	f.priceMu.RLock()
	defer f.priceMu.RUnlock()
	p, ok := f.prices[symbol]
	return p, ok
}

func subscribe(conn *websocket.Conn, codes []string) error {
	msg := []interface{}{
		map[string]string{"ticket": "rebound-trader"},
		map[string]interface{}{"type": "ticker", "codes": codes},
	}
	raw, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, raw)
}

func equalCodes(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
