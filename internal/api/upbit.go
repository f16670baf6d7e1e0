package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"upbit-rebound-trader/internal/model"
	"upbit-rebound-trader/internal/service"
)

// UpbitClient is the REST adapter for both external ports: market data
// (tickers, candles, accounts) and the broker (market buy/sell). Every
// request is rate limited and bounded by the configured timeout; a
// timed-out read surfaces as an error the caller treats as "no data this
// cycle".
type UpbitClient struct {
	cfg        *service.ExchangeConfig
	candleUnit int  // candle interval in minutes
	dryRun     bool // log orders instead of submitting them
	http       *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger

	marketsMu sync.Mutex
	markets   []string // cached KRW market codes
}

func NewUpbitClient(cfg *service.Config, logger *zap.Logger) *UpbitClient {
	return &UpbitClient{
		cfg:        &cfg.Exchange,
		candleUnit: cfg.Trading.CandleInterval,
		dryRun:     cfg.Trading.DryRun,
		http:       &http.Client{Timeout: cfg.Exchange.RequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.Exchange.RateLimit), 10),
		logger:     logger.With(zap.String("component", "upbit")),
	}
}

type tickerPayload struct {
	Market           string  `json:"market"`
	TradePrice       float64 `json:"trade_price"`
	AccTradePrice24h float64 `json:"acc_trade_price_24h"`
}

type candlePayload struct {
	OpeningPrice         float64 `json:"opening_price"`
	HighPrice            float64 `json:"high_price"`
	LowPrice             float64 `json:"low_price"`
	TradePrice           float64 `json:"trade_price"`
	CandleAccTradeVolume float64 `json:"candle_acc_trade_volume"`
	CandleDateTimeUTC    string  `json:"candle_date_time_utc"`
}

type accountPayload struct {
	Currency     string `json:"currency"`
	Balance      string `json:"balance"`
	AvgBuyPrice  string `json:"avg_buy_price"`
	UnitCurrency string `json:"unit_currency"`
}

type orderPayload struct {
	UUID   string `json:"uuid"`
	Market string `json:"market"`
	Side   string `json:"side"`
}

// TopSymbols returns the n KRW markets with the highest 24h quote
// volume, highest first.
func (c *UpbitClient) TopSymbols(ctx context.Context, n int) ([]string, error) {
	markets, err := c.krwMarkets(ctx)
	if err != nil {
		return nil, err
	}

	var tickers []tickerPayload
	query := url.Values{"markets": {strings.Join(markets, ",")}}
	if err := c.get(ctx, "/v1/ticker", query, false, &tickers); err != nil {
		return nil, errors.Wrap(err, "fetch tickers")
	}

	sort.Slice(tickers, func(i, j int) bool {
		return tickers[i].AccTradePrice24h > tickers[j].AccTradePrice24h
	})
	if n > len(tickers) {
		n = len(tickers)
	}
	symbols := make([]string, 0, n)
	for _, t := range tickers[:n] {
		symbols = append(symbols, t.Market)
	}
	return symbols, nil
}

// Price returns the last traded price for one symbol.
func (c *UpbitClient) Price(ctx context.Context, symbol string) (float64, error) {
	var tickers []tickerPayload
	query := url.Values{"markets": {symbol}}
	if err := c.get(ctx, "/v1/ticker", query, false, &tickers); err != nil {
		return 0, errors.Wrapf(err, "fetch price for %s", symbol)
	}
	if len(tickers) == 0 || tickers[0].TradePrice <= 0 {
		return 0, errors.Errorf("no price for %s", symbol)
	}
	return tickers[0].TradePrice, nil
}

// OHLCV returns the most recent count candles for symbol, oldest first.
func (c *UpbitClient) OHLCV(ctx context.Context, symbol string, count int) (model.CandleWindow, error) {
	var candles []candlePayload
	query := url.Values{
		"market": {symbol},
		"count":  {strconv.Itoa(count)},
	}
	path := "/v1/candles/minutes/" + strconv.Itoa(c.candleUnit)
	if err := c.get(ctx, path, query, false, &candles); err != nil {
		return nil, errors.Wrapf(err, "fetch candles for %s", symbol)
	}

	// Upbit serves newest-first; indicators want oldest-first.
	win := make(model.CandleWindow, len(candles))
	for i, raw := range candles {
		ts, _ := time.Parse("2006-01-02T15:04:05", raw.CandleDateTimeUTC)
		win[len(candles)-1-i] = model.Candle{
			Open:   raw.OpeningPrice,
			High:   raw.HighPrice,
			Low:    raw.LowPrice,
			Close:  raw.TradePrice,
			Volume: raw.CandleAccTradeVolume,
			Time:   ts,
		}
	}
	return win, nil
}

// Holdings returns every KRW-market asset with a nonzero balance,
// including the account's average buy price.
func (c *UpbitClient) Holdings(ctx context.Context) ([]model.Holding, error) {
	var accounts []accountPayload
	if err := c.get(ctx, "/v1/accounts", nil, true, &accounts); err != nil {
		return nil, errors.Wrap(err, "fetch accounts")
	}

	holdings := make([]model.Holding, 0, len(accounts))
	for _, acc := range accounts {
		if acc.Currency == "KRW" || acc.UnitCurrency != "KRW" {
			continue
		}
		balance, err := strconv.ParseFloat(acc.Balance, 64)
		if err != nil || balance <= 0 {
			continue
		}
		avgBuy, _ := strconv.ParseFloat(acc.AvgBuyPrice, 64)
		holdings = append(holdings, model.Holding{
			Symbol:      "KRW-" + acc.Currency,
			Balance:     balance,
			AvgBuyPrice: avgBuy,
		})
	}
	return holdings, nil
}

// BuyMarket submits a market buy spending quoteAmount of KRW.
func (c *UpbitClient) BuyMarket(ctx context.Context, symbol string, quoteAmount float64) (model.Order, error) {
	params := url.Values{
		"market":   {symbol},
		"side":     {string(model.SideBuy)},
		"ord_type": {"price"},
		"price":    {strconv.FormatFloat(quoteAmount, 'f', -1, 64)},
	}
	return c.submitOrder(ctx, symbol, model.SideBuy, params)
}

// SellMarket submits a market sell of volume units of the base asset.
func (c *UpbitClient) SellMarket(ctx context.Context, symbol string, volume float64) (model.Order, error) {
	params := url.Values{
		"market":   {symbol},
		"side":     {string(model.SideSell)},
		"ord_type": {"market"},
		"volume":   {strconv.FormatFloat(volume, 'f', 8, 64)},
	}
	return c.submitOrder(ctx, symbol, model.SideSell, params)
}

func (c *UpbitClient) submitOrder(ctx context.Context, symbol string, side model.OrderSide, params url.Values) (model.Order, error) {
	if c.dryRun {
		c.logger.Info("dry-run order",
			zap.String("symbol", symbol),
			zap.String("side", string(side)),
			zap.Any("params", params))
		return model.Order{ID: "dry-run", Symbol: symbol, Side: side}, nil
	}

	var resp orderPayload
	if err := c.post(ctx, "/v1/orders", params, &resp); err != nil {
		return model.Order{}, errors.Wrapf(err, "submit %s order for %s", side, symbol)
	}
	if resp.UUID == "" {
		return model.Order{}, errors.Errorf("order for %s rejected: no uuid in response", symbol)
	}
	return model.Order{ID: resp.UUID, Symbol: symbol, Side: side}, nil
}

func (c *UpbitClient) krwMarkets(ctx context.Context) ([]string, error) {
	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()
	if len(c.markets) > 0 {
		return c.markets, nil
	}

	var infos []struct {
		Market string `json:"market"`
	}
	if err := c.get(ctx, "/v1/market/all", nil, false, &infos); err != nil {
		return nil, errors.Wrap(err, "fetch market list")
	}
	for _, info := range infos {
		if strings.HasPrefix(info.Market, "KRW-") {
			c.markets = append(c.markets, info.Market)
		}
	}
	if len(c.markets) == 0 {
		return nil, errors.New("no KRW markets returned")
	}
	return c.markets, nil
}

func (c *UpbitClient) get(ctx context.Context, path string, query url.Values, signed bool, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.cfg.RESTURL + path
	encoded := ""
	if query != nil {
		encoded = query.Encode()
		u += "?" + encoded
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if signed {
		token, err := c.authToken(encoded)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", token)
	}
	return c.do(req, out)
}

func (c *UpbitClient) post(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	// Upbit signs the urlencoded parameter string; the body itself is
	// JSON with the same parameters.
	body := make(map[string]string, len(params))
	for key := range params {
		body[key] = params.Get(key)
	}
	raw, err := sonic.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RESTURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	token, err := c.authToken(params.Encode())
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *UpbitClient) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return sonic.Unmarshal(raw, out)
}

// authToken builds Upbit's JWT bearer token: HS256 over an
// access-key/nonce payload, plus a SHA512 hash of the urlencoded
// parameters when the request carries any.
func (c *UpbitClient) authToken(query string) (string, error) {
	payload := map[string]string{
		"access_key": c.cfg.AccessKey,
		"nonce":      newNonce(),
	}
	if query != "" {
		sum := sha512.Sum512([]byte(query))
		payload["query_hash"] = hex.EncodeToString(sum[:])
		payload["query_hash_alg"] = "SHA512"
	}

	rawPayload, err := sonic.Marshal(payload)
	if err != nil {
		return "", err
	}
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	signing := header + "." + base64.RawURLEncoding.EncodeToString(rawPayload)

	mac := hmac.New(sha256.New, []byte(c.cfg.SecretKey))
	mac.Write([]byte(signing))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return "Bearer " + signing + "." + sig, nil
}

func newNonce() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
