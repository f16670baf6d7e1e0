package trader

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"upbit-rebound-trader/internal/model"
	"upbit-rebound-trader/internal/notify"
	"upbit-rebound-trader/internal/service"
	"upbit-rebound-trader/internal/strategy"
)

// MarketData is the read-only view of the exchange consumed each cycle.
type MarketData interface {
	TopSymbols(ctx context.Context, n int) ([]string, error)
	Price(ctx context.Context, symbol string) (float64, error)
	OHLCV(ctx context.Context, symbol string, count int) (model.CandleWindow, error)
	Holdings(ctx context.Context) ([]model.Holding, error)
}

// Broker executes market orders. Any failure is non-fatal: the trader
// logs, leaves throttle/cooldown state untouched and retries naturally
// on the next cycle.
type Broker interface {
	BuyMarket(ctx context.Context, symbol string, quoteAmount float64) (model.Order, error)
	SellMarket(ctx context.Context, symbol string, volume float64) (model.Order, error)
}

// PriceCache is an optional live price shortcut (the websocket feed).
type PriceCache interface {
	Watch(codes []string)
	Price(symbol string) (float64, bool)
}

// entrySignal is what the trader needs from the signal evaluator.
type entrySignal interface {
	IsReboundSignal(win model.CandleWindow) bool
}

// Trader runs the polling loop: one iteration per cycle interval,
// symbols processed sequentially within an iteration. A held symbol is a
// candidate for exit only, never for entry, so a buy and a sell for the
// same symbol can never be decided in the same cycle.
type Trader struct {
	cfg      *service.Config
	market   MarketData
	broker   Broker
	notifier notify.Notifier
	feed     PriceCache // may be nil

	evaluator entrySignal
	throttle  *strategy.TradeThrottle
	risk      *strategy.RiskManager

	logger *zap.Logger
	now    func() time.Time
}

func New(cfg *service.Config, market MarketData, broker Broker, notifier notify.Notifier, feed PriceCache, logger *zap.Logger) *Trader {
	return &Trader{
		cfg:       cfg,
		market:    market,
		broker:    broker,
		notifier:  notifier,
		feed:      feed,
		evaluator: strategy.NewSignalEvaluator(&cfg.Strategy),
		throttle:  strategy.NewTradeThrottle(cfg.Trading.MaxTradesPerDay, cfg.Trading.MinTradeInterval),
		risk:      strategy.NewRiskManager(&cfg.Risk, logger),
		logger:    logger.With(zap.String("component", "trader")),
		now:       time.Now,
	}
}

// Run executes cycles until ctx is cancelled. A failed cycle sleeps the
// (shorter) error backoff instead of the cycle interval and never kills
// the loop. In-flight work finishes before Run returns; cancellation is
// only honored between operations.
func (t *Trader) Run(ctx context.Context) {
	t.logger.Info("rebound trading bot started")
	t.notifier.Notify("🔄 rebound trading bot started")

	for {
		delay := t.cfg.Trading.CycleInterval
		if err := t.runCycle(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			t.logger.Error("cycle failed", zap.Error(err))
			t.notifier.Notifyf("⚠️ cycle failed: %v", err)
			delay = t.cfg.Trading.ErrorBackoff
		}

		select {
		case <-ctx.Done():
			t.logger.Info("shutting down")
			return
		case <-time.After(delay):
		}
	}
	t.logger.Info("shutting down")
}

func (t *Trader) runCycle(ctx context.Context) error {
	symbols, err := t.market.TopSymbols(ctx, t.cfg.Trading.TopSymbols)
	if err != nil {
		return errors.Wrap(err, "top symbols")
	}
	holdings, err := t.market.Holdings(ctx)
	if err != nil {
		return errors.Wrap(err, "holdings")
	}

	held := make(map[string]struct{}, len(holdings))
	for _, h := range holdings {
		held[h.Symbol] = struct{}{}
	}
	// zero balance means no position; stale high-water marks go with it
	t.risk.Retain(held)

	if t.feed != nil {
		watch := append([]string(nil), symbols...)
		for _, h := range holdings {
			if !contains(symbols, h.Symbol) {
				watch = append(watch, h.Symbol)
			}
		}
		t.feed.Watch(watch)
	}

	t.scanEntries(ctx, symbols, held)
	t.managePositions(ctx, holdings)
	return nil
}

// scanEntries runs the rebound entry check over the top symbols. Errors
// on one symbol skip that symbol only.
func (t *Trader) scanEntries(ctx context.Context, symbols []string, held map[string]struct{}) {
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return
		}
		if _, ok := held[symbol]; ok {
			continue // exit candidate, not an entry candidate
		}
		if !t.throttle.MayEnter(symbol, t.now()) {
			continue
		}

		win, err := t.market.OHLCV(ctx, symbol, t.cfg.Trading.CandleCount)
		if err != nil {
			t.logger.Warn("candle fetch failed, skipping symbol",
				zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if !t.evaluator.IsReboundSignal(win) {
			continue
		}

		amount := t.cfg.Trading.OrderAmount
		order, err := t.broker.BuyMarket(ctx, symbol, amount)
		if err != nil {
			// throttle untouched: the attempt retries next cycle
			t.logger.Error("buy failed",
				zap.String("symbol", symbol), zap.Error(err))
			t.notifier.Notifyf("❌ buy %s failed: %v", symbol, err)
			continue
		}
		t.throttle.RecordEntry(symbol, t.now())

		t.logger.Info("buy submitted",
			zap.String("symbol", symbol),
			zap.String("order", order.ID),
			zap.Float64("amount", amount))
		t.notifier.Notifyf("🟢 buy %s: %.0f KRW (rebound signal)", symbol, amount)
	}
}

// managePositions evaluates exits for every held symbol.
func (t *Trader) managePositions(ctx context.Context, holdings []model.Holding) {
	for _, h := range holdings {
		if ctx.Err() != nil {
			return
		}
		if h.Balance <= 0 {
			continue
		}
		if h.AvgBuyPrice <= 0 {
			// balance without an average buy price: account data is
			// inconsistent, never trade on it
			t.logger.Warn("holding without avg buy price, skipping",
				zap.String("symbol", h.Symbol))
			continue
		}

		price, err := t.currentPrice(ctx, h.Symbol)
		if err != nil {
			t.logger.Warn("price fetch failed, skipping symbol",
				zap.String("symbol", h.Symbol), zap.Error(err))
			continue
		}

		dec := t.risk.Evaluate(h.Symbol, price, h.AvgBuyPrice, h.Balance, t.now())
		if dec.Action == model.Hold {
			continue
		}

		order, err := t.broker.SellMarket(ctx, h.Symbol, dec.Volume)
		if err != nil {
			// cooldown and high-water mark untouched; re-evaluated next cycle
			t.logger.Error("sell failed",
				zap.String("symbol", h.Symbol),
				zap.String("action", string(dec.Action)),
				zap.Error(err))
			t.notifier.Notifyf("❌ sell %s failed: %v", h.Symbol, err)
			continue
		}

		t.logger.Info("sell submitted",
			zap.String("symbol", h.Symbol),
			zap.String("action", string(dec.Action)),
			zap.String("order", order.ID),
			zap.Float64("volume", dec.Volume),
			zap.Float64("profitPct", dec.ProfitPct),
			zap.Float64("drawdownPct", dec.DrawdownPct))

		switch dec.Action {
		case model.FullExit:
			t.risk.MarkExited(h.Symbol)
			t.notifier.Notifyf("✅ %s take-profit sell (avg %.2f, now %.2f, profit %.2f%%, drawdown %.2f%%)",
				h.Symbol, h.AvgBuyPrice, price, dec.ProfitPct, dec.DrawdownPct)
		case model.PartialExit:
			t.risk.RecordPartialSell(h.Symbol, t.now())
			t.notifier.Notifyf("💸 %s partial stop-loss: sold %.4f at %.2f (profit %.2f%%)",
				h.Symbol, dec.Volume, price, dec.ProfitPct)
		}
	}
}

func (t *Trader) currentPrice(ctx context.Context, symbol string) (float64, error) {
	if t.feed != nil {
		if p, ok := t.feed.Price(symbol); ok {
			return p, nil
		}
	}
	return t.market.Price(ctx, symbol)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
