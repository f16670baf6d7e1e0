package trader

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"upbit-rebound-trader/internal/model"
	"upbit-rebound-trader/internal/service"
)

type fakeMarket struct {
	top      []string
	topErr   error
	holdings []model.Holding
	windows  map[string]model.CandleWindow
	prices   map[string]float64
}

func (m *fakeMarket) TopSymbols(ctx context.Context, n int) ([]string, error) {
	return m.top, m.topErr
}

func (m *fakeMarket) Price(ctx context.Context, symbol string) (float64, error) {
	p, ok := m.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return p, nil
}

func (m *fakeMarket) OHLCV(ctx context.Context, symbol string, count int) (model.CandleWindow, error) {
	w, ok := m.windows[symbol]
	if !ok {
		return nil, fmt.Errorf("no candles for %s", symbol)
	}
	return w, nil
}

func (m *fakeMarket) Holdings(ctx context.Context) ([]model.Holding, error) {
	return m.holdings, nil
}

type orderCall struct {
	symbol string
	amount float64
}

type fakeBroker struct {
	buys    []orderCall
	sells   []orderCall
	buyErr  error
	sellErr error
}

func (b *fakeBroker) BuyMarket(ctx context.Context, symbol string, quoteAmount float64) (model.Order, error) {
	b.buys = append(b.buys, orderCall{symbol, quoteAmount})
	if b.buyErr != nil {
		return model.Order{}, b.buyErr
	}
	return model.Order{ID: "buy-ok", Symbol: symbol, Side: model.SideBuy}, nil
}

func (b *fakeBroker) SellMarket(ctx context.Context, symbol string, volume float64) (model.Order, error) {
	b.sells = append(b.sells, orderCall{symbol, volume})
	if b.sellErr != nil {
		return model.Order{}, b.sellErr
	}
	return model.Order{ID: "sell-ok", Symbol: symbol, Side: model.SideSell}, nil
}

type fakeNotifier struct {
	msgs []string
}

func (n *fakeNotifier) Notify(text string) { n.msgs = append(n.msgs, text) }
func (n *fakeNotifier) Notifyf(format string, args ...interface{}) {
	n.Notify(fmt.Sprintf(format, args...))
}

func (n *fakeNotifier) contains(sub string) bool {
	for _, m := range n.msgs {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

type alwaysSignal struct{}

func (alwaysSignal) IsReboundSignal(model.CandleWindow) bool { return true }

type neverSignal struct{}

func (neverSignal) IsReboundSignal(model.CandleWindow) bool { return false }

func testConfig() *service.Config {
	return &service.Config{
		Trading: service.TradingConfig{
			TopSymbols:       20,
			CandleInterval:   5,
			CandleCount:      50,
			OrderAmount:      200000,
			MaxTradesPerDay:  10,
			MinTradeInterval: 600 * time.Second,
			CycleInterval:    time.Minute,
			ErrorBackoff:     30 * time.Second,
		},
		Strategy: service.StrategyConfig{
			MAPeriod: 200, RSIPeriod: 14, StochPeriod: 14, SmoothPeriod: 3, Oversold: 30,
		},
		Risk: service.RiskConfig{
			ProfitThreshold:     2.0,
			TrailingStop:        0.5,
			LossThreshold:       -1.0,
			PartialSellCooldown: 300 * time.Second,
			MinSellNotional:     5000,
		},
	}
}

func newTestTrader(market *fakeMarket, broker *fakeBroker, notifier *fakeNotifier) *Trader {
	tr := New(testConfig(), market, broker, notifier, nil, zap.NewNop())
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return base }
	return tr
}

func window(n int) model.CandleWindow {
	win := make(model.CandleWindow, n)
	for i := range win {
		win[i] = model.Candle{Open: 100, High: 101, Low: 99, Close: 100}
	}
	return win
}

func TestFailedBuyLeavesThrottleUntouched(t *testing.T) {
	market := &fakeMarket{
		top:     []string{"KRW-BTC"},
		windows: map[string]model.CandleWindow{"KRW-BTC": window(50)},
	}
	broker := &fakeBroker{buyErr: fmt.Errorf("insufficient funds")}
	notifier := &fakeNotifier{}
	tr := newTestTrader(market, broker, notifier)
	tr.evaluator = alwaysSignal{}

	if err := tr.runCycle(context.Background()); err != nil {
		t.Fatalf("cycle error: %v", err)
	}
	if len(broker.buys) != 1 {
		t.Fatalf("expected one buy attempt, got %d", len(broker.buys))
	}

	// the failed order was not recorded: the very next cycle retries
	// without waiting out the min trade interval
	if err := tr.runCycle(context.Background()); err != nil {
		t.Fatalf("cycle error: %v", err)
	}
	if len(broker.buys) != 2 {
		t.Fatalf("failed buy must not advance the throttle; got %d attempts", len(broker.buys))
	}
	if !notifier.contains("failed") {
		t.Fatalf("order failure must be notified")
	}
}

func TestSuccessfulBuyIsThrottled(t *testing.T) {
	market := &fakeMarket{
		top:     []string{"KRW-BTC"},
		windows: map[string]model.CandleWindow{"KRW-BTC": window(50)},
	}
	broker := &fakeBroker{}
	tr := newTestTrader(market, broker, &fakeNotifier{})
	tr.evaluator = alwaysSignal{}

	tr.runCycle(context.Background())
	tr.runCycle(context.Background())

	if len(broker.buys) != 1 {
		t.Fatalf("second cycle within the min interval must not buy again; got %d", len(broker.buys))
	}
}

func TestHeldSymbolExcludedFromEntry(t *testing.T) {
	market := &fakeMarket{
		top:      []string{"KRW-BTC"},
		windows:  map[string]model.CandleWindow{"KRW-BTC": window(50)},
		holdings: []model.Holding{{Symbol: "KRW-BTC", Balance: 1, AvgBuyPrice: 100}},
		prices:   map[string]float64{"KRW-BTC": 100},
	}
	broker := &fakeBroker{}
	tr := newTestTrader(market, broker, &fakeNotifier{})
	tr.evaluator = alwaysSignal{}

	tr.runCycle(context.Background())

	if len(broker.buys) != 0 {
		t.Fatalf("a held symbol must never be an entry candidate")
	}
	if len(broker.sells) != 0 {
		t.Fatalf("flat position must hold, got %d sells", len(broker.sells))
	}
}

func TestFailedPartialSellLeavesCooldownUntouched(t *testing.T) {
	market := &fakeMarket{
		holdings: []model.Holding{{Symbol: "KRW-ETH", Balance: 102, AvgBuyPrice: 100}},
		prices:   map[string]float64{"KRW-ETH": 98},
	}
	broker := &fakeBroker{sellErr: fmt.Errorf("exchange maintenance")}
	tr := newTestTrader(market, broker, &fakeNotifier{})
	tr.evaluator = neverSignal{}

	tr.runCycle(context.Background())
	tr.runCycle(context.Background())
	if len(broker.sells) != 2 {
		t.Fatalf("failed sell must retry next cycle; got %d attempts", len(broker.sells))
	}

	// once the broker recovers, the sell lands and starts the cooldown
	broker.sellErr = nil
	tr.runCycle(context.Background())
	tr.runCycle(context.Background())
	if len(broker.sells) != 3 {
		t.Fatalf("cooldown must suppress the follow-up partial sell; got %d attempts", len(broker.sells))
	}
}

func TestFullExitFlow(t *testing.T) {
	market := &fakeMarket{
		holdings: []model.Holding{{Symbol: "KRW-BTC", Balance: 1, AvgBuyPrice: 100}},
		prices:   map[string]float64{"KRW-BTC": 104},
	}
	broker := &fakeBroker{}
	notifier := &fakeNotifier{}
	tr := newTestTrader(market, broker, notifier)
	tr.evaluator = neverSignal{}

	// at the peak: hold
	tr.runCycle(context.Background())
	if len(broker.sells) != 0 {
		t.Fatalf("no pullback yet, expected no sell")
	}

	// pullback below the trailing stop while still above target
	market.prices["KRW-BTC"] = 103.4
	tr.runCycle(context.Background())
	if len(broker.sells) != 1 {
		t.Fatalf("expected the take-profit sell, got %d", len(broker.sells))
	}
	if broker.sells[0].amount != 1 {
		t.Fatalf("full exit must sell the whole balance, got %v", broker.sells[0].amount)
	}
	if !notifier.contains("take-profit") {
		t.Fatalf("take-profit must be notified")
	}
	if _, ok := tr.risk.HighWaterMark("KRW-BTC"); ok {
		t.Fatalf("high-water mark must be cleared after a confirmed full exit")
	}
}

func TestTransientDataErrorSkipsSymbolOnly(t *testing.T) {
	market := &fakeMarket{
		top: []string{"KRW-AAA", "KRW-BBB"},
		windows: map[string]model.CandleWindow{
			// KRW-AAA has no candles: transient fetch failure
			"KRW-BBB": window(50),
		},
	}
	broker := &fakeBroker{}
	tr := newTestTrader(market, broker, &fakeNotifier{})
	tr.evaluator = alwaysSignal{}

	if err := tr.runCycle(context.Background()); err != nil {
		t.Fatalf("one symbol's failure must not fail the cycle: %v", err)
	}
	if len(broker.buys) != 1 || broker.buys[0].symbol != "KRW-BBB" {
		t.Fatalf("healthy symbol must still be processed, got %+v", broker.buys)
	}
}

func TestHoldingWithoutAvgBuyPriceIsSkipped(t *testing.T) {
	market := &fakeMarket{
		holdings: []model.Holding{{Symbol: "KRW-BAD", Balance: 5, AvgBuyPrice: 0}},
		prices:   map[string]float64{"KRW-BAD": 10},
	}
	broker := &fakeBroker{}
	tr := newTestTrader(market, broker, &fakeNotifier{})
	tr.evaluator = neverSignal{}

	if err := tr.runCycle(context.Background()); err != nil {
		t.Fatalf("cycle error: %v", err)
	}
	if len(broker.sells) != 0 {
		t.Fatalf("inconsistent holding must never be traded")
	}
}
