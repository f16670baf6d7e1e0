package strategy

import (
	"upbit-rebound-trader/internal/model"
	"upbit-rebound-trader/internal/service"
	"upbit-rebound-trader/pkg/ta"
)

// minSignalWindow is the smallest candle window the evaluator will look
// at. Shorter windows always evaluate to no-signal, never to an error.
const minSignalWindow = 30

// SignalEvaluator decides whether a symbol's candle window shows a
// tradeable rebound. The rule is a strict conjunction: price above the
// long-term SMA, a bullish reversal candle pair, and a Stochastic-RSI
// golden cross in oversold territory. No partial credit; precision over
// recall.
type SignalEvaluator struct {
	cfg *service.StrategyConfig
}

func NewSignalEvaluator(cfg *service.StrategyConfig) *SignalEvaluator {
	return &SignalEvaluator{cfg: cfg}
}

// IsReboundSignal evaluates the window as of its latest candle.
func (e *SignalEvaluator) IsReboundSignal(win model.CandleWindow) bool {
	if len(win) < minSignalWindow {
		return false
	}
	closes := win.Closes()

	// 1. Price above the long-term trend. An SMA that is still warming
	// up is undefined and treated as signal-not-met.
	ma, ok := ta.LatestSMA(closes, e.cfg.MAPeriod)
	if !ok || closes[len(closes)-1] <= ma {
		return false
	}

	// 2. Down candle immediately followed by an up candle.
	if !ta.BullishReversalPair(win) {
		return false
	}

	// 3. %K crossing above %D while still oversold.
	k, d := ta.StochRSIKD(closes, e.cfg.RSIPeriod, e.cfg.StochPeriod, e.cfg.SmoothPeriod)
	return stochGoldenCross(k, d, e.cfg.Oversold)
}

// stochGoldenCross reports a %K/%D golden cross on the last two samples
// with %K still below the oversold level. NaN samples (insufficient
// history) fail every comparison, so they can never produce a cross.
func stochGoldenCross(k, d []float64, oversold float64) bool {
	n := len(k)
	if n < 2 || len(d) != n {
		return false
	}
	return k[n-2] < d[n-2] && k[n-1] > d[n-1] && k[n-1] < oversold
}
