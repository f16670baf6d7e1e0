package strategy

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"upbit-rebound-trader/internal/model"
	"upbit-rebound-trader/internal/service"
)

// partialSellRatio is the fraction of the balance sold on a partial
// stop-loss.
const partialSellRatio = 0.5

// RiskManager owns the mutable per-position state: the running
// high-water mark of each held symbol and the cooldown between partial
// stop-loss sells. Whether a position is open is never tracked here; it
// is derived each cycle from the account's balance, so the manager can
// not desynchronize from the real holdings.
type RiskManager struct {
	mu              sync.Mutex
	cfg             *service.RiskConfig
	highWater       map[string]float64
	lastPartialSell map[string]time.Time
	logger          *zap.Logger
}

func NewRiskManager(cfg *service.RiskConfig, logger *zap.Logger) *RiskManager {
	return &RiskManager{
		cfg:             cfg,
		highWater:       make(map[string]float64),
		lastPartialSell: make(map[string]time.Time),
		logger:          logger.With(zap.String("component", "risk")),
	}
}

// Evaluate decides hold / partial-exit / full-exit for one held symbol.
// The high-water mark is raised to price when exceeded; raising it is
// idempotent, so evaluating twice at the same instant with the same
// inputs returns the same decision. Evaluate never mutates the partial
// cooldown or clears the mark — those follow an accepted order, via
// RecordPartialSell and MarkExited.
func (r *RiskManager) Evaluate(symbol string, price, avgBuy, balance float64, now time.Time) model.ExitDecision {
	r.mu.Lock()
	defer r.mu.Unlock()

	if price <= 0 || avgBuy <= 0 || balance <= 0 {
		return model.ExitDecision{Action: model.Hold, Reason: "invalid price data"}
	}

	peak, ok := r.highWater[symbol]
	if !ok || price > peak {
		peak = price
		r.highWater[symbol] = peak
	}

	profitPct := (price - avgBuy) / avgBuy * 100
	drawdownPct := (peak - price) / peak * 100

	dec := model.ExitDecision{
		Action:      model.Hold,
		ProfitPct:   profitPct,
		DrawdownPct: drawdownPct,
	}

	r.logger.Debug("position check",
		zap.String("symbol", symbol),
		zap.Float64("profitPct", profitPct),
		zap.Float64("drawdownPct", drawdownPct),
		zap.Float64("peak", peak))

	// Take-profit requires a pullback from the post-entry peak, not just
	// touching the target: guards against selling into a single-tick
	// spike. Checked before the stop-loss branch; the order is part of
	// the contract even though both can never hold at once.
	if profitPct >= r.cfg.ProfitThreshold && drawdownPct >= r.cfg.TrailingStop {
		dec.Action = model.FullExit
		dec.Volume = balance
		dec.Reason = "take-profit with trailing confirmation"
		return dec
	}

	if profitPct <= r.cfg.LossThreshold {
		if last, sold := r.lastPartialSell[symbol]; sold && now.Sub(last) < r.cfg.PartialSellCooldown {
			dec.Reason = "partial stop-loss suppressed: cooldown active"
			r.logger.Info("partial stop-loss on cooldown",
				zap.String("symbol", symbol), zap.Time("lastPartialSell", last))
			return dec
		}
		if balance*price < r.cfg.MinSellNotional {
			dec.Reason = "partial stop-loss suppressed: notional below minimum"
			r.logger.Info("position too small for partial stop-loss",
				zap.String("symbol", symbol), zap.Float64("notional", balance*price))
			return dec
		}
		dec.Action = model.PartialExit
		dec.Volume = balance * partialSellRatio
		dec.Reason = "partial stop-loss"
		return dec
	}

	dec.Reason = "within thresholds"
	return dec
}

// RecordPartialSell starts the per-symbol cooldown. Call only after the
// broker accepted the partial sell; a failed order must leave the
// cooldown untouched so the sell retries next cycle.
func (r *RiskManager) RecordPartialSell(symbol string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastPartialSell[symbol] = now
}

// MarkExited discards the high-water mark after a completed full exit.
func (r *RiskManager) MarkExited(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.highWater, symbol)
}

// Retain drops high-water marks for symbols that are no longer held,
// keeping the manager's state a pure function of the account view.
func (r *RiskManager) Retain(held map[string]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for symbol := range r.highWater {
		if _, ok := held[symbol]; !ok {
			delete(r.highWater, symbol)
		}
	}
}

// HighWaterMark reports the current mark for a symbol, if any.
func (r *RiskManager) HighWaterMark(symbol string) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.highWater[symbol]
	return v, ok
}
