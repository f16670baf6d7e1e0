package model

import (
	"fmt"
	"time"
)

// Candle is one OHLCV sample of a fixed-interval candle.
type Candle struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Time   time.Time // candle open time (UTC)
}

// CandleWindow is an ordered-by-time candle sequence, most-recent-last.
// Produced fresh each cycle by the market data adapter and never mutated
// by consumers.
type CandleWindow []Candle

// Closes returns the closing price series of the window.
func (w CandleWindow) Closes() []float64 {
	closes := make([]float64, len(w))
	for i, c := range w {
		closes[i] = c.Close
	}
	return closes
}

// Holding is the exchange's view of one held asset. AvgBuyPrice and
// Balance are owned by the account; the trader only reads them and
// issues sell orders expected to change them on the next read.
type Holding struct {
	Symbol      string
	Balance     float64
	AvgBuyPrice float64
}

// Order is the broker's acknowledgement of an accepted market order.
type Order struct {
	ID     string // exchange order identifier (uuid)
	Symbol string
	Side   OrderSide
}

type OrderSide string

const (
	SideBuy  OrderSide = "bid"
	SideSell OrderSide = "ask"
)

// ExitAction is the risk manager's per-cycle verdict for a held position.
type ExitAction string

const (
	Hold        ExitAction = "HOLD"
	PartialExit ExitAction = "PARTIAL_EXIT"
	FullExit    ExitAction = "FULL_EXIT"
)

// ExitDecision carries the action plus the figures it was based on, so
// callers can log and notify without recomputing them.
type ExitDecision struct {
	Action      ExitAction
	Volume      float64 // volume to sell; zero for Hold
	ProfitPct   float64
	DrawdownPct float64
	Reason      string
}

func (d ExitDecision) String() string {
	return fmt.Sprintf("%s | vol %.8f | profit %.2f%% | drawdown %.2f%% | %s",
		d.Action, d.Volume, d.ProfitPct, d.DrawdownPct, d.Reason)
}
