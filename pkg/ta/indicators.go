// Package ta provides the pure indicator math used by the entry signal.
// All functions are stateless over the candle window they are given;
// undefined values (not enough history) are NaN, and NaN never compares
// true against any threshold, so undefined values can never fire a
// signal.
package ta

import (
	"math"

	"github.com/markcheno/go-talib"

	"upbit-rebound-trader/internal/model"
)

// LatestSMA returns the simple moving average of the last period values.
// ok is false when the series is shorter than the period.
func LatestSMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	out := talib.Sma(values, period)
	return out[len(out)-1], true
}

// StochRSIKD computes the Stochastic-RSI %K/%D series over the closing
// prices. RSI uses Wilder smoothing; %K normalizes RSI over its trailing
// stochPeriod min/max into [0,100]; %D is the smoothPeriod moving
// average of %K. Indices without enough history are NaN.
func StochRSIKD(closes []float64, rsiPeriod, stochPeriod, smoothPeriod int) (k, d []float64) {
	n := len(closes)
	k = nanSeries(n)
	d = nanSeries(n)
	if rsiPeriod <= 0 || stochPeriod <= 0 || smoothPeriod <= 0 || n <= rsiPeriod {
		return k, d
	}

	rsi := talib.Rsi(closes, rsiPeriod)
	for i := 0; i < rsiPeriod; i++ {
		rsi[i] = math.NaN() // talib zero-fills the warmup region
	}

	firstK := rsiPeriod + stochPeriod - 1
	for i := firstK; i < n; i++ {
		lo, hi := rsi[i], rsi[i]
		for j := i - stochPeriod + 1; j < i; j++ {
			lo = math.Min(lo, rsi[j])
			hi = math.Max(hi, rsi[j])
		}
		if hi == lo {
			// flat RSI over the whole window: 0/0, leave undefined
			continue
		}
		k[i] = (rsi[i] - lo) / (hi - lo) * 100
	}

	for i := firstK + smoothPeriod - 1; i < n; i++ {
		sum := 0.0
		defined := true
		for j := i - smoothPeriod + 1; j <= i; j++ {
			if math.IsNaN(k[j]) {
				defined = false
				break
			}
			sum += k[j]
		}
		if defined {
			d[i] = sum / float64(smoothPeriod)
		}
	}
	return k, d
}

// BullishReversalPair reports whether the window ends with a down candle
// immediately followed by an up candle.
func BullishReversalPair(win model.CandleWindow) bool {
	if len(win) < 2 {
		return false
	}
	cur, prev := win[len(win)-1], win[len(win)-2]
	return cur.Close > cur.Open && prev.Close < prev.Open
}

func nanSeries(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
