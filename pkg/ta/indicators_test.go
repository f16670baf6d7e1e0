package ta_test

import (
	"math"
	"testing"

	"upbit-rebound-trader/internal/model"
	"upbit-rebound-trader/pkg/ta"
)

func TestLatestSMA(t *testing.T) {
	values := []float64{11, 12, 13, 14, 20, 16}

	got, ok := ta.LatestSMA(values, 3)
	if !ok {
		t.Fatalf("sma expected to be defined")
	}
	want := (14.0 + 20.0 + 16.0) / 3.0
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("sma got %v expected %v", got, want)
	}

	if _, ok := ta.LatestSMA(values, 7); ok {
		t.Fatalf("sma expected undefined for period longer than series")
	}
	if _, ok := ta.LatestSMA(nil, 3); ok {
		t.Fatalf("sma expected undefined for empty series")
	}
}

func TestBullishReversalPair(t *testing.T) {
	cases := []struct {
		name string
		win  model.CandleWindow
		want bool
	}{
		{
			name: "down candle then up candle",
			win: model.CandleWindow{
				{Open: 10, Close: 9},
				{Open: 9, Close: 10},
			},
			want: true,
		},
		{
			name: "two up candles",
			win: model.CandleWindow{
				{Open: 9, Close: 10},
				{Open: 10, Close: 11},
			},
			want: false,
		},
		{
			name: "up candle then down candle",
			win: model.CandleWindow{
				{Open: 9, Close: 10},
				{Open: 10, Close: 9},
			},
			want: false,
		},
		{
			name: "doji current candle",
			win: model.CandleWindow{
				{Open: 10, Close: 9},
				{Open: 9, Close: 9},
			},
			want: false,
		},
		{
			name: "single candle",
			win:  model.CandleWindow{{Open: 9, Close: 10}},
			want: false,
		},
	}

	for _, tc := range cases {
		if got := ta.BullishReversalPair(tc.win); got != tc.want {
			t.Errorf("%s: got %v expected %v", tc.name, got, tc.want)
		}
	}
}

func TestStochRSIKDUndefinedPrefix(t *testing.T) {
	closes := []float64{10, 11, 9, 12, 8, 13, 7, 14, 6, 15, 5, 16}
	rsiPeriod, stochPeriod, smoothPeriod := 3, 3, 2

	k, d := ta.StochRSIKD(closes, rsiPeriod, stochPeriod, smoothPeriod)
	if len(k) != len(closes) || len(d) != len(closes) {
		t.Fatalf("series length mismatch: k=%d d=%d want %d", len(k), len(d), len(closes))
	}

	firstK := rsiPeriod + stochPeriod - 1
	for i := 0; i < firstK; i++ {
		if !math.IsNaN(k[i]) {
			t.Errorf("k[%d] expected undefined, got %v", i, k[i])
		}
	}
	for i := firstK; i < len(closes); i++ {
		if math.IsNaN(k[i]) {
			t.Errorf("k[%d] expected defined", i)
		} else if k[i] < 0 || k[i] > 100 {
			t.Errorf("k[%d] = %v out of [0,100]", i, k[i])
		}
	}

	firstD := firstK + smoothPeriod - 1
	for i := 0; i < firstD; i++ {
		if !math.IsNaN(d[i]) {
			t.Errorf("d[%d] expected undefined, got %v", i, d[i])
		}
	}
	for i := firstD; i < len(closes); i++ {
		if math.IsNaN(d[i]) {
			t.Errorf("d[%d] expected defined", i)
		}
	}
}

func TestStochRSIKDTooShort(t *testing.T) {
	closes := []float64{10, 11, 12}
	k, d := ta.StochRSIKD(closes, 14, 14, 3)
	for i := range closes {
		if !math.IsNaN(k[i]) || !math.IsNaN(d[i]) {
			t.Fatalf("index %d expected undefined on short window", i)
		}
	}
}

func TestStochRSIKDFlatPrices(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	k, d := ta.StochRSIKD(closes, 3, 3, 2)
	for i := range closes {
		if !math.IsNaN(k[i]) || !math.IsNaN(d[i]) {
			t.Fatalf("index %d expected undefined on flat prices (got k=%v d=%v)", i, k[i], d[i])
		}
	}
}
