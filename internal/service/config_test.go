package service

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Exchange: ExchangeConfig{
			RequestTimeout: 10 * time.Second,
			RateLimit:      8,
		},
		Trading: TradingConfig{
			TopSymbols:       20,
			CandleInterval:   5,
			CandleCount:      50,
			OrderAmount:      200000,
			MaxTradesPerDay:  10,
			MinTradeInterval: 600 * time.Second,
			CycleInterval:    time.Minute,
			ErrorBackoff:     30 * time.Second,
			DryRun:           true,
		},
		Strategy: StrategyConfig{
			MAPeriod: 200, RSIPeriod: 14, StochPeriod: 14, SmoothPeriod: 3, Oversold: 30,
		},
		Risk: RiskConfig{
			ProfitThreshold:     2.0,
			TrailingStop:        0.5,
			LossThreshold:       -1.0,
			PartialSellCooldown: 300 * time.Second,
			MinSellNotional:     5000,
		},
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero order amount", func(c *Config) { c.Trading.OrderAmount = 0 }},
		{"zero daily cap", func(c *Config) { c.Trading.MaxTradesPerDay = 0 }},
		{"negative profit threshold", func(c *Config) { c.Risk.ProfitThreshold = -1 }},
		{"positive loss threshold", func(c *Config) { c.Risk.LossThreshold = 1 }},
		{"negative trailing stop", func(c *Config) { c.Risk.TrailingStop = -0.1 }},
		{"zero partial cooldown", func(c *Config) { c.Risk.PartialSellCooldown = 0 }},
		{"zero min notional", func(c *Config) { c.Risk.MinSellNotional = 0 }},
		{"zero ma period", func(c *Config) { c.Strategy.MAPeriod = 0 }},
		{"oversold out of range", func(c *Config) { c.Strategy.Oversold = 150 }},
		{"zero request timeout", func(c *Config) { c.Exchange.RequestTimeout = 0 }},
		{"live trading without credentials", func(c *Config) { c.Trading.DryRun = false }},
	}

	for _, tc := range cases {
		cfg := validConfig()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}
