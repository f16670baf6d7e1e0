package service

import (
	"log"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration, loaded once at startup.
type Config struct {
	Exchange ExchangeConfig `mapstructure:"Exchange"`
	Trading  TradingConfig  `mapstructure:"Trading"`
	Strategy StrategyConfig `mapstructure:"Strategy"`
	Risk     RiskConfig     `mapstructure:"Risk"`
	Notify   NotifyConfig   `mapstructure:"Notify"`
}

// ExchangeConfig defines the Upbit connection and credentials.
type ExchangeConfig struct {
	AccessKey      string
	SecretKey      string
	RESTURL        string
	WSURL          string
	RequestTimeout time.Duration
	RateLimit      float64 // REST requests per second
}

// TradingConfig defines the polling loop and entry throttling.
type TradingConfig struct {
	TopSymbols       int           // how many top-volume markets to scan
	CandleInterval   int           // candle unit in minutes
	CandleCount      int           // candles fetched per evaluation
	OrderAmount      float64       // quote-currency amount per market buy
	MaxTradesPerDay  int           // per-symbol daily entry cap
	MinTradeInterval time.Duration // per-symbol spacing between entries
	CycleInterval    time.Duration // sleep between polling cycles
	ErrorBackoff     time.Duration // sleep after a failed cycle
	DryRun           bool          // log orders instead of sending them
}

// StrategyConfig defines the rebound entry signal parameters.
type StrategyConfig struct {
	MAPeriod     int     // long-term trend SMA period
	RSIPeriod    int     // RSI lookback
	StochPeriod  int     // stochastic normalization window over RSI
	SmoothPeriod int     // %D smoothing of %K
	Oversold     float64 // %K must be below this at the cross
}

// RiskConfig defines the position exit rules.
type RiskConfig struct {
	ProfitThreshold     float64       // take-profit trigger, percent
	TrailingStop        float64       // required pullback from peak, percent
	LossThreshold       float64       // partial stop-loss trigger, percent (negative)
	PartialSellCooldown time.Duration // spacing between partial sells per symbol
	MinSellNotional     float64       // smallest sellable quote value
}

type NotifyConfig struct {
	SlackWebhookURL string
}

// GlobalConfig holds the loaded configuration.
var GlobalConfig Config

// LoadConfig reads config/config.yaml, applies defaults and decodes into
// the typed struct. Any read or decode failure is fatal: the loop must
// never start on a half-loaded configuration.
func LoadConfig(configPath string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Fatalf("Config file not found: %s", err)
		} else {
			log.Fatalf("Error reading config file: %s", err)
		}
	}

	if err := viper.Unmarshal(&GlobalConfig); err != nil {
		log.Fatalf("Unable to decode config into struct: %s", err)
	}

	return &GlobalConfig
}

func setDefaults() {
	viper.SetDefault("Exchange.RESTURL", "https://api.upbit.com")
	viper.SetDefault("Exchange.WSURL", "wss://api.upbit.com/websocket/v1")
	viper.SetDefault("Exchange.RequestTimeout", "10s")
	viper.SetDefault("Exchange.RateLimit", 8.0)

	viper.SetDefault("Trading.TopSymbols", 20)
	viper.SetDefault("Trading.CandleInterval", 5)
	viper.SetDefault("Trading.CandleCount", 50)
	viper.SetDefault("Trading.OrderAmount", 200000)
	viper.SetDefault("Trading.MaxTradesPerDay", 10)
	viper.SetDefault("Trading.MinTradeInterval", "600s")
	viper.SetDefault("Trading.CycleInterval", "60s")
	viper.SetDefault("Trading.ErrorBackoff", "30s")

	viper.SetDefault("Strategy.MAPeriod", 200)
	viper.SetDefault("Strategy.RSIPeriod", 14)
	viper.SetDefault("Strategy.StochPeriod", 14)
	viper.SetDefault("Strategy.SmoothPeriod", 3)
	viper.SetDefault("Strategy.Oversold", 30)

	viper.SetDefault("Risk.ProfitThreshold", 2.0)
	viper.SetDefault("Risk.TrailingStop", 0.5)
	viper.SetDefault("Risk.LossThreshold", -1.0)
	viper.SetDefault("Risk.PartialSellCooldown", "300s")
	viper.SetDefault("Risk.MinSellNotional", 5000)
}

// Validate rejects configurations the trading loop cannot run on.
// Called once at startup; a non-nil error is fatal.
func (c *Config) Validate() error {
	if c.Trading.OrderAmount <= 0 {
		return errors.Errorf("Trading.OrderAmount must be positive, got %v", c.Trading.OrderAmount)
	}
	if c.Trading.TopSymbols <= 0 {
		return errors.Errorf("Trading.TopSymbols must be positive, got %d", c.Trading.TopSymbols)
	}
	if c.Trading.CandleCount <= 0 || c.Trading.CandleInterval <= 0 {
		return errors.New("Trading.CandleCount and Trading.CandleInterval must be positive")
	}
	if c.Trading.MaxTradesPerDay <= 0 {
		return errors.Errorf("Trading.MaxTradesPerDay must be positive, got %d", c.Trading.MaxTradesPerDay)
	}
	if c.Trading.MinTradeInterval <= 0 || c.Trading.CycleInterval <= 0 || c.Trading.ErrorBackoff <= 0 {
		return errors.New("Trading intervals must be positive durations")
	}
	if c.Strategy.MAPeriod <= 0 || c.Strategy.RSIPeriod <= 0 || c.Strategy.StochPeriod <= 0 || c.Strategy.SmoothPeriod <= 0 {
		return errors.New("Strategy periods must be positive")
	}
	if c.Strategy.Oversold <= 0 || c.Strategy.Oversold > 100 {
		return errors.Errorf("Strategy.Oversold must be in (0,100], got %v", c.Strategy.Oversold)
	}
	if c.Risk.ProfitThreshold <= 0 {
		return errors.Errorf("Risk.ProfitThreshold must be positive, got %v", c.Risk.ProfitThreshold)
	}
	if c.Risk.TrailingStop < 0 {
		return errors.Errorf("Risk.TrailingStop must not be negative, got %v", c.Risk.TrailingStop)
	}
	if c.Risk.LossThreshold >= 0 {
		return errors.Errorf("Risk.LossThreshold must be negative, got %v", c.Risk.LossThreshold)
	}
	if c.Risk.PartialSellCooldown <= 0 {
		return errors.New("Risk.PartialSellCooldown must be a positive duration")
	}
	if c.Risk.MinSellNotional <= 0 {
		return errors.Errorf("Risk.MinSellNotional must be positive, got %v", c.Risk.MinSellNotional)
	}
	if c.Exchange.RequestTimeout <= 0 || c.Exchange.RateLimit <= 0 {
		return errors.New("Exchange.RequestTimeout and Exchange.RateLimit must be positive")
	}
	if !c.Trading.DryRun && (c.Exchange.AccessKey == "" || c.Exchange.SecretKey == "") {
		return errors.New("Exchange credentials are required unless Trading.DryRun is set")
	}
	return nil
}
