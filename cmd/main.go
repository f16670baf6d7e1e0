package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"upbit-rebound-trader/internal/api"
	"upbit-rebound-trader/internal/notify"
	"upbit-rebound-trader/internal/service"
	"upbit-rebound-trader/internal/trader"
)

func main() {
	service.InitLogger()
	defer service.Logger.Sync()

	configPath := "config"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		service.Logger.Fatal("Configuration directory 'config/' not found. Please create it.")
	}
	cfg := service.LoadConfig(configPath)
	if err := cfg.Validate(); err != nil {
		service.Logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	upbit := api.NewUpbitClient(cfg, service.Logger)
	feed := api.NewPriceFeed(cfg.Exchange.WSURL, service.Logger)
	go feed.Start(ctx)

	slack := notify.NewSlack(cfg.Notify.SlackWebhookURL, service.Logger)

	bot := trader.New(cfg, upbit, upbit, slack, feed, service.Logger)

	service.Logger.Info("Starting rebound trading loop",
		zap.Int("topSymbols", cfg.Trading.TopSymbols),
		zap.Bool("dryRun", cfg.Trading.DryRun))
	bot.Run(ctx)

	service.Logger.Info("Shutdown complete")
}
