package main

import (
	"context"
	"flag"

	"github.com/vpk404/flashloan/internal/bot"
	"github.com/vpk404/flashloan/internal/config"
	"go.uber.org/zap"
)

func main() {
	cfgPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	logger, err := bot.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	b, err := bot.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize bot", zap.Error(err))
	}
	b.Run(context.Background())
}
