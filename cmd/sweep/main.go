package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"askhub_backend/internal/app"
	"askhub_backend/pkg/config"
	"askhub_backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Config{})
		bootLog.Fatal().Err(err).Msg("could not load configuration")
	}
	log := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	root := newRootCmd(func() (sweeper, func(), error) {
		a, err := app.New(cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return a.Subscriptions, func() { _ = a.Close() }, nil
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
