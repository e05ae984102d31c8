package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"examprep/backend/internal/cache"
	"examprep/backend/internal/config"
	"examprep/backend/internal/database"
	"examprep/backend/internal/log"
	"examprep/backend/internal/queue"
	"examprep/backend/internal/service"
	"examprep/backend/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.LogLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := database.OpenStore(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer closeStore()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	sweeper := service.NewSessionSweeper(store, cfg.Housekeeping.StaleAfter, logger)
	processor := tasks.NewProcessor(sweeper, logger)
	consumer := queue.NewConsumer(client, cfg.Housekeeping, logger, processor)

	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("consumer stopped unexpectedly")
		return
	}
	logger.Info().Msg("worker exited cleanly")
}
