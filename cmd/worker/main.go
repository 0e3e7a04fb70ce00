package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"skinstudio/internal/bootstrap"
	"skinstudio/internal/infra"
)

// The worker consumes upload tasks from Redis. With QUEUE_BACKEND=pool the api
// process handles uploads itself and no worker is needed.
func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if cfg.QueueBackend != infra.QueueBackendRedis {
		logger.Fatal().Str("backend", cfg.QueueBackend).Msg("worker: QUEUE_BACKEND must be redis")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Build(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to initialise components")
	}
	defer deps.Close()

	q, err := deps.RedisQueue(cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build task queue")
	}

	logger.Info().Str("key", cfg.RedisQueueKey).Msg("worker started")
	if err := q.Run(ctx, deps.Service.ProcessUpload); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped with error")
		return
	}
	logger.Info().Msg("worker stopped")
}
