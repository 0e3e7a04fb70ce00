package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"skinstudio/internal/bootstrap"
	"skinstudio/internal/http/handlers"
	httpapi "skinstudio/internal/http/httpapi"
	"skinstudio/internal/infra"
	"skinstudio/internal/infra/geoip"
	"skinstudio/internal/queue"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Build(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise components")
	}
	defer deps.Close()

	var pool *queue.Pool
	switch cfg.QueueBackend {
	case infra.QueueBackendRedis:
		q, err := deps.RedisQueue(cfg, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build task queue")
		}
		deps.Service.SetQueue(q)
		logger.Info().Str("key", cfg.RedisQueueKey).Msg("uploads handed to redis workers")
	default:
		pool = queue.NewPool(deps.Service.ProcessUpload,
			queue.WithWorkers(cfg.QueueWorkers),
			queue.WithQueueSize(cfg.QueueSize),
			queue.WithTaskTimeout(cfg.TaskTimeout),
			queue.WithMaxAttempts(cfg.QueueMaxAttempts),
			queue.WithLogger(&logger),
		)
		deps.Service.SetQueue(pool)
	}

	countries, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip database unavailable")
	}
	defer countries.Close()

	app := handlers.NewApp(deps.Service, deps.Store, &logger, cfg.MaxUploadBytes)
	if deps.DB != nil {
		app.Ping = deps.DB.Ping
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          &logger,
		CORSOrigins:     cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Country:         countries.CountryCode,
	})
	server := infra.NewHTTPServer(cfg, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server")
		}
		if pool != nil {
			pool.Shutdown(shutdownCtx)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("http server failed")
	}
	logger.Info().Msg("server stopped")
}
