// Package bootstrap wires the shared components used by the api and worker
// binaries from a loaded configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"skinstudio/internal/adapter/repo"
	"skinstudio/internal/cache"
	"skinstudio/internal/domain"
	"skinstudio/internal/enhance"
	"skinstudio/internal/enhancement"
	"skinstudio/internal/infra"
	"skinstudio/internal/providers/runpod"
	"skinstudio/internal/queue"
	"skinstudio/internal/storage"
)

// Components holds everything built from the configuration. DB and Redis are
// nil when not configured.
type Components struct {
	DB      *pgxpool.Pool
	Redis   *redis.Client
	Ledger  domain.JobLedger
	Counter *repo.CounterPG
	Store   *storage.Store
	Service *enhancement.Service
}

// Build connects to the configured backends. A database that cannot be reached
// at startup is logged and the pool is kept, so the ledger recovers once the
// server is back.
func Build(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (*Components, error) {
	c := &Components{}

	pool, err := infra.NewDBPool(ctx, cfg)
	switch {
	case err == nil:
		c.DB = pool
		if perr := infra.PingDB(ctx, pool, cfg.DBTimeout); perr != nil {
			logger.Warn().Err(perr).Msg("database unreachable at startup, ledger calls fail until it recovers")
		}
	case errors.Is(err, infra.ErrNoDatabase):
		logger.Warn().Msg("DATABASE_URL not set, job ledger disabled")
	default:
		logger.Error().Err(err).Msg("invalid database configuration, job ledger disabled")
	}

	runner := infra.NewSQLRunner(c.DB, *logger)
	var ledger domain.JobLedger = repo.NewJobLedger(runner, cfg.DBTimeout)
	c.Counter = repo.NewCounter(runner, cfg.DBTimeout)

	if cfg.RedisAddr != "" {
		c.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := c.Redis.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis ping failed")
		}
		if cfg.CacheTTL > 0 {
			ledger = cache.NewCachedLedger(ledger, c.Redis, cfg.CacheTTL, logger)
		}
	}
	c.Ledger = ledger

	var remote storage.Remote
	if cfg.B2Configured() {
		b2, err := storage.NewB2Store(storage.B2Options{
			Endpoint:       cfg.B2Endpoint,
			Region:         cfg.B2Region,
			Bucket:         cfg.B2Bucket,
			KeyID:          cfg.B2KeyID,
			ApplicationKey: cfg.B2ApplicationKey,
			UseSSL:         cfg.B2UseSSL,
		})
		if err != nil {
			logger.Error().Err(err).Msg("b2 client init failed, storing locally")
		} else {
			remote = b2
		}
	} else {
		logger.Info().Msg("b2 not configured, storing locally")
	}

	uploads, err := storage.NewFileStore(cfg.UploadDir)
	if err != nil {
		c.Close()
		return nil, err
	}
	enhanced, err := storage.NewFileStore(cfg.EnhancedDir)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Store, err = storage.NewStore(storage.Options{
		Remote:        remote,
		Uploads:       uploads,
		Enhanced:      enhanced,
		PublicBaseURL: cfg.PublicBaseURL,
		Timeout:       cfg.StorageTimeout,
		Logger:        logger,
	})
	if err != nil {
		c.Close()
		return nil, err
	}

	provider := runpod.NewClient(runpod.Options{
		BaseURL:       cfg.RunPodBaseURL,
		EndpointID:    cfg.RunPodEndpointID,
		APIKey:        cfg.RunPodAPIKey,
		SubmitTimeout: cfg.RunPodSubmitTimeout,
		StatusTimeout: cfg.RunPodStatusTimeout,
		Logger:        logger,
	})
	if !provider.Configured() {
		logger.Info().Msg("runpod not configured, uploads use the local enhancer")
	}

	c.Service, err = enhancement.NewService(enhancement.Options{
		Ledger:         c.Ledger,
		Counter:        c.Counter,
		Store:          c.Store,
		Provider:       provider,
		Enhancer:       enhance.NewEnhancer(enhance.DefaultAdjustments),
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("build service: %w", err)
	}
	return c, nil
}

// RedisQueue returns the Redis task queue. It requires a Redis client.
func (c *Components) RedisQueue(cfg *infra.Config, logger *infra.Logger) (*queue.Redis, error) {
	if c.Redis == nil {
		return nil, errors.New("bootstrap: redis queue requires REDIS_ADDR")
	}
	return queue.NewRedis(c.Redis, queue.RedisOptions{
		Key:         cfg.RedisQueueKey,
		TaskTimeout: cfg.TaskTimeout,
		MaxAttempts: cfg.QueueMaxAttempts,
		Logger:      logger,
	}), nil
}

// Close releases the database pool and Redis client.
func (c *Components) Close() {
	if c.DB != nil {
		c.DB.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
