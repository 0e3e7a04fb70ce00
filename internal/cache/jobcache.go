// Package cache keeps recently read jobs in Redis in front of the ledger.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"skinstudio/internal/domain"
	"skinstudio/internal/infra"
)

// KV is the subset of the Redis client used by the cache.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CachedLedger is a read-through cache over JobLedger.Get for settled jobs.
// Cache errors are logged and fall through to the ledger.
type CachedLedger struct {
	next   domain.JobLedger
	kv     KV
	ttl    time.Duration
	prefix string
	logger *infra.Logger
}

func NewCachedLedger(next domain.JobLedger, kv KV, ttl time.Duration, logger *infra.Logger) *CachedLedger {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedLedger{
		next:   next,
		kv:     kv,
		ttl:    ttl,
		prefix: "skinstudio:job:",
		logger: infra.LoggerOrDiscard(logger),
	}
}

func (c *CachedLedger) Create(ctx context.Context, job *domain.Job) (int64, error) {
	return c.next.Create(ctx, job)
}

// UpdateOnPoll writes through and drops the cached copy.
func (c *CachedLedger) UpdateOnPoll(ctx context.Context, update domain.JobUpdate) error {
	err := c.next.UpdateOnPoll(ctx, update)
	if derr := c.kv.Del(ctx, c.prefix+update.JobID).Err(); derr != nil {
		c.logger.Warn().Err(derr).Str("job_id", update.JobID).Msg("job cache invalidation failed")
	}
	return err
}

func (c *CachedLedger) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	key := c.prefix + jobID
	raw, err := c.kv.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var job domain.Job
		if uerr := json.Unmarshal(raw, &job); uerr == nil {
			return &job, nil
		}
		c.logger.Warn().Str("job_id", jobID).Msg("discarding corrupt cached job")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn().Err(err).Str("job_id", jobID).Msg("job cache read failed")
	}

	job, err := c.next.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !settled(job) {
		return job, nil
	}
	if payload, merr := json.Marshal(job); merr == nil {
		if serr := c.kv.Set(ctx, key, payload, c.ttl).Err(); serr != nil {
			c.logger.Warn().Err(serr).Str("job_id", jobID).Msg("job cache write failed")
		}
	}
	return job, nil
}

// settled reports whether no later ledger write is expected for job. Only
// settled jobs are cached, so a read racing an update cannot pin a stale row.
func settled(job *domain.Job) bool {
	switch job.State {
	case domain.JobStateFailed:
		return true
	case domain.JobStateCompleted:
		return job.EnhancedURLValue() != ""
	}
	return false
}

func (c *CachedLedger) LatestForImage(ctx context.Context, imageID string) (*domain.Job, error) {
	return c.next.LatestForImage(ctx, imageID)
}

func (c *CachedLedger) ListRecent(ctx context.Context, limit int) ([]domain.Job, error) {
	return c.next.ListRecent(ctx, limit)
}

var _ domain.JobLedger = (*CachedLedger)(nil)
