package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"skinstudio/internal/infra"
)

// ListClient is the subset of the Redis client used by the queue.
type ListClient interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// RedisOptions configures a Redis backed queue.
type RedisOptions struct {
	Key         string
	PollTimeout time.Duration
	TaskTimeout time.Duration
	MaxAttempts int
	Logger      *infra.Logger
}

// Redis pushes tasks onto a list and, in the worker process, pops them off.
type Redis struct {
	client      ListClient
	key         string
	pollTimeout time.Duration
	taskTimeout time.Duration
	maxAttempts int
	logger      *infra.Logger
}

func NewRedis(client ListClient, opts RedisOptions) *Redis {
	r := &Redis{
		client:      client,
		key:         opts.Key,
		pollTimeout: opts.PollTimeout,
		taskTimeout: opts.TaskTimeout,
		maxAttempts: opts.MaxAttempts,
		logger:      infra.LoggerOrDiscard(opts.Logger),
	}
	if r.key == "" {
		r.key = "skinstudio:tasks"
	}
	if r.pollTimeout <= 0 {
		r.pollTimeout = 5 * time.Second
	}
	if r.taskTimeout <= 0 {
		r.taskTimeout = 2 * time.Minute
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = 3
	}
	return r
}

func (r *Redis) Enqueue(ctx context.Context, task Task) error {
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("queue: marshal task: %w", err)
	}
	if err := r.client.RPush(ctx, r.key, payload).Err(); err != nil {
		return fmt.Errorf("queue: push task: %w", err)
	}
	r.logger.Debug().Str("image_id", task.ImageID).Str("queue", r.key).Msg("queued task")
	return nil
}

// Run consumes tasks until ctx is cancelled. Failed tasks are pushed back with
// an incremented attempt count.
func (r *Redis) Run(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		res, err := r.client.BLPop(ctx, r.pollTimeout, r.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error().Err(err).Msg("failed to pop from queue")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if len(res) < 2 {
			continue
		}

		var task Task
		if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
			r.logger.Error().Err(err).Msg("invalid task payload")
			continue
		}
		r.handle(ctx, handler, task)
	}
}

func (r *Redis) handle(ctx context.Context, handler Handler, task Task) {
	r.logger.Info().Str("image_id", task.ImageID).Int("attempt", task.Attempt).Msg("received task")

	taskCtx, cancel := context.WithTimeout(ctx, r.taskTimeout)
	err := handler(taskCtx, task)
	cancel()
	if err == nil {
		r.logger.Info().Str("image_id", task.ImageID).Msg("task processed")
		return
	}

	task.Attempt++
	if task.Attempt >= r.maxAttempts {
		r.logger.Error().Err(err).Str("image_id", task.ImageID).Int("attempts", task.Attempt).Msg("task failed with no retries remaining")
		return
	}
	r.logger.Warn().Err(err).Str("image_id", task.ImageID).Int("attempt", task.Attempt).Msg("task failed, retrying")
	if perr := r.Enqueue(ctx, task); perr != nil {
		r.logger.Error().Err(perr).Str("image_id", task.ImageID).Msg("failed to requeue task")
	}
}

var _ Queue = (*Redis)(nil)
