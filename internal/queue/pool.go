package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"skinstudio/internal/domain"
	"skinstudio/internal/infra"
)

// Pool runs tasks on a fixed number of goroutines fed by a bounded channel.
type Pool struct {
	handler     Handler
	logger      *infra.Logger
	workers     int
	timeout     time.Duration
	maxAttempts int

	ch   chan Task
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.ch = make(chan Task, n)
		}
	}
}

func WithTaskTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

func WithLogger(l *infra.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPool starts the workers immediately.
func NewPool(handler Handler, opts ...Option) *Pool {
	p := &Pool{
		handler:     handler,
		logger:      infra.LoggerOrDiscard(nil),
		workers:     4,
		timeout:     2 * time.Minute,
		maxAttempts: 3,
		ch:          make(chan Task, 64),
	}
	for _, o := range opts {
		o(p)
	}
	p.start()
	return p
}

func (p *Pool) start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go func(workerID int) {
				defer p.wg.Done()
				p.logger.Debug().Int("worker_id", workerID).Msg("worker started")
				for task := range p.ch {
					p.run(workerID, task)
				}
				p.logger.Debug().Int("worker_id", workerID).Msg("worker stopped")
			}(i + 1)
		}
	})
}

func (p *Pool) run(workerID int, task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	err := p.handler(ctx, task)
	cancel()
	if err == nil {
		p.logger.Info().Int("worker_id", workerID).Str("image_id", task.ImageID).Msg("task processed")
		return
	}

	task.Attempt++
	if task.Attempt >= p.maxAttempts {
		p.logger.Error().Err(err).Str("image_id", task.ImageID).Int("attempts", task.Attempt).Msg("task failed with no retries remaining")
		return
	}
	p.logger.Warn().Err(err).Str("image_id", task.ImageID).Int("attempt", task.Attempt).Msg("task failed, retrying")
	if rerr := p.offer(task); rerr != nil {
		p.logger.Error().Err(rerr).Str("image_id", task.ImageID).Msg("failed to requeue task")
	}
}

// Enqueue adds task without blocking. A full queue yields domain.ErrQueueFull.
func (p *Pool) Enqueue(_ context.Context, task Task) error {
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}
	if err := p.offer(task); err != nil {
		p.logger.Warn().Err(err).Str("image_id", task.ImageID).Msg("cannot enqueue task")
		return err
	}
	p.logger.Debug().Str("image_id", task.ImageID).Str("kind", task.Kind).Msg("queued task")
	return nil
}

func (p *Pool) offer(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("%w: pool is shutting down", domain.ErrQueueFull)
	}
	select {
	case p.ch <- task:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// Shutdown stops accepting tasks and waits for in-flight work or ctx.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); p.wg.Wait() }()

	select {
	case <-ctx.Done():
		p.logger.Warn().Msg("shutdown interrupted by context")
	case <-done:
		p.logger.Info().Msg("queue drained, shutdown complete")
	}
}

var _ Queue = (*Pool)(nil)
