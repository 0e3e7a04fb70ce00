package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"skinstudio/internal/domain"
	"skinstudio/internal/infra"
	"skinstudio/internal/sqlinline"
)

const (
	defaultTimeout   = 5 * time.Second
	defaultListLimit = 10
	maxListLimit     = 100
)

// JobLedgerPG implements domain.JobLedger on top of PostgreSQL.
type JobLedgerPG struct {
	sql     infra.SQLExecutor
	timeout time.Duration
}

// NewJobLedger creates a ledger backed by the given executor. A nil executor
// yields a ledger that reports domain.ErrLedgerUnavailable on every call.
func NewJobLedger(sql infra.SQLExecutor, timeout time.Duration) *JobLedgerPG {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &JobLedgerPG{sql: sql, timeout: timeout}
}

// Create inserts a new job row and returns its surrogate id.
func (r *JobLedgerPG) Create(ctx context.Context, job *domain.Job) (int64, error) {
	if r.sql == nil {
		return 0, domain.ErrLedgerUnavailable
	}
	if job == nil || job.JobID == "" {
		return 0, fmt.Errorf("%w: job id is required", domain.ErrValidation)
	}
	cfg, err := json.Marshal(job.Config)
	if err != nil {
		return 0, fmt.Errorf("encode config: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.sql.QueryRow(ctx, sqlinline.QInsertJob,
		job.JobID,
		job.ImageID,
		job.OriginalURL,
		cfg,
		string(job.State),
		job.Progress,
	)
	if err := row.Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return 0, classify(err)
	}
	return job.ID, nil
}

// UpdateOnPoll writes the latest poll outcome. Writes are last-write-wins.
func (r *JobLedgerPG) UpdateOnPoll(ctx context.Context, update domain.JobUpdate) error {
	if r.sql == nil {
		return domain.ErrLedgerUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateJobOnPoll,
		update.JobID,
		string(update.State),
		update.Progress,
		update.Error,
		update.ResultURL,
	)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get fetches a job by its provider-assigned id.
func (r *JobLedgerPG) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	if r.sql == nil {
		return nil, domain.ErrLedgerUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJob, jobID))
}

// LatestForImage returns the most recently created job for an uploaded image.
func (r *JobLedgerPG) LatestForImage(ctx context.Context, imageID string) (*domain.Job, error) {
	if r.sql == nil {
		return nil, domain.ErrLedgerUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectLatestJobForImage, imageID))
}

// ListRecent returns the newest jobs first.
func (r *JobLedgerPG) ListRecent(ctx context.Context, limit int) ([]domain.Job, error) {
	if r.sql == nil {
		return nil, domain.ErrLedgerUnavailable
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.sql.Query(ctx, sqlinline.QListRecentJobs, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job   domain.Job
		state string
		cfg   []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.JobID,
		&job.ImageID,
		&job.OriginalURL,
		&job.EnhancedURL,
		&cfg,
		&state,
		&job.Progress,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, classify(err)
	}
	job.State = domain.JobState(state)
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &job.Config); err != nil {
			return nil, fmt.Errorf("decode config for job %s: %w", job.JobID, err)
		}
	}
	return &job, nil
}

// classify maps connectivity failures onto domain.ErrLedgerUnavailable so
// callers can choose a degraded read instead of failing the request.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var (
		connectErr *pgconn.ConnectError
		netErr     net.Error
	)
	switch {
	case errors.Is(err, infra.ErrNoPool),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &connectErr),
		errors.As(err, &netErr),
		pgconn.Timeout(err):
		return fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	return err
}

var _ domain.JobLedger = (*JobLedgerPG)(nil)
