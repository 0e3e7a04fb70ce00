package domain

import "context"

// JobLedger defines persistence for enhancement jobs.
type JobLedger interface {
	Create(ctx context.Context, job *Job) (int64, error)
	UpdateOnPoll(ctx context.Context, update JobUpdate) error
	Get(ctx context.Context, jobID string) (*Job, error)
	LatestForImage(ctx context.Context, imageID string) (*Job, error)
	ListRecent(ctx context.Context, limit int) ([]Job, error)
}

// Counter hands out monotonically increasing values per counter name.
type Counter interface {
	Next(ctx context.Context, name string) (int64, error)
}
