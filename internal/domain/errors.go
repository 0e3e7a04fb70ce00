package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrTooLarge            = errors.New("payload too large")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrLedgerUnavailable   = errors.New("ledger unavailable")
	ErrNotCompleted        = errors.New("job not completed")
	ErrJobFailed           = errors.New("job failed")
	ErrQueueFull           = errors.New("queue full")
)
