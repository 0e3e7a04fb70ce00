package repo

import (
	"context"
	"time"

	"skinstudio/internal/domain"
	"skinstudio/internal/infra"
	"skinstudio/internal/sqlinline"
)

// CounterImageUpload names the sequence used for upload keys.
const CounterImageUpload = "image_upload"

// CounterPG implements domain.Counter with a single-row-per-name table.
type CounterPG struct {
	sql     infra.SQLExecutor
	timeout time.Duration
}

func NewCounter(sql infra.SQLExecutor, timeout time.Duration) *CounterPG {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &CounterPG{sql: sql, timeout: timeout}
}

// Next atomically increments the named counter, creating it on first use.
func (c *CounterPG) Next(ctx context.Context, name string) (int64, error) {
	if c.sql == nil {
		return 0, domain.ErrLedgerUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var value int64
	if err := c.sql.QueryRow(ctx, sqlinline.QNextCounterValue, name).Scan(&value); err != nil {
		return 0, classify(err)
	}
	return value, nil
}

// Seed raises the counter to at least floor.
func (c *CounterPG) Seed(ctx context.Context, name string, floor int64) (int64, error) {
	if c.sql == nil {
		return 0, domain.ErrLedgerUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var value int64
	if err := c.sql.QueryRow(ctx, sqlinline.QSeedCounter, name, floor).Scan(&value); err != nil {
		return 0, classify(err)
	}
	return value, nil
}

var _ domain.Counter = (*CounterPG)(nil)
