// Package queue moves upload processing off the request path, either to an
// in-process worker pool or to a Redis list consumed by the worker binary.
package queue

import (
	"context"
	"time"
)

// KindEnhanceUpload is the task kind produced for every accepted upload.
const KindEnhanceUpload = "enhance_upload"

// Task is one unit of background work.
type Task struct {
	Kind        string    `json:"kind"`
	ImageID     string    `json:"image_id"`
	OriginalURL string    `json:"original_url"`
	Attempt     int       `json:"attempt"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// Handler processes a task. A returned error makes the task eligible for retry.
type Handler func(ctx context.Context, task Task) error

// Queue accepts tasks for background processing.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
}
