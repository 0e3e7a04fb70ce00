package domain

import (
	"strings"
	"time"
)

// JobState enumerates the internal job lifecycle states.
type JobState string

const (
	JobStatePending    JobState = "pending"
	JobStateProcessing JobState = "processing"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
)

// Terminal reports whether no further polling is expected to change the state.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// LocalJobPrefix marks jobs executed by the in-process enhancer rather than the
// remote inference provider.
const LocalJobPrefix = "local-"

// IsLocalJob reports whether the job id was minted by the local enhancer.
func IsLocalJob(jobID string) bool {
	return strings.HasPrefix(jobID, LocalJobPrefix)
}

// FeatureConfig selects which face regions the enhancement should touch.
type FeatureConfig map[string]bool

// Clone returns a copy so a stored job's config cannot be mutated by callers.
func (c FeatureConfig) Clone() FeatureConfig {
	if c == nil {
		return nil
	}
	out := make(FeatureConfig, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Job is the durable record of one enhancement request.
type Job struct {
	ID          int64
	JobID       string
	ImageID     string
	OriginalURL string
	EnhancedURL *string
	Config      FeatureConfig
	State       JobState
	Progress    int
	Error       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EnhancedURLValue returns the enhanced locator or an empty string.
func (j *Job) EnhancedURLValue() string {
	if j == nil || j.EnhancedURL == nil {
		return ""
	}
	return *j.EnhancedURL
}

// ErrorValue returns the failure message or an empty string.
func (j *Job) ErrorValue() string {
	if j == nil || j.Error == nil {
		return ""
	}
	return *j.Error
}

// JobUpdate carries the fields written after a poll. Nil pointers keep the
// stored value.
type JobUpdate struct {
	JobID     string
	State     JobState
	Progress  *int
	Error     *string
	ResultURL *string
}
