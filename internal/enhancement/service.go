// Package enhancement orchestrates uploads, enhancement jobs and their status.
package enhancement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"skinstudio/internal/adapter/repo"
	"skinstudio/internal/domain"
	"skinstudio/internal/enhance"
	"skinstudio/internal/files"
	"skinstudio/internal/infra"
	"skinstudio/internal/providers/runpod"
	"skinstudio/internal/queue"
	"skinstudio/internal/storage"
)

// Provider is the remote inference API.
type Provider interface {
	Configured() bool
	Submit(ctx context.Context, imageID string, config domain.FeatureConfig) (*runpod.SubmitResult, error)
	Poll(ctx context.Context, jobID string) (runpod.PollResult, error)
	FetchResult(ctx context.Context, jobID string) (string, error)
}

// ObjectStore stores images remotely with a local fallback.
type ObjectStore interface {
	Put(ctx context.Context, localPath, key, dir string) storage.Locator
	Open(ctx context.Context, key string) (*os.File, error)
	Locate(ctx context.Context, key string) string
	ProxyURL(raw string) string
	LocalURL(dir, key string) string
	Uploads() *storage.FileStore
	Enhanced() *storage.FileStore
}

// LocalEnhancer enhances an image file in-process.
type LocalEnhancer interface {
	EnhanceFile(ctx context.Context, src, dst string) error
}

// Options wires a Service.
type Options struct {
	Ledger         domain.JobLedger
	Counter        domain.Counter
	Store          ObjectStore
	Provider       Provider
	Enhancer       LocalEnhancer
	Queue          queue.Queue
	MaxUploadBytes int64
	Logger         *infra.Logger
}

// Service implements the upload and enhancement workflow.
type Service struct {
	ledger   domain.JobLedger
	counter  domain.Counter
	store    ObjectStore
	provider Provider
	enhancer LocalEnhancer
	queue    queue.Queue
	maxBytes int64
	logger   *infra.Logger

	newID func() string
	now   func() time.Time
}

func NewService(opts Options) (*Service, error) {
	if opts.Ledger == nil {
		return nil, errors.New("enhancement: ledger is required")
	}
	if opts.Store == nil {
		return nil, errors.New("enhancement: store is required")
	}
	maxBytes := opts.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = files.MaxUploadBytes
	}
	return &Service{
		ledger:   opts.Ledger,
		counter:  opts.Counter,
		store:    opts.Store,
		provider: opts.Provider,
		enhancer: opts.Enhancer,
		queue:    opts.Queue,
		maxBytes: maxBytes,
		logger:   infra.LoggerOrDiscard(opts.Logger),
		newID:    uuid.NewString,
		now:      time.Now,
	}, nil
}

// SetQueue attaches the queue used by Upload. The queue usually needs the
// service's ProcessUpload as its handler, so it is wired after construction.
func (s *Service) SetQueue(q queue.Queue) {
	s.queue = q
}

// DefaultConfig returns the feature selection used when callers omit one.
func (s *Service) DefaultConfig() domain.FeatureConfig {
	return runpod.DefaultFeatureConfig()
}

func (s *Service) providerReady() bool {
	return s.provider != nil && s.provider.Configured()
}

// Upload validates and stores an image, then schedules its enhancement.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	if in.Body == nil {
		return nil, fmt.Errorf("%w: no file part", domain.ErrValidation)
	}
	if err := files.Validate(in.Filename, in.Size, s.maxBytes); err != nil {
		return nil, err
	}

	key := s.nextKey(ctx, in.Filename)
	uploads := s.store.Uploads()
	key, n, err := uploads.WriteFrom(ctx, key, io.LimitReader(in.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}
	path, err := uploads.Path(key)
	if err != nil {
		return nil, err
	}
	if n > s.maxBytes {
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: file exceeds %d bytes", domain.ErrTooLarge, s.maxBytes)
	}

	loc := s.store.Put(ctx, path, key, storage.DirUploads)
	log := s.logger.With().Str("image_id", key).Str("storage_type", loc.Kind).Logger()
	log.Info().Int64("bytes", n).Msg("upload stored")

	if s.queue == nil {
		log.Warn().Msg("no queue configured, enhancement not scheduled")
	} else if err := s.queue.Enqueue(ctx, queue.Task{
		Kind:        queue.KindEnhanceUpload,
		ImageID:     key,
		OriginalURL: loc.URL,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to schedule enhancement")
	}

	return &UploadResult{
		FileName:            key,
		OriginalURL:         loc.URL,
		FileURL:             s.store.ProxyURL(loc.URL),
		StorageKind:         loc.Kind,
		Status:              UploadProcessing,
		JobCreationDeferred: true,
	}, nil
}

func (s *Service) nextKey(ctx context.Context, name string) string {
	if s.counter != nil {
		seq, err := s.counter.Next(ctx, repo.CounterImageUpload)
		if err == nil {
			return files.Key(seq, name)
		}
		s.logger.Warn().Err(err).Msg("upload counter unavailable, using timestamp key")
	}
	return strconv.FormatInt(s.now().UnixNano(), 10) + "_" + files.Sanitize(name)
}

// CreateJob submits imageID to the provider and records the job. No ledger row
// is written when the submission fails.
func (s *Service) CreateJob(ctx context.Context, in CreateJobInput) (*domain.Job, error) {
	imageID := strings.TrimSpace(in.ImageID)
	if imageID == "" {
		return nil, fmt.Errorf("%w: image_id is required", domain.ErrValidation)
	}
	if !s.providerReady() {
		return nil, fmt.Errorf("%w: enhancement provider not configured", domain.ErrUpstreamUnavailable)
	}
	cfg := in.Config.Clone()
	if len(cfg) == 0 {
		cfg = s.DefaultConfig()
	}

	submitted, err := s.provider.Submit(ctx, imageID, cfg)
	if err != nil {
		return nil, err
	}

	job := &domain.Job{
		JobID:       submitted.JobID,
		ImageID:     imageID,
		OriginalURL: in.OriginalURL,
		Config:      cfg,
		State:       domain.JobStateProcessing,
		Progress:    10,
	}
	if _, err := s.ledger.Create(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.JobID).Str("image_id", imageID).Msg("submitted job could not be recorded")
		return nil, fmt.Errorf("record job %s: %w", job.JobID, err)
	}
	s.logger.Info().Str("job_id", job.JobID).Str("image_id", imageID).Msg("enhancement job created")
	return job, nil
}

// CheckStatus refreshes a job from the provider and returns the recorded view.
// Terminal and local jobs are answered from the ledger alone.
func (s *Service) CheckStatus(ctx context.Context, jobID string) (*StatusView, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, fmt.Errorf("%w: job id is required", domain.ErrValidation)
	}

	job, err := s.ledger.Get(ctx, jobID)
	switch {
	case err == nil:
		if domain.IsLocalJob(jobID) || job.State.Terminal() || !s.providerReady() {
			return &StatusView{Job: job}, nil
		}
	case errors.Is(err, domain.ErrLedgerUnavailable):
		if domain.IsLocalJob(jobID) || !s.providerReady() {
			return nil, err
		}
		return s.degradedStatus(ctx, jobID)
	default:
		return nil, err
	}

	poll, perr := s.provider.Poll(ctx, jobID)
	if perr != nil || poll.Transient {
		s.logger.Warn().Err(perr).Str("job_id", jobID).Msg("status poll failed, serving recorded state")
		return &StatusView{Job: job, Transient: true}, nil
	}

	if err := s.ledger.UpdateOnPoll(ctx, updateFromPoll(jobID, poll)); err != nil {
		if errors.Is(err, domain.ErrLedgerUnavailable) {
			return &StatusView{Job: jobFromPoll(jobID, poll), ProviderStatus: poll.ProviderStatus, Degraded: true}, nil
		}
		return nil, err
	}

	refreshed, err := s.ledger.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrLedgerUnavailable) {
			return &StatusView{Job: jobFromPoll(jobID, poll), ProviderStatus: poll.ProviderStatus, Degraded: true}, nil
		}
		return nil, err
	}
	return &StatusView{Job: refreshed, ProviderStatus: poll.ProviderStatus}, nil
}

func (s *Service) degradedStatus(ctx context.Context, jobID string) (*StatusView, error) {
	poll, err := s.provider.Poll(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: status unavailable: %v", domain.ErrLedgerUnavailable, err)
	}
	s.logger.Warn().Str("job_id", jobID).Msg("ledger unavailable, serving provider status")
	return &StatusView{Job: jobFromPoll(jobID, poll), ProviderStatus: poll.ProviderStatus, Degraded: true}, nil
}

func updateFromPoll(jobID string, poll runpod.PollResult) domain.JobUpdate {
	update := domain.JobUpdate{JobID: jobID, State: poll.State, Progress: poll.Progress}
	switch poll.State {
	case domain.JobStateCompleted:
		if poll.Result.URL != "" {
			url := poll.Result.URL
			update.ResultURL = &url
		}
	case domain.JobStateFailed:
		msg := poll.Error
		update.Error = &msg
	}
	return update
}

func jobFromPoll(jobID string, poll runpod.PollResult) *domain.Job {
	job := &domain.Job{JobID: jobID, State: poll.State}
	if poll.Progress != nil {
		job.Progress = *poll.Progress
	}
	if poll.Result.URL != "" {
		url := poll.Result.URL
		job.EnhancedURL = &url
	}
	if poll.Error != "" && poll.State == domain.JobStateFailed {
		msg := poll.Error
		job.Error = &msg
	}
	return job
}

// FetchResult returns the enhanced image of a completed job, asking the
// provider directly when the recorded job has no result yet.
func (s *Service) FetchResult(ctx context.Context, jobID string) (*ResultView, error) {
	view, err := s.CheckStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	job := view.Job
	switch job.State {
	case domain.JobStateCompleted:
	case domain.JobStateFailed:
		return nil, fmt.Errorf("%w: %s", domain.ErrJobFailed, job.ErrorValue())
	default:
		return nil, fmt.Errorf("%w: current status %s", domain.ErrNotCompleted, job.State)
	}

	if url := job.EnhancedURLValue(); url != "" {
		return &ResultView{JobID: jobID, EnhancedURL: s.store.ProxyURL(url)}, nil
	}
	if domain.IsLocalJob(jobID) || !s.providerReady() {
		return nil, fmt.Errorf("%w: no result recorded for %s", domain.ErrNotFound, jobID)
	}

	url, err := s.provider.FetchResult(ctx, jobID)
	if err != nil {
		return nil, err
	}
	progress := 100
	if err := s.ledger.UpdateOnPoll(ctx, domain.JobUpdate{
		JobID:     jobID,
		State:     domain.JobStateCompleted,
		Progress:  &progress,
		ResultURL: &url,
	}); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to record fetched result")
	}
	return &ResultView{JobID: jobID, EnhancedURL: s.store.ProxyURL(url)}, nil
}

// UploadStatus reports the processing state of an upload by its image id.
func (s *Service) UploadStatus(ctx context.Context, imageID string) (*UploadView, error) {
	imageID = strings.TrimSpace(imageID)
	if imageID == "" {
		return nil, fmt.Errorf("%w: image id is required", domain.ErrValidation)
	}

	job, err := s.ledger.LatestForImage(ctx, imageID)
	if err != nil {
		degraded := errors.Is(err, domain.ErrLedgerUnavailable)
		if !degraded && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return s.unrecordedStatus(ctx, imageID, degraded)
	}

	degraded := false
	if !domain.IsLocalJob(job.JobID) && !job.State.Terminal() {
		if view, err := s.CheckStatus(ctx, job.JobID); err == nil {
			job, degraded = view.Job, view.Degraded
		} else {
			s.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("refresh during upload status failed")
		}
	}

	out := &UploadView{
		ImageID:     imageID,
		Status:      UploadProcessing,
		StorageKind: s.store.Locate(ctx, imageID),
		JobID:       job.JobID,
		Progress:    job.Progress,
		Degraded:    degraded,
	}
	switch job.State {
	case domain.JobStateCompleted:
		out.Status = UploadComplete
		if url := job.EnhancedURLValue(); url != "" {
			out.EnhancedURL = s.store.ProxyURL(url)
			break
		}
		url, err := s.completedResult(ctx, imageID, job)
		if err != nil {
			out.Status = UploadProcessing
			s.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("completed job result not yet available")
			break
		}
		out.EnhancedURL = url
	case domain.JobStateFailed:
		out.Status = UploadError
		out.Error = job.ErrorValue()
	}
	return out, nil
}

// completedResult resolves the locator of a completed job recorded without one.
// A provider result of unrecognized shape yields an empty locator and no error:
// the job is complete with a null result.
func (s *Service) completedResult(ctx context.Context, imageID string, job *domain.Job) (string, error) {
	if key := enhance.OutputKey(imageID); s.store.Enhanced().Exists(key) {
		return s.store.LocalURL(storage.DirEnhanced, key), nil
	}
	if domain.IsLocalJob(job.JobID) || !s.providerReady() {
		return "", nil
	}
	res, err := s.FetchResult(ctx, job.JobID)
	switch {
	case err == nil:
		return res.EnhancedURL, nil
	case errors.Is(err, runpod.ErrAmbiguousResult):
		return "", nil
	}
	return "", err
}

// unrecordedStatus answers for an upload without a readable job row from the
// local caches alone.
func (s *Service) unrecordedStatus(ctx context.Context, imageID string, degraded bool) (*UploadView, error) {
	out := &UploadView{
		ImageID:     imageID,
		Status:      UploadProcessing,
		StorageKind: s.store.Locate(ctx, imageID),
		Degraded:    degraded,
	}
	if key := enhance.OutputKey(imageID); s.store.Enhanced().Exists(key) {
		out.Status = UploadComplete
		out.EnhancedURL = s.store.LocalURL(storage.DirEnhanced, key)
		out.Progress = 100
		return out, nil
	}
	if !s.store.Uploads().Exists(imageID) {
		return nil, fmt.Errorf("%w: image %s", domain.ErrNotFound, imageID)
	}
	return out, nil
}

// ListJobs returns the most recent jobs, newest first.
func (s *Service) ListJobs(ctx context.Context, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	jobs, err := s.ledger.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		if jobs[i].EnhancedURL != nil {
			url := s.store.ProxyURL(*jobs[i].EnhancedURL)
			jobs[i].EnhancedURL = &url
		}
	}
	return jobs, nil
}
