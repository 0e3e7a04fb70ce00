package enhancement

import (
	"context"
	"errors"
	"fmt"

	"skinstudio/internal/domain"
	"skinstudio/internal/enhance"
	"skinstudio/internal/queue"
	"skinstudio/internal/storage"
)

// ProcessUpload is the queue handler for accepted uploads. It prefers the
// remote provider and falls back to the local enhancer when the provider is
// not configured or refuses the submission. A returned error asks the queue to
// retry.
func (s *Service) ProcessUpload(ctx context.Context, task queue.Task) error {
	if task.Kind != "" && task.Kind != queue.KindEnhanceUpload {
		s.logger.Error().Str("kind", task.Kind).Str("image_id", task.ImageID).Msg("dropping task of unknown kind")
		return nil
	}
	log := s.logger.With().Str("image_id", task.ImageID).Int("attempt", task.Attempt).Logger()

	if s.providerReady() {
		job, err := s.CreateJob(ctx, CreateJobInput{ImageID: task.ImageID, OriginalURL: task.OriginalURL})
		if err == nil {
			log.Info().Str("job_id", job.JobID).Msg("upload submitted to provider")
			return nil
		}
		if !errors.Is(err, domain.ErrUpstreamUnavailable) {
			// The provider accepted the job; resubmitting would duplicate it.
			log.Error().Err(err).Msg("provider job accepted but not recorded")
			return nil
		}
		log.Warn().Err(err).Msg("provider submission failed, enhancing locally")
	}
	return s.enhanceLocally(ctx, task)
}

func (s *Service) enhanceLocally(ctx context.Context, task queue.Task) error {
	if s.enhancer == nil {
		return fmt.Errorf("%w: no enhancer available", domain.ErrUpstreamUnavailable)
	}

	src, err := s.store.Open(ctx, task.ImageID)
	if err != nil {
		return fmt.Errorf("open upload %s: %w", task.ImageID, err)
	}
	srcPath := src.Name()
	_ = src.Close()

	jobID := domain.LocalJobPrefix + s.newID()
	log := s.logger.With().Str("image_id", task.ImageID).Str("job_id", jobID).Logger()

	job := &domain.Job{
		JobID:       jobID,
		ImageID:     task.ImageID,
		OriginalURL: task.OriginalURL,
		Config:      s.DefaultConfig(),
		State:       domain.JobStateProcessing,
		Progress:    10,
	}
	recorded := true
	if _, err := s.ledger.Create(ctx, job); err != nil {
		if !errors.Is(err, domain.ErrLedgerUnavailable) {
			return fmt.Errorf("record local job: %w", err)
		}
		recorded = false
		log.Warn().Err(err).Msg("ledger unavailable, local job not recorded")
	}

	outKey := enhance.OutputKey(task.ImageID)
	dst, err := s.store.Enhanced().Path(outKey)
	if err != nil {
		return err
	}

	if err := s.enhancer.EnhanceFile(ctx, srcPath, dst); err != nil {
		log.Error().Err(err).Msg("local enhancement failed")
		if recorded {
			s.recordLocal(ctx, domain.JobUpdate{JobID: jobID, State: domain.JobStateFailed, Progress: intPtr(0), Error: strPtr(err.Error())})
		}
		return nil
	}

	loc := s.store.Put(ctx, dst, outKey, storage.DirEnhanced)
	log.Info().Str("storage_type", loc.Kind).Str("url", loc.URL).Msg("local enhancement completed")
	if recorded {
		s.recordLocal(ctx, domain.JobUpdate{JobID: jobID, State: domain.JobStateCompleted, Progress: intPtr(100), ResultURL: &loc.URL})
	}
	return nil
}

func (s *Service) recordLocal(ctx context.Context, update domain.JobUpdate) {
	if err := s.ledger.UpdateOnPoll(ctx, update); err != nil {
		s.logger.Error().Err(err).Str("job_id", update.JobID).Msg("failed to record local job state")
	}
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }
