package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"skinstudio/internal/domain"
	"skinstudio/internal/enhancement"
)

type createJobRequest struct {
	ImageID           string               `json:"image_id"`
	OriginalImageURL  string               `json:"original_image_url"`
	FaceParsingConfig domain.FeatureConfig `json:"face_parsing_config"`
}

type jobView struct {
	ID                int64                `json:"id"`
	JobID             string               `json:"job_id"`
	ImageID           string               `json:"image_id"`
	OriginalImageURL  string               `json:"original_image_url"`
	EnhancedImageURL  *string              `json:"enhanced_image_url"`
	FaceParsingConfig domain.FeatureConfig `json:"face_parsing_config"`
	Status            domain.JobState      `json:"status"`
	Progress          int                  `json:"progress"`
	ErrorMessage      *string              `json:"error_message"`
	CreatedAt         *time.Time           `json:"created_at,omitempty"`
	UpdatedAt         *time.Time           `json:"updated_at,omitempty"`
}

func toJobView(job *domain.Job) jobView {
	v := jobView{
		ID:                job.ID,
		JobID:             job.JobID,
		ImageID:           job.ImageID,
		OriginalImageURL:  job.OriginalURL,
		EnhancedImageURL:  job.EnhancedURL,
		FaceParsingConfig: job.Config,
		Status:            job.State,
		Progress:          job.Progress,
		ErrorMessage:      job.Error,
	}
	if !job.CreatedAt.IsZero() {
		created, updated := job.CreatedAt, job.UpdatedAt
		v.CreatedAt, v.UpdatedAt = &created, &updated
	}
	return v
}

// CreateJob submits an enhancement for an uploaded image.
func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.fail(w, r, fmt.Errorf("%w: invalid payload", domain.ErrValidation))
		return
	}
	job, err := a.Service.CreateJob(r.Context(), enhancement.CreateJobInput{
		ImageID:     req.ImageID,
		OriginalURL: req.OriginalImageURL,
		Config:      req.FaceParsingConfig,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"success":  true,
		"job_id":   job.JobID,
		"status":   job.State,
		"progress": job.Progress,
		"message":  "Enhancement job started successfully",
	})
}

// JobStatus refreshes and returns a job.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	view, err := a.Service.CheckStatus(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	job := toJobView(view.Job)
	if job.EnhancedImageURL != nil {
		proxied := a.Files.ProxyURL(*job.EnhancedImageURL)
		job.EnhancedImageURL = &proxied
	}
	body := map[string]any{
		"success":  true,
		"job":      job,
		"degraded": view.Degraded,
	}
	if view.ProviderStatus != "" {
		body["provider_status"] = view.ProviderStatus
	}
	a.json(w, http.StatusOK, body)
}

// JobResult returns the enhanced image URL of a completed job.
func (a *App) JobResult(w http.ResponseWriter, r *http.Request) {
	res, err := a.Service.FetchResult(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		if errors.Is(err, domain.ErrNotCompleted) {
			a.json(w, http.StatusAccepted, map[string]any{
				"success": false,
				"status":  "pending",
				"error":   err.Error(),
			})
			return
		}
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"success":            true,
		"job_id":             res.JobID,
		"enhanced_image_url": res.EnhancedURL,
	})
}

// ListJobs returns recent jobs, newest first.
func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			a.fail(w, r, fmt.Errorf("%w: limit must be an integer", domain.ErrValidation))
			return
		}
		limit = n
	}
	jobs, err := a.Service.ListJobs(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]jobView, 0, len(jobs))
	for i := range jobs {
		items = append(items, toJobView(&jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "jobs": items, "count": len(items)})
}

// DefaultConfig returns the default face parsing selection.
func (a *App) DefaultConfig(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"success": true, "config": a.Service.DefaultConfig()})
}
