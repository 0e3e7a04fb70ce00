package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"skinstudio/internal/domain"
	"skinstudio/internal/enhancement"
	"skinstudio/internal/infra"
	"skinstudio/internal/providers/runpod"
	"skinstudio/internal/storage"
)

// Enhancements is the workflow the HTTP surface exposes.
type Enhancements interface {
	Upload(ctx context.Context, in enhancement.UploadInput) (*enhancement.UploadResult, error)
	CreateJob(ctx context.Context, in enhancement.CreateJobInput) (*domain.Job, error)
	CheckStatus(ctx context.Context, jobID string) (*enhancement.StatusView, error)
	FetchResult(ctx context.Context, jobID string) (*enhancement.ResultView, error)
	UploadStatus(ctx context.Context, imageID string) (*enhancement.UploadView, error)
	ListJobs(ctx context.Context, limit int) ([]domain.Job, error)
	DefaultConfig() domain.FeatureConfig
}

// Files serves stored images.
type Files interface {
	Open(ctx context.Context, key string) (*os.File, error)
	Uploads() *storage.FileStore
	Enhanced() *storage.FileStore
	ProxyURL(raw string) string
}

type App struct {
	Service        Enhancements
	Files          Files
	Logger         *infra.Logger
	MaxUploadBytes int64
	// Ping reports database health. Nil means no database is configured.
	Ping func(ctx context.Context) error
}

func NewApp(service Enhancements, files Files, logger *infra.Logger, maxUploadBytes int64) *App {
	return &App{
		Service:        service,
		Files:          files,
		Logger:         infra.LoggerOrDiscard(logger),
		MaxUploadBytes: maxUploadBytes,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"success": false,
		"error":   message,
		"code":    code,
	})
}

// fail maps service errors onto HTTP responses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, domain.ErrValidation):
		status, code = http.StatusBadRequest, "bad_request"
	case errors.Is(err, domain.ErrTooLarge):
		status, code = http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrNotCompleted):
		status, code = http.StatusAccepted, "pending"
	case errors.Is(err, domain.ErrJobFailed):
		status, code = http.StatusConflict, "job_failed"
	case errors.Is(err, runpod.ErrAmbiguousResult):
		status, code = http.StatusBadGateway, "result_unavailable"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		status, code = http.StatusBadGateway, "upstream_unavailable"
	case errors.Is(err, domain.ErrLedgerUnavailable):
		status, code = http.StatusServiceUnavailable, "ledger_unavailable"
	}

	ev := a.Logger.Warn()
	if status >= http.StatusInternalServerError {
		ev = a.Logger.Error()
	}
	ev.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	a.error(w, status, code, message)
}
