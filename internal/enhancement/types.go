package enhancement

import (
	"io"

	"skinstudio/internal/domain"
)

// Upload status strings reported to clients.
const (
	UploadProcessing = "processing"
	UploadComplete   = "complete"
	UploadError      = "error"
)

// UploadInput is one uploaded file. Size may be -1 when unknown; the body is
// then bounded while copying.
type UploadInput struct {
	Filename string
	Size     int64
	Body     io.Reader
}

// UploadResult describes an accepted upload. Job creation always happens in
// the background.
type UploadResult struct {
	FileName            string
	OriginalURL         string
	FileURL             string
	StorageKind         string
	Status              string
	JobCreationDeferred bool
}

// CreateJobInput requests a remote enhancement for an already stored image.
type CreateJobInput struct {
	ImageID     string
	OriginalURL string
	Config      domain.FeatureConfig
}

// StatusView is the current view of a job. Degraded is set when the ledger
// could not be consulted and the view comes straight from the provider.
type StatusView struct {
	Job            *domain.Job
	ProviderStatus string
	Degraded       bool
	Transient      bool
}

// ResultView carries the enhanced image locator of a completed job.
type ResultView struct {
	JobID       string
	EnhancedURL string
}

// UploadView summarizes the processing state of one upload.
type UploadView struct {
	ImageID     string
	Status      string
	EnhancedURL string
	StorageKind string
	JobID       string
	Progress    int
	Error       string
	Degraded    bool
}
