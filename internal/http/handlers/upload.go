package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"skinstudio/internal/domain"
	"skinstudio/internal/enhancement"
	"skinstudio/internal/storage"
)

const multipartMemory = 1 << 20

// Upload accepts a multipart image in the "file" field.
func (a *App) Upload(w http.ResponseWriter, r *http.Request) {
	if a.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			a.fail(w, r, fmt.Errorf("%w: file exceeds %d bytes", domain.ErrTooLarge, a.MaxUploadBytes))
			return
		}
		a.fail(w, r, fmt.Errorf("%w: no file part", domain.ErrValidation))
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		a.fail(w, r, fmt.Errorf("%w: no file part", domain.ErrValidation))
		return
	}
	defer file.Close()

	res, err := a.Service.Upload(r.Context(), enhancement.UploadInput{
		Filename: header.Filename,
		Size:     header.Size,
		Body:     file,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"success":               true,
		"message":               "File uploaded successfully",
		"file_name":             res.FileName,
		"file_url":              res.FileURL,
		"original_url":          res.OriginalURL,
		"storage_type":          res.StorageKind,
		"is_b2":                 res.StorageKind == storage.KindB2,
		"status":                res.Status,
		"job_creation_deferred": res.JobCreationDeferred,
	})
}

// UploadStatus reports the enhancement progress of an upload.
func (a *App) UploadStatus(w http.ResponseWriter, r *http.Request) {
	view, err := a.Service.UploadStatus(r.Context(), chi.URLParam(r, "imageId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	body := map[string]any{
		"success":      true,
		"image_id":     view.ImageID,
		"status":       view.Status,
		"storage_type": view.StorageKind,
		"progress":     view.Progress,
	}
	if view.EnhancedURL != "" {
		body["enhanced_url"] = view.EnhancedURL
	}
	if view.JobID != "" {
		body["job_id"] = view.JobID
	}
	if view.Error != "" {
		body["error"] = view.Error
	}
	if view.Degraded {
		body["degraded"] = true
	}
	a.json(w, http.StatusOK, body)
}
