package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/kiranshivaraju/trainboard/internal/api/response"
	"github.com/kiranshivaraju/trainboard/internal/store"
	"github.com/kiranshivaraju/trainboard/internal/training"
	"github.com/kiranshivaraju/trainboard/pkg/models"
)

// multipartOverhead is allowed on top of the file for form fields and boundaries.
const multipartOverhead = 1 << 20

// NewListDatasetsHandler returns an http.HandlerFunc for GET /api/datasets.
func NewListDatasetsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		datasets, err := st.ListDatasets(r.Context(), userID)
		if err != nil {
			writeInternalError(w, r, err)
			return
		}
		response.JSON(w, datasets)
	}
}

// NewUploadDatasetHandler returns an http.HandlerFunc for
// POST /api/datasets/upload (multipart: file, name).
func NewUploadDatasetHandler(svc Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, models.MaxUploadBytes+multipartOverhead)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeServiceError(w, r, training.ErrFileTooLarge)
				return
			}
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Expected a multipart form", nil)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "file is required", nil)
			return
		}
		defer file.Close()

		content, err := io.ReadAll(io.LimitReader(file, models.MaxUploadBytes+1))
		if err != nil {
			writeInternalError(w, r, fmt.Errorf("reading upload: %w", err))
			return
		}

		ds, err := svc.Ingest(r.Context(), training.IngestParams{
			UserID:   userID,
			Name:     r.FormValue("name"),
			Filename: header.Filename,
			Content:  content,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, ds)
	}
}
