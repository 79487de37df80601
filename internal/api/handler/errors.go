package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/trainboard/internal/api/middleware"
	"github.com/kiranshivaraju/trainboard/internal/api/response"
	"github.com/kiranshivaraju/trainboard/internal/inference"
	"github.com/kiranshivaraju/trainboard/internal/training"
	"github.com/kiranshivaraju/trainboard/pkg/models"
)

// writeServiceError maps training and inference errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, training.ErrInvalidInput):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	case errors.Is(err, training.ErrUnsupportedFile):
		response.Error(w, http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE",
			"Only csv, json and txt files are supported",
			map[string]any{"allowed": models.SupportedFileTypes})
	case errors.Is(err, training.ErrFileTooLarge):
		response.Error(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE",
			"File exceeds the 100MB upload limit", nil)
	case errors.Is(err, training.ErrUnreadableDataset):
		response.Error(w, http.StatusBadRequest, "INVALID_FILE", err.Error(), nil)
	case errors.Is(err, training.ErrDatasetNotFound):
		response.Error(w, http.StatusNotFound, "DATASET_NOT_FOUND", "Dataset not found", nil)
	case errors.Is(err, training.ErrModelNotFound):
		response.Error(w, http.StatusNotFound, "MODEL_NOT_FOUND", "Model not found", nil)
	case errors.Is(err, training.ErrModelNotReady):
		response.Error(w, http.StatusBadRequest, "MODEL_NOT_READY",
			"Model must finish training first", nil)
	case errors.Is(err, training.ErrAlreadyDeployed):
		response.Error(w, http.StatusConflict, "ALREADY_DEPLOYED", "Model is already deployed", nil)
	case errors.Is(err, training.ErrNotDeployed):
		response.Error(w, http.StatusNotFound, "NOT_DEPLOYED", "Model has no active deployment", nil)
	case errors.Is(err, inference.ErrProviderUnavailable):
		response.Error(w, http.StatusBadGateway, "INFERENCE_PROVIDER_UNAVAILABLE",
			"The inference provider is not available", nil)
	case errors.Is(err, inference.ErrInferenceTimeout):
		response.Error(w, http.StatusGatewayTimeout, "INFERENCE_TIMEOUT",
			"Inference took too long and was cancelled", nil)
	case errors.Is(err, inference.ErrInvalidResponse):
		response.Error(w, http.StatusBadGateway, "INFERENCE_INVALID_RESPONSE",
			"The inference provider returned an invalid response", nil)
	default:
		writeInternalError(w, r, err)
	}
}

func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
		"An unexpected error occurred", nil)
}

// requireUser returns the authenticated user or writes a 401.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := mw.GetUserID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
	}
	return userID, ok
}

// pathUUID parses a UUID route parameter or writes a 400.
func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", param+" must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}
