package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/trainboard/internal/api/response"
	"github.com/kiranshivaraju/trainboard/internal/store"
	"github.com/kiranshivaraju/trainboard/internal/training"
	"github.com/kiranshivaraju/trainboard/pkg/models"
)

// NewListModelsHandler returns an http.HandlerFunc for GET /api/models.
func NewListModelsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		list, err := st.ListModels(r.Context(), userID)
		if err != nil {
			writeInternalError(w, r, err)
			return
		}
		response.JSON(w, list)
	}
}

// NewTrainHandler returns an http.HandlerFunc for POST /api/models/train
// (multipart: dataset_id, model_name, custom_prompt). Training continues in
// the background; the pending model is returned immediately.
func NewTrainHandler(svc Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Expected a multipart form", nil)
			return
		}

		datasetID, err := uuid.Parse(r.FormValue("dataset_id"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "dataset_id must be a valid UUID", nil)
			return
		}

		model, err := svc.StartTraining(r.Context(), training.TrainParams{
			UserID:       userID,
			DatasetID:    datasetID,
			Name:         r.FormValue("model_name"),
			CustomPrompt: r.FormValue("custom_prompt"),
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, model)
	}
}

type inferenceRequest struct {
	InputText string `json:"input_text"`
}

// NewTestModelHandler returns an http.HandlerFunc for POST /api/models/{id}/test.
func NewTestModelHandler(svc Lifecycle) http.HandlerFunc {
	return inferenceHandler(svc.Infer)
}

// NewPredictHandler returns an http.HandlerFunc for POST /api/models/{id}/predict.
// Each successful call counts toward the deployment's usage.
func NewPredictHandler(svc Lifecycle) http.HandlerFunc {
	return inferenceHandler(svc.Predict)
}

type inferFunc = func(ctx context.Context, userID string, modelID uuid.UUID, input string) (*models.InferenceResult, error)

func inferenceHandler(run inferFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		modelID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		var req inferenceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		result, err := run(r.Context(), userID, modelID, req.InputText)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, result)
	}
}

// NewListDeploymentsHandler returns an http.HandlerFunc for GET /api/models/deployed.
func NewListDeploymentsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		list, err := st.ListDeployments(r.Context(), userID)
		if err != nil {
			writeInternalError(w, r, err)
			return
		}
		response.JSON(w, list)
	}
}

// NewDeployHandler returns an http.HandlerFunc for POST /api/models/{id}/deploy.
func NewDeployHandler(svc Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		modelID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		d, err := svc.Deploy(r.Context(), userID, modelID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, d)
	}
}
