package handler

import (
	"context"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/trainboard/internal/training"
	"github.com/kiranshivaraju/trainboard/pkg/models"
)

// Lifecycle defines the mutations the handlers depend on.
type Lifecycle interface {
	Ingest(ctx context.Context, p training.IngestParams) (*models.Dataset, error)
	StartTraining(ctx context.Context, p training.TrainParams) (*models.Model, error)
	Infer(ctx context.Context, userID string, modelID uuid.UUID, input string) (*models.InferenceResult, error)
	Predict(ctx context.Context, userID string, modelID uuid.UUID, input string) (*models.InferenceResult, error)
	Deploy(ctx context.Context, userID string, modelID uuid.UUID) (*models.Deployment, error)
}

var _ Lifecycle = (*training.Service)(nil)
