package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/trainboard/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid model status transition")

// MaxTrainingRows caps the dataset rows copied onto a model at training time.
const MaxTrainingRows = 100

// Store is the data access interface. All database operations go through here.
// Every user-facing read and write is scoped by user ID.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, userID string) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, userID string) error

	CreateDataset(ctx context.Context, ds *models.Dataset, data DatasetData) error
	ListDatasets(ctx context.Context, userID string) ([]models.Dataset, error)
	GetDataset(ctx context.Context, id uuid.UUID, userID string) (*models.Dataset, error)
	GetDatasetRows(ctx context.Context, id uuid.UUID, userID string, limit int) ([]map[string]any, error)

	CreateModel(ctx context.Context, m *models.Model, trainingData []map[string]any) error
	ListModels(ctx context.Context, userID string) ([]models.Model, error)
	GetModel(ctx context.Context, id uuid.UUID, userID string) (*models.Model, error)
	GetTrainingData(ctx context.Context, id uuid.UUID) ([]map[string]any, error)
	UpdateModelStatus(ctx context.Context, id uuid.UUID, status models.ModelStatus, opts ...ModelUpdateOption) error
	ListUnfinishedModels(ctx context.Context) ([]models.Model, error)

	CreateDeployment(ctx context.Context, d *models.Deployment) error
	ListDeployments(ctx context.Context, userID string) ([]models.Deployment, error)
	IncrementUsage(ctx context.Context, modelID uuid.UUID, userID string) (int64, error)

	Stats(ctx context.Context, userID string) (models.Stats, error)
}

// DatasetData is the parsed content stored alongside a dataset record.
type DatasetData struct {
	Rows        []map[string]any
	Fingerprint string
}

// ModelUpdate carries the optional fields of a status update.
type ModelUpdate struct {
	ErrorMessage *string
}

type ModelUpdateOption func(*ModelUpdate)

func WithErrorMessage(msg string) ModelUpdateOption {
	return func(p *ModelUpdate) {
		p.ErrorMessage = &msg
	}
}

// ResolveModelUpdate applies opts to an empty ModelUpdate.
func ResolveModelUpdate(opts ...ModelUpdateOption) ModelUpdate {
	var u ModelUpdate
	for _, opt := range opts {
		opt(&u)
	}
	return u
}
