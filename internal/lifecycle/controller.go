// Package lifecycle gates and executes the dataset/model lifecycle actions:
// upload, train, test and deploy. Every precondition is checked against the
// current dashboard snapshot before any request is sent, and every
// successful mutation ends with a full dashboard refresh so callers converge
// on backend truth instead of trusting the mutation's response.
package lifecycle

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/trainboard/internal/client"
	"github.com/kiranshivaraju/trainboard/internal/dashboard"
	"github.com/kiranshivaraju/trainboard/pkg/models"
)

// API is the mutating side of the API client.
type API interface {
	UploadDataset(ctx context.Context, req client.UploadRequest) (*models.Dataset, error)
	TrainModel(ctx context.Context, req client.TrainRequest) (*models.Model, error)
	TestModel(ctx context.Context, modelID uuid.UUID, input string) (*models.InferenceResult, error)
	DeployModel(ctx context.Context, modelID uuid.UUID) (*models.Deployment, error)
}

// Store is the part of the dashboard store the controller reads and refreshes.
type Store interface {
	Snapshot() *dashboard.Snapshot
	Refresh(ctx context.Context) error
}

// File is a dataset upload candidate. Size is the declared length checked
// against the upload limit; Content must yield at least one byte.
type File struct {
	Name    string
	Size    int64
	Content io.Reader
}

// Controller holds no canonical state: only the session's test history and
// the in-flight markers for deploy and test.
type Controller struct {
	api    API
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	deploying mapset.Set[uuid.UUID]
	testing   bool
	history   []models.TestResult
}

// New creates a Controller.
func New(api API, store Store, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		api:       api,
		store:     store,
		logger:    logger,
		now:       time.Now,
		deploying: mapset.NewThreadUnsafeSet[uuid.UUID](),
	}
}

// UploadDataset validates and uploads a dataset file.
func (c *Controller) UploadDataset(ctx context.Context, file File, name string) (*models.Dataset, error) {
	name = strings.TrimSpace(name)

	if file.Content == nil || file.Size <= 0 {
		return nil, invalid(OpUpload, ErrEmptyFile, file.Name)
	}
	if name == "" {
		return nil, invalid(OpUpload, ErrNameRequired, "")
	}
	if !models.FileTypeOf(file.Name).Valid() {
		return nil, invalid(OpUpload, ErrUnsupportedFileType,
			fmt.Sprintf("%q, allowed: %s", file.Name, allowedFileTypes()))
	}
	if file.Size > models.MaxUploadBytes {
		return nil, invalid(OpUpload, ErrFileTooLarge, fmt.Sprintf("%d bytes", file.Size))
	}

	content := bufio.NewReader(file.Content)
	if _, err := content.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, invalid(OpUpload, ErrEmptyFile, file.Name)
		}
		return nil, fmt.Errorf("%w: reading %s: %w", ErrUploadFailed, file.Name, err)
	}

	dataset, err := c.api.UploadDataset(ctx, client.UploadRequest{
		Name:     name,
		Filename: file.Name,
		Content:  content,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	c.logger.Info("dataset uploaded", "dataset_id", dataset.ID, "name", dataset.Name)

	c.refresh(ctx, OpUpload)
	return dataset, nil
}

// TrainModel requests training of a new model on an existing dataset. It
// returns as soon as the backend has accepted the request; the model's
// progress is only observable through later refreshes.
func (c *Controller) TrainModel(ctx context.Context, datasetID uuid.UUID, modelName, customPrompt string) (*models.Model, error) {
	modelName = strings.TrimSpace(modelName)
	customPrompt = strings.TrimSpace(customPrompt)

	if modelName == "" {
		return nil, invalid(OpTrain, ErrNameRequired, "")
	}
	if customPrompt == "" {
		return nil, invalid(OpTrain, ErrPromptRequired, "")
	}
	snap := c.store.Snapshot()
	if snap == nil {
		return nil, invalid(OpTrain, ErrSnapshotUnavailable, "")
	}
	if _, ok := snap.Dataset(datasetID); !ok {
		return nil, invalid(OpTrain, ErrDatasetNotFound, datasetID.String())
	}

	model, err := c.api.TrainModel(ctx, client.TrainRequest{
		DatasetID:    datasetID,
		ModelName:    modelName,
		CustomPrompt: customPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTrainingRequestFailed, err)
	}
	c.logger.Info("training requested", "model_id", model.ID, "dataset_id", datasetID, "status", model.Status)

	c.refresh(ctx, OpTrain)
	return model, nil
}

// TestModel runs one inference against a completed model and records the
// result at the front of the session history. It does not touch the
// dashboard store.
func (c *Controller) TestModel(ctx context.Context, modelID uuid.UUID, input string) (models.TestResult, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return models.TestResult{}, invalid(OpTest, ErrInputRequired, "")
	}
	if err := c.requireCompleted(OpTest, modelID); err != nil {
		return models.TestResult{}, err
	}

	c.mu.Lock()
	if c.testing {
		c.mu.Unlock()
		return models.TestResult{}, invalid(OpTest, ErrTestInFlight, "")
	}
	c.testing = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.testing = false
		c.mu.Unlock()
	}()

	res, err := c.api.TestModel(ctx, modelID, input)
	if err != nil {
		return models.TestResult{}, fmt.Errorf("%w: %w", ErrTestRequestFailed, err)
	}

	result := models.TestResult{
		ModelID:        modelID,
		Input:          input,
		Output:         res.Output,
		Confidence:     res.Confidence,
		ProcessingTime: res.ProcessingTime,
		Timestamp:      c.now().UTC(),
	}

	c.mu.Lock()
	c.history = slices.Insert(c.history, 0, result)
	c.mu.Unlock()

	return result, nil
}

// DeployModel creates a deployment for a completed, undeployed model. A
// second call for the same model while the first is still running is
// rejected locally. The snapshot membership check is the real duplicate
// guard; the backend remains the final arbiter.
func (c *Controller) DeployModel(ctx context.Context, modelID uuid.UUID) (*models.Deployment, error) {
	c.mu.Lock()
	if c.deploying.Contains(modelID) {
		c.mu.Unlock()
		return nil, invalid(OpDeploy, ErrDeployInFlight, modelID.String())
	}
	if err := c.requireCompleted(OpDeploy, modelID); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.store.Snapshot().DeployedModelIDs().Contains(modelID) {
		c.mu.Unlock()
		return nil, invalid(OpDeploy, ErrAlreadyDeployed, modelID.String())
	}
	c.deploying.Add(modelID)
	c.mu.Unlock()

	// Held until the refresh below has landed.
	defer func() {
		c.mu.Lock()
		c.deploying.Remove(modelID)
		c.mu.Unlock()
	}()

	deployment, err := c.api.DeployModel(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeployRequestFailed, err)
	}
	c.logger.Info("model deployed", "model_id", modelID, "endpoint", deployment.APIEndpoint)

	c.refresh(ctx, OpDeploy)
	return deployment, nil
}

// History returns the session's test results, most recent first.
func (c *Controller) History() []models.TestResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.history)
}

// ClearHistory drops all recorded test results.
func (c *Controller) ClearHistory() {
	c.mu.Lock()
	c.history = nil
	c.mu.Unlock()
}

// Deploying reports whether a deploy request for modelID is in flight.
func (c *Controller) Deploying(modelID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deploying.Contains(modelID)
}

// Testing reports whether a test request is in flight.
func (c *Controller) Testing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.testing
}

func (c *Controller) requireCompleted(op Op, modelID uuid.UUID) error {
	snap := c.store.Snapshot()
	if snap == nil {
		return invalid(op, ErrSnapshotUnavailable, "")
	}
	m, ok := snap.Model(modelID)
	if !ok {
		return invalid(op, ErrModelNotFound, modelID.String())
	}
	if m.Status != models.ModelStatusCompleted {
		return invalid(op, ErrModelNotCompleted, "status "+string(m.Status))
	}
	return nil
}

// refresh converges the store after a successful mutation. A failure here
// is visible through the store's error state and does not undo the
// mutation, so it is only logged.
func (c *Controller) refresh(ctx context.Context, op Op) {
	if err := c.store.Refresh(ctx); err != nil {
		c.logger.Warn("refresh after mutation failed", "op", op, "error", err)
	}
}

func allowedFileTypes() string {
	names := make([]string, len(models.SupportedFileTypes))
	for i, t := range models.SupportedFileTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
