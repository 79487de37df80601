// Package training runs the backend side of the model lifecycle: dataset
// ingestion, asynchronous training, inference against trained models and
// deployment.
package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/trainboard/internal/cache"
	"github.com/kiranshivaraju/trainboard/internal/inference"
	"github.com/kiranshivaraju/trainboard/internal/profile"
	"github.com/kiranshivaraju/trainboard/internal/store"
	"github.com/kiranshivaraju/trainboard/pkg/models"
	"github.com/kiranshivaraju/trainboard/pkg/prompt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrDatasetNotFound   = errors.New("dataset not found")
	ErrModelNotFound     = errors.New("model not found")
	ErrModelNotReady     = errors.New("model is not completed")
	ErrAlreadyDeployed   = errors.New("model is already deployed")
	ErrNotDeployed       = errors.New("model has no active deployment")
	ErrUnsupportedFile   = errors.New("unsupported file type")
	ErrFileTooLarge      = errors.New("file too large")
	ErrUnreadableDataset = errors.New("dataset could not be parsed")
)

// MaxOutputBytes bounds the stored and returned output of one inference.
const MaxOutputBytes = 8000

// Service orchestrates training runs and inference.
type Service struct {
	provider models.InferenceProvider
	store    store.Store
	cache    cache.Cache
	timeout  time.Duration
	delay    time.Duration
	logger   *slog.Logger
	prompts  prompt.Builder

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options tunes a Service. Zero values fall back to the defaults below.
type Options struct {
	// Timeout bounds each provider call.
	Timeout time.Duration
	// TrainingDelay is how long a model stays in "training" before the
	// provider probe runs.
	TrainingDelay time.Duration
	Logger        *slog.Logger
}

const (
	DefaultTimeout       = 60 * time.Second
	DefaultTrainingDelay = 2 * time.Second
)

// NewService creates a new Service. Call Close to stop background runs.
func NewService(provider models.InferenceProvider, st store.Store, ca cache.Cache, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.TrainingDelay < 0 {
		opts.TrainingDelay = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		provider: provider,
		store:    st,
		cache:    ca,
		timeout:  opts.Timeout,
		delay:    opts.TrainingDelay,
		logger:   opts.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Close cancels in-flight training runs and waits for them to return.
// Runs interrupted this way stay pending or training and are picked up by
// Resume on the next start.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until every background run started so far has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// --- Datasets ---

// IngestParams is an uploaded dataset file.
type IngestParams struct {
	UserID   string
	Name     string
	Filename string
	Content  []byte
}

// Ingest parses an uploaded file and stores it as a new dataset.
func (s *Service) Ingest(ctx context.Context, p IngestParams) (*models.Dataset, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	fileType := models.FileTypeOf(p.Filename)
	if !fileType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFile, p.Filename)
	}
	if int64(len(p.Content)) > models.MaxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, len(p.Content))
	}

	prof, err := profile.Parse(p.Content, fileType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableDataset, err)
	}

	ds := &models.Dataset{
		ID:          uuid.New(),
		Name:        name,
		UserID:      p.UserID,
		FileType:    fileType,
		FileSize:    int64(len(p.Content)),
		DataPreview: prof.Preview,
		ColumnCount: prof.ColumnCount,
		RowCount:    prof.RowCount,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateDataset(ctx, ds, store.DatasetData{Rows: prof.Rows, Fingerprint: prof.Fingerprint}); err != nil {
		return nil, fmt.Errorf("creating dataset: %w", err)
	}
	s.invalidateStats(ctx, p.UserID)

	s.logger.Info("dataset uploaded",
		"dataset_id", ds.ID, "user_id", p.UserID, "file_type", fileType, "rows", ds.RowCount)
	return ds, nil
}

// --- Training ---

// TrainParams is a request to train a model over a dataset.
type TrainParams struct {
	UserID       string
	DatasetID    uuid.UUID
	Name         string
	CustomPrompt string
}

// StartTraining creates a pending model and dispatches training in a
// background goroutine. It returns the model without waiting.
func (s *Service) StartTraining(ctx context.Context, p TrainParams) (*models.Model, error) {
	name := strings.TrimSpace(p.Name)
	customPrompt := strings.TrimSpace(p.CustomPrompt)
	if name == "" {
		return nil, fmt.Errorf("%w: model_name is required", ErrInvalidInput)
	}
	if customPrompt == "" {
		return nil, fmt.Errorf("%w: custom_prompt is required", ErrInvalidInput)
	}

	rows, err := s.store.GetDatasetRows(ctx, p.DatasetID, p.UserID, store.MaxTrainingRows)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrDatasetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}

	model := &models.Model{
		ID:           uuid.New(),
		Name:         name,
		UserID:       p.UserID,
		DatasetID:    p.DatasetID,
		Status:       models.ModelStatusPending,
		ModelType:    models.DefaultModelType,
		CustomPrompt: customPrompt,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateModel(ctx, model, rows); err != nil {
		return nil, fmt.Errorf("creating model: %w", err)
	}
	s.invalidateStats(ctx, p.UserID)

	s.dispatch(*model)
	return model, nil
}

// Resume restarts training for every model left pending or training by a
// previous process.
func (s *Service) Resume(ctx context.Context) (int, error) {
	unfinished, err := s.store.ListUnfinishedModels(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing unfinished models: %w", err)
	}
	for _, m := range unfinished {
		s.dispatch(m)
	}
	if len(unfinished) > 0 {
		s.logger.Info("resumed training runs", "count", len(unfinished))
	}
	return len(unfinished), nil
}

func (s *Service) dispatch(m models.Model) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runTraining(m)
	}()
}

// runTraining drives one model to completed or failed. It recovers from
// panics and holds a cache lock so only one process trains a model.
func (s *Service) runTraining(m models.Model) {
	ctx := s.ctx
	logger := s.logger.With("model_id", m.ID, "user_id", m.UserID)

	lockKey := cache.TrainingLockKey(m.ID)
	acquired, err := s.cache.Acquire(ctx, lockKey, s.delay+s.timeout+time.Minute)
	if err != nil {
		// The store's status guard still rejects a second transition.
		logger.Warn("acquire training lock", "error", err)
	} else if !acquired {
		logger.Info("training already running elsewhere")
		return
	} else {
		defer func() {
			if err := s.cache.Delete(context.Background(), lockKey); err != nil {
				logger.Warn("release training lock", "error", err)
			}
		}()
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in runTraining", "error", r)
			s.finish(m, fmt.Errorf("panic: %v", r))
		}
	}()

	if m.Status == models.ModelStatusPending {
		if err := s.store.UpdateModelStatus(ctx, m.ID, models.ModelStatusTraining); err != nil {
			logger.Warn("mark model training", "error", err)
			return
		}
		m.Status = models.ModelStatusTraining
		s.invalidateStats(ctx, m.UserID)
	}

	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			logger.Info("training interrupted by shutdown")
			return
		}
	}

	rows, err := s.store.GetTrainingData(ctx, m.ID)
	if err != nil {
		s.finish(m, fmt.Errorf("reading training data: %w", err))
		return
	}

	params := prompt.Params{CustomPrompt: m.CustomPrompt, Examples: rows}
	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err = s.provider.Generate(probeCtx, models.InferenceRequest{
		SystemPrompt: s.prompts.BuildSystemPrompt(params),
		Input:        s.prompts.BuildProbe(params),
	})
	if ctx.Err() != nil {
		logger.Info("training interrupted by shutdown")
		return
	}
	s.finish(m, inference.Classify(s.provider.Name(), err))
}

// finish records the terminal status of a run. A nil err completes the model.
func (s *Service) finish(m models.Model, runErr error) {
	ctx := context.Background()
	var err error
	if runErr == nil {
		err = s.store.UpdateModelStatus(ctx, m.ID, models.ModelStatusCompleted)
	} else {
		err = s.store.UpdateModelStatus(ctx, m.ID, models.ModelStatusFailed,
			store.WithErrorMessage(truncateString(runErr.Error(), 2000)))
	}
	if err != nil {
		s.logger.Error("record training result", "model_id", m.ID, "error", err)
		return
	}
	s.invalidateStats(ctx, m.UserID)

	if runErr != nil {
		s.logger.Warn("training failed", "model_id", m.ID, "error", runErr)
		return
	}
	s.logger.Info("training completed", "model_id", m.ID, "provider", s.provider.Name())
}

// --- Inference ---

// Infer runs input through a completed model.
func (s *Service) Infer(ctx context.Context, userID string, modelID uuid.UUID, input string) (*models.InferenceResult, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("%w: input_text is required", ErrInvalidInput)
	}

	m, err := s.completedModel(ctx, userID, modelID)
	if err != nil {
		return nil, err
	}
	return s.generate(ctx, m, input)
}

// Predict serves a request against a deployed model and counts it toward
// the deployment's usage.
func (s *Service) Predict(ctx context.Context, userID string, modelID uuid.UUID, input string) (*models.InferenceResult, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("%w: input_text is required", ErrInvalidInput)
	}

	m, err := s.completedModel(ctx, userID, modelID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.IncrementUsage(ctx, modelID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotDeployed
		}
		return nil, fmt.Errorf("recording usage: %w", err)
	}
	s.invalidateStats(ctx, userID)

	return s.generate(ctx, m, input)
}

func (s *Service) completedModel(ctx context.Context, userID string, modelID uuid.UUID) (*models.Model, error) {
	m, err := s.store.GetModel(ctx, modelID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrModelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting model: %w", err)
	}
	if m.Status != models.ModelStatusCompleted {
		return nil, fmt.Errorf("%w: status is %s", ErrModelNotReady, m.Status)
	}
	return m, nil
}

func (s *Service) generate(ctx context.Context, m *models.Model, input string) (*models.InferenceResult, error) {
	rows, err := s.store.GetTrainingData(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("reading training data: %w", err)
	}

	inferCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.provider.Generate(inferCtx, models.InferenceRequest{
		SystemPrompt: s.prompts.BuildSystemPrompt(prompt.Params{CustomPrompt: m.CustomPrompt, Examples: rows}),
		Input:        input,
	})
	if err != nil {
		return nil, inference.Classify(s.provider.Name(), err)
	}

	return &models.InferenceResult{
		Output:         truncateString(resp.Output, MaxOutputBytes),
		Confidence:     inference.ClampConfidence(resp.Confidence),
		ProcessingTime: time.Since(start).Seconds(),
	}, nil
}

// --- Deployment ---

// Deploy exposes a completed model behind its prediction endpoint.
func (s *Service) Deploy(ctx context.Context, userID string, modelID uuid.UUID) (*models.Deployment, error) {
	m, err := s.completedModel(ctx, userID, modelID)
	if err != nil {
		return nil, err
	}

	d := &models.Deployment{
		ID:          uuid.New(),
		Name:        models.DeploymentName(m.Name),
		UserID:      userID,
		TrainingID:  m.ID,
		APIEndpoint: models.PredictEndpoint(m.ID),
		Status:      models.DeploymentStatusActive,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateDeployment(ctx, d); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, ErrAlreadyDeployed
		}
		return nil, fmt.Errorf("creating deployment: %w", err)
	}
	s.invalidateStats(ctx, userID)

	s.logger.Info("model deployed", "model_id", m.ID, "deployment_id", d.ID, "user_id", userID)
	return d, nil
}

func (s *Service) invalidateStats(ctx context.Context, userID string) {
	if err := s.cache.Delete(ctx, cache.StatsKey(userID)); err != nil {
		s.logger.Warn("invalidate stats cache", "user_id", userID, "error", err)
	}
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
