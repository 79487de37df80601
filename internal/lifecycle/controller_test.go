package lifecycle

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/trainboard/internal/client"
	"github.com/kiranshivaraju/trainboard/internal/dashboard"
	"github.com/kiranshivaraju/trainboard/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fake backend ---

// fakeBackend is an in-memory backend that serves both the store's reads and
// the controller's mutations, so a refresh after a mutation observes it.
type fakeBackend struct {
	mu          sync.Mutex
	datasets    []models.Dataset
	models      []models.Model
	deployments []models.Deployment
	apiCalls    int64

	uploadErr error
	trainErr  error
	testErr   error
	deployErr error
	listErr   error

	// deployGate and testGate, when set, block DeployModel and TestModel
	// until they are closed.
	deployGate chan struct{}
	testGate   chan struct{}

	uploads atomic.Int32
	trains  atomic.Int32
	tests   atomic.Int32
	deploys atomic.Int32
}

func (b *fakeBackend) Stats(_ context.Context) (models.Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return models.Stats{
		Datasets: len(b.datasets),
		Models:   len(b.models),
		Deployed: len(b.deployments),
		APICalls: b.apiCalls,
	}, nil
}

func (b *fakeBackend) ListDatasets(_ context.Context) ([]models.Dataset, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.datasets, nil
}

func (b *fakeBackend) ListModels(_ context.Context) ([]models.Model, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.models, b.listErr
}

func (b *fakeBackend) ListDeployments(_ context.Context) ([]models.Deployment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deployments, nil
}

func (b *fakeBackend) UploadDataset(_ context.Context, req client.UploadRequest) (*models.Dataset, error) {
	b.uploads.Add(1)
	if _, err := io.ReadAll(req.Content); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uploadErr != nil {
		return nil, b.uploadErr
	}
	ds := models.Dataset{ID: uuid.New(), Name: req.Name, FileType: models.FileTypeOf(req.Filename)}
	b.datasets = append(b.datasets, ds)
	return &ds, nil
}

func (b *fakeBackend) TrainModel(_ context.Context, req client.TrainRequest) (*models.Model, error) {
	b.trains.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.trainErr != nil {
		return nil, b.trainErr
	}
	m := models.Model{
		ID:           uuid.New(),
		Name:         req.ModelName,
		DatasetID:    req.DatasetID,
		Status:       models.ModelStatusTraining,
		CustomPrompt: req.CustomPrompt,
	}
	b.models = append(b.models, m)
	return &m, nil
}

func (b *fakeBackend) TestModel(ctx context.Context, _ uuid.UUID, input string) (*models.InferenceResult, error) {
	b.tests.Add(1)
	b.mu.Lock()
	gate := b.testGate
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.testErr != nil {
		return nil, b.testErr
	}
	b.apiCalls++
	return &models.InferenceResult{Output: "echo: " + input, Confidence: 0.9, ProcessingTime: 0.01}, nil
}

func (b *fakeBackend) DeployModel(ctx context.Context, modelID uuid.UUID) (*models.Deployment, error) {
	b.deploys.Add(1)
	b.mu.Lock()
	gate := b.deployGate
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deployErr != nil {
		return nil, b.deployErr
	}
	d := models.Deployment{
		ID:          uuid.New(),
		Name:        "M-api",
		TrainingID:  modelID,
		APIEndpoint: models.PredictEndpoint(modelID),
		Status:      models.DeploymentStatusActive,
	}
	b.deployments = append(b.deployments, d)
	return &d, nil
}

func (b *fakeBackend) setStatus(id uuid.UUID, status models.ModelStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.models {
		if b.models[i].ID == id {
			b.models[i].Status = status
		}
	}
}

func (b *fakeBackend) networkCalls() int32 {
	return b.uploads.Load() + b.trains.Load() + b.tests.Load() + b.deploys.Load()
}

// --- helpers ---

type fixture struct {
	backend *fakeBackend
	store   *dashboard.Store
	ctrl    *Controller
	dataset models.Dataset
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ds := models.Dataset{ID: uuid.New(), Name: "D1", FileType: models.FileTypeCSV, RowCount: 120, ColumnCount: 3}
	b := &fakeBackend{datasets: []models.Dataset{ds}}
	store := dashboard.NewStore(b, nil)
	require.NoError(t, store.Refresh(context.Background()))
	return &fixture{backend: b, store: store, ctrl: New(b, store, nil), dataset: ds}
}

// completedModel trains a model through the controller and marks it completed
// on the backend.
func (f *fixture) completedModel(t *testing.T) models.Model {
	t.Helper()
	m, err := f.ctrl.TrainModel(context.Background(), f.dataset.ID, "M1", "You are helpful")
	require.NoError(t, err)
	f.backend.setStatus(m.ID, models.ModelStatusCompleted)
	require.NoError(t, f.store.Refresh(context.Background()))
	return *m
}

func requireValidation(t *testing.T, err error, reason error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, IsValidation(err), "expected validation error, got %v", err)
	assert.ErrorIs(t, err, reason)
}

// --- tests ---

func TestLifecycle_TrainTestDeployScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.ctrl.TrainModel(ctx, f.dataset.ID, "M1", "You are helpful")
	require.NoError(t, err)
	assert.Equal(t, models.ModelStatusTraining, m.Status)

	got, ok := f.store.Snapshot().Model(m.ID)
	require.True(t, ok, "refresh after train must surface the new model")
	assert.Equal(t, models.ModelStatusTraining, got.Status)

	// Not yet completed: test and deploy are rejected locally.
	_, err = f.ctrl.TestModel(ctx, m.ID, "hello")
	requireValidation(t, err, ErrModelNotCompleted)
	_, err = f.ctrl.DeployModel(ctx, m.ID)
	requireValidation(t, err, ErrModelNotCompleted)

	f.backend.setStatus(m.ID, models.ModelStatusCompleted)
	require.NoError(t, f.store.Refresh(ctx))

	res, err := f.ctrl.TestModel(ctx, m.ID, "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Input)
	assert.Equal(t, "echo: hello", res.Output)
	assert.GreaterOrEqual(t, res.Confidence, 0.0)
	assert.LessOrEqual(t, res.Confidence, 1.0)
	assert.GreaterOrEqual(t, res.ProcessingTime, 0.0)
	require.Len(t, f.ctrl.History(), 1)
	assert.Equal(t, res, f.ctrl.History()[0])

	dep, err := f.ctrl.DeployModel(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, dep.TrainingID)
	assert.True(t, f.store.Snapshot().DeployedModelIDs().Contains(m.ID))

	_, err = f.ctrl.DeployModel(ctx, m.ID)
	requireValidation(t, err, ErrAlreadyDeployed)
	assert.Equal(t, int32(1), f.backend.deploys.Load())
}

func TestUploadDataset_RejectedLocally(t *testing.T) {
	for _, tc := range []struct {
		name   string
		file   File
		dsName string
		reason error
	}{
		{"empty file", File{Name: "a.csv", Size: 0, Content: strings.NewReader("")}, "ds", ErrEmptyFile},
		{"nil content", File{Name: "a.csv", Size: 10}, "ds", ErrEmptyFile},
		{"declared size but no content", File{Name: "a.csv", Size: 10, Content: strings.NewReader("")}, "ds", ErrEmptyFile},
		{"blank name", File{Name: "a.csv", Size: 3, Content: strings.NewReader("a,b")}, "   ", ErrNameRequired},
		{"bad extension", File{Name: "a.xlsx", Size: 3, Content: strings.NewReader("abc")}, "ds", ErrUnsupportedFileType},
		{"no extension", File{Name: "README", Size: 3, Content: strings.NewReader("abc")}, "ds", ErrUnsupportedFileType},
		{"too large", File{Name: "a.csv", Size: models.MaxUploadBytes + 1, Content: strings.NewReader("abc")}, "ds", ErrFileTooLarge},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.ctrl.UploadDataset(context.Background(), tc.file, tc.dsName)
			requireValidation(t, err, tc.reason)
			assert.Zero(t, f.backend.networkCalls())
		})
	}
}

func TestUploadDataset_SucceedsAndRefreshes(t *testing.T) {
	f := newFixture(t)
	body := "a,b\n1,2\n"

	ds, err := f.ctrl.UploadDataset(context.Background(),
		File{Name: "Sales.CSV", Size: int64(len(body)), Content: strings.NewReader(body)}, " sales ")
	require.NoError(t, err)
	assert.Equal(t, "sales", ds.Name)

	snap := f.store.Snapshot()
	_, ok := snap.Dataset(ds.ID)
	assert.True(t, ok)
	assert.Equal(t, 2, snap.Stats().Datasets)
}

func TestUploadDataset_AtSizeLimitIsAccepted(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctrl.UploadDataset(context.Background(),
		File{Name: "big.txt", Size: models.MaxUploadBytes, Content: strings.NewReader("x")}, "big")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.backend.uploads.Load())
}

func TestUploadDataset_RequestFailureLeavesStoreUnchanged(t *testing.T) {
	f := newFixture(t)
	f.backend.uploadErr = &client.HTTPStatusError{Method: http.MethodPost, Path: "/datasets/upload", StatusCode: 500, Body: []byte(`{"detail":"disk full"}`)}
	before := f.store.Snapshot()

	_, err := f.ctrl.UploadDataset(context.Background(),
		File{Name: "a.json", Size: 2, Content: strings.NewReader("[]")}, "ds")
	require.Error(t, err)
	assert.False(t, IsValidation(err))
	assert.ErrorIs(t, err, ErrUploadFailed)

	var he *client.HTTPStatusError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, 500, he.StatusCode)
	assert.Same(t, before, f.store.Snapshot())
}

func TestTrainModel_Preconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.TrainModel(ctx, f.dataset.ID, " ", "p")
	requireValidation(t, err, ErrNameRequired)

	_, err = f.ctrl.TrainModel(ctx, f.dataset.ID, "M1", "\n\t")
	requireValidation(t, err, ErrPromptRequired)

	_, err = f.ctrl.TrainModel(ctx, uuid.New(), "M1", "p")
	requireValidation(t, err, ErrDatasetNotFound)

	assert.Zero(t, f.backend.networkCalls())
}

func TestTrainModel_WithoutSnapshotIsRejected(t *testing.T) {
	b := &fakeBackend{}
	store := dashboard.NewStore(b, nil)
	ctrl := New(b, store, nil)

	_, err := ctrl.TrainModel(context.Background(), uuid.New(), "M1", "p")
	requireValidation(t, err, ErrSnapshotUnavailable)
	assert.Zero(t, b.networkCalls())
}

func TestTrainModel_RequestFailure(t *testing.T) {
	f := newFixture(t)
	f.backend.trainErr = &client.NetworkError{Method: http.MethodPost, Path: "/models/train", Err: errors.New("connection refused")}

	_, err := f.ctrl.TrainModel(context.Background(), f.dataset.ID, "M1", "p")
	assert.ErrorIs(t, err, ErrTrainingRequestFailed)
	var ne *client.NetworkError
	assert.True(t, errors.As(err, &ne))
	assert.Empty(t, f.store.Snapshot().Models())
}

func TestMutation_RefreshFailureDoesNotFailTheAction(t *testing.T) {
	f := newFixture(t)
	f.backend.listErr = errors.New("models endpoint down")

	m, err := f.ctrl.TrainModel(context.Background(), f.dataset.ID, "M1", "p")
	require.NoError(t, err)
	require.NotNil(t, m)

	st := f.store.State()
	assert.Equal(t, dashboard.PhaseError, st.Phase)
	assert.True(t, st.Stale())
	_, ok := st.Snapshot.Model(m.ID)
	assert.False(t, ok)
}

func TestTestModel_HistoryIsMostRecentFirst(t *testing.T) {
	f := newFixture(t)
	m := f.completedModel(t)
	ctx := context.Background()

	_, err := f.ctrl.TestModel(ctx, m.ID, "first")
	require.NoError(t, err)
	_, err = f.ctrl.TestModel(ctx, m.ID, "second")
	require.NoError(t, err)

	h := f.ctrl.History()
	require.Len(t, h, 2)
	assert.Equal(t, "second", h[0].Input)
	assert.Equal(t, "first", h[1].Input)
	assert.False(t, h[0].Timestamp.Before(h[1].Timestamp))

	// History returns a copy.
	h[0].Output = "mutated"
	assert.NotEqual(t, "mutated", f.ctrl.History()[0].Output)

	f.ctrl.ClearHistory()
	assert.Empty(t, f.ctrl.History())
}

func TestTestModel_DoesNotRefresh(t *testing.T) {
	f := newFixture(t)
	m := f.completedModel(t)
	before := f.store.Snapshot()

	_, err := f.ctrl.TestModel(context.Background(), m.ID, "hello")
	require.NoError(t, err)
	assert.Same(t, before, f.store.Snapshot())
}

func TestTestModel_Preconditions(t *testing.T) {
	f := newFixture(t)
	m := f.completedModel(t)
	ctx := context.Background()
	calls := f.backend.networkCalls()

	_, err := f.ctrl.TestModel(ctx, m.ID, "   ")
	requireValidation(t, err, ErrInputRequired)

	_, err = f.ctrl.TestModel(ctx, uuid.New(), "hi")
	requireValidation(t, err, ErrModelNotFound)

	assert.Equal(t, calls, f.backend.networkCalls())
}

func TestTestModel_FailureLeavesHistoryUnchanged(t *testing.T) {
	f := newFixture(t)
	m := f.completedModel(t)
	f.backend.testErr = &client.HTTPStatusError{Method: http.MethodPost, StatusCode: 502}

	_, err := f.ctrl.TestModel(context.Background(), m.ID, "hello")
	assert.ErrorIs(t, err, ErrTestRequestFailed)
	assert.Empty(t, f.ctrl.History())
	assert.False(t, f.ctrl.Testing())
}

func TestDeployModel_RejectsFailedModel(t *testing.T) {
	f := newFixture(t)
	m := f.completedModel(t)
	f.backend.setStatus(m.ID, models.ModelStatusFailed)
	require.NoError(t, f.store.Refresh(context.Background()))

	_, err := f.ctrl.DeployModel(context.Background(), m.ID)
	requireValidation(t, err, ErrModelNotCompleted)
	assert.Zero(t, f.backend.deploys.Load())
}

func TestDeployModel_InactiveDeploymentStillBlocksRedeploy(t *testing.T) {
	f := newFixture(t)
	m := f.completedModel(t)
	f.backend.mu.Lock()
	f.backend.deployments = append(f.backend.deployments, models.Deployment{
		ID: uuid.New(), TrainingID: m.ID, Status: models.DeploymentStatusInactive,
	})
	f.backend.mu.Unlock()
	require.NoError(t, f.store.Refresh(context.Background()))

	_, err := f.ctrl.DeployModel(context.Background(), m.ID)
	requireValidation(t, err, ErrAlreadyDeployed)
	assert.Zero(t, f.backend.deploys.Load())
}

func TestTestModel_ConcurrentSubmissionIsRejected(t *testing.T) {
	f := newFixture(t)
	m := f.completedModel(t)
	gate := make(chan struct{})
	f.backend.mu.Lock()
	f.backend.testGate = gate
	f.backend.mu.Unlock()

	firstErr := make(chan error, 1)
	go func() {
		_, err := f.ctrl.TestModel(context.Background(), m.ID, "first")
		firstErr <- err
	}()

	require.Eventually(t, f.ctrl.Testing, time.Second, time.Millisecond)

	_, err := f.ctrl.TestModel(context.Background(), m.ID, "second")
	requireValidation(t, err, ErrTestInFlight)

	close(gate)
	require.NoError(t, <-firstErr)
	assert.Equal(t, int32(1), f.backend.tests.Load())
	assert.False(t, f.ctrl.Testing())

	history := f.ctrl.History()
	require.Len(t, history, 1)
	assert.Equal(t, "first", history[0].Input)
}

func TestDeployModel_ConcurrentDoubleInvocationSendsOneRequest(t *testing.T) {
	f := newFixture(t)
	m := f.completedModel(t)
	gate := make(chan struct{})
	f.backend.mu.Lock()
	f.backend.deployGate = gate
	f.backend.mu.Unlock()

	firstErr := make(chan error, 1)
	go func() {
		_, err := f.ctrl.DeployModel(context.Background(), m.ID)
		firstErr <- err
	}()

	require.Eventually(t, func() bool { return f.ctrl.Deploying(m.ID) }, time.Second, time.Millisecond)

	_, err := f.ctrl.DeployModel(context.Background(), m.ID)
	requireValidation(t, err, ErrDeployInFlight)

	close(gate)
	require.NoError(t, <-firstErr)
	assert.Equal(t, int32(1), f.backend.deploys.Load())
	assert.False(t, f.ctrl.Deploying(m.ID))
}

func TestDeployModel_RequestFailureClearsMarker(t *testing.T) {
	f := newFixture(t)
	m := f.completedModel(t)
	f.backend.deployErr = &client.HTTPStatusError{Method: http.MethodPost, StatusCode: 409, Body: []byte(`{"error":{"code":"CONFLICT","message":"already deployed"}}`)}

	_, err := f.ctrl.DeployModel(context.Background(), m.ID)
	assert.ErrorIs(t, err, ErrDeployRequestFailed)
	assert.False(t, IsValidation(err))
	assert.False(t, f.ctrl.Deploying(m.ID))

	// The marker is released, so a retry reaches the network again.
	f.backend.deployErr = nil
	_, err = f.ctrl.DeployModel(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.backend.deploys.Load())
}

func TestValidationError_Message(t *testing.T) {
	err := invalid(OpUpload, ErrUnsupportedFileType, `"a.xlsx"`)
	assert.Equal(t, `upload: file type not supported: "a.xlsx"`, err.Error())
	assert.Equal(t, "deploy: model not found", invalid(OpDeploy, ErrModelNotFound, "").Error())
}
