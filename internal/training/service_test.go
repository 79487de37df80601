package training

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/trainboard/internal/cache"
	"github.com/kiranshivaraju/trainboard/internal/cache/cachetest"
	"github.com/kiranshivaraju/trainboard/internal/inference"
	"github.com/kiranshivaraju/trainboard/internal/inference/mock"
	"github.com/kiranshivaraju/trainboard/internal/store"
	"github.com/kiranshivaraju/trainboard/internal/store/storetest"
	"github.com/kiranshivaraju/trainboard/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userID = "user-1"

type fixture struct {
	svc      *Service
	store    *storetest.Memory
	cache    *cachetest.Memory
	provider *mock.MockProvider
	calls    *atomic.Int32
	prompts  chan models.InferenceRequest
}

func newFixture(t *testing.T, provider *mock.MockProvider) *fixture {
	t.Helper()
	f := &fixture{
		store:    storetest.NewMemory(),
		cache:    cachetest.NewMemory(),
		provider: provider,
		calls:    &atomic.Int32{},
		prompts:  make(chan models.InferenceRequest, 16),
	}
	inner := provider.GenerateFunc
	provider.GenerateFunc = func(ctx context.Context, req models.InferenceRequest) (models.InferenceResponse, error) {
		f.calls.Add(1)
		select {
		case f.prompts <- req:
		default:
		}
		return inner(ctx, req)
	}
	f.svc = NewService(provider, f.store, f.cache, Options{
		Timeout: time.Second,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(f.svc.Close)
	return f
}

func (f *fixture) ingest(t *testing.T, content string) *models.Dataset {
	t.Helper()
	ds, err := f.svc.Ingest(context.Background(), IngestParams{
		UserID: userID, Name: "D1", Filename: "d1.csv", Content: []byte(content),
	})
	require.NoError(t, err)
	return ds
}

func (f *fixture) completedModel(t *testing.T) *models.Model {
	t.Helper()
	ds := f.ingest(t, "q,a\nhi,hello\n")
	m, err := f.svc.StartTraining(context.Background(), TrainParams{
		UserID: userID, DatasetID: ds.ID, Name: "M1", CustomPrompt: "You are helpful",
	})
	require.NoError(t, err)
	f.svc.Wait()
	got, err := f.store.GetModel(context.Background(), m.ID, userID)
	require.NoError(t, err)
	require.Equal(t, models.ModelStatusCompleted, got.Status)
	return got
}

// --- Ingest ---

func TestIngest_StoresProfile(t *testing.T) {
	f := newFixture(t, mock.NewMockProvider())

	var b strings.Builder
	b.WriteString("id,text\n")
	for i := 0; i < 120; i++ {
		fmt.Fprintf(&b, "%d,row %d\n", i, i)
	}
	ds := f.ingest(t, b.String())

	assert.Equal(t, "D1", ds.Name)
	assert.Equal(t, models.FileTypeCSV, ds.FileType)
	assert.Equal(t, 120, ds.RowCount)
	assert.Equal(t, 2, ds.ColumnCount)
	assert.Len(t, ds.DataPreview, models.PreviewRows)
	assert.Equal(t, int64(b.Len()), ds.FileSize)

	rows, err := f.store.GetDatasetRows(context.Background(), ds.ID, userID, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 120)
	assert.Contains(t, f.cache.Deleted(), cache.StatsKey(userID))
}

func TestIngest_Rejections(t *testing.T) {
	f := newFixture(t, mock.NewMockProvider())
	ctx := context.Background()

	tests := []struct {
		name   string
		params IngestParams
		want   error
	}{
		{"blank name", IngestParams{Name: "  ", Filename: "a.csv", Content: []byte("a\n1\n")}, ErrInvalidInput},
		{"bad extension", IngestParams{Name: "x", Filename: "a.xlsx", Content: []byte("a")}, ErrUnsupportedFile},
		{"no extension", IngestParams{Name: "x", Filename: "data", Content: []byte("a")}, ErrUnsupportedFile},
		{"malformed json", IngestParams{Name: "x", Filename: "a.json", Content: []byte("{")}, ErrUnreadableDataset},
		{"empty file", IngestParams{Name: "x", Filename: "a.txt", Content: []byte("\n")}, ErrUnreadableDataset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.params.UserID = userID
			_, err := f.svc.Ingest(ctx, tt.params)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	list, err := f.store.ListDatasets(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

// --- Training ---

func TestStartTraining_CompletesInBackground(t *testing.T) {
	f := newFixture(t, mock.NewMockProvider())
	ds := f.ingest(t, "q,a\nhi,hello\nbye,later\n")

	m, err := f.svc.StartTraining(context.Background(), TrainParams{
		UserID: userID, DatasetID: ds.ID, Name: " M1 ", CustomPrompt: "You are helpful",
	})
	require.NoError(t, err)
	assert.Equal(t, "M1", m.Name)
	assert.Equal(t, models.ModelStatusPending, m.Status)
	assert.Equal(t, models.DefaultModelType, m.ModelType)

	f.svc.Wait()

	got, err := f.store.GetModel(context.Background(), m.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.ModelStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	var statuses []models.ModelStatus
	for _, tr := range f.store.Transitions() {
		statuses = append(statuses, tr.Status)
	}
	assert.Equal(t, []models.ModelStatus{models.ModelStatusTraining, models.ModelStatusCompleted}, statuses)

	req := <-f.prompts
	assert.True(t, strings.HasPrefix(req.SystemPrompt, "You are helpful"))
	assert.Contains(t, req.SystemPrompt, `"q":"hi"`)

	_, held, err := f.cache.Get(context.Background(), cache.TrainingLockKey(m.ID))
	require.NoError(t, err)
	assert.False(t, held, "lock released after the run")
}

func TestStartTraining_ProviderFailureMarksFailed(t *testing.T) {
	f := newFixture(t, mock.NewFailingProvider(errors.New("connection refused")))
	ds := f.ingest(t, "q\nhi\n")

	m, err := f.svc.StartTraining(context.Background(), TrainParams{
		UserID: userID, DatasetID: ds.ID, Name: "M1", CustomPrompt: "p",
	})
	require.NoError(t, err)
	f.svc.Wait()

	got, err := f.store.GetModel(context.Background(), m.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.ModelStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "connection refused")
	assert.NotNil(t, got.CompletedAt)
}

func TestStartTraining_Validation(t *testing.T) {
	f := newFixture(t, mock.NewMockProvider())
	ds := f.ingest(t, "q\nhi\n")
	ctx := context.Background()

	_, err := f.svc.StartTraining(ctx, TrainParams{UserID: userID, DatasetID: ds.ID, Name: " ", CustomPrompt: "p"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.StartTraining(ctx, TrainParams{UserID: userID, DatasetID: ds.ID, Name: "M", CustomPrompt: "\t"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.StartTraining(ctx, TrainParams{UserID: userID, DatasetID: uuid.New(), Name: "M", CustomPrompt: "p"})
	assert.ErrorIs(t, err, ErrDatasetNotFound)

	_, err = f.svc.StartTraining(ctx, TrainParams{UserID: "someone-else", DatasetID: ds.ID, Name: "M", CustomPrompt: "p"})
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestStartTraining_CapsTrainingRows(t *testing.T) {
	f := newFixture(t, mock.NewMockProvider())
	var b strings.Builder
	b.WriteString("n\n")
	for i := 0; i < 250; i++ {
		fmt.Fprintf(&b, "%d\n", i)
	}
	ds := f.ingest(t, b.String())

	m, err := f.svc.StartTraining(context.Background(), TrainParams{
		UserID: userID, DatasetID: ds.ID, Name: "M", CustomPrompt: "p",
	})
	require.NoError(t, err)
	f.svc.Wait()

	rows, err := f.store.GetTrainingData(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Len(t, rows, store.MaxTrainingRows)
}

func TestRunTraining_SkipsWhenLockHeld(t *testing.T) {
	f := newFixture(t, mock.NewMockProvider())
	m := models.Model{ID: uuid.New(), UserID: userID, Status: models.ModelStatusPending, CustomPrompt: "p"}
	f.store.PutModel(m, nil)

	ok, err := f.cache.Acquire(context.Background(), cache.TrainingLockKey(m.ID), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	f.svc.dispatch(m)
	f.svc.Wait()

	got, err := f.store.GetModel(context.Background(), m.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.ModelStatusPending, got.Status)
	assert.Zero(t, f.calls.Load())
}

func TestRunTraining_CacheDownStillTrains(t *testing.T) {
	f := newFixture(t, mock.NewMockProvider())
	m := models.Model{ID: uuid.New(), UserID: userID, Status: models.ModelStatusPending, CustomPrompt: "p"}
	f.store.PutModel(m, nil)
	f.cache.SetError(errors.New("redis down"))

	f.svc.dispatch(m)
	f.svc.Wait()

	got, err := f.store.GetModel(context.Background(), m.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.ModelStatusCompleted, got.Status)
}

func TestResume_FinishesUnfinishedModels(t *testing.T) {
	f := newFixture(t, mock.NewMockProvider())
	pending := models.Model{ID: uuid.New(), UserID: userID, Status: models.ModelStatusPending, CustomPrompt: "p", CreatedAt: time.Now()}
	training := models.Model{ID: uuid.New(), UserID: userID, Status: models.ModelStatusTraining, CustomPrompt: "p", CreatedAt: time.Now()}
	done := models.Model{ID: uuid.New(), UserID: userID, Status: models.ModelStatusCompleted, CustomPrompt: "p", CreatedAt: time.Now()}
	f.store.PutModel(pending, nil)
	f.store.PutModel(training, nil)
	f.store.PutModel(done, nil)

	n, err := f.svc.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	f.svc.Wait()

	for _, id := range []uuid.UUID{pending.ID, training.ID} {
		got, err := f.store.GetModel(context.Background(), id, userID)
		require.NoError(t, err)
		assert.Equal(t, models.ModelStatusCompleted, got.Status)
	}
}

func TestClose_InterruptsDelay(t *testing.T) {
	st := storetest.NewMemory()
	svc := NewService(mock.NewMockProvider(), st, cachetest.NewMemory(), Options{
		TrainingDelay: time.Hour,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	m := models.Model{ID: uuid.New(), UserID: userID, Status: models.ModelStatusPending, CustomPrompt: "p"}
	st.PutModel(m, nil)

	svc.dispatch(m)
	require.Eventually(t, func() bool {
		got, _ := st.GetModel(context.Background(), m.ID, userID)
		return got.Status == models.ModelStatusTraining
	}, time.Second, 5*time.Millisecond)

	closed := make(chan struct{})
	go func() {
		svc.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not interrupt the training delay")
	}

	got, err := st.GetModel(context.Background(), m.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.ModelStatusTraining, got.Status, "left for Resume")
}

// --- Inference ---

func TestInfer(t *testing.T) {
	f := newFixture(t, mock.NewMockProvider())
	m := f.completedModel(t)

	res, err := f.svc.Infer(context.Background(), userID, m.ID, "  hello ")
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: hello", res.Output)
	assert.InDelta(t, 0.95, res.Confidence, 0.001)
	assert.GreaterOrEqual(t, res.ProcessingTime, 0.0)
}

func TestInfer_Preconditions(t *testing.T) {
	f := newFixture(t, mock.NewMockProvider())
	ctx := context.Background()
	pending := models.Model{ID: uuid.New(), UserID: userID, Status: models.ModelStatusPending}
	f.store.PutModel(pending, nil)

	_, err := f.svc.Infer(ctx, userID, pending.ID, "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Infer(ctx, userID, uuid.New(), "hi")
	assert.ErrorIs(t, err, ErrModelNotFound)

	_, err = f.svc.Infer(ctx, userID, pending.ID, "hi")
	assert.ErrorIs(t, err, ErrModelNotReady)
}

func TestInfer_ClampsConfidenceAndTruncates(t *testing.T) {
	long := strings.Repeat("x", MaxOutputBytes+100)
	p := &mock.MockProvider{
		Name_: "odd",
		GenerateFunc: func(_ context.Context, _ models.InferenceRequest) (models.InferenceResponse, error) {
			return models.InferenceResponse{Output: long, Confidence: 3}, nil
		},
	}
	f := newFixture(t, p)
	m := models.Model{ID: uuid.New(), UserID: userID, Status: models.ModelStatusCompleted}
	f.store.PutModel(m, nil)

	res, err := f.svc.Infer(context.Background(), userID, m.ID, "hi")
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Len(t, res.Output, MaxOutputBytes)
}

func TestInfer_Timeout(t *testing.T) {
	f := newFixture(t, mock.NewTimeoutProvider())
	f.svc.timeout = 20 * time.Millisecond
	m := models.Model{ID: uuid.New(), UserID: userID, Status: models.ModelStatusCompleted}
	f.store.PutModel(m, nil)

	_, err := f.svc.Infer(context.Background(), userID, m.ID, "hi")
	assert.ErrorIs(t, err, inference.ErrInferenceTimeout)
}

func TestPredict_CountsUsage(t *testing.T) {
	f := newFixture(t, mock.NewMockProvider())
	m := f.completedModel(t)
	ctx := context.Background()

	_, err := f.svc.Predict(ctx, userID, m.ID, "hi")
	assert.ErrorIs(t, err, ErrNotDeployed)

	_, err = f.svc.Deploy(ctx, userID, m.ID)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.svc.Predict(ctx, userID, m.ID, "hi")
		require.NoError(t, err)
	}

	st, err := f.store.Stats(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.APICalls)

	f.store.SetDeploymentStatus(m.ID, models.DeploymentStatusInactive)
	_, err = f.svc.Predict(ctx, userID, m.ID, "hi")
	assert.ErrorIs(t, err, ErrNotDeployed)
}

// --- Deployment ---

func TestDeploy(t *testing.T) {
	f := newFixture(t, mock.NewMockProvider())
	m := f.completedModel(t)
	ctx := context.Background()

	d, err := f.svc.Deploy(ctx, userID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "M1-api", d.Name)
	assert.Equal(t, m.ID, d.TrainingID)
	assert.Equal(t, models.DeploymentStatusActive, d.Status)
	assert.Equal(t, "/models/"+m.ID.String()+"/predict", d.APIEndpoint)

	_, err = f.svc.Deploy(ctx, userID, m.ID)
	assert.ErrorIs(t, err, ErrAlreadyDeployed)

	list, err := f.store.ListDeployments(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDeploy_RequiresCompleted(t *testing.T) {
	f := newFixture(t, mock.NewMockProvider())
	failed := models.Model{ID: uuid.New(), UserID: userID, Status: models.ModelStatusFailed}
	f.store.PutModel(failed, nil)

	_, err := f.svc.Deploy(context.Background(), userID, failed.ID)
	assert.ErrorIs(t, err, ErrModelNotReady)

	_, err = f.svc.Deploy(context.Background(), userID, uuid.New())
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", truncateString("abc", 10))
	assert.Equal(t, "ab", truncateString("abc", 2))
	assert.Equal(t, "h", truncateString("héllo", 2))
}
