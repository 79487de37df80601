// Package storetest provides an in-memory store.Store for tests that do not
// need a database.
package storetest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/trainboard/internal/store"
	"github.com/kiranshivaraju/trainboard/pkg/models"
)

// Memory implements store.Store with maps guarded by a mutex. It follows
// the same scoping, transition and uniqueness rules as the Postgres store.
type Memory struct {
	mu           sync.Mutex
	keys         map[uuid.UUID]*models.APIKey
	datasets     map[uuid.UUID]models.Dataset
	datasetRows  map[uuid.UUID][]map[string]any
	trainings    map[uuid.UUID]models.Model
	trainingRows map[uuid.UUID][]map[string]any
	deployments  map[uuid.UUID]models.Deployment
	failures     map[string]error
	transitions  []Transition
}

// Transition records one successful UpdateModelStatus call.
type Transition struct {
	ModelID      uuid.UUID
	Status       models.ModelStatus
	ErrorMessage *string
}

var _ store.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		keys:         make(map[uuid.UUID]*models.APIKey),
		datasets:     make(map[uuid.UUID]models.Dataset),
		datasetRows:  make(map[uuid.UUID][]map[string]any),
		trainings:    make(map[uuid.UUID]models.Model),
		trainingRows: make(map[uuid.UUID][]map[string]any),
		deployments:  make(map[uuid.UUID]models.Deployment),
		failures:     make(map[string]error),
	}
}

// FailOn makes the named method return err until cleared with a nil err.
func (m *Memory) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

// Transitions returns the recorded status updates in order.
func (m *Memory) Transitions() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.transitions)
}

// PutModel stores a model as-is, bypassing the lifecycle rules.
func (m *Memory) PutModel(model models.Model, trainingData []map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainings[model.ID] = model
	m.trainingRows[model.ID] = trainingData
}

func (m *Memory) fail(method string) error {
	return m.failures[method]
}

func (m *Memory) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fail("Ping")
}

// --- API Keys ---

func (m *Memory) GetAPIKeysByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetAPIKeysByPrefix"); err != nil {
		return nil, err
	}
	out := []*models.APIKey{}
	for _, k := range m.keys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			c := *k
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *Memory) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.keys[id]; ok {
		now := time.Now().UTC()
		k.LastUsedAt = &now
	}
	return nil
}

func (m *Memory) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateAPIKey"); err != nil {
		return err
	}
	if _, ok := m.keys[key.ID]; ok {
		return store.ErrDuplicateKey
	}
	c := *key
	m.keys[key.ID] = &c
	return nil
}

func (m *Memory) ListAPIKeys(_ context.Context, userID string) ([]*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.APIKey{}
	for _, k := range m.keys {
		if k.UserID == userID && k.DeletedAt == nil {
			c := *k
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *models.APIKey) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (m *Memory) RevokeAPIKey(_ context.Context, id uuid.UUID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok || k.UserID != userID || k.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	k.DeletedAt = &now
	return nil
}

// --- Datasets ---

func (m *Memory) CreateDataset(_ context.Context, ds *models.Dataset, data store.DatasetData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateDataset"); err != nil {
		return err
	}
	if _, ok := m.datasets[ds.ID]; ok {
		return store.ErrDuplicateKey
	}
	m.datasets[ds.ID] = *ds
	m.datasetRows[ds.ID] = data.Rows
	return nil
}

func (m *Memory) ListDatasets(_ context.Context, userID string) ([]models.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListDatasets"); err != nil {
		return nil, err
	}
	out := []models.Dataset{}
	for _, d := range m.datasets {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b models.Dataset) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (m *Memory) GetDataset(_ context.Context, id uuid.UUID, userID string) (*models.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.datasets[id]
	if !ok || d.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &d, nil
}

func (m *Memory) GetDatasetRows(_ context.Context, id uuid.UUID, userID string, limit int) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.datasets[id]
	if !ok || d.UserID != userID {
		return nil, store.ErrNotFound
	}
	rows := m.datasetRows[id]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return slices.Clone(rows), nil
}

// --- Models ---

func (m *Memory) CreateModel(_ context.Context, model *models.Model, trainingData []map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateModel"); err != nil {
		return err
	}
	if _, ok := m.trainings[model.ID]; ok {
		return store.ErrDuplicateKey
	}
	if len(trainingData) > store.MaxTrainingRows {
		trainingData = trainingData[:store.MaxTrainingRows]
	}
	m.trainings[model.ID] = *model
	m.trainingRows[model.ID] = slices.Clone(trainingData)
	return nil
}

func (m *Memory) ListModels(_ context.Context, userID string) ([]models.Model, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListModels"); err != nil {
		return nil, err
	}
	out := []models.Model{}
	for _, t := range m.trainings {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b models.Model) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (m *Memory) GetModel(_ context.Context, id uuid.UUID, userID string) (*models.Model, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trainings[id]
	if !ok || t.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (m *Memory) GetTrainingData(_ context.Context, id uuid.UUID) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetTrainingData"); err != nil {
		return nil, err
	}
	if _, ok := m.trainings[id]; !ok {
		return nil, store.ErrNotFound
	}
	return slices.Clone(m.trainingRows[id]), nil
}

func (m *Memory) UpdateModelStatus(_ context.Context, id uuid.UUID, status models.ModelStatus, opts ...store.ModelUpdateOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpdateModelStatus"); err != nil {
		return err
	}
	t, ok := m.trainings[id]
	if !ok {
		return store.ErrNotFound
	}
	if !t.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, t.Status, status)
	}

	upd := store.ResolveModelUpdate(opts...)
	t.Status = status
	if status.Terminal() {
		now := time.Now().UTC()
		t.CompletedAt = &now
	}
	if upd.ErrorMessage != nil {
		t.ErrorMessage = upd.ErrorMessage
	}
	m.trainings[id] = t
	m.transitions = append(m.transitions, Transition{ModelID: id, Status: status, ErrorMessage: upd.ErrorMessage})
	return nil
}

func (m *Memory) ListUnfinishedModels(_ context.Context) ([]models.Model, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListUnfinishedModels"); err != nil {
		return nil, err
	}
	out := []models.Model{}
	for _, t := range m.trainings {
		if !t.Status.Terminal() {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b models.Model) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

// --- Deployments ---

func (m *Memory) CreateDeployment(_ context.Context, d *models.Deployment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateDeployment"); err != nil {
		return err
	}
	for _, existing := range m.deployments {
		if existing.TrainingID == d.TrainingID {
			return store.ErrDuplicateKey
		}
	}
	m.deployments[d.ID] = *d
	return nil
}

func (m *Memory) ListDeployments(_ context.Context, userID string) ([]models.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListDeployments"); err != nil {
		return nil, err
	}
	out := []models.Deployment{}
	for _, d := range m.deployments {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b models.Deployment) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

// SetDeploymentStatus changes the status of every deployment of modelID.
func (m *Memory) SetDeploymentStatus(modelID uuid.UUID, status models.DeploymentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, d := range m.deployments {
		if d.TrainingID == modelID {
			d.Status = status
			m.deployments[id] = d
		}
	}
}

func (m *Memory) IncrementUsage(_ context.Context, modelID uuid.UUID, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, d := range m.deployments {
		if d.TrainingID == modelID && d.UserID == userID && d.Status == models.DeploymentStatusActive {
			d.UsageCount++
			m.deployments[id] = d
			return d.UsageCount, nil
		}
	}
	return 0, store.ErrNotFound
}

// --- Stats ---

func (m *Memory) Stats(_ context.Context, userID string) (models.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("Stats"); err != nil {
		return models.Stats{}, err
	}
	var st models.Stats
	for _, d := range m.datasets {
		if d.UserID == userID {
			st.Datasets++
		}
	}
	for _, t := range m.trainings {
		if t.UserID == userID {
			st.Models++
		}
	}
	for _, d := range m.deployments {
		if d.UserID == userID {
			st.Deployed++
			st.APICalls += d.UsageCount
		}
	}
	return st, nil
}
