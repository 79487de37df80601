// Package view derives per-tab view models from dashboard state and
// controller session state. It never talks to the API client: reads come
// from a dashboard.State and user actions go out through Intents.
package view

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/trainboard/internal/dashboard"
	"github.com/kiranshivaraju/trainboard/internal/lifecycle"
	"github.com/kiranshivaraju/trainboard/pkg/models"
)

// Tab is one of the dashboard's four sections.
type Tab string

const (
	TabOverview Tab = "overview"
	TabDatasets Tab = "datasets"
	TabModels   Tab = "models"
	TabDeploy   Tab = "deploy"
)

// Tabs lists every tab in display order.
var Tabs = []Tab{TabOverview, TabDatasets, TabModels, TabDeploy}

// ParseTab resolves a tab name, case-insensitively.
func ParseTab(s string) (Tab, error) {
	t := Tab(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Tabs, t) {
		return t, nil
	}
	return "", fmt.Errorf("unknown tab %q", s)
}

// Presentation is the top-level render state of a page.
type Presentation string

const (
	PresentationLoading Presentation = "loading"
	PresentationError   Presentation = "error"
	PresentationReady   Presentation = "ready"
)

// RecentModelsLimit caps the overview's recent model list.
const RecentModelsLimit = 5

// Session is the controller's per-session state the view reads.
type Session interface {
	History() []models.TestResult
	Deploying(modelID uuid.UUID) bool
	Testing() bool
}

// Intents are the user actions a page can issue.
type Intents interface {
	UploadDataset(ctx context.Context, file lifecycle.File, name string) (*models.Dataset, error)
	TrainModel(ctx context.Context, datasetID uuid.UUID, modelName, customPrompt string) (*models.Model, error)
	TestModel(ctx context.Context, modelID uuid.UUID, input string) (models.TestResult, error)
	DeployModel(ctx context.Context, modelID uuid.UUID) (*models.Deployment, error)
}

var (
	_ Session = (*lifecycle.Controller)(nil)
	_ Intents = (*lifecycle.Controller)(nil)
)

// Page is everything needed to render one tab. Content is only present once
// a snapshot exists; when Stale is set it predates a failed refresh and must
// be shown as such.
type Page struct {
	Tab          Tab          `json:"tab"           yaml:"tab"`
	Presentation Presentation `json:"presentation"  yaml:"presentation"`
	Stale        bool         `json:"stale"         yaml:"stale"`
	Error        string       `json:"error,omitempty" yaml:"error,omitempty"`
	FetchedAt    *time.Time   `json:"fetched_at,omitempty" yaml:"fetched_at,omitempty"`

	Overview *Overview    `json:"overview,omitempty" yaml:"overview,omitempty"`
	Datasets *DatasetsTab `json:"datasets,omitempty" yaml:"datasets,omitempty"`
	Models   *ModelsTab   `json:"models,omitempty"   yaml:"models,omitempty"`
	Deploy   *DeployTab   `json:"deploy,omitempty"   yaml:"deploy,omitempty"`
}

// HasContent reports whether the page carries data to show.
func (p Page) HasContent() bool {
	return p.Overview != nil || p.Datasets != nil || p.Models != nil || p.Deploy != nil
}

// Overview is the landing tab.
type Overview struct {
	Stats        models.Stats `json:"stats"         yaml:"stats"`
	RecentModels []ModelRow   `json:"recent_models" yaml:"recent_models"`
}

// DatasetsTab lists uploaded datasets.
type DatasetsTab struct {
	Datasets []DatasetRow `json:"datasets" yaml:"datasets"`
}

// ModelsTab lists models, the datasets a new model can be trained on, and
// the session's test history.
type ModelsTab struct {
	Models            []ModelRow          `json:"models"             yaml:"models"`
	TrainableDatasets []DatasetRow        `json:"trainable_datasets" yaml:"trainable_datasets"`
	History           []models.TestResult `json:"history"            yaml:"history"`
	Testing           bool                `json:"testing"            yaml:"testing"`
}

// DeployTab lists models that can be deployed and existing deployments.
type DeployTab struct {
	Available   []ModelRow      `json:"available"   yaml:"available"`
	Deployments []DeploymentRow `json:"deployments" yaml:"deployments"`
}

// DatasetRow is a display-ready dataset.
type DatasetRow struct {
	ID        uuid.UUID       `json:"id"         yaml:"id"`
	Name      string          `json:"name"       yaml:"name"`
	FileType  models.FileType `json:"file_type"  yaml:"file_type"`
	Size      string          `json:"size"       yaml:"size"`
	Rows      int             `json:"rows"       yaml:"rows"`
	Columns   int             `json:"columns"    yaml:"columns"`
	CreatedAt time.Time       `json:"created_at" yaml:"created_at"`
}

// ModelRow is a display-ready model.
type ModelRow struct {
	ID          uuid.UUID          `json:"id"                     yaml:"id"`
	Name        string             `json:"name"                   yaml:"name"`
	DatasetName string             `json:"dataset_name"           yaml:"dataset_name"`
	Status      models.ModelStatus `json:"status"                 yaml:"status"`
	ModelType   string             `json:"model_type"             yaml:"model_type"`
	CreatedAt   time.Time          `json:"created_at"             yaml:"created_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	CanTest     bool               `json:"can_test"               yaml:"can_test"`
	Deployed    bool               `json:"deployed"               yaml:"deployed"`
	Deploying   bool               `json:"deploying"              yaml:"deploying"`
}

// DeploymentRow is a display-ready deployment.
type DeploymentRow struct {
	ID         uuid.UUID               `json:"id"          yaml:"id"`
	Name       string                  `json:"name"        yaml:"name"`
	ModelID    uuid.UUID               `json:"model_id"    yaml:"model_id"`
	ModelName  string                  `json:"model_name"  yaml:"model_name"`
	Endpoint   string                  `json:"endpoint"    yaml:"endpoint"`
	Status     models.DeploymentStatus `json:"status"      yaml:"status"`
	UsageCount int64                   `json:"usage_count" yaml:"usage_count"`
	CreatedAt  time.Time               `json:"created_at"  yaml:"created_at"`
}

// Build derives the page for tab from the store state and session. session
// may be nil when no controller is attached.
func Build(tab Tab, state dashboard.State, session Session) Page {
	p := Page{Tab: tab, Presentation: presentationOf(state.Phase)}
	if state.Err != nil {
		p.Error = state.Err.Error()
	}
	p.Stale = state.Stale()

	snap := state.Snapshot
	if snap == nil {
		return p
	}
	fetched := snap.FetchedAt()
	p.FetchedAt = &fetched

	if session == nil {
		session = noSession{}
	}

	switch tab {
	case TabOverview:
		p.Overview = buildOverview(snap, session)
	case TabDatasets:
		p.Datasets = &DatasetsTab{Datasets: datasetRows(snap)}
	case TabModels:
		p.Models = &ModelsTab{
			Models:            modelRows(snap, session),
			TrainableDatasets: datasetRows(snap),
			History:           session.History(),
			Testing:           session.Testing(),
		}
	case TabDeploy:
		p.Deploy = buildDeploy(snap, session)
	}
	return p
}

func presentationOf(phase dashboard.Phase) Presentation {
	switch phase {
	case dashboard.PhaseReady:
		return PresentationReady
	case dashboard.PhaseError:
		return PresentationError
	default:
		return PresentationLoading
	}
}

func buildOverview(snap *dashboard.Snapshot, session Session) *Overview {
	rows := modelRows(snap, session)
	slices.SortStableFunc(rows, func(a, b ModelRow) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(rows) > RecentModelsLimit {
		rows = rows[:RecentModelsLimit]
	}
	return &Overview{Stats: snap.Stats(), RecentModels: rows}
}

func buildDeploy(snap *dashboard.Snapshot, session Session) *DeployTab {
	available := []ModelRow{}
	for _, row := range modelRows(snap, session) {
		if row.Status == models.ModelStatusCompleted && !row.Deployed && !row.Deploying {
			available = append(available, row)
		}
	}

	deployments := snap.Deployments()
	out := make([]DeploymentRow, 0, len(deployments))
	for _, d := range deployments {
		row := DeploymentRow{
			ID:         d.ID,
			Name:       d.Name,
			ModelID:    d.TrainingID,
			Endpoint:   d.APIEndpoint,
			Status:     d.Status,
			UsageCount: d.UsageCount,
			CreatedAt:  d.CreatedAt,
		}
		if m, ok := snap.Model(d.TrainingID); ok {
			row.ModelName = m.Name
		}
		out = append(out, row)
	}
	return &DeployTab{Available: available, Deployments: out}
}

func datasetRows(snap *dashboard.Snapshot) []DatasetRow {
	datasets := snap.Datasets()
	out := make([]DatasetRow, 0, len(datasets))
	for _, d := range datasets {
		out = append(out, DatasetRow{
			ID:        d.ID,
			Name:      d.Name,
			FileType:  d.FileType,
			Size:      FileSize(d.FileSize),
			Rows:      d.RowCount,
			Columns:   d.ColumnCount,
			CreatedAt: d.CreatedAt,
		})
	}
	return out
}

func modelRows(snap *dashboard.Snapshot, session Session) []ModelRow {
	deployed := snap.DeployedModelIDs()
	mdls := snap.Models()
	out := make([]ModelRow, 0, len(mdls))
	for _, m := range mdls {
		row := ModelRow{
			ID:          m.ID,
			Name:        m.Name,
			Status:      m.Status,
			ModelType:   m.ModelType,
			CreatedAt:   m.CreatedAt,
			CompletedAt: m.CompletedAt,
			CanTest:     m.Status == models.ModelStatusCompleted,
			Deployed:    deployed.Contains(m.ID),
			Deploying:   session.Deploying(m.ID),
		}
		if d, ok := snap.Dataset(m.DatasetID); ok {
			row.DatasetName = d.Name
		}
		out = append(out, row)
	}
	return out
}

// FileSize formats a byte count for display, e.g. "1.5KiB".
func FileSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return units.BytesSize(float64(n))
}

type noSession struct{}

func (noSession) History() []models.TestResult { return []models.TestResult{} }
func (noSession) Deploying(uuid.UUID) bool     { return false }
func (noSession) Testing() bool                { return false }
