package dashboard

import (
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/trainboard/pkg/models"
)

// Snapshot is one consistent view of the backend: stats, datasets, models
// and deployments fetched together. A Snapshot never changes after it is
// built; accessors hand out copies.
type Snapshot struct {
	stats       models.Stats
	datasets    []models.Dataset
	models      []models.Model
	deployments []models.Deployment
	fetchedAt   time.Time
}

// NewSnapshot builds a Snapshot from the four collections. The slices are
// copied so later changes by the caller are not observed.
func NewSnapshot(stats models.Stats, datasets []models.Dataset, mdls []models.Model, deployments []models.Deployment, fetchedAt time.Time) *Snapshot {
	return &Snapshot{
		stats:       stats,
		datasets:    cloneOrEmpty(datasets),
		models:      cloneOrEmpty(mdls),
		deployments: cloneOrEmpty(deployments),
		fetchedAt:   fetchedAt,
	}
}

func (s *Snapshot) Stats() models.Stats              { return s.stats }
func (s *Snapshot) Datasets() []models.Dataset       { return slices.Clone(s.datasets) }
func (s *Snapshot) Models() []models.Model           { return slices.Clone(s.models) }
func (s *Snapshot) Deployments() []models.Deployment { return slices.Clone(s.deployments) }
func (s *Snapshot) FetchedAt() time.Time             { return s.fetchedAt }

// Dataset looks up a dataset by id.
func (s *Snapshot) Dataset(id uuid.UUID) (models.Dataset, bool) {
	for _, d := range s.datasets {
		if d.ID == id {
			return d, true
		}
	}
	return models.Dataset{}, false
}

// Model looks up a model by id.
func (s *Snapshot) Model(id uuid.UUID) (models.Model, bool) {
	for _, m := range s.models {
		if m.ID == id {
			return m, true
		}
	}
	return models.Model{}, false
}

// DeploymentFor returns the first deployment that references modelID.
func (s *Snapshot) DeploymentFor(modelID uuid.UUID) (models.Deployment, bool) {
	for _, d := range s.deployments {
		if d.TrainingID == modelID {
			return d, true
		}
	}
	return models.Deployment{}, false
}

// DeployedModelIDs returns the set of training_id values across all
// deployments, regardless of deployment status.
func (s *Snapshot) DeployedModelIDs() mapset.Set[uuid.UUID] {
	ids := mapset.NewThreadUnsafeSetWithSize[uuid.UUID](len(s.deployments))
	for _, d := range s.deployments {
		ids.Add(d.TrainingID)
	}
	return ids
}

func cloneOrEmpty[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return slices.Clone(in)
}
