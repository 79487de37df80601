package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeploymentStatus is whether a deployment currently serves predictions.
type DeploymentStatus string

const (
	DeploymentStatusActive   DeploymentStatus = "active"
	DeploymentStatusInactive DeploymentStatus = "inactive"
)

// Deployment exposes a completed Model behind a prediction endpoint.
// TrainingID references the deployed Model.
type Deployment struct {
	ID          uuid.UUID        `db:"id"           json:"id"`
	Name        string           `db:"name"         json:"name"`
	UserID      string           `db:"user_id"      json:"user_id"`
	TrainingID  uuid.UUID        `db:"training_id"  json:"training_id"`
	APIEndpoint string           `db:"api_endpoint" json:"api_endpoint"`
	Status      DeploymentStatus `db:"status"       json:"status"`
	UsageCount  int64            `db:"usage_count"  json:"usage_count"`
	CreatedAt   time.Time        `db:"created_at"   json:"created_at"`
}

// PredictEndpoint returns the endpoint path a deployment of modelID serves.
func PredictEndpoint(modelID uuid.UUID) string {
	return fmt.Sprintf("/models/%s/predict", modelID)
}

// DeploymentName returns the display name given to a deployment of a model.
func DeploymentName(modelName string) string {
	return modelName + "-api"
}
