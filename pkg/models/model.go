package models

import (
	"time"

	"github.com/google/uuid"
)

// ModelStatus is the lifecycle state of a trained model.
type ModelStatus string

const (
	ModelStatusPending   ModelStatus = "pending"
	ModelStatusTraining  ModelStatus = "training"
	ModelStatusCompleted ModelStatus = "completed"
	ModelStatusFailed    ModelStatus = "failed"
)

// DefaultModelType is recorded on models trained without an explicit type.
const DefaultModelType = "gemini-2.0-flash"

var modelTransitions = map[ModelStatus][]ModelStatus{
	ModelStatusPending:  {ModelStatusTraining},
	ModelStatusTraining: {ModelStatusCompleted, ModelStatusFailed},
}

// Valid reports whether s is a known status.
func (s ModelStatus) Valid() bool {
	switch s {
	case ModelStatusPending, ModelStatusTraining, ModelStatusCompleted, ModelStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s ModelStatus) Terminal() bool {
	return s == ModelStatusCompleted || s == ModelStatusFailed
}

// CanTransitionTo reports whether s -> next is a legal lifecycle step:
// pending -> training -> {completed | failed}.
func (s ModelStatus) CanTransitionTo(next ModelStatus) bool {
	for _, allowed := range modelTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Model is a training run over exactly one Dataset. The backend owns the
// status; clients only trigger entry into training and observe the rest.
type Model struct {
	ID           uuid.UUID   `db:"id"            json:"id"`
	Name         string      `db:"name"          json:"name"`
	UserID       string      `db:"user_id"       json:"user_id"`
	DatasetID    uuid.UUID   `db:"dataset_id"    json:"dataset_id"`
	Status       ModelStatus `db:"status"        json:"status"`
	ModelType    string      `db:"model_type"    json:"model_type"`
	CustomPrompt string      `db:"custom_prompt" json:"custom_prompt"`
	ErrorMessage *string     `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time   `db:"created_at"    json:"created_at"`
	CompletedAt  *time.Time  `db:"completed_at"  json:"completed_at,omitempty"`
}
