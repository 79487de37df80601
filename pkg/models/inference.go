package models

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// InferenceProvider is the interface every inference backend implements.
// Never call a specific provider directly; inject this interface.
type InferenceProvider interface {
	// Generate runs a single completion for the given system prompt and input.
	Generate(ctx context.Context, req InferenceRequest) (InferenceResponse, error)
	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string
}

// InferenceRequest is the input to a single inference call.
type InferenceRequest struct {
	SystemPrompt string
	Input        string
}

// InferenceResponse is what a provider returns for one call.
type InferenceResponse struct {
	Output     string
	Confidence float64
	Model      string
}

// InferenceResult is the wire payload of a model test or prediction.
// ProcessingTime is in seconds.
type InferenceResult struct {
	Output         string  `json:"output"`
	Confidence     float64 `json:"confidence"`
	ProcessingTime float64 `json:"processing_time"`
}

// TestResult is one session-local model test. It is never persisted.
type TestResult struct {
	ModelID        uuid.UUID `json:"model_id"`
	Input          string    `json:"input"`
	Output         string    `json:"output"`
	Confidence     float64   `json:"confidence"`
	ProcessingTime float64   `json:"processing_time"`
	Timestamp      time.Time `json:"timestamp"`
}
