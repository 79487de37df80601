// Package mock provides deterministic inference providers for tests and
// for running the server without a model backend.
package mock

import (
	"context"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/trainboard/internal/inference"
	"github.com/kiranshivaraju/trainboard/pkg/models"
)

// Model is reported by the default mock provider.
const Model = "mock-v1"

// MockProvider satisfies models.InferenceProvider for testing.
type MockProvider struct {
	Name_        string
	GenerateFunc func(ctx context.Context, req models.InferenceRequest) (models.InferenceResponse, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Generate(ctx context.Context, req models.InferenceRequest) (models.InferenceResponse, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return models.InferenceResponse{}, nil
}

// NewMockProvider returns a MockProvider that echoes its input.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		GenerateFunc: func(_ context.Context, req models.InferenceRequest) (models.InferenceResponse, error) {
			return models.InferenceResponse{
				Output:     fmt.Sprintf("Mock response to: %s", strings.TrimSpace(req.Input)),
				Confidence: inference.DefaultConfidence,
				Model:      Model,
			}, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		GenerateFunc: func(_ context.Context, _ models.InferenceRequest) (models.InferenceResponse, error) {
			return models.InferenceResponse{}, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		GenerateFunc: func(ctx context.Context, _ models.InferenceRequest) (models.InferenceResponse, error) {
			<-ctx.Done()
			return models.InferenceResponse{}, inference.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements InferenceProvider.
var _ models.InferenceProvider = (*MockProvider)(nil)
