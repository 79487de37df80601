// Package provider selects the inference backend named in configuration.
package provider

import (
	"fmt"

	"github.com/kiranshivaraju/trainboard/internal/config"
	"github.com/kiranshivaraju/trainboard/internal/inference/anthropic"
	"github.com/kiranshivaraju/trainboard/internal/inference/mock"
	"github.com/kiranshivaraju/trainboard/internal/inference/ollama"
	"github.com/kiranshivaraju/trainboard/internal/inference/openai"
	"github.com/kiranshivaraju/trainboard/internal/inference/vllm"
	"github.com/kiranshivaraju/trainboard/pkg/models"
)

// New constructs the appropriate inference provider based on config.
// Called once at server startup.
func New(cfg config.InferenceConfig) (models.InferenceProvider, error) {
	switch cfg.Provider {
	case "mock":
		return mock.NewMockProvider(), nil
	case "ollama":
		return ollama.NewProvider(cfg.Ollama), nil
	case "vllm":
		return vllm.NewProvider(cfg.VLLM), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic), nil
	default:
		return nil, fmt.Errorf("unknown inference provider %q: must be one of mock, ollama, vllm, openai, anthropic", cfg.Provider)
	}
}
