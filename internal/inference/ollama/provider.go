// Package ollama targets a local Ollama server through its
// OpenAI-compatible endpoint.
package ollama

import (
	"strings"

	"github.com/kiranshivaraju/trainboard/internal/config"
	"github.com/kiranshivaraju/trainboard/internal/inference/openai"
)

// NewProvider returns a provider reporting itself as "ollama".
// Ollama ignores the API key but the client always sends one.
func NewProvider(cfg config.OllamaConfig) *openai.Provider {
	return openai.NewCompatible(openai.Options{
		Name:    "ollama",
		BaseURL: strings.TrimSuffix(cfg.BaseURL, "/") + "/v1",
		APIKey:  "ollama",
		Model:   cfg.Model,
	})
}
