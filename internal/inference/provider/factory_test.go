package provider_test

import (
	"testing"

	"github.com/kiranshivaraju/trainboard/internal/config"
	"github.com/kiranshivaraju/trainboard/internal/inference/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Mock(t *testing.T) {
	p, err := provider.New(config.InferenceConfig{Provider: "mock"})
	require.NoError(t, err)
	assert.Equal(t, "mock", p.Name())
}

func TestNew_Ollama(t *testing.T) {
	cfg := config.InferenceConfig{
		Provider: "ollama",
		Ollama:   config.OllamaConfig{BaseURL: "http://localhost:11434", Model: "llama3"},
	}
	p, err := provider.New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())
}

func TestNew_VLLM(t *testing.T) {
	cfg := config.InferenceConfig{
		Provider: "vllm",
		VLLM:     config.VLLMConfig{BaseURL: "http://localhost:8000", Model: "mistral-7b"},
	}
	p, err := provider.New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "vllm", p.Name())
}

func TestNew_OpenAI(t *testing.T) {
	cfg := config.InferenceConfig{
		Provider: "openai",
		OpenAI:   config.OpenAIConfig{APIKey: "sk-test", Model: "gpt-4o-mini"},
	}
	p, err := provider.New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
}

func TestNew_Anthropic(t *testing.T) {
	cfg := config.InferenceConfig{
		Provider:  "anthropic",
		Anthropic: config.AnthropicConfig{APIKey: "sk-ant-test", Model: "claude-sonnet-4-5-20250929"},
	}
	p, err := provider.New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())
}

func TestNew_Unknown(t *testing.T) {
	_, err := provider.New(config.InferenceConfig{Provider: "unknown-provider"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown inference provider")
	assert.Contains(t, err.Error(), "unknown-provider")
}

func TestNew_Empty(t *testing.T) {
	_, err := provider.New(config.InferenceConfig{Provider: ""})
	require.Error(t, err)
}
