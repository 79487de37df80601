// Package openai implements models.InferenceProvider on top of the OpenAI
// chat completions API. Any server speaking that API (Ollama, vLLM) can be
// targeted through Options.BaseURL.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/trainboard/internal/config"
	"github.com/kiranshivaraju/trainboard/internal/inference"
	"github.com/kiranshivaraju/trainboard/pkg/models"
	goopenai "github.com/sashabaranov/go-openai"
)

// Options configures an OpenAI-compatible provider.
type Options struct {
	Name    string // reported by Name(), e.g. "openai" or "ollama"
	BaseURL string // empty means the public OpenAI endpoint
	APIKey  string // optional for local endpoints
	Model   string
}

// Provider implements models.InferenceProvider using go-openai.
type Provider struct {
	client *goopenai.Client
	name   string
	model  string
}

// NewProvider creates a provider for api.openai.com.
func NewProvider(cfg config.OpenAIConfig) *Provider {
	return NewCompatible(Options{Name: "openai", APIKey: cfg.APIKey, Model: cfg.Model})
}

// NewCompatible creates a provider for any OpenAI-compatible endpoint.
func NewCompatible(opts Options) *Provider {
	clientConfig := goopenai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	}
	name := opts.Name
	if name == "" {
		name = "openai"
	}
	return &Provider{
		client: goopenai.NewClientWithConfig(clientConfig),
		name:   name,
		model:  opts.Model,
	}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Generate(ctx context.Context, req models.InferenceRequest) (models.InferenceResponse, error) {
	var messages []goopenai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role: goopenai.ChatMessageRoleSystem, Content: req.SystemPrompt,
		})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role: goopenai.ChatMessageRoleUser, Content: req.Input,
	})

	resp, err := p.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:    p.model,
		Messages: messages,
	})
	if err != nil {
		return models.InferenceResponse{}, inference.Classify(p.name, err)
	}

	if len(resp.Choices) == 0 {
		return models.InferenceResponse{}, fmt.Errorf("%w: %s: no choices in response", inference.ErrInvalidResponse, p.name)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return models.InferenceResponse{}, fmt.Errorf("%w: %s: empty completion", inference.ErrInvalidResponse, p.name)
	}

	model := resp.Model
	if model == "" {
		model = p.model
	}
	return models.InferenceResponse{
		Output:     content,
		Confidence: inference.DefaultConfidence,
		Model:      model,
	}, nil
}

var _ models.InferenceProvider = (*Provider)(nil)
