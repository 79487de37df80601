// Package anthropic implements models.InferenceProvider using the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/trainboard/internal/config"
	"github.com/kiranshivaraju/trainboard/internal/inference"
	"github.com/kiranshivaraju/trainboard/pkg/models"
	goanthropic "github.com/liushuangls/go-anthropic/v2"
)

// MaxTokens bounds a single completion.
const MaxTokens = 1024

// Provider implements models.InferenceProvider using Anthropic.
type Provider struct {
	client *goanthropic.Client
	model  string
}

func NewProvider(cfg config.AnthropicConfig) *Provider {
	return newProvider(cfg)
}

// NewProviderWithBaseURL points the provider at a different API host.
func NewProviderWithBaseURL(cfg config.AnthropicConfig, baseURL string) *Provider {
	return newProvider(cfg, goanthropic.WithBaseURL(baseURL))
}

func newProvider(cfg config.AnthropicConfig, opts ...goanthropic.ClientOption) *Provider {
	return &Provider{
		client: goanthropic.NewClient(cfg.APIKey, opts...),
		model:  cfg.Model,
	}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Generate(ctx context.Context, req models.InferenceRequest) (models.InferenceResponse, error) {
	input := req.Input
	resp, err := p.client.CreateMessages(ctx, goanthropic.MessagesRequest{
		Model:     goanthropic.Model(p.model),
		MaxTokens: MaxTokens,
		System:    req.SystemPrompt,
		Messages: []goanthropic.Message{
			{Role: goanthropic.RoleUser, Content: []goanthropic.MessageContent{
				{Type: "text", Text: &input},
			}},
		},
	})
	if err != nil {
		return models.InferenceResponse{}, inference.Classify(p.Name(), err)
	}

	text := strings.TrimSpace(extractText(resp))
	if text == "" {
		return models.InferenceResponse{}, fmt.Errorf("%w: anthropic: no text content", inference.ErrInvalidResponse)
	}

	return models.InferenceResponse{
		Output:     text,
		Confidence: inference.DefaultConfidence,
		Model:      p.model,
	}, nil
}

func extractText(resp goanthropic.MessagesResponse) string {
	var parts []string
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			parts = append(parts, *block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var _ models.InferenceProvider = (*Provider)(nil)
