// Package vllm targets a vLLM server through its OpenAI-compatible endpoint.
package vllm

import (
	"strings"

	"github.com/kiranshivaraju/trainboard/internal/config"
	"github.com/kiranshivaraju/trainboard/internal/inference/openai"
)

func NewProvider(cfg config.VLLMConfig) *openai.Provider {
	return openai.NewCompatible(openai.Options{
		Name:    "vllm",
		BaseURL: strings.TrimSuffix(cfg.BaseURL, "/") + "/v1",
		Model:   cfg.Model,
	})
}
