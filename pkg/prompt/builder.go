// Package prompt assembles the system prompts sent to inference providers.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxExamples is the number of training rows embedded when
	// Params.MaxExamples is zero.
	DefaultMaxExamples = 10
	// DefaultMaxExampleBytes bounds a single rendered example.
	DefaultMaxExampleBytes = 500
)

// Builder constructs system prompts for trained models.
// All methods are pure functions with no side effects.
// Zero value is ready to use.
type Builder struct{}

// Params defines the inputs of a model's system prompt.
type Params struct {
	CustomPrompt    string
	Examples        []map[string]any
	MaxExamples     int
	MaxExampleBytes int
}

// BuildSystemPrompt returns the custom prompt followed by a block of
// reference examples drawn from the training data, if any.
func (b Builder) BuildSystemPrompt(p Params) string {
	parts := []string{strings.TrimSpace(p.CustomPrompt)}

	if ex := b.buildExamples(p); ex != "" {
		parts = append(parts, ex)
	}

	return strings.Join(parts, "\n\n")
}

// BuildProbe returns the input used to check that a freshly trained model
// responds before it is marked completed.
func (b Builder) BuildProbe(p Params) string {
	if len(p.Examples) == 0 {
		return "Reply with a short confirmation that you are ready."
	}
	return b.renderExample(p.Examples[0], b.exampleLimit(p))
}

func (b Builder) buildExamples(p Params) string {
	if len(p.Examples) == 0 {
		return ""
	}
	n := p.MaxExamples
	if n <= 0 {
		n = DefaultMaxExamples
	}
	examples := p.Examples
	if len(examples) > n {
		examples = examples[:n]
	}

	limit := b.exampleLimit(p)
	var sb strings.Builder
	sb.WriteString("Reference examples from the training data:")
	for i, ex := range examples {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, b.renderExample(ex, limit))
	}
	return sb.String()
}

func (b Builder) exampleLimit(p Params) int {
	if p.MaxExampleBytes > 0 {
		return p.MaxExampleBytes
	}
	return DefaultMaxExampleBytes
}

// renderExample encodes a row as JSON. Map keys are sorted by the encoder,
// so the output is stable.
func (b Builder) renderExample(row map[string]any, limit int) string {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Sprintf("%v", row)
	}
	return truncate(string(data), limit)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
