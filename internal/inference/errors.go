// Package inference holds the errors and helpers shared by the inference
// providers. Concrete providers live in subpackages; provider.New picks one
// from configuration.
package inference

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrProviderUnavailable = errors.New("inference provider unavailable")
	ErrInferenceTimeout    = errors.New("inference timeout")
	ErrInvalidResponse     = errors.New("inference provider returned invalid response")
)

// DefaultConfidence is reported for completions from providers that do not
// expose a confidence score of their own.
const DefaultConfidence = 0.95

// Classify wraps a provider call error with the matching sentinel.
// Context deadlines become ErrInferenceTimeout; everything else is treated
// as the provider being unavailable.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrInferenceTimeout) ||
		errors.Is(err, ErrInvalidResponse) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", ErrInferenceTimeout, provider, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrProviderUnavailable, provider, err)
}

// ClampConfidence limits c to [0, 1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
