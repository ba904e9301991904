// Package generate abstracts the text-generation capability the pipeline
// consumes. Each Generator is one independently-addressable model instance;
// stage 1 extraction and stage 2 verification must use different generators
// so the verifier never grades its own work.
package generate

import (
	"context"
	"errors"
	"time"
)

// Request is one generation call. The system text carries the document
// context; the prompt carries the stage instruction.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature *float64

	// Stage labels the call for cost attribution and logs.
	Stage string
}

// Result is the raw generation output with the model that produced it.
type Result struct {
	Text  string
	Model string
}

// Generator is an opaque text-generation capability returning raw text that
// the caller parses as JSON.
type Generator interface {
	// Name identifies the provider instance ("anthropic-primary",
	// "anthropic-secondary", "openai-fallback").
	Name() string
	Generate(ctx context.Context, req Request) (*Result, error)
}

// GenerationError wraps a provider failure, including timeouts. Stage 1 is
// the only stage allowed to recover from one by switching providers.
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return "generate: " + e.Provider + ": " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// IsGenerationFailure reports whether the error chain contains a
// GenerationError.
func IsGenerationFailure(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}

const (
	defaultMaxTokens = 4096
	defaultTimeout   = 120 * time.Second
)
