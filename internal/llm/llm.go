// Package llm provides chat-completion clients and the generation
// capability the profile and career packages branch on.
//
// A Capability is decided once at start-up by Resolve. It is either
// Available with a rate-limited Client, or Unavailable with the reason, so
// callers pick their deterministic fallback explicitly instead of probing
// for a nil client.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable is returned when generation is requested from an
	// Unavailable capability.
	ErrUnavailable = errors.New("generation unavailable")

	// ErrNotConfigured indicates a missing credential or a disabled provider.
	ErrNotConfigured = errors.New("generation backend not configured")

	// ErrInvalidConfig indicates an unknown provider or bad settings.
	ErrInvalidConfig = errors.New("invalid generation configuration")

	// ErrMalformedOutput indicates model output that holds no JSON object.
	ErrMalformedOutput = errors.New("malformed model output")

	// ErrEmptyResponse indicates a completion without text.
	ErrEmptyResponse = errors.New("empty response from model")
)

// Request is one chat completion.
type Request struct {
	System      string
	User        string
	Temperature float64
	// MaxTokens overrides the backend default when positive.
	MaxTokens int
	// JSON asks the backend to constrain output to a JSON object.
	JSON bool
}

// Client completes a chat request and returns the model text.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f ClientFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
