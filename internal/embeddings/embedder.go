// Package embeddings turns text into fixed-length vectors.
//
// Four backends are available: an OpenAI-compatible API via langchaingo, a
// HuggingFace Text-Embeddings-Inference server, Google Gemini, and a local
// feature-hashing embedder that needs no network. Every provider returned
// by NewProvider is instrumented, and its failures wrap ErrEmbeddingUnavailable.
package embeddings

import (
	"context"
	"errors"
)

var (
	// ErrNotConfigured indicates the backend lacks a credential or endpoint.
	ErrNotConfigured = errors.New("embedding backend not configured")

	// ErrEmbeddingUnavailable wraps every failure to produce an embedding.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates an invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Embedder generates embeddings for documents and queries.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Provider is an Embedder with a known dimension and releasable resources.
type Provider interface {
	Embedder
	// Dimension returns the vector length, or 0 when it is only known after
	// the first call.
	Dimension() int
	Close() error
}
