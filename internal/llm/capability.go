package llm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/careerd/internal/config"
)

// Capability is the generation capability: Available with a Client, or
// Unavailable with the reason. The zero value is Unavailable.
type Capability struct {
	client Client
	reason error
}

// Available returns a capability backed by c.
func Available(c Client) Capability {
	return Capability{client: c}
}

// Unavailable returns a capability that never calls a model.
func Unavailable(reason error) Capability {
	if reason == nil {
		reason = ErrNotConfigured
	}
	return Capability{reason: reason}
}

// Client returns the client and true when generation is available.
func (c Capability) Client() (Client, bool) {
	return c.client, c.client != nil
}

// IsAvailable reports whether a model can be called.
func (c Capability) IsAvailable() bool {
	return c.client != nil
}

// Reason returns why generation is unavailable, or nil.
func (c Capability) Reason() error {
	if c.client != nil {
		return nil
	}
	if c.reason == nil {
		return ErrNotConfigured
	}
	return c.reason
}

// Complete calls the client, or fails with ErrUnavailable.
func (c Capability) Complete(ctx context.Context, req Request) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, c.Reason())
	}
	return c.client.Complete(ctx, req)
}

// Resolve decides the capability once from cfg. A missing credential or
// provider "none" yields Unavailable; an unknown provider is an error.
func Resolve(ctx context.Context, cfg config.GenerationConfig, logger *zap.Logger) (Capability, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := newBackend(ctx, cfg)
	if errors.Is(err, ErrNotConfigured) {
		logger.Warn("generation not configured; using rule-based fallbacks",
			zap.String("provider", cfg.Provider), zap.Error(err))
		return Unavailable(err), nil
	}
	if err != nil {
		return Capability{}, err
	}

	logger.Info("generation provider ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("requests_per_minute", cfg.RequestsPerMinute))

	return Available(Limit(client, LimitConfig{
		Provider:          cfg.Provider,
		Model:             cfg.Model,
		RequestsPerMinute: cfg.RequestsPerMinute,
		MaxRetries:        cfg.MaxRetries,
		Timeout:           cfg.Timeout.Duration(),
	}, logger)), nil
}

func newBackend(ctx context.Context, cfg config.GenerationConfig) (Client, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:    cfg.APIKey.Value(),
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
	case config.ProviderAnthropic:
		return NewAnthropicClient(AnthropicConfig{
			APIKey:    cfg.APIKey.Value(),
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
	case config.ProviderGemini:
		return NewGeminiClient(ctx, GeminiConfig{
			APIKey:    cfg.APIKey.Value(),
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
	case config.ProviderNone:
		return nil, fmt.Errorf("%w: provider is %q", ErrNotConfigured, config.ProviderNone)
	}
	return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
}
