package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/careerd/internal/config"
	"go.uber.org/zap"
)

// NewProvider creates the configured provider wrapped with metrics and
// error classification. It returns an error wrapping ErrNotConfigured when
// a required credential or endpoint is absent.
func NewProvider(ctx context.Context, cfg config.EmbeddingsConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		p, err = NewOpenAIProvider(OpenAIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey.Value(),
			Dimension: cfg.Dimension,
		})
	case config.ProviderTEI:
		p, err = NewTEIProvider(TEIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey.Value(),
			Dimension: cfg.Dimension,
		})
	case config.ProviderGemini:
		p, err = NewGeminiProvider(ctx, GeminiConfig{
			Model:     cfg.Model,
			APIKey:    cfg.APIKey.Value(),
			Dimension: cfg.Dimension,
		})
	case config.ProviderLocal:
		dim := cfg.Dimension
		if dim == 0 {
			dim = 256
		}
		p, err = NewLocalProvider(dim)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("embedding provider ready",
		zap.String("provider", providerName(cfg.Provider)),
		zap.String("model", cfg.Model),
		zap.Int("dimension", p.Dimension()))
	return Instrument(p, providerName(cfg.Provider), cfg.Model, NewMetrics(logger)), nil
}

// Resolve is NewProvider that degrades a missing configuration to an
// Unavailable provider, so the service can start and report the problem
// per request instead of refusing to boot.
func Resolve(ctx context.Context, cfg config.EmbeddingsConfig, logger *zap.Logger) (Provider, error) {
	p, err := NewProvider(ctx, cfg, logger)
	if errors.Is(err, ErrNotConfigured) {
		if logger != nil {
			logger.Warn("embedding provider not configured; storage and retrieval will be unavailable",
				zap.String("provider", providerName(cfg.Provider)), zap.Error(err))
		}
		return Unavailable(err), nil
	}
	return p, err
}

func providerName(p string) string {
	if p == "" {
		return config.ProviderOpenAI
	}
	return p
}

// dimensionForModel returns the known vector size for common models, or 0.
func dimensionForModel(model string) int {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "text-embedding-3-large"):
		return 3072
	case strings.Contains(m, "text-embedding-3-small"), strings.Contains(m, "ada-002"):
		return 1536
	case strings.Contains(m, "text-embedding-004"), strings.Contains(m, "embedding-001"):
		return 768
	case strings.Contains(m, "large"):
		return 1024
	case strings.Contains(m, "base"):
		return 768
	case strings.Contains(m, "small"), strings.Contains(m, "mini"):
		return 384
	}
	return 0
}

// unavailable is the provider used when no backend could be configured.
type unavailable struct {
	reason error
}

// Unavailable returns a provider whose every call fails with
// ErrEmbeddingUnavailable wrapping reason.
func Unavailable(reason error) Provider {
	if reason == nil {
		reason = ErrNotConfigured
	}
	return unavailable{reason: reason}
}

func (u unavailable) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, u.reason)
}

func (u unavailable) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, u.reason)
}

func (unavailable) Dimension() int { return 0 }

func (unavailable) Close() error { return nil }

// IsAvailable reports whether p can produce embeddings at all.
func IsAvailable(p Provider) bool {
	_, down := p.(unavailable)
	return !down
}

// instrumented records metrics and wraps every failure in
// ErrEmbeddingUnavailable.
type instrumented struct {
	Provider
	name    string
	model   string
	metrics *Metrics
}

// Instrument wraps p with metrics and error classification.
func Instrument(p Provider, name, model string, m *Metrics) Provider {
	return &instrumented{Provider: p, name: name, model: model, metrics: m}
}

func (i *instrumented) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := i.Provider.EmbedDocuments(ctx, texts)
	err = classify(err)
	i.metrics.Record(ctx, i.name, i.model, "embed_documents", time.Since(start), len(texts), err)
	return vectors, err
}

func (i *instrumented) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vector, err := i.Provider.EmbedQuery(ctx, text)
	err = classify(err)
	i.metrics.Record(ctx, i.name, i.model, "embed_query", time.Since(start), 1, err)
	return vector, err
}

func classify(err error) error {
	if err == nil || errors.Is(err, ErrEmbeddingUnavailable) || errors.Is(err, ErrEmptyInput) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
}
