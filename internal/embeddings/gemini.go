package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiConfig configures Google Gemini embeddings.
type GeminiConfig struct {
	Model     string
	APIKey    string
	Dimension int
}

// GeminiProvider embeds text with a Gemini embedding model.
type GeminiProvider struct {
	client    *genai.Client
	model     *genai.EmbeddingModel
	dimension int
}

// NewGeminiProvider creates a Gemini provider. A missing API key is
// reported as ErrNotConfigured.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: Gemini API key is not set", ErrNotConfigured)
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-004"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	dim := cfg.Dimension
	if dim == 0 {
		dim = dimensionForModel(cfg.Model)
	}
	return &GeminiProvider{
		client:    client,
		model:     client.EmbeddingModel(cfg.Model),
		dimension: dim,
	}, nil
}

// EmbedDocuments embeds texts in a single batch request.
func (p *GeminiProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	batch := p.model.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}
	resp, err := p.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("batch embedding: %w", err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, errors.New("gemini returned an incomplete batch")
	}

	vectors := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("gemini returned an empty embedding at index %d", i)
		}
		vectors[i] = e.Values
	}
	return vectors, nil
}

// EmbedQuery embeds a single text.
func (p *GeminiProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	resp, err := p.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if resp == nil || resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, errors.New("no embedding returned by Gemini")
	}
	return resp.Embedding.Values, nil
}

func (p *GeminiProvider) Dimension() int { return p.dimension }

// Close releases the underlying gRPC connection.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}
