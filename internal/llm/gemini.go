package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiConfig configures Google Gemini generation.
type GeminiConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
}

// GeminiClient completes requests through generative-ai-go.
type GeminiClient struct {
	client    *genai.Client
	model     string
	maxTokens int
}

// NewGeminiClient creates a Gemini client. A missing key is ErrNotConfigured.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: Gemini API key is not set", ErrNotConfigured)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: cfg.Model, maxTokens: cfg.MaxTokens}, nil
}

func systemInstruction(text string) *genai.Content {
	return &genai.Content{Parts: []genai.Part{genai.Text(text)}}
}

// Complete generates content. req.JSON sets the application/json response
// MIME type.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (string, error) {
	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(float32(req.Temperature))
	model.SetMaxOutputTokens(int32(pickMaxTokens(req.MaxTokens, c.maxTokens)))
	if req.System != "" {
		model.SystemInstruction = systemInstruction(req.System)
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}

	rsp, err := model.GenerateContent(ctx, genai.Text(req.User))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(rsp.Candidates) == 0 || rsp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	var b strings.Builder
	for _, part := range rsp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

// Close releases the gRPC connection.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}
