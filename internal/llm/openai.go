package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAI-compatible chat endpoint.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// OpenAIClient completes requests through sashabaranov/go-openai.
type OpenAIClient struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAIClient creates an OpenAI client. A missing key is ErrNotConfigured.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key is not set", ErrNotConfigured)
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(oc), model: cfg.Model, maxTokens: cfg.MaxTokens}, nil
}

// Complete sends a system and a user message.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.User})

	creq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   pickMaxTokens(req.MaxTokens, c.maxTokens),
	}
	if req.JSON {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	rsp, err := c.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(rsp.Choices) == 0 || rsp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return rsp.Choices[0].Message.Content, nil
}

func pickMaxTokens(req, def int) int {
	if req > 0 {
		return req
	}
	if def > 0 {
		return def
	}
	return 1024
}
