package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/careerd/internal/config"
)

func TestParseJSONObject(t *testing.T) {
	inner := `{"recommended_career":"Data Analyst","learning_path":["a","b"]}`
	direct, err := ParseJSONObject(inner)
	require.NoError(t, err)

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"direct", inner, false},
		{"prose wrapped", "Here you go:\n" + inner + "\nGood luck!", false},
		{"code fence", "```json\n" + inner + "\n```", false},
		{"array", `["a"]`, true},
		{"null", `null`, true},
		{"no braces", "I cannot help with that.", true},
		{"unbalanced", "{ not json", true},
		{"reversed braces", "} x {", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJSONObject(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedOutput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, direct, got)
		})
	}
}

func TestFields(t *testing.T) {
	obj := map[string]any{
		"s":     "text",
		"n":     3.0,
		"list":  []any{"a", 2.0, nil, map[string]any{"k": "v"}},
		"one":   "single",
		"blank": "  ",
	}
	assert.Equal(t, "text", StringField(obj, "s"))
	assert.Equal(t, "3", StringField(obj, "n"))
	assert.Equal(t, "", StringField(obj, "missing"))
	assert.Equal(t, []string{"a", "2", `{"k":"v"}`}, ListField(obj, "list"))
	assert.Equal(t, []string{"single"}, ListField(obj, "one"))
	assert.Equal(t, []string{}, ListField(obj, "blank"))
	assert.Equal(t, []string{}, ListField(obj, "missing"))
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	c, err := Resolve(ctx, config.GenerationConfig{Provider: config.ProviderOpenAI}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, c.IsAvailable())
	assert.ErrorIs(t, c.Reason(), ErrNotConfigured)
	_, err = c.Complete(ctx, Request{User: "hi"})
	assert.ErrorIs(t, err, ErrUnavailable)

	c, err = Resolve(ctx, config.GenerationConfig{Provider: config.ProviderNone}, nil)
	require.NoError(t, err)
	assert.False(t, c.IsAvailable())

	c, err = Resolve(ctx, config.GenerationConfig{Provider: config.ProviderAnthropic}, nil)
	require.NoError(t, err)
	assert.False(t, c.IsAvailable())

	_, err = Resolve(ctx, config.GenerationConfig{Provider: "llama"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	c, err = Resolve(ctx, config.GenerationConfig{Provider: config.ProviderOpenAI, APIKey: config.Secret("sk-test"), Model: "gpt-4o-mini"}, nil)
	require.NoError(t, err)
	client, ok := c.Client()
	assert.True(t, ok)
	assert.NotNil(t, client)
}

func TestCapability_ZeroValueIsUnavailable(t *testing.T) {
	var c Capability
	assert.False(t, c.IsAvailable())
	assert.ErrorIs(t, c.Reason(), ErrNotConfigured)

	c = Available(ClientFunc(func(context.Context, Request) (string, error) { return "ok", nil }))
	out, err := c.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.NoError(t, c.Reason())
}

func fastLimit(next Client) Client {
	return Limit(next, LimitConfig{Provider: "test", RequestsPerMinute: 60000, MaxRetries: 3, BaseBackoff: time.Millisecond}, nil)
}

func TestLimit_NoRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	overloaded := &StatusError{Code: http.StatusServiceUnavailable, Err: errors.New("overloaded")}
	c := Limit(ClientFunc(func(context.Context, Request) (string, error) {
		calls.Add(1)
		return "", overloaded
	}), LimitConfig{Provider: "test", RequestsPerMinute: 60000}, nil)

	_, err := c.Complete(context.Background(), Request{})
	require.ErrorIs(t, err, overloaded)
	assert.NotContains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(1), calls.Load())
}

func TestLimit_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	c := fastLimit(ClientFunc(func(context.Context, Request) (string, error) {
		if calls.Add(1) < 3 {
			return "", &StatusError{Code: http.StatusServiceUnavailable, Err: errors.New("overloaded")}
		}
		return "done", nil
	}))

	out, err := c.Complete(context.Background(), Request{User: "x"})
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLimit_StopsOnPermanentError(t *testing.T) {
	var calls atomic.Int32
	c := fastLimit(ClientFunc(func(context.Context, Request) (string, error) {
		calls.Add(1)
		return "", &StatusError{Code: http.StatusBadRequest, Err: errors.New("bad request")}
	}))

	_, err := c.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLimit_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	c := Limit(ClientFunc(func(context.Context, Request) (string, error) {
		calls.Add(1)
		return "", &StatusError{Code: http.StatusTooManyRequests, Err: errors.New("slow down")}
	}), LimitConfig{RequestsPerMinute: 60000, MaxRetries: 2, BaseBackoff: time.Millisecond}, nil)

	_, err := c.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(3), calls.Load())
}

func TestLimit_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := fastLimit(ClientFunc(func(context.Context, Request) (string, error) { return "x", nil }))
	_, err := c.Complete(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"openai 429", &openai.APIError{HTTPStatusCode: 429}, true},
		{"openai 401", &openai.APIError{HTTPStatusCode: 401}, false},
		{"openai request 502", &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")}, true},
		{"grpc unavailable", status.Error(grpccodes.Unavailable, "down"), true},
		{"grpc invalid", status.Error(grpccodes.InvalidArgument, "bad"), false},
		{"network", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestOpenAIClient_Complete(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": `{"summary":"ok"}`}}},
		})
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Model: "gpt-4o-mini"})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), Request{System: "sys", User: "usr", Temperature: 0.2, JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"ok"}`, out)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	assert.Equal(t, "usr", got.Messages[1].Content)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, got.ResponseFormat.Type)
	assert.Equal(t, 1024, got.MaxTokens)
}

func TestGemini_SystemInstruction(t *testing.T) {
	c := systemInstruction("be brief")
	require.Len(t, c.Parts, 1)
	assert.Equal(t, genai.Text("be brief"), c.Parts[0])
	assert.Empty(t, c.Role)
}

func TestBackends_MissingKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = NewAnthropicClient(AnthropicConfig{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = NewGeminiClient(context.Background(), GeminiConfig{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
