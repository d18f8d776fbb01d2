package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fyrsmithlabs/journalgpt/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIProvider_Complete(t *testing.T) {
	var got struct {
		Model       string  `json:"model"`
		Temperature float64 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4",
			"choices":[{"index":0,"message":{"role":"assistant","content":"You find calm outdoors."},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL + "/v1", Model: "gpt-4", APIKey: "sk-test"})
	require.NoError(t, err)

	text, err := p.Complete(context.Background(), Request{
		System:      "You are an analyst.",
		User:        "When am I calm?",
		MaxTokens:   800,
		Temperature: 0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, "You find calm outdoors.", text)
	assert.Equal(t, "gpt-4", got.Model)
	assert.Equal(t, 800, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
}

func TestOpenAIProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad request","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL + "/v1", Model: "gpt-4", APIKey: "sk-test"})
	require.NoError(t, err)
	_, err = p.Complete(context.Background(), Request{User: "hi"})
	assert.ErrorIs(t, err, ErrGeneration)
}

func TestAnthropicProvider_Complete(t *testing.T) {
	var got struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		System    []struct {
			Text string `json:"text"`
		} `json:"system"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("X-Api-Key"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5",
			"content":[{"type":"text","text":"Walks help you."},{"type":"text","text":" Keep going."}],
			"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":4}}`))
	}))
	defer srv.Close()

	p, err := NewAnthropicProvider(AnthropicConfig{BaseURL: srv.URL, Model: "claude-sonnet-4-5", APIKey: "sk-ant-test"})
	require.NoError(t, err)

	text, err := p.Complete(context.Background(), Request{System: "Be kind.", User: "How am I doing?", MaxTokens: 800})
	require.NoError(t, err)
	assert.Equal(t, "Walks help you. Keep going.", text)
	assert.Equal(t, "claude-sonnet-4-5", got.Model)
	assert.Equal(t, 800, got.MaxTokens)
	require.Len(t, got.System, 1)
	assert.Equal(t, "Be kind.", got.System[0].Text)
}

func TestAnthropicProvider_RateLimitedIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	p, err := NewAnthropicProvider(AnthropicConfig{BaseURL: srv.URL, Model: "m", APIKey: "k"})
	require.NoError(t, err)
	_, err = p.Complete(context.Background(), Request{User: "hi"})
	require.ErrorIs(t, err, ErrGeneration)
	assert.True(t, IsRetryable(err))
}

func TestProviderConstructors_Validate(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{Model: "gpt-4"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewOpenAIProvider(OpenAIConfig{APIKey: "k"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewAnthropicProvider(AnthropicConfig{Model: "m"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(config.CompletionConfig{Provider: "anthropic", Model: "m", APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &RateLimited{}, p)

	_, err = NewProvider(config.CompletionConfig{Provider: "cohere"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRateLimited_RetriesTransientFaults(t *testing.T) {
	var calls atomic.Int32
	inner := ProviderFunc(func(ctx context.Context, req Request) (string, error) {
		if calls.Add(1) < 3 {
			return "", generationErr("fake", errors.New("API returned unexpected status code: 503"))
		}
		return "ok", nil
	})
	r := NewRateLimited(inner, RateLimitConfig{Rate: 1000, Burst: 10, Backoff: time.Millisecond}, nil)

	text, err := r.Complete(context.Background(), Request{User: "q"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRateLimited_PermanentFaultNotRetried(t *testing.T) {
	var calls atomic.Int32
	inner := ProviderFunc(func(ctx context.Context, req Request) (string, error) {
		calls.Add(1)
		return "", errors.New("API returned unexpected status code: 401")
	})
	r := NewRateLimited(inner, RateLimitConfig{Rate: 1000, Burst: 10, Backoff: time.Millisecond}, nil)

	_, err := r.Complete(context.Background(), Request{User: "q"})
	assert.ErrorIs(t, err, ErrGeneration)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRateLimited_GivesUp(t *testing.T) {
	var calls atomic.Int32
	inner := ProviderFunc(func(ctx context.Context, req Request) (string, error) {
		calls.Add(1)
		return "", fmt.Errorf("status code: 429")
	})
	r := NewRateLimited(inner, RateLimitConfig{Rate: 1000, Burst: 10, MaxRetries: 2, Backoff: time.Millisecond}, nil)

	_, err := r.Complete(context.Background(), Request{User: "q"})
	assert.ErrorIs(t, err, ErrGeneration)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRateLimited_AttemptTimeout(t *testing.T) {
	inner := ProviderFunc(func(ctx context.Context, req Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	r := NewRateLimited(inner, RateLimitConfig{Rate: 1000, Burst: 10, MaxRetries: -1, Timeout: 10 * time.Millisecond}, nil)

	_, err := r.Complete(context.Background(), Request{User: "q"})
	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimited_Canceled(t *testing.T) {
	var calls atomic.Int32
	inner := ProviderFunc(func(ctx context.Context, req Request) (string, error) {
		calls.Add(1)
		return "unreachable", nil
	})
	r := NewRateLimited(inner, RateLimitConfig{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Complete(ctx, Request{User: "q"})
	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{context.DeadlineExceeded, true},
		{errors.New("API returned unexpected status code: 429: slow down"), true},
		{errors.New("API returned unexpected status code: 500"), true},
		{errors.New("API returned unexpected status code: 400"), false},
		{errors.New("something else"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryable(tt.err), "%v", tt.err)
	}
}
