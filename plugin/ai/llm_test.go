package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient answers chat completions through a per-test function and
// records every request it sees.
type scriptedClient struct {
	mu      sync.Mutex
	calls   []openai.ChatCompletionRequest
	respond func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

func (c *scriptedClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	c.mu.Lock()
	c.calls = append(c.calls, req)
	c.mu.Unlock()
	return c.respond(ctx, req)
}

func (c *scriptedClient) Calls() []openai.ChatCompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]openai.ChatCompletionRequest(nil), c.calls...)
}

func reply(text string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Role: RoleAssistant, Content: text}}},
	}
}

func apiError(status int) error {
	return &openai.APIError{HTTPStatusCode: status, Message: http.StatusText(status)}
}

func testLLMConfig() *LLMConfig {
	return &LLMConfig{
		Model:          "preferred",
		FallbackModels: []string{"fallback-a", "fallback-b"},
		APIKey:         "key",
		MaxTokens:      512,
		Temperature:    0.6,
		TopP:           0.9,
		Timeout:        time.Second,
	}
}

var testMessages = []Message{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "hi"}}

func TestCompletionGateway_FirstCandidateSucceeds(t *testing.T) {
	client := &scriptedClient{respond: func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return reply("hello"), nil
	}}
	g := newCompletionGateway(client, testLLMConfig())

	result, err := g.Complete(context.Background(), testMessages)
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Text)
	assert.Equal(t, "preferred", result.Model)
	assert.Equal(t, TierFull, result.Tier)
	require.Len(t, result.Attempts, 1)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "preferred", calls[0].Model)
	assert.InDelta(t, 0.6, calls[0].Temperature, 1e-6)
	assert.Equal(t, 512, calls[0].MaxTokens)
	assert.InDelta(t, 0.9, calls[0].TopP, 1e-6)
	require.Len(t, calls[0].Messages, 2)
	assert.Equal(t, RoleSystem, calls[0].Messages[0].Role)
}

func TestCompletionGateway_BadRequestRetriesSameModelMinimal(t *testing.T) {
	client := &scriptedClient{respond: func(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		if req.Temperature != 0 {
			return openai.ChatCompletionResponse{}, apiError(http.StatusBadRequest)
		}
		return reply("minimal ok"), nil
	}}
	g := newCompletionGateway(client, testLLMConfig())

	result, err := g.Complete(context.Background(), testMessages)
	require.NoError(t, err)
	assert.Equal(t, "minimal ok", result.Text)
	assert.Equal(t, "preferred", result.Model)
	assert.Equal(t, TierMinimal, result.Tier)

	calls := client.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "preferred", calls[1].Model)
	assert.Zero(t, calls[1].Temperature)
	assert.Zero(t, calls[1].MaxTokens)
	assert.Zero(t, calls[1].TopP)
	assert.Equal(t, FailureBadRequest, result.Attempts[0].Class)
}

func TestCompletionGateway_NotFoundMovesToNextCandidate(t *testing.T) {
	client := &scriptedClient{respond: func(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		if req.Model == "preferred" {
			return openai.ChatCompletionResponse{}, apiError(http.StatusNotFound)
		}
		return reply("from " + req.Model), nil
	}}
	g := newCompletionGateway(client, testLLMConfig())

	result, err := g.Complete(context.Background(), testMessages)
	require.NoError(t, err)
	assert.Equal(t, "from fallback-a", result.Text)

	calls := client.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []string{"preferred", "preferred", "fallback-a"}, []string{calls[0].Model, calls[1].Model, calls[2].Model})
	assert.Equal(t, TierFull, result.Tier)
}

func TestCompletionGateway_TerminalFailureStopsLoop(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		class FailureClass
	}{
		{"unauthorized", apiError(http.StatusUnauthorized), FailureUnauthorized},
		{"forbidden", apiError(http.StatusForbidden), FailureUnauthorized},
		{"rate limited", apiError(http.StatusTooManyRequests), FailureRateLimited},
		{"server error", apiError(http.StatusBadGateway), FailureServer},
		{"request error", &openai.RequestError{HTTPStatusCode: http.StatusInternalServerError, Err: errors.New("boom")}, FailureServer},
		{"unknown", errors.New("connection reset by peer"), FailureUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &scriptedClient{respond: func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
				return openai.ChatCompletionResponse{}, tt.err
			}}
			g := newCompletionGateway(client, testLLMConfig())

			_, err := g.Complete(context.Background(), testMessages)
			require.Error(t, err)
			assert.Len(t, client.Calls(), 1)

			var completionErr *CompletionError
			require.True(t, errors.As(err, &completionErr))
			assert.Equal(t, tt.class, completionErr.Class)
			assert.Equal(t, "preferred", completionErr.Model)
		})
	}
}

func TestCompletionGateway_ExhaustionReturnsLastFailure(t *testing.T) {
	client := &scriptedClient{respond: func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, apiError(http.StatusBadRequest)
	}}
	g := newCompletionGateway(client, testLLMConfig())

	result, err := g.Complete(context.Background(), testMessages)
	require.Error(t, err)
	assert.Len(t, client.Calls(), 6)
	assert.Len(t, result.Attempts, 6)

	var completionErr *CompletionError
	require.True(t, errors.As(err, &completionErr))
	assert.Equal(t, "fallback-b", completionErr.Model)
	assert.Equal(t, TierMinimal, completionErr.Tier)
}

func TestCompletionGateway_AttemptTimeoutFallsBack(t *testing.T) {
	client := &scriptedClient{respond: func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		if req.Model == "preferred" {
			<-ctx.Done()
			return openai.ChatCompletionResponse{}, ctx.Err()
		}
		return reply("fast"), nil
	}}
	cfg := testLLMConfig()
	cfg.Timeout = 20 * time.Millisecond
	g := newCompletionGateway(client, cfg)

	result, err := g.Complete(context.Background(), testMessages)
	require.NoError(t, err)
	assert.Equal(t, "fast", result.Text)
	assert.Equal(t, FailureTimeout, result.Attempts[0].Class)
	assert.Equal(t, FailureTimeout, result.Attempts[1].Class)
	assert.Len(t, client.Calls(), 3)
}

func TestCompletionGateway_ParentCancellationIsTerminal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &scriptedClient{respond: func(ctx context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		cancel()
		return openai.ChatCompletionResponse{}, ctx.Err()
	}}
	g := newCompletionGateway(client, testLLMConfig())

	_, err := g.Complete(ctx, testMessages)
	require.Error(t, err)
	assert.Len(t, client.Calls(), 1)
	var completionErr *CompletionError
	require.True(t, errors.As(err, &completionErr))
	assert.Equal(t, FailureCanceled, completionErr.Class)
}

func TestCompletionGateway_EmptyResponseIsTerminal(t *testing.T) {
	client := &scriptedClient{respond: func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, nil
	}}
	g := newCompletionGateway(client, testLLMConfig())

	_, err := g.Complete(context.Background(), testMessages)
	require.Error(t, err)
	assert.Len(t, client.Calls(), 1)
}

func TestCompletionGateway_ObserverSeesEveryAttempt(t *testing.T) {
	client := &scriptedClient{respond: func(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		if req.Temperature != 0 {
			return openai.ChatCompletionResponse{}, apiError(http.StatusBadRequest)
		}
		return reply("ok"), nil
	}}
	g := newCompletionGateway(client, testLLMConfig())
	var seen []Attempt
	g.SetObserver(func(a Attempt) { seen = append(seen, a) })

	_, err := g.Complete(context.Background(), testMessages)
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.Equal(t, FailureBadRequest, seen[0].Class)
	assert.Empty(t, seen[1].Class)
}

func TestBuildCandidates(t *testing.T) {
	assert.Equal(t, DefaultFallbackModels, buildCandidates("", DefaultFallbackModels))
	assert.Equal(t,
		[]string{"typhoon-v2.1-12b-instruct", "typhoon-v2.5-30b-a3b-instruct", "typhoon-v1.5x-70b-instruct", "typhoon-v1.5-70b-instruct"},
		buildCandidates("typhoon-v2.1-12b-instruct", DefaultFallbackModels))
	assert.Equal(t, []string{"custom", "a"}, buildCandidates(" custom ", []string{"a", "custom", ""}))
}

func TestCompletionGateway_OpenAICompatibleBackend(t *testing.T) {
	var mu sync.Mutex
	var bodies []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if body["model"] == "missing-model" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"message":"model not found","type":"invalid_request_error","code":"model_not_found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"cmpl-1","object":"chat.completion","created":1,"model":"typhoon","choices":[{"index":0,"message":{"role":"assistant","content":"สวัสดีครับ"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	g, err := NewCompletionGateway(&LLMConfig{
		Model:          "missing-model",
		FallbackModels: []string{"typhoon"},
		APIKey:         "key",
		BaseURL:        server.URL + "/v1",
		MaxTokens:      512,
		Temperature:    0.6,
		TopP:           0.9,
		Timeout:        5 * time.Second,
	})
	require.NoError(t, err)

	result, err := g.Complete(context.Background(), testMessages)
	require.NoError(t, err)
	assert.Equal(t, "สวัสดีครับ", result.Text)
	assert.Equal(t, "typhoon", result.Model)
	assert.Equal(t, FailureNotFound, result.Attempts[0].Class)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 3)
	assert.Contains(t, bodies[0], "temperature")
	assert.NotContains(t, bodies[1], "temperature")
	assert.NotContains(t, bodies[1], "max_tokens")
	assert.Equal(t, "missing-model", bodies[1]["model"])
	assert.Contains(t, bodies[2], "top_p")
}

func TestNewCompletionGateway_RequiresAPIKey(t *testing.T) {
	_, err := NewCompletionGateway(&LLMConfig{Model: "m"})
	assert.Error(t, err)
}
