package ai

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/hrygo/harvestline/plugin/ai/timeout"
)

// Message roles understood by the completion backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn sent to the completion backend.
type Message struct {
	Role    string
	Content string
}

// Tier is the parameter set of an attempt.
type Tier string

const (
	// TierFull sends temperature, token limit and top_p.
	TierFull Tier = "full"
	// TierMinimal sends the model and messages only.
	TierMinimal Tier = "minimal"
)

// Attempt records one call made by the gateway.
type Attempt struct {
	Model    string
	Tier     Tier
	Class    FailureClass // empty on success
	Err      error
	Duration time.Duration
}

// CompletionResult is the outcome of a successful Complete call.
type CompletionResult struct {
	Text     string
	Model    string
	Tier     Tier
	Attempts []Attempt
}

// CompletionService turns a message list into assistant text.
type CompletionService interface {
	Complete(ctx context.Context, messages []Message) (*CompletionResult, error)
}

// AttemptObserver is notified after every attempt, successful or not.
type AttemptObserver func(Attempt)

type chatCompletionClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

var errEmptyCompletion = errors.New("empty completion response")

type planStep struct {
	model string
	tier  Tier
}

// CompletionGateway calls an OpenAI-compatible backend with model and
// parameter fallback. Each candidate is tried with full parameters, then
// with minimal parameters when the failure is retryable. A terminal failure
// stops the whole loop.
type CompletionGateway struct {
	client     chatCompletionClient
	candidates []string
	maxTokens  int
	temp       float32
	topP       float32
	timeout    time.Duration
	observer   AttemptObserver
}

// NewCompletionGateway creates a gateway backed by go-openai.
func NewCompletionGateway(cfg *LLMConfig) (*CompletionGateway, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("LLM API key is required")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return newCompletionGateway(openai.NewClientWithConfig(clientConfig), cfg), nil
}

func newCompletionGateway(client chatCompletionClient, cfg *LLMConfig) *CompletionGateway {
	attemptTimeout := cfg.Timeout
	if attemptTimeout <= 0 {
		attemptTimeout = timeout.CompletionAttemptTimeout
	}
	return &CompletionGateway{
		client:     client,
		candidates: buildCandidates(cfg.Model, cfg.FallbackModels),
		maxTokens:  cfg.MaxTokens,
		temp:       cfg.Temperature,
		topP:       cfg.TopP,
		timeout:    attemptTimeout,
	}
}

// SetObserver installs a callback for per-attempt metrics.
func (g *CompletionGateway) SetObserver(observer AttemptObserver) {
	g.observer = observer
}

// Candidates returns the ordered model list.
func (g *CompletionGateway) Candidates() []string {
	return append([]string(nil), g.candidates...)
}

func buildCandidates(preferred string, fallbacks []string) []string {
	seen := make(map[string]bool, len(fallbacks)+1)
	candidates := make([]string, 0, len(fallbacks)+1)
	for _, model := range append([]string{preferred}, fallbacks...) {
		model = strings.TrimSpace(model)
		if model == "" || seen[model] {
			continue
		}
		seen[model] = true
		candidates = append(candidates, model)
	}
	return candidates
}

func (g *CompletionGateway) plan() []planStep {
	steps := make([]planStep, 0, len(g.candidates)*2)
	for _, model := range g.candidates {
		steps = append(steps, planStep{model: model, tier: TierFull}, planStep{model: model, tier: TierMinimal})
	}
	return steps
}

// Complete walks the attempt plan and returns the first successful completion.
// On exhaustion the last failure is returned as a *CompletionError.
func (g *CompletionGateway) Complete(ctx context.Context, messages []Message) (*CompletionResult, error) {
	if len(g.candidates) == 0 {
		return nil, errors.New("no completion candidates configured")
	}

	result := &CompletionResult{}
	var lastErr *CompletionError
	for _, step := range g.plan() {
		text, attempt := g.attempt(ctx, step, messages)
		result.Attempts = append(result.Attempts, attempt)
		if g.observer != nil {
			g.observer(attempt)
		}

		if attempt.Err == nil {
			result.Text = text
			result.Model = step.model
			result.Tier = step.tier
			return result, nil
		}

		lastErr = &CompletionError{Class: attempt.Class, Model: step.model, Tier: step.tier, Err: attempt.Err}
		if !attempt.Class.Retryable() {
			slog.Warn("completion aborted",
				slog.String("model", step.model),
				slog.String("tier", string(step.tier)),
				slog.String("class", string(attempt.Class)),
				slog.String("error", attempt.Err.Error()))
			return result, lastErr
		}
		slog.Debug("completion attempt failed, falling back",
			slog.String("model", step.model),
			slog.String("tier", string(step.tier)),
			slog.String("class", string(attempt.Class)))
	}
	return result, lastErr
}

func (g *CompletionGateway) attempt(ctx context.Context, step planStep, messages []Message) (string, Attempt) {
	attempt := Attempt{Model: step.model, Tier: step.tier}
	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(callCtx, g.buildRequest(step, messages))
	attempt.Duration = time.Since(start)
	if err == nil && (len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "") {
		err = errEmptyCompletion
	}
	if err != nil {
		attempt.Err = err
		attempt.Class = ClassifyFailure(ctx, err)
		return "", attempt
	}
	return resp.Choices[0].Message.Content, attempt
}

func (g *CompletionGateway) buildRequest(step planStep, messages []Message) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    step.model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	if step.tier == TierFull {
		req.Temperature = g.temp
		req.MaxTokens = g.maxTokens
		req.TopP = g.topP
	}
	return req
}
