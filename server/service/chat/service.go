// Package chat orchestrates one inbound chat message: conversation log,
// mode check, structured actions, retrieval and completion.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/hrygo/harvestline/plugin/ai"
	"github.com/hrygo/harvestline/plugin/ai/genui"
	"github.com/hrygo/harvestline/plugin/ai/router"
	"github.com/hrygo/harvestline/plugin/ai/session"
	"github.com/hrygo/harvestline/plugin/ai/timeout"
	"github.com/hrygo/harvestline/plugin/line"
	apierrors "github.com/hrygo/harvestline/server/internal/errors"
	"github.com/hrygo/harvestline/server/internal/observability"
)

// Channel is where a message came from.
type Channel string

const (
	ChannelWeb  Channel = "web"
	ChannelLine Channel = "line"
)

const (
	// SystemPrompt is the instruction sent before the conversation window.
	SystemPrompt = "You are a helpful assistant. Use the provided context to answer the user's question."
	// DegradedMessage replaces the answer when every completion attempt failed.
	DegradedMessage = "ตอนนี้ระบบ AI ไม่พร้อมใช้งานชั่วคราว แต่คุณยังสามารถขอให้บันทึกข้อมูลหรือสรุปกราฟได้ครับ"

	DefaultTopK          = 3
	DefaultHistoryWindow = 6

	contextSeparator = "\n---\n"
)

// Inbound is one user message.
type Inbound struct {
	UserID  string
	Text    string
	Channel Channel
}

// Outbound is the reply to deliver. A nil *Outbound means no automated reply.
type Outbound struct {
	Text        string
	Flex        *genui.FlexMessage
	ContextUsed []string
	Intent      router.Intent
	Model       string
	Degraded    bool
}

// Conversations is the part of the conversation store the orchestrator uses.
type Conversations interface {
	Append(ctx context.Context, userID string, role session.Role, content string) (*session.Conversation, error)
	AppendInMode(ctx context.Context, userID string, mode session.Mode, role session.Role, content string) (*session.Conversation, bool, error)
	ToManual(ctx context.Context, userID string) (*session.Conversation, error)
	ToAI(ctx context.Context, userID string) (*session.Conversation, error)
}

// Retriever returns document snippets relevant to a question.
type Retriever interface {
	Query(ctx context.Context, text string, k int) ([]string, error)
}

// Sender delivers operator replies to the messaging platform.
type Sender interface {
	Push(ctx context.Context, to string, messages ...line.SendingMessage) error
}

// Options wires the orchestrator. Retriever, Completer and Sender may be
// nil: retrieval is skipped, completion degrades, operator replies fail.
type Options struct {
	Conversations Conversations
	Router        router.RouterService
	Retriever     Retriever
	Completer     ai.CompletionService
	Sender        Sender
	Metrics       *observability.Metrics
	Logger        *slog.Logger
	TopK          int
	HistoryWindow int
}

// Service is the conversation orchestrator.
type Service struct {
	conversations Conversations
	router        router.RouterService
	retriever     Retriever
	completer     ai.CompletionService
	sender        Sender
	metrics       *observability.Metrics
	logger        *slog.Logger
	topK          int
	historyWindow int
}

func NewService(opts Options) *Service {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = DefaultHistoryWindow
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.GlobalMetrics()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		conversations: opts.Conversations,
		router:        opts.Router,
		retriever:     opts.Retriever,
		completer:     opts.Completer,
		sender:        opts.Sender,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		topK:          opts.TopK,
		historyWindow: opts.HistoryWindow,
	}
}

// HandleInbound runs one stored user message through the pipeline. It
// returns (nil, nil) when the conversation is in manual mode, including when
// it switched to manual before the reply was stored. Failures
// below the orchestrator become reply text; only invalid input is an error.
func (s *Service) HandleInbound(ctx context.Context, in Inbound) (*Outbound, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, apierrors.InvalidArgument("user id is required")
	}
	if strings.TrimSpace(in.Text) == "" {
		return nil, apierrors.InvalidArgument("message is required")
	}

	reqCtx := observability.NewRequestContext(s.logger, string(in.Channel), in.UserID)
	reqCtx.LogStart("chat message received", slog.Int(observability.LogFieldMessageLen, len(in.Text)))
	s.metrics.RecordRequest(string(in.Channel))

	conv, err := s.conversations.Append(ctx, in.UserID, session.RoleUser, in.Text)
	if conv == nil {
		s.metrics.RecordFailure(string(in.Channel))
		return nil, apierrors.Internal("failed to append message", err)
	}
	if err != nil {
		reqCtx.LogError("failed to persist user message", err)
	}

	if conv.Mode == session.ModeManual {
		s.metrics.RecordNoOp(string(in.Channel))
		reqCtx.LogComplete("conversation in manual mode, no automated reply")
		return nil, nil
	}

	history := conv.Messages[:len(conv.Messages)-1]
	out := s.respond(ctx, reqCtx, in.Channel, in.Text, history)

	// An operator may take over while the completion runs; the takeover wins.
	_, appended, err := s.conversations.AppendInMode(ctx, in.UserID, session.ModeAI, session.RoleAssistant, out.Text)
	if !appended {
		s.metrics.RecordNoOp(string(in.Channel))
		reqCtx.LogComplete("operator took over during completion, reply dropped")
		return nil, nil
	}
	if err != nil {
		reqCtx.LogError("failed to persist assistant message", err)
	}
	reqCtx.LogComplete("chat message answered",
		slog.Bool("degraded", out.Degraded),
		slog.Int("context_snippets", len(out.ContextUsed)))
	return out, nil
}

// Respond answers text against a caller-supplied history without touching
// the conversation store.
func (s *Service) Respond(ctx context.Context, channel Channel, text string, history []session.Message) *Outbound {
	reqCtx := observability.NewRequestContext(s.logger, string(channel), "")
	reqCtx.LogStart("stateless chat request", slog.Int(observability.LogFieldMessageLen, len(text)))
	s.metrics.RecordRequest(string(channel))

	out := s.respond(ctx, reqCtx, channel, text, history)
	reqCtx.LogComplete("stateless chat answered", slog.Bool("degraded", out.Degraded))
	return out
}

func (s *Service) respond(ctx context.Context, reqCtx *observability.RequestContext, channel Channel, text string, history []session.Message) *Outbound {
	if s.router != nil {
		if result, matched := s.router.Route(ctx, text); matched {
			reqCtx.SetIntent(string(result.Intent))
			s.metrics.RecordIntent(string(channel), string(result.Intent))
			if result.Failed {
				s.metrics.RecordFailure(string(channel))
			}
			return &Outbound{Text: result.Text, Flex: result.Flex, Intent: result.Intent}
		}
	}

	snippets := s.retrieve(ctx, reqCtx, channel, text)
	messages := BuildMessages(history, snippets, text, s.historyWindow)

	out := &Outbound{ContextUsed: snippets}
	if s.completer == nil {
		s.metrics.RecordDegraded(string(channel))
		out.Text, out.Degraded = DegradedMessage, true
		return out
	}

	result, err := s.completer.Complete(ctx, messages)
	if err != nil {
		s.recordCompletionFailure(channel, err)
		s.metrics.RecordDegraded(string(channel))
		reqCtx.LogWarn("completion failed, sending degraded reply", err)
		out.Text, out.Degraded = DegradedMessage, true
		return out
	}
	for _, attempt := range result.Attempts {
		s.metrics.RecordAttempt(string(channel), attemptOutcome(attempt))
	}
	out.Text, out.Model = result.Text, result.Model
	return out
}

func (s *Service) retrieve(ctx context.Context, reqCtx *observability.RequestContext, channel Channel, text string) []string {
	if s.retriever == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout.RetrievalTimeout)
	defer cancel()

	snippets, err := s.retriever.Query(ctx, text, s.topK)
	if err != nil {
		s.metrics.RecordRetrievalFailure(string(channel))
		reqCtx.LogWarn("retrieval failed, continuing without context", err)
		return nil
	}
	return snippets
}

func (s *Service) recordCompletionFailure(channel Channel, err error) {
	var completionErr *ai.CompletionError
	if errors.As(err, &completionErr) {
		s.metrics.RecordAttempt(string(channel), string(completionErr.Class))
		return
	}
	s.metrics.RecordAttempt(string(channel), string(ai.FailureUnknown))
}

func attemptOutcome(attempt ai.Attempt) string {
	if attempt.Class == "" {
		return "ok"
	}
	return string(attempt.Class)
}

// BuildMessages assembles the completion request: the system prompt, at
// most window prior turns, then the question with its retrieved context.
// Operator turns are sent as assistant turns; empty turns are skipped.
func BuildMessages(history []session.Message, snippets []string, question string, window int) []ai.Message {
	turns := make([]ai.Message, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := ai.RoleUser
		if m.Role == session.RoleAssistant || m.Role == session.RoleAdmin {
			role = ai.RoleAssistant
		}
		turns = append(turns, ai.Message{Role: role, Content: m.Content})
	}
	if len(turns) > window {
		turns = turns[len(turns)-window:]
	}

	messages := make([]ai.Message, 0, len(turns)+2)
	messages = append(messages, ai.Message{Role: ai.RoleSystem, Content: SystemPrompt})
	messages = append(messages, turns...)
	messages = append(messages, ai.Message{
		Role:    ai.RoleUser,
		Content: "Context:\n" + strings.Join(snippets, contextSeparator) + "\n\nQuestion: " + question,
	})
	return messages
}
