package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// LogFieldRequestID is the field name for request ID.
	LogFieldRequestID = "request_id"
	// LogFieldUserID is the field name for the channel user ID.
	LogFieldUserID = "user_id"
	// LogFieldChannel is the field name for the inbound channel.
	LogFieldChannel = "channel"
	// LogFieldIntent is the field name for the routed intent.
	LogFieldIntent = "intent"
	// LogFieldDuration is the field name for duration in milliseconds.
	LogFieldDuration = "duration_ms"
	// LogFieldMessageLen is the field name for message length.
	LogFieldMessageLen = "message_length"
	// LogFieldErrorCode is the field name for error code.
	LogFieldErrorCode = "error_code"
)

// RequestContext carries the structured logging fields of one inbound
// chat message or webhook event.
type RequestContext struct {
	RequestID string
	UserID    string
	Channel   string
	Intent    string
	StartTime time.Time
	logger    *slog.Logger
}

// NewRequestContext creates a new request context with a generated request ID.
func NewRequestContext(logger *slog.Logger, channel, userID string) *RequestContext {
	return NewRequestContextWithID(logger, uuid.NewString(), channel, userID)
}

// NewRequestContextWithID creates a new request context with a specific request ID.
func NewRequestContextWithID(logger *slog.Logger, requestID, channel, userID string) *RequestContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestContext{
		RequestID: requestID,
		UserID:    userID,
		Channel:   channel,
		StartTime: time.Now(),
		logger:    logger,
	}
}

// SetIntent records the routed intent for later log lines.
func (r *RequestContext) SetIntent(intent string) {
	r.Intent = intent
}

// Logger returns a logger with the request fields attached.
func (r *RequestContext) Logger() *slog.Logger {
	attrs := r.baseAttrs()
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	return r.logger.With(args...)
}

// LogStart logs the arrival of the message.
func (r *RequestContext) LogStart(msg string, attrs ...slog.Attr) {
	r.log(slog.LevelInfo, msg, attrs...)
}

// LogComplete logs completion with the elapsed time.
func (r *RequestContext) LogComplete(msg string, attrs ...slog.Attr) {
	r.log(slog.LevelInfo, msg, append(attrs, slog.Int64(LogFieldDuration, r.DurationMs()))...)
}

// LogWarn logs a recoverable failure.
func (r *RequestContext) LogWarn(msg string, err error, attrs ...slog.Attr) {
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	r.log(slog.LevelWarn, msg, attrs...)
}

// LogError logs an error message with the error.
func (r *RequestContext) LogError(msg string, err error, attrs ...slog.Attr) {
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	r.log(slog.LevelError, msg, attrs...)
}

func (r *RequestContext) log(level slog.Level, msg string, attrs ...slog.Attr) {
	r.logger.LogAttrs(context.Background(), level, msg, append(r.baseAttrs(), attrs...)...)
}

// Duration returns the elapsed time since the request started.
func (r *RequestContext) Duration() time.Duration {
	return time.Since(r.StartTime)
}

// DurationMs returns the elapsed time in milliseconds.
func (r *RequestContext) DurationMs() int64 {
	return r.Duration().Milliseconds()
}

func (r *RequestContext) baseAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String(LogFieldRequestID, r.RequestID),
		slog.String(LogFieldUserID, r.UserID),
		slog.String(LogFieldChannel, r.Channel),
	}
	if r.Intent != "" {
		attrs = append(attrs, slog.String(LogFieldIntent, r.Intent))
	}
	return attrs
}

type ctxKey struct{}

// WithRequestContext adds the request context to the context.
func WithRequestContext(ctx context.Context, reqCtx *RequestContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, reqCtx)
}

// FromContext extracts the request context from the context.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	reqCtx, ok := ctx.Value(ctxKey{}).(*RequestContext)
	return reqCtx, ok
}
