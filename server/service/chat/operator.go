package chat

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hrygo/harvestline/plugin/ai/session"
	"github.com/hrygo/harvestline/plugin/ai/timeout"
	"github.com/hrygo/harvestline/plugin/line"
	apierrors "github.com/hrygo/harvestline/server/internal/errors"
)

// OperatorReply appends an operator message and pushes it to the user on
// LINE. The message stays in the log when the push fails.
func (s *Service) OperatorReply(ctx context.Context, userID, text string) error {
	if strings.TrimSpace(userID) == "" {
		return apierrors.InvalidArgument("user id is required")
	}
	if strings.TrimSpace(text) == "" {
		return apierrors.InvalidArgument("text is required")
	}

	conv, err := s.conversations.Append(ctx, userID, session.RoleAdmin, text)
	if conv == nil {
		return apierrors.Internal("failed to append operator message", err)
	}
	if err != nil {
		s.logger.Error("failed to persist operator message",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
	}

	if s.sender == nil {
		return apierrors.DependencyUnavailable("LINE channel is not configured", nil)
	}
	pushCtx, cancel := context.WithTimeout(ctx, timeout.DeliveryTimeout)
	defer cancel()
	if err := s.sender.Push(pushCtx, userID, line.TextMessage(text)); err != nil {
		s.logger.Warn("failed to push operator reply",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return apierrors.DependencyUnavailable("failed to push message to LINE", err)
	}
	return nil
}

// SetMode switches a conversation between assistant and operator handling.
func (s *Service) SetMode(ctx context.Context, userID, mode string) (*session.Conversation, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apierrors.InvalidArgument("user id is required")
	}
	parsed, err := session.ParseMode(mode)
	if err != nil {
		return nil, apierrors.InvalidArgument("mode must be ai or manual")
	}
	transition := s.conversations.ToAI
	if parsed == session.ModeManual {
		transition = s.conversations.ToManual
	}
	conv, err := transition(ctx, userID)
	if conv == nil {
		return nil, apierrors.Internal("failed to set mode", err)
	}
	if err != nil {
		s.logger.Error("failed to persist mode change",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
	}
	s.logger.Info("conversation mode changed",
		slog.String("user_id", userID),
		slog.String("mode", string(parsed)))
	return conv, nil
}
