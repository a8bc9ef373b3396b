package session

import (
	"context"

	"github.com/pkg/errors"
)

// Mode decides whether the assistant answers a conversation.
type Mode string

const (
	// ModeAI lets the orchestrator answer.
	ModeAI Mode = "ai"
	// ModeManual hands the conversation to a human operator.
	ModeManual Mode = "manual"
)

// ParseMode accepts exactly "ai" or "manual".
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAI, ModeManual:
		return Mode(s), nil
	default:
		return "", errors.Errorf("invalid mode %q", s)
	}
}

// ToManual hands the conversation to an operator.
func (s *ConversationStore) ToManual(ctx context.Context, userID string) (*Conversation, error) {
	return s.SetMode(ctx, userID, ModeManual)
}

// ToAI returns the conversation to the assistant.
func (s *ConversationStore) ToAI(ctx context.Context, userID string) (*Conversation, error) {
	return s.SetMode(ctx, userID, ModeAI)
}
