// Package session keeps the per-user conversation log and chat mode of
// every channel user, serialized per conversation and written through to
// the database.
package session

import (
	"context"
	"time"
)

// ConversationService is the conversation store consumed by the chat
// orchestrator and the admin dashboard.
type ConversationService interface {
	// Get returns the conversation, creating a default one when absent.
	Get(ctx context.Context, userID string) (*Conversation, error)

	// Append adds a message and evicts the oldest ones beyond the cap.
	Append(ctx context.Context, userID string, role Role, content string) (*Conversation, error)

	// AppendInMode appends only while the conversation is in mode; the bool
	// reports whether it did.
	AppendInMode(ctx context.Context, userID string, mode Mode, role Role, content string) (*Conversation, bool, error)

	// SetMode switches the conversation mode, creating the conversation when absent.
	SetMode(ctx context.Context, userID string, mode Mode) (*Conversation, error)

	// ToManual and ToAI are the two transitions of the mode state machine.
	ToManual(ctx context.Context, userID string) (*Conversation, error)
	ToAI(ctx context.Context, userID string) (*Conversation, error)

	// Find reads a conversation without creating it.
	Find(ctx context.Context, userID string) (*Conversation, bool)

	// List returns a summary of every conversation, most recent first.
	List(ctx context.Context) []Summary
}

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleAdmin marks a reply typed by a human operator.
	RoleAdmin Role = "admin"
)

func (r Role) valid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleAdmin
}

// Message is one entry of a conversation log.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is a snapshot of one user's log and mode.
type Conversation struct {
	UserID    string    `json:"userId"`
	Mode      Mode      `json:"mode"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Summary is the dashboard row of a conversation.
type Summary struct {
	UserID       string    `json:"userId"`
	Mode         Mode      `json:"mode"`
	LastMessage  string    `json:"lastMessage"`
	LastActive   time.Time `json:"lastActive"`
	MessageCount int       `json:"messageCount"`
}

// Summarize builds the dashboard row of a conversation.
func (c *Conversation) Summarize() Summary {
	summary := Summary{
		UserID:       c.UserID,
		Mode:         c.Mode,
		MessageCount: len(c.Messages),
	}
	if n := len(c.Messages); n > 0 {
		last := c.Messages[n-1]
		summary.LastMessage = last.Content
		summary.LastActive = last.Timestamp
	}
	return summary
}

func (c *Conversation) clone() *Conversation {
	cp := *c
	cp.Messages = make([]Message, len(c.Messages))
	copy(cp.Messages, c.Messages)
	return &cp
}
