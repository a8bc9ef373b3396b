package store

import "time"

// ConversationMessage is one persisted entry of a conversation log.
type ConversationMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is the persisted record of one channel user's conversation.
// Messages are stored in full on every write.
type Conversation struct {
	UserID    string
	Mode      string
	Messages  []*ConversationMessage
	CreatedTs int64
	UpdatedTs int64
}

type FindConversation struct {
	UserID *string
}
