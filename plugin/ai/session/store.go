package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/harvestline/store"
)

// DefaultMessageCap is the number of messages kept per conversation.
const DefaultMessageCap = 50

// Persister is the subset of store.Store the conversation store writes through.
type Persister interface {
	UpsertConversation(ctx context.Context, upsert *store.Conversation) (*store.Conversation, error)
	ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error)
}

type entry struct {
	mu   sync.Mutex
	conv *Conversation
}

// ConversationStore implements ConversationService in memory with
// write-through persistence. Operations on one user are serialized;
// different users proceed in parallel.
type ConversationStore struct {
	persister  Persister
	messageCap int
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry

	subMu       sync.RWMutex
	subscribers []func(Summary)
}

// NewConversationStore creates an empty store. A non-positive cap uses DefaultMessageCap.
func NewConversationStore(persister Persister, messageCap int) *ConversationStore {
	if messageCap <= 0 {
		messageCap = DefaultMessageCap
	}
	return &ConversationStore{
		persister:  persister,
		messageCap: messageCap,
		now:        time.Now,
		entries:    make(map[string]*entry),
	}
}

// Subscribe registers fn to receive the summary of every changed
// conversation. fn runs on the mutating goroutine and must not block.
func (s *ConversationStore) Subscribe(fn func(Summary)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Load hydrates the in-memory map from the database.
func (s *ConversationStore) Load(ctx context.Context) error {
	list, err := s.persister.ListConversations(ctx, &store.FindConversation{})
	if err != nil {
		return errors.Wrap(err, "failed to load conversations")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, raw := range list {
		conv := s.fromRecord(raw)
		s.entries[conv.UserID] = &entry{conv: conv}
	}
	slog.Info("conversations loaded", slog.Int("count", len(list)))
	return nil
}

func (s *ConversationStore) Get(ctx context.Context, userID string) (*Conversation, error) {
	e, created := s.acquire(userID)
	e.mu.Lock()
	var err error
	if created {
		err = s.persist(ctx, e.conv)
	}
	snapshot := e.conv.clone()
	e.mu.Unlock()

	if created {
		s.notify(snapshot.Summarize())
	}
	return snapshot, err
}

func (s *ConversationStore) Append(ctx context.Context, userID string, role Role, content string) (*Conversation, error) {
	if !role.valid() {
		return nil, errors.Errorf("invalid message role %q", role)
	}

	e, _ := s.acquire(userID)
	e.mu.Lock()
	err := s.appendLocked(ctx, e, role, content)
	snapshot := e.conv.clone()
	e.mu.Unlock()

	s.notify(snapshot.Summarize())
	return snapshot, err
}

// AppendInMode appends only while the conversation is in mode. The check and
// the append happen under the conversation lock, so a concurrent SetMode
// either lands before (nothing is appended) or after.
func (s *ConversationStore) AppendInMode(ctx context.Context, userID string, mode Mode, role Role, content string) (*Conversation, bool, error) {
	if !role.valid() {
		return nil, false, errors.Errorf("invalid message role %q", role)
	}

	e, _ := s.acquire(userID)
	e.mu.Lock()
	if e.conv.Mode != mode {
		snapshot := e.conv.clone()
		e.mu.Unlock()
		return snapshot, false, nil
	}
	err := s.appendLocked(ctx, e, role, content)
	snapshot := e.conv.clone()
	e.mu.Unlock()

	s.notify(snapshot.Summarize())
	return snapshot, true, err
}

// appendLocked must be called with e.mu held.
func (s *ConversationStore) appendLocked(ctx context.Context, e *entry, role Role, content string) error {
	now := s.now()
	e.conv.Messages = append(e.conv.Messages, Message{Role: role, Content: content, Timestamp: now})
	if overflow := len(e.conv.Messages) - s.messageCap; overflow > 0 {
		e.conv.Messages = append([]Message(nil), e.conv.Messages[overflow:]...)
	}
	e.conv.UpdatedAt = now
	return s.persist(ctx, e.conv)
}

func (s *ConversationStore) SetMode(ctx context.Context, userID string, mode Mode) (*Conversation, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}

	e, _ := s.acquire(userID)
	e.mu.Lock()
	e.conv.Mode = mode
	e.conv.UpdatedAt = s.now()
	err := s.persist(ctx, e.conv)
	snapshot := e.conv.clone()
	e.mu.Unlock()

	s.notify(snapshot.Summarize())
	return snapshot, err
}

func (s *ConversationStore) Find(_ context.Context, userID string) (*Conversation, bool) {
	s.mu.RLock()
	e, ok := s.entries[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conv.clone(), true
}

// List sorts by last message time descending; conversations without
// messages come last.
func (s *ConversationStore) List(_ context.Context) []Summary {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	summaries := make([]Summary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		summaries = append(summaries, e.conv.Summarize())
		e.mu.Unlock()
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if a.LastActive.IsZero() != b.LastActive.IsZero() {
			return !a.LastActive.IsZero()
		}
		if !a.LastActive.Equal(b.LastActive) {
			return a.LastActive.After(b.LastActive)
		}
		return a.UserID < b.UserID
	})
	return summaries
}

func (s *ConversationStore) acquire(userID string) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[userID]; ok {
		return e, false
	}
	now := s.now()
	e := &entry{conv: &Conversation{
		UserID:    userID,
		Mode:      ModeAI,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}}
	s.entries[userID] = e
	return e, true
}

// persist must be called with the entry lock held. A failed write keeps
// the in-memory state.
func (s *ConversationStore) persist(ctx context.Context, conv *Conversation) error {
	record := &store.Conversation{
		UserID:    conv.UserID,
		Mode:      string(conv.Mode),
		Messages:  make([]*store.ConversationMessage, 0, len(conv.Messages)),
		CreatedTs: conv.CreatedAt.Unix(),
		UpdatedTs: conv.UpdatedAt.Unix(),
	}
	for _, m := range conv.Messages {
		record.Messages = append(record.Messages, &store.ConversationMessage{
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}
	if _, err := s.persister.UpsertConversation(ctx, record); err != nil {
		slog.Error("failed to persist conversation",
			slog.String("user_id", conv.UserID),
			slog.String("error", err.Error()))
		return errors.Wrapf(err, "failed to persist conversation %s", conv.UserID)
	}
	return nil
}

func (s *ConversationStore) fromRecord(raw *store.Conversation) *Conversation {
	mode, err := ParseMode(raw.Mode)
	if err != nil {
		slog.Warn("unknown stored mode, using ai",
			slog.String("user_id", raw.UserID),
			slog.String("mode", raw.Mode))
		mode = ModeAI
	}
	conv := &Conversation{
		UserID:    raw.UserID,
		Mode:      mode,
		Messages:  make([]Message, 0, len(raw.Messages)),
		CreatedAt: time.Unix(raw.CreatedTs, 0),
		UpdatedAt: time.Unix(raw.UpdatedTs, 0),
	}
	for _, m := range raw.Messages {
		conv.Messages = append(conv.Messages, Message{
			Role:      Role(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}
	if overflow := len(conv.Messages) - s.messageCap; overflow > 0 {
		conv.Messages = conv.Messages[overflow:]
	}
	return conv
}

func (s *ConversationStore) notify(summary Summary) {
	s.subMu.RLock()
	subscribers := s.subscribers
	s.subMu.RUnlock()
	for _, fn := range subscribers {
		fn(summary)
	}
}
