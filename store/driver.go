package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Conversation model related methods.
	UpsertConversation(ctx context.Context, upsert *Conversation) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)

	// Document model related methods.
	CreateDocument(ctx context.Context, create *Document) (*Document, error)
	ListDocuments(ctx context.Context, find *FindDocument) ([]*Document, error)
	UpdateDocument(ctx context.Context, update *UpdateDocument) (*Document, error)
	DeleteDocument(ctx context.Context, delete *DeleteDocument) error

	// HarvestRecord model related methods.
	CreateHarvestRecord(ctx context.Context, create *HarvestRecord) (*HarvestRecord, error)
	ListHarvestRecords(ctx context.Context, find *FindHarvestRecord) ([]*HarvestRecord, error)

	// Chunk model related methods.
	UpsertChunks(ctx context.Context, chunks []*Chunk) error
	SearchChunks(ctx context.Context, search *SearchChunks) ([]*ChunkWithScore, error)
	DeleteChunks(ctx context.Context, delete *DeleteChunks) (int64, error)
	ListCollections(ctx context.Context) ([]*Collection, error)
}
