package store

import (
	"context"

	"github.com/hrygo/harvestline/internal/profile"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) UpsertConversation(ctx context.Context, upsert *Conversation) (*Conversation, error) {
	return s.driver.UpsertConversation(ctx, upsert)
}

func (s *Store) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	return s.driver.ListConversations(ctx, find)
}

func (s *Store) CreateDocument(ctx context.Context, create *Document) (*Document, error) {
	return s.driver.CreateDocument(ctx, create)
}

func (s *Store) ListDocuments(ctx context.Context, find *FindDocument) ([]*Document, error) {
	return s.driver.ListDocuments(ctx, find)
}

// GetDocument returns nil without error when no document matches.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	list, err := s.driver.ListDocuments(ctx, &FindDocument{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpdateDocument(ctx context.Context, update *UpdateDocument) (*Document, error) {
	return s.driver.UpdateDocument(ctx, update)
}

func (s *Store) DeleteDocument(ctx context.Context, delete *DeleteDocument) error {
	return s.driver.DeleteDocument(ctx, delete)
}

func (s *Store) CreateHarvestRecord(ctx context.Context, create *HarvestRecord) (*HarvestRecord, error) {
	return s.driver.CreateHarvestRecord(ctx, create)
}

func (s *Store) ListHarvestRecords(ctx context.Context, find *FindHarvestRecord) ([]*HarvestRecord, error) {
	return s.driver.ListHarvestRecords(ctx, find)
}

func (s *Store) UpsertChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return s.driver.UpsertChunks(ctx, chunks)
}

func (s *Store) SearchChunks(ctx context.Context, search *SearchChunks) ([]*ChunkWithScore, error) {
	return s.driver.SearchChunks(ctx, search)
}

func (s *Store) DeleteChunks(ctx context.Context, delete *DeleteChunks) (int64, error) {
	return s.driver.DeleteChunks(ctx, delete)
}

func (s *Store) ListCollections(ctx context.Context) ([]*Collection, error) {
	return s.driver.ListCollections(ctx)
}
