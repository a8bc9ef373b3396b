package vector

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/harvestline/store"
)

// ChunkStore is the subset of store.Store an index needs.
type ChunkStore interface {
	UpsertChunks(ctx context.Context, chunks []*store.Chunk) error
	SearchChunks(ctx context.Context, search *store.SearchChunks) ([]*store.ChunkWithScore, error)
	DeleteChunks(ctx context.Context, delete *store.DeleteChunks) (int64, error)
	ListCollections(ctx context.Context) ([]*store.Collection, error)
}

type storeIndex struct {
	store ChunkStore
}

// NewStoreIndex returns an Index over the database chunk table: pgvector
// on postgres, an embedding BLOB with in-process cosine on sqlite.
func NewStoreIndex(st ChunkStore) Index {
	return &storeIndex{store: st}
}

func (i *storeIndex) Add(ctx context.Context, collection string, chunks []*store.Chunk) error {
	if collection == "" {
		return errors.New("collection is required")
	}
	now := time.Now().Unix()
	for _, c := range chunks {
		c.Collection = collection
		if c.CreatedTs == 0 {
			c.CreatedTs = now
		}
	}
	return i.store.UpsertChunks(ctx, chunks)
}

func (i *storeIndex) Query(ctx context.Context, collection string, embedding []float32, k int) ([]*store.ChunkWithScore, error) {
	if k <= 0 {
		return nil, nil
	}
	return i.store.SearchChunks(ctx, &store.SearchChunks{
		Collection: collection,
		Embedding:  embedding,
		Limit:      k,
	})
}

func (i *storeIndex) DeleteByFileID(ctx context.Context, collection, fileID string) (int64, error) {
	if fileID == "" {
		return 0, errors.New("file id is required")
	}
	return i.store.DeleteChunks(ctx, &store.DeleteChunks{
		Collection: &collection,
		FileID:     &fileID,
	})
}

func (i *storeIndex) ListCollections(ctx context.Context) ([]*store.Collection, error) {
	return i.store.ListCollections(ctx)
}

func (i *storeIndex) DropCollection(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, errors.New("collection name is required")
	}
	return i.store.DeleteChunks(ctx, &store.DeleteChunks{Collection: &name})
}
