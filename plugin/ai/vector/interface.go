// Package vector provides the similarity index behind document retrieval.
package vector

import (
	"context"

	"github.com/hrygo/harvestline/store"
)

// Index stores embedded chunks by collection and answers nearest-neighbour queries.
type Index interface {
	// Add inserts or replaces chunks by (collection, id).
	Add(ctx context.Context, collection string, chunks []*store.Chunk) error

	// Query returns at most k chunks ordered by descending cosine similarity.
	Query(ctx context.Context, collection string, embedding []float32, k int) ([]*store.ChunkWithScore, error)

	// DeleteByFileID removes every chunk of a document and reports how many were removed.
	DeleteByFileID(ctx context.Context, collection, fileID string) (int64, error)

	// ListCollections returns every non-empty collection.
	ListCollections(ctx context.Context) ([]*store.Collection, error)

	// DropCollection removes a whole collection.
	DropCollection(ctx context.Context, name string) (int64, error)
}
