// Package rag retrieves document context for chat turns and indexes
// document chunks for later retrieval.
package rag

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/hrygo/harvestline/plugin/ai"
	"github.com/hrygo/harvestline/plugin/ai/vector"
	"github.com/hrygo/harvestline/store"
)

// Chunk is one span of a document to index.
type Chunk struct {
	ID      string
	FileID  string
	Source  string
	Index   int
	Content string
}

// Retriever embeds text and talks to the vector index. Query, the file
// deletion and the default upsert target use one collection.
type Retriever struct {
	index      vector.Index
	embedder   ai.EmbeddingService
	collection string
}

func NewRetriever(index vector.Index, embedder ai.EmbeddingService, collection string) *Retriever {
	return &Retriever{
		index:      index,
		embedder:   embedder,
		collection: collection,
	}
}

// Query returns the text of the k chunks closest to text, best first.
func (r *Retriever) Query(ctx context.Context, text string, k int) ([]string, error) {
	if k <= 0 {
		return nil, nil
	}
	embedding, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "failed to embed query")
	}
	results, err := r.index.Query(ctx, r.collection, embedding, k)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query vector index")
	}

	contents := make([]string, 0, len(results))
	for _, result := range results {
		contents = append(contents, result.Chunk.Content)
	}
	return contents, nil
}

// Upsert embeds chunks in one batch and stores them. An empty collection
// means the default one.
func (r *Retriever) Upsert(ctx context.Context, collection string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if collection == "" {
		collection = r.collection
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	embeddings, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return errors.Wrap(err, "failed to embed chunks")
	}
	if len(embeddings) != len(chunks) {
		return errors.Errorf("embedding count mismatch: got %d for %d chunks", len(embeddings), len(chunks))
	}

	records := make([]*store.Chunk, len(chunks))
	for i, c := range chunks {
		records[i] = &store.Chunk{
			ID:         c.ID,
			FileID:     c.FileID,
			ChunkIndex: c.Index,
			Source:     c.Source,
			Content:    c.Content,
			Embedding:  embeddings[i],
		}
	}
	if err := r.index.Add(ctx, collection, records); err != nil {
		return errors.Wrap(err, "failed to add chunks to vector index")
	}
	slog.Debug("chunks indexed",
		slog.String("collection", collection),
		slog.Int("count", len(records)))
	return nil
}

func (r *Retriever) DeleteByFileID(ctx context.Context, fileID string) (int64, error) {
	return r.index.DeleteByFileID(ctx, r.collection, fileID)
}

func (r *Retriever) ListCollections(ctx context.Context) ([]*store.Collection, error) {
	return r.index.ListCollections(ctx)
}

func (r *Retriever) DropCollection(ctx context.Context, name string) (int64, error) {
	return r.index.DropCollection(ctx, name)
}
