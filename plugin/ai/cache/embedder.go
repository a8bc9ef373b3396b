package cache

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/hrygo/harvestline/plugin/ai"
)

// Embedder caches single-text embeddings, the shape of chat questions.
// Batch calls come from document indexing and pass straight through.
type Embedder struct {
	next  ai.EmbeddingService
	cache *LRUCache

	hits   atomic.Int64
	misses atomic.Int64
}

var _ ai.EmbeddingService = (*Embedder)(nil)

func NewEmbedder(next ai.EmbeddingService, cache *LRUCache) *Embedder {
	return &Embedder{next: next, cache: cache}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := strings.TrimSpace(text)
	if vector, ok := e.cache.Get(key); ok {
		e.hits.Add(1)
		return vector, nil
	}
	e.misses.Add(1)

	vector, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(key, vector)
	return vector, nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.next.EmbedBatch(ctx, texts)
}

func (e *Embedder) Dimensions() int {
	return e.next.Dimensions()
}

// Stats returns the hit and miss counts since creation.
func (e *Embedder) Stats() (hits, misses int64) {
	return e.hits.Load(), e.misses.Load()
}
