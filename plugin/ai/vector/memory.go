package vector

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/hrygo/harvestline/store"
)

// MemoryIndex is an in-process Index used by tests and by callers that
// need no persistence.
type MemoryIndex struct {
	mu          sync.RWMutex
	collections map[string]map[string]*store.Chunk
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{collections: make(map[string]map[string]*store.Chunk)}
}

func (m *MemoryIndex) Add(_ context.Context, collection string, chunks []*store.Chunk) error {
	if collection == "" {
		return errors.New("collection is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collection]
	if !ok {
		c = make(map[string]*store.Chunk)
		m.collections[collection] = c
	}
	for _, chunk := range chunks {
		cp := *chunk
		cp.Collection = collection
		cp.Embedding = append([]float32(nil), chunk.Embedding...)
		c[chunk.ID] = &cp
	}
	return nil
}

func (m *MemoryIndex) Query(_ context.Context, collection string, embedding []float32, k int) ([]*store.ChunkWithScore, error) {
	if k <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]*store.ChunkWithScore, 0, len(m.collections[collection]))
	for _, chunk := range m.collections[collection] {
		cp := *chunk
		results = append(results, &store.ChunkWithScore{
			Chunk: &cp,
			Score: store.CosineSimilarity(embedding, chunk.Embedding),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (m *MemoryIndex) DeleteByFileID(_ context.Context, collection, fileID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, chunk := range m.collections[collection] {
		if chunk.FileID == fileID {
			delete(m.collections[collection], id)
			removed++
		}
	}
	if len(m.collections[collection]) == 0 {
		delete(m.collections, collection)
	}
	return removed, nil
}

func (m *MemoryIndex) ListCollections(_ context.Context) ([]*store.Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*store.Collection, 0, len(m.collections))
	for name, chunks := range m.collections {
		list = append(list, &store.Collection{Name: name, ChunkCount: int64(len(chunks))})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (m *MemoryIndex) DropCollection(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := int64(len(m.collections[name]))
	delete(m.collections, name)
	return removed, nil
}
