package store

import "math"

// Chunk is one indexed span of document text with its embedding.
type Chunk struct {
	ID         string
	Collection string
	FileID     string
	ChunkIndex int
	Source     string
	Content    string
	Embedding  []float32
	CreatedTs  int64
}

type SearchChunks struct {
	Collection string
	Embedding  []float32
	Limit      int
}

// ChunkWithScore is a search hit. Score is cosine similarity, higher is closer.
type ChunkWithScore struct {
	Chunk *Chunk
	Score float32
}

type DeleteChunks struct {
	Collection *string
	FileID     *string
}

// Collection summarizes the chunks stored under one collection name.
type Collection struct {
	Name       string
	ChunkCount int64
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Vectors of different length or zero norm score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
