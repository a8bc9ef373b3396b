package ai

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

var localTokenPattern = regexp.MustCompile(`[\p{L}\p{M}]+|\p{N}+`)

// localEmbeddingService hashes words and letter trigrams into a fixed-size
// vector. Thai text has no spaces between words, so trigrams carry most of
// the signal there. It needs no corpus preparation and no network.
type localEmbeddingService struct {
	dimensions int
}

// NewLocalEmbeddingService creates a deterministic offline embedder.
func NewLocalEmbeddingService(dimensions int) EmbeddingService {
	if dimensions <= 0 {
		dimensions = defaultLocalEmbeddingDims
	}
	return &localEmbeddingService{dimensions: dimensions}
}

func (s *localEmbeddingService) Embed(_ context.Context, text string) ([]float32, error) {
	return s.embed(text), nil
}

func (s *localEmbeddingService) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = s.embed(text)
	}
	return vectors, nil
}

func (s *localEmbeddingService) Dimensions() int {
	return s.dimensions
}

func (s *localEmbeddingService) embed(text string) []float32 {
	vec := make([]float64, s.dimensions)
	for _, token := range localTokenPattern.FindAllString(strings.ToLower(text), -1) {
		s.add(vec, "w:"+token, 1.0)
		runes := []rune(token)
		for i := 0; i+3 <= len(runes); i++ {
			s.add(vec, "t:"+string(runes[i:i+3]), 0.5)
		}
	}

	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, s.dimensions)
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

// add uses a second hash bit as the sign to keep collisions unbiased.
func (s *localEmbeddingService) add(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(s.dimensions))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}
