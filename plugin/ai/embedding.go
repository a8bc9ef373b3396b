package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// EmbeddingService is the vector embedding service interface.
type EmbeddingService interface {
	// Embed generates vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension, 0 when the backend decides.
	Dimensions() int
}

type embeddingService struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewEmbeddingService creates an EmbeddingService for the configured provider.
func NewEmbeddingService(cfg *EmbeddingConfig) (EmbeddingService, error) {
	switch cfg.Provider {
	case "local":
		return NewLocalEmbeddingService(cfg.Dimensions), nil
	case "openai":
		// Any OpenAI-compatible endpoint works here.
		clientConfig := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
		return &embeddingService{
			client:     openai.NewClientWithConfig(clientConfig),
			model:      cfg.Model,
			dimensions: cfg.Dimensions,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

func (s *embeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.New("empty embedding result")
	}
	return vectors[0], nil
}

func (s *embeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}

	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(s.model),
		Dimensions: s.dimensions,
	}

	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create embeddings failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	// Data carries its own index; do not trust response order.
	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", data.Index)
		}
		vectors[data.Index] = data.Embedding
	}
	return vectors, nil
}

func (s *embeddingService) Dimensions() int {
	return s.dimensions
}
