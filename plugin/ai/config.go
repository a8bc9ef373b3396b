package ai

import (
	"errors"
	"time"

	"github.com/hrygo/harvestline/internal/profile"
)

// DefaultFallbackModels are tried, in order, after the preferred model.
var DefaultFallbackModels = []string{
	"typhoon-v2.5-30b-a3b-instruct",
	"typhoon-v2.1-12b-instruct",
	"typhoon-v1.5x-70b-instruct",
	"typhoon-v1.5-70b-instruct",
}

const (
	defaultTemperature         = 0.6
	defaultMaxTokens           = 512
	defaultTopP                = 0.9
	defaultLocalEmbeddingDims  = 256
	defaultRemoteEmbeddingDims = 0
)

// Config represents AI configuration.
type Config struct {
	Embedding EmbeddingConfig
	LLM       LLMConfig
}

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Provider   string // openai, local
	Model      string
	Dimensions int // 0 lets the remote model pick
	APIKey     string
	BaseURL    string
}

// LLMConfig represents the completion backend configuration.
type LLMConfig struct {
	// Model is the preferred candidate. Empty means fallbacks only.
	Model          string
	FallbackModels []string
	APIKey         string
	BaseURL        string
	MaxTokens      int     // default: 512
	Temperature    float32 // default: 0.6
	TopP           float32 // default: 0.9
	// Timeout bounds a single attempt.
	Timeout time.Duration
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		LLM: LLMConfig{
			Model:          p.LLMModel,
			FallbackModels: DefaultFallbackModels,
			APIKey:         p.LLMAPIKey,
			BaseURL:        p.LLMBaseURL,
			MaxTokens:      defaultMaxTokens,
			Temperature:    defaultTemperature,
			TopP:           defaultTopP,
			Timeout:        p.LLMTimeout,
		},
		Embedding: EmbeddingConfig{
			Provider:   p.EmbeddingProvider,
			Model:      p.EmbeddingModel,
			Dimensions: p.EmbeddingDimensions,
			APIKey:     p.EmbeddingAPIKey,
			BaseURL:    p.EmbeddingBaseURL,
		},
	}

	if cfg.Embedding.Provider == "local" && cfg.Embedding.Dimensions <= 0 {
		cfg.Embedding.Dimensions = defaultLocalEmbeddingDims
	}
	if cfg.Embedding.Provider == "openai" && cfg.Embedding.Dimensions < 0 {
		cfg.Embedding.Dimensions = defaultRemoteEmbeddingDims
	}
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return errors.New("LLM API key is required")
	}
	if c.LLM.Model == "" && len(c.LLM.FallbackModels) == 0 {
		return errors.New("at least one LLM model is required")
	}

	switch c.Embedding.Provider {
	case "local":
	case "openai":
		if c.Embedding.APIKey == "" {
			return errors.New("embedding API key is required")
		}
	default:
		return errors.New("embedding provider is required")
	}
	return nil
}
