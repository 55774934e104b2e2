package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"talent-match/internal/config"
)

// ErrEmbeddingUnavailable is returned once retries against the embedding provider are exhausted.
var ErrEmbeddingUnavailable = errors.New("embedding unavailable")

// Embedder turns text into a vector. ModelVersion identifies the vector space;
// vectors with different versions are not comparable.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelVersion() string
}

// NewEmbedder creates an embedder for the configured provider wrapped with
// rate limiting and retries.
// Supported providers: "hash", "ollama", "openai", "gemini".
func NewEmbedder(ctx context.Context, cfg config.EmbeddingConfig, log *zap.Logger) (*Resilient, error) {
	provider := strings.ToLower(cfg.Provider)
	model := cfg.Model
	if model == "" {
		model = DefaultModel(provider)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultURL(provider)
	}

	var inner Embedder
	switch provider {
	case "hash", "":
		inner = NewHashEmbedder(cfg.Dimensions)
	case "ollama":
		inner = NewOllamaClient(baseURL, model, cfg.Timeout)
	case "openai":
		if cfg.APIKey == "" {
			return nil, errors.New("openai embeddings need an api key")
		}
		inner = NewOpenAIClient(baseURL, model, cfg.APIKey, cfg.Timeout)
	case "gemini":
		g, err := NewGeminiClient(ctx, cfg.APIKey, model, cfg.Dimensions)
		if err != nil {
			return nil, err
		}
		inner = g
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (supported: hash, ollama, openai, gemini)", cfg.Provider)
	}

	rc := RetryConfig{
		MaxRetries:  cfg.MaxRetries,
		InitialWait: cfg.InitialWait,
		MaxWait:     cfg.MaxWait,
		Multiplier:  2.0,
	}
	return NewResilient(inner, rc, cfg.RateLimit, cfg.Burst, log), nil
}

// DefaultURL returns the default base URL for a given provider
func DefaultURL(provider string) string {
	switch provider {
	case "ollama":
		return "http://localhost:11434"
	case "openai":
		return "https://api.openai.com/v1"
	default:
		return ""
	}
}

// DefaultModel returns the default model name for a given provider
func DefaultModel(provider string) string {
	switch provider {
	case "ollama":
		return "nomic-embed-text"
	case "openai":
		return "text-embedding-3-small"
	case "gemini":
		return "gemini-embedding-001"
	default:
		return ""
	}
}
