// Package embedding provides a pluggable interface for text embedding providers.
package embedding

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/rcliao/working-memory/internal/config"
)

// Vector is a float32 embedding vector.
type Vector = []float32

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	Dims() int
}

// CosineSimilarity computes cosine similarity between two vectors.
func CosineSimilarity(a, b Vector) float64 {
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
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// New creates the embedder named by cfg, wrapped in a cache when
// cfg.CacheSize is positive. It returns nil, nil when embeddings are
// disabled.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	var e Embedder
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "hash":
		e = NewHashEmbedder(cfg.Dims)
	case "openai":
		keyEnv := cfg.APIKeyEnv
		if keyEnv == "" {
			keyEnv = "OPENAI_API_KEY"
		}
		e = NewOpenAIEmbedder(cfg.URL, os.Getenv(keyEnv), cfg.Model, cfg.Dims)
	case "ollama":
		o, err := NewOllamaEmbedder(cfg.URL, cfg.Model, cfg.Dims)
		if err != nil {
			return nil, err
		}
		e = o
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	if cfg.CacheSize > 0 {
		cached, err := NewCachedEmbedder(e, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		return cached, nil
	}
	return e, nil
}
