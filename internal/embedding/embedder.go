// Package embedding turns text into dense vectors for similarity search.
package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/quokkadev/opsrag/internal/config"
)

// Embedder produces L2-normalized embedding vectors.
type Embedder interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embeddings for multiple texts in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimensionality.
	Dimensions() int

	// Close releases provider resources.
	Close() error
}

// New constructs the embedder named by cfg.Provider, wrapped in an LRU cache
// when cfg.CacheSize > 0.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch cfg.Provider {
	case "ollama":
		e, err = NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Dimensions, logger)
	case "onnx":
		e, err = NewONNXEmbedder(cfg.ModelPath, cfg.TokenizerPath, cfg.Dimensions, logger)
	case "mock":
		e = NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 {
		e, err = NewCachedEmbedder(e, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
	}
	return e, nil
}
