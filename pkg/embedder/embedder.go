// Package embedder turns text into vectors for the retrieval substrate.
package embedder

import (
	"context"
	"fmt"

	"github.com/paideia-labs/paideia/pkg/config"
)

// Embedder converts text into fixed-dimension vectors. Implementations are
// safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
	Close() error
}

// NewEmbedder builds the embedder named by the configuration.
func NewEmbedder(cfg config.EmbedderConfig) (Embedder, error) {
	cfg.SetDefaults()
	switch cfg.Provider {
	case config.EmbedderProviderOllama:
		return NewOllamaEmbedder(cfg)
	case config.EmbedderProviderOpenAI:
		return NewOpenAIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedder provider: %q", cfg.Provider)
	}
}
