package vector

import (
	"fmt"

	"github.com/paideia-labs/paideia/pkg/config"
)

// NewProvider builds the vector store named by the configuration.
func NewProvider(cfg config.VectorConfig) (Provider, error) {
	cfg.SetDefaults()
	switch cfg.Provider {
	case config.VectorProviderChromem:
		return NewChromemProvider(cfg)
	case config.VectorProviderQdrant:
		return NewQdrantProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown vector provider: %q", cfg.Provider)
	}
}
