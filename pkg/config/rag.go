package config

import "fmt"

// EmbedderProvider identifies the embedder type.
type EmbedderProvider string

const (
	EmbedderProviderOllama EmbedderProvider = "ollama"
	EmbedderProviderOpenAI EmbedderProvider = "openai"
)

// EmbedderConfig configures the embedding model handle.
type EmbedderConfig struct {
	Provider   EmbedderProvider `yaml:"provider,omitempty" json:"provider,omitempty" jsonschema:"enum=ollama,enum=openai,default=ollama"`
	Model      string           `yaml:"model,omitempty" json:"model,omitempty"`
	APIKey     string           `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Host       string           `yaml:"host,omitempty" json:"host,omitempty"`
	Dimension  int              `yaml:"dimension,omitempty" json:"dimension,omitempty" jsonschema:"minimum=1,default=768"`
	TimeoutSec int              `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty" jsonschema:"minimum=1,default=30"`
	MaxRetries int              `yaml:"max_retries,omitempty" json:"max_retries,omitempty" jsonschema:"minimum=0,default=3"`
	BatchSize  int              `yaml:"batch_size,omitempty" json:"batch_size,omitempty" jsonschema:"minimum=1,default=32"`
}

// SetDefaults applies default values.
func (c *EmbedderConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = EmbedderProviderOllama
	}
	if c.Model == "" {
		switch c.Provider {
		case EmbedderProviderOpenAI:
			c.Model = "text-embedding-3-small"
		default:
			c.Model = "nomic-embed-text"
		}
	}
	if c.Host == "" {
		switch c.Provider {
		case EmbedderProviderOpenAI:
			c.Host = "https://api.openai.com/v1"
		default:
			c.Host = "http://localhost:11434"
		}
	}
	if c.Dimension == 0 {
		if c.Provider == EmbedderProviderOpenAI {
			c.Dimension = 1536
		} else {
			c.Dimension = 768
		}
	}
	if c.TimeoutSec == 0 {
		c.TimeoutSec = 30
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
}

// Validate checks the embedder configuration.
func (c *EmbedderConfig) Validate() error {
	switch c.Provider {
	case EmbedderProviderOllama, EmbedderProviderOpenAI:
	default:
		return fmt.Errorf("invalid embedder provider: %q", c.Provider)
	}
	if c.Dimension < 1 {
		return fmt.Errorf("embedder dimension must be positive")
	}
	return nil
}

// VectorProvider identifies the vector store type.
type VectorProvider string

const (
	VectorProviderChromem VectorProvider = "chromem"
	VectorProviderQdrant  VectorProvider = "qdrant"
)

// VectorConfig configures the vector store client handle.
type VectorConfig struct {
	Provider VectorProvider `yaml:"provider,omitempty" json:"provider,omitempty" jsonschema:"enum=chromem,enum=qdrant,default=chromem"`

	// PersistPath enables file persistence for the chromem provider.
	PersistPath string `yaml:"persist_path,omitempty" json:"persist_path,omitempty"`

	// Compress enables gzip compression for chromem persistence.
	Compress bool `yaml:"compress,omitempty" json:"compress,omitempty"`

	// Host and Port locate an external qdrant instance.
	Host string `yaml:"host,omitempty" json:"host,omitempty"`
	Port int    `yaml:"port,omitempty" json:"port,omitempty"`

	// APIKey authenticates against managed qdrant.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// UseTLS enables TLS for the qdrant connection.
	UseTLS bool `yaml:"use_tls,omitempty" json:"use_tls,omitempty"`
}

// SetDefaults applies default values.
func (c *VectorConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = VectorProviderChromem
	}
	if c.Provider == VectorProviderQdrant {
		if c.Host == "" {
			c.Host = "localhost"
		}
		if c.Port == 0 {
			c.Port = 6334
		}
	}
}

// Validate checks the vector store configuration.
func (c *VectorConfig) Validate() error {
	switch c.Provider {
	case VectorProviderChromem, VectorProviderQdrant:
	default:
		return fmt.Errorf("invalid vector provider: %q", c.Provider)
	}
	return nil
}

// RAGConfig configures chunking and retrieval.
type RAGConfig struct {
	// ChunkWords is the target chunk length in words.
	ChunkWords int `yaml:"chunk_words,omitempty" json:"chunk_words,omitempty" jsonschema:"minimum=1,default=500"`

	// OverlapWords is the overlap between consecutive chunks.
	OverlapWords int `yaml:"overlap_words,omitempty" json:"overlap_words,omitempty" jsonschema:"minimum=0,default=100"`

	// TopK is the default retrieval depth.
	TopK int `yaml:"top_k,omitempty" json:"top_k,omitempty" jsonschema:"minimum=1,default=5"`
}

// SetDefaults applies default values.
func (c *RAGConfig) SetDefaults() {
	if c.ChunkWords == 0 {
		c.ChunkWords = 500
	}
	if c.OverlapWords == 0 {
		c.OverlapWords = 100
	}
	if c.TopK == 0 {
		c.TopK = 5
	}
}

// Validate checks the RAG configuration.
func (c *RAGConfig) Validate() error {
	if c.OverlapWords >= c.ChunkWords {
		return fmt.Errorf("overlap_words (%d) must be smaller than chunk_words (%d)", c.OverlapWords, c.ChunkWords)
	}
	return nil
}
