// Package config holds the configuration surface of the core. Each section
// carries its own SetDefaults and Validate; the root Config composes them.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the core.
type Config struct {
	LLM        LLMConfig        `yaml:"llm,omitempty" json:"llm,omitempty"`
	Embedder   EmbedderConfig   `yaml:"embedder,omitempty" json:"embedder,omitempty"`
	Vector     VectorConfig     `yaml:"vector,omitempty" json:"vector,omitempty"`
	RAG        RAGConfig        `yaml:"rag,omitempty" json:"rag,omitempty"`
	Generator  GeneratorConfig  `yaml:"generator,omitempty" json:"generator,omitempty"`
	Tutor      TutorConfig      `yaml:"tutor,omitempty" json:"tutor,omitempty"`
	Analyst    AnalystConfig    `yaml:"analyst,omitempty" json:"analyst,omitempty"`
	TraceStore TraceStoreConfig `yaml:"trace_store,omitempty" json:"trace_store,omitempty"`

	LogLevel  string `yaml:"log_level,omitempty" json:"log_level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info"`
	LogFormat string `yaml:"log_format,omitempty" json:"log_format,omitempty" jsonschema:"enum=simple,enum=verbose,default=simple"`
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.LLM.SetDefaults()
	c.Embedder.SetDefaults()
	c.Vector.SetDefaults()
	c.RAG.SetDefaults()
	c.Generator.SetDefaults()
	c.Tutor.SetDefaults()
	c.Analyst.SetDefaults()
	c.TraceStore.SetDefaults()
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "simple"
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Embedder.Validate(); err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	if err := c.Vector.Validate(); err != nil {
		return fmt.Errorf("vector: %w", err)
	}
	if err := c.RAG.Validate(); err != nil {
		return fmt.Errorf("rag: %w", err)
	}
	if err := c.Generator.Validate(); err != nil {
		return fmt.Errorf("generator: %w", err)
	}
	if err := c.Tutor.Validate(); err != nil {
		return fmt.Errorf("tutor: %w", err)
	}
	if err := c.Analyst.Validate(); err != nil {
		return fmt.Errorf("analyst: %w", err)
	}
	if err := c.TraceStore.Validate(); err != nil {
		return fmt.Errorf("trace_store: %w", err)
	}
	return nil
}

// Default returns a fully defaulted configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// Load reads a YAML config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
