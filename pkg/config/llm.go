package config

import "fmt"

// LLMProvider identifies the LLM provider type.
type LLMProvider string

const (
	LLMProviderOpenAI    LLMProvider = "openai"
	LLMProviderAnthropic LLMProvider = "anthropic"
	LLMProviderOllama    LLMProvider = "ollama"
)

// LLMConfig configures the LLM gateway and its provider.
type LLMConfig struct {
	// Provider type (openai, anthropic, ollama).
	Provider LLMProvider `yaml:"provider,omitempty" json:"provider,omitempty" jsonschema:"title=Provider,enum=openai,enum=anthropic,enum=ollama,default=openai"`

	// Model tag passed through to the provider.
	Model string `yaml:"model,omitempty" json:"model,omitempty" jsonschema:"title=Model"`

	// APIKey for authentication; resolved by the caller.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty" jsonschema:"title=API Key"`

	// Host overrides the default API endpoint.
	Host string `yaml:"host,omitempty" json:"host,omitempty" jsonschema:"title=Host"`

	// Temperature for generation.
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty" jsonschema:"minimum=0,maximum=2,default=0.7"`

	// MaxTokens limits response length.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty" jsonschema:"minimum=1,default=4096"`

	// TimeoutSeconds is the per-call wall-clock budget.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty" jsonschema:"minimum=1,default=60"`

	// MaxRetries caps retries of transient failures.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty" jsonschema:"minimum=0,default=3"`

	// RetryBaseDelayMs is the first full-jitter backoff delay.
	RetryBaseDelayMs int `yaml:"retry_base_delay_ms,omitempty" json:"retry_base_delay_ms,omitempty" jsonschema:"minimum=1,default=250"`

	// MaxConcurrent caps in-flight calls process-wide.
	MaxConcurrent int `yaml:"max_concurrent,omitempty" json:"max_concurrent,omitempty" jsonschema:"minimum=1,default=8"`
}

// SetDefaults applies default values.
func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = LLMProviderOpenAI
	}
	if c.Model == "" {
		switch c.Provider {
		case LLMProviderAnthropic:
			c.Model = "claude-sonnet-4-20250514"
		case LLMProviderOllama:
			c.Model = "llama3.2"
		default:
			c.Model = "gpt-4o"
		}
	}
	if c.Host == "" {
		switch c.Provider {
		case LLMProviderOpenAI:
			c.Host = "https://api.openai.com/v1"
		case LLMProviderAnthropic:
			c.Host = "https://api.anthropic.com"
		case LLMProviderOllama:
			c.Host = "http://localhost:11434"
		}
	}
	if c.Temperature == nil {
		c.Temperature = Float64Ptr(0.7)
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 60
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseDelayMs == 0 {
		c.RetryBaseDelayMs = 250
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 8
	}
}

// Validate checks the LLM configuration.
func (c *LLMConfig) Validate() error {
	switch c.Provider {
	case LLMProviderOpenAI, LLMProviderAnthropic, LLMProviderOllama:
	default:
		return fmt.Errorf("invalid llm provider: %q", c.Provider)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be in [0, 2], got %v", *c.Temperature)
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1")
	}
	return nil
}
