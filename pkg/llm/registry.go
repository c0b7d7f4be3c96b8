package llm

import (
	"fmt"

	"github.com/paideia-labs/paideia/pkg/config"
	"github.com/paideia-labs/paideia/pkg/fault"
)

// NewProvider builds the provider named by the configuration.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	cfg.SetDefaults()
	switch cfg.Provider {
	case config.LLMProviderOpenAI:
		return NewOpenAIProvider(cfg)
	case config.LLMProviderAnthropic:
		return NewAnthropicProvider(cfg)
	case config.LLMProviderOllama:
		return NewOllamaProvider(cfg)
	default:
		return nil, fault.New(fault.KindRequest, component, "new_provider",
			fmt.Sprintf("unknown provider type: %q", cfg.Provider))
	}
}
