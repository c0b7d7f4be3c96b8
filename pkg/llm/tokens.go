package llm

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens for prompt budgeting. Models without a known
// tiktoken encoding fall back to cl100k_base, which is close enough for
// truncation decisions.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	encodingCache   = make(map[string]*tiktoken.Tiktoken)
	encodingCacheMu sync.RWMutex
)

// NewTokenCounter creates a counter for the given model.
func NewTokenCounter(model string) (*TokenCounter, error) {
	encodingCacheMu.RLock()
	cached, exists := encodingCache[model]
	encodingCacheMu.RUnlock()

	if exists {
		return &TokenCounter{encoding: cached, model: model}, nil
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("failed to get encoding: %w", err)
		}
	}

	encodingCacheMu.Lock()
	encodingCache[model] = encoding
	encodingCacheMu.Unlock()

	return &TokenCounter{encoding: encoding, model: model}, nil
}

// Count returns the token count for text.
func (tc *TokenCounter) Count(text string) int {
	return len(tc.encoding.Encode(text, nil, nil))
}

// Truncate cuts text to at most maxTokens tokens, decoding back to a valid
// string at the boundary.
func (tc *TokenCounter) Truncate(text string, maxTokens int) string {
	tokens := tc.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return tc.encoding.Decode(tokens[:maxTokens])
}
