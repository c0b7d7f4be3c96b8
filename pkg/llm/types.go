// Package llm is the only place that talks to the chat model. It presents a
// narrow capability set (single-turn chat and streaming chat) to the rest of
// the core and owns the JSON output contract.
package llm

import (
	"context"
	"time"
)

// Request is a single-turn chat request passed to a provider.
type Request struct {
	System      string
	User        string
	Model       string
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

// Options control a gateway call. The zero value inherits the configured
// defaults.
type Options struct {
	// Model overrides the configured model tag.
	Model string

	// Temperature overrides the configured sampling temperature.
	Temperature *float64

	// MaxTokens overrides the configured completion cap.
	MaxTokens int

	// Timeout is the wall-clock budget for the call, queue wait included.
	Timeout time.Duration

	// JSON declares that the caller expects a JSON object and enables the
	// recovery ladder.
	JSON bool

	// RequiredFields drive the regex extraction step of JSON recovery for
	// flat schemas. Ignored unless JSON is set.
	RequiredFields []string
}

// CompletionResult is a finished single-turn completion.
type CompletionResult struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// StreamChunk is one element of a finite, ordered, non-restartable reply
// stream. Consumers either drain the channel or abandon it.
type StreamChunk struct {
	Type   string // "text", "done", "error"
	Text   string
	Tokens int
	Err    error
}

const (
	ChunkTypeText  = "text"
	ChunkTypeDone  = "done"
	ChunkTypeError = "error"
)

// Provider is a chat model backend. Implementations classify failures into
// fault kinds; they do not impose their own retry policy beyond transport
// retries.
type Provider interface {
	Complete(ctx context.Context, req Request) (*CompletionResult, error)
	CompleteStream(ctx context.Context, req Request) (<-chan StreamChunk, error)
	ModelName() string
	Close() error
}
