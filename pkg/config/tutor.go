package config

import "fmt"

// TutorConfig configures the tutor session engine.
type TutorConfig struct {
	// HistoryWindow is how many recent messages feed the prompt.
	HistoryWindow int `yaml:"history_window,omitempty" json:"history_window,omitempty" jsonschema:"minimum=1,default=6"`

	// TopK is the RAG retrieval depth for each student message.
	TopK int `yaml:"top_k,omitempty" json:"top_k,omitempty" jsonschema:"minimum=1,default=5"`

	// MaxFenceLines is the longest code fence a tutor reply may carry.
	MaxFenceLines int `yaml:"max_fence_lines,omitempty" json:"max_fence_lines,omitempty" jsonschema:"minimum=0,default=3"`

	// FenceBudgetLines is the cumulative code-fence budget per session.
	FenceBudgetLines int `yaml:"fence_budget_lines,omitempty" json:"fence_budget_lines,omitempty" jsonschema:"minimum=0,default=10"`

	// HintEscalation is the per-phase hint count that forces escalation.
	HintEscalation int `yaml:"hint_escalation,omitempty" json:"hint_escalation,omitempty" jsonschema:"minimum=1,default=3"`

	// CodeTruncateChars bounds the code snapshot placed in the prompt.
	CodeTruncateChars int `yaml:"code_truncate_chars,omitempty" json:"code_truncate_chars,omitempty" jsonschema:"minimum=1,default=2000"`

	// IdleGraceMinutes ends sessions idle past the grace threshold.
	IdleGraceMinutes int `yaml:"idle_grace_minutes,omitempty" json:"idle_grace_minutes,omitempty" jsonschema:"minimum=1,default=45"`

	// FrustrationMarkers override the default marker phrases. Matching is
	// case-insensitive substring.
	FrustrationMarkers []string `yaml:"frustration_markers,omitempty" json:"frustration_markers,omitempty"`

	// HintVerbs override the default imperative hinting verbs.
	HintVerbs []string `yaml:"hint_verbs,omitempty" json:"hint_verbs,omitempty"`

	// Streaming requests streamed tutor replies from the gateway.
	Streaming bool `yaml:"streaming,omitempty" json:"streaming,omitempty"`
}

// DefaultFrustrationMarkers is the built-in marker set. Configuration, not
// contract; deployments tune it per course language.
var DefaultFrustrationMarkers = []string{
	"i don't understand",
	"i dont understand",
	"i don't get it",
	"i dont get it",
	"this makes no sense",
	"makes no sense",
	"i give up",
	"giving up",
	"i'm stuck",
	"im stuck",
	"so confused",
	"i hate this",
	"this is stupid",
	"wtf",
	"this sucks",
	"impossible",
}

// DefaultHintVerbs classify a tutor reply as a hint when one of these opens
// an imperative sentence.
var DefaultHintVerbs = []string{
	"try", "check", "look", "consider", "think", "remember", "review",
	"examine", "trace", "compare", "start",
}

// SetDefaults applies default values.
func (c *TutorConfig) SetDefaults() {
	if c.HistoryWindow == 0 {
		c.HistoryWindow = 6
	}
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.MaxFenceLines == 0 {
		c.MaxFenceLines = 3
	}
	if c.FenceBudgetLines == 0 {
		c.FenceBudgetLines = 10
	}
	if c.HintEscalation == 0 {
		c.HintEscalation = 3
	}
	if c.CodeTruncateChars == 0 {
		c.CodeTruncateChars = 2000
	}
	if c.IdleGraceMinutes == 0 {
		c.IdleGraceMinutes = 45
	}
	if len(c.FrustrationMarkers) == 0 {
		c.FrustrationMarkers = DefaultFrustrationMarkers
	}
	if len(c.HintVerbs) == 0 {
		c.HintVerbs = DefaultHintVerbs
	}
}

// Validate checks the tutor configuration.
func (c *TutorConfig) Validate() error {
	if c.MaxFenceLines > c.FenceBudgetLines {
		return fmt.Errorf("max_fence_lines (%d) exceeds fence_budget_lines (%d)", c.MaxFenceLines, c.FenceBudgetLines)
	}
	return nil
}
