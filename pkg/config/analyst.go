package config

import "fmt"

// AnalystConfig configures the pedagogical analyst pipeline.
type AnalystConfig struct {
	// TraceWindow is how many recent messages the audit consults.
	TraceWindow int `yaml:"trace_window,omitempty" json:"trace_window,omitempty" jsonschema:"minimum=1,default=20"`

	// SummaryLines is how many messages the compact summary quotes.
	SummaryLines int `yaml:"summary_lines,omitempty" json:"summary_lines,omitempty" jsonschema:"minimum=1,default=10"`

	// ExcerptChars truncates each quoted message.
	ExcerptChars int `yaml:"excerpt_chars,omitempty" json:"excerpt_chars,omitempty" jsonschema:"minimum=1,default=240"`

	// Temperature for the auditor call.
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty" jsonschema:"minimum=0,maximum=1,default=0.3"`

	// MinEvidence is the evidence quote floor requested from the model.
	MinEvidence int `yaml:"min_evidence,omitempty" json:"min_evidence,omitempty" jsonschema:"minimum=1,default=3"`
}

// SetDefaults applies default values.
func (c *AnalystConfig) SetDefaults() {
	if c.TraceWindow == 0 {
		c.TraceWindow = 20
	}
	if c.SummaryLines == 0 {
		c.SummaryLines = 10
	}
	if c.ExcerptChars == 0 {
		c.ExcerptChars = 240
	}
	if c.Temperature == nil {
		c.Temperature = Float64Ptr(0.3)
	}
	if c.MinEvidence == 0 {
		c.MinEvidence = 3
	}
}

// Validate checks the analyst configuration.
func (c *AnalystConfig) Validate() error {
	if c.SummaryLines > c.TraceWindow {
		return fmt.Errorf("summary_lines (%d) exceeds trace_window (%d)", c.SummaryLines, c.TraceWindow)
	}
	return nil
}
