package config

import "fmt"

// GeneratorConfig configures the generation workflow engine.
type GeneratorConfig struct {
	// ExerciseCount is the number of exercises a draft must contain.
	ExerciseCount int `yaml:"exercise_count,omitempty" json:"exercise_count,omitempty" jsonschema:"minimum=1,default=10"`

	// DifficultyMix is the required EASY/MEDIUM/HARD histogram. The three
	// values must sum to ExerciseCount.
	EasyCount   int `yaml:"easy_count,omitempty" json:"easy_count,omitempty" jsonschema:"default=3"`
	MediumCount int `yaml:"medium_count,omitempty" json:"medium_count,omitempty" jsonschema:"default=4"`
	HardCount   int `yaml:"hard_count,omitempty" json:"hard_count,omitempty" jsonschema:"default=3"`

	// Workers bounds the background job pool.
	Workers int `yaml:"workers,omitempty" json:"workers,omitempty" jsonschema:"minimum=1,default=4"`

	// QueueSize bounds pending jobs before Start blocks.
	QueueSize int `yaml:"queue_size,omitempty" json:"queue_size,omitempty" jsonschema:"minimum=1,default=64"`

	// ExcerptQueries is how many RAG queries feed the excerpt block.
	ExcerptQueries int `yaml:"excerpt_queries,omitempty" json:"excerpt_queries,omitempty" jsonschema:"minimum=1,default=5"`

	// ExcerptTopK is the retrieval depth per excerpt query.
	ExcerptTopK int `yaml:"excerpt_top_k,omitempty" json:"excerpt_top_k,omitempty" jsonschema:"minimum=1,default=5"`

	// MinTestCases is the per-exercise test case floor.
	MinTestCases int `yaml:"min_test_cases,omitempty" json:"min_test_cases,omitempty" jsonschema:"minimum=1,default=3"`

	// JobTTLHours garbage-collects terminal jobs by age.
	JobTTLHours int `yaml:"job_ttl_hours,omitempty" json:"job_ttl_hours,omitempty" jsonschema:"minimum=1,default=168"`
}

// SetDefaults applies default values.
func (c *GeneratorConfig) SetDefaults() {
	if c.ExerciseCount == 0 {
		c.ExerciseCount = 10
	}
	if c.EasyCount == 0 && c.MediumCount == 0 && c.HardCount == 0 {
		c.EasyCount, c.MediumCount, c.HardCount = 3, 4, 3
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.QueueSize == 0 {
		c.QueueSize = 64
	}
	if c.ExcerptQueries == 0 {
		c.ExcerptQueries = 5
	}
	if c.ExcerptTopK == 0 {
		c.ExcerptTopK = 5
	}
	if c.MinTestCases == 0 {
		c.MinTestCases = 3
	}
	if c.JobTTLHours == 0 {
		c.JobTTLHours = 168
	}
}

// Validate checks the generator configuration.
func (c *GeneratorConfig) Validate() error {
	if c.EasyCount+c.MediumCount+c.HardCount != c.ExerciseCount {
		return fmt.Errorf("difficulty mix %d/%d/%d does not sum to exercise_count %d",
			c.EasyCount, c.MediumCount, c.HardCount, c.ExerciseCount)
	}
	return nil
}
