// Package generator drives exercise-generation jobs from course material
// through review to publication. Jobs run on a bounded worker pool; the
// AWAITING_REVIEW phase is an explicit suspension point and approval may
// arrive arbitrarily later.
package generator

import (
	"context"
	"time"
)

// Difficulty grades a draft exercise.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// Phase is a job's position in its lifecycle. CREATED exists only
// transiently at enqueue; PUBLISHED and FAILED are terminal.
type Phase string

const (
	PhaseCreated        Phase = "CREATED"
	PhaseIngesting      Phase = "INGESTING"
	PhaseGenerating     Phase = "GENERATING"
	PhaseAwaitingReview Phase = "AWAITING_REVIEW"
	PhasePublishing     Phase = "PUBLISHING"
	PhasePublished      Phase = "PUBLISHED"
	PhaseFailed         Phase = "FAILED"
)

func (p Phase) Terminal() bool {
	return p == PhasePublished || p == PhaseFailed
}

// Requirements describe what the professor prompt must produce.
type Requirements struct {
	Topic            string   `json:"topic"`
	Language         string   `json:"language"`
	Concepts         []string `json:"concepts,omitempty"`
	EstimatedMinutes int      `json:"estimated_minutes,omitempty"`
}

// JobSpec is the input to Start. Source is the raw course material; the
// collection key names the RAG collection the job ingests into.
type JobSpec struct {
	TeacherID     string       `json:"teacher_id"`
	CourseID      string       `json:"course_id"`
	Requirements  Requirements `json:"requirements"`
	SourceName    string       `json:"source_name"`
	Source        []byte       `json:"source"`
	CollectionKey string       `json:"collection_key"`
}

// TestCase is one graded check attached to an exercise. Input and expected
// output are byte-exact.
type TestCase struct {
	Ordinal        int    `json:"ordinal" jsonschema:"description=Zero-based position of this test case"`
	Description    string `json:"description" jsonschema:"description=What the test checks"`
	Input          string `json:"input" jsonschema:"description=Exact stdin fed to the program"`
	ExpectedOutput string `json:"expected_output" jsonschema:"description=Exact stdout the program must produce"`
	IsHidden       bool   `json:"is_hidden" jsonschema:"description=Hidden cases are not shown to students"`
	TimeoutMs      int    `json:"timeout_ms,omitempty" jsonschema:"description=Per-test execution budget in milliseconds"`
}

// DraftExercise is one generated exercise. Immutable once the draft reaches
// review; regeneration replaces the whole draft.
type DraftExercise struct {
	Title              string     `json:"title" jsonschema:"description=Short exercise title"`
	Description        string     `json:"description" jsonschema:"description=One-paragraph summary"`
	Difficulty         Difficulty `json:"difficulty" jsonschema:"enum=EASY,enum=MEDIUM,enum=HARD"`
	Mission            string     `json:"mission" jsonschema:"description=Full problem statement in markdown"`
	StarterCode        string     `json:"starter_code" jsonschema:"description=Scaffold the student begins from"`
	SolutionCode       string     `json:"solution_code" jsonschema:"description=Reference solution"`
	Concepts           []string   `json:"concepts" jsonschema:"description=Concepts the exercise practices"`
	LearningObjectives []string   `json:"learning_objectives" jsonschema:"description=Ordered objectives"`
	TestCases          []TestCase `json:"test_cases" jsonschema:"description=At least three cases with at least one hidden"`
	EstimatedMinutes   int        `json:"estimated_minutes" jsonschema:"description=Expected completion time"`
}

// JobStatus is the lightweight read surface of a job.
type JobStatus struct {
	ID        string    `json:"id"`
	Phase     Phase     `json:"phase"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PublishRequest hands an approved draft to the catalog. Exercises are
// ordered by the teacher's approved indices.
type PublishRequest struct {
	JobID     string
	TeacherID string
	CourseID  string
	Title     string
	Language  string
	Exercises []DraftExercise
}

// PublishResult reports what the catalog committed.
type PublishResult struct {
	ActivityID  string   `json:"activity_id"`
	ExerciseIDs []string `json:"exercise_ids"`
}

// CatalogWriter commits an activity and its exercises in a single
// transaction. Implementations must be idempotent on JobID so a retried
// publication after a transport failure does not double-insert.
type CatalogWriter interface {
	Publish(ctx context.Context, req PublishRequest) (*PublishResult, error)
}
