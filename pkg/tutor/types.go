// Package tutor runs Socratic tutoring sessions. Each session is a small
// per-student state machine: the tutor asks guiding questions grounded in
// course material, tracks the student's cognitive phase and affect, and is
// hard-stopped from leaking solutions by a post-hoc code-fence guard.
package tutor

import (
	"context"
	"time"

	"github.com/paideia-labs/paideia/pkg/trace"
)

// Phase is the student's position in the problem-solving arc.
type Phase string

const (
	PhaseExploration    Phase = "EXPLORATION"
	PhaseDecomposition  Phase = "DECOMPOSITION"
	PhasePlanning       Phase = "PLANNING"
	PhaseImplementation Phase = "IMPLEMENTATION"
	PhaseDebugging      Phase = "DEBUGGING"
	PhaseValidation     Phase = "VALIDATION"
	PhaseReflection     Phase = "REFLECTION"
)

// phaseOrder is the canonical progression; "go back" requests step one
// position earlier.
var phaseOrder = []Phase{
	PhaseExploration,
	PhaseDecomposition,
	PhasePlanning,
	PhaseImplementation,
	PhaseDebugging,
	PhaseValidation,
	PhaseReflection,
}

// CognitiveState is the tutor's model of the student. Frustration and
// understanding stay in [0,1]; the hint count resets on every phase
// transition.
type CognitiveState struct {
	Phase             Phase   `json:"phase"`
	Frustration       float64 `json:"frustration"`
	Understanding     float64 `json:"understanding"`
	HintCountInPhase  int     `json:"hint_count_in_phase"`
	TotalInteractions int     `json:"total_interactions"`
}

// ActivityContext is the snapshot a session takes of its activity at open
// time: instructions, the concepts the exercise is expected to teach, the
// starter code, and the RAG collection to ground replies in.
type ActivityContext struct {
	ActivityID       string
	CourseID         string
	CollectionKey    string
	Title            string
	Instructions     string
	ExpectedConcepts []string
	StarterCode      string
}

// ActivitySource resolves an activity for session open.
type ActivitySource interface {
	Activity(ctx context.Context, activityID string) (*ActivityContext, error)
}

// SendInput is one student turn. Code is the current editor snapshot;
// ErrorContext is set when the student's last run failed. Test results are
// signaled by the caller, not inferred.
type SendInput struct {
	Message      string
	Code         string
	ErrorContext *trace.ErrorContext
	TestsRun     bool
	TestsPassed  int
	TestsTotal   int
}

// Reply is the tutor's answer to one Send.
type Reply struct {
	SessionID     string  `json:"session_id"`
	Content       string  `json:"content"`
	Phase         Phase   `json:"phase"`
	Frustration   float64 `json:"frustration"`
	Understanding float64 `json:"understanding"`
	HintCount     int     `json:"hint_count"`
	Degraded      bool    `json:"degraded,omitempty"`
	Escalated     bool    `json:"escalated,omitempty"`
}

// sessionSnapshot is the persisted engine state of a session, stored as the
// JSON payload of a trace.SessionRecord.
type sessionSnapshot struct {
	State           CognitiveState `json:"state"`
	FenceLinesUsed  int            `json:"fence_lines_used"`
	LastCode        string         `json:"last_code,omitempty"`
	LastErrorDigest string         `json:"last_error_digest,omitempty"`
	SeenConcepts    []string       `json:"seen_concepts,omitempty"`
	OpenMarkers     []string       `json:"open_markers,omitempty"`
	ResolvedMarkers []string       `json:"resolved_markers,omitempty"`
	LastActivityAt  time.Time      `json:"last_activity_at"`
}
