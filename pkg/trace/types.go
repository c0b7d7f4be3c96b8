// Package trace is the append-only interaction log and the durable home of
// job, session, and audit state. It is a thin boundary over the relational
// store; messages are never updated after insert.
package trace

import (
	"context"
	"encoding/json"
	"time"
)

// Sender identifies the author of a message.
type Sender string

const (
	SenderStudent Sender = "STUDENT"
	SenderTutor   Sender = "TUTOR"
)

// ErrorContext is the structured error snapshot attached to a student
// message when their code failed.
type ErrorContext struct {
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// Message is one immutable interaction record. Phase and affect values are
// the cognitive state in effect when the message was produced.
type Message struct {
	ID            string        `json:"id"`
	SessionID     string        `json:"session_id"`
	StudentID     string        `json:"student_id"`
	ActivityID    string        `json:"activity_id"`
	Sender        Sender        `json:"sender"`
	Content       string        `json:"content"`
	Code          string        `json:"code,omitempty"`
	ErrorContext  *ErrorContext `json:"error_context,omitempty"`
	Phase         string        `json:"phase"`
	Frustration   float64       `json:"frustration"`
	Understanding float64       `json:"understanding"`
	Degraded      bool          `json:"degraded,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// SessionRecord is the persisted shape of a tutor session. State carries the
// engine-owned snapshot (cognitive state and starter context) as JSON.
type SessionRecord struct {
	ID         string
	StudentID  string
	ActivityID string
	CourseID   string
	Active     bool
	State      json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
	EndedAt    *time.Time
}

// JobRecord is the persisted shape of a generation job. Spec and Draft are
// engine-owned JSON snapshots.
type JobRecord struct {
	ID        string
	TeacherID string
	CourseID  string
	Phase     string
	Error     string
	Spec      json.RawMessage
	Draft     json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AuditRecord is a persisted pedagogical audit. Immutable after write.
type AuditRecord struct {
	ID           string
	StudentID    string
	ActivityID   string
	RiskScore    float64
	RiskLevel    string
	Category     string
	Diagnosis    string
	Evidence     []string
	Intervention string
	Confidence   float64
	Status       string
	Reason       string
	CreatedAt    time.Time
}

// MessageFilter bounds a trace read.
type MessageFilter struct {
	StudentID  string
	ActivityID string // empty matches all activities
	Limit      int
	Since      time.Time
}

// Store persists messages, sessions, jobs, and audits. Reads are
// snapshot-consistent within a call; writes are transactional per entity.
type Store interface {
	// AppendMessage inserts a message, assigning ID and timestamp when
	// unset. Messages are never updated afterwards.
	AppendMessage(ctx context.Context, msg *Message) error

	// SessionMessages returns a session's history, oldest first. A
	// positive limit keeps the newest limit messages.
	SessionMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error)

	// StudentMessages returns a student's messages across sessions,
	// oldest first, bounded by the filter.
	StudentMessages(ctx context.Context, filter MessageFilter) ([]*Message, error)

	SaveSession(ctx context.Context, record *SessionRecord) error
	GetSession(ctx context.Context, sessionID string) (*SessionRecord, error)
	ActiveSessions(ctx context.Context) ([]*SessionRecord, error)

	SaveJob(ctx context.Context, record *JobRecord) error
	GetJob(ctx context.Context, jobID string) (*JobRecord, error)
	JobsUpdatedBefore(ctx context.Context, cutoff time.Time) ([]*JobRecord, error)

	SaveAudit(ctx context.Context, record *AuditRecord) error
	GetAudit(ctx context.Context, auditID string) (*AuditRecord, error)

	Close() error
}
