package trace

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paideia-labs/paideia/pkg/fault"
)

const component = "trace"

// MemoryStore is the in-process Store used for development and tests. All
// reads return copies, so callers never observe later writes through a
// previously returned snapshot.
type MemoryStore struct {
	mu       sync.RWMutex
	messages []*Message
	sessions map[string]*SessionRecord
	jobs     map[string]*JobRecord
	audits   map[string]*AuditRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*SessionRecord),
		jobs:     make(map[string]*JobRecord),
		audits:   make(map[string]*AuditRecord),
	}
}

// AppendMessage inserts a message, assigning ID and timestamp when unset.
func (s *MemoryStore) AppendMessage(ctx context.Context, msg *Message) error {
	if msg.SessionID == "" {
		return fault.New(fault.KindRequest, component, "append_message", "session id is required")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *msg
	if msg.ErrorContext != nil {
		ec := *msg.ErrorContext
		stored.ErrorContext = &ec
	}
	s.messages = append(s.messages, &stored)
	return nil
}

// SessionMessages returns a session's history, oldest first.
func (s *MemoryStore) SessionMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Message
	for _, msg := range s.messages {
		if msg.SessionID == sessionID {
			out = append(out, copyMessage(msg))
		}
	}
	return tail(out, limit), nil
}

// StudentMessages returns a student's messages, oldest first.
func (s *MemoryStore) StudentMessages(ctx context.Context, filter MessageFilter) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Message
	for _, msg := range s.messages {
		if msg.StudentID != filter.StudentID {
			continue
		}
		if filter.ActivityID != "" && msg.ActivityID != filter.ActivityID {
			continue
		}
		if !filter.Since.IsZero() && msg.Timestamp.Before(filter.Since) {
			continue
		}
		out = append(out, copyMessage(msg))
	}
	return tail(out, filter.Limit), nil
}

// SaveSession inserts or replaces a session record.
func (s *MemoryStore) SaveSession(ctx context.Context, record *SessionRecord) error {
	if record.ID == "" {
		return fault.New(fault.KindRequest, component, "save_session", "session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *record
	stored.UpdatedAt = time.Now()
	s.sessions[record.ID] = &stored
	return nil
}

// GetSession returns a session record by ID.
func (s *MemoryStore) GetSession(ctx context.Context, sessionID string) (*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.sessions[sessionID]
	if !ok {
		return nil, fault.New(fault.KindNotFound, component, "get_session",
			fmt.Sprintf("session %q does not exist", sessionID))
	}
	copied := *record
	return &copied, nil
}

// ActiveSessions returns all sessions still marked active.
func (s *MemoryStore) ActiveSessions(ctx context.Context) ([]*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*SessionRecord
	for _, record := range s.sessions {
		if record.Active {
			copied := *record
			out = append(out, &copied)
		}
	}
	return out, nil
}

// SaveJob inserts or replaces a job record.
func (s *MemoryStore) SaveJob(ctx context.Context, record *JobRecord) error {
	if record.ID == "" {
		return fault.New(fault.KindRequest, component, "save_job", "job id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *record
	stored.UpdatedAt = time.Now()
	s.jobs[record.ID] = &stored
	return nil
}

// GetJob returns a job record by ID.
func (s *MemoryStore) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.jobs[jobID]
	if !ok {
		return nil, fault.New(fault.KindNotFound, component, "get_job",
			fmt.Sprintf("job %q does not exist", jobID))
	}
	copied := *record
	return &copied, nil
}

// JobsUpdatedBefore returns jobs last touched before the cutoff.
func (s *MemoryStore) JobsUpdatedBefore(ctx context.Context, cutoff time.Time) ([]*JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*JobRecord
	for _, record := range s.jobs {
		if record.UpdatedAt.Before(cutoff) {
			copied := *record
			out = append(out, &copied)
		}
	}
	return out, nil
}

// SaveAudit inserts an audit record.
func (s *MemoryStore) SaveAudit(ctx context.Context, record *AuditRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *record
	stored.Evidence = append([]string(nil), record.Evidence...)
	s.audits[record.ID] = &stored
	return nil
}

// GetAudit returns an audit record by ID.
func (s *MemoryStore) GetAudit(ctx context.Context, auditID string) (*AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.audits[auditID]
	if !ok {
		return nil, fault.New(fault.KindNotFound, component, "get_audit",
			fmt.Sprintf("audit %q does not exist", auditID))
	}
	copied := *record
	copied.Evidence = append([]string(nil), record.Evidence...)
	return &copied, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func copyMessage(msg *Message) *Message {
	copied := *msg
	if msg.ErrorContext != nil {
		ec := *msg.ErrorContext
		copied.ErrorContext = &ec
	}
	return &copied
}

func tail(msgs []*Message, limit int) []*Message {
	if limit > 0 && len(msgs) > limit {
		return msgs[len(msgs)-limit:]
	}
	return msgs
}
