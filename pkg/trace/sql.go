package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/paideia-labs/paideia/pkg/config"
	"github.com/paideia-labs/paideia/pkg/fault"
)

// SQLStore is the durable Store over a relational database. Messages are
// stored as JSON blobs next to the columns the bounded reads filter on.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

const createMessagesSQL = `
CREATE TABLE IF NOT EXISTS trace_messages (
    seq %s,
    message_id VARCHAR(255) NOT NULL,
    session_id VARCHAR(255) NOT NULL,
    student_id VARCHAR(255) NOT NULL,
    activity_id VARCHAR(255),
    sender VARCHAR(32) NOT NULL,
    message_json TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
`

const createSessionsSQL = `
CREATE TABLE IF NOT EXISTS trace_sessions (
    id VARCHAR(255) PRIMARY KEY,
    student_id VARCHAR(255) NOT NULL,
    activity_id VARCHAR(255) NOT NULL,
    course_id VARCHAR(255),
    active BOOLEAN NOT NULL,
    state_json TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    ended_at TIMESTAMP NULL
);
`

const createJobsSQL = `
CREATE TABLE IF NOT EXISTS trace_jobs (
    id VARCHAR(255) PRIMARY KEY,
    teacher_id VARCHAR(255) NOT NULL,
    course_id VARCHAR(255),
    phase VARCHAR(32) NOT NULL,
    error TEXT,
    spec_json TEXT,
    draft_json TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const createAuditsSQL = `
CREATE TABLE IF NOT EXISTS trace_audits (
    id VARCHAR(255) PRIMARY KEY,
    student_id VARCHAR(255) NOT NULL,
    activity_id VARCHAR(255),
    audit_json TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
`

// NewSQLStore opens the configured database and initializes the schema.
func NewSQLStore(cfg config.TraceStoreConfig) (*SQLStore, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Driver, err)
	}

	store := &SQLStore{db: db, dialect: string(cfg.Driver)}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// NewSQLStoreFromDB wraps an existing connection; used by tests.
func NewSQLStoreFromDB(db *sql.DB, dialect string) (*SQLStore, error) {
	store := &SQLStore{db: db, dialect: dialect}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	seqColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	switch s.dialect {
	case "postgres":
		seqColumn = "BIGSERIAL PRIMARY KEY"
	case "mysql":
		seqColumn = "BIGINT PRIMARY KEY AUTO_INCREMENT"
	}

	statements := []string{
		fmt.Sprintf(createMessagesSQL, seqColumn),
		createSessionsSQL,
		createJobsSQL,
		createAuditsSQL,
		`CREATE INDEX IF NOT EXISTS idx_trace_messages_session ON trace_messages(session_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_trace_messages_student ON trace_messages(student_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_trace_jobs_updated ON trace_jobs(updated_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind converts ? placeholders to the dialect's style.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// AppendMessage inserts a message, assigning ID and timestamp when unset.
func (s *SQLStore) AppendMessage(ctx context.Context, msg *Message) error {
	if msg.SessionID == "" {
		return fault.New(fault.KindRequest, component, "append_message", "session id is required")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fault.Wrap(fault.KindRequest, component, "append_message", "failed to encode message", err)
	}

	query := s.rebind(`
INSERT INTO trace_messages (message_id, session_id, student_id, activity_id, sender, message_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, query,
		msg.ID, msg.SessionID, msg.StudentID, msg.ActivityID, string(msg.Sender), string(payload), msg.Timestamp)
	if err != nil {
		return fault.Wrap(fault.KindUpstream, component, "append_message", "insert failed", err)
	}
	return nil
}

// SessionMessages returns a session's history, oldest first.
func (s *SQLStore) SessionMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error) {
	query := `SELECT message_json FROM trace_messages WHERE session_id = ? ORDER BY seq ASC`
	args := []any{sessionID}
	if limit > 0 {
		// Keep the newest limit rows, returned oldest first.
		query = `SELECT message_json FROM (
    SELECT message_json, seq FROM trace_messages WHERE session_id = ? ORDER BY seq DESC LIMIT ?
) sub ORDER BY seq ASC`
		args = append(args, limit)
	}
	return s.queryMessages(ctx, s.rebind(query), args...)
}

// StudentMessages returns a student's messages, oldest first.
func (s *SQLStore) StudentMessages(ctx context.Context, filter MessageFilter) ([]*Message, error) {
	var conditions []string
	var args []any

	conditions = append(conditions, "student_id = ?")
	args = append(args, filter.StudentID)
	if filter.ActivityID != "" {
		conditions = append(conditions, "activity_id = ?")
		args = append(args, filter.ActivityID)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since)
	}

	query := `SELECT message_json FROM trace_messages WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY seq ASC`
	if filter.Limit > 0 {
		query = `SELECT message_json FROM (
    SELECT message_json, seq FROM trace_messages WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY seq DESC LIMIT ?
) sub ORDER BY seq ASC`
		args = append(args, filter.Limit)
	}
	return s.queryMessages(ctx, s.rebind(query), args...)
}

func (s *SQLStore) queryMessages(ctx context.Context, query string, args ...any) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fault.Wrap(fault.KindUpstream, component, "read_messages", "query failed", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fault.Wrap(fault.KindUpstream, component, "read_messages", "scan failed", err)
		}
		var msg Message
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			return nil, fault.Wrap(fault.KindUpstream, component, "read_messages", "corrupt message row", err)
		}
		out = append(out, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.KindUpstream, component, "read_messages", "row iteration failed", err)
	}
	return out, nil
}

// SaveSession inserts or replaces a session record.
func (s *SQLStore) SaveSession(ctx context.Context, record *SessionRecord) error {
	if record.ID == "" {
		return fault.New(fault.KindRequest, component, "save_session", "session id is required")
	}
	record.UpdatedAt = time.Now()

	query := s.rebind(`
INSERT INTO trace_sessions (id, student_id, activity_id, course_id, active, state_json, created_at, updated_at, ended_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)` + s.upsertSuffix("id",
		"student_id", "activity_id", "course_id", "active", "state_json", "created_at", "updated_at", "ended_at"))

	_, err := s.db.ExecContext(ctx, query,
		record.ID, record.StudentID, record.ActivityID, record.CourseID, record.Active,
		string(record.State), record.CreatedAt, record.UpdatedAt, record.EndedAt)
	if err != nil {
		return fault.Wrap(fault.KindUpstream, component, "save_session", "upsert failed", err)
	}
	return nil
}

// GetSession returns a session record by ID.
func (s *SQLStore) GetSession(ctx context.Context, sessionID string) (*SessionRecord, error) {
	query := s.rebind(`
SELECT id, student_id, activity_id, course_id, active, state_json, created_at, updated_at, ended_at
FROM trace_sessions WHERE id = ?`)

	record := &SessionRecord{}
	var state sql.NullString
	var endedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&record.ID, &record.StudentID, &record.ActivityID, &record.CourseID,
		&record.Active, &state, &record.CreatedAt, &record.UpdatedAt, &endedAt)
	if err == sql.ErrNoRows {
		return nil, fault.New(fault.KindNotFound, component, "get_session",
			fmt.Sprintf("session %q does not exist", sessionID))
	}
	if err != nil {
		return nil, fault.Wrap(fault.KindUpstream, component, "get_session", "query failed", err)
	}
	if state.Valid {
		record.State = json.RawMessage(state.String)
	}
	if endedAt.Valid {
		record.EndedAt = &endedAt.Time
	}
	return record, nil
}

// ActiveSessions returns all sessions still marked active.
func (s *SQLStore) ActiveSessions(ctx context.Context) ([]*SessionRecord, error) {
	query := `
SELECT id, student_id, activity_id, course_id, active, state_json, created_at, updated_at, ended_at
FROM trace_sessions WHERE active = ` + s.boolLiteral(true)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fault.Wrap(fault.KindUpstream, component, "active_sessions", "query failed", err)
	}
	defer rows.Close()

	var out []*SessionRecord
	for rows.Next() {
		record := &SessionRecord{}
		var state sql.NullString
		var endedAt sql.NullTime
		if err := rows.Scan(&record.ID, &record.StudentID, &record.ActivityID, &record.CourseID,
			&record.Active, &state, &record.CreatedAt, &record.UpdatedAt, &endedAt); err != nil {
			return nil, fault.Wrap(fault.KindUpstream, component, "active_sessions", "scan failed", err)
		}
		if state.Valid {
			record.State = json.RawMessage(state.String)
		}
		if endedAt.Valid {
			record.EndedAt = &endedAt.Time
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// SaveJob inserts or replaces a job record.
func (s *SQLStore) SaveJob(ctx context.Context, record *JobRecord) error {
	if record.ID == "" {
		return fault.New(fault.KindRequest, component, "save_job", "job id is required")
	}
	record.UpdatedAt = time.Now()

	query := s.rebind(`
INSERT INTO trace_jobs (id, teacher_id, course_id, phase, error, spec_json, draft_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)` + s.upsertSuffix("id",
		"teacher_id", "course_id", "phase", "error", "spec_json", "draft_json", "created_at", "updated_at"))

	_, err := s.db.ExecContext(ctx, query,
		record.ID, record.TeacherID, record.CourseID, record.Phase, record.Error,
		string(record.Spec), string(record.Draft), record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return fault.Wrap(fault.KindUpstream, component, "save_job", "upsert failed", err)
	}
	return nil
}

// GetJob returns a job record by ID.
func (s *SQLStore) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	query := s.rebind(`
SELECT id, teacher_id, course_id, phase, error, spec_json, draft_json, created_at, updated_at
FROM trace_jobs WHERE id = ?`)

	record := &JobRecord{}
	var spec, draft sql.NullString
	err := s.db.QueryRowContext(ctx, query, jobID).Scan(
		&record.ID, &record.TeacherID, &record.CourseID, &record.Phase, &record.Error,
		&spec, &draft, &record.CreatedAt, &record.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fault.New(fault.KindNotFound, component, "get_job",
			fmt.Sprintf("job %q does not exist", jobID))
	}
	if err != nil {
		return nil, fault.Wrap(fault.KindUpstream, component, "get_job", "query failed", err)
	}
	if spec.Valid {
		record.Spec = json.RawMessage(spec.String)
	}
	if draft.Valid {
		record.Draft = json.RawMessage(draft.String)
	}
	return record, nil
}

// JobsUpdatedBefore returns jobs last touched before the cutoff.
func (s *SQLStore) JobsUpdatedBefore(ctx context.Context, cutoff time.Time) ([]*JobRecord, error) {
	query := s.rebind(`
SELECT id, teacher_id, course_id, phase, error, spec_json, draft_json, created_at, updated_at
FROM trace_jobs WHERE updated_at < ?`)

	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fault.Wrap(fault.KindUpstream, component, "sweep_jobs", "query failed", err)
	}
	defer rows.Close()

	var out []*JobRecord
	for rows.Next() {
		record := &JobRecord{}
		var spec, draft sql.NullString
		if err := rows.Scan(&record.ID, &record.TeacherID, &record.CourseID, &record.Phase, &record.Error,
			&spec, &draft, &record.CreatedAt, &record.UpdatedAt); err != nil {
			return nil, fault.Wrap(fault.KindUpstream, component, "sweep_jobs", "scan failed", err)
		}
		if spec.Valid {
			record.Spec = json.RawMessage(spec.String)
		}
		if draft.Valid {
			record.Draft = json.RawMessage(draft.String)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// SaveAudit inserts an audit record.
func (s *SQLStore) SaveAudit(ctx context.Context, record *AuditRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fault.Wrap(fault.KindRequest, component, "save_audit", "failed to encode audit", err)
	}

	query := s.rebind(`
INSERT INTO trace_audits (id, student_id, activity_id, audit_json, created_at)
VALUES (?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, query,
		record.ID, record.StudentID, record.ActivityID, string(payload), record.CreatedAt)
	if err != nil {
		return fault.Wrap(fault.KindUpstream, component, "save_audit", "insert failed", err)
	}
	return nil
}

// GetAudit returns an audit record by ID.
func (s *SQLStore) GetAudit(ctx context.Context, auditID string) (*AuditRecord, error) {
	query := s.rebind(`SELECT audit_json FROM trace_audits WHERE id = ?`)

	var payload string
	err := s.db.QueryRowContext(ctx, query, auditID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fault.New(fault.KindNotFound, component, "get_audit",
			fmt.Sprintf("audit %q does not exist", auditID))
	}
	if err != nil {
		return nil, fault.Wrap(fault.KindUpstream, component, "get_audit", "query failed", err)
	}

	record := &AuditRecord{}
	if err := json.Unmarshal([]byte(payload), record); err != nil {
		return nil, fault.Wrap(fault.KindUpstream, component, "get_audit", "corrupt audit row", err)
	}
	return record, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// upsertSuffix builds the dialect's insert-or-replace clause for the given
// key and updatable columns.
func (s *SQLStore) upsertSuffix(key string, columns ...string) string {
	var b strings.Builder
	switch s.dialect {
	case "mysql":
		b.WriteString(" ON DUPLICATE KEY UPDATE ")
		for i, col := range columns {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s = VALUES(%s)", col, col)
		}
	default: // sqlite3 and postgres share the ON CONFLICT form
		fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET ", key)
		for i, col := range columns {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s = excluded.%s", col, col)
		}
	}
	return b.String()
}

func (s *SQLStore) boolLiteral(v bool) string {
	if s.dialect == "sqlite3" {
		if v {
			return "1"
		}
		return "0"
	}
	if v {
		return "TRUE"
	}
	return "FALSE"
}
