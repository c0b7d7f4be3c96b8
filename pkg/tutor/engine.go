package tutor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/paideia-labs/paideia/pkg/config"
	"github.com/paideia-labs/paideia/pkg/fault"
	"github.com/paideia-labs/paideia/pkg/llm"
	"github.com/paideia-labs/paideia/pkg/logger"
	"github.com/paideia-labs/paideia/pkg/observability"
	"github.com/paideia-labs/paideia/pkg/rag"
	"github.com/paideia-labs/paideia/pkg/trace"
)

const component = "tutor"

// session is the live state of one tutoring conversation. The mutex
// serializes Send per session; distinct sessions run in parallel under the
// gateway's global cap.
type session struct {
	mu sync.Mutex

	id       string
	student  string
	activity *ActivityContext
	state    CognitiveState
	active   bool

	markers         []string
	fenceLinesUsed  int
	lastCode        string
	lastErrorDigest string
	seenConcepts    map[string]bool
	openMarkers     map[string]bool
	resolvedMarkers map[string]bool
	lastActivityAt  time.Time
	createdAt       time.Time
}

// Engine runs tutoring sessions.
type Engine struct {
	gateway    *llm.Gateway
	corpus     *rag.Store
	store      trace.Store
	activities ActivitySource
	cfg        config.TutorConfig
	log        *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewEngine builds a tutor engine.
func NewEngine(gateway *llm.Gateway, corpus *rag.Store, store trace.Store, activities ActivitySource, cfg config.TutorConfig) (*Engine, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		gateway:    gateway,
		corpus:     corpus,
		store:      store,
		activities: activities,
		cfg:        cfg,
		log:        logger.GetLogger(),
		sessions:   make(map[string]*session),
	}, nil
}

// Open creates a session, snapshots the activity, and emits the opening
// TUTOR question. Opening the same activity twice creates two independent
// sessions; the tutor never implicitly resumes.
func (e *Engine) Open(ctx context.Context, studentID, activityID string) (string, error) {
	if studentID == "" || activityID == "" {
		return "", fault.New(fault.KindRequest, component, "open", "student id and activity id are required")
	}

	activity, err := e.activities.Activity(ctx, activityID)
	if err != nil {
		return "", err
	}

	now := time.Now()
	s := &session{
		id:       uuid.NewString(),
		student:  studentID,
		activity: activity,
		state: CognitiveState{
			Phase:         PhaseExploration,
			Frustration:   0.0,
			Understanding: 0.5,
		},
		active:          true,
		markers:         e.cfg.FrustrationMarkers,
		lastCode:        activity.StarterCode,
		seenConcepts:    make(map[string]bool),
		openMarkers:     make(map[string]bool),
		resolvedMarkers: make(map[string]bool),
		lastActivityAt:  now,
		createdAt:       now,
	}

	opening := openingQuestion(activity)
	if err := e.appendTutorMessage(ctx, s, opening, false); err != nil {
		return "", err
	}

	e.mu.Lock()
	e.sessions[s.id] = s
	e.mu.Unlock()

	e.persistSession(ctx, s)
	e.log.Info("session opened", "session_id", s.id, "student_id", studentID, "activity_id", activityID)
	return s.id, nil
}

// Send runs one student turn through the full pipeline: append, retrieve,
// affect, phase, prompt, model, guard, hint bookkeeping, append. Calls on
// the same session serialize; a degraded model never fails the call.
func (e *Engine) Send(ctx context.Context, sessionID string, input SendInput) (*Reply, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil, fault.New(fault.KindClosed, component, "send",
			fmt.Sprintf("session %s is closed", sessionID))
	}

	tracer := observability.GetTracer("paideia.tutor")
	ctx, span := tracer.Start(ctx, observability.SpanTutorSend)
	span.SetAttributes(
		attribute.String(observability.AttrSessionID, sessionID),
		attribute.String(observability.AttrPhase, string(s.state.Phase)))
	defer span.End()

	// The student message carries the state in effect before this turn;
	// transitions happen strictly between messages.
	studentMsg := &trace.Message{
		SessionID:     s.id,
		StudentID:     s.student,
		ActivityID:    s.activity.ActivityID,
		Sender:        trace.SenderStudent,
		Content:       input.Message,
		Code:          input.Code,
		ErrorContext:  input.ErrorContext,
		Phase:         string(s.state.Phase),
		Frustration:   s.state.Frustration,
		Understanding: s.state.Understanding,
	}
	if err := e.store.AppendMessage(ctx, studentMsg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.state.TotalInteractions++

	hits := e.retrieve(ctx, s, input)
	sig := extractSignals(input, s.lastCode)
	s.updateAffect(input, sig)

	if next := nextPhase(s.state.Phase, sig); next != s.state.Phase {
		e.log.Debug("phase transition", "session_id", s.id, "from", s.state.Phase, "to", next)
		s.state.Phase = next
		s.state.HintCountInPhase = 0
	}

	recent, err := e.store.SessionMessages(ctx, s.id, e.cfg.HistoryWindow)
	if err != nil {
		e.log.Warn("history read failed, prompting without it", "session_id", s.id, "error", err)
		recent = nil
	}

	content, degraded := e.complete(ctx, s, input, recent, hits)

	remaining := e.cfg.FenceBudgetLines - s.fenceLinesUsed
	content, used := applyFenceGuard(content, e.cfg.MaxFenceLines, remaining)
	s.fenceLinesUsed += used

	escalated := false
	if s.state.HintCountInPhase >= e.cfg.HintEscalation {
		content += "\n\n" + escalationSuggestion
		escalated = true
		s.state.HintCountInPhase = 0
	} else if isHint(content, e.cfg.HintVerbs) {
		s.state.HintCountInPhase++
	}

	if err := e.appendTutorMessage(ctx, s, content, degraded); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if input.Code != "" {
		s.lastCode = input.Code
	}
	s.lastActivityAt = time.Now()
	e.persistSession(ctx, s)

	observability.GetGlobalMetrics().RecordTutorReply(ctx, string(s.state.Phase), degraded)
	span.SetStatus(codes.Ok, "success")

	return &Reply{
		SessionID:     s.id,
		Content:       content,
		Phase:         s.state.Phase,
		Frustration:   s.state.Frustration,
		Understanding: s.state.Understanding,
		HintCount:     s.state.HintCountInPhase,
		Degraded:      degraded,
		Escalated:     escalated,
	}, nil
}

// History returns the session's messages, newest last.
func (e *Engine) History(ctx context.Context, sessionID string, limit int) ([]*trace.Message, error) {
	if _, err := e.lookup(sessionID); err != nil {
		return nil, err
	}
	return e.store.SessionMessages(ctx, sessionID, limit)
}

// Close ends a session. Idempotent; later Sends fail with a closed fault.
func (e *Engine) Close(ctx context.Context, sessionID, reason string) error {
	s, err := e.lookup(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil
	}
	s.active = false
	e.persistSession(ctx, s)
	e.log.Info("session closed", "session_id", sessionID, "reason", reason)
	return nil
}

// SweepIdle closes sessions idle past the grace period and returns how many
// it closed. Zero grace uses the configured threshold.
func (e *Engine) SweepIdle(ctx context.Context, grace time.Duration) int {
	if grace <= 0 {
		grace = time.Duration(e.cfg.IdleGraceMinutes) * time.Minute
	}
	cutoff := time.Now().Add(-grace)

	e.mu.RLock()
	candidates := make([]*session, 0)
	for _, s := range e.sessions {
		candidates = append(candidates, s)
	}
	e.mu.RUnlock()

	closed := 0
	for _, s := range candidates {
		s.mu.Lock()
		if s.active && s.lastActivityAt.Before(cutoff) {
			s.active = false
			e.persistSession(ctx, s)
			closed++
			e.log.Info("session closed", "session_id", s.id, "reason", "idle timeout")
		}
		s.mu.Unlock()
	}
	return closed
}

// retrieve runs the turn's RAG query. Retrieval never fails the turn: a
// missing collection or a transient embedder failure degrade to an empty
// context.
func (e *Engine) retrieve(ctx context.Context, s *session, input SendInput) []rag.RetrievedChunk {
	query := input.Message
	code := input.Code
	if code == "" {
		code = s.lastCode
	}
	if code != "" {
		query += "\n" + truncate(code, e.cfg.CodeTruncateChars)
	}

	hits, err := e.corpus.Query(ctx, s.activity.CollectionKey, query, e.cfg.TopK)
	if err != nil {
		if !fault.IsKind(err, fault.KindNotFound) {
			e.log.Warn("retrieval failed, continuing without context", "session_id", s.id, "error", err)
		}
		return nil
	}
	return hits
}

// complete asks the model for the reply. A contract or upstream failure
// after the gateway's retries degrades to the phase-keyed canned question
// instead of failing the turn.
func (e *Engine) complete(ctx context.Context, s *session, input SendInput, recent []*trace.Message, hits []rag.RetrievedChunk) (string, bool) {
	prompt := buildTutorPrompt(s, input, recent, hits, e.cfg.CodeTruncateChars)

	var text string
	var err error
	if e.cfg.Streaming {
		text, err = e.drainStream(ctx, prompt)
	} else {
		var result *llm.CompletionResult
		result, err = e.gateway.Chat(ctx, tutorSystemPrompt, prompt, llm.Options{})
		if err == nil {
			text = result.Text
		}
	}
	if err == nil {
		return text, false
	}

	if fault.IsKind(err, fault.KindContract) || fault.IsKind(err, fault.KindUpstream) || fault.IsKind(err, fault.KindTimeout) {
		e.log.Warn("model degraded, using canned reply", "session_id", s.id, "error", err)
		return fallbackFor(s.state.Phase), true
	}
	// Anything else still degrades rather than failing the student's turn.
	e.log.Error("unexpected model failure", "session_id", s.id, "error", err)
	return fallbackFor(s.state.Phase), true
}

// drainStream consumes the full reply stream. The persisted message is
// written atomically once the stream completes.
func (e *Engine) drainStream(ctx context.Context, prompt string) (string, error) {
	stream, err := e.gateway.ChatStream(ctx, tutorSystemPrompt, prompt, llm.Options{})
	if err != nil {
		return "", err
	}
	var b []byte
	for chunk := range stream {
		switch chunk.Type {
		case llm.ChunkTypeText:
			b = append(b, chunk.Text...)
		case llm.ChunkTypeError:
			return "", chunk.Err
		}
	}
	return string(b), nil
}

func (e *Engine) appendTutorMessage(ctx context.Context, s *session, content string, degraded bool) error {
	return e.store.AppendMessage(ctx, &trace.Message{
		SessionID:     s.id,
		StudentID:     s.student,
		ActivityID:    s.activity.ActivityID,
		Sender:        trace.SenderTutor,
		Content:       content,
		Phase:         string(s.state.Phase),
		Frustration:   s.state.Frustration,
		Understanding: s.state.Understanding,
		Degraded:      degraded,
	})
}

func (e *Engine) lookup(sessionID string) (*session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[sessionID]
	if !ok {
		return nil, fault.New(fault.KindNotFound, component, "lookup",
			fmt.Sprintf("unknown session %q", sessionID))
	}
	return s, nil
}

// persistSession snapshots the engine-owned state into the session record.
// Callers hold s.mu.
func (e *Engine) persistSession(ctx context.Context, s *session) {
	snapshot := sessionSnapshot{
		State:           s.state,
		FenceLinesUsed:  s.fenceLinesUsed,
		LastCode:        s.lastCode,
		LastErrorDigest: s.lastErrorDigest,
		SeenConcepts:    keys(s.seenConcepts),
		OpenMarkers:     keys(s.openMarkers),
		ResolvedMarkers: keys(s.resolvedMarkers),
		LastActivityAt:  s.lastActivityAt,
	}
	state, err := json.Marshal(snapshot)
	if err != nil {
		e.log.Error("failed to encode session state", "session_id", s.id, "error", err)
		return
	}
	record := &trace.SessionRecord{
		ID:         s.id,
		StudentID:  s.student,
		ActivityID: s.activity.ActivityID,
		CourseID:   s.activity.CourseID,
		Active:     s.active,
		State:      state,
		CreatedAt:  s.createdAt,
	}
	if !s.active {
		ended := time.Now()
		record.EndedAt = &ended
	}
	if err := e.store.SaveSession(ctx, record); err != nil {
		e.log.Error("failed to persist session", "session_id", s.id, "error", err)
	}
}

func keys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
