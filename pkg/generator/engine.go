package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
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

const component = "generator"

// job is the in-memory record of one generation run. The mutex is the
// row-level lock for phase transitions; workers and the approval path both
// take it.
type job struct {
	mu        sync.Mutex
	id        string
	spec      JobSpec
	phase     Phase
	err       string
	draft     []DraftExercise
	createdAt time.Time
	updatedAt time.Time

	// ctx is cancelled by Cancel and by engine shutdown; the worker runs
	// the job under it.
	ctx    context.Context
	cancel context.CancelFunc
}

// Engine runs generation jobs on a bounded worker pool and gates
// publication on teacher approval.
type Engine struct {
	gateway *llm.Gateway
	corpus  *rag.Store
	store   trace.Store
	catalog CatalogWriter
	cfg     config.GeneratorConfig
	log     *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*job

	queue  chan *job
	wg     sync.WaitGroup
	ctx    context.Context
	stop   context.CancelFunc
	closed bool
}

// NewEngine builds the engine and starts its workers.
func NewEngine(gateway *llm.Gateway, corpus *rag.Store, store trace.Store, catalog CatalogWriter, cfg config.GeneratorConfig) (*Engine, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, stop := context.WithCancel(context.Background())
	e := &Engine{
		gateway: gateway,
		corpus:  corpus,
		store:   store,
		catalog: catalog,
		cfg:     cfg,
		log:     logger.GetLogger(),
		jobs:    make(map[string]*job),
		queue:   make(chan *job, cfg.QueueSize),
		ctx:     ctx,
		stop:    stop,
	}
	for i := 0; i < cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e, nil
}

// Start enqueues a job and returns its ID immediately. The job runs to
// AWAITING_REVIEW (or FAILED) on a worker.
func (e *Engine) Start(ctx context.Context, spec JobSpec) (string, error) {
	if spec.TeacherID == "" || spec.Requirements.Topic == "" || spec.Requirements.Language == "" {
		return "", fault.New(fault.KindRequest, component, "start",
			"teacher id, topic, and language are required")
	}
	if len(spec.Source) == 0 {
		return "", fault.New(fault.KindRequest, component, "start", "source material is empty")
	}
	if spec.CollectionKey == "" {
		spec.CollectionKey = fmt.Sprintf("%s-%s", spec.CourseID, uuid.NewString()[:8])
	}

	jobCtx, cancel := context.WithCancel(e.ctx)
	j := &job{
		id:        uuid.NewString(),
		spec:      spec,
		phase:     PhaseCreated,
		createdAt: time.Now(),
		updatedAt: time.Now(),
		ctx:       jobCtx,
		cancel:    cancel,
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		cancel()
		return "", fault.New(fault.KindClosed, component, "start", "engine is shut down")
	}
	e.jobs[j.id] = j
	e.mu.Unlock()

	e.persist(ctx, j)

	select {
	case e.queue <- j:
	case <-e.ctx.Done():
		return "", fault.New(fault.KindClosed, component, "start", "engine is shut down")
	case <-ctx.Done():
		err := fault.Wrap(fault.KindTimeout, component, "start", "queue admission exceeded deadline", ctx.Err())
		e.failJob(context.Background(), j, err)
		return "", err
	}
	return j.id, nil
}

// Status returns the lightweight view of a job.
func (e *Engine) Status(jobID string) (*JobStatus, error) {
	j, err := e.lookup(jobID)
	if err != nil {
		return nil, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return &JobStatus{
		ID:        j.id,
		Phase:     j.phase,
		Error:     j.err,
		CreatedAt: j.createdAt,
		UpdatedAt: j.updatedAt,
	}, nil
}

// Draft returns the job's draft. Only meaningful once the job has reached
// review; the returned slice is a copy and the stored draft stays frozen.
func (e *Engine) Draft(jobID string) ([]DraftExercise, error) {
	j, err := e.lookup(jobID)
	if err != nil {
		return nil, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.draft) == 0 {
		return nil, fault.New(fault.KindRequest, component, "draft",
			fmt.Sprintf("job %s has no draft in phase %s", jobID, j.phase))
	}
	out := make([]DraftExercise, len(j.draft))
	copy(out, j.draft)
	return out, nil
}

// ApproveAndPublish applies the teacher's selection and commits the
// approved exercises through the catalog writer. nil indices approve the
// whole draft. The job record is locked for the entire transition.
func (e *Engine) ApproveAndPublish(ctx context.Context, jobID string, indices []int) (*PublishResult, error) {
	tracer := observability.GetTracer("paideia.generator")
	ctx, span := tracer.Start(ctx, observability.SpanPublish)
	span.SetAttributes(attribute.String(observability.AttrJobID, jobID))
	defer span.End()

	j, err := e.lookup(jobID)
	if err != nil {
		span.SetStatus(codes.Error, "unknown job")
		return nil, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	switch j.phase {
	case PhaseAwaitingReview:
	case PhasePublished, PhasePublishing:
		span.SetStatus(codes.Error, "already published")
		return nil, fault.New(fault.KindConflict, component, "approve",
			fmt.Sprintf("job %s is already %s", jobID, j.phase))
	default:
		span.SetStatus(codes.Error, "not reviewable")
		return nil, fault.New(fault.KindConflict, component, "approve",
			fmt.Sprintf("job %s is %s, not awaiting review", jobID, j.phase))
	}

	if indices == nil {
		indices = make([]int, len(j.draft))
		for i := range indices {
			indices[i] = i
		}
	}
	if err := validateIndices(indices, len(j.draft)); err != nil {
		span.SetStatus(codes.Error, "invalid selection")
		return nil, err
	}

	selected := make([]DraftExercise, 0, len(indices))
	for _, idx := range indices {
		selected = append(selected, j.draft[idx])
	}

	e.setPhaseLocked(ctx, j, PhasePublishing, "")

	result, err := e.catalog.Publish(ctx, PublishRequest{
		JobID:     j.id,
		TeacherID: j.spec.TeacherID,
		CourseID:  j.spec.CourseID,
		Title:     j.spec.Requirements.Topic,
		Language:  strings.ToLower(j.spec.Requirements.Language),
		Exercises: selected,
	})
	if err != nil {
		e.setPhaseLocked(ctx, j, PhaseFailed, fmt.Sprintf("publication failed: %v", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fault.Wrap(fault.KindUpstream, component, "approve", "catalog writer failed", err)
	}

	e.setPhaseLocked(ctx, j, PhasePublished, "")
	e.log.Info("job published",
		"job_id", j.id,
		"activity_id", result.ActivityID,
		"exercises", len(result.ExerciseIDs))
	span.SetStatus(codes.Ok, "success")
	return result, nil
}

// Cancel moves any non-terminal job to FAILED. Safe to call repeatedly;
// mid-phase work observes the cancellation between checkpoints.
func (e *Engine) Cancel(jobID string) error {
	j, err := e.lookup(jobID)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.phase.Terminal() {
		return nil
	}
	j.cancel()
	e.setPhaseLocked(context.Background(), j, PhaseFailed, "cancelled by caller")
	return nil
}

// Sweep drops terminal jobs older than maxAge and returns how many were
// removed. Zero maxAge uses the configured TTL.
func (e *Engine) Sweep(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = time.Duration(e.cfg.JobTTLHours) * time.Hour
	}
	cutoff := time.Now().Add(-maxAge)

	e.mu.Lock()
	defer e.mu.Unlock()
	removed := 0
	for id, j := range e.jobs {
		j.mu.Lock()
		stale := j.phase.Terminal() && j.updatedAt.Before(cutoff)
		j.mu.Unlock()
		if stale {
			delete(e.jobs, id)
			removed++
		}
	}
	return removed
}

// Close stops accepting jobs and waits for in-flight workers.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.stop()
	e.wg.Wait()
	return nil
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case j := <-e.queue:
			e.run(j)
		case <-e.ctx.Done():
			return
		}
	}
}

// run drives one job from CREATED to AWAITING_REVIEW. Cancellation is
// checked between phases; mid-LLM-call cancellation relies on the
// gateway's timeout.
func (e *Engine) run(j *job) {
	tracer := observability.GetTracer("paideia.generator")
	ctx, span := tracer.Start(j.ctx, observability.SpanGenerateJob)
	span.SetAttributes(
		attribute.String(observability.AttrJobID, j.id),
		attribute.String(observability.AttrCollection, j.spec.CollectionKey))
	defer span.End()

	if e.cancelled(j) {
		span.SetStatus(codes.Error, "cancelled")
		return
	}

	e.setPhase(ctx, j, PhaseIngesting, "")
	chunks, err := e.corpus.Ingest(ctx, j.spec.CollectionKey, j.spec.SourceName, j.spec.Source)
	if err != nil {
		e.failJob(ctx, j, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	e.log.Debug("job ingested", "job_id", j.id, "chunks", chunks)

	if e.cancelled(j) {
		span.SetStatus(codes.Error, "cancelled")
		return
	}

	e.setPhase(ctx, j, PhaseGenerating, "")
	draft, err := e.generate(ctx, j)
	if err != nil {
		e.failJob(ctx, j, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	if e.cancelled(j) {
		span.SetStatus(codes.Error, "cancelled")
		return
	}

	j.mu.Lock()
	j.draft = draft
	e.setPhaseLocked(ctx, j, PhaseAwaitingReview, "")
	j.mu.Unlock()

	e.log.Info("draft ready for review", "job_id", j.id, "exercises", len(draft))
	span.SetStatus(codes.Ok, "success")
}

// generate runs the professor prompt against the job's collection. A
// malformed or off-contract response gets one retry with a halved excerpt
// and an emphatic JSON-only suffix; the second failure fails the job.
func (e *Engine) generate(ctx context.Context, j *job) ([]DraftExercise, error) {
	excerpt := e.collectExcerpt(ctx, j.spec.CollectionKey, j.spec.Requirements)

	prompt := buildGeneratorPrompt(j.spec.Requirements, excerpt,
		e.cfg.ExerciseCount, e.cfg.EasyCount, e.cfg.MediumCount, e.cfg.HardCount)

	draft, err := e.attempt(ctx, prompt)
	if err == nil {
		return draft, nil
	}
	if !fault.IsKind(err, fault.KindContract) {
		return nil, err
	}

	e.log.Warn("malformed draft, retrying with narrowed context", "job_id", j.id, "error", err)
	retryPrompt := buildGeneratorPrompt(j.spec.Requirements, halveExcerpt(excerpt),
		e.cfg.ExerciseCount, e.cfg.EasyCount, e.cfg.MediumCount, e.cfg.HardCount) + jsonOnlySuffix
	return e.attempt(ctx, retryPrompt)
}

func (e *Engine) attempt(ctx context.Context, prompt string) ([]DraftExercise, error) {
	var payload draftPayload
	_, err := e.gateway.ChatJSON(ctx, professorSystemPrompt, prompt, llm.Options{}, &payload)
	if err != nil {
		return nil, err
	}
	if err := validateDraft(payload.Exercises, e.cfg); err != nil {
		return nil, err
	}
	return payload.Exercises, nil
}

// collectExcerpt runs the topic and concept queries against the job's
// collection and concatenates the hits, deduplicated by global chunk
// ordinal. Retrieval failures degrade to a smaller excerpt instead of
// failing the job.
func (e *Engine) collectExcerpt(ctx context.Context, collectionKey string, req Requirements) string {
	queries := excerptQueries(req, e.cfg.ExcerptQueries)
	seen := make(map[int]bool)
	var b strings.Builder

	for _, query := range queries {
		hits, err := e.corpus.Query(ctx, collectionKey, query, e.cfg.ExcerptTopK)
		if err != nil {
			if !fault.IsKind(err, fault.KindNotFound) {
				e.log.Warn("excerpt query failed", "collection", collectionKey, "error", err)
			}
			continue
		}
		for _, hit := range hits {
			if seen[hit.Ordinal] {
				continue
			}
			seen[hit.Ordinal] = true
			fmt.Fprintf(&b, "[page %d] %s\n\n", hit.Page, hit.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

func (e *Engine) lookup(jobID string) (*job, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	j, ok := e.jobs[jobID]
	if !ok {
		return nil, fault.New(fault.KindRequest, component, "lookup",
			fmt.Sprintf("unknown job %q", jobID))
	}
	return j, nil
}

func (e *Engine) cancelled(j *job) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.phase.Terminal()
}

func (e *Engine) failJob(ctx context.Context, j *job, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.phase.Terminal() {
		return
	}
	e.setPhaseLocked(ctx, j, PhaseFailed, err.Error())
	e.log.Warn("job failed", "job_id", j.id, "error", err)
}

func (e *Engine) setPhase(ctx context.Context, j *job, phase Phase, errMsg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	e.setPhaseLocked(ctx, j, phase, errMsg)
}

// setPhaseLocked transitions the job and persists the record. Callers hold
// j.mu.
func (e *Engine) setPhaseLocked(ctx context.Context, j *job, phase Phase, errMsg string) {
	j.phase = phase
	j.err = errMsg
	j.updatedAt = time.Now()
	e.persistLocked(ctx, j)
}

func (e *Engine) persist(ctx context.Context, j *job) {
	j.mu.Lock()
	defer j.mu.Unlock()
	e.persistLocked(ctx, j)
}

func (e *Engine) persistLocked(ctx context.Context, j *job) {
	spec, err := json.Marshal(j.spec.Requirements)
	if err != nil {
		e.log.Error("failed to encode job spec", "job_id", j.id, "error", err)
		return
	}
	record := &trace.JobRecord{
		ID:        j.id,
		TeacherID: j.spec.TeacherID,
		CourseID:  j.spec.CourseID,
		Phase:     string(j.phase),
		Error:     j.err,
		Spec:      spec,
		CreatedAt: j.createdAt,
	}
	if len(j.draft) > 0 {
		draft, err := json.Marshal(j.draft)
		if err != nil {
			e.log.Error("failed to encode draft", "job_id", j.id, "error", err)
			return
		}
		record.Draft = draft
	}
	if err := e.store.SaveJob(ctx, record); err != nil {
		e.log.Error("failed to persist job", "job_id", j.id, "error", err)
	}
}
