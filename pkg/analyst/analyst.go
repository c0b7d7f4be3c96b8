// Package analyst explains why a student is at risk. It reads a bounded
// window of the interaction trace, asks an auditor model for a diagnosis,
// and refuses to store any evidence that cannot be found verbatim in that
// trace.
package analyst

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/paideia-labs/paideia/pkg/config"
	"github.com/paideia-labs/paideia/pkg/fault"
	"github.com/paideia-labs/paideia/pkg/llm"
	"github.com/paideia-labs/paideia/pkg/logger"
	"github.com/paideia-labs/paideia/pkg/observability"
	"github.com/paideia-labs/paideia/pkg/trace"
)

const component = "analyst"

// Diagnosis categories the auditor must choose from.
const (
	CategorySyntax            = "SYNTAX"
	CategoryLogic             = "LOGIC"
	CategoryConceptual        = "CONCEPTUAL"
	CategoryCognitiveOverload = "COGNITIVE_OVERLOAD"
	CategoryBehavioral        = "BEHAVIORAL"
)

// Audit statuses.
const (
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

var validCategories = map[string]bool{
	CategorySyntax:            true,
	CategoryLogic:             true,
	CategoryConceptual:        true,
	CategoryCognitiveOverload: true,
	CategoryBehavioral:        true,
}

// Risk is the externally computed risk signal attached to an audit.
type Risk struct {
	Score float64
	Level string
}

// RiskSource supplies the current risk for a student. The formula lives
// outside the core.
type RiskSource interface {
	Risk(ctx context.Context, studentID, activityID string) (*Risk, error)
}

// Options scope one audit.
type Options struct {
	// ActivityID filters the trace window; empty audits across activities.
	ActivityID string

	// ExcludeTrace drops the verbatim excerpts from the auditor's summary,
	// leaving the derived metrics only. Evidence grounding still runs
	// against the full window.
	ExcludeTrace bool
}

// auditResponse is the strict JSON contract with the auditor model.
type auditResponse struct {
	DiagnosisCategory string   `json:"diagnosis_category"`
	DiagnosisDetail   string   `json:"diagnosis_detail"`
	Evidence          []string `json:"evidence"`
	Intervention      string   `json:"intervention"`
	Confidence        float64  `json:"confidence"`
}

var auditRequiredFields = []string{
	"diagnosis_category", "diagnosis_detail", "intervention", "confidence",
}

// Analyst runs pedagogical audits.
type Analyst struct {
	gateway *llm.Gateway
	store   trace.Store
	risk    RiskSource
	cfg     config.AnalystConfig
	log     *slog.Logger
}

// New builds an analyst.
func New(gateway *llm.Gateway, store trace.Store, risk RiskSource, cfg config.AnalystConfig) (*Analyst, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Analyst{
		gateway: gateway,
		store:   store,
		risk:    risk,
		cfg:     cfg,
		log:     logger.GetLogger(),
	}, nil
}

// Audit diagnoses one student from their recent trace. A model that fails
// the JSON contract or grounds nothing in the trace produces a FAILED audit
// rather than an error; callers may retry. The returned audit is already
// persisted and immutable.
func (a *Analyst) Audit(ctx context.Context, studentID string, opts Options) (*trace.AuditRecord, error) {
	tracer := observability.GetTracer("paideia.analyst")
	ctx, span := tracer.Start(ctx, observability.SpanAnalystAudit)
	defer span.End()

	if studentID == "" {
		return nil, fault.New(fault.KindRequest, component, "audit", "student id is required")
	}

	msgs, err := a.store.StudentMessages(ctx, trace.MessageFilter{
		StudentID:  studentID,
		ActivityID: opts.ActivityID,
		Limit:      a.cfg.TraceWindow,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(msgs) == 0 {
		span.SetStatus(codes.Error, "empty trace")
		return nil, fault.New(fault.KindNotFound, component, "audit",
			fmt.Sprintf("no trace for student %q", studentID))
	}

	risk, err := a.risk.Risk(ctx, studentID, opts.ActivityID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fault.Wrap(fault.KindUpstream, component, "audit", "risk source failed", err)
	}

	record := &trace.AuditRecord{
		StudentID:  studentID,
		ActivityID: opts.ActivityID,
		RiskScore:  risk.Score,
		RiskLevel:  risk.Level,
	}

	summaryLines := a.cfg.SummaryLines
	if opts.ExcludeTrace {
		summaryLines = 0
	}
	summary := buildSummary(msgs, deriveMetrics(msgs), summaryLines, a.cfg.ExcerptChars)

	var resp auditResponse
	_, err = a.gateway.ChatJSON(ctx, auditorSystemPrompt, buildAuditorPrompt(summary, a.cfg.MinEvidence), llm.Options{
		Temperature:    a.cfg.Temperature,
		RequiredFields: auditRequiredFields,
	}, &resp)
	if err != nil {
		if !fault.IsKind(err, fault.KindContract) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		record.Status = StatusFailed
		record.Reason = "unparseable"
		return a.finish(ctx, span, record)
	}

	category := strings.ToUpper(strings.TrimSpace(resp.DiagnosisCategory))
	if !validCategories[category] {
		record.Status = StatusFailed
		record.Reason = "unparseable"
		return a.finish(ctx, span, record)
	}

	surviving := groundEvidence(resp.Evidence, msgs)
	if len(surviving) == 0 {
		record.Status = StatusFailed
		record.Reason = "ungrounded"
		return a.finish(ctx, span, record)
	}
	if dropped := len(resp.Evidence) - len(surviving); dropped > 0 {
		a.log.Warn("dropped ungrounded evidence", "student_id", studentID, "dropped", dropped)
	}

	record.Status = StatusCompleted
	record.Category = category
	record.Diagnosis = resp.DiagnosisDetail
	record.Evidence = surviving
	record.Intervention = resp.Intervention
	record.Confidence = clamp01(resp.Confidence)
	return a.finish(ctx, span, record)
}

func (a *Analyst) finish(ctx context.Context, span oteltrace.Span, record *trace.AuditRecord) (*trace.AuditRecord, error) {
	if err := a.store.SaveAudit(ctx, record); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	failed := record.Status == StatusFailed
	observability.GetGlobalMetrics().RecordAudit(ctx, failed)
	span.SetAttributes(attribute.String("analyst.status", record.Status))
	if failed {
		span.SetStatus(codes.Error, record.Reason)
	} else {
		span.SetStatus(codes.Ok, "success")
	}
	return record, nil
}

// groundEvidence keeps only quotes that appear verbatim somewhere in the
// consulted trace window: message content, code snapshots, or error text.
func groundEvidence(quotes []string, msgs []*trace.Message) []string {
	var corpus strings.Builder
	for _, msg := range msgs {
		corpus.WriteString(msg.Content)
		corpus.WriteByte('\n')
		if msg.Code != "" {
			corpus.WriteString(msg.Code)
			corpus.WriteByte('\n')
		}
		if msg.ErrorContext != nil {
			corpus.WriteString(msg.ErrorContext.Kind)
			corpus.WriteString(": ")
			corpus.WriteString(msg.ErrorContext.Message)
			corpus.WriteByte('\n')
		}
	}
	haystack := corpus.String()

	var surviving []string
	for _, quote := range quotes {
		trimmed := strings.TrimSpace(quote)
		if trimmed != "" && strings.Contains(haystack, trimmed) {
			surviving = append(surviving, trimmed)
		}
	}
	return surviving
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
