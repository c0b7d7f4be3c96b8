package observability

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig configures the metric set.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Metrics is the recording surface used by the core components.
type Metrics interface {
	RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error)
	RecordIngest(ctx context.Context, collection string, chunks int, err error)
	RecordTutorReply(ctx context.Context, phase string, degraded bool)
	RecordAudit(ctx context.Context, failed bool)
}

var (
	globalMetrics Metrics = NoopMetrics{}
	metricsMu     sync.RWMutex
)

// SetGlobalMetrics installs the process metric set.
func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if m == nil {
		m = NoopMetrics{}
	}
	globalMetrics = m
}

// GetGlobalMetrics returns the process metric set. Never nil.
func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}

// NoopMetrics discards every recording.
type NoopMetrics struct{}

func (NoopMetrics) RecordLLMCall(context.Context, string, time.Duration, int, int, error) {}
func (NoopMetrics) RecordIngest(context.Context, string, int, error)                      {}
func (NoopMetrics) RecordTutorReply(context.Context, string, bool)                        {}
func (NoopMetrics) RecordAudit(context.Context, bool)                                     {}

// PrometheusMetrics records through OTel instruments exported via the
// Prometheus exporter.
type PrometheusMetrics struct {
	llmDuration     metric.Float64Histogram
	llmCallsTotal   metric.Int64Counter
	llmErrorsTotal  metric.Int64Counter
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter

	ingestChunksTotal metric.Int64Counter
	ingestErrorsTotal metric.Int64Counter

	tutorRepliesTotal  metric.Int64Counter
	tutorDegradedTotal metric.Int64Counter

	auditsTotal      metric.Int64Counter
	auditFailedTotal metric.Int64Counter
}

// InitMetrics builds the metric set and installs it globally. Returns the
// metric set and the HTTP handler serving the Prometheus scrape endpoint;
// mounting the handler is the caller's concern.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (*PrometheusMetrics, http.Handler, error) {
	if !cfg.Enabled {
		return &PrometheusMetrics{}, nil, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(promExporter))
	meter := meterProvider.Meter(DefaultServiceName)

	m := &PrometheusMetrics{}

	if m.llmDuration, err = meter.Float64Histogram(
		"paideia_llm_call_duration_seconds",
		metric.WithDescription("LLM call duration in seconds"),
	); err != nil {
		return nil, nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}
	if m.llmCallsTotal, err = meter.Int64Counter(
		"paideia_llm_calls_total",
		metric.WithDescription("Total LLM calls"),
	); err != nil {
		return nil, nil, fmt.Errorf("failed to create llm calls counter: %w", err)
	}
	if m.llmErrorsTotal, err = meter.Int64Counter(
		"paideia_llm_errors_total",
		metric.WithDescription("Total failed LLM calls"),
	); err != nil {
		return nil, nil, fmt.Errorf("failed to create llm errors counter: %w", err)
	}
	if m.llmInputTokens, err = meter.Int64Counter(
		"paideia_llm_input_tokens_total",
		metric.WithDescription("Total prompt tokens sent"),
	); err != nil {
		return nil, nil, fmt.Errorf("failed to create input token counter: %w", err)
	}
	if m.llmOutputTokens, err = meter.Int64Counter(
		"paideia_llm_output_tokens_total",
		metric.WithDescription("Total completion tokens received"),
	); err != nil {
		return nil, nil, fmt.Errorf("failed to create output token counter: %w", err)
	}
	if m.ingestChunksTotal, err = meter.Int64Counter(
		"paideia_ingest_chunks_total",
		metric.WithDescription("Total chunks written by ingestion"),
	); err != nil {
		return nil, nil, fmt.Errorf("failed to create ingest chunks counter: %w", err)
	}
	if m.ingestErrorsTotal, err = meter.Int64Counter(
		"paideia_ingest_errors_total",
		metric.WithDescription("Total failed ingestions"),
	); err != nil {
		return nil, nil, fmt.Errorf("failed to create ingest errors counter: %w", err)
	}
	if m.tutorRepliesTotal, err = meter.Int64Counter(
		"paideia_tutor_replies_total",
		metric.WithDescription("Total tutor replies"),
	); err != nil {
		return nil, nil, fmt.Errorf("failed to create tutor replies counter: %w", err)
	}
	if m.tutorDegradedTotal, err = meter.Int64Counter(
		"paideia_tutor_degraded_replies_total",
		metric.WithDescription("Tutor replies served from the canned fallback"),
	); err != nil {
		return nil, nil, fmt.Errorf("failed to create degraded replies counter: %w", err)
	}
	if m.auditsTotal, err = meter.Int64Counter(
		"paideia_audits_total",
		metric.WithDescription("Total pedagogical audits"),
	); err != nil {
		return nil, nil, fmt.Errorf("failed to create audits counter: %w", err)
	}
	if m.auditFailedTotal, err = meter.Int64Counter(
		"paideia_audits_failed_total",
		metric.WithDescription("Audits that ended FAILED"),
	); err != nil {
		return nil, nil, fmt.Errorf("failed to create failed audits counter: %w", err)
	}

	SetGlobalMetrics(m)
	return m, promhttp.Handler(), nil
}

func (m *PrometheusMetrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil || m.llmCallsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrLLMModel, model))
	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
	m.llmCallsTotal.Add(ctx, 1, attrs)
	if inputTokens > 0 {
		m.llmInputTokens.Add(ctx, int64(inputTokens), attrs)
	}
	if outputTokens > 0 {
		m.llmOutputTokens.Add(ctx, int64(outputTokens), attrs)
	}
	if err != nil {
		m.llmErrorsTotal.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordIngest(ctx context.Context, collection string, chunks int, err error) {
	if m == nil || m.ingestChunksTotal == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrCollection, collection))
	if err != nil {
		m.ingestErrorsTotal.Add(ctx, 1, attrs)
		return
	}
	m.ingestChunksTotal.Add(ctx, int64(chunks), attrs)
}

func (m *PrometheusMetrics) RecordTutorReply(ctx context.Context, phase string, degraded bool) {
	if m == nil || m.tutorRepliesTotal == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrPhase, phase))
	m.tutorRepliesTotal.Add(ctx, 1, attrs)
	if degraded {
		m.tutorDegradedTotal.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordAudit(ctx context.Context, failed bool) {
	if m == nil || m.auditsTotal == nil {
		return
	}
	m.auditsTotal.Add(ctx, 1)
	if failed {
		m.auditFailedTotal.Add(ctx, 1)
	}
}

// Ensure PrometheusMetrics implements Metrics.
var _ Metrics = (*PrometheusMetrics)(nil)
