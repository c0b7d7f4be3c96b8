package analyst

import (
	"fmt"
	"strings"
	"time"

	"github.com/paideia-labs/paideia/pkg/trace"
)

const auditorSystemPrompt = `You are a pedagogical auditor reviewing a student's tutoring trace.

Rules:
- Diagnose the ROOT cause of the student's difficulty, not the surface symptom.
- diagnosis_category must be exactly one of: SYNTAX, LOGIC, CONCEPTUAL, COGNITIVE_OVERLOAD, BEHAVIORAL.
- Every evidence entry must be an EXACT verbatim quote from the trace. Do not paraphrase.
- Respond with strict JSON only. No prose outside the JSON object.`

// derivedMetrics are the cheap numeric features computed before the model
// sees anything.
type derivedMetrics struct {
	totalInteractions  int
	errorCount         int
	degradedCount      int
	phaseCounts        map[string]int
	phaseOrder         []string
	frustrationCurve   []float64
	understandingCurve []float64
}

const curvePoints = 5

func deriveMetrics(msgs []*trace.Message) derivedMetrics {
	m := derivedMetrics{phaseCounts: make(map[string]int)}
	for _, msg := range msgs {
		if msg.Sender == trace.SenderStudent {
			m.totalInteractions++
			if msg.ErrorContext != nil {
				m.errorCount++
			}
			m.frustrationCurve = append(m.frustrationCurve, msg.Frustration)
			m.understandingCurve = append(m.understandingCurve, msg.Understanding)
		}
		if msg.Degraded {
			m.degradedCount++
		}
		if msg.Phase != "" {
			if m.phaseCounts[msg.Phase] == 0 {
				m.phaseOrder = append(m.phaseOrder, msg.Phase)
			}
			m.phaseCounts[msg.Phase]++
		}
	}
	m.frustrationCurve = downsample(m.frustrationCurve, curvePoints)
	m.understandingCurve = downsample(m.understandingCurve, curvePoints)
	return m
}

// downsample keeps up to n evenly spaced points, always including the last.
func downsample(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		idx := i * (len(values) - 1) / (n - 1)
		out = append(out, values[idx])
	}
	return out
}

// buildSummary renders the compact trace block the auditor reads: derived
// metrics, then timestamped excerpts of the newest summaryLines messages.
func buildSummary(msgs []*trace.Message, m derivedMetrics, summaryLines, excerptChars int) string {
	var b strings.Builder

	b.WriteString("--- METRICS ---\n")
	fmt.Fprintf(&b, "student turns: %d\n", m.totalInteractions)
	fmt.Fprintf(&b, "runs that errored: %d\n", m.errorCount)
	fmt.Fprintf(&b, "degraded tutor replies: %d\n", m.degradedCount)
	if len(m.phaseOrder) > 0 {
		b.WriteString("messages per phase:")
		for _, phase := range m.phaseOrder {
			fmt.Fprintf(&b, " %s=%d", phase, m.phaseCounts[phase])
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "frustration curve: %s\n", formatCurve(m.frustrationCurve))
	fmt.Fprintf(&b, "understanding curve: %s\n", formatCurve(m.understandingCurve))

	if summaryLines <= 0 {
		return strings.TrimSpace(b.String())
	}

	b.WriteString("\n--- RECENT TRACE ---\n")
	start := 0
	if len(msgs) > summaryLines {
		start = len(msgs) - summaryLines
	}
	for _, msg := range msgs[start:] {
		fmt.Fprintf(&b, "[%s] %s: %s\n",
			msg.Timestamp.Format(time.TimeOnly), msg.Sender, excerpt(msg, excerptChars))
	}
	b.WriteString("--- END TRACE ---")
	return b.String()
}

func excerpt(msg *trace.Message, max int) string {
	text := strings.ReplaceAll(msg.Content, "\n", " ")
	if msg.ErrorContext != nil {
		text += fmt.Sprintf(" [error: %s: %s]", msg.ErrorContext.Kind, msg.ErrorContext.Message)
	}
	if len(text) > max {
		return text[:max] + "…"
	}
	return text
}

func formatCurve(values []float64) string {
	if len(values) == 0 {
		return "n/a"
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%.2f", v)
	}
	return strings.Join(parts, " ")
}

func buildAuditorPrompt(summary string, minEvidence int) string {
	var b strings.Builder
	b.WriteString("Review this tutoring trace and diagnose the student's difficulty.\n\n")
	b.WriteString(summary)
	b.WriteString("\n\nRespond with a JSON object with exactly these fields:\n")
	fmt.Fprintf(&b, `{
  "diagnosis_category": "SYNTAX | LOGIC | CONCEPTUAL | COGNITIVE_OVERLOAD | BEHAVIORAL",
  "diagnosis_detail": "what is actually going wrong and why",
  "evidence": ["at least %d exact verbatim quotes from the trace"],
  "intervention": "one concrete recommendation for the instructor",
  "confidence": 0.0
}`, minEvidence)
	b.WriteString("\nOutput strict JSON only.")
	return b.String()
}
