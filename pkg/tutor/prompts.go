package tutor

import (
	"fmt"
	"strings"

	"github.com/paideia-labs/paideia/pkg/rag"
	"github.com/paideia-labs/paideia/pkg/trace"
)

const tutorSystemPrompt = `You are a Socratic programming tutor. Your job is to guide, never to solve.

Rules:
- NEVER output a complete solution or large code fragments. A short illustrative snippet of at most 3 lines is the absolute maximum.
- Anchor every reply in the COURSE CONTEXT when it is provided; do not introduce outside material.
- Ask guiding questions that move the student one small step forward.
- Adapt your tone to the student's affect: be warmer and slower when frustration is high, more challenging when understanding is high.
- One question per reply. Keep replies short.`

// buildTutorPrompt assembles the user prompt for one turn: cognitive state,
// recent history, current code, retrieved course context, and the guiding
// directive.
func buildTutorPrompt(s *session, input SendInput, recent []*trace.Message, hits []rag.RetrievedChunk, codeTruncateChars int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Activity: %s\n", s.activity.Title)
	fmt.Fprintf(&b, "Phase: %s | Frustration: %.2f | Understanding: %.2f | Hints this phase: %d\n",
		s.state.Phase, s.state.Frustration, s.state.Understanding, s.state.HintCountInPhase)

	if len(hits) > 0 {
		b.WriteString("\n--- COURSE CONTEXT ---\n")
		for _, hit := range hits {
			fmt.Fprintf(&b, "[page %d] %s\n", hit.Page, hit.Text)
		}
		b.WriteString("--- END COURSE CONTEXT ---\n")
	}

	if len(recent) > 0 {
		b.WriteString("\n--- RECENT CONVERSATION ---\n")
		for _, msg := range recent {
			fmt.Fprintf(&b, "%s: %s\n", msg.Sender, msg.Content)
		}
		b.WriteString("--- END CONVERSATION ---\n")
	}

	if input.Code != "" {
		b.WriteString("\n--- STUDENT'S CURRENT CODE ---\n")
		b.WriteString(truncate(input.Code, codeTruncateChars))
		b.WriteString("\n--- END CODE ---\n")
	}
	if input.ErrorContext != nil {
		fmt.Fprintf(&b, "\nLast run failed: %s: %s", input.ErrorContext.Kind, input.ErrorContext.Message)
		if input.ErrorContext.Line > 0 {
			fmt.Fprintf(&b, " (line %d)", input.ErrorContext.Line)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nStudent says: %s\n", input.Message)
	b.WriteString("\nAsk one guiding question that helps the student take the next step themselves.")
	return b.String()
}

// openingQuestion is the session's first TUTOR message: a question, never
// an answer. Deterministic, no model call.
func openingQuestion(activity *ActivityContext) string {
	if len(activity.ExpectedConcepts) > 0 {
		return fmt.Sprintf(
			"Welcome! Before you write any code for %q: in your own words, what do you already know about %s, and what is this exercise asking you to do with it?",
			activity.Title, activity.ExpectedConcepts[0])
	}
	return fmt.Sprintf(
		"Welcome! Before you write any code: in your own words, what is %q asking you to do?",
		activity.Title)
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "\n… (truncated)"
}
