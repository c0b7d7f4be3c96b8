package tutor

import "strings"

// fenceMarker replaces a withheld code block in a tutor reply.
const fenceMarker = "[code withheld; let's work through this step by step instead]"

// applyFenceGuard enforces the answer-leakage invariant on one reply: any
// fenced code block longer than maxLines is replaced with a marker, and once
// the session's cumulative fence budget is spent every further block is
// stripped. Returns the guarded text and the budget lines consumed.
//
// The guard runs after the model, so it holds regardless of whether the
// model followed its instructions.
func applyFenceGuard(text string, maxLines, remainingBudget int) (string, int) {
	if !strings.Contains(text, "```") {
		return text, 0
	}

	var b strings.Builder
	used := 0
	rest := text
	for {
		open := strings.Index(rest, "```")
		if open < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:open])

		// Opening fence line runs to the first newline (language tag).
		bodyStart := strings.Index(rest[open:], "\n")
		if bodyStart < 0 {
			// Dangling fence with no body; drop it.
			break
		}
		bodyStart += open + 1

		closeRel := strings.Index(rest[bodyStart:], "```")
		if closeRel < 0 {
			// Unterminated block: treat everything to the end as code.
			body := rest[bodyStart:]
			used += guardBlock(&b, body, maxLines, remainingBudget-used)
			break
		}
		body := rest[bodyStart : bodyStart+closeRel]
		used += guardBlock(&b, body, maxLines, remainingBudget-used)

		rest = rest[bodyStart+closeRel+3:]
	}
	return strings.TrimSpace(b.String()), used
}

// guardBlock writes either the fenced block or the marker, returning the
// budget lines it consumed.
func guardBlock(b *strings.Builder, body string, maxLines, remaining int) int {
	lines := countLines(body)
	if lines > maxLines || lines > remaining {
		b.WriteString(fenceMarker)
		return 0
	}
	b.WriteString("```\n")
	b.WriteString(strings.Trim(body, "\n"))
	b.WriteString("\n```")
	return lines
}

func countLines(body string) int {
	body = strings.Trim(body, "\n")
	if body == "" {
		return 0
	}
	return strings.Count(body, "\n") + 1
}
