package tutor

import "strings"

// escalationSuggestion is appended when the per-phase hint budget is spent.
// Enforced by the engine regardless of what the model returned.
const escalationSuggestion = "We've gone through several hints on this step. I think talking it over with a human tutor or your instructor would help more than another hint from me. Would you like to reach out to them?"

// isHint reports whether a tutor reply counts as a hint: it contains at
// least one imperative sentence opening with a hinting verb.
func isHint(reply string, verbs []string) bool {
	for _, sentence := range splitSentences(reply) {
		word := firstWord(sentence)
		if word == "" {
			continue
		}
		for _, verb := range verbs {
			if word == verb {
				return true
			}
		}
	}
	return false
}

func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
}

func firstWord(sentence string) string {
	fields := strings.Fields(strings.ToLower(sentence))
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], ",:;\"'")
}
