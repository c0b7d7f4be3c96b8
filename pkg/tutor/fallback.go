package tutor

// fallbackQuestions are the canned Socratic replies used when the model is
// unavailable or returns garbage. Keyed by the session's current phase; the
// reply is flagged degraded and the student can simply retry.
var fallbackQuestions = map[Phase]string{
	PhaseExploration:    "Let's slow down for a second. In your own words, what is this problem asking you to do?",
	PhaseDecomposition:  "What smaller pieces could this problem break into? Name just one part you feel sure about.",
	PhasePlanning:       "Which of your sub-goals would you tackle first, and why that one?",
	PhaseImplementation: "What does your current code do on the very first input it sees? Walk me through it line by line.",
	PhaseDebugging:      "What did you expect to happen on that run, and what happened instead? Where do those two stories diverge?",
	PhaseValidation:     "Which of your test cases is the most likely to break your solution? What makes it risky?",
	PhaseReflection:     "If you met this problem again next week, what would you do differently from the start?",
}

func fallbackFor(phase Phase) string {
	if q, ok := fallbackQuestions[phase]; ok {
		return q
	}
	return fallbackQuestions[PhaseExploration]
}
