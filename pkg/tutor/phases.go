package tutor

import (
	"regexp"
	"strings"
)

// signals are the deterministic facts extracted from one student turn that
// drive phase transitions. Extraction is keyword and structural matching
// only, so the same message stream always yields the same phases.
type signals struct {
	restatesProblem bool
	listsSubgoals   bool
	ordersSubgoals  bool
	codeChange      bool
	hasError        bool
	anyTestPassed   bool
	allTestsPassed  bool
	backRequest     bool
}

var (
	restatementCues = []string{
		"i think i need", "i need to", "so basically", "in other words",
		"the problem is asking", "what i have to do", "my goal is",
	}
	subgoalCues = []string{
		"first i", "the steps are", "break it down", "break this down",
		"sub-goal", "subgoal", "one part is", "the parts are",
	}
	orderingCues = []string{
		"first", "then", "after that", "before i", "next i", "finally",
		"step 1", "step one", "in order", "start with",
	}
	backCues = []string{
		"go back", "step back", "start over", "can we revisit",
		"back to the", "previous step",
	}
	reflectionCues = []string{
		"i see", "i understand now", "that makes sense", "oh i get it",
		"now i get it", "i learned",
	}

	enumeratedLine = regexp.MustCompile(`(?m)^\s*(?:\d+[.)]|[-*])\s+\S`)
	codeShaped     = regexp.MustCompile(`(?m)^\s*(?:def |for |while |if |class |func |return |import )|[{};]\s*$|\w+\s*=\s*\S`)
)

func containsAny(msg string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(msg, cue) {
			return true
		}
	}
	return false
}

// extractSignals computes the turn's signals. lastCode is the previous code
// snapshot for change detection.
func extractSignals(input SendInput, lastCode string) signals {
	msg := strings.ToLower(input.Message)

	sig := signals{
		restatesProblem: containsAny(msg, restatementCues),
		listsSubgoals:   containsAny(msg, subgoalCues) || strings.Count(enumeratedItems(input.Message), "\n") >= 1,
		hasError:        input.ErrorContext != nil,
		backRequest:     containsAny(msg, backCues),
	}

	// An ordering needs two sequencing cues, not one; "first" alone is a
	// sub-goal list.
	orderingHits := 0
	for _, cue := range orderingCues {
		if strings.Contains(msg, cue) {
			orderingHits++
		}
	}
	sig.ordersSubgoals = orderingHits >= 2

	codeInMessage := strings.Contains(input.Message, "```") || codeShaped.MatchString(input.Message)
	codeChanged := input.Code != "" && input.Code != lastCode
	sig.codeChange = codeChanged || codeInMessage

	if input.TestsRun {
		sig.anyTestPassed = input.TestsPassed > 0
		sig.allTestsPassed = input.TestsTotal > 0 && input.TestsPassed == input.TestsTotal
	}
	return sig
}

func enumeratedItems(msg string) string {
	return strings.Join(enumeratedLine.FindAllString(msg, -1), "\n")
}

// nextPhase applies the transition table for one turn. When several
// transitions fire, the later phase wins. A code submission promotes any
// pre-implementation phase straight to IMPLEMENTATION.
func nextPhase(current Phase, sig signals) Phase {
	if sig.backRequest {
		return previousPhase(current)
	}

	switch current {
	case PhaseExploration:
		if sig.codeChange {
			return PhaseImplementation
		}
		if sig.ordersSubgoals {
			return PhasePlanning
		}
		if sig.restatesProblem || sig.listsSubgoals {
			return PhaseDecomposition
		}
	case PhaseDecomposition:
		if sig.codeChange {
			return PhaseImplementation
		}
		if sig.ordersSubgoals {
			return PhasePlanning
		}
	case PhasePlanning:
		if sig.codeChange {
			return PhaseImplementation
		}
	case PhaseImplementation:
		if sig.anyTestPassed {
			return PhaseValidation
		}
		if sig.hasError {
			return PhaseDebugging
		}
	case PhaseDebugging:
		if sig.anyTestPassed {
			return PhaseValidation
		}
		if sig.codeChange && !sig.hasError {
			return PhaseImplementation
		}
	case PhaseValidation:
		if sig.allTestsPassed {
			return PhaseReflection
		}
	}
	return current
}

func previousPhase(current Phase) Phase {
	for i, phase := range phaseOrder {
		if phase == current && i > 0 {
			return phaseOrder[i-1]
		}
	}
	return current
}
