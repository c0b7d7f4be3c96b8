package tutor

import "strings"

const (
	frustrationStep   = 0.1
	frustrationDecay  = 0.05
	understandingGain = 0.1
	understandingLoss = 0.05
)

// updateAffect applies the affect rules for one student turn and mutates
// the session's marker and concept bookkeeping. Both values stay in [0,1].
func (s *session) updateAffect(input SendInput, sig signals) {
	msg := strings.ToLower(input.Message)

	marker := matchMarker(msg, s.markers)
	repeatedError := input.ErrorContext != nil &&
		s.lastErrorDigest != "" &&
		errorDigest(input.ErrorContext.Kind, input.ErrorContext.Message) == s.lastErrorDigest

	if marker != "" || repeatedError {
		s.state.Frustration = clamp01(s.state.Frustration + frustrationStep)
	}

	progress := sig.codeChange || isClarifyingQuestion(msg) || containsAny(msg, reflectionCues)
	if progress {
		s.state.Frustration = clamp01(s.state.Frustration - frustrationDecay)
		// Progress resolves whatever confusion was last voiced.
		for m := range s.openMarkers {
			s.resolvedMarkers[m] = true
			delete(s.openMarkers, m)
		}
	}

	if concept := s.newConcept(msg); concept != "" {
		s.state.Understanding = clamp01(s.state.Understanding + understandingGain)
		s.seenConcepts[concept] = true
	}
	if marker != "" {
		if s.resolvedMarkers[marker] {
			// Restating a confusion that had been worked through.
			s.state.Understanding = clamp01(s.state.Understanding - understandingLoss)
			delete(s.resolvedMarkers, marker)
		}
		s.openMarkers[marker] = true
	}

	if input.ErrorContext != nil {
		s.lastErrorDigest = errorDigest(input.ErrorContext.Kind, input.ErrorContext.Message)
	} else if input.Code != "" {
		// A clean submission clears the repeat-error tracker.
		s.lastErrorDigest = ""
	}
}

func matchMarker(msg string, markers []string) string {
	for _, marker := range markers {
		if strings.Contains(msg, marker) {
			return marker
		}
	}
	return ""
}

// newConcept returns the first expected concept this message mentions that
// the student has not produced before.
func (s *session) newConcept(msg string) string {
	for _, concept := range s.activity.ExpectedConcepts {
		lowered := strings.ToLower(concept)
		if strings.Contains(msg, lowered) && !s.seenConcepts[lowered] {
			return lowered
		}
	}
	return ""
}

// isClarifyingQuestion is intentionally narrow: a question about the
// problem, not a plea for the answer.
func isClarifyingQuestion(msg string) bool {
	if !strings.Contains(msg, "?") {
		return false
	}
	for _, opener := range []string{"what", "how", "why", "when", "does", "is it", "should", "could", "would"} {
		if strings.HasPrefix(msg, opener) || strings.Contains(msg, ". "+opener) {
			return true
		}
	}
	return false
}

func errorDigest(kind, message string) string {
	return kind + "|" + message
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
