package llm

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/paideia-labs/paideia/pkg/fault"
)

// RecoverJSON turns raw model output into a single JSON object, trying
// progressively looser strategies:
//
//  1. strict parse of the whole text (fences stripped),
//  2. the longest balanced {...} substring,
//  3. field-by-field regex extraction for flat schemas.
//
// If every rung fails the result is a contract fault carrying a truncated
// excerpt of the raw output.
func RecoverJSON(raw string, requiredFields []string) (string, error) {
	text := stripFences(strings.TrimSpace(raw))

	if obj, ok := parseObject(text); ok {
		return obj, nil
	}

	if candidate := longestBalancedObject(text); candidate != "" {
		if obj, ok := parseObject(candidate); ok {
			return obj, nil
		}
	}

	if len(requiredFields) > 0 {
		if obj, ok := extractFlatFields(text, requiredFields); ok {
			return obj, nil
		}
	}

	return "", fault.New(fault.KindContract, component, "recover_json",
		fmt.Sprintf("model output is not recoverable JSON: %s", excerpt(raw, 200)))
}

// stripFences removes a single markdown code fence wrapping the whole text.
func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	rest := text[3:]
	if idx := strings.IndexByte(rest, '\n'); idx >= 0 {
		rest = rest[idx+1:]
	}
	if idx := strings.LastIndex(rest, "```"); idx >= 0 {
		rest = rest[:idx]
	}
	return strings.TrimSpace(rest)
}

// parseObject reports whether text is exactly one JSON object, and returns
// the compacted form.
func parseObject(text string) (string, bool) {
	var obj map[string]any
	dec := json.NewDecoder(strings.NewReader(text))
	if err := dec.Decode(&obj); err != nil {
		return "", false
	}
	// Trailing non-whitespace means the object was embedded in prose.
	var trailing json.RawMessage
	if err := dec.Decode(&trailing); err != io.EOF {
		return "", false
	}
	compacted, err := json.Marshal(obj)
	if err != nil {
		return "", false
	}
	return string(compacted), true
}

// longestBalancedObject returns the longest substring that starts at a '{'
// and ends at its matching '}', respecting string literals and escapes.
func longestBalancedObject(text string) string {
	best := ""
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(text); i++ {
			ch := text[i]
			if escaped {
				escaped = false
				continue
			}
			switch {
			case inString && ch == '\\':
				escaped = true
			case ch == '"':
				inString = !inString
			case !inString && ch == '{':
				depth++
			case !inString && ch == '}':
				depth--
				if depth == 0 {
					if candidate := text[start : i+1]; len(candidate) > len(best) {
						best = candidate
					}
					i = len(text)
				}
			}
		}
	}
	return best
}

// extractFlatFields rebuilds a flat object by locating each required field
// as a `"name": value` pair anywhere in the text. Values may be strings,
// numbers, booleans, or null; nested schemas are beyond this rung.
func extractFlatFields(text string, requiredFields []string) (string, bool) {
	result := make(map[string]any, len(requiredFields))
	for _, field := range requiredFields {
		pattern := regexp.MustCompile(`"` + regexp.QuoteMeta(field) + `"\s*:\s*("(?:[^"\\]|\\.)*"|-?\d+(?:\.\d+)?|true|false|null)`)
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			return "", false
		}
		var value any
		if err := json.Unmarshal([]byte(match[1]), &value); err != nil {
			return "", false
		}
		result[field] = value
	}
	compacted, err := json.Marshal(result)
	if err != nil {
		return "", false
	}
	return string(compacted), true
}

func excerpt(text string, limit int) string {
	text = strings.TrimSpace(text)
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
