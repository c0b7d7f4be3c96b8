package generator

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
)

const professorSystemPrompt = `You are a university professor designing programming exercises for your own course.

Rules:
- Build exercises ONLY from the supplied course material. Do not introduce concepts the material does not cover.
- Every exercise must be self-contained and solvable with the listed concepts.
- Test cases must be byte-exact: the expected output is compared verbatim against the program's stdout.
- Respond with strict JSON matching the schema you are given. No prose, no markdown, no commentary.`

const jsonOnlySuffix = `

CRITICAL: Your previous response was not valid JSON. Respond with ONLY the JSON object. No explanation, no markdown fences, no text before or after the JSON.`

// draftPayload is the shape the model must return.
type draftPayload struct {
	Exercises []DraftExercise `json:"exercises"`
}

var (
	schemaOnce  sync.Once
	schemaBlock string
)

// exerciseSchemaBlock renders the DraftExercise JSON schema once. The block
// is embedded in every generation prompt.
func exerciseSchemaBlock() string {
	schemaOnce.Do(func() {
		reflector := &jsonschema.Reflector{
			AllowAdditionalProperties: false,
			DoNotReference:            true,
		}
		schema := reflector.Reflect(&draftPayload{})
		encoded, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			// Reflection over our own types cannot fail at runtime.
			panic(fmt.Sprintf("exercise schema reflection: %v", err))
		}
		schemaBlock = string(encoded)
	})
	return schemaBlock
}

// excerptQueries derives the RAG queries that feed the excerpt block: the
// topic first, then each declared concept, capped at max.
func excerptQueries(req Requirements, max int) []string {
	queries := make([]string, 0, max)
	if req.Topic != "" {
		queries = append(queries, req.Topic)
	}
	for _, concept := range req.Concepts {
		if len(queries) >= max {
			break
		}
		queries = append(queries, fmt.Sprintf("%s %s", req.Topic, concept))
	}
	return queries
}

// buildGeneratorPrompt assembles the user prompt for one generation attempt.
func buildGeneratorPrompt(req Requirements, excerpt string, count, easy, medium, hard int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Design exactly %d programming exercises about %q in %s.\n", count, req.Topic, req.Language)
	fmt.Fprintf(&b, "Difficulty mix: exactly %d EASY, %d MEDIUM, %d HARD.\n", easy, medium, hard)
	if len(req.Concepts) > 0 {
		fmt.Fprintf(&b, "Target concepts: %s.\n", strings.Join(req.Concepts, ", "))
	}
	if req.EstimatedMinutes > 0 {
		fmt.Fprintf(&b, "The full set should take a student about %d minutes.\n", req.EstimatedMinutes)
	}

	b.WriteString("\n--- COURSE MATERIAL ---\n")
	if excerpt != "" {
		b.WriteString(excerpt)
	} else {
		b.WriteString("(no material retrieved; stay strictly within the listed concepts)")
	}
	b.WriteString("\n--- END COURSE MATERIAL ---\n")

	b.WriteString("\nRespond with a JSON object matching this schema:\n")
	b.WriteString(exerciseSchemaBlock())
	b.WriteString("\n\nEvery exercise needs at least 3 test cases and at least 1 hidden test case.")
	b.WriteString("\nOutput strict JSON only.")
	return b.String()
}

// halveExcerpt keeps the first half of the excerpt's lines. Used for the
// single narrowed-context retry after a malformed response.
func halveExcerpt(excerpt string) string {
	lines := strings.Split(excerpt, "\n")
	if len(lines) < 2 {
		return excerpt
	}
	return strings.Join(lines[:len(lines)/2], "\n")
}
