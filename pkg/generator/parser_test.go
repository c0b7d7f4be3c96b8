package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paideia-labs/paideia/pkg/config"
	"github.com/paideia-labs/paideia/pkg/fault"
)

func draftCfg() config.GeneratorConfig {
	cfg := config.GeneratorConfig{}
	cfg.SetDefaults()
	return cfg
}

func minimalDraft(difficulties ...Difficulty) []DraftExercise {
	out := make([]DraftExercise, len(difficulties))
	for i, d := range difficulties {
		out[i] = DraftExercise{
			Title:      "t",
			Difficulty: d,
			TestCases:  []TestCase{{}, {}, {IsHidden: true}},
		}
	}
	return out
}

func fullMix() []Difficulty {
	return []Difficulty{
		DifficultyEasy, DifficultyEasy, DifficultyEasy,
		DifficultyMedium, DifficultyMedium, DifficultyMedium, DifficultyMedium,
		DifficultyHard, DifficultyHard, DifficultyHard,
	}
}

func TestValidateDraft_Accepts(t *testing.T) {
	require.NoError(t, validateDraft(minimalDraft(fullMix()...), draftCfg()))
}

func TestValidateDraft_WrongCount(t *testing.T) {
	err := validateDraft(minimalDraft(DifficultyEasy), draftCfg())
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindContract))
}

func TestValidateDraft_WrongMix(t *testing.T) {
	mix := fullMix()
	mix[0] = DifficultyHard // 2/4/4
	err := validateDraft(minimalDraft(mix...), draftCfg())
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindContract))
}

func TestValidateDraft_TestCaseFloors(t *testing.T) {
	draft := minimalDraft(fullMix()...)
	draft[4].TestCases = draft[4].TestCases[:2]
	err := validateDraft(draft, draftCfg())
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindContract))

	draft = minimalDraft(fullMix()...)
	for i := range draft[7].TestCases {
		draft[7].TestCases[i].IsHidden = false
	}
	err = validateDraft(draft, draftCfg())
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindContract))
}

func TestValidateIndices(t *testing.T) {
	require.NoError(t, validateIndices([]int{0, 9, 5}, 10))

	for name, indices := range map[string][]int{
		"empty":     {},
		"duplicate": {1, 1},
		"too large": {10},
		"negative":  {-1},
	} {
		err := validateIndices(indices, 10)
		require.Error(t, err, name)
		assert.True(t, fault.IsKind(err, fault.KindRequest), name)
	}
}

func TestExcerptQueries_CapAndOrder(t *testing.T) {
	req := Requirements{Topic: "recursion", Concepts: []string{"base case", "call stack", "memoization", "tail calls", "trees", "graphs"}}

	queries := excerptQueries(req, 5)
	require.Len(t, queries, 5)
	assert.Equal(t, "recursion", queries[0])
	assert.Equal(t, "recursion base case", queries[1])
}

func TestHalveExcerpt(t *testing.T) {
	assert.Equal(t, "a\nb", halveExcerpt("a\nb\nc\nd"))
	assert.Equal(t, "only one line", halveExcerpt("only one line"))
}

func TestExerciseSchemaBlock(t *testing.T) {
	schema := exerciseSchemaBlock()
	assert.Contains(t, schema, `"exercises"`)
	assert.Contains(t, schema, `"test_cases"`)
	assert.Contains(t, schema, "EASY")
}
