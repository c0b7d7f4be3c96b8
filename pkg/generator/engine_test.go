package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paideia-labs/paideia/pkg/config"
	"github.com/paideia-labs/paideia/pkg/fault"
	"github.com/paideia-labs/paideia/pkg/llm"
	"github.com/paideia-labs/paideia/pkg/rag"
	"github.com/paideia-labs/paideia/pkg/trace"
	"github.com/paideia-labs/paideia/pkg/vector"
)

// scriptedProvider returns canned completions in order and records the
// prompts it was given.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []string
	requests  []llm.Request
}

func (p *scriptedProvider) Complete(ctx context.Context, req llm.Request) (*llm.CompletionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if len(p.responses) == 0 {
		return nil, fault.New(fault.KindUpstream, "llm", "complete", "script exhausted")
	}
	text := p.responses[0]
	p.responses = p.responses[1:]
	return &llm.CompletionResult{Text: text, Model: "scripted"}, nil
}

func (p *scriptedProvider) CompleteStream(ctx context.Context, req llm.Request) (<-chan llm.StreamChunk, error) {
	return nil, fault.New(fault.KindRequest, "llm", "stream", "not scripted")
}

func (p *scriptedProvider) ModelName() string { return "scripted" }
func (p *scriptedProvider) Close() error      { return nil }

func (p *scriptedProvider) userPrompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.requests))
	for i, req := range p.requests {
		out[i] = req.User
	}
	return out
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)%7) + 1, float32(len(text)%3) + 1, 1}, nil
}

func (s stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, _ := s.Embed(ctx, text)
		out[i] = vec
	}
	return out, nil
}

func (stubEmbedder) Dimension() int    { return 3 }
func (stubEmbedder) ModelName() string { return "stub" }
func (stubEmbedder) Close() error      { return nil }

type fakeCatalog struct {
	mu    sync.Mutex
	calls []PublishRequest
	fail  bool
}

func (c *fakeCatalog) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return nil, fault.New(fault.KindUpstream, "catalog", "publish", "catalog down")
	}
	c.calls = append(c.calls, req)
	ids := make([]string, len(req.Exercises))
	for i := range ids {
		ids[i] = fmt.Sprintf("ex-%d", i)
	}
	return &PublishResult{ActivityID: "act-" + req.JobID, ExerciseIDs: ids}, nil
}

func validDraftJSON(t *testing.T) string {
	t.Helper()
	difficulties := []Difficulty{
		DifficultyEasy, DifficultyEasy, DifficultyEasy,
		DifficultyMedium, DifficultyMedium, DifficultyMedium, DifficultyMedium,
		DifficultyHard, DifficultyHard, DifficultyHard,
	}
	exercises := make([]DraftExercise, len(difficulties))
	for i, difficulty := range difficulties {
		exercises[i] = DraftExercise{
			Title:              fmt.Sprintf("Exercise %d", i+1),
			Description:        "Practice for-loop iteration.",
			Difficulty:         difficulty,
			Mission:            "Write a loop that sums the input numbers.",
			StarterCode:        "def solve(nums):\n    pass",
			SolutionCode:       "def solve(nums):\n    return sum(nums)",
			Concepts:           []string{"for-loops"},
			LearningObjectives: []string{"iterate a list"},
			TestCases: []TestCase{
				{Ordinal: 0, Description: "small input", Input: "1 2 3", ExpectedOutput: "6"},
				{Ordinal: 1, Description: "empty input", Input: "", ExpectedOutput: "0"},
				{Ordinal: 2, Description: "hidden case", Input: "5 5", ExpectedOutput: "10", IsHidden: true},
			},
			EstimatedMinutes: 10,
		}
	}
	encoded, err := json.Marshal(draftPayload{Exercises: exercises})
	require.NoError(t, err)
	return string(encoded)
}

func newTestEngine(t *testing.T, provider llm.Provider, catalog CatalogWriter) *Engine {
	t.Helper()
	vec, err := vector.NewChromemProvider(config.VectorConfig{})
	require.NoError(t, err)
	corpus := rag.NewStore(stubEmbedder{}, vec, config.RAGConfig{ChunkWords: 50, OverlapWords: 10, TopK: 3})
	gateway := llm.NewGateway(provider, config.LLMConfig{Provider: "openai", Model: "scripted", APIKey: "k"})

	engine, err := NewEngine(gateway, corpus, trace.NewMemoryStore(), catalog, config.GeneratorConfig{Workers: 2, QueueSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func testSpec() JobSpec {
	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString("A for-loop repeats a block of code once per element of a sequence. ")
		b.WriteString("The range function produces a sequence of integers for counting loops. ")
	}
	return JobSpec{
		TeacherID: "teacher-1",
		CourseID:  "course-1",
		Requirements: Requirements{
			Topic:    "for-loops",
			Language: "Python",
			Concepts: []string{"iteration", "range"},
		},
		SourceName:    "for-loops.txt",
		Source:        []byte(b.String()),
		CollectionKey: "course-1-forloops",
	}
}

func waitForTerminalOrReview(t *testing.T, engine *Engine, jobID string) Phase {
	t.Helper()
	var phase Phase
	require.Eventually(t, func() bool {
		status, err := engine.Status(jobID)
		require.NoError(t, err)
		phase = status.Phase
		return phase == PhaseAwaitingReview || phase.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return phase
}

func TestEngine_HappyPathGeneration(t *testing.T) {
	provider := &scriptedProvider{responses: []string{validDraftJSON(t)}}
	catalog := &fakeCatalog{}
	engine := newTestEngine(t, provider, catalog)

	jobID, err := engine.Start(context.Background(), testSpec())
	require.NoError(t, err)

	phase := waitForTerminalOrReview(t, engine, jobID)
	require.Equal(t, PhaseAwaitingReview, phase)

	draft, err := engine.Draft(jobID)
	require.NoError(t, err)
	require.Len(t, draft, 10)

	histogram := map[Difficulty]int{}
	for _, ex := range draft {
		histogram[ex.Difficulty]++
	}
	assert.Equal(t, 3, histogram[DifficultyEasy])
	assert.Equal(t, 4, histogram[DifficultyMedium])
	assert.Equal(t, 3, histogram[DifficultyHard])

	result, err := engine.ApproveAndPublish(context.Background(), jobID, nil)
	require.NoError(t, err)
	assert.Len(t, result.ExerciseIDs, 10)

	status, err := engine.Status(jobID)
	require.NoError(t, err)
	assert.Equal(t, PhasePublished, status.Phase)

	// Publishing twice is a state-machine violation.
	_, err = engine.ApproveAndPublish(context.Background(), jobID, nil)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindConflict))
	assert.Len(t, catalog.calls, 1)
}

func TestEngine_PromptCarriesMaterialAndSchema(t *testing.T) {
	provider := &scriptedProvider{responses: []string{validDraftJSON(t)}}
	engine := newTestEngine(t, provider, &fakeCatalog{})

	jobID, err := engine.Start(context.Background(), testSpec())
	require.NoError(t, err)
	require.Equal(t, PhaseAwaitingReview, waitForTerminalOrReview(t, engine, jobID))

	prompts := provider.userPrompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "for-loops")
	assert.Contains(t, prompts[0], "COURSE MATERIAL")
	assert.Contains(t, prompts[0], "range function")
	assert.Contains(t, prompts[0], `"exercises"`)
	assert.Contains(t, prompts[0], "3 EASY, 4 MEDIUM, 3 HARD")
}

func TestEngine_MalformedDraftRetriesWithNarrowedContext(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"I'd be happy to help! Here are some exercise ideas in plain prose.",
		validDraftJSON(t),
	}}
	engine := newTestEngine(t, provider, &fakeCatalog{})

	jobID, err := engine.Start(context.Background(), testSpec())
	require.NoError(t, err)
	require.Equal(t, PhaseAwaitingReview, waitForTerminalOrReview(t, engine, jobID))

	prompts := provider.userPrompts()
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[1], "CRITICAL")
	assert.Less(t, len(prompts[1]), len(prompts[0])+len(jsonOnlySuffix),
		"retry prompt must carry a narrowed excerpt")
}

func TestEngine_SecondContractFailureFailsJob(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"not json", "still not json"}}
	catalog := &fakeCatalog{}
	engine := newTestEngine(t, provider, catalog)

	jobID, err := engine.Start(context.Background(), testSpec())
	require.NoError(t, err)
	require.Equal(t, PhaseFailed, waitForTerminalOrReview(t, engine, jobID))

	status, err := engine.Status(jobID)
	require.NoError(t, err)
	assert.NotEmpty(t, status.Error)
	assert.Empty(t, catalog.calls)

	_, err = engine.Draft(jobID)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindRequest))
}

func TestEngine_OffContractDraftTriggersRetry(t *testing.T) {
	// Parseable JSON with the wrong exercise count is still a contract
	// violation.
	short, err := json.Marshal(draftPayload{Exercises: []DraftExercise{{
		Title: "only one", Difficulty: DifficultyEasy,
		TestCases: []TestCase{{}, {}, {IsHidden: true}},
	}}})
	require.NoError(t, err)

	provider := &scriptedProvider{responses: []string{string(short), validDraftJSON(t)}}
	engine := newTestEngine(t, provider, &fakeCatalog{})

	jobID, startErr := engine.Start(context.Background(), testSpec())
	require.NoError(t, startErr)
	assert.Equal(t, PhaseAwaitingReview, waitForTerminalOrReview(t, engine, jobID))
}

func TestEngine_SelectiveApproval(t *testing.T) {
	provider := &scriptedProvider{responses: []string{validDraftJSON(t)}}
	catalog := &fakeCatalog{}
	engine := newTestEngine(t, provider, catalog)

	jobID, err := engine.Start(context.Background(), testSpec())
	require.NoError(t, err)
	require.Equal(t, PhaseAwaitingReview, waitForTerminalOrReview(t, engine, jobID))

	result, err := engine.ApproveAndPublish(context.Background(), jobID, []int{0, 2, 5, 7, 9})
	require.NoError(t, err)
	assert.Len(t, result.ExerciseIDs, 5)

	require.Len(t, catalog.calls, 1)
	published := catalog.calls[0].Exercises
	require.Len(t, published, 5)
	assert.Equal(t, "Exercise 1", published[0].Title)
	assert.Equal(t, "Exercise 3", published[1].Title)
	assert.Equal(t, "Exercise 10", published[4].Title)

	// The draft stays frozen after publication.
	draft, err := engine.Draft(jobID)
	require.NoError(t, err)
	assert.Len(t, draft, 10)
}

func TestEngine_InvalidSelections(t *testing.T) {
	provider := &scriptedProvider{responses: []string{validDraftJSON(t)}}
	engine := newTestEngine(t, provider, &fakeCatalog{})

	jobID, err := engine.Start(context.Background(), testSpec())
	require.NoError(t, err)
	require.Equal(t, PhaseAwaitingReview, waitForTerminalOrReview(t, engine, jobID))

	for name, indices := range map[string][]int{
		"empty":        {},
		"duplicate":    {0, 0},
		"out of range": {0, 10},
		"negative":     {-1},
	} {
		_, err := engine.ApproveAndPublish(context.Background(), jobID, indices)
		require.Error(t, err, name)
		assert.True(t, fault.IsKind(err, fault.KindRequest), name)
	}

	status, err := engine.Status(jobID)
	require.NoError(t, err)
	assert.Equal(t, PhaseAwaitingReview, status.Phase, "rejected selections leave the job reviewable")
}

func TestEngine_CatalogFailureFailsJob(t *testing.T) {
	provider := &scriptedProvider{responses: []string{validDraftJSON(t)}}
	catalog := &fakeCatalog{fail: true}
	engine := newTestEngine(t, provider, catalog)

	jobID, err := engine.Start(context.Background(), testSpec())
	require.NoError(t, err)
	require.Equal(t, PhaseAwaitingReview, waitForTerminalOrReview(t, engine, jobID))

	_, err = engine.ApproveAndPublish(context.Background(), jobID, nil)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindUpstream))

	status, err := engine.Status(jobID)
	require.NoError(t, err)
	assert.Equal(t, PhaseFailed, status.Phase)
}

func TestEngine_Cancel(t *testing.T) {
	provider := &scriptedProvider{responses: []string{validDraftJSON(t)}}
	engine := newTestEngine(t, provider, &fakeCatalog{})

	jobID, err := engine.Start(context.Background(), testSpec())
	require.NoError(t, err)
	waitForTerminalOrReview(t, engine, jobID)

	require.NoError(t, engine.Cancel(jobID))
	status, err := engine.Status(jobID)
	require.NoError(t, err)
	assert.Equal(t, PhaseFailed, status.Phase)

	// Idempotent.
	require.NoError(t, engine.Cancel(jobID))

	_, err = engine.ApproveAndPublish(context.Background(), jobID, nil)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindConflict))
}

func TestEngine_UnknownJob(t *testing.T) {
	engine := newTestEngine(t, &scriptedProvider{}, &fakeCatalog{})

	_, err := engine.Status("nope")
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindRequest))
}

func TestEngine_StartValidation(t *testing.T) {
	engine := newTestEngine(t, &scriptedProvider{}, &fakeCatalog{})

	spec := testSpec()
	spec.Requirements.Topic = ""
	_, err := engine.Start(context.Background(), spec)
	assert.True(t, fault.IsKind(err, fault.KindRequest))

	spec = testSpec()
	spec.Source = nil
	_, err = engine.Start(context.Background(), spec)
	assert.True(t, fault.IsKind(err, fault.KindRequest))
}

func TestEngine_CorruptSourceFailsJob(t *testing.T) {
	engine := newTestEngine(t, &scriptedProvider{}, &fakeCatalog{})

	spec := testSpec()
	spec.SourceName = "broken.pdf"
	spec.Source = []byte("not a pdf at all")

	jobID, err := engine.Start(context.Background(), spec)
	require.NoError(t, err)
	require.Equal(t, PhaseFailed, waitForTerminalOrReview(t, engine, jobID))
}

func TestEngine_SweepRemovesOldTerminalJobs(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"nope", "nope"}}
	engine := newTestEngine(t, provider, &fakeCatalog{})

	jobID, err := engine.Start(context.Background(), testSpec())
	require.NoError(t, err)
	require.Equal(t, PhaseFailed, waitForTerminalOrReview(t, engine, jobID))

	assert.Equal(t, 0, engine.Sweep(time.Hour), "fresh terminal jobs survive")
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, engine.Sweep(time.Millisecond), "aged-out jobs are removed")

	_, err = engine.Status(jobID)
	require.Error(t, err)
}
