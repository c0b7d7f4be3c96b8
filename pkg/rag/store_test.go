package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paideia-labs/paideia/pkg/config"
	"github.com/paideia-labs/paideia/pkg/fault"
	"github.com/paideia-labs/paideia/pkg/vector"
)

// stubEmbedder produces deterministic vectors from text length so store
// tests run without a model.
type stubEmbedder struct {
	fail bool
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.fail {
		return nil, fault.New(fault.KindUpstream, "rag", "embed", "embedder down")
	}
	return []float32{float32(len(text)%7) + 1, float32(len(text)%3) + 1, 1}, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (s *stubEmbedder) Dimension() int    { return 3 }
func (s *stubEmbedder) ModelName() string { return "stub" }
func (s *stubEmbedder) Close() error      { return nil }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	provider, err := vector.NewChromemProvider(config.VectorConfig{})
	require.NoError(t, err)
	return NewStore(&stubEmbedder{}, provider, config.RAGConfig{ChunkWords: 20, OverlapWords: 5, TopK: 3})
}

func courseText() []byte {
	var b strings.Builder
	for i := 0; i < 12; i++ {
		b.WriteString("Binary trees store ordered keys and support logarithmic search operations. ")
		b.WriteString("Hash tables trade ordering for constant expected lookup time instead. ")
	}
	return []byte(b.String())
}

func TestStore_IngestAndQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	count, err := store.Ingest(ctx, "course-1", "notes.txt", courseText())
	require.NoError(t, err)
	assert.Greater(t, count, 1)

	chunks, err := store.Query(ctx, "course-1", "how do binary trees search", 3)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.LessOrEqual(t, len(chunks), 3)
	assert.Equal(t, "notes.txt", chunks[0].Source)
	assert.Equal(t, 1, chunks[0].Page)
	assert.NotEmpty(t, chunks[0].Text)
}

func TestStore_QueryMissingCollection(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Query(context.Background(), "nope", "anything", 3)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindNotFound))
}

func TestStore_ReingestReplacesCollection(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Ingest(ctx, "course-1", "v1.txt", courseText())
	require.NoError(t, err)

	_, err = store.Ingest(ctx, "course-1", "v2.txt", courseText())
	require.NoError(t, err)

	chunks, err := store.Query(ctx, "course-1", "binary trees", 5)
	require.NoError(t, err)
	for _, chunk := range chunks {
		assert.Equal(t, "v2.txt", chunk.Source)
	}
}

func TestStore_IngestEmptySourceFails(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Ingest(context.Background(), "course-1", "empty.txt", nil)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindCorruptSource))
	assert.False(t, store.Has("course-1"), "no partial collection may be written")
}

func TestStore_IngestCorruptPDFFails(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Ingest(context.Background(), "course-1", "broken.pdf", []byte("this is not a pdf"))
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindCorruptSource))
}

func TestStore_EmbedderFailureIsUpstreamAndLeavesOldGeneration(t *testing.T) {
	provider, err := vector.NewChromemProvider(config.VectorConfig{})
	require.NoError(t, err)
	emb := &stubEmbedder{}
	store := NewStore(emb, provider, config.RAGConfig{ChunkWords: 20, OverlapWords: 5})
	ctx := context.Background()

	_, err = store.Ingest(ctx, "course-1", "v1.txt", courseText())
	require.NoError(t, err)

	emb.fail = true
	_, err = store.Ingest(ctx, "course-1", "v2.txt", courseText())
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindUpstream))

	emb.fail = false
	chunks, err := store.Query(ctx, "course-1", "binary trees", 2)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "v1.txt", chunks[0].Source)
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Ingest(ctx, "course-1", "notes.txt", courseText())
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "course-1"))
	assert.False(t, store.Has("course-1"))

	err = store.Delete(ctx, "course-1")
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindNotFound))
}
