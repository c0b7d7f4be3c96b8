package vector

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paideia-labs/paideia/pkg/config"
)

func newTestProvider(t *testing.T) *ChromemProvider {
	t.Helper()
	provider, err := NewChromemProvider(config.VectorConfig{})
	require.NoError(t, err)
	return provider
}

func TestChromemProvider_UpsertAndSearch(t *testing.T) {
	provider := newTestProvider(t)
	ctx := context.Background()

	docs := []Document{
		{ID: "a", Content: "binary search trees", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"page": 1}},
		{ID: "b", Content: "hash tables", Vector: []float32{0, 1, 0}, Metadata: map[string]any{"page": 2}},
		{ID: "c", Content: "balanced trees", Vector: []float32{0.9, 0.1, 0}, Metadata: map[string]any{"page": 3}},
	}
	require.NoError(t, provider.UpsertBatch(ctx, "course", docs))

	results, err := provider.Search(ctx, "course", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "c", results[1].ID)
	assert.Equal(t, "binary search trees", results[0].Content)
	assert.Equal(t, "1", results[0].Metadata["page"])
}

func TestChromemProvider_SearchCapsTopK(t *testing.T) {
	provider := newTestProvider(t)
	ctx := context.Background()

	require.NoError(t, provider.Upsert(ctx, "small", Document{ID: "only", Vector: []float32{1, 0}}))

	results, err := provider.Search(ctx, "small", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestChromemProvider_HasAndDeleteCollection(t *testing.T) {
	provider := newTestProvider(t)
	ctx := context.Background()

	exists, err := provider.HasCollection(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, provider.Upsert(ctx, "present", Document{ID: "x", Vector: []float32{1}}))
	exists, err = provider.HasCollection(ctx, "present")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, provider.DeleteCollection(ctx, "present"))
	exists, err = provider.HasCollection(ctx, "present")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestChromemProvider_UpsertOverwritesByID(t *testing.T) {
	provider := newTestProvider(t)
	ctx := context.Background()

	require.NoError(t, provider.Upsert(ctx, "col", Document{ID: "x", Content: "old", Vector: []float32{1, 0}}))
	require.NoError(t, provider.Upsert(ctx, "col", Document{ID: "x", Content: "new", Vector: []float32{1, 0}}))

	results, err := provider.Search(ctx, "col", []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new", results[0].Content)
}

func TestChromemProvider_ManyDocuments(t *testing.T) {
	provider := newTestProvider(t)
	ctx := context.Background()

	docs := make([]Document, 0, 50)
	for i := 0; i < 50; i++ {
		docs = append(docs, Document{
			ID:     fmt.Sprintf("doc-%d", i),
			Vector: []float32{float32(i) / 50, 1 - float32(i)/50},
		})
	}
	require.NoError(t, provider.UpsertBatch(ctx, "bulk", docs))

	results, err := provider.Search(ctx, "bulk", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Len(t, results, 5)
}
