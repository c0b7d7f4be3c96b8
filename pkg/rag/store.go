package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/paideia-labs/paideia/pkg/config"
	"github.com/paideia-labs/paideia/pkg/embedder"
	"github.com/paideia-labs/paideia/pkg/fault"
	"github.com/paideia-labs/paideia/pkg/observability"
	"github.com/paideia-labs/paideia/pkg/vector"
)

// RetrievedChunk is one query hit, ordered by descending similarity.
type RetrievedChunk struct {
	Text    string
	Score   float32
	Page    int
	Ordinal int
	Source  string
}

// Store owns the document corpus: ingest, query, delete. Re-ingesting a
// collection key replaces the collection atomically; readers see either the
// old generation or the new one, never a mix.
type Store struct {
	embedder embedder.Embedder
	provider vector.Provider
	cfg      config.RAGConfig

	mu   sync.RWMutex
	live map[string]string // collection key -> physical generation
}

// NewStore creates a Store over the given embedder and vector provider.
func NewStore(emb embedder.Embedder, provider vector.Provider, cfg config.RAGConfig) *Store {
	cfg.SetDefaults()
	return &Store{
		embedder: emb,
		provider: provider,
		cfg:      cfg,
		live:     make(map[string]string),
	}
}

// Ingest extracts, chunks, embeds, and indexes a source document under the
// collection key, returning the chunk count. The new generation is built
// aside and swapped in whole; a failure anywhere leaves the previous
// generation untouched.
func (s *Store) Ingest(ctx context.Context, collectionKey, filename string, data []byte) (int, error) {
	tracer := observability.GetTracer("paideia.rag")
	ctx, span := tracer.Start(ctx, observability.SpanIngest,
		trace.WithAttributes(attribute.String(observability.AttrCollection, collectionKey)),
	)
	defer span.End()

	chunkCount, err := s.ingest(ctx, collectionKey, filename, data)
	observability.GetGlobalMetrics().RecordIngest(ctx, collectionKey, chunkCount, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	span.SetAttributes(attribute.Int("rag.chunks", chunkCount))
	span.SetStatus(codes.Ok, "success")
	return chunkCount, nil
}

func (s *Store) ingest(ctx context.Context, collectionKey, filename string, data []byte) (int, error) {
	pages, err := ExtractPages(filename, data)
	if err != nil {
		return 0, err
	}

	chunks := ChunkPages(pages, s.cfg.ChunkWords, s.cfg.OverlapWords)
	if len(chunks) == 0 {
		return 0, fault.New(fault.KindCorruptSource, component, "ingest", "source document produced no chunks")
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}

	docs := make([]vector.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = vector.Document{
			ID:      fmt.Sprintf("%s-%d", collectionKey, chunk.Ordinal),
			Content: chunk.Text,
			Vector:  vectors[i],
			Metadata: map[string]any{
				"collection":   collectionKey,
				"source":       filename,
				"page":         chunk.Page,
				"page_ordinal": chunk.PageOrdinal,
				"ordinal":      chunk.Ordinal,
			},
		}
	}

	staging := collectionKey + "@" + uuid.NewString()[:8]
	if err := s.provider.UpsertBatch(ctx, staging, docs); err != nil {
		if cleanupErr := s.provider.DeleteCollection(ctx, staging); cleanupErr != nil {
			slog.Warn("Failed to clean up staging collection", "collection", staging, "error", cleanupErr)
		}
		return 0, fault.Wrap(fault.KindUpstream, component, "ingest", "vector store write failed", err)
	}

	s.mu.Lock()
	previous := s.live[collectionKey]
	s.live[collectionKey] = staging
	s.mu.Unlock()

	if previous != "" {
		if err := s.provider.DeleteCollection(ctx, previous); err != nil {
			slog.Warn("Failed to delete replaced collection generation", "collection", previous, "error", err)
		}
	}
	return len(chunks), nil
}

// Query returns the topK most similar chunks for the query text. A missing
// collection fails with the not-found kind; callers typically fall back to
// an empty context.
func (s *Store) Query(ctx context.Context, collectionKey, queryText string, topK int) ([]RetrievedChunk, error) {
	tracer := observability.GetTracer("paideia.rag")
	ctx, span := tracer.Start(ctx, observability.SpanQuery,
		trace.WithAttributes(attribute.String(observability.AttrCollection, collectionKey)),
	)
	defer span.End()

	if topK <= 0 {
		topK = s.cfg.TopK
	}

	physical, ok := s.resolve(collectionKey)
	if !ok {
		err := fault.New(fault.KindNotFound, component, "query",
			fmt.Sprintf("collection %q does not exist", collectionKey))
		span.SetStatus(codes.Error, "collection not found")
		return nil, err
	}

	queryVector, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	results, err := s.provider.Search(ctx, physical, queryVector, topK)
	if err != nil {
		span.RecordError(err)
		return nil, fault.Wrap(fault.KindUpstream, component, "query", "vector search failed", err)
	}

	chunks := make([]RetrievedChunk, 0, len(results))
	for _, result := range results {
		chunks = append(chunks, RetrievedChunk{
			Text:    result.Content,
			Score:   result.Score,
			Page:    metadataInt(result.Metadata, "page"),
			Ordinal: metadataInt(result.Metadata, "ordinal"),
			Source:  metadataString(result.Metadata, "source"),
		})
	}
	span.SetAttributes(attribute.Int("rag.hits", len(chunks)))
	return chunks, nil
}

// Delete removes a collection. Deleting a missing collection fails with the
// not-found kind.
func (s *Store) Delete(ctx context.Context, collectionKey string) error {
	s.mu.Lock()
	physical, ok := s.live[collectionKey]
	delete(s.live, collectionKey)
	s.mu.Unlock()

	if !ok {
		return fault.New(fault.KindNotFound, component, "delete",
			fmt.Sprintf("collection %q does not exist", collectionKey))
	}
	if err := s.provider.DeleteCollection(ctx, physical); err != nil {
		return fault.Wrap(fault.KindUpstream, component, "delete", "vector store delete failed", err)
	}
	return nil
}

// Has reports whether a collection exists.
func (s *Store) Has(collectionKey string) bool {
	_, ok := s.resolve(collectionKey)
	return ok
}

// Close releases the embedder and the vector provider.
func (s *Store) Close() error {
	if err := s.embedder.Close(); err != nil {
		return err
	}
	return s.provider.Close()
}

func (s *Store) resolve(collectionKey string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	physical, ok := s.live[collectionKey]
	return physical, ok
}

// Vector store metadata round-trips as strings on some providers and as
// numbers on others.
func metadataInt(metadata map[string]any, key string) int {
	switch v := metadata[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

func metadataString(metadata map[string]any, key string) string {
	if v, ok := metadata[key].(string); ok {
		return v
	}
	return ""
}
