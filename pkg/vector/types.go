// Package vector abstracts the vector store behind the retrieval substrate.
package vector

import "context"

// Document is a chunk ready for upsert, with its pre-computed vector.
type Document struct {
	ID       string
	Content  string
	Vector   []float32
	Metadata map[string]any
}

// Result is a scored search hit.
type Result struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]any
}

// Provider is a vector store backend. Embedding happens outside; providers
// only receive pre-computed vectors.
type Provider interface {
	Upsert(ctx context.Context, collection string, doc Document) error
	UpsertBatch(ctx context.Context, collection string, docs []Document) error
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)
	CreateCollection(ctx context.Context, collection string, dimension int) error
	DeleteCollection(ctx context.Context, collection string) error
	HasCollection(ctx context.Context, collection string) (bool, error)
	Name() string
	Close() error
}
