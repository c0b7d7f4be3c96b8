package vector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/paideia-labs/paideia/pkg/config"
)

// ChromemProvider stores vectors in-process with chromem-go. It needs no
// external service, which makes it the default for development and small
// deployments; all vectors live in RAM, with optional file persistence.
type ChromemProvider struct {
	db          *chromem.DB
	persistPath string
	compress    bool
	mu          sync.RWMutex

	collections map[string]*chromem.Collection

	// Vectors arrive pre-computed, so the embedding func must never run.
	embeddingFunc chromem.EmbeddingFunc
}

// NewChromemProvider creates a chromem-backed provider.
func NewChromemProvider(cfg config.VectorConfig) (*ChromemProvider, error) {
	var db *chromem.DB

	if cfg.PersistPath != "" {
		if err := os.MkdirAll(cfg.PersistPath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create persist directory: %w", err)
		}

		dbPath := filepath.Join(cfg.PersistPath, "vectors.gob")
		if cfg.Compress {
			dbPath += ".gz"
		}

		if _, statErr := os.Stat(dbPath); statErr == nil {
			loaded, err := chromem.NewPersistentDB(dbPath, cfg.Compress)
			if err != nil {
				slog.Warn("Failed to load existing vector database, creating new", "path", dbPath, "error", err)
				db = chromem.NewDB()
			} else {
				slog.Info("Loaded vector database from file", "path", dbPath)
				db = loaded
			}
		} else {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	return &ChromemProvider{
		db:          db,
		persistPath: cfg.PersistPath,
		compress:    cfg.Compress,
		collections: make(map[string]*chromem.Collection),
		embeddingFunc: func(ctx context.Context, text string) ([]float32, error) {
			return nil, fmt.Errorf("embedding function called but vectors should be pre-computed")
		},
	}, nil
}

func (p *ChromemProvider) getCollection(name string) (*chromem.Collection, error) {
	p.mu.RLock()
	if col, ok := p.collections[name]; ok {
		p.mu.RUnlock()
		return col, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if col, ok := p.collections[name]; ok {
		return col, nil
	}

	col, err := p.db.GetOrCreateCollection(name, nil, p.embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to get/create collection %q: %w", name, err)
	}
	p.collections[name] = col
	return col, nil
}

// Upsert adds or updates one document.
func (p *ChromemProvider) Upsert(ctx context.Context, collection string, doc Document) error {
	return p.UpsertBatch(ctx, collection, []Document{doc})
}

// UpsertBatch adds or updates documents with pre-computed vectors.
func (p *ChromemProvider) UpsertBatch(ctx context.Context, collection string, docs []Document) error {
	col, err := p.getCollection(collection)
	if err != nil {
		return err
	}

	chromemDocs := make([]chromem.Document, 0, len(docs))
	for _, doc := range docs {
		// chromem metadata values are strings.
		strMetadata := make(map[string]string, len(doc.Metadata))
		for k, v := range doc.Metadata {
			strMetadata[k] = fmt.Sprint(v)
		}
		chromemDocs = append(chromemDocs, chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  strMetadata,
			Embedding: doc.Vector,
		})
	}

	if err := col.AddDocuments(ctx, chromemDocs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to upsert documents: %w", err)
	}

	if err := p.persist(); err != nil {
		slog.Warn("Failed to persist after upsert", "error", err)
	}
	return nil
}

// Search finds the topK most similar documents.
func (p *ChromemProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	col, err := p.getCollection(collection)
	if err != nil {
		return nil, err
	}

	// chromem refuses topK above the collection size.
	if count := col.Count(); topK > count {
		topK = count
	}
	if topK == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := make([]Result, 0, len(results))
	for _, r := range results {
		metadata := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			metadata[k] = v
		}
		out = append(out, Result{
			ID:       r.ID,
			Score:    r.Similarity,
			Content:  r.Content,
			Metadata: metadata,
		})
	}
	return out, nil
}

// CreateCollection creates a collection; chromem creates them implicitly.
func (p *ChromemProvider) CreateCollection(ctx context.Context, collection string, dimension int) error {
	_, err := p.getCollection(collection)
	return err
}

// DeleteCollection removes a collection and all its documents.
func (p *ChromemProvider) DeleteCollection(ctx context.Context, collection string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.db.DeleteCollection(collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	delete(p.collections, collection)

	if err := p.persist(); err != nil {
		slog.Warn("Failed to persist after collection delete", "error", err)
	}
	return nil
}

// HasCollection reports whether the collection exists.
func (p *ChromemProvider) HasCollection(ctx context.Context, collection string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if _, ok := p.collections[collection]; ok {
		return true, nil
	}
	return p.db.GetCollection(collection, p.embeddingFunc) != nil, nil
}

// Name returns the provider name.
func (p *ChromemProvider) Name() string {
	return "chromem"
}

// Close persists a final snapshot when persistence is enabled.
func (p *ChromemProvider) Close() error {
	return p.persist()
}

func (p *ChromemProvider) persist() error {
	if p.persistPath == "" {
		return nil
	}
	dbPath := filepath.Join(p.persistPath, "vectors.gob")
	if p.compress {
		dbPath += ".gz"
	}
	return p.db.ExportToFile(dbPath, p.compress, "")
}
