package vector

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/paideia-labs/paideia/pkg/config"
)

// QdrantProvider talks to an external Qdrant instance over gRPC. Use it when
// the corpus outgrows the in-process store.
type QdrantProvider struct {
	client *qdrant.Client
	config config.VectorConfig
}

// NewQdrantProvider creates a Qdrant-backed provider.
func NewQdrantProvider(cfg config.VectorConfig) (*QdrantProvider, error) {
	cfg.SetDefaults()
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return &QdrantProvider{client: client, config: cfg}, nil
}

// Upsert adds or updates one document.
func (p *QdrantProvider) Upsert(ctx context.Context, collection string, doc Document) error {
	return p.UpsertBatch(ctx, collection, []Document{doc})
}

// UpsertBatch adds or updates documents, creating the collection on first use.
func (p *QdrantProvider) UpsertBatch(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	if err := p.ensureCollection(ctx, collection, len(docs[0].Vector)); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, doc := range docs {
		payload := make(map[string]*qdrant.Value, len(doc.Metadata)+1)
		for key, value := range doc.Metadata {
			val, err := qdrant.NewValue(value)
			if err != nil {
				return fmt.Errorf("failed to convert metadata value for key %s: %w", key, err)
			}
			payload[key] = val
		}
		if doc.Content != "" {
			payload["content"] = qdrant.NewValueString(doc.Content)
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(doc.ID),
			Vectors: qdrant.NewVectors(doc.Vector...),
			Payload: payload,
		})
	}

	_, err := p.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

// Search finds the topK most similar documents.
func (p *QdrantProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	limit := uint64(topK)
	points, err := p.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}

	out := make([]Result, 0, len(points))
	for _, point := range points {
		result := Result{Score: point.Score}

		if point.Id != nil {
			switch idType := point.Id.PointIdOptions.(type) {
			case *qdrant.PointId_Uuid:
				result.ID = idType.Uuid
			case *qdrant.PointId_Num:
				result.ID = fmt.Sprintf("%d", idType.Num)
			}
		}

		metadata := make(map[string]any, len(point.Payload))
		for key, value := range point.Payload {
			metadata[key] = value.AsInterface()
		}
		if content, ok := metadata["content"].(string); ok {
			result.Content = content
			delete(metadata, "content")
		}
		result.Metadata = metadata

		out = append(out, result)
	}
	return out, nil
}

// CreateCollection creates a collection with cosine distance.
func (p *QdrantProvider) CreateCollection(ctx context.Context, collection string, dimension int) error {
	err := p.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// DeleteCollection removes a collection.
func (p *QdrantProvider) DeleteCollection(ctx context.Context, collection string) error {
	if err := p.client.DeleteCollection(ctx, collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

// HasCollection reports whether the collection exists.
func (p *QdrantProvider) HasCollection(ctx context.Context, collection string) (bool, error) {
	exists, err := p.client.CollectionExists(ctx, collection)
	if err != nil {
		return false, fmt.Errorf("failed to check collection: %w", err)
	}
	return exists, nil
}

// Name returns the provider name.
func (p *QdrantProvider) Name() string {
	return "qdrant"
}

// Close closes the gRPC connection.
func (p *QdrantProvider) Close() error {
	return p.client.Close()
}

func (p *QdrantProvider) ensureCollection(ctx context.Context, collection string, dimension int) error {
	exists, err := p.HasCollection(ctx, collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return p.CreateCollection(ctx, collection, dimension)
}
