package index

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"

	"github.com/bull/docfunnel/internal/document"
)

const (
	// CollectionName is the single Qdrant collection holding every
	// document's chunks. Namespaces are payload filters on document_id.
	CollectionName = "chunks"

	// DefaultVectorDimension matches text-embedding-3-small.
	DefaultVectorDimension = 1536

	vectorName = "content"
)

// QdrantIndex implements Index over a Qdrant gRPC connection.
type QdrantIndex struct {
	client    *qdrant.Client
	dimension uint64
}

// NewQdrantIndex connects to Qdrant and validates health before returning.
// The health check retries with exponential backoff; this is the only place
// the adapter retries anything — ingest and query calls are issued once and
// their failures surface to the caller.
func NewQdrantIndex(host string, port int, dimension uint64) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	if dimension == 0 {
		dimension = DefaultVectorDimension
	}
	idx := &QdrantIndex{client: client, dimension: dimension}

	if err := idx.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}
	return idx, nil
}

// healthCheckWithRetry probes Qdrant with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (q *QdrantIndex) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return q.Health(ctx)
	}, backoff.WithContext(b, ctx))
}

// Health performs a single health check against Qdrant.
func (q *QdrantIndex) Health(ctx context.Context) error {
	result, err := q.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates the chunks collection and its payload indexes if
// absent. Idempotent.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	collections, err := q.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, name := range collections {
		if name == CollectionName {
			return nil
		}
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: CollectionName,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			vectorName: {
				Size:     q.dimension,
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	return q.createPayloadIndexes(ctx)
}

// createPayloadIndexes indexes the filterable fields. Without these,
// namespace filtering degrades to a full scan.
func (q *QdrantIndex) createPayloadIndexes(ctx context.Context) error {
	for _, field := range []string{"document_id", "section", "type"} {
		_, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: CollectionName,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("create index for field %s: %w", field, err)
		}
	}
	return nil
}

// Upsert writes records in batches of 100. Chunk IDs are stable across
// re-ingestion, so collisions overwrite in place.
func (q *QdrantIndex) Upsert(ctx context.Context, documentID string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	for i, rec := range records {
		if uint64(len(rec.Vector)) != q.dimension {
			return fmt.Errorf("%w: record %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(rec.Vector), q.dimension)
		}
	}

	const batchSize = 100
	for i := 0; i < len(records); i += batchSize {
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}

		batch := records[i:end]
		points := make([]*qdrant.PointStruct, len(batch))
		for j, rec := range batch {
			points[j] = &qdrant.PointStruct{
				Id: qdrant.NewIDUUID(rec.ChunkID),
				Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
					vectorName: qdrant.NewVector(rec.Vector...),
				}),
				Payload: qdrant.NewValueMap(map[string]any{
					"document_id": documentID,
					"chunk_index": int64(rec.ChunkIndex),
					"section":     rec.Section,
					"page_start":  int64(rec.StartPage),
					"page_end":    int64(rec.EndPage),
					"type":        string(rec.Type),
					"tokens":      int64(rec.Tokens),
					"content":     rec.Text,
				}),
			}
		}

		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: CollectionName,
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("upsert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

// Search performs vector similarity search scoped to one document's
// namespace.
func (q *QdrantIndex) Search(ctx context.Context, documentID string, vector []float32, limit int, filter *Filter) ([]Scored, error) {
	if uint64(len(vector)) != q.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), q.dimension)
	}

	must := []*qdrant.Condition{
		qdrant.NewMatch("document_id", documentID),
	}
	if filter != nil {
		if filter.Section != "" {
			must = append(must, qdrant.NewMatch("section", filter.Section))
		}
		if filter.Type != "" {
			must = append(must, qdrant.NewMatch("type", string(filter.Type)))
		}
	}

	using := vectorName
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: CollectionName,
		Query:          qdrant.NewQuery(vector...),
		Using:          &using,
		Filter:         &qdrant.Filter{Must: must},
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	scored := make([]Scored, 0, len(results))
	for _, result := range results {
		payload := result.Payload
		scored = append(scored, Scored{
			Record: Record{
				ChunkID:    result.Id.GetUuid(),
				DocumentID: documentID,
				ChunkIndex: int(payload["chunk_index"].GetIntegerValue()),
				Section:    payload["section"].GetStringValue(),
				StartPage:  int(payload["page_start"].GetIntegerValue()),
				EndPage:    int(payload["page_end"].GetIntegerValue()),
				Type:       document.ChunkType(payload["type"].GetStringValue()),
				Tokens:     int(payload["tokens"].GetIntegerValue()),
				Text:       payload["content"].GetStringValue(),
			},
			Score: float64(result.Score),
		})
	}

	// Qdrant orders by score but leaves equal-score ordering unspecified;
	// the contract promises insertion-order ties.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Record.ChunkIndex < scored[j].Record.ChunkIndex
	})
	return scored, nil
}

// Delete removes every point in the document's namespace.
func (q *QdrantIndex) Delete(ctx context.Context, documentID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: CollectionName,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("document_id", documentID),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("delete namespace %s: %w", documentID, err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (q *QdrantIndex) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}
