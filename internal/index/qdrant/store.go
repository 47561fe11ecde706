// Package qdrant provides the Qdrant-backed vector index for large
// collections. Qdrant's HNSW search may be approximate at scale; the small
// result page is re-sorted with the deterministic tie-break so modest
// collections rank identically to the exact backend.
package qdrant

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"

	"github.com/shopdocs/docqa/internal/index"
)

// vectorName is the named vector carrying chunk embeddings. Document points
// carry no vector; the named-vector config lets both kinds share one
// collection.
const vectorName = "content"

// upsertBatchSize bounds points per upsert request.
const upsertBatchSize = 100

// cleanupTimeout bounds the pre-clear and rollback deletes inside
// UpsertDocument. Those run detached from the request context: a caller
// cancelling mid-upsert must not be able to strand partially written chunks.
const cleanupTimeout = 30 * time.Second

// Ensure Store implements the index port.
var _ index.Store = (*Store)(nil)

// Store wraps the Qdrant client with collection management and the
// document-granular write semantics the Store port requires.
type Store struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// New creates a Qdrant-backed store and verifies the server is reachable,
// retrying with exponential backoff before failing fast.
func New(host string, port int, collection string, dimension int) (*Store, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dimension)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := &Store{client: client, collection: collection, dimension: dimension}

	if err := s.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", index.ErrUnavailable, err)
	}
	return s, nil
}

func (s *Store) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error { return s.Health(ctx) }, backoff.WithContext(b, ctx))
}

// Health implements index.Store.
func (s *Store) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", index.ErrUnavailable, err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("%w: invalid health response", index.ErrUnavailable)
	}
	return nil
}

// EnsureCollection creates the collection and payload indexes if they do not
// exist. Idempotent.
func (s *Store) EnsureCollection(ctx context.Context) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, name := range collections {
		if name == s.collection {
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			vectorName: {
				Size:     uint64(s.dimension),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	// Without these indexes, document-scoped filters degrade badly.
	for _, field := range []string{"type", "document_id"} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}
	return nil
}

// Close closes the client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *Store) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
			// Wait for the write to be applied; a returned upsert must be
			// visible to an immediately following search.
			Wait: qdrant.PtrOf(true),
		})
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

// UpsertDocument implements index.Store. Qdrant has no cross-request
// transaction, so a failed batch triggers deletion of everything written for
// the document before the error is surfaced; no partial document stays
// queryable.
func (s *Store) UpsertDocument(ctx context.Context, doc index.Document, chunks []index.Chunk) error {
	for i, c := range chunks {
		if len(c.Embedding) != s.dimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				index.ErrDimensionMismatch, i, len(c.Embedding), s.dimension)
		}
	}

	// The pre-clear and any rollback run on a context that survives caller
	// cancellation; otherwise the cancellation that failed the upsert would
	// also fail the delete and leave the partial document queryable.
	cleanupCtx, cancelCleanup := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancelCleanup()

	// Replacing a re-ingested document starts from a clean slate.
	if _, err := s.DeleteDocument(cleanupCtx, doc.ID); err != nil {
		return fmt.Errorf("%w: clear previous state: %v", index.ErrIndexWrite, err)
	}

	docPoint := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(doc.ID),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{}),
		Payload: qdrant.NewValueMap(map[string]any{
			"type":        "document",
			"document_id": doc.ID,
			"filename":    doc.Filename,
			"uploaded_at": doc.UploadedAt.UTC().Format(time.RFC3339Nano),
			"chunk_count": len(chunks),
		}),
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks)+1)
	points = append(points, docPoint)
	for _, c := range chunks {
		points = append(points, &qdrant.PointStruct{
			Id: qdrant.NewIDUUID(c.ID),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				vectorName: qdrant.NewVector(c.Embedding...),
			}),
			Payload: qdrant.NewValueMap(map[string]any{
				"type":         "chunk",
				"document_id":  c.DocumentID,
				"chunk_index":  c.Index,
				"content":      c.Content,
				"start_offset": c.Start,
				"end_offset":   c.End,
				"filename":     c.Filename,
			}),
		})
	}

	for i := 0; i < len(points); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(points))
		if err := s.upsertWithRetry(ctx, points[i:end]); err != nil {
			// Roll back whatever landed so the document is not partially
			// visible to search.
			if _, rbErr := s.DeleteDocument(cleanupCtx, doc.ID); rbErr != nil {
				return fmt.Errorf("%w: batch %d-%d: %v (rollback also failed: %v)",
					index.ErrIndexWrite, i, end, err, rbErr)
			}
			return fmt.Errorf("%w: batch %d-%d: %v", index.ErrIndexWrite, i, end, err)
		}
	}
	return nil
}

// DeleteDocument implements index.Store. Removes the document point and
// every chunk point owned by the id; unknown ids return (0, nil).
func (s *Store) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	chunkFilter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("type", "chunk"),
			qdrant.NewMatch("document_id", documentID),
		},
	}

	chunkCount, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         chunkFilter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("document_id", documentID),
			},
		}),
		// A committed delete must never be visible to a later search.
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("delete points: %w", err)
	}

	return int(chunkCount), nil
}

// Search implements index.Store.
func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]index.SearchResult, error) {
	if topK < 1 {
		return nil, fmt.Errorf("top_k must be at least 1, got %d", topK)
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			index.ErrDimensionMismatch, len(vector), s.dimension)
	}

	using := vectorName
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Using:          &using,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("type", "chunk")},
		},
		Limit:       qdrant.PtrOf(uint64(topK)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	searchResults := make([]index.SearchResult, 0, len(results))
	for _, result := range results {
		payload := result.Payload
		searchResults = append(searchResults, index.SearchResult{
			Chunk: index.Chunk{
				ID:         result.Id.GetUuid(),
				DocumentID: payload["document_id"].GetStringValue(),
				Index:      int(payload["chunk_index"].GetIntegerValue()),
				Content:    payload["content"].GetStringValue(),
				Start:      int(payload["start_offset"].GetIntegerValue()),
				End:        int(payload["end_offset"].GetIntegerValue()),
				Filename:   payload["filename"].GetStringValue(),
			},
			Score: float64(result.Score),
		})
	}

	// Qdrant orders by score only; apply the deterministic tie-break.
	sort.Slice(searchResults, func(i, j int) bool {
		if searchResults[i].Score != searchResults[j].Score {
			return searchResults[i].Score > searchResults[j].Score
		}
		if searchResults[i].Chunk.Index != searchResults[j].Chunk.Index {
			return searchResults[i].Chunk.Index < searchResults[j].Chunk.Index
		}
		return searchResults[i].Chunk.DocumentID < searchResults[j].Chunk.DocumentID
	})
	for i := range searchResults {
		searchResults[i].Rank = i
	}
	return searchResults, nil
}

// ListDocuments implements index.Store by scrolling all document points.
func (s *Store) ListDocuments(ctx context.Context) ([]index.Document, error) {
	var docs []index.Document
	var offset *qdrant.PointId

	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("type", "document")},
	}
	batchSize := uint32(100)

	for {
		results, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         filter,
			Limit:          qdrant.PtrOf(batchSize),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll documents: %w", err)
		}

		for _, result := range results {
			payload := result.Payload
			d := index.Document{
				ID:         result.Id.GetUuid(),
				Filename:   payload["filename"].GetStringValue(),
				ChunkCount: int(payload["chunk_count"].GetIntegerValue()),
			}
			if t, err := time.Parse(time.RFC3339Nano, payload["uploaded_at"].GetStringValue()); err == nil {
				d.UploadedAt = t
			}
			docs = append(docs, d)
		}

		if uint32(len(results)) < batchSize {
			break
		}
		offset = results[len(results)-1].Id
	}

	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].UploadedAt.Equal(docs[j].UploadedAt) {
			return docs[i].UploadedAt.Before(docs[j].UploadedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

// Count implements index.Store.
func (s *Store) Count(ctx context.Context) (int, int, error) {
	documents, err := s.countByType(ctx, "document")
	if err != nil {
		return 0, 0, err
	}
	chunks, err := s.countByType(ctx, "chunk")
	if err != nil {
		return 0, 0, err
	}
	return documents, chunks, nil
}

func (s *Store) countByType(ctx context.Context, pointType string) (int, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("type", pointType)},
		},
		Exact: qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("count %s points: %w", pointType, err)
	}
	return int(count), nil
}
