// Package index defines the vector index data model and the Store port its
// backends implement.
package index

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested document does not exist. Deletion of
	// an unknown id is benign and does not raise this; lookups that need
	// existence confirmation do.
	ErrNotFound = errors.New("document not found")

	// ErrIndexWrite indicates a batch write failed. No partial state for the
	// affected document remains queryable after the error is returned.
	ErrIndexWrite = errors.New("index write failed")

	// ErrDimensionMismatch indicates a vector's width does not match the
	// store's configured embedding dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrUnavailable indicates the backing store cannot be reached.
	ErrUnavailable = errors.New("vector index unavailable")
)

// Document is the unit of ingestion lifecycle. Its ChunkCount always equals
// the number of stored chunks owned by it; both are written and removed
// atomically.
type Document struct {
	ID         string
	Filename   string
	UploadedAt time.Time
	ChunkCount int
}

// Chunk is the unit of embedding and retrieval. A chunk is exclusively owned
// by one document and its embedding is never mutated after creation.
type Chunk struct {
	ID         string
	DocumentID string
	Index      int // 0-based position within the document, contiguous
	Content    string
	Start      int // character offset range into the extracted text
	End        int
	Filename   string // extractor-contributed metadata, denormalized per chunk
	Embedding  []float32
}

// SearchResult pairs a chunk with its query relevance. Ephemeral, computed
// per query.
type SearchResult struct {
	Chunk Chunk
	Score float64 // cosine similarity, higher is more relevant
	Rank  int     // 0-based position in the result list
}

// Store persists chunks with their vectors and answers similarity queries.
//
// Write operations are atomic at document granularity. Search is read-only
// and safe to run concurrently with writes to other documents; a committed
// delete is never visible to a search that starts afterwards.
type Store interface {
	// UpsertDocument persists the document and all its chunks. On failure
	// the document is not queryable at all.
	UpsertDocument(ctx context.Context, doc Document, chunks []Chunk) error

	// DeleteDocument removes the document and every chunk it owns, returning
	// the number of chunks deleted. Unknown ids return (0, nil).
	DeleteDocument(ctx context.Context, documentID string) (int, error)

	// Search returns up to topK results ordered by descending score. Ties
	// break by ascending chunk index, then ascending document id. An empty
	// index returns an empty slice.
	Search(ctx context.Context, vector []float32, topK int) ([]SearchResult, error)

	// ListDocuments returns summaries of every stored document, ordered by
	// upload time then id.
	ListDocuments(ctx context.Context) ([]Document, error)

	// Count returns the total number of documents and chunks.
	Count(ctx context.Context) (documents, chunks int, err error)

	// Health reports whether the backing store is reachable.
	Health(ctx context.Context) error

	Close() error
}
