// Package rag orchestrates the ingestion and answer pipelines: extraction,
// chunking, embedding, vector retrieval, context assembly and grounded
// generation with source attribution.
package rag

import (
	"errors"
	"time"

	"github.com/shopdocs/docqa/internal/index"
)

// NoContextAnswer is returned verbatim when retrieval finds nothing relevant.
// An empty retrieval is a valid terminal outcome, not an error.
const NoContextAnswer = "No relevant context was found in the indexed documents for this question."

// ErrEmptyDocument indicates extraction produced no indexable text. Nothing
// is stored; callers report it per upload.
var ErrEmptyDocument = errors.New("document contains no extractable text")

// Citation references a chunk that informed an answer.
type Citation struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"relevance_score"`
	Content    string  `json:"content"`
}

// Answer is the result of one query. Ephemeral; never persisted.
type Answer struct {
	Text        string     `json:"answer"`
	Sources     []Citation `json:"sources"`
	Query       string     `json:"query"`
	GeneratedAt time.Time  `json:"timestamp"`
}

// GenerationError is returned when generation fails after retrieval
// succeeded. It carries the retrieved results so callers can degrade to
// showing sources without an answer.
type GenerationError struct {
	Err     error
	Sources []index.SearchResult
}

func (e *GenerationError) Error() string {
	return "generation failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Stats summarizes index contents for observability.
type Stats struct {
	Documents int `json:"document_count"`
	Chunks    int `json:"chunk_count"`
}

// Health reports reachability of the two long-lived external dependencies.
type Health struct {
	IndexAvailable      bool `json:"index_available"`
	GenerationAvailable bool `json:"generation_available"`
}
