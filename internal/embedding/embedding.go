// Package embedding defines the embedding capability and its OpenAI adapter.
package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the embedding capability could not produce a
// vector after bounded retries. Callers treat this as a per-request failure,
// never a process-fatal one.
var ErrUnavailable = errors.New("embedding service unavailable")

// Embedder maps text to a fixed-dimension vector. The same implementation
// (same model, same version) must be used for ingestion and query embedding;
// mixing embedding spaces is prevented by wiring, not detected at runtime.
type Embedder interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the width of every vector this embedder produces.
	Dimension() int
}
