package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopdocs/docqa/internal/index"
)

const testDimension = 4

// setupTestStore creates a store in a temporary directory.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(t.TempDir(), testDimension)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })

	return store
}

// makeDocument builds a document with one chunk per vector.
func makeDocument(filename string, vectors ...[]float32) (index.Document, []index.Chunk) {
	doc := index.Document{
		ID:         uuid.New().String(),
		Filename:   filename,
		UploadedAt: time.Now().UTC().Truncate(time.Second),
		ChunkCount: len(vectors),
	}
	chunks := make([]index.Chunk, len(vectors))
	for i, v := range vectors {
		chunks[i] = index.Chunk{
			ID:         uuid.New().String(),
			DocumentID: doc.ID,
			Index:      i,
			Content:    "chunk content " + filename,
			Start:      i * 100,
			End:        i*100 + 100,
			Filename:   filename,
			Embedding:  v,
		}
	}
	return doc, chunks
}

func TestUpsertSearchRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	doc, chunks := makeDocument("manual.txt",
		[]float32{1, 0, 0, 0},
		[]float32{0, 1, 0, 0},
	)
	require.NoError(t, store.UpsertDocument(ctx, doc, chunks))

	results, err := store.Search(ctx, []float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	got := results[0]
	assert.Equal(t, chunks[0].ID, got.Chunk.ID)
	assert.Equal(t, doc.ID, got.Chunk.DocumentID)
	assert.Equal(t, 0, got.Chunk.Index)
	assert.Equal(t, chunks[0].Content, got.Chunk.Content)
	assert.Equal(t, chunks[0].Start, got.Chunk.Start)
	assert.Equal(t, chunks[0].End, got.Chunk.End)
	assert.Equal(t, "manual.txt", got.Chunk.Filename)
	assert.InDelta(t, 1.0, got.Score, 1e-9, "identical vectors must score 1.0")
	assert.Equal(t, 0, got.Rank)
}

func TestSearch_ExactTopKOrdering(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	doc, chunks := makeDocument("ranking.txt",
		[]float32{1, 0, 0, 0},       // sim 1.0 to query
		[]float32{0.9, 0.1, 0, 0},   // high
		[]float32{0.5, 0.5, 0, 0},   // mid
		[]float32{0, 1, 0, 0},       // orthogonal
		[]float32{-1, 0, 0, 0},      // opposite
	)
	require.NoError(t, store.UpsertDocument(ctx, doc, chunks))

	results, err := store.Search(ctx, []float32{1, 0, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, 0, results[0].Chunk.Index)
	assert.Equal(t, 1, results[1].Chunk.Index)
	assert.Equal(t, 2, results[2].Chunk.Index)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
		assert.Equal(t, i, results[i].Rank)
	}
}

func TestSearch_TieBreakDeterminism(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// Two documents with identical vectors: ties must resolve by ascending
	// chunk index, then ascending document id.
	same := []float32{0.5, 0.5, 0.5, 0.5}
	docA, chunksA := makeDocument("a.txt", same, same)
	docB, chunksB := makeDocument("b.txt", same)
	require.NoError(t, store.UpsertDocument(ctx, docA, chunksA))
	require.NoError(t, store.UpsertDocument(ctx, docB, chunksB))

	lowID, highID := docA.ID, docB.ID
	if lowID > highID {
		lowID, highID = highID, lowID
	}

	for run := 0; run < 3; run++ {
		results, err := store.Search(ctx, same, 10)
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.Equal(t, 0, results[0].Chunk.Index)
		assert.Equal(t, lowID, results[0].Chunk.DocumentID)
		assert.Equal(t, 0, results[1].Chunk.Index)
		assert.Equal(t, highID, results[1].Chunk.DocumentID)
		assert.Equal(t, 1, results[2].Chunk.Index)
	}
}

func TestSearch_EmptyIndex(t *testing.T) {
	store := setupTestStore(t)

	results, err := store.Search(context.Background(), []float32{1, 0, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_RejectsBadArguments(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Search(ctx, []float32{1, 0, 0, 0}, 0)
	assert.Error(t, err)

	_, err = store.Search(ctx, []float32{1, 0}, 3)
	assert.ErrorIs(t, err, index.ErrDimensionMismatch)
}

func TestDeleteDocument_Completeness(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	docA, chunksA := makeDocument("keep.txt", []float32{1, 0, 0, 0}, []float32{0, 1, 0, 0})
	docB, chunksB := makeDocument("remove.txt", []float32{0, 0, 1, 0}, []float32{0, 0, 0, 1}, []float32{1, 1, 0, 0})
	require.NoError(t, store.UpsertDocument(ctx, docA, chunksA))
	require.NoError(t, store.UpsertDocument(ctx, docB, chunksB))

	_, chunksBefore, err := store.Count(ctx)
	require.NoError(t, err)

	deleted, err := store.DeleteDocument(ctx, docB.ID)
	require.NoError(t, err)
	assert.Equal(t, len(chunksB), deleted)

	docsAfter, chunksAfter, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, docsAfter)
	assert.Equal(t, chunksBefore-len(chunksB), chunksAfter)

	// No query vector may ever surface a chunk of the deleted document.
	for _, q := range [][]float32{{0, 0, 1, 0}, {0, 0, 0, 1}, {1, 1, 0, 0}} {
		results, err := store.Search(ctx, q, 10)
		require.NoError(t, err)
		for _, r := range results {
			assert.NotEqual(t, docB.ID, r.Chunk.DocumentID,
				"search returned a chunk of the deleted document")
		}
	}
}

func TestDeleteDocument_UnknownIDIsBenign(t *testing.T) {
	store := setupTestStore(t)

	deleted, err := store.DeleteDocument(context.Background(), uuid.New().String())
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestUpsertDocument_DimensionMismatchCommitsNothing(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	doc, chunks := makeDocument("bad.txt", []float32{1, 0, 0, 0})
	chunks[0].Embedding = []float32{1, 0} // wrong width

	err := store.UpsertDocument(ctx, doc, chunks)
	assert.ErrorIs(t, err, index.ErrDimensionMismatch)

	docs, chunkCount, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, docs)
	assert.Zero(t, chunkCount)
}

func TestUpsertDocument_ReplacesExisting(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	doc, chunks := makeDocument("v1.txt", []float32{1, 0, 0, 0}, []float32{0, 1, 0, 0})
	require.NoError(t, store.UpsertDocument(ctx, doc, chunks))

	// Re-ingest the same document id with a single chunk.
	doc.Filename = "v2.txt"
	replacement := []index.Chunk{{
		ID:         uuid.New().String(),
		DocumentID: doc.ID,
		Index:      0,
		Content:    "replacement",
		Start:      0,
		End:        11,
		Filename:   "v2.txt",
		Embedding:  []float32{0, 0, 1, 0},
	}}
	require.NoError(t, store.UpsertDocument(ctx, doc, replacement))

	docs, chunkCount, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, docs)
	assert.Equal(t, 1, chunkCount)

	got, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2.txt", got.Filename)
	assert.Equal(t, 1, got.ChunkCount)
}

func TestPersistence_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := New(dir, testDimension)
	require.NoError(t, err)

	vector := []float32{0.25, -0.5, 0.125, 0.75}
	doc, chunks := makeDocument("durable.txt", vector)
	require.NoError(t, store.UpsertDocument(ctx, doc, chunks))

	before, err := store.Search(ctx, vector, 1)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := New(dir, testDimension)
	require.NoError(t, err)
	defer reopened.Close()

	after, err := reopened.Search(ctx, vector, 1)
	require.NoError(t, err)
	require.Len(t, after, 1)

	// Vectors must round-trip exactly, so the ranking and scores match.
	assert.Equal(t, before[0].Chunk.ID, after[0].Chunk.ID)
	assert.Equal(t, before[0].Score, after[0].Score)
	assert.Equal(t, chunks[0].Embedding, after[0].Chunk.Embedding)

	docs, chunkCount, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, docs)
	assert.Equal(t, 1, chunkCount)
}

func TestListDocuments(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	listed, err := store.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, listed)

	docA, chunksA := makeDocument("first.txt", []float32{1, 0, 0, 0})
	docB, chunksB := makeDocument("second.txt", []float32{0, 1, 0, 0}, []float32{0, 0, 1, 0})
	docA.UploadedAt = time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, store.UpsertDocument(ctx, docA, chunksA))
	require.NoError(t, store.UpsertDocument(ctx, docB, chunksB))

	listed, err = store.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)

	assert.Equal(t, docA.ID, listed[0].ID)
	assert.Equal(t, 1, listed[0].ChunkCount)
	assert.WithinDuration(t, docA.UploadedAt, listed[0].UploadedAt, time.Second)
	assert.Equal(t, docB.ID, listed[1].ID)
	assert.Equal(t, 2, listed[1].ChunkCount)

	// Chunk-count invariant: summaries agree with the chunk table.
	_, chunkCount, err := store.Count(ctx)
	require.NoError(t, err)
	total := 0
	for _, d := range listed {
		total += d.ChunkCount
	}
	assert.Equal(t, chunkCount, total)
}

func TestGetDocument_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetDocument(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, index.ErrNotFound)
}
