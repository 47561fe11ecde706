// Package sqlite provides the embedded vector index backend. Chunks and
// their vectors live in a single SQLite database; similarity search is an
// exact brute-force cosine scan, which keeps ranking fully deterministic.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/shopdocs/docqa/internal/index"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	filename    TEXT NOT NULL,
	uploaded_at DATETIME NOT NULL,
	chunk_count INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id           TEXT PRIMARY KEY,
	document_id  TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_index  INTEGER NOT NULL,
	content      TEXT NOT NULL,
	start_offset INTEGER NOT NULL,
	end_offset   INTEGER NOT NULL,
	filename     TEXT NOT NULL,
	embedding    BLOB NOT NULL,
	UNIQUE (document_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
`

// Ensure Store implements the index port.
var _ index.Store = (*Store)(nil)

// Store is a durable, exact vector index backed by a single SQLite file.
type Store struct {
	db        *sql.DB
	path      string
	dimension int
}

// New opens (or creates) the index at dataDir/index.db. If dataDir is empty
// it defaults to ~/.docqa/data. dimension fixes the embedding width; vectors
// of any other width are rejected on write and on search.
func New(dataDir string, dimension int) (*Store, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dimension)
	}
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".docqa", "data")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "index.db")

	// WAL keeps readers unblocked while a document write is in flight.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db, path: dbPath, dimension: dimension}, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// UpsertDocument implements index.Store. The document row and every chunk
// row are written inside one transaction, so a failure commits nothing.
func (s *Store) UpsertDocument(ctx context.Context, doc index.Document, chunks []index.Chunk) error {
	for i, c := range chunks {
		if len(c.Embedding) != s.dimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				index.ErrDimensionMismatch, i, len(c.Embedding), s.dimension)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", index.ErrIndexWrite, err)
	}
	defer tx.Rollback()

	// Replacing an existing document drops its old chunks first so indexes
	// stay contiguous.
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("%w: clear chunks: %v", index.ErrIndexWrite, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, filename, uploaded_at, chunk_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename = excluded.filename,
			uploaded_at = excluded.uploaded_at,
			chunk_count = excluded.chunk_count`,
		doc.ID, doc.Filename, doc.UploadedAt.UTC().Format(time.RFC3339Nano), len(chunks))
	if err != nil {
		return fmt.Errorf("%w: document row: %v", index.ErrIndexWrite, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, chunk_index, content, start_offset, end_offset, filename, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare: %v", index.ErrIndexWrite, err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		_, err := stmt.ExecContext(ctx, c.ID, doc.ID, c.Index, c.Content,
			c.Start, c.End, c.Filename, encodeVector(c.Embedding))
		if err != nil {
			return fmt.Errorf("%w: chunk %d: %v", index.ErrIndexWrite, c.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", index.ErrIndexWrite, err)
	}
	return nil
}

// DeleteDocument implements index.Store. Unknown ids return (0, nil).
func (s *Store) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, documentID); err != nil {
		return 0, fmt.Errorf("delete document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(deleted), nil
}

// Search implements index.Store with an exact scan over every stored vector.
// Results are ordered by descending score, with ties broken by ascending
// chunk index then ascending document id.
func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]index.SearchResult, error) {
	if topK < 1 {
		return nil, fmt.Errorf("top_k must be at least 1, got %d", topK)
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			index.ErrDimensionMismatch, len(vector), s.dimension)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, content, start_offset, end_offset, filename, embedding
		FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var results []index.SearchResult
	for rows.Next() {
		var c index.Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Content,
			&c.Start, &c.End, &c.Filename, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.Embedding = decodeVector(blob)
		results = append(results, index.SearchResult{
			Chunk: c,
			Score: index.Cosine(vector, c.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Chunk.Index != results[j].Chunk.Index {
			return results[i].Chunk.Index < results[j].Chunk.Index
		}
		return results[i].Chunk.DocumentID < results[j].Chunk.DocumentID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	for i := range results {
		results[i].Rank = i
	}
	return results, nil
}

// ListDocuments implements index.Store.
func (s *Store) ListDocuments(ctx context.Context) ([]index.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, uploaded_at, chunk_count
		FROM documents
		ORDER BY uploaded_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []index.Document
	for rows.Next() {
		var d index.Document
		var uploadedAt string
		if err := rows.Scan(&d.ID, &d.Filename, &uploadedAt, &d.ChunkCount); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, uploadedAt); err == nil {
			d.UploadedAt = t
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Count implements index.Store.
func (s *Store) Count(ctx context.Context) (int, int, error) {
	var documents, chunks int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&documents); err != nil {
		return 0, 0, fmt.Errorf("count documents: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&chunks); err != nil {
		return 0, 0, fmt.Errorf("count chunks: %w", err)
	}
	return documents, chunks, nil
}

// GetDocument returns a single document summary.
func (s *Store) GetDocument(ctx context.Context, documentID string) (index.Document, error) {
	var d index.Document
	var uploadedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, filename, uploaded_at, chunk_count
		FROM documents WHERE id = ?`, documentID).
		Scan(&d.ID, &d.Filename, &uploadedAt, &d.ChunkCount)
	if errors.Is(err, sql.ErrNoRows) {
		return index.Document{}, index.ErrNotFound
	}
	if err != nil {
		return index.Document{}, fmt.Errorf("get document: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, uploadedAt); err == nil {
		d.UploadedAt = t
	}
	return d, nil
}

// Health implements index.Store.
func (s *Store) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", index.ErrUnavailable, err)
	}
	return nil
}

// encodeVector packs a vector as little-endian float32 bits. The encoding is
// exact, so vectors round-trip across restarts bit for bit.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
