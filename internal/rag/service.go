package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shopdocs/docqa/internal/chunker"
	"github.com/shopdocs/docqa/internal/config"
	"github.com/shopdocs/docqa/internal/embedding"
	"github.com/shopdocs/docqa/internal/extract"
	"github.com/shopdocs/docqa/internal/generation"
	"github.com/shopdocs/docqa/internal/index"
)

// Service wires the pipeline together. All dependencies are injected at
// construction; the service itself holds no mutable state beyond the
// per-document write locks.
type Service struct {
	extractors *extract.Registry
	chunker    *chunker.Chunker
	embedder   embedding.Embedder
	generator  generation.Generator
	store      index.Store
	logger     *slog.Logger

	topKDefault     int
	minScore        float64
	maxContextChars int
	embedTimeout    time.Duration
	genTimeout      time.Duration

	locks *docLocks
}

// NewService creates the orchestrator. cfg supplies the retrieval tunables;
// the capability handles are process-scoped and shared across requests.
func NewService(
	cfg *config.Config,
	extractors *extract.Registry,
	ch *chunker.Chunker,
	embedder embedding.Embedder,
	generator generation.Generator,
	store index.Store,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		extractors:      extractors,
		chunker:         ch,
		embedder:        embedder,
		generator:       generator,
		store:           store,
		logger:          logger,
		topKDefault:     cfg.TopKDefault,
		minScore:        cfg.MinScore,
		maxContextChars: cfg.MaxContextChars,
		embedTimeout:    cfg.EmbeddingTimeout,
		genTimeout:      cfg.GenerationTimeout,
		locks:           newDocLocks(),
	}
}

// Ingest extracts, chunks, embeds and indexes one uploaded document. On any
// failure nothing is stored, so no partially written document is ever
// queryable. Extraction that yields no text returns ErrEmptyDocument.
func (s *Service) Ingest(ctx context.Context, filename string, data []byte, format string) (index.Document, error) {
	text, err := s.extractors.Extract(ctx, data, format)
	if err != nil {
		return index.Document{}, err
	}

	segments := s.chunker.Split(text)
	if len(segments) == 0 {
		return index.Document{}, fmt.Errorf("%w: %s", ErrEmptyDocument, filename)
	}

	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}

	embedCtx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	defer cancel()
	vectors, err := s.embedder.EmbedBatch(embedCtx, texts)
	if err != nil {
		return index.Document{}, fmt.Errorf("embed chunks: %w", err)
	}

	doc := index.Document{
		ID:         uuid.New().String(),
		Filename:   filename,
		UploadedAt: time.Now().UTC(),
		ChunkCount: len(segments),
	}

	chunks := make([]index.Chunk, len(segments))
	for i, seg := range segments {
		chunks[i] = index.Chunk{
			ID:         uuid.New().String(),
			DocumentID: doc.ID,
			Index:      i,
			Content:    seg.Text,
			Start:      seg.Start,
			End:        seg.End,
			Filename:   filename,
			Embedding:  vectors[i],
		}
	}

	unlock := s.locks.lock(doc.ID)
	defer unlock()

	if err := s.store.UpsertDocument(ctx, doc, chunks); err != nil {
		return index.Document{}, err
	}

	s.logger.Info("indexed document",
		"document_id", doc.ID,
		"filename", filename,
		"chunks", len(chunks),
	)
	return doc, nil
}

// Answer runs the read path: embed the query, retrieve top-k chunks,
// assemble a bounded context and generate a grounded answer with citations.
//
// Empty retrieval is a valid outcome and yields a no-context Answer. A
// generation failure after successful retrieval returns *GenerationError
// carrying the retrieved results so callers can degrade to sources-only.
func (s *Service) Answer(ctx context.Context, query string, topK int) (*Answer, error) {
	if topK < 1 {
		topK = s.topKDefault
	}

	embedCtx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	defer cancel()
	queryVector, err := s.embedder.Embed(embedCtx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.store.Search(ctx, queryVector, topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	results = s.filterByScore(results)

	if len(results) == 0 {
		return &Answer{
			Text:        NoContextAnswer,
			Sources:     []Citation{},
			Query:       query,
			GeneratedAt: time.Now().UTC(),
		}, nil
	}

	contextText, used := s.assembleContext(results)
	prompt := buildPrompt(query, contextText)

	genCtx, cancel := context.WithTimeout(ctx, s.genTimeout)
	defer cancel()
	text, err := s.generator.Generate(genCtx, prompt)
	if err != nil {
		s.logger.Warn("generation failed after retrieval", "error", err, "sources", len(results))
		return nil, &GenerationError{Err: err, Sources: results}
	}

	return &Answer{
		Text:        text,
		Sources:     Citations(used),
		Query:       query,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// filterByScore drops results below the configured relevance threshold.
func (s *Service) filterByScore(results []index.SearchResult) []index.SearchResult {
	if s.minScore <= 0 {
		return results
	}
	kept := results[:0]
	for _, r := range results {
		if r.Score >= s.minScore {
			kept = append(kept, r)
		}
	}
	for i := range kept {
		kept[i].Rank = i
	}
	return kept
}

// assembleContext concatenates retrieved chunks in descending relevance
// order, each tagged with its source. If the budget would be exceeded it
// drops the lowest-relevance chunks whole; a chunk is never split. The
// highest-relevance chunk is always kept even if oversized. Returns the
// context string and the results that made it in.
func (s *Service) assembleContext(results []index.SearchResult) (string, []index.SearchResult) {
	var (
		used  []index.SearchResult
		parts []string
		total int
	)

	for i, r := range results {
		part := fmt.Sprintf("[Source %d: %s]\n%s", i+1, r.Chunk.Filename, r.Chunk.Content)
		if i > 0 && total+len(part) > s.maxContextChars {
			s.logger.Debug("context budget reached, dropping remaining chunks",
				"kept", len(used), "dropped", len(results)-len(used))
			break
		}
		parts = append(parts, part)
		used = append(used, r)
		total += len(part) + 2
	}

	var sb []byte
	for i, p := range parts {
		if i > 0 {
			sb = append(sb, '\n', '\n')
		}
		sb = append(sb, p...)
	}
	return string(sb), used
}

// Citations maps retrieval results to answer citations, one per unique
// chunk, ordered by relevance. Callers degrading to sources-only after a
// generation failure use it on GenerationError.Sources.
func Citations(results []index.SearchResult) []Citation {
	seen := make(map[string]struct{}, len(results))
	out := make([]Citation, 0, len(results))
	for _, r := range results {
		if _, dup := seen[r.Chunk.ID]; dup {
			continue
		}
		seen[r.Chunk.ID] = struct{}{}
		out = append(out, Citation{
			DocumentID: r.Chunk.DocumentID,
			Filename:   r.Chunk.Filename,
			ChunkIndex: r.Chunk.Index,
			Score:      r.Score,
			Content:    snippet(r.Chunk.Content),
		})
	}
	return out
}

// snippet bounds citation content for transport.
func snippet(content string) string {
	const maxLen = 200
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	return string(runes[:maxLen]) + "..."
}

// Delete removes a document and all its chunks. Unknown ids delete zero
// chunks and report deleted=false.
func (s *Service) Delete(ctx context.Context, documentID string) (int, error) {
	unlock := s.locks.lock(documentID)
	defer unlock()

	deleted, err := s.store.DeleteDocument(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete document: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("deleted document", "document_id", documentID, "chunks", deleted)
	}
	return deleted, nil
}

// List returns summaries of every indexed document.
func (s *Service) List(ctx context.Context) ([]index.Document, error) {
	return s.store.ListDocuments(ctx)
}

// Stats returns document and chunk totals.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	docs, chunks, err := s.store.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Documents: docs, Chunks: chunks}, nil
}

// CheckHealth probes the index and the generation capability. Capability
// failures are reported, not propagated; health is never a hard error.
func (s *Service) CheckHealth(ctx context.Context) Health {
	h := Health{}
	if err := s.store.Health(ctx); err == nil {
		h.IndexAvailable = true
	}
	if err := s.generator.Ping(ctx); err == nil {
		h.GenerationAvailable = true
	} else if errors.Is(err, generation.ErrTimeout) {
		s.logger.Warn("generation health probe timed out")
	}
	return h
}
