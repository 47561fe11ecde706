// Package httpapi exposes the document Q&A service over a JSON HTTP API:
// upload, query, list, delete and health. Request handling is thin
// marshalling; all pipeline behavior lives in the rag service.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopdocs/docqa/internal/embedding"
	"github.com/shopdocs/docqa/internal/extract"
	"github.com/shopdocs/docqa/internal/index"
	"github.com/shopdocs/docqa/internal/rag"
)

// maxUploadBytes bounds multipart uploads.
const maxUploadBytes = 32 << 20

// Service is the slice of the rag service the HTTP layer consumes.
type Service interface {
	Ingest(ctx context.Context, filename string, data []byte, format string) (index.Document, error)
	Answer(ctx context.Context, query string, topK int) (*rag.Answer, error)
	Delete(ctx context.Context, documentID string) (int, error)
	List(ctx context.Context) ([]index.Document, error)
	Stats(ctx context.Context) (rag.Stats, error)
	CheckHealth(ctx context.Context) rag.Health
}

// Server holds the API handlers.
type Server struct {
	svc    Service
	logger *slog.Logger
}

// NewServer creates the API server around svc.
func NewServer(svc Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, logger: logger}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/documents/upload", s.handleUpload)
	mux.HandleFunc("GET /api/documents", s.handleList)
	mux.HandleFunc("DELETE /api/documents/{id}", s.handleDelete)
	mux.HandleFunc("POST /api/query", s.handleQuery)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

type documentJSON struct {
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename"`
	ChunkCount int       `json:"chunk_count"`
	UploadTime time.Time `json:"upload_time"`
}

func toDocumentJSON(d index.Document) documentJSON {
	return documentJSON{
		DocumentID: d.ID,
		Filename:   d.Filename,
		ChunkCount: d.ChunkCount,
		UploadTime: d.UploadedAt,
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart form must carry a 'file' field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	format := strings.TrimPrefix(filepath.Ext(header.Filename), ".")
	doc, err := s.svc.Ingest(r.Context(), header.Filename, data, format)
	if err != nil {
		s.writeIngestError(w, header.Filename, err)
		return
	}

	writeJSON(w, http.StatusCreated, toDocumentJSON(doc))
}

// writeIngestError maps pipeline failures onto HTTP statuses. Every branch
// is a per-upload condition; none leaves partial document state behind.
func (s *Server) writeIngestError(w http.ResponseWriter, filename string, err error) {
	switch {
	case errors.Is(err, extract.ErrUnsupportedFormat):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, extract.ErrExtraction), errors.Is(err, rag.ErrEmptyDocument):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, embedding.ErrUnavailable), errors.Is(err, index.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("upload failed", "filename", filename, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to index document")
	}
}

type queryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query must not be empty")
		return
	}

	answer, err := s.svc.Answer(r.Context(), req.Query, req.TopK)
	if err != nil {
		var genErr *rag.GenerationError
		if errors.As(err, &genErr) {
			// Retrieval succeeded; degrade to sources-only rather than
			// discarding them.
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":   "answer generation failed",
				"sources": rag.Citations(genErr.Sources),
			})
			return
		}
		if errors.Is(err, embedding.ErrUnavailable) || errors.Is(err, index.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.logger.Error("query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	docs, err := s.svc.List(r.Context())
	if err != nil {
		s.logger.Error("list documents failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}

	out := make([]documentJSON, len(docs))
	for i, d := range docs {
		out[i] = toDocumentJSON(d)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": out,
		"total":     len(out),
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	deleted, err := s.svc.Delete(r.Context(), id)
	if err != nil {
		if errors.Is(err, index.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.logger.Error("delete document failed", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete document")
		return
	}
	if deleted == 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"deleted":     false,
			"document_id": id,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deleted":        true,
		"document_id":    id,
		"chunks_removed": deleted,
	})
}

type healthResponse struct {
	Status              string    `json:"status"`
	IndexAvailable      bool      `json:"index_available"`
	GenerationAvailable bool      `json:"generation_available"`
	Timestamp           time.Time `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	h := s.svc.CheckHealth(ctx)

	resp := healthResponse{
		IndexAvailable:      h.IndexAvailable,
		GenerationAvailable: h.GenerationAvailable,
		Timestamp:           time.Now().UTC(),
	}

	// The index is load-bearing; generation being down only degrades
	// answers to sources, so it is reported but not a 503.
	status := http.StatusOK
	switch {
	case !h.IndexAvailable:
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	case !h.GenerationAvailable:
		resp.Status = "degraded"
	default:
		resp.Status = "healthy"
	}

	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
