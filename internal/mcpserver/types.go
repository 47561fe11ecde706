// Package mcpserver exposes the document Q&A service as MCP tools so
// agent clients can ask questions and inspect the index over stdio or HTTP.
package mcpserver

import (
	"time"

	"github.com/shopdocs/docqa/internal/rag"
)

// AskDocsInput defines the input parameters for the ask_docs tool.
type AskDocsInput struct {
	// Question is the natural-language question to answer from the indexed
	// documents.
	Question string `json:"question" jsonschema:"required,description=Natural-language question to answer from the indexed documents"`
	// TopK is the number of chunks to retrieve as context.
	TopK int `json:"top_k,omitempty" jsonschema:"minimum=1,maximum=20,description=Number of document chunks to retrieve as context"`
}

// AskDocsOutput contains the generated answer with its source citations.
type AskDocsOutput struct {
	// Answer is the generated answer text.
	Answer string `json:"answer"`
	// Sources lists the chunks that informed the answer, best first.
	Sources []rag.Citation `json:"sources"`
	// Message carries informational context, e.g. when generation failed
	// and only sources are available.
	Message string `json:"message,omitempty"`
}

// ListDocsInput defines the input parameters for the list_docs tool.
// The tool takes no parameters.
type ListDocsInput struct{}

// DocumentSummary describes one indexed document.
type DocumentSummary struct {
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename"`
	ChunkCount int       `json:"chunk_count"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// ListDocsOutput contains summaries of every indexed document.
type ListDocsOutput struct {
	Documents []DocumentSummary `json:"documents"`
	// Count is the total number of documents.
	Count int `json:"count"`
	// TotalChunks is the total number of indexed chunks.
	TotalChunks int `json:"total_chunks"`
}
