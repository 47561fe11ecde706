package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/shopdocs/docqa/internal/index"
	"github.com/shopdocs/docqa/internal/rag"
)

// Service is the slice of the rag service the MCP tools consume.
type Service interface {
	Answer(ctx context.Context, query string, topK int) (*rag.Answer, error)
	List(ctx context.Context) ([]index.Document, error)
	Stats(ctx context.Context) (rag.Stats, error)
}

// Server wraps the MCP server with its tool dependencies.
type Server struct {
	server *mcp.Server
	svc    Service
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(svc Service) *Server {
	impl := &mcp.Implementation{
		Name:    "docqa-server",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_docs",
		Description: "Ask a question about the uploaded product documents. Returns a grounded answer with source citations and relevance scores.",
	}, makeAskHandler(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_docs",
		Description: "List all indexed documents with their chunk counts and upload times.",
	}, makeListHandler(svc))

	return &Server{server: server, svc: svc}
}

// Run starts the server with stdio transport (blocks until the client
// disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance. Used by transport
// handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

// makeAskHandler creates the ask_docs tool handler. A generation failure
// after successful retrieval degrades to sources-only output rather than a
// tool error, so callers can still inspect what was found.
func makeAskHandler(svc Service) func(
	context.Context, *mcp.CallToolRequest, AskDocsInput,
) (*mcp.CallToolResult, AskDocsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskDocsInput) (
		*mcp.CallToolResult, AskDocsOutput, error,
	) {
		if input.Question == "" {
			return nil, AskDocsOutput{}, fmt.Errorf("question is required")
		}

		answer, err := svc.Answer(ctx, input.Question, input.TopK)
		if err != nil {
			var genErr *rag.GenerationError
			if errors.As(err, &genErr) {
				return nil, AskDocsOutput{
					Sources: rag.Citations(genErr.Sources),
					Message: "Answer generation failed; showing retrieved sources only.",
				}, nil
			}
			return nil, AskDocsOutput{}, fmt.Errorf("failed to answer question: %w", err)
		}

		return nil, AskDocsOutput{
			Answer:  answer.Text,
			Sources: answer.Sources,
		}, nil
	}
}

// makeListHandler creates the list_docs tool handler.
func makeListHandler(svc Service) func(
	context.Context, *mcp.CallToolRequest, ListDocsInput,
) (*mcp.CallToolResult, ListDocsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListDocsInput) (
		*mcp.CallToolResult, ListDocsOutput, error,
	) {
		docs, err := svc.List(ctx)
		if err != nil {
			return nil, ListDocsOutput{}, fmt.Errorf("failed to list documents: %w", err)
		}
		stats, err := svc.Stats(ctx)
		if err != nil {
			return nil, ListDocsOutput{}, fmt.Errorf("failed to count chunks: %w", err)
		}

		summaries := make([]DocumentSummary, len(docs))
		for i, d := range docs {
			summaries[i] = DocumentSummary{
				DocumentID: d.ID,
				Filename:   d.Filename,
				ChunkCount: d.ChunkCount,
				UploadedAt: d.UploadedAt,
			}
		}

		return nil, ListDocsOutput{
			Documents:   summaries,
			Count:       len(summaries),
			TotalChunks: stats.Chunks,
		}, nil
	}
}
