// Package main provides the docqa entry point: HTTP service, local
// ingestion CLI and MCP server over one shared pipeline.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/shopdocs/docqa/internal/chunker"
	"github.com/shopdocs/docqa/internal/config"
	"github.com/shopdocs/docqa/internal/embedding"
	"github.com/shopdocs/docqa/internal/extract"
	"github.com/shopdocs/docqa/internal/generation"
	"github.com/shopdocs/docqa/internal/httpapi"
	"github.com/shopdocs/docqa/internal/index"
	"github.com/shopdocs/docqa/internal/index/qdrant"
	"github.com/shopdocs/docqa/internal/index/sqlite"
	"github.com/shopdocs/docqa/internal/mcpserver"
	"github.com/shopdocs/docqa/internal/rag"
)

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Question answering over uploaded product documents",
	Long: `docqa indexes product documents into a vector store and answers
natural-language questions about them with source citations.

Environment variables:
  OPENAI_API_KEY            OpenAI API key for embeddings (required)
  DOCQA_INDEX_BACKEND       "sqlite" (default) or "qdrant"
  DOCQA_SQLITE_PATH         data directory for the sqlite backend
  QDRANT_HOST, QDRANT_PORT  qdrant location for the qdrant backend
  DOCQA_GENERATION_BACKEND  "openai" (default) or "ollama"
  DOCQA_LISTEN_ADDR         HTTP listen address (default 0.0.0.0:8080)`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (and MCP endpoint at /mcp)",
	RunE:  runServe,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Index local files into the document store",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server on stdio",
	RunE:  runMCP,
}

func init() {
	rootCmd.AddCommand(serveCmd, ingestCmd, mcpCmd)
}

func main() {
	// Load .env if present (local development), ignore if missing.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildService wires the process-scoped handles: store, embedder, generator
// and the rag service around them. The returned store must be closed by the
// caller when the process winds down.
func buildService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*rag.Service, index.Store, error) {
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	embedder, err := embedding.NewOpenAI(embedding.OpenAIConfig{
		Model:     cfg.EmbeddingModel,
		Dimension: cfg.EmbeddingDimension,
		Timeout:   cfg.EmbeddingTimeout,
	})
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("create embedder: %w", err)
	}

	generator, err := buildGenerator(cfg)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	ch, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	svc := rag.NewService(cfg, extract.DefaultRegistry(), ch, embedder, generator, store, logger)
	return svc, store, nil
}

func buildStore(ctx context.Context, cfg *config.Config) (index.Store, error) {
	switch cfg.IndexBackend {
	case "qdrant":
		store, err := qdrant.New(cfg.QdrantHost, cfg.QdrantPort, cfg.CollectionName, cfg.EmbeddingDimension)
		if err != nil {
			return nil, fmt.Errorf("connect to qdrant: %w", err)
		}
		if err := store.EnsureCollection(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("ensure collection: %w", err)
		}
		return store, nil
	default:
		store, err := sqlite.New(cfg.SQLitePath, cfg.EmbeddingDimension)
		if err != nil {
			return nil, fmt.Errorf("open sqlite index: %w", err)
		}
		return store, nil
	}
}

func buildGenerator(cfg *config.Config) (generation.Generator, error) {
	switch cfg.GenerationBackend {
	case "ollama":
		return generation.NewOllama(cfg.OllamaBaseURL, cfg.GenerationModel, cfg.GenerationTimeout), nil
	default:
		gen, err := generation.NewOpenAI(cfg.GenerationModel, cfg.GenerationTimeout)
		if err != nil {
			return nil, fmt.Errorf("create generator: %w", err)
		}
		return gen, nil
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	svc, store, err := buildService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	mux := http.NewServeMux()
	mux.Handle("/", httpapi.NewServer(svc, logger).Handler())
	mux.Handle("/mcp", mcpserver.NewHTTPHandler(mcpserver.NewServer(svc), nil))

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server",
			"addr", cfg.ListenAddr, "backend", cfg.IndexBackend)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	svc, store, err := buildService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	start := time.Now()
	var indexed, failed int

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("  %s: %v\n", path, err)
			failed++
			continue
		}

		filename := filepath.Base(path)
		format := strings.TrimPrefix(filepath.Ext(filename), ".")

		doc, err := svc.Ingest(ctx, filename, data, format)
		if err != nil {
			fmt.Printf("  %s: %v\n", path, err)
			failed++
			continue
		}

		fmt.Printf("  %s: %d chunks (id %s)\n", filename, doc.ChunkCount, doc.ID)
		indexed++
	}

	fmt.Println()
	fmt.Printf("Indexed %d/%d files in %s\n", indexed, indexed+failed, time.Since(start).Round(time.Millisecond))

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, indexed+failed)
	}
	return nil
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// Logs go to stderr; stdout belongs to the MCP transport.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	svc, store, err := buildService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	logger.Info("starting MCP server on stdio")
	if err := mcpserver.NewServer(svc).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP server: %w", err)
	}
	return nil
}
