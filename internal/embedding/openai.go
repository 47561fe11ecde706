package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

// DefaultBatchSize balances requests-per-minute vs tokens-per-minute rate
// limits. OpenAI accepts up to 2048 inputs per request; smaller batches keep
// token pressure down.
const DefaultBatchSize = 500

// OpenAI implements Embedder against the OpenAI embeddings API with batching
// and exponential backoff on rate-limit errors.
type OpenAI struct {
	client    openai.Client
	model     string
	dimension int
	batchSize int
	timeout   time.Duration
}

// OpenAIConfig configures the OpenAI embedder.
type OpenAIConfig struct {
	Model     string
	Dimension int
	BatchSize int
	// Timeout bounds each API round trip. Required; indefinite blocking on
	// the capability is not allowed.
	Timeout time.Duration
}

// NewOpenAI creates the embedder. The API key is read from OPENAI_API_KEY.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	if cfg.Model == "" || cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding model and dimension are required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("embedding timeout is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	return &OpenAI{
		client:    openai.NewClient(),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
		timeout:   cfg.Timeout,
	}, nil
}

// Dimension implements Embedder.
func (e *OpenAI) Dimension() int { return e.dimension }

// Embed implements Embedder.
func (e *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch implements Embedder. Inputs are processed in batches; a failed
// batch fails the whole call after retries are exhausted.
func (e *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		vectors, err := e.embedBatchWithRetry(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("%w: batch %d-%d: %v", ErrUnavailable, i, end, err)
		}
		all = append(all, vectors...)
	}
	return all, nil
}

// embedBatchWithRetry calls the embeddings API for one batch, retrying with
// exponential backoff on rate-limit errors. Other API errors are permanent.
func (e *OpenAI) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		resp, err := e.client.Embeddings.New(callCtx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: e.model,
		})
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
		}

		vectors = make([][]float32, len(resp.Data))
		for i, data := range resp.Data {
			if len(data.Embedding) != e.dimension {
				return backoff.Permanent(fmt.Errorf("embedding %d has %d dimensions, expected %d",
					i, len(data.Embedding), e.dimension))
			}
			vectors[i] = toFloat32(data.Embedding)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return vectors, nil
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 narrows the API's float64 vectors; stores keep float32 for
// memory efficiency.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
