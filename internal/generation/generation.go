// Package generation defines the text generation capability and its
// OpenAI and Ollama adapters.
package generation

import (
	"context"
	"errors"
	"os"
)

var (
	// ErrUnavailable indicates the generation capability could not be
	// reached or returned malformed output.
	ErrUnavailable = errors.New("generation service unavailable")

	// ErrTimeout indicates the generation capability did not answer within
	// the configured deadline.
	ErrTimeout = errors.New("generation timed out")
)

// Generator produces an answer from an assembled prompt. Implementations
// must honor ctx cancellation; callers always run Generate under a deadline.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)

	// Ping reports whether the capability is currently reachable. Used by
	// health checks only.
	Ping(ctx context.Context) error
}

// classifyErr maps transport-level failures onto the package sentinels so
// callers can distinguish timeouts from hard unavailability. A deadline can
// surface as a wrapped context error or, when the HTTP client's own timeout
// fires first, as a transport error that only reports Timeout().
func classifyErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return ErrTimeout
	}
	return ErrUnavailable
}
