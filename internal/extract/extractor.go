// Package extract turns raw uploaded file bytes into plain text.
//
// Extraction is a pluggable capability: each supported format tag maps to an
// Extractor, and the registry dispatches on the tag. Formats the registry
// does not know about fail with ErrUnsupportedFormat before any document
// state is created.
package extract

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnsupportedFormat indicates no extractor is registered for the
	// requested format tag.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrExtraction indicates the extractor failed to produce text from the
	// provided bytes.
	ErrExtraction = errors.New("text extraction failed")
)

// Extractor produces plain text from raw file bytes.
type Extractor interface {
	// Extract returns the document's plain text. Implementations must not
	// retain data after returning.
	Extract(ctx context.Context, data []byte) (string, error)

	// Formats lists the format tags this extractor handles, lowercase,
	// without a leading dot (e.g. "txt", "md").
	Formats() []string
}

// Registry dispatches extraction by format tag.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry creates a registry with the given extractors installed.
func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{extractors: make(map[string]Extractor)}
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

// DefaultRegistry returns a registry with the built-in extractors
// (plain text, markdown and HTML).
func DefaultRegistry() *Registry {
	return NewRegistry(NewPlaintext(), NewMarkdown(), NewHTML())
}

// Register installs an extractor for each of its format tags, replacing any
// previous registration for the same tag.
func (r *Registry) Register(e Extractor) {
	for _, f := range e.Formats() {
		r.extractors[normalizeFormat(f)] = e
	}
}

// Extract runs the extractor registered for format against data.
func (r *Registry) Extract(ctx context.Context, data []byte, format string) (string, error) {
	e, ok := r.extractors[normalizeFormat(format)]
	if !ok {
		return "", fmt.Errorf("%w: %q (supported: %s)",
			ErrUnsupportedFormat, format, strings.Join(r.Supported(), ", "))
	}

	text, err := e.Extract(ctx, data)
	if err != nil {
		return "", fmt.Errorf("%w: format %q: %v", ErrExtraction, format, err)
	}
	return text, nil
}

// Supported returns the registered format tags in sorted order.
func (r *Registry) Supported() []string {
	formats := make([]string, 0, len(r.extractors))
	for f := range r.extractors {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	return formats
}

func normalizeFormat(format string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
}
