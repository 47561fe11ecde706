package extract

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Plaintext extracts UTF-8 text files as-is, trimming only leading and
// trailing whitespace so chunk offsets stay stable for the body.
type Plaintext struct{}

// NewPlaintext returns the plain text extractor.
func NewPlaintext() *Plaintext { return &Plaintext{} }

// Formats implements Extractor.
func (p *Plaintext) Formats() []string { return []string{"txt", "text"} }

// Extract implements Extractor.
func (p *Plaintext) Extract(_ context.Context, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("content is not valid UTF-8")
	}
	return strings.TrimSpace(string(data)), nil
}
