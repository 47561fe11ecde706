// Package chunker splits extracted text into overlapping fixed-size segments.
package chunker

import "fmt"

// Segment is a contiguous slice of the source text. Start and End are
// character offsets into the original string (End exclusive), kept verbatim
// so callers can trace a retrieved chunk back to its exact location.
type Segment struct {
	Text  string
	Start int
	End   int
}

// Chunker produces deterministic sliding-window segments.
type Chunker struct {
	size    int
	overlap int
}

// New creates a chunker. size must be positive and overlap must be in
// [0, size); anything else is a configuration error and is rejected here so
// it can never surface at request time.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, chunk size), got %d with size %d", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the configured window size in characters.
func (c *Chunker) Size() int { return c.size }

// Split slices text into ordered overlapping segments. Segment i starts at
// i*(size-overlap) and spans up to size characters; the final segment may be
// shorter. Empty text yields an empty slice, not an error. Whitespace is
// preserved so offsets remain valid indexes into text.
func (c *Chunker) Split(text string) []Segment {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	step := c.size - c.overlap
	segments := make([]Segment, 0, n/step+1)

	for start := 0; start < n; start += step {
		end := start + c.size
		if end > n {
			end = n
		}
		segments = append(segments, Segment{
			Text:  string(runes[start:end]),
			Start: start,
			End:   end,
		})
		if end == n {
			break
		}
	}

	return segments
}
