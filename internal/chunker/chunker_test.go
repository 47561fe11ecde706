package chunker

import (
	"strings"
	"testing"
)

func TestNew_RejectsInvalidParameters(t *testing.T) {
	cases := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -10, 0},
		{"negative overlap", 100, -1},
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 150},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.size, tc.overlap); err == nil {
				t.Errorf("New(%d, %d): expected error, got nil", tc.size, tc.overlap)
			}
		})
	}
}

func TestSplit_KnownWindowLayout(t *testing.T) {
	// 1200 characters with size 500 and overlap 100 must produce exactly
	// three windows at fixed offsets.
	text := strings.Repeat("a", 1200)

	c, err := New(500, 100)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	segments := c.Split(text)
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}

	expected := []struct{ start, end int }{
		{0, 500},
		{400, 900},
		{800, 1200},
	}
	for i, want := range expected {
		got := segments[i]
		if got.Start != want.start || got.End != want.end {
			t.Errorf("segment %d: expected [%d,%d), got [%d,%d)",
				i, want.start, want.end, got.Start, got.End)
		}
		if len(got.Text) != got.End-got.Start {
			t.Errorf("segment %d: text length %d does not match offsets [%d,%d)",
				i, len(got.Text), got.Start, got.End)
		}
	}
}

func TestSplit_CoversAllPositions(t *testing.T) {
	texts := []string{
		"short",
		strings.Repeat("x", 499),
		strings.Repeat("x", 500),
		strings.Repeat("x", 501),
		strings.Repeat("word ", 400),
	}

	c, err := New(500, 100)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for _, text := range texts {
		segments := c.Split(text)
		covered := make([]bool, len([]rune(text)))
		for _, seg := range segments {
			if seg.End <= seg.Start {
				t.Errorf("segment [%d,%d) is empty or inverted", seg.Start, seg.End)
			}
			if seg.End-seg.Start > 500 {
				t.Errorf("segment [%d,%d) exceeds chunk size", seg.Start, seg.End)
			}
			for i := seg.Start; i < seg.End; i++ {
				covered[i] = true
			}
		}
		for i, ok := range covered {
			if !ok {
				t.Fatalf("position %d not covered by any segment (len=%d)", i, len(covered))
			}
		}
	}
}

func TestSplit_OffsetsIndexSourceText(t *testing.T) {
	text := "The quick brown fox jumps over the lazy dog.  \n\tWhitespace stays."

	c, err := New(20, 5)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	runes := []rune(text)
	for _, seg := range c.Split(text) {
		if string(runes[seg.Start:seg.End]) != seg.Text {
			t.Errorf("segment [%d,%d) text %q does not match source slice",
				seg.Start, seg.End, seg.Text)
		}
	}
}

func TestSplit_Deterministic(t *testing.T) {
	text := strings.Repeat("determinism matters for re-ingestion. ", 50)

	c, err := New(128, 32)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	first := c.Split(text)
	second := c.Split(text)

	if len(first) != len(second) {
		t.Fatalf("segment count differs across runs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("segment %d differs across runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestSplit_EmptyText(t *testing.T) {
	c, err := New(500, 100)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if segments := c.Split(""); len(segments) != 0 {
		t.Errorf("expected no segments for empty text, got %d", len(segments))
	}
}

func TestSplit_ZeroOverlap(t *testing.T) {
	c, err := New(4, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	segments := c.Split("abcdefgh")
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].Text != "abcd" || segments[1].Text != "efgh" {
		t.Errorf("unexpected segment texts: %q, %q", segments[0].Text, segments[1].Text)
	}
}
