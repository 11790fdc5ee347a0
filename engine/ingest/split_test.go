package ingest

import (
	"errors"
	"strings"
	"testing"

	"github.com/clauseai/clause-engine/engine/domain"
)

func TestSplit_Empty(t *testing.T) {
	chunks, err := Split("", 100, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}

func TestSplit_SingleChunk(t *testing.T) {
	chunks, err := Split("short text", 100, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 || chunks[0] != "short text" {
		t.Fatalf("expected one untouched chunk, got %q", chunks)
	}
}

func TestSplit_ExactSize(t *testing.T) {
	text := strings.Repeat("a", 100)
	chunks, err := Split(text, 100, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("text of exactly size chars must be one chunk, got %d", len(chunks))
	}
}

func TestSplit_InvalidConfig(t *testing.T) {
	cases := []struct {
		name          string
		size, overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -1, 0},
		{"negative overlap", 100, -1},
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 150},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Split("some text", tc.size, tc.overlap)
			if !errors.Is(err, domain.ErrInvalidChunking) {
				t.Fatalf("got %v, want ErrInvalidChunking", err)
			}
			var cfgErr *domain.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("error should carry the offending field: %v", err)
			}
		})
	}
}

// Every chunk respects the size bound and consecutive chunks share exactly
// overlap characters, so dropping each chunk's first overlap characters and
// concatenating reconstructs the input.
func TestSplit_RoundTrip(t *testing.T) {
	texts := []string{
		strings.Repeat("lorem ipsum dolor sit amet. ", 200),
		strings.Repeat("x", 5000),
		"first paragraph.\n\nsecond paragraph follows here.\n\n" + strings.Repeat("word ", 500),
		strings.Repeat("né héllo wörld. ", 300), // multi-byte runes
	}
	const (
		size    = 100
		overlap = 20
	)
	for i, text := range texts {
		chunks, err := Split(text, size, overlap)
		if err != nil {
			t.Fatalf("text %d: %v", i, err)
		}
		var b strings.Builder
		for j, c := range chunks {
			runes := []rune(c)
			if len(runes) > size {
				t.Fatalf("text %d chunk %d: %d runes exceeds size %d", i, j, len(runes), size)
			}
			if j == 0 {
				b.WriteString(c)
				continue
			}
			prev := []rune(chunks[j-1])
			if len(runes) < overlap {
				t.Fatalf("text %d chunk %d: shorter than the overlap", i, j)
			}
			head := string(runes[:overlap])
			tail := string(prev[len(prev)-overlap:])
			if head != tail {
				t.Fatalf("text %d chunk %d: overlap mismatch\n head %q\n tail %q", i, j, head, tail)
			}
			b.WriteString(string(runes[overlap:]))
		}
		if b.String() != text {
			t.Fatalf("text %d: round trip failed", i)
		}
	}
}

func TestSplit_PrefersSentenceBoundary(t *testing.T) {
	// One sentence break inside the window; the cut should land right after it
	// rather than mid-word at the hard limit.
	text := strings.Repeat("a", 50) + ". " + strings.Repeat("b", 100)
	chunks, err := Split(text, 80, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], ".") {
		t.Errorf("first chunk should end at the sentence break, got %q", chunks[0])
	}
}

func TestSplit_PrefersParagraphBoundary(t *testing.T) {
	text := strings.Repeat("a", 40) + "\n\n" + strings.Repeat("b", 30) + ". " + strings.Repeat("c", 100)
	chunks, err := Split(text, 80, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(chunks[0], "\n\n") {
		t.Errorf("paragraph break wins over the later sentence break, got %q", chunks[0])
	}
}

func TestSplit_HardCutWithoutBoundaries(t *testing.T) {
	text := strings.Repeat("z", 250)
	chunks, err := Split(text, 100, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, c := range chunks[:len(chunks)-1] {
		if len([]rune(c)) != 100 {
			t.Errorf("chunk %d: boundary-free text must cut at the hard limit, got %d runes", i, len([]rune(c)))
		}
	}
}
