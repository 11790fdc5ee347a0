package ingest

import (
	"strconv"
	"unicode"

	"github.com/clauseai/clause-engine/engine/domain"
)

const (
	// DefaultChunkSize is the maximum number of characters per chunk.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the number of characters shared with the
	// previous chunk.
	DefaultChunkOverlap = 100
)

// Split cuts text into ordered chunks of at most size characters where
// consecutive chunks share exactly overlap characters. Concatenating the
// chunks with the overlaps removed reconstructs text exactly. Cuts prefer
// the latest paragraph, sentence, or word boundary inside the window and
// fall back to a hard character cut.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, domain.NewConfigError("chunk_size", strconv.Itoa(size), domain.ErrInvalidChunking)
	}
	if overlap < 0 || overlap >= size {
		return nil, domain.NewConfigError("chunk_overlap", strconv.Itoa(overlap), domain.ErrInvalidChunking)
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	var chunks []string
	start := 0
	for {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			return chunks, nil
		}
		// The cut must land after start+overlap so the next window makes
		// forward progress.
		cut := cutPoint(runes, start+overlap, end)
		chunks = append(chunks, string(runes[start:cut]))
		start = cut - overlap
	}
}

// cutPoint returns the latest boundary position in (lo, hi], falling back to
// hi when the window contains no boundary at all.
func cutPoint(runes []rune, lo, hi int) int {
	if p := lastBoundary(runes, lo, hi, isParagraphBreak); p > 0 {
		return p
	}
	if p := lastBoundary(runes, lo, hi, isSentenceBreak); p > 0 {
		return p
	}
	if p := lastBoundary(runes, lo, hi, isWordBreak); p > 0 {
		return p
	}
	return hi
}

func lastBoundary(runes []rune, lo, hi int, at func([]rune, int) bool) int {
	for i := hi; i > lo; i-- {
		if at(runes, i) {
			return i
		}
	}
	return 0
}

// A cut at i means the chunk ends with runes[i-1].

func isParagraphBreak(runes []rune, i int) bool {
	return i >= 2 && runes[i-1] == '\n' && runes[i-2] == '\n'
}

func isSentenceBreak(runes []rune, i int) bool {
	c := runes[i-1]
	if c != '.' && c != '!' && c != '?' {
		return false
	}
	return i == len(runes) || unicode.IsSpace(runes[i])
}

func isWordBreak(runes []rune, i int) bool {
	return unicode.IsSpace(runes[i-1])
}
