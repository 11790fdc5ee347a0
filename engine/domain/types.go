// Package domain defines core types, the error taxonomy, and input validation
// for the ClauseAI engine pipeline. It acts as the validation gate at pipeline
// entry points.
package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Document is the extracted form of an uploaded contract. Immutable once
// extraction has finished; chunks and embeddings are derived from it and the
// document itself is discarded after ingestion.
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Text       string    `json:"text"`
	ImageCount int       `json:"image_count"`
	OCRUsed    bool      `json:"ocr_used"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Chunk is a bounded span of a document's text, the unit of embedding and
// retrieval.
type Chunk struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
	DocID string `json:"doc_id"`
}

// NewDocumentID derives a collection-safe document identifier from a file
// name and the ingestion time. Unique per ingestion run.
func NewDocumentID(path string, at time.Time) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = sanitizeID(base)
	return fmt.Sprintf("%s_%s", base, at.Format("20060102_150405"))
}

// sanitizeID keeps only characters valid in a collection name.
func sanitizeID(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
