// Package extract turns a PDF on disk into a domain.Document: per-page text
// extraction with an OCR fallback for scanned documents.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/clauseai/clause-engine/engine/domain"
)

// OCRTextThreshold is the heuristic for a scanned PDF: images present but
// less than this much extracted text means the text layer is missing.
const OCRTextThreshold = 1000

// TextExtractor parses a PDF file.
type TextExtractor interface {
	Parse(path string) (Result, error)
}

// OCRRunner rewrites a PDF with an OCR text layer.
type OCRRunner interface {
	Run(ctx context.Context, in, out string) error
}

// Service applies the extraction policy. OCR is optional; without a runner
// scanned documents fail with ErrExtractionFailed instead of falling back.
type Service struct {
	parser TextExtractor
	ocr    OCRRunner
	logger *slog.Logger
}

// New creates a Service. A nil ocr disables the fallback; a nil logger
// discards logs.
func New(parser TextExtractor, ocr OCRRunner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{parser: parser, ocr: ocr, logger: logger}
}

// Process extracts the document at path. When the PDF contains images and
// less than OCRTextThreshold characters of text it is treated as scanned:
// ocrmypdf rewrites it into a temp file which is parsed instead. A document
// with no text after the fallback is ErrExtractionFailed.
func (s *Service) Process(ctx context.Context, path string) (domain.Document, error) {
	res, err := s.parser.Parse(path)
	if err != nil {
		return domain.Document{}, err
	}

	ocrUsed := false
	if s.ocr != nil && needsOCR(res) {
		s.logger.Info("text layer missing, running OCR",
			"path", path, "images", res.ImageCount, "text_len", utf8.RuneCountInString(res.Text))
		ocrRes, err := s.runOCR(ctx, path)
		if err != nil {
			return domain.Document{}, err
		}
		res.Text = ocrRes.Text
		ocrUsed = true
	}

	text := withMetadataSection(res.Text, res.Metadata)
	if strings.TrimSpace(res.Text) == "" {
		return domain.Document{}, fmt.Errorf("extract: %s: %w: no text after extraction", path, domain.ErrExtractionFailed)
	}

	now := time.Now()
	return domain.Document{
		ID:         domain.NewDocumentID(path, now),
		Name:       filepath.Base(path),
		Text:       text,
		ImageCount: res.ImageCount,
		OCRUsed:    ocrUsed,
		IngestedAt: now,
	}, nil
}

// needsOCR is the scanned-document heuristic.
func needsOCR(res Result) bool {
	return res.ImageCount > 0 && utf8.RuneCountInString(res.Text) < OCRTextThreshold
}

func (s *Service) runOCR(ctx context.Context, path string) (Result, error) {
	tmp, err := os.CreateTemp("", "ocr-*.pdf")
	if err != nil {
		return Result{}, fmt.Errorf("extract: ocr temp file: %w", err)
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	if err := s.ocr.Run(ctx, path, tmp.Name()); err != nil {
		return Result{}, fmt.Errorf("%w: %s", domain.ErrExtractionFailed, err)
	}
	return s.parser.Parse(tmp.Name())
}

// withMetadataSection appends the info-dictionary fields the way the stored
// markdown always carried them.
func withMetadataSection(text string, m Metadata) string {
	var b strings.Builder
	b.WriteString("# Extracted Text\n\n")
	b.WriteString(text)
	b.WriteString("\n\n# Metadata\n\n")
	for _, f := range []struct{ key, val string }{
		{"Author", m.Author},
		{"Creator", m.Creator},
		{"Producer", m.Producer},
		{"Subject", m.Subject},
		{"Title", m.Title},
	} {
		val := f.val
		if val == "" {
			val = "N/A"
		}
		fmt.Fprintf(&b, "- **%s**: %s\n", f.key, val)
	}
	return b.String()
}
