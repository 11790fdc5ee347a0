package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/clauseai/clause-engine/engine/domain"
	"github.com/clauseai/clause-engine/engine/ingest"
	"github.com/clauseai/clause-engine/engine/rag"
	"github.com/clauseai/clause-engine/engine/registry"
	"github.com/clauseai/clause-engine/engine/semantic"
	"github.com/clauseai/clause-engine/pkg/metrics"
	"github.com/clauseai/clause-engine/pkg/resilience"
)

// maxUploadBytes bounds multipart uploads.
const maxUploadBytes = 64 << 20

// Narrow views of the services, so handlers are testable with fakes.

type extractService interface {
	Process(ctx context.Context, path string) (domain.Document, error)
}

type ingestService interface {
	Ingest(ctx context.Context, docID, text string) (ingest.Receipt, error)
}

type queryService interface {
	Ask(ctx context.Context, docID, query string, opts rag.QueryOpts) (rag.Answer, error)
	ExtractEntities(ctx context.Context, docID string, entities []string, opts rag.QueryOpts) (rag.Answer, error)
}

type vectorStore interface {
	ListCollections(ctx context.Context) ([]string, error)
	Scroll(ctx context.Context, name string) ([]semantic.DumpEntry, error)
}

type documentRegistry interface {
	SaveDocument(ctx context.Context, rec registry.Record) error
	SaveEntities(ctx context.Context, docID string, entities []registry.Entity) error
	ListDocuments(ctx context.Context) ([]registry.Record, error)
}

type server struct {
	extract  extractService
	ingest   ingestService
	query    queryService
	store    vectorStore
	registry documentRegistry
	metrics  *metrics.Registry
	logger   *slog.Logger
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// UploadResponse is the JSON response for POST /api/documents.
type UploadResponse struct {
	DocumentID string            `json:"document_id"`
	Name       string            `json:"name"`
	Chunks     int               `json:"chunks"`
	ImageCount int               `json:"image_count"`
	OCRUsed    bool              `json:"ocr_used"`
	Entities   map[string]string `json:"entities,omitempty"`
}

// handleUpload accepts a multipart PDF, extracts it, ingests it into its own
// collection, extracts the contract entities, and records everything in the
// registry. The registry writes are best effort; the response reports the
// ingestion even if bookkeeping fails.
func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	path, err := saveUpload(file, header.Filename)
	if err != nil {
		s.logger.Error("upload: save failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}
	defer os.RemoveAll(filepath.Dir(path))

	ctx := r.Context()

	doc, err := s.extract.Process(ctx, path)
	if err != nil {
		s.writeTypedError(w, "extract", err)
		return
	}

	receipt, err := s.ingest.Ingest(ctx, doc.ID, doc.Text)
	if err != nil {
		s.writeTypedError(w, "ingest", err)
		return
	}
	s.metrics.Counter("documents_ingested_total", "Documents ingested").Inc()
	s.metrics.Counter("chunks_stored_total", "Chunks stored").Add(int64(receipt.Chunks))

	resp := UploadResponse{
		DocumentID: doc.ID,
		Name:       doc.Name,
		Chunks:     receipt.Chunks,
		ImageCount: doc.ImageCount,
		OCRUsed:    doc.OCRUsed,
	}

	// Entity extraction and registry bookkeeping are best effort.
	if answer, err := s.query.ExtractEntities(ctx, doc.ID, nil, rag.QueryOpts{}); err != nil {
		s.logger.Warn("upload: entity extraction failed", "document_id", doc.ID, "err", err)
	} else {
		resp.Entities = parseEntities(answer.Text)
	}
	s.record(ctx, doc, receipt, resp.Entities)

	writeJSON(w, http.StatusCreated, resp)
}

func (s *server) record(ctx context.Context, doc domain.Document, receipt ingest.Receipt, entities map[string]string) {
	rec := registry.Record{
		ID:         doc.ID,
		Name:       doc.Name,
		ImageCount: doc.ImageCount,
		OCRUsed:    doc.OCRUsed,
		Chunks:     receipt.Chunks,
		IngestedAt: doc.IngestedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if err := s.registry.SaveDocument(ctx, rec); err != nil {
		s.logger.Warn("registry: save document failed", "document_id", doc.ID, "err", err)
		return
	}
	if len(entities) == 0 {
		return
	}
	ents := make([]registry.Entity, 0, len(entities))
	for name, value := range entities {
		ents = append(ents, registry.Entity{Name: name, Value: value})
	}
	if err := s.registry.SaveEntities(ctx, doc.ID, ents); err != nil {
		s.logger.Warn("registry: save entities failed", "document_id", doc.ID, "err", err)
	}
}

// handleListDocuments lists processed documents from the registry, falling
// back to raw collection names when the registry is unreachable.
func (s *server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	recs, err := s.registry.ListDocuments(r.Context())
	if err != nil {
		s.logger.Warn("registry: list failed, falling back to collections", "err", err)
		names, err := s.store.ListCollections(r.Context())
		if err != nil {
			s.writeTypedError(w, "list", err)
			return
		}
		recs = make([]registry.Record, len(names))
		for i, n := range names {
			recs[i] = registry.Record{ID: n}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": recs})
}

// QueryRequest is the JSON body for POST /api/query.
type QueryRequest struct {
	DocumentID     string  `json:"document_id"`
	Question       string  `json:"question"`
	Limit          int     `json:"limit,omitempty"`
	ScoreThreshold float32 `json:"score_threshold,omitempty"`
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	answer, err := s.query.Ask(r.Context(), req.DocumentID, req.Question, rag.QueryOpts{
		Limit:          req.Limit,
		ScoreThreshold: req.ScoreThreshold,
	})
	if err != nil {
		s.writeTypedError(w, "query", err)
		return
	}
	s.metrics.Counter("queries_total", "Questions answered").Inc()
	writeJSON(w, http.StatusOK, answer)
}

func (s *server) handleEntities(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("id")
	answer, err := s.query.ExtractEntities(r.Context(), docID, nil, rag.QueryOpts{})
	if err != nil {
		s.writeTypedError(w, "entities", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": docID,
		"entities":    parseEntities(answer.Text),
		"raw":         answer.Text,
	})
}

func (s *server) handleDump(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("id")
	entries, err := s.store.Scroll(r.Context(), docID)
	if err != nil {
		s.writeTypedError(w, "dump", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": docID,
		"points":      entries,
	})
}

// writeTypedError maps the engine's error taxonomy onto HTTP statuses.
func (s *server) writeTypedError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op+" failed", "err", err)

	var cfgErr *domain.ConfigError
	switch {
	case errors.Is(err, domain.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, "document not processed yet")
	case errors.As(err, &cfgErr),
		errors.Is(err, domain.ErrEmptyQuery),
		errors.Is(err, domain.ErrEmptyEntityList),
		errors.Is(err, domain.ErrInvalidChunking):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrExtractionFailed):
		writeError(w, http.StatusUnprocessableEntity, "could not extract text from document")
	case errors.Is(err, domain.ErrUpstreamTimeout),
		errors.Is(err, domain.ErrUpstreamUnavailable),
		errors.Is(err, resilience.ErrCircuitOpen):
		writeError(w, http.StatusServiceUnavailable, "upstream dependency unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// saveUpload writes the upload into a fresh temp directory under its
// original base name, so document IDs derive from what the user uploaded.
func saveUpload(file io.Reader, name string) (string, error) {
	dir, err := os.MkdirTemp("", "upload-")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, filepath.Base(name))
	out, err := os.Create(path)
	if err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, file); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	return path, nil
}

// parseEntities decodes the extractor's JSON reply, tolerating markdown code
// fences around it. A reply that is not the expected shape yields nil; the
// raw text is still returned to the client.
func parseEntities(text string) map[string]string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var parsed struct {
		Extracted map[string]string `json:"extracted_entities"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &parsed); err != nil {
		return nil
	}
	return parsed.Extracted
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
