// Package ingest turns extracted document text into stored vectors: split
// into overlapping chunks, embed, and upsert into the document's collection.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/clauseai/clause-engine/engine/domain"
	"github.com/clauseai/clause-engine/engine/semantic"
	"github.com/clauseai/clause-engine/pkg/fn"
)

// EmbedBatchSize caps the number of chunks sent to the embedder per call.
const EmbedBatchSize = 100

// Embedder produces one vector per input text, all with the same
// dimensionality, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is the slice of the vector store the ingestion pipeline writes to.
type Store interface {
	EnsureCollection(ctx context.Context, name string, dims int) error
	Upsert(ctx context.Context, name string, records []semantic.Record) error
}

// Options tune the chunker. Zero values select the defaults.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
}

func (o Options) withDefaults() Options {
	if o.ChunkSize == 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ChunkOverlap == 0 {
		o.ChunkOverlap = DefaultChunkOverlap
	}
	return o
}

// Service runs the chunk-embed-store pipeline for one document at a time.
type Service struct {
	embed  Embedder
	store  Store
	opts   Options
	logger *slog.Logger

	run fn.Stage[Job, Receipt]
}

// New creates a Service. A nil logger discards logs.
func New(embed Embedder, store Store, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Service{
		embed:  embed,
		store:  store,
		opts:   opts.withDefaults(),
		logger: logger,
	}
	s.run = fn.Then(
		fn.Then(
			fn.TracedStage("ingest.chunk", s.chunkStage),
			fn.TracedStage("ingest.embed", s.embedStage),
		),
		fn.TracedStage("ingest.store", s.storeStage),
	)
	return s
}

// Ingest processes one document end to end and reports how many chunks were
// stored. Re-ingesting the same document id overwrites the previous points
// in place: point ids are derived deterministically from (document id, chunk
// index).
func (s *Service) Ingest(ctx context.Context, docID, text string) (Receipt, error) {
	if err := domain.ValidateDocumentID(docID); err != nil {
		return Receipt{}, err
	}
	receipt, err := s.run(ctx, Job{DocID: docID, Text: text}).Unwrap()
	if err != nil {
		return Receipt{}, err
	}
	s.logger.Info("document ingested", "document_id", docID, "chunks", receipt.Chunks)
	return receipt, nil
}

func (s *Service) chunkStage(_ context.Context, job Job) fn.Result[ChunkedJob] {
	chunks, err := Split(job.Text, s.opts.ChunkSize, s.opts.ChunkOverlap)
	if err != nil {
		return fn.Err[ChunkedJob](err)
	}
	if len(chunks) == 0 {
		return fn.Errf[ChunkedJob]("ingest: document %s: %w: no text to chunk", job.DocID, domain.ErrExtractionFailed)
	}
	s.logger.Debug("document chunked", "document_id", job.DocID, "chunks", len(chunks))
	return fn.Ok(ChunkedJob{Job: job, Chunks: chunks})
}

func (s *Service) embedStage(ctx context.Context, job ChunkedJob) fn.Result[EmbeddedJob] {
	vectors := make([][]float32, 0, len(job.Chunks))
	for start := 0; start < len(job.Chunks); start += EmbedBatchSize {
		end := min(start+EmbedBatchSize, len(job.Chunks))
		batch, err := s.embed.Embed(ctx, job.Chunks[start:end])
		if err != nil {
			return fn.Err[EmbeddedJob](domain.ClassifyUpstream(fmt.Sprintf("ingest: embed batch %d of %s", start/EmbedBatchSize, job.DocID), err))
		}
		if len(batch) != end-start {
			return fn.Errf[EmbeddedJob]("ingest: embed batch of %s: got %d vectors for %d chunks", job.DocID, len(batch), end-start)
		}
		vectors = append(vectors, batch...)
	}
	return fn.Ok(EmbeddedJob{ChunkedJob: job, Vectors: vectors, Dims: len(vectors[0])})
}

func (s *Service) storeStage(ctx context.Context, job EmbeddedJob) fn.Result[Receipt] {
	if err := s.store.EnsureCollection(ctx, job.DocID, job.Dims); err != nil {
		return fn.Err[Receipt](err)
	}
	records := make([]semantic.Record, len(job.Chunks))
	for i, chunk := range job.Chunks {
		records[i] = semantic.Record{
			ID:     PointID(job.DocID, i),
			Vector: job.Vectors[i],
			Payload: map[string]any{
				"text":        chunk,
				"chunk_index": i,
			},
		}
	}
	if err := s.store.Upsert(ctx, job.DocID, records); err != nil {
		return fn.Err[Receipt](err)
	}
	return fn.Ok(Receipt{DocID: job.DocID, Chunks: len(records)})
}

// PointID derives a stable UUID for a chunk from its document id and index,
// so re-ingestion replaces points instead of duplicating them.
func PointID(docID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(docID+"-"+strconv.Itoa(index))).String()
}
