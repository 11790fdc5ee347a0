// Package rag answers questions over a single ingested document: embed the
// query, retrieve the most similar chunks from the document's collection, and
// synthesize an answer grounded in them.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clauseai/clause-engine/engine/domain"
	"github.com/clauseai/clause-engine/engine/semantic"
	"github.com/clauseai/clause-engine/engine/synth"
)

// Embedder produces the query vector.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is the slice of the vector store the query path reads from.
type Store interface {
	HasCollection(ctx context.Context, name string) (bool, error)
	Search(ctx context.Context, name string, vector []float32, limit int, scoreThreshold float32) ([]semantic.SearchResult, error)
}

// Synthesizer turns retrieved chunks into an answer.
type Synthesizer interface {
	Synthesize(ctx context.Context, req synth.Request) (string, error)
}

// QueryOpts tune retrieval. Zero values select the operation's defaults.
type QueryOpts struct {
	Limit          int
	ScoreThreshold float32
}

// DefaultAskOpts is the retrieval tuning for free-form questions: a loose
// threshold so sparse matches still reach the model.
func DefaultAskOpts() QueryOpts { return QueryOpts{Limit: 10, ScoreThreshold: 0.1} }

// DefaultEntityOpts is the retrieval tuning for entity extraction: a stricter
// threshold since the probe is built from the entity names themselves.
func DefaultEntityOpts() QueryOpts { return QueryOpts{Limit: 10, ScoreThreshold: 0.5} }

func (o QueryOpts) withDefaults(def QueryOpts) QueryOpts {
	if o.Limit == 0 {
		o.Limit = def.Limit
	}
	if o.ScoreThreshold == 0 {
		o.ScoreThreshold = def.ScoreThreshold
	}
	return o
}

// Answer is a synthesized reply with the chunks it was grounded on.
type Answer struct {
	Text    string                  `json:"answer"`
	Sources []semantic.SearchResult `json:"sources"`
}

// Service wires the query path together.
type Service struct {
	embed  Embedder
	store  Store
	synth  Synthesizer
	logger *slog.Logger
}

// New creates a Service. A nil logger discards logs.
func New(embed Embedder, store Store, synthesizer Synthesizer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{embed: embed, store: store, synth: synthesizer, logger: logger}
}

// Retrieve embeds the probe text and returns the most similar chunks of the
// document, ordered by descending score. The document must have been ingested
// first; otherwise ErrDocumentNotFound.
func (s *Service) Retrieve(ctx context.Context, docID, probe string, opts QueryOpts) ([]semantic.SearchResult, error) {
	if err := domain.ValidateDocumentID(docID); err != nil {
		return nil, err
	}

	exists, err := s.store.HasCollection(ctx, docID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("rag: document %s: %w", docID, domain.ErrDocumentNotFound)
	}

	vectors, err := s.embed.Embed(ctx, []string{probe})
	if err != nil {
		return nil, domain.ClassifyUpstream("rag: embed query", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("rag: embed query: got %d vectors for one input", len(vectors))
	}

	results, err := s.store.Search(ctx, docID, vectors[0], opts.Limit, opts.ScoreThreshold)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("chunks retrieved", "document_id", docID, "hits", len(results), "limit", opts.Limit, "threshold", opts.ScoreThreshold)
	return results, nil
}

// Ask answers a free-form question over one document.
func (s *Service) Ask(ctx context.Context, docID, query string, opts QueryOpts) (Answer, error) {
	if err := domain.ValidateQuery(query); err != nil {
		return Answer{}, err
	}
	opts = opts.withDefaults(DefaultAskOpts())

	results, err := s.Retrieve(ctx, docID, query, opts)
	if err != nil {
		return Answer{}, err
	}

	text, err := s.synth.Synthesize(ctx, synth.Request{
		Mode:          synth.ModeGeneralQuery,
		Query:         query,
		ContextChunks: chunkTexts(results),
	})
	if err != nil {
		return Answer{}, err
	}
	return Answer{Text: text, Sources: results}, nil
}

// ExtractEntities pulls the given entities out of one document as JSON. A nil
// entity list selects the general-contract catalog; retrieval probes with the
// entity names themselves.
func (s *Service) ExtractEntities(ctx context.Context, docID string, entities []string, opts QueryOpts) (Answer, error) {
	if entities == nil {
		entities = domain.EntitiesFor(domain.DocTypeGeneralContract)
	}
	if len(entities) == 0 {
		return Answer{}, fmt.Errorf("rag: %w", domain.ErrEmptyEntityList)
	}
	opts = opts.withDefaults(DefaultEntityOpts())

	probe := strings.Join(entities, ", ")
	results, err := s.Retrieve(ctx, docID, probe, opts)
	if err != nil {
		return Answer{}, err
	}

	text, err := s.synth.Synthesize(ctx, synth.Request{
		Mode:          synth.ModeEntityExtraction,
		Entities:      entities,
		ContextChunks: chunkTexts(results),
	})
	if err != nil {
		return Answer{}, err
	}
	return Answer{Text: text, Sources: results}, nil
}

func chunkTexts(results []semantic.SearchResult) []string {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	return texts
}
