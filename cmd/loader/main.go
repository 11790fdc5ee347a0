// Command loader watches a directory for contract PDFs and runs them through
// extraction and ingestion. With a NATS URL configured it also hosts the
// ingestion consumer and hands documents over the queue, so several loaders
// can share one consumer pool.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/clauseai/clause-engine/engine/extract"
	"github.com/clauseai/clause-engine/engine/ingest"
	"github.com/clauseai/clause-engine/engine/registry"
	"github.com/clauseai/clause-engine/engine/semantic"
	"github.com/clauseai/clause-engine/pkg/metrics"
	"github.com/clauseai/clause-engine/pkg/natsutil"
	"github.com/clauseai/clause-engine/pkg/ollama"
	"github.com/clauseai/clause-engine/pkg/openai"
	"github.com/clauseai/clause-engine/pkg/resilience"
)

var met = metrics.New()

var (
	mFilesProcessed = met.Counter("loader_files_processed_total", "PDF files processed")
	mFilesFailed    = met.Counter("loader_files_failed_total", "PDF files that failed")
	mChunksTotal    = met.Counter("loader_chunks_total", "Chunks stored")
	mOCRRuns        = met.Counter("loader_ocr_runs_total", "Documents that needed OCR")
	mLastScan       = met.Gauge("loader_last_scan_timestamp", "Epoch of last directory scan")
	mQueueDepth     = met.Gauge("loader_queue_depth", "Files waiting to process")
	mExtractDur     = met.Histogram("loader_extract_duration_seconds", "Extraction time per file", nil)
	mIngestDur      = met.Histogram("loader_ingest_duration_seconds", "Ingestion time per file", nil)
)

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func main() {
	_ = godotenv.Load()

	var (
		dataDir     = flag.String("dir", "/tmp/clause-data", "directory to watch for PDF files")
		qdrantAddr  = flag.String("qdrant", envOr("QDRANT_URL", "localhost:6334"), "Qdrant gRPC address")
		neo4jURL    = flag.String("neo4j", envOr("NEO4J_URL", "neo4j://localhost:7687"), "Neo4j bolt URL")
		neo4jUser   = flag.String("neo4j-user", envOr("NEO4J_USER", "neo4j"), "Neo4j username")
		neo4jPass   = flag.String("neo4j-pass", envOr("NEO4J_PASS", "password"), "Neo4j password")
		natsURL     = flag.String("nats", os.Getenv("NATS_URL"), "NATS URL (empty ingests in-process)")
		ollamaURL   = flag.String("ollama", os.Getenv("OLLAMA_URL"), "embed locally via Ollama instead of OpenAI")
		ollamaModel = flag.String("ollama-model", envOr("OLLAMA_MODEL", "nomic-embed-text"), "Ollama embedding model")
		ocrBinary   = flag.String("ocr", envOr("OCR_BINARY", "ocrmypdf"), "ocrmypdf binary")
		interval    = flag.Duration("interval", 30*time.Second, "scan interval")
		rate        = flag.Float64("rate", 0.5, "max documents per second handed to ingestion")
		stateFile   = flag.String("state", "", "processed files state (default <dir>/.loader-state.json)")
		metricsPort = flag.Int("metrics-port", 9091, "Prometheus metrics port")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	if *stateFile == "" {
		*stateFile = filepath.Join(*dataDir, ".loader-state.json")
	}

	met.ServeAsync(*metricsPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" && *ollamaURL == "" {
		log.Error("OPENAI_API_KEY is required (or pass -ollama for local embeddings)")
		os.Exit(1)
	}

	store, err := semantic.New(*qdrantAddr, 0)
	if err != nil {
		log.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	driver, err := neo4j.NewDriverWithContext(*neo4jURL, neo4j.BasicAuth(*neo4jUser, *neo4jPass, ""))
	if err != nil {
		log.Error("neo4j driver failed", "error", err)
		os.Exit(1)
	}
	defer driver.Close(ctx)
	reg := registry.New(driver)

	// Collections embedded with one backend cannot be queried with the other.
	var embedder ingest.Embedder
	if *ollamaURL != "" {
		embedder = ollama.New(*ollamaURL, *ollamaModel)
		log.Info("embedding via Ollama", "model", *ollamaModel)
	} else {
		embedder = openai.NewClient(openai.Config{
			BaseURL:    envOr("OPENAI_BASE_URL", openai.DefaultBaseURL),
			APIKey:     apiKey,
			EmbedModel: envOr("EMBED_MODEL", openai.DefaultEmbedModel),
		})
	}

	extractor := extract.New(extract.PDFParser{}, extract.OCRMyPDF{Binary: *ocrBinary}, log)
	ingestor := ingest.New(embedder, store, ingest.Options{}, log)

	// With NATS the loader hosts the consumer and hands documents over the
	// queue; without it ingestion runs in-process.
	var nc *nats.Conn
	if *natsURL != "" {
		nc, err = nats.Connect(*natsURL, nats.Name("clause-loader"))
		if err != nil {
			log.Error("nats connect failed", "error", err)
			os.Exit(1)
		}
		defer nc.Drain()

		sub, err := ingest.StartConsumer(nc, ingestor, log)
		if err != nil {
			log.Error("consumer start failed", "error", err)
			os.Exit(1)
		}
		defer sub.Unsubscribe()
		log.Info("ingestion consumer started", "subject", ingest.IngestSubject)
	}

	loader := &loader{
		extract: extractor,
		ingest:  ingestor,
		reg:     reg,
		nc:      nc,
		limiter: resilience.NewLimiter(resilience.LimiterOpts{Rate: *rate, Burst: 1}),
		log:     log,
	}

	processed := loadState(*stateFile)
	os.MkdirAll(*dataDir, 0o755)
	log.Info("watching for contract PDFs", "dir", *dataDir, "interval", *interval)

	scan := func() {
		mLastScan.Set(time.Now().Unix())
		entries, err := os.ReadDir(*dataDir)
		if err != nil {
			log.Error("readdir failed", "error", err)
			return
		}
		for _, e := range entries {
			if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") || e.Name()[0] == '.' {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			key := fmt.Sprintf("%s:%d", e.Name(), info.Size())
			if processed[key] {
				continue
			}
			if ctx.Err() != nil {
				return
			}

			mQueueDepth.Inc()
			err = loader.process(ctx, filepath.Join(*dataDir, e.Name()))
			mQueueDepth.Dec()
			mFilesProcessed.Inc()

			// Failed files are retried on the next scan.
			if err != nil {
				mFilesFailed.Inc()
				log.Warn("file failed, will retry", "file", e.Name(), "error", err)
				continue
			}
			processed[key] = true
			saveState(*stateFile, processed)
		}
	}

	scan()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-ticker.C:
			scan()
		}
	}
}

type loader struct {
	extract *extract.Service
	ingest  *ingest.Service
	reg     *registry.Registry
	nc      *nats.Conn
	limiter *resilience.Limiter
	log     *slog.Logger
}

func (l *loader) process(ctx context.Context, path string) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}

	start := time.Now()
	doc, err := l.extract.Process(ctx, path)
	mExtractDur.Since(start)
	if err != nil {
		return fmt.Errorf("extract %s: %w", filepath.Base(path), err)
	}
	if doc.OCRUsed {
		mOCRRuns.Inc()
	}

	start = time.Now()
	receipt, err := l.dispatch(ctx, doc.ID, doc.Text)
	mIngestDur.Since(start)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", doc.ID, err)
	}
	mChunksTotal.Add(int64(receipt.Chunks))

	rec := registry.Record{
		ID:         doc.ID,
		Name:       doc.Name,
		ImageCount: doc.ImageCount,
		OCRUsed:    doc.OCRUsed,
		Chunks:     receipt.Chunks,
		IngestedAt: doc.IngestedAt.UTC().Format(time.RFC3339),
	}
	if err := l.reg.SaveDocument(ctx, rec); err != nil {
		l.log.Warn("registry write failed", "document_id", doc.ID, "error", err)
	}

	l.log.Info("document loaded", "document_id", doc.ID, "chunks", receipt.Chunks, "ocr", doc.OCRUsed)
	return nil
}

// dispatch hands the document to ingestion, over NATS when connected.
func (l *loader) dispatch(ctx context.Context, docID, text string) (ingest.Receipt, error) {
	if l.nc == nil {
		return l.ingest.Ingest(ctx, docID, text)
	}
	req := ingest.Request{DocumentID: docID, Text: text}
	return natsutil.Request[ingest.Request, ingest.Receipt](ctx, l.nc, ingest.IngestSubject, req)
}

func loadState(path string) map[string]bool {
	m := make(map[string]bool)
	data, err := os.ReadFile(path)
	if err != nil {
		return m
	}
	json.Unmarshal(data, &m)
	return m
}

func saveState(path string, m map[string]bool) {
	data, _ := json.Marshal(m)
	os.WriteFile(path, data, 0o644)
}
