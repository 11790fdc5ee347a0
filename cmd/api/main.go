// Package main implements the ClauseAI API server: upload a contract PDF,
// query it, extract its entities.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/clauseai/clause-engine/engine/extract"
	"github.com/clauseai/clause-engine/engine/ingest"
	"github.com/clauseai/clause-engine/engine/rag"
	"github.com/clauseai/clause-engine/engine/registry"
	"github.com/clauseai/clause-engine/engine/semantic"
	"github.com/clauseai/clause-engine/engine/synth"
	"github.com/clauseai/clause-engine/pkg/metrics"
	"github.com/clauseai/clause-engine/pkg/mid"
	"github.com/clauseai/clause-engine/pkg/openai"
	"github.com/clauseai/clause-engine/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	Port          string
	QdrantURL     string
	Neo4jURL      string
	Neo4jUser     string
	Neo4jPass     string
	OpenAIBaseURL string
	OpenAIKey     string
	EmbedModel    string
	ChatModel     string
	CORSOrigin    string
	OCRBinary     string
}

func loadConfig() Config {
	return Config{
		Port:          envOr("PORT", "8080"),
		QdrantURL:     envOr("QDRANT_URL", "localhost:6334"),
		Neo4jURL:      envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:     envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:     envOr("NEO4J_PASS", "password"),
		OpenAIBaseURL: envOr("OPENAI_BASE_URL", openai.DefaultBaseURL),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		EmbedModel:    envOr("EMBED_MODEL", openai.DefaultEmbedModel),
		ChatModel:     envOr("CHAT_MODEL", openai.DefaultChatModel),
		CORSOrigin:    envOr("CORS_ORIGIN", "*"),
		OCRBinary:     envOr("OCR_BINARY", "ocrmypdf"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OpenAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}

	// --- Qdrant ---
	store, err := semantic.New(cfg.QdrantURL, 0)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer store.Close()

	// --- Neo4j registry (audit path) ---
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(ctx)
	reg := registry.New(driver)

	// --- OpenAI ---
	ai := openai.NewClient(openai.Config{
		BaseURL:    cfg.OpenAIBaseURL,
		APIKey:     cfg.OpenAIKey,
		EmbedModel: cfg.EmbedModel,
		ChatModel:  cfg.ChatModel,
	})

	// Synthesis sits behind a breaker: the chat model is the slowest and
	// flakiest dependency, and queries should fail fast while it is down.
	breaker := resilience.NewBreaker(resilience.DefaultBreakerOpts)
	chat := &breakerChat{breaker: breaker, inner: ai}

	// --- Services ---
	extractor := extract.New(extract.PDFParser{}, extract.OCRMyPDF{Binary: cfg.OCRBinary}, logger)
	ingestor := ingest.New(ai, store, ingest.Options{}, logger)
	synthesizer := synth.New(chat, logger)
	querySvc := rag.New(ai, store, synthesizer, logger)

	promMetrics := metrics.New()

	api := &server{
		extract:  extractor,
		ingest:   ingestor,
		query:    querySvc,
		store:    store,
		registry: reg,
		metrics:  promMetrics,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/documents", api.handleUpload)
	mux.HandleFunc("GET /api/documents", api.handleListDocuments)
	mux.HandleFunc("GET /api/documents/{id}/entities", api.handleEntities)
	mux.HandleFunc("GET /api/documents/{id}/dump", api.handleDump)
	mux.HandleFunc("POST /api/query", api.handleQuery)
	mux.Handle("GET /metrics", promMetrics.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.Metrics(promMetrics),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("clause-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // uploads run extraction + embedding inline
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// breakerChat runs chat completions through a circuit breaker.
type breakerChat struct {
	breaker *resilience.Breaker
	inner   synth.ChatClient
}

func (b *breakerChat) Complete(ctx context.Context, system, user string) (string, error) {
	var reply string
	err := b.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		reply, err = b.inner.Complete(ctx, system, user)
		return err
	})
	return reply, err
}
