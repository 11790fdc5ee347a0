// Command chat is a terminal client for asking questions against an
// ingested contract. It lists the available documents, lets the user pick
// one, and answers questions with the retrieved clauses as sources.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/clauseai/clause-engine/engine/domain"
	"github.com/clauseai/clause-engine/engine/rag"
	"github.com/clauseai/clause-engine/engine/semantic"
	"github.com/clauseai/clause-engine/engine/synth"
	"github.com/clauseai/clause-engine/pkg/openai"
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
		qdrantAddr = flag.String("qdrant", envOr("QDRANT_URL", "localhost:6334"), "Qdrant gRPC address")
		docID      = flag.String("doc", "", "document ID (skips the picker)")
		limit      = flag.Int("limit", 0, "max chunks to retrieve (0 uses the default)")
		threshold  = flag.Float64("threshold", 0, "similarity threshold (0 uses the default)")
		verbose    = flag.Bool("v", false, "log requests")
	)
	flag.Parse()

	logLevel := slog.LevelWarn
	if *verbose {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "OPENAI_API_KEY is required")
		os.Exit(1)
	}

	store, err := semantic.New(*qdrantAddr, 0)
	if err != nil {
		fmt.Fprintln(os.Stderr, "qdrant connect failed:", err)
		os.Exit(1)
	}
	defer store.Close()

	ai := openai.NewClient(openai.Config{
		BaseURL:    envOr("OPENAI_BASE_URL", openai.DefaultBaseURL),
		APIKey:     apiKey,
		EmbedModel: envOr("EMBED_MODEL", openai.DefaultEmbedModel),
		ChatModel:  envOr("CHAT_MODEL", openai.DefaultChatModel),
	})
	querySvc := rag.New(ai, store, synth.New(ai, logger), logger)

	ctx := context.Background()
	in := bufio.NewScanner(os.Stdin)

	doc := *docID
	if doc == "" {
		doc, err = pickDocument(ctx, store, in)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	opts := rag.QueryOpts{Limit: *limit, ScoreThreshold: float32(*threshold)}
	repl(ctx, querySvc, doc, opts, in, os.Stdout)
}

func pickDocument(ctx context.Context, store *semantic.VectorStore, in *bufio.Scanner) (string, error) {
	names, err := store.ListCollections(ctx)
	if err != nil {
		return "", fmt.Errorf("list documents: %w", err)
	}
	if len(names) == 0 {
		return "", errors.New("no documents ingested yet")
	}

	fmt.Println("Available documents:")
	for i, n := range names {
		fmt.Printf("  [%d] %s\n", i+1, n)
	}
	fmt.Print("Pick a document: ")

	for in.Scan() {
		n, err := strconv.Atoi(strings.TrimSpace(in.Text()))
		if err == nil && n >= 1 && n <= len(names) {
			return names[n-1], nil
		}
		fmt.Printf("Enter a number between 1 and %d: ", len(names))
	}
	return "", errors.New("no document selected")
}

func repl(ctx context.Context, svc *rag.Service, docID string, opts rag.QueryOpts, in *bufio.Scanner, out io.Writer) {
	fmt.Fprintf(out, "Chatting with %s. Type a question, /entities, or /quit.\n", docID)

	for {
		fmt.Fprint(out, "> ")
		if !in.Scan() {
			return
		}
		line := strings.TrimSpace(in.Text())
		switch {
		case line == "":
			continue
		case line == "/quit", line == "/exit":
			return
		case line == "/entities":
			answer, err := svc.ExtractEntities(ctx, docID, nil, rag.QueryOpts{})
			printAnswer(out, answer, err)
		default:
			answer, err := svc.Ask(ctx, docID, line, opts)
			printAnswer(out, answer, err)
		}
	}
}

func printAnswer(out io.Writer, answer rag.Answer, err error) {
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrDocumentNotFound):
			fmt.Fprintln(out, "That document has not been processed yet.")
		case errors.Is(err, domain.ErrUpstreamTimeout), errors.Is(err, domain.ErrUpstreamUnavailable):
			fmt.Fprintln(out, "Upstream is unavailable, try again shortly.")
		default:
			fmt.Fprintln(out, "Error:", err)
		}
		return
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, answer.Text)
	if len(answer.Sources) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Sources:")
		for i, s := range answer.Sources {
			fmt.Fprintf(out, "  [%d] score %.3f: %s\n", i+1, s.Score, excerpt(s.Text, 120))
		}
	}
	fmt.Fprintln(out)
}

func excerpt(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
