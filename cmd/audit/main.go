// Command audit dumps the stored vectors and payloads of a document
// collection as JSON, for inspecting what retrieval actually sees.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/clauseai/clause-engine/engine/semantic"
)

func main() {
	_ = godotenv.Load()

	var (
		qdrantAddr = flag.String("qdrant", envOr("QDRANT_URL", "localhost:6334"), "Qdrant gRPC address")
		docID      = flag.String("doc", "", "document ID to dump (empty lists documents)")
		vectors    = flag.Bool("vectors", false, "include raw vectors in the dump")
		timeout    = flag.Duration("timeout", 30*time.Second, "request timeout")
	)
	flag.Parse()

	store, err := semantic.New(*qdrantAddr, *timeout)
	if err != nil {
		fatal("qdrant connect: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *docID == "" {
		names, err := store.ListCollections(ctx)
		if err != nil {
			fatal("list collections: %v", err)
		}
		writeJSON(map[string]any{"documents": names})
		return
	}

	entries, err := store.Scroll(ctx, *docID)
	if err != nil {
		fatal("dump %s: %v", *docID, err)
	}
	if !*vectors {
		for i := range entries {
			entries[i].Vector = nil
		}
	}
	writeJSON(map[string]any{
		"document_id": *docID,
		"points":      len(entries),
		"entries":     entries,
	})
}

func writeJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal("encode: %v", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
