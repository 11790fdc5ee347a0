package semantic

// Record is a single vector to store, one per chunk.
type Record struct {
	ID      string
	Vector  []float32
	Payload map[string]any // text, chunk_index
}

// SearchResult is a single similarity-search hit.
type SearchResult struct {
	ID         string  `json:"id"`
	Score      float32 `json:"score"`
	Text       string  `json:"text"`
	ChunkIndex int64   `json:"chunk_index"`
}

// DumpEntry is one point from a full-collection scroll.
type DumpEntry struct {
	Vector []float32 `json:"vector,omitempty"`
	Text   string    `json:"text"`
}
