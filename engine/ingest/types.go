package ingest

// Job is one document handed to the ingestion pipeline.
type Job struct {
	DocID string
	Text  string
}

// ChunkedJob is a job split into embeddable chunks.
type ChunkedJob struct {
	Job
	Chunks []string
}

// EmbeddedJob is a chunked job with embeddings attached.
type EmbeddedJob struct {
	ChunkedJob
	Vectors [][]float32
	Dims    int
}

// Receipt reports a completed ingestion.
type Receipt struct {
	DocID  string `json:"document_id"`
	Chunks int    `json:"chunks"`
}
