package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/nats-io/nats.go"
)

const (
	// IngestSubject is the NATS subject for document ingestion requests.
	IngestSubject = "clause.ingest"
	// DLQSubject receives requests that exhausted their retries.
	DLQSubject = "clause.ingest.dlq"
	// MaxRetries before a request is parked on the DLQ.
	MaxRetries = 3

	retryHeader = "X-Retry-Count"
)

// Request is the wire format of an ingestion message.
type Request struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
}

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Request Request `json:"request"`
	Error   string  `json:"error"`
	Retries int     `json:"retries"`
}

// StartConsumer subscribes the service to the ingestion subject. Failed
// requests are re-published with an incremented retry header and parked on
// the DLQ after MaxRetries. When the request carries a reply subject, the
// receipt is sent back as JSON.
func StartConsumer(nc *nats.Conn, svc *Service, logger *slog.Logger) (*nats.Subscription, error) {
	if logger == nil {
		logger = slog.Default()
	}

	return nc.Subscribe(IngestSubject, func(msg *nats.Msg) {
		var req Request
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			logger.Error("ingest: unmarshal failed", "error", err)
			return
		}

		ctx := context.Background()

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get(retryHeader); v != "" {
				retries, _ = strconv.Atoi(v)
			}
		}

		receipt, err := svc.Ingest(ctx, req.DocumentID, req.Text)
		if err != nil {
			retries++
			logger.Error("ingest: pipeline failed",
				"error", err,
				"document_id", req.DocumentID,
				"retry", retries,
			)

			if retries >= MaxRetries {
				dlq := dlqMessage{Request: req, Error: err.Error(), Retries: retries}
				data, _ := json.Marshal(dlq)
				if pubErr := nc.Publish(DLQSubject, data); pubErr != nil {
					logger.Error("ingest: DLQ publish failed", "error", pubErr)
				}
				return
			}

			retryMsg := nats.NewMsg(IngestSubject)
			retryMsg.Data = msg.Data
			retryMsg.Header = nats.Header{}
			retryMsg.Header.Set(retryHeader, strconv.Itoa(retries))
			if pubErr := nc.PublishMsg(retryMsg); pubErr != nil {
				logger.Error("ingest: retry publish failed", "error", pubErr)
			}
			return
		}

		logger.Info("ingest: done", "document_id", receipt.DocID, "chunks", receipt.Chunks)
		if msg.Reply != "" {
			data, _ := json.Marshal(receipt)
			_ = msg.Respond(data)
		}
	})
}
