// Package synth turns retrieved context chunks into answers via a chat LLM.
// It owns the prompt templates for the two supported tasks.
package synth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clauseai/clause-engine/engine/domain"
)

// Mode selects the prompt template.
type Mode string

const (
	// ModeGeneralQuery answers a free-form question over the context.
	ModeGeneralQuery Mode = "general_query"
	// ModeEntityExtraction extracts a fixed entity list as JSON.
	ModeEntityExtraction Mode = "entity_extraction"
)

// NoAnswer is the verbatim reply the model is instructed to give when the
// context does not contain the answer.
const NoAnswer = "The answer is not available in the provided context."

const systemPrompt = "You are a helpful assistant specialized in contracts."

const entityPromptFmt = `You are an advanced entity extractor. Your task is to extract specific entities
from the context chunks of the document. These chunks are representative of the document and
have been retrieved using cosine similarity.

DOCUMENT TYPE: General Contract

ENTITIES TO EXTRACT:
%s

CONTEXT CHUNKS TO ANALYZE:
%s

Please provide your extracted entities in the following JSON format:
{
    "extracted_entities": {
        "entity_name": "extracted_value",
        "entity_name_2": "extracted_value_2",
        ...
    }
}

Remember:
1. Extract only the specified entities relevant to the document type.
2. If an entity is not found, set its value as "None".
3. The extracted values must be directly based on the provided context chunks.

Extraction:`

const queryPromptFmt = `You are a legal assistant specialized in contracts. Your task is to answer the user's
query based on the provided context chunks of the contract. Analyze the context carefully and
provide a precise and accurate response to the query. If the answer cannot be determined from the
provided context, say so explicitly.

QUERY:
%s

CONTEXT CHUNKS TO ANALYZE:
%s

RESPONSE INSTRUCTIONS:
1. Use only the information provided in the context chunks to answer the query.
2. If the query cannot be answered from the provided context, respond with: "` + NoAnswer + `"
3. Be concise, clear, and formal in your response.
4. Do not infer information that is not explicitly stated in the context.

RESPONSE:`

// Request is one synthesis task.
type Request struct {
	Mode          Mode
	Query         string   // required for ModeGeneralQuery
	Entities      []string // required for ModeEntityExtraction
	ContextChunks []string
}

// ChatClient is the chat-completion backend.
type ChatClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// LLM renders prompts and delegates to a ChatClient.
type LLM struct {
	client ChatClient
	logger *slog.Logger
}

// New creates an LLM synthesizer. A nil logger discards logs.
func New(client ChatClient, logger *slog.Logger) *LLM {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LLM{client: client, logger: logger}
}

// Synthesize validates the request, renders the mode's prompt, and returns
// the model's reply. Validation fails before any model call.
func (l *LLM) Synthesize(ctx context.Context, req Request) (string, error) {
	prompt, err := renderPrompt(req)
	if err != nil {
		return "", err
	}

	reply, err := l.client.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return "", domain.ClassifyUpstream(fmt.Sprintf("synth: %s completion", req.Mode), err)
	}
	l.logger.Debug("synthesis complete", "mode", string(req.Mode), "chunks", len(req.ContextChunks), "reply_len", len(reply))
	return strings.TrimSpace(reply), nil
}

func renderPrompt(req Request) (string, error) {
	contextBlock := strings.Join(req.ContextChunks, "\n\n")
	switch req.Mode {
	case ModeEntityExtraction:
		if len(req.Entities) == 0 {
			return "", fmt.Errorf("synth: %w", domain.ErrEmptyEntityList)
		}
		return fmt.Sprintf(entityPromptFmt, strings.Join(req.Entities, "\n"), contextBlock), nil
	case ModeGeneralQuery:
		if strings.TrimSpace(req.Query) == "" {
			return "", fmt.Errorf("synth: %w", domain.ErrEmptyQuery)
		}
		return fmt.Sprintf(queryPromptFmt, req.Query, contextBlock), nil
	default:
		return "", domain.NewConfigError("mode", string(req.Mode), fmt.Errorf("unsupported synthesis mode"))
	}
}
