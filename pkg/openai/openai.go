// Package openai is a minimal client for OpenAI-compatible embeddings and
// chat-completions endpoints. Requests are rate limited client-side and
// embedding inputs are checked against the model's token budget before they
// leave the process.
package openai

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL targets the hosted OpenAI API. Any compatible server
	// (LM Studio, vLLM, LiteLLM proxies) works via Config.BaseURL.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultEmbedModel matches the model the stored collections were
	// built with; changing it invalidates existing collections.
	DefaultEmbedModel = "text-embedding-ada-002"

	// DefaultChatModel is the synthesis model.
	DefaultChatModel = "gpt-4"

	// maxEmbedTokens is the input budget of the embedding models.
	maxEmbedTokens = 8191

	defaultTimeout = 60 * time.Second
	defaultRPS     = 5
)

// Config configures a Client. Zero values select the defaults above; only
// APIKey is required.
type Config struct {
	BaseURL    string
	APIKey     string
	EmbedModel string
	ChatModel  string
	Timeout    time.Duration

	// RequestsPerSecond caps outbound calls; embedding a large document is
	// many requests in a tight loop.
	RequestsPerSecond float64
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.EmbedModel == "" {
		c.EmbedModel = DefaultEmbedModel
	}
	if c.ChatModel == "" {
		c.ChatModel = DefaultChatModel
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = defaultRPS
	}
	return c
}

// Client talks to one OpenAI-compatible server. Safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
}
