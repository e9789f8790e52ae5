package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/agent"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// AskTimeout bounds a single /api/ask stream (default: 5m).
	AskTimeout time.Duration
	// MaxBodyBytes caps request bodies on the JSON endpoints (default: 64 KiB).
	MaxBodyBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// TrustProxy keys rate limiting on X-Forwarded-For. Set it only when the
	// server is reachable solely through a trusted reverse proxy.
	TrustProxy bool
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// retriever is the retrieval surface the JSON endpoints call.
// *rag.Service satisfies it; tests inject a fake.
type retriever interface {
	Search(ctx context.Context, query string, topK int, filter rag.Filter) ([]rag.Hit, error)
	RAGQuery(ctx context.Context, question string, filter rag.Filter) (*rag.RAGResponse, error)
}

// asker is the interface handleAsk calls to stream a reply.
// *agent.Assistant satisfies it; tests inject a fake.
type asker interface {
	Ask(ctx context.Context, sessionID, question string, w io.Writer) (*agent.Answer, error)
}

// Server is the HTTP server in front of the retrieval service and the
// assistant.
type Server struct {
	// retriever answers /api/search and /api/rag.
	retriever retriever
	// asker answers /api/ask. Nil when no chat model is configured.
	asker asker
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// searchRequest is the JSON body for POST /api/search.
type searchRequest struct {
	// Query is the free-text search query.
	Query string `json:"query" validate:"required,max=4000"`
	// TopK is the number of hits to return; zero selects rag.DefaultTopK.
	TopK int `json:"top_k" validate:"gte=0,lte=50"`
	// Filter restricts hits by exact metadata equality.
	Filter rag.Filter `json:"filter,omitempty"`
}

// searchResult is one hit in a searchResponse.
type searchResult struct {
	DocumentID  string  `json:"document_id"`
	Title       string  `json:"title"`
	Content     string  `json:"content"`
	Category    string  `json:"category"`
	ContentType string  `json:"content_type"`
	Score       float64 `json:"score"`
}

// searchResponse is the JSON response for POST /api/search.
type searchResponse struct {
	Query   string         `json:"query"`
	Results []searchResult `json:"results"`
}

// ragRequest is the JSON body for POST /api/rag.
type ragRequest struct {
	// Question is the customer question to retrieve context for.
	Question string `json:"question" validate:"required,max=4000"`
	// Filter restricts hits by exact metadata equality.
	Filter rag.Filter `json:"filter,omitempty"`
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// Message is the customer's question.
	Message string `json:"message" validate:"required,max=4000"`
	// SessionID keys the conversation history. Empty means stateless.
	SessionID string `json:"session_id" validate:"omitempty,max=128"`
}

// errorResponse is the JSON body of every non-2xx JSON response.
// streamError is the payload of the "error" SSE event on /api/ask.
type streamError struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// errorResponse is the JSON body of every non-2xx reply.
type errorResponse struct {
	Error string `json:"error"`
	// Fields lists per-field validation failures, when any.
	Fields map[string]string `json:"fields,omitempty"`
}
