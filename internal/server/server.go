// Package server implements the HTTP server that exposes the AlBaqer
// retrieval service and gemstone assistant via a REST/SSE API.
// The server is started by the `albaqer serve` CLI command.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/agent"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/logging"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// New constructs a Server from the retrieval service, an optional
// assistant, and config. A nil assistant disables /api/ask.
func New(svc *rag.Service, assistant *agent.Assistant, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("server: retrieval service must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	applyDefaults(cfg)

	s := &Server{
		retriever: svc,
		cfg:       cfg,
		log:       cfg.Logger,
		pingers:   cfg.Pingers,
		metrics:   newServerMetrics(cfg.MetricsRegistry),
	}
	if assistant != nil {
		s.asker = assistant
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: ALBAQER_API_KEY not set, authentication disabled")
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.TrustProxy)
	rl.onReject = func(route string) { s.metrics.rateLimitedTotal.WithLabelValues(route).Inc() }
	s.stopRL = stop

	auth := newBearerAuth(cfg.APIKey)
	auth.onReject = func(route, reason string) {
		s.metrics.unauthorizedTotal.WithLabelValues(route, reason).Inc()
	}

	protect := func(name string, h http.HandlerFunc) http.Handler {
		return s.instrument(name, auth.middleware(name, rl.middleware(name, h)))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/search", protect("search", s.handleSearch))
	mux.Handle("POST /api/rag", protect("rag", s.handleRAG))
	mux.Handle("POST /api/ask", protect("ask", s.handleAsk))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must be long enough for streaming responses.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.AskTimeout == 0 {
		cfg.AskTimeout = 5 * time.Minute
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("albaqer server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleAsk handles POST /api/ask requests. It streams the assistant's reply
// using Server-Sent Events (SSE), followed by a "sources" event carrying the
// injected and cited sources.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.asker == nil {
		writeError(w, http.StatusServiceUnavailable, "assistant not configured", nil)
		return
	}
	var req askRequest
	if !s.decode(w, r, &req) {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported", nil)
		return
	}

	// Set SSE headers so the client receives a streaming response.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AskTimeout)
	defer cancel()

	s.metrics.askActiveStreams.Inc()
	defer s.metrics.askActiveStreams.Dec()
	start := time.Now()

	sw := &sseWriter{w: w, flusher: flusher}
	answer, err := s.asker.Ask(ctx, req.SessionID, req.Message, sw)

	outcome := "ok"
	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	s.metrics.askRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.askDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		logging.FromContext(r.Context()).Error("ask failed", slog.String("outcome", outcome), slog.Any("error", err))
		if payload, merr := json.Marshal(publicError(err)); merr == nil {
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
		}
		flusher.Flush()
		return
	}

	payload, err := json.Marshal(sourcesEvent{Sources: answer.Sources, Cited: answer.Cited})
	if err == nil {
		fmt.Fprintf(w, "event: sources\ndata: %s\n\n", payload)
	}
	// Signal stream completion.
	fmt.Fprintf(w, "event: done\ndata: [DONE]\n\n")
	flusher.Flush()
}

// sourcesEvent is the payload of the "sources" SSE event.
type sourcesEvent struct {
	Sources []rag.Source `json:"sources"`
	Cited   []rag.Source `json:"cited"`
}

// sseWriter wraps an http.ResponseWriter to emit Server-Sent Event data frames.
type sseWriter struct {
	// w is the underlying response writer.
	w http.ResponseWriter

	// flusher flushes buffered data to the client after each write.
	flusher http.Flusher
}

// Write formats p as one or more SSE data lines and flushes to the client.
// Each newline in p is prefixed with "data: " so multi-line chunks never
// break the SSE frame boundary.
func (s *sseWriter) Write(p []byte) (n int, err error) {
	chunk := strings.TrimRight(string(bytes.Clone(p)), "\n")
	lines := strings.Split(chunk, "\n")
	var buf strings.Builder
	for _, line := range lines {
		buf.WriteString("data: ")
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
	if _, err = fmt.Fprint(s.w, buf.String()); err != nil {
		return 0, err
	}
	s.flusher.Flush()
	return len(p), nil
}
