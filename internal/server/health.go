package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/logging"
)

// probeTimeout bounds each dependency probe run by GET /api/ready.
const probeTimeout = 5 * time.Second

// Pinger is implemented by every dependency that can report its own
// reachability: the corpus store, the embedder, Postgres, Qdrant and the
// Redis embedding cache. Implementations must be safe for concurrent use.
type Pinger interface {
	// Ping returns nil when the dependency is usable.
	Ping(ctx context.Context) error
	// Name labels the dependency in readiness output, e.g. "corpus".
	Name() string
}

// Check is the outcome of probing one dependency.
type Check struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Probe runs every pinger concurrently, each under its own timeout, and
// returns the checks in the order the pingers were given.
func Probe(ctx context.Context, pingers []Pinger, timeout time.Duration) []Check {
	checks := make([]Check, len(pingers))
	var wg sync.WaitGroup
	for i, p := range pingers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			start := time.Now()
			err := p.Ping(pctx)
			checks[i] = Check{
				Name:      p.Name(),
				OK:        err == nil,
				LatencyMS: time.Since(start).Milliseconds(),
			}
			if err != nil {
				checks[i].Error = err.Error()
			}
		}()
	}
	wg.Wait()
	return checks
}

// readyResponse is the JSON body returned by GET /api/ready.
type readyResponse struct {
	Ready  bool    `json:"ready"`
	Checks []Check `json:"checks"`
}

// handleHealth is the liveness probe. It never touches a dependency.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports 200 when every dependency answers and 503 otherwise.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := Probe(r.Context(), s.pingers, probeTimeout)

	resp := readyResponse{Ready: true, Checks: checks}
	for _, c := range checks {
		if !c.OK {
			resp.Ready = false
			logging.FromContext(r.Context()).Warn("readiness probe failed",
				slog.String("dependency", c.Name),
				slog.String("error", c.Error),
			)
		}
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
