package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/config"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/logging"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// handleSearch handles POST /api/search. It returns raw ranked hits; no
// relevance floor is applied.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decode(w, r, &req) {
		return
	}
	topK := req.TopK
	if topK == 0 {
		topK = rag.DefaultTopK
	}

	start := time.Now()
	hits, err := s.retriever.Search(r.Context(), req.Query, topK, req.Filter)
	s.observeSearch("search", start, err)
	if err != nil {
		s.writeRetrievalError(w, r, err)
		return
	}

	resp := searchResponse{Query: req.Query, Results: make([]searchResult, 0, len(hits))}
	for _, h := range hits {
		c := h.Entry.Chunk
		resp.Results = append(resp.Results, searchResult{
			DocumentID:  c.DocumentID,
			Title:       c.Title,
			Content:     c.Text,
			Category:    c.Metadata.Category,
			ContentType: c.Metadata.ContentType,
			Score:       h.Score,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRAG handles POST /api/rag and returns the assembled context block.
func (s *Server) handleRAG(w http.ResponseWriter, r *http.Request) {
	var req ragRequest
	if !s.decode(w, r, &req) {
		return
	}

	start := time.Now()
	resp, err := s.retriever.RAGQuery(r.Context(), req.Question, req.Filter)
	s.observeSearch("rag", start, err)
	if err != nil {
		s.writeRetrievalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// decode reads a size-limited JSON body into v and validates it. On failure
// it writes a 400 (or 413) response and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", nil)
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return false
	}
	if err := config.Validate(v); err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, "invalid request", verr.Fields)
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return false
	}
	return true
}

// statusFor maps a retrieval error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, rag.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, rag.ErrContentTooLong):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, rag.ErrCorpusUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, rag.ErrRetrievalFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeRetrievalError logs err and writes the mapped status. Client errors
// echo the message; server errors return only the status text.
func (s *Server) writeRetrievalError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("retrieval failed", slog.Int("status", status), slog.Any("error", err))
		writeError(w, status, http.StatusText(status), nil)
		return
	}
	log.Warn("retrieval rejected", slog.Int("status", status), slog.Any("error", err))
	writeError(w, status, err.Error(), nil)
}

// publicError is the client-facing form of err: the mapped status and, for
// client errors only, the error text. Server-side failures carry just the
// status text so backend details stay in the logs.
func publicError(err error) streamError {
	status := statusFor(err)
	msg := http.StatusText(status)
	if status < http.StatusInternalServerError {
		msg = err.Error()
	}
	return streamError{Error: msg, Status: status}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, fields map[string]string) {
	writeJSON(w, status, errorResponse{Error: msg, Fields: fields})
}
