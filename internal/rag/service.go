package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/logging"
)

// Defaults applied by NewService when the corresponding config field is zero.
const (
	DefaultTopK       = 3
	DefaultMaxSources = 3
	DefaultMinScore   = 0.3
)

// ServiceConfig tunes the caller-facing entry points. Search itself is not
// affected by any of these.
type ServiceConfig struct {
	// DefaultTopK is used by SemanticSearch when the caller passes top_k <= 0.
	DefaultTopK int

	// MaxSources bounds how many hits RAGQuery retrieves and assembles.
	MaxSources int

	// MinScore is the relevance floor RAGQuery applies before assembling
	// context. Nil means DefaultMinScore and a negative value disables the
	// floor; zero keeps every hit that is not anti-correlated.
	MinScore *float64
}

// Service is the retrieval engine's public entry point. It is constructed
// once per process and is safe for concurrent use.
type Service struct {
	embedder Embedder
	index    Index

	defaultTopK int
	maxSources  int
	minScore    float64
}

// NewService constructs a Service over the given embedder and index.
func NewService(embedder Embedder, index Index, cfg *ServiceConfig) (*Service, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("rag: index must not be nil")
	}
	if cfg == nil {
		cfg = &ServiceConfig{}
	}
	s := &Service{
		embedder:    embedder,
		index:       index,
		defaultTopK: cfg.DefaultTopK,
		maxSources:  cfg.MaxSources,
		minScore:    DefaultMinScore,
	}
	if s.defaultTopK <= 0 {
		s.defaultTopK = DefaultTopK
	}
	if s.maxSources <= 0 {
		s.maxSources = DefaultMaxSources
	}
	if cfg.MinScore != nil {
		s.minScore = *cfg.MinScore
	}
	return s, nil
}

// Search embeds query and returns at most topK hits satisfying filter,
// ranked by decreasing cosine similarity. Scores are returned raw; no
// result is dropped for scoring low. An empty corpus, topK <= 0, or a
// filter matching nothing all yield an empty slice.
func (s *Service) Search(ctx context.Context, query string, topK int, filter Filter) ([]Hit, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("rag: search: %w", err)
	}
	if topK <= 0 {
		return []Hit{}, nil
	}

	start := time.Now()
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: search: %w: embed query: %w", ErrRetrievalFailed, err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("rag: search: %w: embedder returned %d vectors for 1 query", ErrRetrievalFailed, len(vecs))
	}
	if n, want := len(vecs[0]), s.embedder.Dimensions(); n != want {
		return nil, fmt.Errorf("rag: search: %w: %w: query has %d dimensions, embedder declares %d",
			ErrRetrievalFailed, ErrDimensionMismatch, n, want)
	}

	hits, err := s.index.Nearest(ctx, vecs[0], topK, filter)
	if err != nil {
		if errors.Is(err, ErrCorpusUnavailable) {
			return nil, fmt.Errorf("rag: search: %w", err)
		}
		return nil, fmt.Errorf("rag: search: %w: nearest: %w", ErrRetrievalFailed, err)
	}
	if hits == nil {
		hits = []Hit{}
	}

	logging.FromContext(ctx).Debug("rag: search complete",
		slog.Int("top_k", topK),
		slog.Int("hits", len(hits)),
		slog.Int("filter_keys", len(filter)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return hits, nil
}

// KnowledgeResult is the shape returned by SemanticSearch.
type KnowledgeResult struct {
	Title          string  `json:"title"`
	Content        string  `json:"content"`
	Category       string  `json:"category"`
	RelevanceScore float64 `json:"relevance_score"`
}

// SemanticSearch is the flat search entry point used by tools. topK <= 0
// selects the configured default. The result is never nil.
func (s *Service) SemanticSearch(ctx context.Context, topic string, topK int) ([]KnowledgeResult, error) {
	if topK <= 0 {
		topK = s.defaultTopK
	}
	hits, err := s.Search(ctx, topic, topK, nil)
	if err != nil {
		return nil, err
	}
	out := make([]KnowledgeResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, KnowledgeResult{
			Title:          h.Entry.Chunk.Title,
			Content:        h.Entry.Chunk.Text,
			Category:       h.Entry.Chunk.Metadata.Category,
			RelevanceScore: h.Score,
		})
	}
	return out, nil
}

// RAGResponse is the shape returned by RAGQuery.
type RAGResponse struct {
	Question   string   `json:"question"`
	Context    string   `json:"context"`
	Sources    []Source `json:"sources"`
	NumSources int      `json:"num_sources"`
}

// RAGQuery retrieves context for question. Hits scoring below the
// configured minimum relevance are treated as no match; when nothing
// remains the context is NoContext and Sources is empty.
func (s *Service) RAGQuery(ctx context.Context, question string, filter Filter) (*RAGResponse, error) {
	hits, err := s.Search(ctx, question, s.maxSources, filter)
	if err != nil {
		return nil, err
	}

	kept := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if s.minScore < 0 || h.Score >= s.minScore {
			kept = append(kept, h)
		}
	}
	if dropped := len(hits) - len(kept); dropped > 0 {
		logging.FromContext(ctx).Debug("rag: hits below relevance floor",
			slog.Int("dropped", dropped),
			slog.Float64("min_score", s.minScore),
		)
	}

	text, sources := Assemble(kept, s.maxSources)
	return &RAGResponse{
		Question:   question,
		Context:    text,
		Sources:    sources,
		NumSources: len(sources),
	}, nil
}

// MinScore reports the relevance floor RAGQuery applies.
func (s *Service) MinScore() float64 { return s.minScore }
