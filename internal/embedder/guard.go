package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/budget"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// Overflow selects what happens to text longer than the embedding budget.
type Overflow string

const (
	// OverflowReject fails the call with rag.ErrContentTooLong.
	OverflowReject Overflow = "reject"
	// OverflowTruncate cuts the text at the budget and logs the cut.
	OverflowTruncate Overflow = "truncate"
)

// GuardConfig configures a Guard.
type GuardConfig struct {
	// MaxTokens is the per-text input budget. Zero disables the check.
	MaxTokens int

	// Overflow is the over-budget policy. Defaults to OverflowReject.
	Overflow Overflow

	// Timeout bounds each call to the wrapped embedder. Zero means no bound
	// beyond the caller's context.
	Timeout time.Duration

	// Counter measures tokens. Defaults to budget.Heuristic.
	Counter budget.Counter

	// Logger receives truncation warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// Guard wraps a backend embedder with the engine's input and output rules:
// the length policy, a per-call timeout, a dimension check, and unit-length
// normalization.
type Guard struct {
	inner     rag.Embedder
	maxTokens int
	overflow  Overflow
	timeout   time.Duration
	counter   budget.Counter
	log       *slog.Logger
}

// NewGuard wraps inner.
func NewGuard(inner rag.Embedder, cfg *GuardConfig) (*Guard, error) {
	if inner == nil {
		return nil, fmt.Errorf("embedder: inner embedder must not be nil")
	}
	if cfg == nil {
		cfg = &GuardConfig{}
	}
	g := &Guard{
		inner:     inner,
		maxTokens: cfg.MaxTokens,
		overflow:  cfg.Overflow,
		timeout:   cfg.Timeout,
		counter:   cfg.Counter,
		log:       cfg.Logger,
	}
	switch g.overflow {
	case "":
		g.overflow = OverflowReject
	case OverflowReject, OverflowTruncate:
	default:
		return nil, fmt.Errorf("embedder: unknown overflow policy %q (valid: reject, truncate)", cfg.Overflow)
	}
	if g.counter == nil {
		g.counter = budget.Heuristic{}
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	return g, nil
}

// Dimensions implements rag.Embedder.
func (g *Guard) Dimensions() int { return g.inner.Dimensions() }

// Embed implements rag.Embedder.
func (g *Guard) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	prepared, err := g.applyBudget(texts)
	if err != nil {
		return nil, err
	}

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	vecs, err := g.inner.Embed(callCtx, prepared)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("embedder: timed out after %s: %w: %w", g.timeout, context.DeadlineExceeded, err)
		}
		return nil, fmt.Errorf("embedder: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder: backend returned %d vectors for %d texts", len(vecs), len(texts))
	}

	dim := g.inner.Dimensions()
	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("embedder: %w: vector %d has %d dimensions, expected %d",
				rag.ErrDimensionMismatch, i, len(v), dim)
		}
		out[i] = rag.Normalize(append([]float32(nil), v...))
	}
	return out, nil
}

// applyBudget enforces the overflow policy on every text.
func (g *Guard) applyBudget(texts []string) ([]string, error) {
	if g.maxTokens <= 0 {
		return texts, nil
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		n := g.counter.Count(t)
		if n <= g.maxTokens {
			out[i] = t
			continue
		}
		if g.overflow == OverflowReject {
			return nil, fmt.Errorf("embedder: text %d: %w: %d tokens exceeds limit of %d",
				i, rag.ErrContentTooLong, n, g.maxTokens)
		}
		cut, at := g.counter.Truncate(t, g.maxTokens)
		g.log.Warn("embedder: truncated input to token budget",
			slog.Int("index", i),
			slog.Int("tokens", n),
			slog.Int("max_tokens", g.maxTokens),
			slog.Int("truncated_at_rune", at),
		)
		out[i] = cut
	}
	return out, nil
}
