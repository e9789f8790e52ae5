// Package budget counts tokens for two consumers: the embedder guard, which
// enforces the embedding model's input limit, and the assistant, which trims
// chat history to fit the LLM context window.
//
// Counting uses a tiktoken encoding when one can be loaded and otherwise a
// conservative heuristic of 1 token per 4 characters.
package budget

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
	"github.com/pkoukk/tiktoken-go"
)

const (
	// charsPerToken is the heuristic character-to-token ratio.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget for the
	// assistant, small enough for 8k-context models.
	DefaultMaxContextTokens = 6000

	// DefaultEncoding is the tiktoken encoding used when none is configured.
	DefaultEncoding = "cl100k_base"
)

// Counter measures and cuts text in tokens.
type Counter interface {
	// Count returns the number of tokens in s.
	Count(s string) int

	// Truncate returns the longest prefix of s that fits in max tokens and
	// the rune offset at which s was cut. When s already fits, it is
	// returned unchanged with its full rune length.
	Truncate(s string, max int) (string, int)
}

// Heuristic is the character-ratio Counter.
type Heuristic struct{}

// Count implements Counter.
func (Heuristic) Count(s string) int { return Estimate(s) }

// Truncate implements Counter. It cuts at max*4 runes.
func (Heuristic) Truncate(s string, max int) (string, int) {
	limit := max * charsPerToken
	if limit < 0 {
		limit = 0
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i], n
		}
		n++
	}
	return s, n
}

// TokenCounter counts with a tiktoken BPE encoding.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter loads the named tiktoken encoding. Loading may need to
// fetch the BPE ranks on first use (cached under TIKTOKEN_CACHE_DIR).
func NewTokenCounter(encoding string) (*TokenCounter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TokenCounter{enc: enc}, nil
}

// Count implements Counter.
func (c *TokenCounter) Count(s string) int {
	return len(c.enc.Encode(s, nil, nil))
}

// Truncate implements Counter. The cut lands on a token boundary, moved
// back to the nearest rune boundary when a token splits a character.
func (c *TokenCounter) Truncate(s string, max int) (string, int) {
	tokens := c.enc.Encode(s, nil, nil)
	if len(tokens) <= max {
		return s, utf8.RuneCountInString(s)
	}
	if max <= 0 {
		return "", 0
	}
	prefix := c.enc.Decode(tokens[:max])
	for len(prefix) > 0 && !utf8.ValidString(prefix) {
		prefix = prefix[:len(prefix)-1]
	}
	return prefix, utf8.RuneCountInString(prefix)
}

var (
	counterMu    sync.Mutex
	counterCache = map[string]Counter{}
)

// NewCounter returns a TokenCounter for encoding, or the Heuristic if the
// encoding cannot be loaded. Loaded encodings are shared process-wide.
func NewCounter(encoding string, log *slog.Logger) Counter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	counterMu.Lock()
	defer counterMu.Unlock()
	if c, ok := counterCache[encoding]; ok {
		return c
	}
	tc, err := NewTokenCounter(encoding)
	if err != nil {
		if log != nil {
			log.Warn("budget: tiktoken encoding unavailable, using character heuristic",
				slog.String("encoding", encoding),
				slog.Any("error", err),
			)
		}
		return Heuristic{}
	}
	counterCache[encoding] = tc
	return tc
}

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages sums the estimated tokens of each message's role and
// content plus a fixed per-message overhead of 4.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// TrimHistory drops the oldest history messages until fixed plus history
// fits in maxTokens. fixed is never trimmed; if it alone exceeds the
// budget, an empty history is returned.
func TrimHistory(fixed, history []*schema.Message, maxTokens int) []*schema.Message {
	if len(history) == 0 {
		return history
	}
	fixedTokens := EstimateMessages(fixed)
	for len(history) > 0 && fixedTokens+EstimateMessages(history) > maxTokens {
		history = history[1:]
	}
	return history
}
