package embedder

import (
	"context"
	"hash/fnv"
	"maps"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// HashingEmbedder is a local, deterministic embedder. Each non-stopword
// token is hashed into one of dim buckets and weighted by sublinear term
// frequency (1 + ln tf). It needs no model files or network and is the
// default backend for development and tests.
type HashingEmbedder struct {
	dim       int
	tokens    *regexp.Regexp
	stopwords map[string]struct{}
}

// NewHashingEmbedder returns a HashingEmbedder producing vectors of length dim.
func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = defaultLocalDimensions
	}
	return &HashingEmbedder{
		dim:       dim,
		tokens:    regexp.MustCompile(`[\p{L}\p{N}]+(?:['’]\p{L}+)*`),
		stopwords: defaultStopwords(),
	}
}

// Dimensions implements rag.Embedder.
func (e *HashingEmbedder) Dimensions() int { return e.dim }

// Embed implements rag.Embedder. Text with no indexable tokens maps to the
// zero vector, which scores 0 against everything.
func (e *HashingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *HashingEmbedder) vector(text string) []float32 {
	tf := make(map[string]int)
	for _, tok := range e.tokens.FindAllString(strings.ToLower(text), -1) {
		if _, stop := e.stopwords[tok]; stop {
			continue
		}
		tf[tok]++
	}

	// Float addition is not associative, so buckets are filled in token
	// order to keep vectors bit-identical across runs.
	v := make([]float32, e.dim)
	for _, tok := range slices.Sorted(maps.Keys(tf)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		v[h.Sum32()%uint32(e.dim)] += float32(1 + math.Log(float64(tf[tok])))
	}
	return rag.Normalize(v)
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at",
		"by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that",
		"these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so",
		"such", "into", "about", "between", "through", "during", "before", "after", "above", "below",
		"out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
