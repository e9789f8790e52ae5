// Package index answers nearest-neighbour queries over a corpus store.
//
// Linear scans every entry and is exact; it serves the memory and SQLite
// backends. Stores that can rank natively (pgvector, Qdrant) implement
// rag.Index themselves and New hands them back unchanged.
package index

import (
	"context"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// Linear is an exact rag.Index that scores every stored entry.
type Linear struct {
	store rag.CorpusStore
}

// NewLinear returns a Linear index reading from store.
func NewLinear(store rag.CorpusStore) *Linear {
	return &Linear{store: store}
}

// New returns the best index for store: the store itself when it ranks
// natively, a Linear scan otherwise.
func New(store rag.CorpusStore) rag.Index {
	if ix, ok := store.(rag.Index); ok {
		return ix
	}
	return NewLinear(store)
}

// Nearest implements rag.Index. The filter is applied before the top-k cut
// so a selective filter still yields up to k hits.
func (l *Linear) Nearest(ctx context.Context, query []float32, k int, filter rag.Filter) ([]rag.Hit, error) {
	if k <= 0 {
		return []rag.Hit{}, nil
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	entries, err := l.store.AllEntries(ctx)
	if err != nil {
		return nil, err
	}

	hits := make([]rag.Hit, 0, len(entries))
	for _, e := range entries {
		if !filter.Matches(e.Chunk.Metadata) {
			continue
		}
		hits = append(hits, rag.Hit{Entry: e, Score: rag.Cosine(query, e.Embedding)})
	}
	rag.SortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}
