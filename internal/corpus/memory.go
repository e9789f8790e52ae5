// Package corpus provides rag.CorpusStore backends: an in-process store,
// SQLite, PostgreSQL with pgvector, and Qdrant. Open picks one from
// configuration.
//
// Every backend checks embedding length on write, assigns insertion
// sequence numbers, and publishes ReplaceAll in one step so readers see
// either the old corpus or the new one.
package corpus

import (
	"context"
	"slices"
	"sync"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// Memory is a rag.CorpusStore held in process memory. Writers build a new
// slice and swap it under the lock; readers copy the current one.
type Memory struct {
	mu      sync.RWMutex
	dim     int
	entries []rag.Entry
	nextSeq int64
}

// NewMemory returns an empty Memory store for vectors of length dim.
func NewMemory(dim int) *Memory {
	return &Memory{dim: dim, nextSeq: 1}
}

// Dimensions implements rag.CorpusStore.
func (m *Memory) Dimensions() int { return m.dim }

// ReplaceAll implements rag.CorpusStore.
func (m *Memory) ReplaceAll(_ context.Context, entries []rag.Entry) error {
	if err := rag.CheckDimensions(entries, m.dim); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make([]rag.Entry, 0, len(entries))
	seq := m.nextSeq
	for _, e := range entries {
		e.Seq = seq
		seq++
		next = append(next, cloneEntry(e))
	}
	m.entries = next
	m.nextSeq = seq
	return nil
}

// Add implements rag.CorpusStore.
func (m *Memory) Add(_ context.Context, entries []rag.Entry) error {
	if err := rag.CheckDimensions(entries, m.dim); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make([]rag.Entry, len(m.entries), len(m.entries)+len(entries))
	copy(next, m.entries)
	for _, e := range entries {
		e.Seq = m.nextSeq
		m.nextSeq++
		next = append(next, cloneEntry(e))
	}
	m.entries = next
	return nil
}

// DeleteForDocument implements rag.CorpusStore.
func (m *Memory) DeleteForDocument(_ context.Context, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make([]rag.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if e.Chunk.DocumentID != documentID {
			next = append(next, e)
		}
	}
	removed := len(m.entries) - len(next)
	m.entries = next
	return removed, nil
}

// ReplaceDocument implements rag.CorpusStore. The old chunks are dropped and
// the new ones appended in a single swap.
func (m *Memory) ReplaceDocument(_ context.Context, documentID string, entries []rag.Entry) (int, error) {
	if err := rag.CheckDimensions(entries, m.dim); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make([]rag.Entry, 0, len(m.entries)+len(entries))
	for _, e := range m.entries {
		if e.Chunk.DocumentID != documentID {
			next = append(next, e)
		}
	}
	removed := len(m.entries) - len(next)
	for _, e := range entries {
		e.Seq = m.nextSeq
		m.nextSeq++
		next = append(next, cloneEntry(e))
	}
	m.entries = next
	return removed, nil
}

// AllEntries implements rag.CorpusStore. Entries are already in Seq order.
func (m *Memory) AllEntries(_ context.Context) ([]rag.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.entries), nil
}

// Count implements rag.CorpusStore.
func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Close implements rag.CorpusStore.
func (m *Memory) Close() error { return nil }

func cloneEntry(e rag.Entry) rag.Entry {
	e.Embedding = slices.Clone(e.Embedding)
	return e
}
