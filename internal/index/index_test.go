package index

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type sliceStore struct {
	entries []rag.Entry
	err     error
}

func (s *sliceStore) Dimensions() int                               { return 2 }
func (s *sliceStore) ReplaceAll(context.Context, []rag.Entry) error { return nil }
func (s *sliceStore) Add(context.Context, []rag.Entry) error        { return nil }
func (s *sliceStore) DeleteForDocument(context.Context, string) (int, error) {
	return 0, nil
}
func (s *sliceStore) ReplaceDocument(context.Context, string, []rag.Entry) (int, error) {
	return 0, nil
}
func (s *sliceStore) AllEntries(context.Context) ([]rag.Entry, error) { return s.entries, s.err }
func (s *sliceStore) Count(context.Context) (int, error)              { return len(s.entries), s.err }
func (s *sliceStore) Close() error                                    { return nil }

// nativeStore ranks by itself.
type nativeStore struct{ sliceStore }

func (nativeStore) Nearest(context.Context, []float32, int, rag.Filter) ([]rag.Hit, error) {
	return nil, nil
}

func entry(seq int64, category string, vec ...float32) rag.Entry {
	return rag.Entry{
		ID:        string(rune('a' + seq)),
		Seq:       seq,
		Chunk:     rag.Chunk{Metadata: rag.Metadata{Category: category}},
		Embedding: vec,
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestNew_PrefersNativeIndex(t *testing.T) {
	t.Parallel()

	if _, ok := New(&sliceStore{}).(*Linear); !ok {
		t.Error("plain store should get a Linear index")
	}
	ns := &nativeStore{}
	if ix := New(ns); ix != rag.Index(ns) {
		t.Error("native store should be returned as its own index")
	}
}

func TestLinear_EmptyAndZeroK(t *testing.T) {
	t.Parallel()

	hits, err := NewLinear(&sliceStore{}).Nearest(context.Background(), []float32{1, 0}, 3, nil)
	if err != nil || hits == nil || len(hits) != 0 {
		t.Fatalf("empty corpus: got %v, %v", hits, err)
	}

	s := &sliceStore{entries: []rag.Entry{entry(1, "stones", 1, 0)}}
	hits, err = NewLinear(s).Nearest(context.Background(), []float32{1, 0}, 0, nil)
	if err != nil || hits == nil || len(hits) != 0 {
		t.Fatalf("k=0: got %v, %v", hits, err)
	}
}

func TestLinear_OrdersAndBounds(t *testing.T) {
	t.Parallel()

	s := &sliceStore{entries: []rag.Entry{
		entry(1, "stones", 0, 1),
		entry(2, "stones", 1, 0),
		entry(3, "stones", 1, 1),
	}}
	hits, err := NewLinear(s).Nearest(context.Background(), []float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].Entry.Seq != 2 || hits[1].Entry.Seq != 3 {
		t.Errorf("order = %d,%d want 2,3", hits[0].Entry.Seq, hits[1].Entry.Seq)
	}
	if hits[0].Score < hits[1].Score {
		t.Error("scores not descending")
	}
}

func TestLinear_TieBreaksOnSeq(t *testing.T) {
	t.Parallel()

	s := &sliceStore{entries: []rag.Entry{
		entry(5, "stones", 1, 0),
		entry(2, "stones", 1, 0),
		entry(9, "stones", 1, 0),
	}}
	hits, _ := NewLinear(s).Nearest(context.Background(), []float32{1, 0}, 3, nil)
	for i, want := range []int64{2, 5, 9} {
		if hits[i].Entry.Seq != want {
			t.Errorf("hits[%d].Seq = %d, want %d", i, hits[i].Entry.Seq, want)
		}
	}
}

func TestLinear_FilterBeforeTopK(t *testing.T) {
	t.Parallel()

	s := &sliceStore{entries: []rag.Entry{
		entry(1, "stones", 1, 0),
		entry(2, "stones", 1, 0.1),
		entry(3, "care", 0, 1),
	}}
	hits, err := NewLinear(s).Nearest(context.Background(), []float32{1, 0}, 1, rag.Filter{"category": "care"})
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(hits) != 1 || hits[0].Entry.Seq != 3 {
		t.Fatalf("filtered hit missing: %+v", hits)
	}
}

func TestLinear_InvalidFilter(t *testing.T) {
	t.Parallel()

	s := &sliceStore{entries: []rag.Entry{entry(1, "stones", 1, 0)}}
	_, err := NewLinear(s).Nearest(context.Background(), []float32{1, 0}, 1, rag.Filter{"colour": "red"})
	if !errors.Is(err, rag.ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestLinear_StoreErrorPropagates(t *testing.T) {
	t.Parallel()

	cause := rag.Unavailable("fake", errors.New("down"))
	_, err := NewLinear(&sliceStore{err: cause}).Nearest(context.Background(), []float32{1, 0}, 1, nil)
	if !errors.Is(err, rag.ErrCorpusUnavailable) {
		t.Fatalf("expected ErrCorpusUnavailable, got %v", err)
	}
}

// TestLinear_Properties checks determinism, len == min(k, matching) and monotone order
// over random corpora.
func TestLinear_Properties(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(3, 5))
	categories := []string{"stones", "care", "islamic"}
	for round := range 50 {
		n := rng.IntN(40)
		s := &sliceStore{}
		for i := range n {
			s.entries = append(s.entries, entry(int64(i), categories[rng.IntN(3)],
				float32(rng.IntN(3)), float32(rng.IntN(3))))
		}
		q := []float32{rng.Float32(), rng.Float32()}
		k := rng.IntN(10)
		var f rag.Filter
		if rng.IntN(2) == 0 {
			f = rag.Filter{"category": categories[rng.IntN(3)]}
		}

		ix := NewLinear(s)
		a, _ := ix.Nearest(context.Background(), q, k, f)
		b, _ := ix.Nearest(context.Background(), q, k, f)

		matching := 0
		for _, e := range s.entries {
			if f.Matches(e.Chunk.Metadata) {
				matching++
			}
		}
		if want := min(k, matching); len(a) != want {
			t.Fatalf("round %d: %d hits for k=%d with %d matching, want %d", round, len(a), k, matching, want)
		}
		if len(a) != len(b) {
			t.Fatalf("round %d: non-deterministic length", round)
		}
		for i := range a {
			if a[i].Entry.Seq != b[i].Entry.Seq {
				t.Fatalf("round %d: non-deterministic order", round)
			}
			if !f.Matches(a[i].Entry.Chunk.Metadata) {
				t.Fatalf("round %d: hit violates filter", round)
			}
			if i > 0 {
				p, c := a[i-1], a[i]
				if p.Score < c.Score || (p.Score == c.Score && p.Entry.Seq > c.Entry.Seq) {
					t.Fatalf("round %d: order violated at %d", round, i)
				}
			}
		}
	}
}
