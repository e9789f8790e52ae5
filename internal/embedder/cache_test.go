package embedder

import (
	"context"
	"errors"
	"testing"
)

// memCache is an in-memory Cache.
type memCache struct {
	data   map[string][]float32
	getErr error
	sets   int
}

func newMemCache() *memCache { return &memCache{data: map[string][]float32{}} }

func (m *memCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, vec []float32) error {
	m.sets++
	m.data[key] = vec
	return nil
}

func TestCachedEmbedder_ServesHits(t *testing.T) {
	t.Parallel()

	inner := &stubEmbedder{vec: []float32{1, 0}, dim: 2}
	cache := newMemCache()
	c := NewCachedEmbedder(inner, cache, "hashing/test", nil)

	if _, err := c.Embed(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatalf("first Embed: %v", err)
	}
	if inner.calls != 1 || cache.sets != 2 {
		t.Fatalf("calls=%d sets=%d, want 1 and 2", inner.calls, cache.sets)
	}

	vecs, err := c.Embed(context.Background(), []string{"b", "c", "a"})
	if err != nil {
		t.Fatalf("second Embed: %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("calls=%d, want 2", inner.calls)
	}
	if len(inner.got) != 1 || inner.got[0] != "c" {
		t.Errorf("backend should only see the miss, got %v", inner.got)
	}
	if len(vecs) != 3 || vecs[0] == nil || vecs[1] == nil || vecs[2] == nil {
		t.Errorf("result not parallel to input: %v", vecs)
	}
}

func TestCachedEmbedder_CacheErrorIsMiss(t *testing.T) {
	t.Parallel()

	inner := &stubEmbedder{vec: []float32{1}, dim: 1}
	cache := newMemCache()
	cache.getErr = errors.New("redis down")
	c := NewCachedEmbedder(inner, cache, "m", nil)

	vecs, err := c.Embed(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("cache failure must not fail Embed: %v", err)
	}
	if len(vecs) != 1 || inner.calls != 1 {
		t.Errorf("expected backend fallthrough, calls=%d", inner.calls)
	}
}

func TestCachedEmbedder_KeysAreModelScoped(t *testing.T) {
	t.Parallel()

	inner := &stubEmbedder{vec: []float32{1}, dim: 1}
	a := NewCachedEmbedder(inner, newMemCache(), "model-a", nil)
	b := NewCachedEmbedder(inner, newMemCache(), "model-b", nil)
	if a.key("x") == b.key("x") {
		t.Error("different models must not share keys")
	}
}

func TestVectorCodec(t *testing.T) {
	t.Parallel()

	in := []float32{0, 1.5, -2.25, 3e-7}
	out, err := decodeVector(encodeVector(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("[%d] %v != %v", i, in[i], out[i])
		}
	}
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated payload")
	}
}
