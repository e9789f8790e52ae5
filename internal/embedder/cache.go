package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// Cache stores embeddings by key. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
}

// RedisCacheConfig holds connection settings for RedisCache.
type RedisCacheConfig struct {
	// Addr is host:port of the Redis server.
	Addr string
	// Password is the optional AUTH password.
	Password string
	// DB selects the logical database.
	DB int
	// TTL expires cached vectors. Zero keeps them forever.
	TTL time.Duration
}

// RedisCache is a Cache backed by Redis. Vectors are stored as packed
// little-endian float32.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to Redis and verifies the connection with PING.
func NewRedisCache(ctx context.Context, cfg *RedisCacheConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("embedder: redis cache ping %s: %w", cfg.Addr, err)
	}
	return &RedisCache{client: client, ttl: cfg.TTL}, nil
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	vec, err := decodeVector(b)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, vec []float32) error {
	return c.client.Set(ctx, key, encodeVector(vec), c.ttl).Err()
}

// Name returns the pinger name used by the readiness endpoint.
func (c *RedisCache) Name() string { return "redis" }

// Ping checks the Redis connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the Redis connection pool.
func (c *RedisCache) Close() error { return c.client.Close() }

func encodeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(x))
	}
	return b
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedder: cached vector has %d bytes, not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}

// CachedEmbedder serves repeated texts from a Cache and embeds only misses.
// Cache failures are logged and treated as misses.
type CachedEmbedder struct {
	inner rag.Embedder
	cache Cache
	model string
	log   *slog.Logger
}

// NewCachedEmbedder wraps inner. model namespaces the keys so switching
// models never serves stale vectors.
func NewCachedEmbedder(inner rag.Embedder, cache Cache, model string, log *slog.Logger) *CachedEmbedder {
	if log == nil {
		log = slog.Default()
	}
	return &CachedEmbedder{inner: inner, cache: cache, model: model, log: log}
}

// Dimensions implements rag.Embedder.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// Embed implements rag.Embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string

	for i, t := range texts {
		keys[i] = c.key(t)
		vec, ok, err := c.cache.Get(ctx, keys[i])
		if err != nil {
			c.log.Warn("embedder: cache get failed", slog.Any("error", err))
		}
		if ok && len(vec) == c.inner.Dimensions() {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedder: backend returned %d vectors for %d texts", len(vecs), len(missTexts))
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		if err := c.cache.Set(ctx, keys[i], vecs[j]); err != nil {
			c.log.Warn("embedder: cache set failed", slog.Any("error", err))
		}
	}
	return out, nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("albaqer:emb:%s:%d:%x", c.model, c.inner.Dimensions(), sum[:16])
}
