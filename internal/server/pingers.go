package server

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qdrant/go-client/qdrant"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// CorpusPinger probes a corpus store by counting its entries. It works for
// every backend, including the in-memory one.
type CorpusPinger struct {
	store rag.CorpusStore
}

// NewCorpusPinger constructs a CorpusPinger for store.
func NewCorpusPinger(store rag.CorpusStore) *CorpusPinger {
	return &CorpusPinger{store: store}
}

// Name returns the dependency label used in readiness responses.
func (p *CorpusPinger) Name() string { return "corpus" }

// Ping fails when the store cannot be read or holds no entries.
func (p *CorpusPinger) Ping(ctx context.Context) error {
	n, err := p.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count failed: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("corpus is empty, run albaqer ingest")
	}
	return nil
}

// EmbedderPinger probes the embedder with a one-word input and checks the
// returned vector length. Remote backends are billed for the probe.
type EmbedderPinger struct {
	embedder rag.Embedder
	name     string
}

// NewEmbedderPinger constructs an EmbedderPinger. name labels the backend
// in readiness responses (e.g. "embedder:ollama").
func NewEmbedderPinger(e rag.Embedder, name string) *EmbedderPinger {
	return &EmbedderPinger{embedder: e, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *EmbedderPinger) Name() string { return p.name }

// Ping embeds a probe string.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	vecs, err := p.embedder.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embed failed: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) != p.embedder.Dimensions() {
		return fmt.Errorf("%w: probe returned unexpected shape", rag.ErrDimensionMismatch)
	}
	return nil
}

// PostgresPinger probes a pgx connection pool.
type PostgresPinger struct {
	pool *pgxpool.Pool
}

// NewPostgresPinger constructs a PostgresPinger for pool.
func NewPostgresPinger(pool *pgxpool.Pool) *PostgresPinger {
	return &PostgresPinger{pool: pool}
}

// Name returns the dependency label used in readiness responses.
func (p *PostgresPinger) Name() string { return "postgres" }

// Ping acquires a connection and round-trips a ping.
func (p *PostgresPinger) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
// Returns nil if Qdrant is reachable, or a descriptive error otherwise.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
