package corpus

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// advisoryLockKey serializes corpus writers across processes.
const advisoryLockKey = 0x616c6271 // "albq"

// filterColumns maps filter keys to their columns. Only these names are
// ever interpolated into SQL.
var filterColumns = map[string]string{
	rag.FilterCategory:       "category",
	rag.FilterContentType:    "content_type",
	rag.FilterTargetAudience: "target_audience",
	rag.FilterLanguage:       "language",
}

// Postgres is a rag.CorpusStore backed by PostgreSQL with the pgvector
// extension. It also implements rag.Index by ranking inside the database.
type Postgres struct {
	pool *pgxpool.Pool
	dim  int
}

// OpenPostgres connects to dsn, ensures the pgvector extension and the
// knowledge_base_vectors table exist, and checks that the table's vector
// column matches dim.
func OpenPostgres(ctx context.Context, dsn string, dim int) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("corpus: postgres: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if _, err := conn.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
			return err
		}
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, rag.Unavailable("corpus: postgres connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, rag.Unavailable("corpus: postgres ping", err)
	}

	p := &Postgres{pool: pool, dim: dim}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS knowledge_base_vectors (
    seq               BIGSERIAL PRIMARY KEY,
    id                TEXT        NOT NULL UNIQUE,
    knowledge_base_id TEXT        NOT NULL,
    chunk_index       INTEGER     NOT NULL,
    title             TEXT        NOT NULL,
    content           TEXT        NOT NULL,
    category          TEXT        NOT NULL,
    content_type      TEXT        NOT NULL,
    target_audience   TEXT        NOT NULL,
    language          TEXT        NOT NULL,
    source            TEXT        NOT NULL DEFAULT '',
    embedding         vector(%d)  NOT NULL,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_kbv_document ON knowledge_base_vectors (knowledge_base_id);
CREATE INDEX IF NOT EXISTS idx_kbv_category ON knowledge_base_vectors (category);
`, p.dim)
	if _, err := p.pool.Exec(ctx, ddl); err != nil {
		return rag.Unavailable("corpus: postgres migrate", err)
	}

	var stored int
	err := p.pool.QueryRow(ctx, `
SELECT atttypmod FROM pg_attribute
WHERE  attrelid = 'knowledge_base_vectors'::regclass AND attname = 'embedding'`).Scan(&stored)
	if err != nil {
		return rag.Unavailable("corpus: postgres migrate", err)
	}
	if stored != p.dim {
		return fmt.Errorf("corpus: postgres: %w: knowledge_base_vectors.embedding is vector(%d), embedder produces %d (run ingest --rebuild)",
			rag.ErrDimensionMismatch, stored, p.dim)
	}
	return nil
}

// Dimensions implements rag.CorpusStore.
func (p *Postgres) Dimensions() int { return p.dim }

// ReplaceAll implements rag.CorpusStore. The truncate and inserts commit in
// one transaction, so readers keep seeing the old corpus until it lands.
func (p *Postgres) ReplaceAll(ctx context.Context, entries []rag.Entry) error {
	if err := rag.CheckDimensions(entries, p.dim); err != nil {
		return err
	}
	return p.write(ctx, "replace all", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM knowledge_base_vectors`); err != nil {
			return err
		}
		return insertBatch(ctx, tx, entries)
	})
}

// Add implements rag.CorpusStore.
func (p *Postgres) Add(ctx context.Context, entries []rag.Entry) error {
	if err := rag.CheckDimensions(entries, p.dim); err != nil {
		return err
	}
	return p.write(ctx, "add", func(tx pgx.Tx) error {
		return insertBatch(ctx, tx, entries)
	})
}

// DeleteForDocument implements rag.CorpusStore.
func (p *Postgres) DeleteForDocument(ctx context.Context, documentID string) (int, error) {
	var n int64
	err := p.write(ctx, "delete", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM knowledge_base_vectors WHERE knowledge_base_id = $1`, documentID)
		n = tag.RowsAffected()
		return err
	})
	return int(n), err
}

// ReplaceDocument implements rag.CorpusStore. The delete and inserts commit
// together under the writer lock.
func (p *Postgres) ReplaceDocument(ctx context.Context, documentID string, entries []rag.Entry) (int, error) {
	if err := rag.CheckDimensions(entries, p.dim); err != nil {
		return 0, err
	}
	var n int64
	err := p.write(ctx, "replace document", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM knowledge_base_vectors WHERE knowledge_base_id = $1`, documentID)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return insertBatch(ctx, tx, entries)
	})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

const selectColumns = `seq, id, knowledge_base_id, chunk_index, title, content,
       category, content_type, target_audience, language, source, embedding`

// AllEntries implements rag.CorpusStore.
func (p *Postgres) AllEntries(ctx context.Context) ([]rag.Entry, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+selectColumns+` FROM knowledge_base_vectors ORDER BY seq ASC`)
	if err != nil {
		return nil, rag.Unavailable("corpus: postgres all entries", err)
	}
	defer rows.Close()

	entries := []rag.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, rag.Unavailable("corpus: postgres scan", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, rag.Unavailable("corpus: postgres rows", err)
	}
	return entries, nil
}

// Count implements rag.CorpusStore.
func (p *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM knowledge_base_vectors`).Scan(&n); err != nil {
		return 0, rag.Unavailable("corpus: postgres count", err)
	}
	return n, nil
}

// Nearest implements rag.Index with the pgvector cosine distance operator.
// Ties on distance fall back to seq so ordering matches the Linear index.
func (p *Postgres) Nearest(ctx context.Context, query []float32, k int, filter rag.Filter) ([]rag.Hit, error) {
	if k <= 0 {
		return []rag.Hit{}, nil
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if len(query) != p.dim {
		return nil, fmt.Errorf("corpus: postgres: %w: query has %d dimensions, store expects %d",
			rag.ErrDimensionMismatch, len(query), p.dim)
	}

	q, args := nearestQuery(pgvector.NewVector(query), k, filter)
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, rag.Unavailable("corpus: postgres nearest", err)
	}
	defer rows.Close()

	hits := []rag.Hit{}
	for rows.Next() {
		var score float64
		e, err := scanEntry(rows, &score)
		if err != nil {
			return nil, rag.Unavailable("corpus: postgres scan", err)
		}
		if math.IsNaN(score) {
			score = 0
		}
		hits = append(hits, rag.Hit{Entry: e, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, rag.Unavailable("corpus: postgres rows", err)
	}
	// Zero-norm rows rank as NaN in the database; re-sort after mapping
	// them to 0.
	rag.SortHits(hits)
	return hits, nil
}

// nearestQuery builds the ranking query. Filter keys are validated and
// mapped through filterColumns; values are always bound parameters.
func nearestQuery(vec pgvector.Vector, k int, filter rag.Filter) (string, []any) {
	args := []any{vec}
	var where []string
	for _, key := range filter.Keys() {
		args = append(args, filter[key])
		where = append(where, fmt.Sprintf("%s = $%d", filterColumns[key], len(args)))
	}
	args = append(args, k)

	var b strings.Builder
	b.WriteString(`SELECT ` + selectColumns + `, 1 - (embedding <=> $1) AS score
FROM   knowledge_base_vectors`)
	if len(where) > 0 {
		b.WriteString("\nWHERE  " + strings.Join(where, " AND "))
	}
	fmt.Fprintf(&b, "\nORDER  BY embedding <=> $1 ASC, seq ASC\nLIMIT  $%d", len(args))
	return b.String(), args
}

// Name returns the pinger name used by the readiness endpoint.
func (p *Postgres) Name() string { return "postgres" }

// Ping checks the pool.
func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

// Pool exposes the connection pool to components sharing the database,
// such as the knowledge_base loader and keyword fallback.
func (p *Postgres) Pool() *pgxpool.Pool { return p.pool }

// Close implements rag.CorpusStore.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// write runs fn in a transaction holding the corpus advisory lock.
func (p *Postgres) write(ctx context.Context, op string, fn func(pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return rag.Unavailable("corpus: postgres "+op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey); err != nil {
		return rag.Unavailable("corpus: postgres "+op, err)
	}
	if err := fn(tx); err != nil {
		return rag.Unavailable("corpus: postgres "+op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return rag.Unavailable("corpus: postgres "+op, err)
	}
	return nil
}

func insertBatch(ctx context.Context, tx pgx.Tx, entries []rag.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	const q = `
INSERT INTO knowledge_base_vectors (id, knowledge_base_id, chunk_index, title, content,
    category, content_type, target_audience, language, source, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	batch := &pgx.Batch{}
	for _, e := range entries {
		c := e.Chunk
		batch.Queue(q, e.ID, c.DocumentID, c.Index, c.Title, c.Text,
			c.Metadata.Category, c.Metadata.ContentType, c.Metadata.TargetAudience,
			c.Metadata.Language, c.Metadata.Source, pgvector.NewVector(e.Embedding))
	}
	br := tx.SendBatch(ctx, batch)
	for _, e := range entries {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert %q: %w", e.ID, err)
		}
	}
	return br.Close()
}

func scanEntry(row pgx.Row, extra ...any) (rag.Entry, error) {
	var e rag.Entry
	var vec pgvector.Vector
	c := &e.Chunk
	dest := []any{&e.Seq, &e.ID, &c.DocumentID, &c.Index, &c.Title, &c.Text,
		&c.Metadata.Category, &c.Metadata.ContentType, &c.Metadata.TargetAudience,
		&c.Metadata.Language, &c.Metadata.Source, &vec}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return e, err
	}
	e.Embedding = vec.Slice()
	return e, nil
}
