package corpus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// SQLite is a rag.CorpusStore backed by a local SQLite file. Embeddings are
// stored as BLOBs and ranked by the Linear index.
type SQLite struct {
	db  *sql.DB
	dim int
}

// DefaultSQLitePath returns ~/.albaqer/corpus.db, creating the directory if
// needed.
func DefaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("corpus: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".albaqer")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("corpus: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "corpus.db"), nil
}

// OpenSQLite opens (or creates) the corpus database at path for vectors of
// length dim. Use ":memory:" in tests. An existing corpus built with a
// different dimensionality is refused with rag.ErrDimensionMismatch.
func OpenSQLite(ctx context.Context, path string, dim int) (*SQLite, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, rag.Unavailable("corpus: sqlite open "+path, err)
	}
	// One connection serializes writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, dim: dim}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS corpus_meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS corpus_entries (
    seq             INTEGER PRIMARY KEY AUTOINCREMENT,
    id              TEXT    NOT NULL UNIQUE,
    document_id     TEXT    NOT NULL,
    chunk_index     INTEGER NOT NULL,
    title           TEXT    NOT NULL,
    content         TEXT    NOT NULL,
    category        TEXT    NOT NULL,
    content_type    TEXT    NOT NULL,
    target_audience TEXT    NOT NULL,
    language        TEXT    NOT NULL,
    source          TEXT    NOT NULL,
    embedding       BLOB    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_corpus_entries_document ON corpus_entries (document_id);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return rag.Unavailable("corpus: sqlite migrate", err)
	}

	var stored string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM corpus_meta WHERE key = 'dimensions'`).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx, `INSERT INTO corpus_meta (key, value) VALUES ('dimensions', ?)`, strconv.Itoa(s.dim))
		if err != nil {
			return rag.Unavailable("corpus: sqlite migrate", err)
		}
		return nil
	case err != nil:
		return rag.Unavailable("corpus: sqlite migrate", err)
	}
	if stored != strconv.Itoa(s.dim) {
		return fmt.Errorf("corpus: sqlite: %w: corpus was built with %s dimensions, embedder produces %d (run ingest --rebuild)",
			rag.ErrDimensionMismatch, stored, s.dim)
	}
	return nil
}

// Dimensions implements rag.CorpusStore.
func (s *SQLite) Dimensions() int { return s.dim }

// ReplaceAll implements rag.CorpusStore. The delete and inserts share one
// transaction.
func (s *SQLite) ReplaceAll(ctx context.Context, entries []rag.Entry) error {
	if err := rag.CheckDimensions(entries, s.dim); err != nil {
		return err
	}
	return s.inTx(ctx, "replace all", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM corpus_entries`); err != nil {
			return err
		}
		return insertEntries(ctx, tx, entries)
	})
}

// Add implements rag.CorpusStore.
func (s *SQLite) Add(ctx context.Context, entries []rag.Entry) error {
	if err := rag.CheckDimensions(entries, s.dim); err != nil {
		return err
	}
	return s.inTx(ctx, "add", func(tx *sql.Tx) error {
		return insertEntries(ctx, tx, entries)
	})
}

// DeleteForDocument implements rag.CorpusStore.
func (s *SQLite) DeleteForDocument(ctx context.Context, documentID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM corpus_entries WHERE document_id = ?`, documentID)
	if err != nil {
		return 0, rag.Unavailable("corpus: sqlite delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, rag.Unavailable("corpus: sqlite delete", err)
	}
	return int(n), nil
}

// ReplaceDocument implements rag.CorpusStore in one transaction.
func (s *SQLite) ReplaceDocument(ctx context.Context, documentID string, entries []rag.Entry) (int, error) {
	if err := rag.CheckDimensions(entries, s.dim); err != nil {
		return 0, err
	}
	var removed int64
	err := s.inTx(ctx, "replace document", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM corpus_entries WHERE document_id = ?`, documentID)
		if err != nil {
			return err
		}
		if removed, err = res.RowsAffected(); err != nil {
			return err
		}
		return insertEntries(ctx, tx, entries)
	})
	if err != nil {
		return 0, err
	}
	return int(removed), nil
}

// AllEntries implements rag.CorpusStore.
func (s *SQLite) AllEntries(ctx context.Context) ([]rag.Entry, error) {
	const q = `
SELECT seq, id, document_id, chunk_index, title, content,
       category, content_type, target_audience, language, source, embedding
FROM   corpus_entries
ORDER  BY seq ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, rag.Unavailable("corpus: sqlite all entries", err)
	}
	defer rows.Close()

	entries := []rag.Entry{}
	for rows.Next() {
		var e rag.Entry
		var blob []byte
		c := &e.Chunk
		if err := rows.Scan(&e.Seq, &e.ID, &c.DocumentID, &c.Index, &c.Title, &c.Text,
			&c.Metadata.Category, &c.Metadata.ContentType, &c.Metadata.TargetAudience,
			&c.Metadata.Language, &c.Metadata.Source, &blob); err != nil {
			return nil, rag.Unavailable("corpus: sqlite scan", err)
		}
		if e.Embedding, err = decodeEmbedding(blob); err != nil {
			return nil, fmt.Errorf("corpus: sqlite entry %q: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, rag.Unavailable("corpus: sqlite rows", err)
	}
	return entries, nil
}

// Count implements rag.CorpusStore.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM corpus_entries`).Scan(&n); err != nil {
		return 0, rag.Unavailable("corpus: sqlite count", err)
	}
	return n, nil
}

// Name returns the pinger name used by the readiness endpoint.
func (s *SQLite) Name() string { return "sqlite" }

// Ping checks the database handle.
func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close implements rag.CorpusStore.
func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("corpus: sqlite close: %w", err)
	}
	return nil
}

func (s *SQLite) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return rag.Unavailable("corpus: sqlite "+op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return rag.Unavailable("corpus: sqlite "+op, err)
	}
	if err := tx.Commit(); err != nil {
		return rag.Unavailable("corpus: sqlite "+op, err)
	}
	return nil
}

func insertEntries(ctx context.Context, tx *sql.Tx, entries []rag.Entry) error {
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO corpus_entries (id, document_id, chunk_index, title, content,
    category, content_type, target_audience, language, source, embedding)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		c := e.Chunk
		if _, err := stmt.ExecContext(ctx, e.ID, c.DocumentID, c.Index, c.Title, c.Text,
			c.Metadata.Category, c.Metadata.ContentType, c.Metadata.TargetAudience,
			c.Metadata.Language, c.Metadata.Source, encodeEmbedding(e.Embedding)); err != nil {
			return fmt.Errorf("insert %q: %w", e.ID, err)
		}
	}
	return nil
}
