package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// kbRows serves canned knowledge_base rows in the column order of
// knowledgeBaseQuery.
type kbRows struct {
	rows    [][]string
	pos     int
	err     error
	scanErr error
	closed  bool
}

func (r *kbRows) Close()                                       { r.closed = true }
func (r *kbRows) Err() error                                   { return r.err }
func (r *kbRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *kbRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *kbRows) Values() ([]any, error)                       { return nil, nil }
func (r *kbRows) RawValues() [][]byte                          { return nil }
func (r *kbRows) Conn() *pgx.Conn                              { return nil }

func (r *kbRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *kbRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.rows[r.pos-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(row))
	}
	for i, d := range dest {
		*(d.(*string)) = row[i]
	}
	return nil
}

type kbQuerier struct {
	rows *kbRows
	err  error
	sql  string
}

func (q *kbQuerier) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	q.sql = sql
	if q.err != nil {
		return nil, q.err
	}
	return q.rows, nil
}

func TestLoadKnowledgeBase(t *testing.T) {
	t.Parallel()

	rows := &kbRows{rows: [][]string{
		{"kb:1", "Aqeeq Stone Benefits", "Aqeeq is worn for protection.", "stones", "spiritual", "muslim", "en"},
		{"kb:2", "Silver Care", "Polish silver gently.", "", "", "", ""},
	}}
	q := &kbQuerier{rows: rows}

	docs, err := LoadKnowledgeBase(context.Background(), q)
	if err != nil {
		t.Fatalf("LoadKnowledgeBase: %v", err)
	}
	if !strings.Contains(q.sql, "'kb:' || id::text") || !strings.Contains(q.sql, "ORDER  BY id") {
		t.Errorf("query does not prefix and order IDs:\n%s", q.sql)
	}
	if !rows.closed {
		t.Error("rows not closed")
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}

	aqeeq := docs[0]
	if aqeeq.ID != "kb:1" || aqeeq.Title != "Aqeeq Stone Benefits" || aqeeq.Body != "Aqeeq is worn for protection." {
		t.Errorf("first document = %+v", aqeeq)
	}
	want := rag.Metadata{Category: "stones", ContentType: "spiritual", TargetAudience: "muslim", Language: "en", Source: "knowledge_base"}
	if aqeeq.Metadata != want {
		t.Errorf("metadata = %+v, want %+v", aqeeq.Metadata, want)
	}

	silver := docs[1].Metadata
	if silver.Category != DefaultCategory || silver.ContentType != DefaultContentType ||
		silver.TargetAudience != DefaultTargetAudience || silver.Language != DefaultLanguage {
		t.Errorf("empty columns not defaulted: %+v", silver)
	}
	if silver.Source != "knowledge_base" {
		t.Errorf("Source = %q", silver.Source)
	}
}

func TestLoadKnowledgeBase_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, err := LoadKnowledgeBase(ctx, &kbQuerier{err: errors.New("connection refused")})
	if !errors.Is(err, rag.ErrCorpusUnavailable) {
		t.Errorf("query failure: err = %v, want ErrCorpusUnavailable", err)
	}

	_, err = LoadKnowledgeBase(ctx, &kbQuerier{rows: &kbRows{
		rows:    [][]string{{"kb:1", "t", "b", "", "", "", ""}},
		scanErr: errors.New("type mismatch"),
	}})
	if err == nil || !strings.Contains(err.Error(), "scan knowledge_base") {
		t.Errorf("scan failure: err = %v", err)
	}

	_, err = LoadKnowledgeBase(ctx, &kbQuerier{rows: &kbRows{err: errors.New("conn closed")}})
	if !errors.Is(err, rag.ErrCorpusUnavailable) {
		t.Errorf("rows failure: err = %v, want ErrCorpusUnavailable", err)
	}
}
