package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// Querier is the subset of pgxpool.Pool the keyword searcher needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// keywordQuery matches the topic against the article text with Postgres
// full-text search, and against category and title by substring. $2 is a
// LIKE pattern built by containsPattern.
const keywordQuery = `
SELECT COALESCE(title, ''),
       COALESCE(content, ''),
       COALESCE(category, '')
FROM   knowledge_base
WHERE  to_tsvector('english', COALESCE(title, '') || ' ' || COALESCE(content, ''))
           @@ plainto_tsquery('english', $1)
   OR  category ILIKE $2 ESCAPE '\'
   OR  title ILIKE $2 ESCAPE '\'
ORDER  BY id
LIMIT  $3`

// PostgresKeywordSearcher searches the shop's knowledge_base table.
type PostgresKeywordSearcher struct {
	db Querier
}

// NewPostgresKeywordSearcher returns a keyword searcher over db.
func NewPostgresKeywordSearcher(db Querier) *PostgresKeywordSearcher {
	return &PostgresKeywordSearcher{db: db}
}

// KeywordSearch returns up to limit articles matching topic. Relevance
// scores are zero; the order is table order.
func (s *PostgresKeywordSearcher) KeywordSearch(ctx context.Context, topic string, limit int) ([]rag.KnowledgeResult, error) {
	rows, err := s.db.Query(ctx, keywordQuery, topic, containsPattern(topic), limit)
	if err != nil {
		return nil, fmt.Errorf("tools: keyword search: %w", err)
	}
	defer rows.Close()

	out := []rag.KnowledgeResult{}
	for rows.Next() {
		var r rag.KnowledgeResult
		if err := rows.Scan(&r.Title, &r.Content, &r.Category); err != nil {
			return nil, fmt.Errorf("tools: keyword search scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tools: keyword search: %w", err)
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern returns an ILIKE pattern matching topic anywhere, with
// the wildcards in topic itself taken literally.
func containsPattern(topic string) string {
	return "%" + likeEscaper.Replace(topic) + "%"
}
