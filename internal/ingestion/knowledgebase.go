package ingestion

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// Querier is the subset of pgxpool.Pool used to read the shop database.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// knowledgeBaseQuery reads the shop's knowledge_base table. Article IDs are
// prefixed so they never collide with file-based document IDs.
const knowledgeBaseQuery = `
SELECT 'kb:' || id::text,
       COALESCE(title, ''),
       COALESCE(content, ''),
       COALESCE(category, ''),
       COALESCE(content_type, ''),
       COALESCE(target_audience, ''),
       COALESCE(language, '')
FROM   knowledge_base
ORDER  BY id`

// LoadKnowledgeBase reads every article from the knowledge_base table.
func LoadKnowledgeBase(ctx context.Context, db Querier) ([]rag.Document, error) {
	rows, err := db.Query(ctx, knowledgeBaseQuery)
	if err != nil {
		return nil, rag.Unavailable("ingestion: query knowledge_base", err)
	}
	defer rows.Close()

	var docs []rag.Document
	for rows.Next() {
		var d rag.Document
		m := &d.Metadata
		if err := rows.Scan(&d.ID, &d.Title, &d.Body, &m.Category, &m.ContentType, &m.TargetAudience, &m.Language); err != nil {
			return nil, fmt.Errorf("ingestion: scan knowledge_base: %w", err)
		}
		m.Source = "knowledge_base"
		d.Metadata = WithDefaults(d.Metadata)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, rag.Unavailable("ingestion: read knowledge_base", err)
	}
	return docs, nil
}
