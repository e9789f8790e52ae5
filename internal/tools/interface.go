// Package tools defines the knowledge tools the assistant can invoke during
// a conversation. Each tool satisfies both this package's Tool interface and
// Eino's tool.InvokableTool interface so it can be registered directly with
// a ReAct agent.
package tools

import (
	"context"

	"github.com/cloudwego/eino/components/tool"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// Tool is the interface every knowledge tool satisfies. It extends the Eino
// tool contract with Name and Description accessors so the agent can log
// and route tool calls by name without type assertions.
type Tool interface {
	tool.InvokableTool

	// Name returns the unique tool name registered with the agent.
	Name() string

	// Description returns the LLM-facing description of what the tool does.
	Description() string
}

// Searcher runs flat semantic search. *rag.Service satisfies it.
type Searcher interface {
	SemanticSearch(ctx context.Context, topic string, topK int) ([]rag.KnowledgeResult, error)
}

// Retriever assembles RAG context. *rag.Service satisfies it.
type Retriever interface {
	RAGQuery(ctx context.Context, question string, filter rag.Filter) (*rag.RAGResponse, error)
}

// KeywordSearcher is the lexical fallback used when semantic search is
// unavailable.
type KeywordSearcher interface {
	KeywordSearch(ctx context.Context, topic string, limit int) ([]rag.KnowledgeResult, error)
}

// New returns the knowledge tools backed by svc. keyword may be nil, in
// which case get_knowledge_base has no fallback.
func New(svc *rag.Service, keyword KeywordSearcher) []Tool {
	return []Tool{
		NewKnowledgeTool(svc, keyword),
		NewRAGTool(svc),
	}
}
