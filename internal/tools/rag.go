package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// RAGTool is an Eino tool that retrieves cited context for a question.
type RAGTool struct {
	retriever Retriever
}

// ragInput is the JSON-serialisable input schema for RAGTool.
type ragInput struct {
	Question string     `json:"question"`
	Filter   rag.Filter `json:"filter,omitempty"`
}

// NewRAGTool constructs a RAGTool.
func NewRAGTool(retriever Retriever) *RAGTool {
	return &RAGTool{retriever: retriever}
}

// Name returns the tool name registered with the agent.
func (t *RAGTool) Name() string { return "rag_query" }

// Description returns the LLM-facing description of this tool.
func (t *RAGTool) Description() string {
	return "Retrieves knowledge base passages relevant to a question, formatted as numbered sources. " +
		"Cite sources as [Source N] in the answer. " +
		"Optionally restrict the search with a filter on category, content_type, target_audience or language."
}

// Info returns the Eino tool metadata including the JSON input schema.
func (t *RAGTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"question": {
				Type:     schema.String,
				Desc:     "The customer's question.",
				Required: true,
			},
			"filter": {
				Type: schema.Object,
				Desc: "Optional exact-match metadata constraints, e.g. {\"content_type\": \"islamic\"}.",
			},
		}),
	}, nil
}

// InvokableRun executes the tool and returns a JSON-encoded rag.RAGResponse.
func (t *RAGTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input ragInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("rag_query: invalid input: %w", err)
	}
	if input.Question == "" {
		return "", fmt.Errorf("rag_query: question is required")
	}

	resp, err := t.retriever.RAGQuery(ctx, input.Question, input.Filter)
	if err != nil {
		return "", fmt.Errorf("rag_query: %w", err)
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("rag_query: encoding output: %w", err)
	}
	return string(b), nil
}
