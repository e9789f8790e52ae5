package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/logging"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// keywordLimit bounds fallback results, matching the default semantic top_k.
const keywordLimit = 3

// KnowledgeTool is an Eino tool that searches the gemstone knowledge base
// by meaning. When the retrieval engine is down it falls back to keyword
// search over the shop database and says so in its output.
type KnowledgeTool struct {
	searcher Searcher
	keyword  KeywordSearcher
}

// knowledgeInput is the JSON-serialisable input schema for KnowledgeTool.
type knowledgeInput struct {
	// Topic is the subject to search for, e.g. "aqeeq care".
	Topic string `json:"topic"`

	// TopK bounds the number of articles returned. Defaults to 3.
	TopK int `json:"top_k,omitempty"`
}

// KnowledgeOutput is the JSON document KnowledgeTool returns.
type KnowledgeOutput struct {
	Results []rag.KnowledgeResult `json:"results"`

	// Fallback is "keyword" when the results came from the lexical
	// fallback rather than semantic search.
	Fallback string `json:"fallback,omitempty"`
}

// NewKnowledgeTool constructs a KnowledgeTool. keyword may be nil.
func NewKnowledgeTool(searcher Searcher, keyword KeywordSearcher) *KnowledgeTool {
	return &KnowledgeTool{searcher: searcher, keyword: keyword}
}

// Name returns the tool name registered with the agent.
func (t *KnowledgeTool) Name() string { return "get_knowledge_base" }

// Description returns the LLM-facing description of this tool.
func (t *KnowledgeTool) Description() string {
	return "Searches the gemstone knowledge base by meaning and returns the most relevant articles " +
		"with their title, content, category and relevance score. " +
		"Use this for questions about stones, their properties, care, and Islamic significance " +
		"(e.g. 'diamond', 'zakat', 'aqeeq care')."
}

// Info returns the Eino tool metadata including the JSON input schema.
func (t *KnowledgeTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"topic": {
				Type:     schema.String,
				Desc:     "Topic to search for, e.g. 'aqeeq benefits' or 'how to clean turquoise'.",
				Required: true,
			},
			"top_k": {
				Type: schema.Integer,
				Desc: "Maximum number of articles to return. Defaults to 3.",
			},
		}),
	}, nil
}

// InvokableRun executes the tool given a JSON-encoded input string and
// returns a JSON-encoded KnowledgeOutput.
func (t *KnowledgeTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input knowledgeInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("get_knowledge_base: invalid input: %w", err)
	}
	if input.Topic == "" {
		return "", fmt.Errorf("get_knowledge_base: topic is required")
	}

	out, err := t.Search(ctx, input.Topic, input.TopK)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("get_knowledge_base: encoding output: %w", err)
	}
	return string(b), nil
}

// Search runs semantic search, switching to keyword search when the engine
// reports ErrRetrievalFailed or ErrCorpusUnavailable. A failing fallback is
// logged and yields no results. Any other semantic error is returned
// wrapped. Results are never nil.
func (t *KnowledgeTool) Search(ctx context.Context, topic string, topK int) (*KnowledgeOutput, error) {
	results, err := t.searcher.SemanticSearch(ctx, topic, topK)
	if err == nil {
		return &KnowledgeOutput{Results: results}, nil
	}

	engineDown := errors.Is(err, rag.ErrRetrievalFailed) || errors.Is(err, rag.ErrCorpusUnavailable)
	if !engineDown || t.keyword == nil {
		return nil, fmt.Errorf("get_knowledge_base: %w", err)
	}

	logging.FromContext(ctx).Warn("get_knowledge_base: semantic search unavailable, using keyword fallback",
		slog.String("topic", topic),
		slog.Any("error", err),
	)
	results, kerr := t.keyword.KeywordSearch(ctx, topic, keywordLimit)
	if kerr != nil {
		// Both paths are down; the assistant answers without articles.
		logging.FromContext(ctx).Error("get_knowledge_base: keyword fallback failed",
			slog.String("topic", topic),
			slog.Any("error", kerr),
		)
		results = nil
	}
	if results == nil {
		results = []rag.KnowledgeResult{}
	}
	return &KnowledgeOutput{Results: results, Fallback: "keyword"}, nil
}
