// Package agent wires together the Eino ReAct agent with the knowledge tools
// and the retrieval service to form the AlBaqer gemstone assistant.
// The agent handles the full ReAct loop: it decides when to call tools,
// when to lean on the pre-injected knowledge base context, and when to
// respond directly.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/budget"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/logging"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/store"
)

// systemPrompt is the base system prompt injected into every conversation.
const systemPrompt = `You are the AlBaqer gemstone advisor, an Islamic gemstone education expert
at AlBaqer Stones.

## Your Role

- Educate customers about gemstones: their properties, origins, care and value
- Explain Islamic significance respectfully (hadiths, Sunnah, spiritual meanings)
  and give universal gemological facts for every customer
- Advise on culturally appropriate choices, e.g. gold is not worn by men,
  and on gifts for Eid, Ramadan and Hajj

## Using the Knowledge Base

- Knowledge base passages may be provided below as numbered sources.
  Prefer them over general knowledge and cite them as [Source N]
- Use get_knowledge_base to look up a topic the provided sources do not cover
- Use rag_query with a filter when the customer asks for a specific kind of
  content, e.g. {"content_type": "islamic"} for religious significance
- Cite a source whenever you mention an Islamic tradition
- If the knowledge base has nothing relevant, say so rather than guessing

Be knowledgeable, respectful, and concise.`

// Retriever assembles knowledge base context for a question.
// *rag.Service satisfies it.
type Retriever interface {
	RAGQuery(ctx context.Context, question string, filter rag.Filter) (*rag.RAGResponse, error)
}

// Config holds the dependencies required to construct an Assistant.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.ToolCallingChatModel

	// Tools is the list of knowledge tools available to the agent.
	Tools []tool.BaseTool

	// Retriever pre-injects knowledge base context before each question.
	// May be nil, in which case the model relies on tool calls alone.
	Retriever Retriever

	// History is the optional conversation store used to persist and replay
	// prior turns. If nil, each question is stateless.
	History store.ConversationStore
	// HistoryDepth is the number of prior turns (user+assistant pairs) to
	// inject per question. Defaults to 10 if zero.
	HistoryDepth int
	// MaxContextTokens is the estimated token budget for the full input
	// context (system prompt + history + knowledge context + question).
	// History is trimmed oldest-first to fit. Defaults to
	// budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int
	// MaxStep bounds the ReAct loop. Defaults to 12 if zero.
	MaxStep int
}

// Answer is the result of one question.
type Answer struct {
	// Text is the full assistant reply.
	Text string `json:"answer"`

	// Sources are the knowledge base passages pre-injected for the question.
	Sources []rag.Source `json:"sources"`

	// Cited is the subset of Sources the reply references as [Source N].
	Cited []rag.Source `json:"cited"`
}

// Assistant wraps the Eino ReAct agent with knowledge base context
// injection and chat history.
type Assistant struct {
	reactAgent       *react.Agent
	retriever        Retriever
	history          store.ConversationStore
	historyDepth     int
	maxContextTokens int
}

// New constructs an Assistant from the provided Config.
func New(ctx context.Context, cfg *Config) (*Assistant, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("agent: ChatModel must not be nil")
	}

	maxStep := cfg.MaxStep
	if maxStep <= 0 {
		maxStep = 12
	}

	reactAgent, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: cfg.ChatModel,
		ToolsConfig: compose.ToolsNodeConfig{
			Tools: cfg.Tools,
		},
		MaxStep: maxStep,
	})
	if err != nil {
		return nil, fmt.Errorf("agent: failed to create ReAct agent: %w", err)
	}

	depth := cfg.HistoryDepth
	if depth <= 0 {
		depth = 10
	}

	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}

	return &Assistant{
		reactAgent:       reactAgent,
		retriever:        cfg.Retriever,
		history:          cfg.History,
		historyDepth:     depth,
		maxContextTokens: maxCtx,
	}, nil
}

// Ask sends a customer question to the agent and streams the reply to w as
// it is generated. If a Retriever is configured, knowledge base context is
// injected before the question reaches the LLM. If a conversation store is
// configured, prior turns of sessionID are replayed and the new turn is
// persisted after completion.
func (a *Assistant) Ask(ctx context.Context, sessionID, question string, w io.Writer) (*Answer, error) {
	messages, sources := a.buildMessages(ctx, sessionID, question)

	sr, err := a.reactAgent.Stream(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("agent: stream failed: %w", err)
	}
	defer sr.Close()

	var reply strings.Builder
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("agent: stream receive error: %w", err)
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		reply.WriteString(msg.Content)
		if _, err := io.WriteString(w, msg.Content); err != nil {
			return nil, fmt.Errorf("agent: write error: %w", err)
		}
	}

	answer := &Answer{
		Text:    reply.String(),
		Sources: sources,
		Cited:   citedSources(reply.String(), sources),
	}

	// Persist the turn to the conversation store (non-fatal on error).
	if a.history != nil && sessionID != "" {
		log := logging.FromContext(ctx)
		if err := a.history.Append(ctx, sessionID, store.RoleUser, question); err != nil {
			log.Warn("history: failed to persist user message", slog.Any("error", err))
		}
		if err := a.history.Append(ctx, sessionID, store.RoleAssistant, answer.Text); err != nil {
			log.Warn("history: failed to persist assistant message", slog.Any("error", err))
		}
	}

	return answer, nil
}

// buildMessages constructs the message slice for the agent and returns the
// sources injected as knowledge base context.
func (a *Assistant) buildMessages(ctx context.Context, sessionID, question string) ([]*schema.Message, []rag.Source) {
	log := logging.FromContext(ctx)
	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
	}

	var historyMsgs []*schema.Message
	if a.history != nil && sessionID != "" {
		prior, err := a.history.Recent(ctx, sessionID, a.historyDepth*2)
		if err != nil {
			log.Warn("history: failed to load prior messages", slog.Any("error", err))
		} else {
			for _, m := range prior {
				switch m.Role {
				case store.RoleUser:
					historyMsgs = append(historyMsgs, schema.UserMessage(m.Content))
				case store.RoleAssistant:
					historyMsgs = append(historyMsgs, schema.AssistantMessage(m.Content, nil))
				}
			}
		}
	}

	sources := []rag.Source{}
	if a.retriever != nil {
		resp, err := a.retriever.RAGQuery(ctx, question, nil)
		if err != nil {
			// Retrieval failure is non-fatal; the model can still call tools.
			log.Warn("knowledge base retrieval failed, continuing without context", slog.Any("error", err))
		} else if resp.NumSources > 0 {
			messages = append(messages, schema.SystemMessage(knowledgeContext(resp.Context)))
			sources = resp.Sources
		}
	}

	fixed := append(messages, schema.UserMessage(question)) //nolint:gocritic // intentional copy

	// Trim history oldest-first so the total estimated token count fits within
	// the configured context budget.
	before := len(historyMsgs)
	historyMsgs = budget.TrimHistory(fixed, historyMsgs, a.maxContextTokens)
	if dropped := before - len(historyMsgs); dropped > 0 {
		log.Warn("budget: dropped history messages to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(historyMsgs)),
			slog.Int("max_tokens", a.maxContextTokens),
		)
	}

	// messages holds [system, ...knowledge]; the result is
	// [system, ...history, ...knowledge, user].
	result := make([]*schema.Message, 0, len(historyMsgs)+len(messages)+1)
	result = append(result, messages[0])
	result = append(result, historyMsgs...)
	result = append(result, messages[1:]...)
	result = append(result, schema.UserMessage(question))
	return result, sources
}

// knowledgeContext formats assembled knowledge base passages into a system
// message.
func knowledgeContext(assembled string) string {
	return "## Knowledge Base Context\n\n" +
		"The following passages from the AlBaqer knowledge base are relevant to the customer's question. " +
		"Cite them as [Source N] where you use them.\n\n" +
		assembled
}
