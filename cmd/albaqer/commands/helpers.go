package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/cloudwego/eino/components/tool"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/agent"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/chunker"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/corpus"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/embedder"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/index"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/ingestion"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/provider"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/store"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/tools"
)

// engine is the retrieval engine built once per command: the embedder
// stack, the corpus store, and the service over both.
type engine struct {
	stack     *embedder.Stack
	store     rag.CorpusStore
	service   *rag.Service
	corpusCfg *corpus.Config
}

// buildEngine wires the embedder, corpus store, index and retrieval service
// from the environment. The embedder's dimension decides the store's.
func buildEngine(ctx context.Context, log *slog.Logger) (*engine, error) {
	stack, err := embedder.NewFromEnv(ctx, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	dim := stack.Embedder.Dimensions()
	log.Info("embedder initialised",
		slog.String("backend", stack.Config.Backend),
		slog.String("model", stack.Config.Model),
		slog.Int("dimensions", dim),
	)

	corpusCfg, err := corpus.ConfigFromEnv()
	if err != nil {
		_ = stack.Close()
		return nil, err
	}
	st, err := corpus.Open(ctx, corpusCfg, dim, log)
	if err != nil {
		_ = stack.Close()
		return nil, fmt.Errorf("failed to open corpus: %w", err)
	}
	if st.Dimensions() != dim {
		_ = st.Close()
		_ = stack.Close()
		return nil, fmt.Errorf("%w: embedder produces %d dimensions, corpus stores %d",
			rag.ErrDimensionMismatch, dim, st.Dimensions())
	}

	svc, err := rag.NewService(stack.Embedder, index.New(st), &rag.ServiceConfig{
		DefaultTopK: getEnvInt("RAG_TOP_K", rag.DefaultTopK),
		MaxSources:  getEnvInt("RAG_MAX_SOURCES", rag.DefaultMaxSources),
		MinScore:    getEnvFloatPtr("RAG_MIN_SCORE"),
	})
	if err != nil {
		_ = st.Close()
		_ = stack.Close()
		return nil, err
	}

	return &engine{stack: stack, store: st, service: svc, corpusCfg: corpusCfg}, nil
}

// pipeline returns an ingestion pipeline writing to the engine's store.
func (e *engine) pipeline(log *slog.Logger) (*ingestion.Pipeline, error) {
	ch, err := chunker.New(
		getEnvInt("CHUNK_SIZE", chunker.DefaultSize),
		getEnvInt("CHUNK_OVERLAP", chunker.DefaultOverlap),
	)
	if err != nil {
		return nil, err
	}
	return ingestion.NewPipeline(e.stack.Embedder, e.store, ch, &ingestion.Config{Logger: log})
}

// Close releases the store and the embedder cache.
func (e *engine) Close() error {
	return errors.Join(e.store.Close(), e.stack.Close())
}

// knowledgeDB returns a pool on the shop database holding knowledge_base,
// reusing the corpus pool when the corpus itself lives in Postgres. The
// returned close function is a no-op for a reused pool. A nil pool means no
// database is configured.
func (e *engine) knowledgeDB(ctx context.Context) (*pgxpool.Pool, func(), error) {
	if pg, ok := e.store.(*corpus.Postgres); ok {
		return pg.Pool(), func() {}, nil
	}
	dsn := corpus.PostgresDSNFromEnv()
	if dsn == "" {
		return nil, func() {}, nil
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, func() {}, rag.Unavailable("connect knowledge database", err)
	}
	return pool, pool.Close, nil
}

// buildTools returns the knowledge tools for the assistant. The keyword
// fallback is enabled only when a knowledge database pool is available.
func buildTools(svc *rag.Service, pool *pgxpool.Pool) []tool.BaseTool {
	var keyword tools.KeywordSearcher
	if pool != nil {
		keyword = tools.NewPostgresKeywordSearcher(pool)
	}
	var out []tool.BaseTool
	for _, t := range tools.New(svc, keyword) {
		out = append(out, t)
	}
	return out
}

// buildAssistant constructs the chat assistant over the engine's service.
// history may be nil.
func (e *engine) buildAssistant(ctx context.Context, pool *pgxpool.Pool, history store.ConversationStore, log *slog.Logger) (*agent.Assistant, error) {
	providerCfg := provider.ConfigFromEnv()
	chatModel, err := provider.New(ctx, providerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised",
		slog.String("provider", string(providerCfg.Backend)),
		slog.String("model", providerCfg.ModelName()),
	)
	return agent.New(ctx, &agent.Config{
		ChatModel:    chatModel,
		Tools:        buildTools(e.service, pool),
		Retriever:    e.service,
		History:      history,
		HistoryDepth: getEnvInt("ALBAQER_HISTORY_DEPTH", 0),
	})
}

// openHistory opens the chat history store. ALBAQER_HISTORY_DB overrides
// the default path (~/.albaqer/history.db); "disabled" turns history off.
// Failures are logged and history is disabled.
func openHistory(log *slog.Logger) (store.ConversationStore, func()) {
	dbPath := os.Getenv("ALBAQER_HISTORY_DB")
	if dbPath == "disabled" {
		log.Info("history: disabled via ALBAQER_HISTORY_DB=disabled")
		return nil, func() {}
	}
	if dbPath == "" {
		var err error
		if dbPath, err = store.DefaultDBPath(); err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil, func() {}
		}
	}
	hs, err := store.Open(dbPath)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil, func() {}
	}
	log.Info("history: store opened", slog.String("path", dbPath))
	return hs, func() { _ = hs.Close() }
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvFloatPtr returns nil when key is unset or unparsable, so an
// explicit zero is distinguishable from no setting.
func getEnvFloatPtr(key string) *float64 {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
