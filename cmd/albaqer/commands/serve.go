package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/agent"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/corpus"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/logging"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/server"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/tracing"
)

// NewServeCmd constructs the `albaqer serve` command, which starts the HTTP
// API used by the shop's chatbot backend.
func NewServeCmd() *cobra.Command {
	var host string
	var port int
	var noAssistant bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the retrieval HTTP API",
		Long: `Start the AlBaqer HTTP server.

Routes:
  POST /api/search   ranked chunks for a query (raw similarity scores)
  POST /api/rag      assembled context block for a question
  POST /api/ask      streamed assistant reply (SSE); needs a chat model
  GET  /api/health   liveness
  GET  /api/ready    dependency probes (corpus, embedder, databases, cache)
  GET  /metrics      Prometheus metrics

/api/search, /api/rag and /api/ask require "Authorization: Bearer <key>"
when ALBAQER_API_KEY is set. If the chat model cannot be initialised the
server still starts and /api/ask answers 503.

Examples:
  albaqer serve
  albaqer serve --port 9090
  CORPUS_BACKEND=qdrant albaqer serve --no-assistant`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)

			// Langfuse tracing is opt-in, a no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			eng, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = eng.Close() }()

			pool, closePool, err := eng.knowledgeDB(ctx)
			if err != nil {
				log.Warn("knowledge database unavailable, keyword fallback disabled", slog.Any("error", err))
			}
			defer closePool()

			var assistant *agent.Assistant
			if !noAssistant {
				history, closeHistory := openHistory(log)
				defer closeHistory()
				assistant, err = eng.buildAssistant(ctx, pool, history, log)
				if err != nil {
					log.Warn("assistant unavailable, /api/ask disabled", slog.Any("error", err))
					assistant = nil
				}
			}

			srv, err := server.New(eng.service, assistant, &server.Config{
				Host:       host,
				Port:       port,
				Logger:     log,
				Pingers:    buildPingers(eng, pool),
				APIKey:     os.Getenv("ALBAQER_API_KEY"),
				RateLimit:  getEnvFloat("ALBAQER_RATE_LIMIT", 0),
				RateBurst:  getEnvInt("ALBAQER_RATE_BURST", 0),
				TrustProxy: os.Getenv("ALBAQER_TRUST_PROXY") == "true",
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")
	cmd.Flags().BoolVar(&noAssistant, "no-assistant", false, "Serve retrieval only, without a chat model")

	return cmd
}

// buildPingers returns the readiness probes for every dependency the engine
// talks to. pool may be nil.
func buildPingers(eng *engine, pool *pgxpool.Pool) []server.Pinger {
	pingers := []server.Pinger{
		server.NewCorpusPinger(eng.store),
		server.NewEmbedderPinger(eng.stack.Embedder, "embedder:"+eng.stack.Config.Backend),
	}
	if q, ok := eng.store.(*corpus.Qdrant); ok {
		pingers = append(pingers, server.NewQdrantPinger(q.Client()))
	}
	if pool != nil {
		pingers = append(pingers, server.NewPostgresPinger(pool))
	}
	if eng.stack.Cache != nil {
		pingers = append(pingers, eng.stack.Cache)
	}
	return pingers
}
