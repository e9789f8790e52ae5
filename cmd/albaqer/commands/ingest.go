package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/ingestion"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/logging"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// NewIngestCmd constructs the `albaqer ingest` command, which runs the
// ingestion pipeline to populate the corpus.
func NewIngestCmd() *cobra.Command {
	var (
		dir         string
		urls        []string
		fromDB      bool
		rebuild     bool
		remove      []string
		watch       bool
		debounce    time.Duration
		category    string
		contentType string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest knowledge base articles into the corpus",
		Long: `Chunk, embed and store gemstone knowledge base articles.

Sources (combinable):
  --dir      a directory of .md/.txt articles; category comes from the
             parent directory, and an optional YAML front-matter block
             overrides title and metadata
  --from-db  the knowledge_base table of the shop database
             (DATABASE_URL or DB_HOST/DB_NAME/DB_USER/DB_PASSWORD)
  --url      a web page or text file (repeatable)

By default each document replaces its previous chunks. --rebuild swaps
the whole corpus in one step instead, and only after every article has
been embedded, so a failed rebuild leaves the old corpus in place.

Examples:
  albaqer ingest --dir ./knowledge --rebuild
  albaqer ingest --from-db
  albaqer ingest --url https://example.com/aqeeq.html --category stones
  albaqer ingest --remove stones/aqeeq
  albaqer ingest --dir ./knowledge --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)

			if dir == "" && len(urls) == 0 && !fromDB && len(remove) == 0 {
				return fmt.Errorf("ingest: one of --dir, --url, --from-db or --remove is required")
			}
			if watch && dir == "" {
				return fmt.Errorf("ingest: --watch requires --dir")
			}

			eng, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer func() { _ = eng.Close() }()

			pipeline, err := eng.pipeline(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			for _, id := range remove {
				n, err := pipeline.Remove(ctx, id)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				log.Info("document removed", slog.String("document_id", id), slog.Int("chunks", n))
			}

			var docs []rag.Document
			if dir != "" {
				loaded, err := ingestion.LoadDir(dir)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				log.Info("loaded directory", slog.String("dir", dir), slog.Int("documents", len(loaded)))
				docs = append(docs, loaded...)
			}
			if fromDB {
				pool, closePool, err := eng.knowledgeDB(ctx)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				defer closePool()
				if pool == nil {
					return fmt.Errorf("ingest: --from-db requires DATABASE_URL or DB_HOST")
				}
				loaded, err := ingestion.LoadKnowledgeBase(ctx, pool)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				log.Info("loaded knowledge_base table", slog.Int("documents", len(loaded)))
				docs = append(docs, loaded...)
			}
			for _, u := range urls {
				doc, err := pipeline.FetchURL(ctx, u, rag.Metadata{Category: category, ContentType: contentType})
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				docs = append(docs, doc)
			}

			if len(docs) > 0 {
				progress := func(msg string) { log.Info(msg) }
				var stats ingestion.Stats
				if rebuild {
					stats, err = pipeline.Rebuild(ctx, docs, progress)
				} else {
					stats, err = pipeline.Ingest(ctx, docs, progress)
				}
				if err != nil {
					return fmt.Errorf("ingest: pipeline failed: %w", err)
				}
				log.Info("ingestion complete",
					slog.Bool("rebuild", rebuild),
					slog.Int("documents", stats.Documents),
					slog.Int("chunks", stats.Chunks),
					slog.Int("replaced", stats.Removed),
				)
			}

			if watch {
				return ingestion.NewWatcher(dir, pipeline, debounce, log).Run(ctx)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory of .md/.txt knowledge articles")
	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "URL to ingest (repeatable)")
	cmd.Flags().BoolVar(&fromDB, "from-db", false, "Ingest the knowledge_base table of the shop database")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Replace the whole corpus atomically")
	cmd.Flags().StringArrayVar(&remove, "remove", nil, "Document ID to remove from the corpus (repeatable)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep running and re-ingest files in --dir as they change")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Quiet period before a changed file is re-ingested")
	cmd.Flags().StringVar(&category, "category", "", "Category for --url documents (default: general)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Content type for --url documents (default: informational)")

	return cmd
}
