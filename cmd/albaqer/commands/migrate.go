package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/corpus"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/embedder"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/logging"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// migratable lists the durable backends a corpus can be copied between.
var migratable = []string{"sqlite", "postgres", "qdrant"}

// NewMigrateCmd constructs the `albaqer migrate` command, which copies a
// stored corpus from one backend to another without re-embedding it.
func NewMigrateCmd() *cobra.Command {
	var from, to string
	var fromPath, toPath, toCollection string
	var dim int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy the corpus between backends without re-embedding",
		Long: `Copy every stored entry from one corpus backend to another.

Embeddings are copied as they are, so both backends must hold vectors of the
same length. The target corpus is replaced in one step; a failure leaves it
untouched. Connection settings come from the usual environment variables
(DATABASE_URL or DB_*, QDRANT_*, CORPUS_SQLITE_PATH).

Examples:
  albaqer migrate --from sqlite --to postgres
  albaqer migrate --from postgres --to qdrant --to-collection albaqer_kb_v2
  albaqer migrate --from sqlite --from-path ./old.db --to sqlite --to-path ./new.db`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			for _, b := range []string{from, to} {
				if !slices.Contains(migratable, b) {
					return fmt.Errorf("migrate: backend %q is not migratable (valid: %v)", b, migratable)
				}
			}
			if from == to && from != "sqlite" {
				return fmt.Errorf("migrate: source and target are both %s", from)
			}
			if from == "sqlite" && to == "sqlite" && fromPath == toPath {
				return fmt.Errorf("migrate: --from-path and --to-path must differ")
			}

			base, err := corpus.ConfigFromEnv()
			if err != nil {
				return err
			}
			if dim <= 0 {
				dim = embedder.DefaultDimensions(embedder.ResolveBackend())
			}

			srcCfg := *base
			srcCfg.Backend = from
			if fromPath != "" {
				srcCfg.SQLitePath = fromPath
			}
			src, err := corpus.Open(ctx, &srcCfg, dim, log)
			if err != nil {
				return fmt.Errorf("migrate: open source: %w", err)
			}
			defer func() { _ = src.Close() }()

			dstCfg := *base
			dstCfg.Backend = to
			if toPath != "" {
				dstCfg.SQLitePath = toPath
			}
			if toCollection != "" {
				dstCfg.Qdrant.Alias = toCollection
			}
			dst, err := corpus.Open(ctx, &dstCfg, dim, log)
			if err != nil {
				return fmt.Errorf("migrate: open target: %w", err)
			}
			defer func() { _ = dst.Close() }()

			n, err := migrateCorpus(ctx, src, dst, log)
			if err != nil {
				return err
			}
			return printMigrated(cmd.OutOrStdout(), from, to, n)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Source backend (sqlite, postgres, qdrant)")
	cmd.Flags().StringVar(&to, "to", "", "Target backend (sqlite, postgres, qdrant)")
	cmd.Flags().StringVar(&fromPath, "from-path", "", "SQLite file for the source (default: CORPUS_SQLITE_PATH)")
	cmd.Flags().StringVar(&toPath, "to-path", "", "SQLite file for the target (default: CORPUS_SQLITE_PATH)")
	cmd.Flags().StringVar(&toCollection, "to-collection", "", "Qdrant alias for the target (default: QDRANT_COLLECTION)")
	cmd.Flags().IntVar(&dim, "dimensions", 0, "Embedding length of the stored corpus (default: the configured embedder's)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

// migrateCorpus replaces dst's corpus with every entry of src, in Seq
// order, and returns how many entries the target holds afterwards.
func migrateCorpus(ctx context.Context, src, dst rag.CorpusStore, log *slog.Logger) (int, error) {
	if src.Dimensions() != dst.Dimensions() {
		return 0, fmt.Errorf("migrate: %w: source holds %d-dimensional vectors, target expects %d",
			rag.ErrDimensionMismatch, src.Dimensions(), dst.Dimensions())
	}
	entries, err := src.AllEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("migrate: read source: %w", err)
	}
	if len(entries) == 0 {
		return 0, fmt.Errorf("migrate: source corpus is empty")
	}
	log.Info("migrate: copying corpus", slog.Int("entries", len(entries)))

	if err := dst.ReplaceAll(ctx, entries); err != nil {
		return 0, fmt.Errorf("migrate: write target: %w", err)
	}
	n, err := dst.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("migrate: verify target: %w", err)
	}
	if n != len(entries) {
		return n, fmt.Errorf("migrate: target holds %d entries after copying %d", n, len(entries))
	}
	return n, nil
}

func printMigrated(w io.Writer, from, to string, n int) error {
	_, err := fmt.Fprintf(w, "migrated %d entries from %s to %s\n", n, from, to)
	return err
}
