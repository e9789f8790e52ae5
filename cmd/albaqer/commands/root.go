// Package commands defines all Cobra CLI commands for the albaqer binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/audit"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/config"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// envFile holds the --env-file flag value.
var envFile string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "albaqer",
		Short: "AlBaqer gemstone knowledge engine",
		Long: `albaqer indexes the AlBaqer gemstone knowledge base and answers questions
against it by meaning rather than by keyword.

Articles are split into overlapping chunks, embedded, and stored in a corpus
backend (sqlite, postgres with pgvector, qdrant, or memory). Queries are
embedded the same way and ranked by cosine similarity.

Configuration comes from environment variables, optionally seeded from a
.env file and a YAML config file (~/.albaqer/config.yaml).
See 'albaqer --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// .env first, then YAML; neither overrides the real environment.
			if err := config.LoadDotEnv(envFile, log); err != nil {
				return err
			}
			loaded, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			// LOG_LEVEL/LOG_FORMAT may have come from either file.
			log = logging.New()
			cmd.SetContext(logging.WithLogger(cmd.Context(), log))

			audit.LogCommandStart(log, cmd.Name(), loaded)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.albaqer/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a .env file (default: ./.env)")

	root.AddCommand(
		NewIngestCmd(),
		NewSearchCmd(),
		NewQueryCmd(),
		NewAskCmd(),
		NewServeCmd(),
		NewDiagnoseCmd(),
		NewMigrateCmd(),
		NewStatsCmd(),
		NewVersionCmd(),
	)

	return root
}
