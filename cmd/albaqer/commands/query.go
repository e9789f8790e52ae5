package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/logging"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// NewQueryCmd constructs the `albaqer query` command, which prints the
// assembled context block the assistant would receive for a question.
func NewQueryCmd() *cobra.Command {
	var (
		filterSpec string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Assemble knowledge base context for a question",
		Long: `Retrieve and assemble the context block for a question without calling
a chat model. Chunks below the minimum relevance (RAG_MIN_SCORE, default
0.3) are dropped; when nothing remains a fixed no-context message is
printed instead.

Examples:
  albaqer query "is it permissible to wear a ring while praying?"
  albaqer query --filter content_type=islamic "significance of aqeeq"
  albaqer query --json "ruby care"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			filter, err := rag.ParseFilter(filterSpec)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			eng, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			defer func() { _ = eng.Close() }()

			resp, err := eng.service.RAGQuery(ctx, strings.Join(args, " "), filter)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			fmt.Fprintln(os.Stdout, resp.Context)
			if resp.NumSources > 0 {
				fmt.Fprintln(os.Stdout)
				fmt.Fprintln(os.Stdout, "Sources:")
				for i, s := range resp.Sources {
					fmt.Fprintf(os.Stdout, "  [%d] %s (%s) %.4f\n", i+1, s.Title, s.Category, s.Score)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&filterSpec, "filter", "f", "", "Metadata filter, e.g. content_type=islamic")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the response as JSON")

	return cmd
}
