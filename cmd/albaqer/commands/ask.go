package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/logging"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/store"
)

// NewAskCmd constructs the `albaqer ask` command, which sends a single
// question to the assistant and streams the reply to stdout.
func NewAskCmd() *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the gemstone assistant a question",
		Long: `Ask the AlBaqer assistant a question. Relevant knowledge base passages
are injected before the model answers, and the model may search the
knowledge base further through its tools.

--session keeps a conversation going across invocations; turns are stored
in the history database (ALBAQER_HISTORY_DB).

Examples:
  albaqer ask "what are the benefits of wearing aqeeq?"
  albaqer ask --session shop-42 "and how should I clean it?"
  MODEL_PROVIDER=deepseek albaqer ask "which stones suit a silver ring?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			eng, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer func() { _ = eng.Close() }()

			pool, closePool, err := eng.knowledgeDB(ctx)
			if err != nil {
				log.Warn("keyword fallback unavailable", slog.Any("error", err))
			}
			defer closePool()

			var history store.ConversationStore
			closeHistory := func() {}
			if session != "" {
				history, closeHistory = openHistory(log)
			}
			defer closeHistory()

			assistant, err := eng.buildAssistant(ctx, pool, history, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			answer, err := assistant.Ask(ctx, session, strings.Join(args, " "), os.Stdout)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			fmt.Fprintln(os.Stdout)
			if len(answer.Cited) > 0 {
				fmt.Fprintln(os.Stdout, "\nSources:")
				for i, s := range answer.Cited {
					fmt.Fprintf(os.Stdout, "  [%d] %s (%s)\n", i+1, s.Title, s.Category)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&session, "session", "s", "", "Conversation ID for multi-turn history")

	return cmd
}
