package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/logging"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/server"
)

// NewDiagnoseCmd constructs the `albaqer diagnose` command, which probes
// every dependency the engine is configured to use and optionally runs a
// sample retrieval end to end.
func NewDiagnoseCmd() *cobra.Command {
	var question string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Check the corpus, embedder, and databases",
		Long: `Probe the configured dependencies the same way GET /api/ready does and
report each one. With --question, a retrieval is run as well and the
number of sources above the relevance floor is printed.

Exits non-zero if any probe fails.

Examples:
  albaqer diagnose
  CORPUS_BACKEND=qdrant albaqer diagnose --question "aqeeq benefits"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			eng, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("diagnose: %w", err)
			}
			defer func() { _ = eng.Close() }()

			pool, closePool, err := eng.knowledgeDB(ctx)
			if err != nil {
				return fmt.Errorf("diagnose: %w", err)
			}
			defer closePool()

			out := cmd.OutOrStdout()
			failed := probeAll(ctx, out, buildPingers(eng, pool), timeout)

			if question != "" {
				resp, err := eng.service.RAGQuery(ctx, question, nil)
				if err != nil {
					fmt.Fprintf(out, "%-24s FAIL  %v\n", "retrieval", err)
					failed++
				} else {
					fmt.Fprintf(out, "%-24s ok    %d source(s)\n", "retrieval", resp.NumSources)
				}
			}

			if failed > 0 {
				return fmt.Errorf("diagnose: %d check(s) failed", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&question, "question", "q", "", "Run a sample retrieval for this question")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Timeout per probe")

	return cmd
}

// probeAll probes every dependency, writes one line per check, and returns
// the number of failures.
func probeAll(ctx context.Context, w io.Writer, pingers []server.Pinger, timeout time.Duration) int {
	failed := 0
	for _, c := range server.Probe(ctx, pingers, timeout) {
		if !c.OK {
			fmt.Fprintf(w, "%-24s FAIL  %s\n", c.Name, c.Error)
			failed++
			continue
		}
		fmt.Fprintf(w, "%-24s ok    %dms\n", c.Name, c.LatencyMS)
	}
	return failed
}
