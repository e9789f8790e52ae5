package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/logging"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// NewSearchCmd constructs the `albaqer search` command, which prints the
// nearest corpus chunks for a query with their raw similarity scores.
func NewSearchCmd() *cobra.Command {
	var (
		topK       int
		filterSpec string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Rank knowledge base chunks by similarity to a query",
		Long: `Embed a query and print the most similar chunks in the corpus.

Scores are cosine similarities in [-1, 1]; no relevance floor is applied.
--filter restricts results to chunks whose metadata matches every pair.
Valid keys: category, content_type, target_audience, language.

Examples:
  albaqer search "benefits of wearing aqeeq"
  albaqer search --top-k 5 --filter category=stones "turquoise"
  albaqer search --json "how to clean silver rings"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			filter, err := rag.ParseFilter(filterSpec)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			eng, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer func() { _ = eng.Close() }()

			query := strings.Join(args, " ")
			if topK <= 0 {
				topK = rag.DefaultTopK
			}
			hits, err := eng.service.Search(ctx, query, topK, filter)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(hitsJSON(hits))
			}
			printHits(os.Stdout, hits)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", rag.DefaultTopK, "Number of results to return")
	cmd.Flags().StringVarP(&filterSpec, "filter", "f", "", "Metadata filter, e.g. category=stones,language=en")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")

	return cmd
}

type hitJSON struct {
	DocumentID  string  `json:"document_id"`
	Chunk       int     `json:"chunk"`
	Title       string  `json:"title"`
	Category    string  `json:"category"`
	ContentType string  `json:"content_type"`
	Score       float64 `json:"score"`
	Content     string  `json:"content"`
}

func hitsJSON(hits []rag.Hit) []hitJSON {
	out := make([]hitJSON, 0, len(hits))
	for _, h := range hits {
		c := h.Entry.Chunk
		out = append(out, hitJSON{
			DocumentID:  c.DocumentID,
			Chunk:       c.Index,
			Title:       c.Title,
			Category:    c.Metadata.Category,
			ContentType: c.Metadata.ContentType,
			Score:       h.Score,
			Content:     c.Text,
		})
	}
	return out
}

// printHits writes a numbered, human-readable listing with a short preview
// of each chunk.
func printHits(w io.Writer, hits []rag.Hit) {
	if len(hits) == 0 {
		fmt.Fprintln(w, "no results")
		return
	}
	for i, h := range hits {
		c := h.Entry.Chunk
		fmt.Fprintf(w, "%d. %s [%s] score=%.4f\n", i+1, c.Title, c.Metadata.Category, h.Score)
		fmt.Fprintf(w, "   %s#%d\n", c.DocumentID, c.Index)
		fmt.Fprintf(w, "   %s\n\n", preview(c.Text, 160))
	}
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
