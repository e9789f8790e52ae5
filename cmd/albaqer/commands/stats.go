package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/logging"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

type corpusStats struct {
	Backend    string         `json:"backend"`
	Dimensions int            `json:"dimensions"`
	Entries    int            `json:"entries"`
	Documents  int            `json:"documents"`
	Categories map[string]int `json:"categories"`
	Chunks     map[string]int `json:"chunks_per_document,omitempty"`
}

// NewStatsCmd constructs the `albaqer stats` command, which summarises the
// contents of the configured corpus.
func NewStatsCmd() *cobra.Command {
	var (
		perDocument bool
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarise the corpus",
		Long: `Print the corpus backend, vector dimensionality, entry count, and the
number of chunks per category. --documents adds a per-document breakdown.

Examples:
  albaqer stats
  albaqer stats --documents --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			eng, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			defer func() { _ = eng.Close() }()

			entries, err := eng.store.AllEntries(ctx)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			st := summarise(eng.corpusCfg.Backend, eng.store.Dimensions(), entries)
			if !perDocument {
				st.Chunks = nil
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			fmt.Printf("backend:    %s\n", st.Backend)
			fmt.Printf("dimensions: %d\n", st.Dimensions)
			fmt.Printf("entries:    %d\n", st.Entries)
			fmt.Printf("documents:  %d\n", st.Documents)
			fmt.Println("categories:")
			for _, k := range sortedKeys(st.Categories) {
				fmt.Printf("  %-20s %d\n", k, st.Categories[k])
			}
			if perDocument {
				fmt.Println("documents:")
				for _, k := range sortedKeys(st.Chunks) {
					fmt.Printf("  %-40s %d\n", k, st.Chunks[k])
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&perDocument, "documents", false, "Include chunk counts per document")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print statistics as JSON")

	return cmd
}

func summarise(backend string, dim int, entries []rag.Entry) corpusStats {
	st := corpusStats{
		Backend:    backend,
		Dimensions: dim,
		Entries:    len(entries),
		Categories: map[string]int{},
		Chunks:     map[string]int{},
	}
	for _, e := range entries {
		st.Chunks[e.Chunk.DocumentID]++
		st.Categories[e.Chunk.Metadata.Category]++
	}
	st.Documents = len(st.Chunks)
	return st
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
