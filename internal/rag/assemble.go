package rag

import (
	"fmt"
	"strings"
)

// NoContext is the context text returned when there is nothing to assemble.
const NoContext = "No relevant information found in knowledge base."

// Source is one citation produced alongside the assembled context.
type Source struct {
	Title    string  `json:"title"`
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

// Assemble concatenates up to maxSources hits, in the given order, into one
// text block. Each block is prefixed with "[Source N]" (1-based) followed by
// the title, with the chunk text on the next line. A maxSources of zero or
// less means no limit. An empty input yields NoContext and an empty,
// non-nil source list.
func Assemble(hits []Hit, maxSources int) (string, []Source) {
	if maxSources > 0 && len(hits) > maxSources {
		hits = hits[:maxSources]
	}
	sources := make([]Source, 0, len(hits))
	if len(hits) == 0 {
		return NoContext, sources
	}

	parts := make([]string, 0, len(hits))
	for i, h := range hits {
		parts = append(parts, fmt.Sprintf("[Source %d] %s\n%s\n", i+1, h.Entry.Chunk.Title, h.Entry.Chunk.Text))
		sources = append(sources, Source{
			Title:    h.Entry.Chunk.Title,
			Category: h.Entry.Chunk.Metadata.Category,
			Score:    h.Score,
		})
	}
	return strings.Join(parts, "\n"), sources
}
