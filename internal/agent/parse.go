package agent

import (
	"regexp"
	"strconv"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// citationPattern matches "[Source N]" markers in a reply.
var citationPattern = regexp.MustCompile(`\[Source (\d+)\]`)

// parseCitations returns the distinct source numbers cited in text, in
// order of first appearance.
func parseCitations(text string) []int {
	var out []int
	seen := map[int]bool{}
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// citedSources maps the citations in text to sources. Numbers outside
// 1..len(sources) are ignored.
func citedSources(text string, sources []rag.Source) []rag.Source {
	cited := []rag.Source{}
	for _, n := range parseCitations(text) {
		if n >= 1 && n <= len(sources) {
			cited = append(cited, sources[n-1])
		}
	}
	return cited
}
