// Package chunker splits document bodies into overlapping segments sized
// for embedding.
//
// Sizes and offsets are counted in runes. A chunk ends at the last
// paragraph break inside its budget, else the last sentence end, else the
// last whitespace, else it is cut hard at the budget. The next chunk starts
// exactly Overlap runes before the previous one ended, so dropping the
// first Overlap runes of every chunk after the first and concatenating
// reproduces the body.
package chunker

import (
	"fmt"
	"unicode"
)

// Defaults used by the ingestion command.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Span is a chunk's rune range [Start, End) within the body.
type Span struct {
	Start int
	End   int
}

// Chunker holds a validated size/overlap pair.
type Chunker struct {
	size    int
	overlap int
}

// New returns a Chunker producing chunks of at most size runes that overlap
// by overlap runes. size must be positive and overlap in [0, size).
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunker: size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunker: overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the maximum chunk length in runes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the overlap between neighbouring chunks in runes.
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the chunk texts of body in order. Empty input yields nil.
func (c *Chunker) Split(body string) []string {
	r := []rune(body)
	spans := c.spans(r)
	if len(spans) == 0 {
		return nil
	}
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = string(r[s.Start:s.End])
	}
	return out
}

// Spans returns the rune ranges Split would cut body into.
func (c *Chunker) Spans(body string) []Span {
	return c.spans([]rune(body))
}

func (c *Chunker) spans(r []rune) []Span {
	n := len(r)
	if n == 0 {
		return nil
	}

	var out []Span
	start := 0
	for {
		if n-start <= c.size {
			out = append(out, Span{Start: start, End: n})
			return out
		}
		end := c.boundary(r, start)
		out = append(out, Span{Start: start, End: end})
		// end > start+overlap, so every step advances.
		start = end - c.overlap
	}
}

// boundary picks the end of the chunk starting at start. Candidates lie in
// [lo, hi]; lo keeps chunks from collapsing to slivers and guarantees
// progress past the overlap.
func (c *Chunker) boundary(r []rune, start int) int {
	hi := start + c.size
	lo := start + max(c.overlap+1, c.size/2)

	// Paragraph break: end after "\n\n".
	for e := hi; e >= lo; e-- {
		if e >= 2 && r[e-1] == '\n' && r[e-2] == '\n' {
			return e
		}
	}
	// Sentence end: after ". ", "! ", "? " or a single newline.
	for e := hi; e >= lo; e-- {
		if r[e-1] == '\n' {
			return e
		}
		if e >= 2 && r[e-1] == ' ' && isTerminal(r[e-2]) {
			return e
		}
	}
	// Any whitespace.
	for e := hi; e >= lo; e-- {
		if unicode.IsSpace(r[e-1]) {
			return e
		}
	}
	return hi
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
