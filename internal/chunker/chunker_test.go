package chunker

import (
	"math/rand/v2"
	"strings"
	"testing"
)

func mustNew(t *testing.T, size, overlap int) *Chunker {
	t.Helper()
	c, err := New(size, overlap)
	if err != nil {
		t.Fatalf("New(%d, %d): %v", size, overlap, err)
	}
	return c
}

// reconstruct joins chunks, dropping the overlap prefix of every chunk
// after the first.
func reconstruct(chunks []string, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		r := []rune(c)
		if i > 0 {
			r = r[overlap:]
		}
		b.WriteString(string(r))
	}
	return b.String()
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		size, overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -5, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
		{"overlap exceeds size", 10, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tt.size, tt.overlap); err == nil {
				t.Errorf("New(%d, %d): expected error", tt.size, tt.overlap)
			}
		})
	}
}

func TestSplit_EmptyAndShort(t *testing.T) {
	t.Parallel()

	c := mustNew(t, 100, 20)
	if got := c.Split(""); len(got) != 0 {
		t.Errorf("empty input: got %d chunks, want 0", len(got))
	}

	short := "Aqeeq is a red stone."
	got := c.Split(short)
	if len(got) != 1 || got[0] != short {
		t.Errorf("short input: got %q", got)
	}

	// Shorter than the overlap still yields exactly one chunk.
	if got := mustNew(t, 100, 50).Split("abc"); len(got) != 1 || got[0] != "abc" {
		t.Errorf("shorter than overlap: got %q", got)
	}
}

// TestSplit_HardCut2500 covers a boundary-free 2500-rune document with the
// default 1000/200 settings.
func TestSplit_HardCut2500(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("x", 2500)
	c := mustNew(t, 1000, 200)

	spans := c.Spans(body)
	if len(spans) != 3 {
		t.Fatalf("got %d chunks, want 3: %+v", len(spans), spans)
	}
	want := []Span{{0, 1000}, {800, 1800}, {1600, 2500}}
	for i := range want {
		if spans[i] != want[i] {
			t.Errorf("span[%d] = %+v, want %+v", i, spans[i], want[i])
		}
	}
	if spans[1].Start != spans[0].End-200 {
		t.Errorf("chunk 2 starts at %d, want %d", spans[1].Start, spans[0].End-200)
	}
	if got := reconstruct(c.Split(body), 200); got != body {
		t.Error("reconstruction mismatch")
	}
}

func TestSplit_PrefersParagraphOverSentence(t *testing.T) {
	t.Parallel()

	// Paragraph break at rune 30, sentence ends later at rune 45.
	para := strings.Repeat("a", 28) + "\n\n"
	sentence := strings.Repeat("b", 13) + ". "
	body := para + sentence + strings.Repeat("c", 40)

	c := mustNew(t, 50, 5)
	spans := c.Spans(body)
	if spans[0].End != len([]rune(para)) {
		t.Errorf("first chunk ends at %d, want paragraph end %d", spans[0].End, len([]rune(para)))
	}
}

func TestSplit_PrefersSentenceOverWhitespace(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("a", 30) + ". " + "word word word " + strings.Repeat("z", 40)
	c := mustNew(t, 45, 5)
	spans := c.Spans(body)
	if spans[0].End != 32 {
		t.Errorf("first chunk ends at %d, want 32 (after \". \")", spans[0].End)
	}
}

func TestSplit_FallsBackToWhitespace(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("a", 35) + " " + strings.Repeat("b", 40)
	c := mustNew(t, 40, 4)
	spans := c.Spans(body)
	if spans[0].End != 36 {
		t.Errorf("first chunk ends at %d, want 36", spans[0].End)
	}
}

func TestSplit_ExactOverlap(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("The stone is red. It is worn for protection.\n\n", 40)
	c := mustNew(t, 120, 30)
	chunks := c.Split(body)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		cur := []rune(chunks[i])
		if string(prev[len(prev)-30:]) != string(cur[:30]) {
			t.Errorf("chunk %d does not start with the last 30 runes of chunk %d", i, i-1)
		}
		if len(cur) > 120 {
			t.Errorf("chunk %d has %d runes, exceeds size", i, len(cur))
		}
	}
}

func TestSplit_MultibyteRunes(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("عقيق ", 60)
	c := mustNew(t, 50, 10)
	chunks := c.Split(body)
	for i, ch := range chunks {
		if n := len([]rune(ch)); n > 50 {
			t.Errorf("chunk %d has %d runes", i, n)
		}
	}
	if reconstruct(chunks, 10) != body {
		t.Error("reconstruction mismatch for multibyte text")
	}
}

// TestSplit_ReconstructionProperty checks reconstruction, determinism, and
// the size bound over random texts and parameters.
func TestSplit_ReconstructionProperty(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))
	pieces := []string{"gem", "aqeeq", "stone", " ", " ", ". ", "! ", "\n", "\n\n", "فيروز", "x"}

	for iter := 0; iter < 300; iter++ {
		var b strings.Builder
		for n := rng.IntN(400); n > 0; n-- {
			b.WriteString(pieces[rng.IntN(len(pieces))])
		}
		body := b.String()
		size := 1 + rng.IntN(80)
		overlap := rng.IntN(size)
		c := mustNew(t, size, overlap)

		chunks := c.Split(body)
		if body == "" {
			if len(chunks) != 0 {
				t.Fatalf("iter %d: empty body produced %d chunks", iter, len(chunks))
			}
			continue
		}
		if len(chunks) == 0 {
			t.Fatalf("iter %d: non-empty body produced no chunks", iter)
		}
		if got := reconstruct(chunks, overlap); got != body {
			t.Fatalf("iter %d (size=%d overlap=%d): reconstruction mismatch", iter, size, overlap)
		}
		for i, ch := range chunks {
			if n := len([]rune(ch)); n > size {
				t.Fatalf("iter %d: chunk %d has %d runes > %d", iter, i, n, size)
			}
		}
		again := c.Split(body)
		if len(again) != len(chunks) {
			t.Fatalf("iter %d: non-deterministic chunk count", iter)
		}
		for i := range chunks {
			if again[i] != chunks[i] {
				t.Fatalf("iter %d: chunk %d differs between runs", iter, i)
			}
		}
	}
}
