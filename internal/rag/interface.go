// Package rag defines the retrieval engine's data model and the interfaces
// its pluggable parts satisfy: embedding, corpus storage, and nearest
// neighbour search. The Service type ties them together and is the public
// entry point used by the tool, agent, and HTTP layers.
package rag

import (
	"context"
)

// Metadata carries the tags a knowledge article is filed under. Every chunk
// inherits its document's metadata unchanged.
type Metadata struct {
	// Category is the topical bucket, e.g. "stones" or "care".
	Category string `json:"category"`

	// ContentType distinguishes informational articles from domain-specific
	// ones such as "islamic".
	ContentType string `json:"content_type"`

	// TargetAudience is the reader group, "all" by default.
	TargetAudience string `json:"target_audience"`

	// Language is the ISO code of the text, "en" by default.
	Language string `json:"language"`

	// Source is the originating file name or table reference.
	Source string `json:"source,omitempty"`
}

// Field returns the value of a filterable metadata key. The second result is
// false when the key is not part of the filter vocabulary.
func (m Metadata) Field(key string) (string, bool) {
	switch key {
	case FilterCategory:
		return m.Category, true
	case FilterContentType:
		return m.ContentType, true
	case FilterTargetAudience:
		return m.TargetAudience, true
	case FilterLanguage:
		return m.Language, true
	default:
		return "", false
	}
}

// Document is a source knowledge article as handed to ingestion.
type Document struct {
	// ID uniquely identifies the document across the corpus.
	ID string

	// Title is the human-readable headline shown in citations.
	Title string

	// Body is the full plain-text article.
	Body string

	// Metadata holds the article's filter tags.
	Metadata Metadata
}

// Chunk is a contiguous slice of a document body sized for embedding.
type Chunk struct {
	// DocumentID is the owning document's ID.
	DocumentID string

	// Index is the zero-based position of the chunk within its document.
	Index int

	// Title is copied from the owning document.
	Title string

	// Text is the chunk content.
	Text string

	// Metadata is inherited from the owning document.
	Metadata Metadata
}

// Entry is the persisted unit of the corpus: a chunk and its embedding.
type Entry struct {
	// ID is the stable entry identifier derived from document ID and chunk index.
	ID string

	// Seq is the store-assigned insertion sequence. Lower values were
	// inserted earlier and win score ties.
	Seq int64

	// Chunk is the text and metadata of this entry.
	Chunk Chunk

	// Embedding is the chunk's vector. Its length always equals the
	// store's configured dimensionality.
	Embedding []float32
}

// Hit is one ranked search result.
type Hit struct {
	// Entry is the matched corpus entry.
	Entry Entry

	// Score is the cosine similarity between the query and the entry.
	// Higher is more similar.
	Score float64
}

// Embedder converts text into dense vectors.
// Implementations must be deterministic and safe for concurrent use.
type Embedder interface {
	// Embed converts a batch of texts into embeddings parallel to the input.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions reports the length of every vector Embed returns.
	Dimensions() int
}

// CorpusStore is the durable home of corpus entries.
// Reads are safe for concurrent use. Writes are serialized by the store and
// never expose a partially written corpus to readers.
type CorpusStore interface {
	// Dimensions is the embedding length every entry must have.
	Dimensions() int

	// ReplaceAll atomically swaps the whole corpus for entries.
	ReplaceAll(ctx context.Context, entries []Entry) error

	// Add appends entries without touching existing ones.
	Add(ctx context.Context, entries []Entry) error

	// DeleteForDocument removes every chunk of documentID and returns how
	// many entries were removed.
	DeleteForDocument(ctx context.Context, documentID string) (int, error)

	// ReplaceDocument removes every chunk of documentID and inserts entries
	// in one write, returning how many entries were removed. On error the
	// document's previous chunks are left in place.
	ReplaceDocument(ctx context.Context, documentID string, entries []Entry) (int, error)

	// AllEntries returns every entry ordered by Seq.
	AllEntries(ctx context.Context) ([]Entry, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Close releases the backend handle.
	Close() error
}

// Index answers nearest-neighbour queries over a corpus.
type Index interface {
	// Nearest returns at most k hits that satisfy filter, ordered by
	// decreasing score with ties broken by ascending Seq. An empty corpus
	// or k <= 0 yields an empty slice and no error.
	Nearest(ctx context.Context, query []float32, k int, filter Filter) ([]Hit, error)
}
