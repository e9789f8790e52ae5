// Package ingestion turns gemstone knowledge articles into corpus entries.
// It chunks each article, embeds the chunks, and writes the results to the
// corpus store. Articles come from a directory of Markdown/text files, the
// shop database's knowledge_base table, or a URL. This pipeline is invoked
// by the `albaqer ingest` CLI command and the directory watcher.
package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/chunker"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// entryNamespace seeds the name-based UUIDs of corpus entries so the same
// document chunk always maps to the same ID.
var entryNamespace = uuid.MustParse("6f1c2f0e-5b0a-4d8e-9a44-0a1b2c3d4e5f")

// EntryID returns the stable entry ID for chunk index of documentID.
func EntryID(documentID string, index int) string {
	return uuid.NewSHA1(entryNamespace, fmt.Appendf(nil, "%s#%d", documentID, index)).String()
}

// EmbeddingText is the text embedded for a chunk: the document title, a
// blank line, and the chunk text.
func EmbeddingText(c rag.Chunk) string {
	if c.Title == "" {
		return c.Text
	}
	return c.Title + "\n\n" + c.Text
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// BatchSize is the number of chunks sent to the embedder per call.
	// Defaults to 32 if zero.
	BatchSize int

	// HTTPTimeout is the timeout for each URL fetch. Defaults to 30s if zero.
	HTTPTimeout time.Duration

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string

	// Logger receives per-document progress. Defaults to slog.Default().
	Logger *slog.Logger
}

// Stats summarises one pipeline run.
type Stats struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
	Removed   int `json:"removed"`
}

// Pipeline orchestrates the chunk → embed → store flow.
type Pipeline struct {
	embedder   rag.Embedder
	store      rag.CorpusStore
	chunker    *chunker.Chunker
	cfg        *Config
	httpClient *http.Client
	log        *slog.Logger
}

// NewPipeline constructs a Pipeline. The embedder and store must agree on
// dimensionality.
func NewPipeline(embedder rag.Embedder, store rag.CorpusStore, ch *chunker.Chunker, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if ch == nil {
		return nil, fmt.Errorf("ingestion: chunker must not be nil")
	}
	if embedder.Dimensions() != store.Dimensions() {
		return nil, fmt.Errorf("ingestion: %w: embedder produces %d dimensions, store expects %d",
			rag.ErrDimensionMismatch, embedder.Dimensions(), store.Dimensions())
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "albaqer-chatbot/1.0 (knowledge base ingestion)"
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Pipeline{
		embedder:   embedder,
		store:      store,
		chunker:    ch,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		log:        log,
	}, nil
}

// Chunks splits doc into chunks carrying its title and metadata. An empty
// body yields no chunks.
func (p *Pipeline) Chunks(doc rag.Document) []rag.Chunk {
	texts := p.chunker.Split(doc.Body)
	chunks := make([]rag.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = rag.Chunk{
			DocumentID: doc.ID,
			Index:      i,
			Title:      doc.Title,
			Text:       t,
			Metadata:   doc.Metadata,
		}
	}
	return chunks
}

// Rebuild replaces the whole corpus with docs. Nothing is written until
// every chunk is embedded, so a failure leaves the previous corpus intact.
func (p *Pipeline) Rebuild(ctx context.Context, docs []rag.Document, progress func(msg string)) (Stats, error) {
	progress = orNop(progress)
	var all []rag.Entry
	for _, doc := range docs {
		entries, err := p.entries(ctx, doc)
		if err != nil {
			return Stats{}, err
		}
		progress(fmt.Sprintf("embedded %q into %d chunks", doc.ID, len(entries)))
		all = append(all, entries...)
	}
	if err := p.store.ReplaceAll(ctx, all); err != nil {
		return Stats{}, fmt.Errorf("ingestion: replace corpus: %w", err)
	}
	p.log.Info("ingestion: corpus rebuilt",
		slog.Int("documents", len(docs)),
		slog.Int("chunks", len(all)),
	)
	return Stats{Documents: len(docs), Chunks: len(all)}, nil
}

// Ingest re-indexes each document. The document is embedded first and its
// old chunks are then swapped for the new ones in a single store write, so
// a failure at any step leaves the previous version searchable.
func (p *Pipeline) Ingest(ctx context.Context, docs []rag.Document, progress func(msg string)) (Stats, error) {
	progress = orNop(progress)
	var st Stats
	for _, doc := range docs {
		entries, err := p.entries(ctx, doc)
		if err != nil {
			return st, err
		}
		removed, err := p.store.ReplaceDocument(ctx, doc.ID, entries)
		if err != nil {
			return st, fmt.Errorf("ingestion: replace %q: %w", doc.ID, err)
		}
		st.Documents++
		st.Chunks += len(entries)
		st.Removed += removed
		progress(fmt.Sprintf("ingested %q: %d chunks (replaced %d)", doc.ID, len(entries), removed))
		p.log.Debug("ingestion: document ingested",
			slog.String("document_id", doc.ID),
			slog.Int("chunks", len(entries)),
			slog.Int("removed", removed),
		)
	}
	return st, nil
}

// Add appends docs without removing anything first.
func (p *Pipeline) Add(ctx context.Context, docs []rag.Document) (Stats, error) {
	var all []rag.Entry
	for _, doc := range docs {
		entries, err := p.entries(ctx, doc)
		if err != nil {
			return Stats{}, err
		}
		all = append(all, entries...)
	}
	if err := p.store.Add(ctx, all); err != nil {
		return Stats{}, fmt.Errorf("ingestion: add: %w", err)
	}
	return Stats{Documents: len(docs), Chunks: len(all)}, nil
}

// Remove deletes every chunk of documentID.
func (p *Pipeline) Remove(ctx context.Context, documentID string) (int, error) {
	n, err := p.store.DeleteForDocument(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("ingestion: delete %q: %w", documentID, err)
	}
	return n, nil
}

// entries chunks and embeds one document.
func (p *Pipeline) entries(ctx context.Context, doc rag.Document) ([]rag.Entry, error) {
	if doc.ID == "" {
		return nil, fmt.Errorf("ingestion: document %q has no ID", doc.Title)
	}
	chunks := p.Chunks(doc)
	entries := make([]rag.Entry, 0, len(chunks))

	for start := 0; start < len(chunks); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, EmbeddingText(c))
		}
		vecs, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("ingestion: embed %q: %w", doc.ID, err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("ingestion: embed %q: got %d vectors for %d chunks", doc.ID, len(vecs), len(texts))
		}
		for i, c := range chunks[start:end] {
			entries = append(entries, rag.Entry{
				ID:        EntryID(doc.ID, c.Index),
				Chunk:     c,
				Embedding: vecs[i],
			})
		}
	}
	return entries, nil
}

// FetchURL retrieves a page and returns it as a document. HTML is reduced
// to its visible text. The URL is the document ID.
func (p *Pipeline) FetchURL(ctx context.Context, url string, meta rag.Metadata) (rag.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return rag.Document{}, fmt.Errorf("ingestion: creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", "text/plain, text/markdown, text/html")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return rag.Document{}, fmt.Errorf("ingestion: http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return rag.Document{}, fmt.Errorf("ingestion: unexpected status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return rag.Document{}, fmt.Errorf("ingestion: reading body: %w", err)
	}

	doc := rag.Document{ID: url, Body: string(body), Metadata: meta}
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		doc.Title, doc.Body = htmlText(string(body))
	}
	if doc.Title == "" {
		doc.Title = url
	}
	if doc.Metadata.Source == "" {
		doc.Metadata.Source = url
	}
	doc.Metadata = WithDefaults(doc.Metadata)
	return doc, nil
}

func orNop(progress func(string)) func(string) {
	if progress == nil {
		return func(string) {}
	}
	return progress
}
