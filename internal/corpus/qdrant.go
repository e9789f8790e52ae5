package corpus

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// Payload keys written with every point.
const (
	payloadSeq        = "seq"
	payloadDocumentID = "knowledge_base_id"
	payloadChunkIndex = "chunk_index"
	payloadTitle      = "title"
	payloadContent    = "content"
	payloadSource     = "source"
)

// scrollPage is the Scroll page size used by AllEntries.
const scrollPage = 256

// tieSlack is how many extra candidates Nearest asks Qdrant for, so equal
// scores straddling the k-th place can still be ordered by seq.
const tieSlack = 8

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Alias is the collection alias readers query (default: albaqer_kb).
	// Each ReplaceAll builds a fresh collection and moves the alias to it.
	Alias string

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// Approximate lets Nearest use the HNSW index. Results may then differ
	// from the Linear index, and a filtered search can return fewer than k
	// hits. The default is an exact scan.
	Approximate bool
}

// Qdrant is a rag.CorpusStore and rag.Index backed by a Qdrant collection
// reached through an alias.
type Qdrant struct {
	client *qdrant.Client
	alias  string
	dim    int
	exact  bool

	// mu serializes writers within the process and guards nextSeq.
	mu      sync.Mutex
	nextSeq int64
}

// OpenQdrant connects to Qdrant and makes sure cfg.Alias points at a
// collection of vectors of length dim, creating one when it does not exist.
func OpenQdrant(ctx context.Context, cfg *QdrantConfig, dim int) (*Qdrant, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Alias == "" {
		cfg.Alias = "albaqer_kb"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, rag.Unavailable("corpus: qdrant client", err)
	}

	q := &Qdrant{client: client, alias: cfg.Alias, dim: dim, exact: !cfg.Approximate, nextSeq: 1}
	if err := q.ensureAlias(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := q.loadNextSeq(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return q, nil
}

// ensureAlias resolves the alias, creating its first collection when
// missing, and checks the collection's vector size.
func (q *Qdrant) ensureAlias(ctx context.Context) error {
	current, err := q.currentCollection(ctx)
	if err != nil {
		return err
	}
	if current == "" {
		name, err := q.createCollection(ctx)
		if err != nil {
			return err
		}
		if err := q.client.CreateAlias(ctx, q.alias, name); err != nil {
			return rag.Unavailable("corpus: qdrant create alias", err)
		}
		return nil
	}

	info, err := q.client.GetCollectionInfo(ctx, current)
	if err != nil {
		return rag.Unavailable("corpus: qdrant collection info", err)
	}
	size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	if int(size) != q.dim {
		return fmt.Errorf("corpus: qdrant: %w: collection %q holds %d-dimensional vectors, embedder produces %d (run ingest --rebuild)",
			rag.ErrDimensionMismatch, current, size, q.dim)
	}
	return nil
}

// currentCollection returns the collection the alias points to, or "".
func (q *Qdrant) currentCollection(ctx context.Context) (string, error) {
	aliases, err := q.client.ListAliases(ctx)
	if err != nil {
		return "", rag.Unavailable("corpus: qdrant list aliases", err)
	}
	for _, a := range aliases {
		if a.GetAliasName() == q.alias {
			return a.GetCollectionName(), nil
		}
	}
	return "", nil
}

func (q *Qdrant) createCollection(ctx context.Context) (string, error) {
	name := fmt.Sprintf("%s_%d", q.alias, time.Now().UnixNano())
	err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return "", rag.Unavailable(fmt.Sprintf("corpus: qdrant create collection %q", name), err)
	}
	for _, field := range []string{payloadDocumentID, rag.FilterCategory, rag.FilterContentType,
		rag.FilterTargetAudience, rag.FilterLanguage} {
		_, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return "", rag.Unavailable("corpus: qdrant field index "+field, err)
		}
	}
	return name, nil
}

func (q *Qdrant) loadNextSeq(ctx context.Context) error {
	entries, err := q.AllEntries(ctx)
	if err != nil {
		return err
	}
	if n := len(entries); n > 0 {
		q.nextSeq = entries[n-1].Seq + 1
	}
	return nil
}

// Dimensions implements rag.CorpusStore.
func (q *Qdrant) Dimensions() int { return q.dim }

// ReplaceAll implements rag.CorpusStore. Entries land in a new collection
// and the alias is switched in a single UpdateAliases call; readers follow
// the alias so they never see a half-built corpus.
func (q *Qdrant) ReplaceAll(ctx context.Context, entries []rag.Entry) error {
	if err := rag.CheckDimensions(entries, q.dim); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	old, err := q.currentCollection(ctx)
	if err != nil {
		return err
	}
	name, err := q.createCollection(ctx)
	if err != nil {
		return err
	}
	seq := q.nextSeq
	if err := q.upsert(ctx, name, entries, seq); err != nil {
		_ = q.client.DeleteCollection(ctx, name)
		return err
	}

	actions := []*qdrant.AliasOperations{}
	if old != "" {
		actions = append(actions, qdrant.NewAliasDelete(q.alias))
	}
	actions = append(actions, qdrant.NewAliasCreate(q.alias, name))
	if err := q.client.UpdateAliases(ctx, actions); err != nil {
		_ = q.client.DeleteCollection(ctx, name)
		return rag.Unavailable("corpus: qdrant swap alias", err)
	}
	q.nextSeq = seq + int64(len(entries))

	if old != "" {
		// The corpus is already live; a leftover collection only wastes space.
		_ = q.client.DeleteCollection(ctx, old)
	}
	return nil
}

// Add implements rag.CorpusStore.
func (q *Qdrant) Add(ctx context.Context, entries []rag.Entry) error {
	if err := rag.CheckDimensions(entries, q.dim); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.upsert(ctx, q.alias, entries, q.nextSeq); err != nil {
		return err
	}
	q.nextSeq += int64(len(entries))
	return nil
}

func (q *Qdrant) upsert(ctx context.Context, collection string, entries []rag.Entry, seq int64) error {
	if len(entries) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(entries))
	for i, e := range entries {
		c := e.Chunk
		payload := map[string]any{
			payloadSeq:               seq + int64(i),
			payloadDocumentID:        c.DocumentID,
			payloadChunkIndex:        c.Index,
			payloadTitle:             c.Title,
			payloadContent:           c.Text,
			payloadSource:            c.Metadata.Source,
			rag.FilterCategory:       c.Metadata.Category,
			rag.FilterContentType:    c.Metadata.ContentType,
			rag.FilterTargetAudience: c.Metadata.TargetAudience,
			rag.FilterLanguage:       c.Metadata.Language,
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(e.ID),
			Vectors: qdrant.NewVectorsDense(e.Embedding),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return rag.Unavailable("corpus: qdrant upsert", err)
	}
	return nil
}

// DeleteForDocument implements rag.CorpusStore.
func (q *Qdrant) DeleteForDocument(ctx context.Context, documentID string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	filter := &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch(payloadDocumentID, documentID)}}
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.alias,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, rag.Unavailable("corpus: qdrant delete", err)
	}
	if n == 0 {
		return 0, nil
	}
	_, err = q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.alias,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return 0, rag.Unavailable("corpus: qdrant delete", err)
	}
	return int(n), nil
}

// ReplaceDocument implements rag.CorpusStore. Qdrant has no multi-request
// transaction, so the new points are upserted first and only then are the
// document's other points deleted. A failed upsert leaves the old chunks
// searchable.
func (q *Qdrant) ReplaceDocument(ctx context.Context, documentID string, entries []rag.Entry) (int, error) {
	if err := rag.CheckDimensions(entries, q.dim); err != nil {
		return 0, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	filter := staleFilter(documentID, entries)
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.alias,
		Filter:         &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch(payloadDocumentID, documentID)}},
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, rag.Unavailable("corpus: qdrant replace document", err)
	}
	if err := q.upsert(ctx, q.alias, entries, q.nextSeq); err != nil {
		return 0, err
	}
	q.nextSeq += int64(len(entries))

	_, err = q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.alias,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return 0, rag.Unavailable("corpus: qdrant replace document", err)
	}
	return int(n), nil
}

// staleFilter matches the points of documentID that are not in entries.
func staleFilter(documentID string, entries []rag.Entry) *qdrant.Filter {
	f := &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch(payloadDocumentID, documentID)}}
	if len(entries) > 0 {
		ids := make([]*qdrant.PointId, len(entries))
		for i, e := range entries {
			ids[i] = qdrant.NewIDUUID(e.ID)
		}
		f.MustNot = []*qdrant.Condition{qdrant.NewHasID(ids...)}
	}
	return f
}

// AllEntries implements rag.CorpusStore.
func (q *Qdrant) AllEntries(ctx context.Context) ([]rag.Entry, error) {
	entries := []rag.Entry{}
	var offset *qdrant.PointId
	for {
		points, next, err := q.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: q.alias,
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(scrollPage)),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return nil, rag.Unavailable("corpus: qdrant scroll", err)
		}
		for _, p := range points {
			e := entryFromPayload(p.GetId(), p.GetPayload())
			e.Embedding = denseVector(p.GetVectors().GetVector())
			entries = append(entries, e)
		}
		if next == nil {
			break
		}
		offset = next
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
	return entries, nil
}

// Count implements rag.CorpusStore.
func (q *Qdrant) Count(ctx context.Context) (int, error) {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.alias,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, rag.Unavailable("corpus: qdrant count", err)
	}
	return int(n), nil
}

// Nearest implements rag.Index. Qdrant's cosine score is the similarity
// itself, so scores match the Linear index.
func (q *Qdrant) Nearest(ctx context.Context, query []float32, k int, filter rag.Filter) ([]rag.Hit, error) {
	if k <= 0 {
		return []rag.Hit{}, nil
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if len(query) != q.dim {
		return nil, fmt.Errorf("corpus: qdrant: %w: query has %d dimensions, store expects %d",
			rag.ErrDimensionMismatch, len(query), q.dim)
	}

	req := &qdrant.QueryPoints{
		CollectionName: q.alias,
		Query:          qdrant.NewQueryDense(query),
		Limit:          qdrant.PtrOf(uint64(k + tieSlack)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
		Params:         &qdrant.SearchParams{Exact: qdrant.PtrOf(q.exact)},
	}
	if len(filter) > 0 {
		req.Filter = qdrantFilter(filter)
	}
	points, err := q.client.Query(ctx, req)
	if err != nil {
		return nil, rag.Unavailable("corpus: qdrant query", err)
	}

	hits := make([]rag.Hit, 0, len(points))
	for _, p := range points {
		e := entryFromPayload(p.GetId(), p.GetPayload())
		e.Embedding = denseVector(p.GetVectors().GetVector())
		hits = append(hits, rag.Hit{Entry: e, Score: float64(p.GetScore())})
	}
	rag.SortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Name returns the pinger name used by the readiness endpoint.
func (q *Qdrant) Name() string { return "qdrant" }

// Ping runs the Qdrant health check.
func (q *Qdrant) Ping(ctx context.Context) error {
	_, err := q.client.HealthCheck(ctx)
	return err
}

// Client exposes the underlying gRPC client for health probes.
func (q *Qdrant) Client() *qdrant.Client { return q.client }

// Close implements rag.CorpusStore.
func (q *Qdrant) Close() error { return q.client.Close() }

func qdrantFilter(f rag.Filter) *qdrant.Filter {
	out := &qdrant.Filter{}
	for _, k := range f.Keys() {
		out.Must = append(out.Must, qdrant.NewMatch(k, f[k]))
	}
	return out
}

func entryFromPayload(id *qdrant.PointId, p map[string]*qdrant.Value) rag.Entry {
	str := func(k string) string { return p[k].GetStringValue() }
	return rag.Entry{
		ID:  id.GetUuid(),
		Seq: p[payloadSeq].GetIntegerValue(),
		Chunk: rag.Chunk{
			DocumentID: str(payloadDocumentID),
			Index:      int(p[payloadChunkIndex].GetIntegerValue()),
			Title:      str(payloadTitle),
			Text:       str(payloadContent),
			Metadata: rag.Metadata{
				Category:       str(rag.FilterCategory),
				ContentType:    str(rag.FilterContentType),
				TargetAudience: str(rag.FilterTargetAudience),
				Language:       str(rag.FilterLanguage),
				Source:         str(payloadSource),
			},
		},
	}
}

func denseVector(v *qdrant.VectorOutput) []float32 {
	if d := v.GetDense(); d != nil {
		return slices.Clone(d.GetData())
	}
	return slices.Clone(v.GetData()) //nolint:staticcheck // older servers fill the flat field
}
