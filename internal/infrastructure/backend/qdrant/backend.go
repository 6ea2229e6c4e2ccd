package qdrant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
	"github.com/kirillkom/knowledge-search/internal/core/ports"
	"github.com/kirillkom/knowledge-search/internal/infrastructure/resilience"
)

const (
	Name = "qdrant"

	// Chunks are searched wider than the requested limit since several chunks
	// of one document collapse into a single result.
	chunkFanout       = 3
	maxHighlights     = 3
	defaultQueryCache = 256
)

// pointNamespace seeds deterministic point ids so re-indexing overwrites.
var pointNamespace = uuid.MustParse("6f1b2a0e-8c3d-4f5a-9b7e-2d4c6a8e0f13")

// Backend is the vector search adapter: document bodies are chunked, embedded
// and stored as points; queries are embedded and matched by cosine similarity.
type Backend struct {
	desc     domain.BackendDescriptor
	client   *Client
	chunker  ports.Chunker
	embedder ports.Embedder
	queries  *lru.Cache[string, []float32]
}

func DefaultDescriptor() domain.BackendDescriptor {
	return domain.BackendDescriptor{
		Name:         Name,
		Capabilities: domain.CapabilityVector,
		Scale:        domain.ScaleSpec{Kind: domain.ScaleUnit},
		Timeout:      8 * time.Second,
	}
}

func New(desc domain.BackendDescriptor, client *Client, chunker ports.Chunker, embedder ports.Embedder, cacheSize int) (*Backend, error) {
	if strings.TrimSpace(desc.Name) == "" {
		desc.Name = Name
	}
	if cacheSize <= 0 {
		cacheSize = defaultQueryCache
	}
	queries, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create query embedding cache: %w", err)
	}
	desc.Configured = client.Configured() && chunker != nil && embedder != nil
	return &Backend{
		desc:     desc,
		client:   client,
		chunker:  chunker,
		embedder: embedder,
		queries:  queries,
	}, nil
}

func (b *Backend) Descriptor() domain.BackendDescriptor {
	return b.desc
}

func (b *Backend) IsAvailable() bool {
	return b.desc.Configured
}

func (b *Backend) Index(ctx context.Context, doc *domain.Document) error {
	if doc == nil || strings.TrimSpace(doc.ID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "qdrant index", fmt.Errorf("document id is required"))
	}
	chunks := b.chunker.Split(doc.Body)
	if len(chunks) == 0 {
		chunks = []string{doc.Title}
	}
	vectors, err := b.embedder.Embed(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("chunks/vectors mismatch: %d != %d", len(chunks), len(vectors))
	}

	// A shorter re-index would otherwise leave stale trailing chunks behind.
	if err := b.client.DeleteByDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("drop previous chunks: %w", err)
	}

	points := make([]Point, 0, len(chunks))
	for i := range chunks {
		points = append(points, Point{
			ID:     PointID(doc.ID, i),
			Vector: vectors[i],
			Payload: map[string]any{
				"doc_id":      doc.ID,
				"title":       doc.Title,
				"filename":    doc.Filename,
				"category":    doc.Category,
				"chunk_index": i,
				"text":        chunks[i],
			},
		})
	}
	return b.client.Upsert(ctx, points)
}

func (b *Backend) Search(ctx context.Context, spec domain.QuerySpec) ([]domain.BackendResult, error) {
	limit := spec.Limit
	if limit <= 0 {
		limit = 20
	}
	vector, err := b.queryVector(ctx, spec.Text)
	if err != nil {
		return nil, err
	}
	points, err := b.client.Search(ctx, vector, limit*chunkFanout)
	if err != nil {
		return nil, err
	}

	byDoc := make(map[string]*domain.BackendResult)
	order := make([]string, 0, len(points))
	for _, p := range points {
		id := getStringPayload(p.Payload, "doc_id")
		if id == "" {
			continue
		}
		text := strings.TrimSpace(getStringPayload(p.Payload, "text"))
		res, ok := byDoc[id]
		if !ok {
			res = &domain.BackendResult{
				DocumentID: id,
				Title:      getStringPayload(p.Payload, "title"),
				Snippet:    text,
				RawScore:   p.Score,
				Backend:    b.desc.Name,
			}
			byDoc[id] = res
			order = append(order, id)
		} else if p.Score > res.RawScore {
			res.RawScore = p.Score
			res.Snippet = text
		}
		if text != "" && len(res.Highlights) < maxHighlights {
			res.Highlights = append(res.Highlights, text)
		}
	}

	out := make([]domain.BackendResult, 0, len(order))
	for _, id := range order {
		out = append(out, *byDoc[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RawScore > out[j].RawScore })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (b *Backend) Delete(ctx context.Context, documentID string) error {
	return b.client.DeleteByDocument(ctx, documentID)
}

func (b *Backend) queryVector(ctx context.Context, text string) ([]float32, error) {
	key := strings.ToLower(strings.Join(strings.Fields(text), " "))
	if v, ok := b.queries.Get(key); ok {
		return v, nil
	}
	v, err := b.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	b.queries.Add(key, v)
	return v, nil
}

// PointID is stable per (document, chunk index).
func PointID(documentID string, chunk int) string {
	return uuid.NewSHA1(pointNamespace, fmt.Appendf(nil, "%s#%d", documentID, chunk)).String()
}

func isStatus(err error, code int) bool {
	var statusErr *resilience.HTTPStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}
