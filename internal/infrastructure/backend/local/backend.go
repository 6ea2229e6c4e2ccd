package local

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

const (
	Name = "local"

	defaultLimit  = 50
	snippetRadius = 120
)

// Backend is the in-process keyword fallback: a memory-only bleve index that
// is always available and needs no external service.
type Backend struct {
	desc domain.BackendDescriptor

	mu     sync.RWMutex
	index  bleve.Index
	closed bool
}

type indexedDocument struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	Summary string `json:"summary"`
	Tags    string `json:"tags"`
}

// DefaultScaleK is where the local scale reaches 50. bleve's tf-idf stays in
// the hundredths on a small in-memory corpus, so an exact title hit lands
// around 0.02.
const DefaultScaleK = 0.05

// DefaultDescriptor scores with bleve's unbounded tf-idf, so the scale saturates.
func DefaultDescriptor() domain.BackendDescriptor {
	return domain.BackendDescriptor{
		Name:         Name,
		Capabilities: domain.CapabilityKeyword,
		Configured:   true,
		Scale:        domain.ScaleSpec{Kind: domain.ScaleSaturating, K: DefaultScaleK},
		Timeout:      2 * time.Second,
	}
}

func New(desc domain.BackendDescriptor) (*Backend, error) {
	if strings.TrimSpace(desc.Name) == "" {
		desc.Name = Name
	}
	if desc.Capabilities == 0 {
		desc.Capabilities = domain.CapabilityKeyword
	}
	desc.Configured = true

	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create local index: %w", err)
	}
	return &Backend{desc: desc, index: index}, nil
}

func (b *Backend) Descriptor() domain.BackendDescriptor {
	return b.desc
}

func (b *Backend) IsAvailable() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

func (b *Backend) Index(ctx context.Context, doc *domain.Document) error {
	if doc == nil || strings.TrimSpace(doc.ID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "local index", fmt.Errorf("document id is required"))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("local index is closed")
	}

	batch := b.index.NewBatch()
	if err := batch.Index(doc.ID, indexedDocument{
		Title:   doc.Title,
		Body:    doc.Body,
		Summary: doc.Summary,
		Tags:    strings.Join(doc.Tags, " "),
	}); err != nil {
		return fmt.Errorf("index document %s: %w", doc.ID, err)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("execute index batch: %w", err)
	}
	return nil
}

func (b *Backend) Search(ctx context.Context, spec domain.QuerySpec) ([]domain.BackendResult, error) {
	text := strings.TrimSpace(spec.Text)
	if text == "" {
		return []domain.BackendResult{}, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, fmt.Errorf("local index is closed")
	}

	limit := spec.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	req := bleve.NewSearchRequest(buildQuery(text))
	req.Size = limit
	req.Fields = []string{"title", "body"}
	req.IncludeLocations = true

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("local search: %w", err)
	}

	out := make([]domain.BackendResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		body := stringField(hit, "body")
		out = append(out, domain.BackendResult{
			DocumentID: hit.ID,
			Title:      stringField(hit, "title"),
			Snippet:    snippetFor(hit, body),
			RawScore:   hit.Score,
			Backend:    b.desc.Name,
			Highlights: matchedTerms(hit),
		})
	}
	return out, nil
}

func (b *Backend) Delete(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("local index is closed")
	}

	batch := b.index.NewBatch()
	batch.Delete(documentID)
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	return nil
}

// Count returns the number of indexed documents.
func (b *Backend) Count() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, fmt.Errorf("local index is closed")
	}
	return b.index.DocCount()
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

// Title matches weigh double so a query naming a document outranks body mentions.
func buildQuery(text string) query.Query {
	title := bleve.NewMatchQuery(text)
	title.SetField("title")
	title.SetBoost(2)

	body := bleve.NewMatchQuery(text)
	body.SetField("body")

	summary := bleve.NewMatchQuery(text)
	summary.SetField("summary")

	tags := bleve.NewMatchQuery(text)
	tags.SetField("tags")

	return bleve.NewDisjunctionQuery(title, body, summary, tags)
}

func stringField(hit *search.DocumentMatch, field string) string {
	v, ok := hit.Fields[field]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func matchedTerms(hit *search.DocumentMatch) []string {
	seen := make(map[string]struct{})
	for _, locations := range hit.Locations {
		for term := range locations {
			seen[term] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for term := range seen {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}

// snippetFor cuts a window of the body around the earliest body match.
func snippetFor(hit *search.DocumentMatch, body string) string {
	if body == "" {
		return ""
	}
	start, end := -1, -1
	for _, locations := range hit.Locations["body"] {
		for _, loc := range locations {
			if start < 0 || int(loc.Start) < start {
				start, end = int(loc.Start), int(loc.End)
			}
		}
	}
	if start < 0 || end > len(body) {
		return ""
	}

	from := max(start-snippetRadius, 0)
	to := min(end+snippetRadius, len(body))
	for from > 0 && !utf8.RuneStart(body[from]) {
		from--
	}
	for to < len(body) && !utf8.RuneStart(body[to]) {
		to++
	}

	snippet := strings.Join(strings.Fields(body[from:to]), " ")
	if from > 0 {
		snippet = "…" + snippet
	}
	if to < len(body) {
		snippet += "…"
	}
	return snippet
}
