package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
	"github.com/kirillkom/knowledge-search/internal/core/ports"
)

const (
	Name = "assistant"

	defaultCatalogueSize = 40
	defaultMaxResults    = 10
	excerptRunes         = 400
)

// Backend is the semantic assistant. It keeps digests of indexed documents
// and asks a language model to pick and score the relevant ones.
type Backend struct {
	desc          domain.BackendDescriptor
	generator     ports.TextGenerator
	catalogueSize int

	mu      sync.RWMutex
	digests map[string]digest
}

func DefaultDescriptor() domain.BackendDescriptor {
	return domain.BackendDescriptor{
		Name:         Name,
		Capabilities: domain.CapabilitySemantic,
		Scale:        domain.ScaleSpec{Kind: domain.ScalePercent},
		Timeout:      20 * time.Second,
	}
}

// New marks the backend configured only when configured is true and a
// generator is present.
func New(desc domain.BackendDescriptor, generator ports.TextGenerator, configured bool, catalogueSize int) *Backend {
	if strings.TrimSpace(desc.Name) == "" {
		desc.Name = Name
	}
	if catalogueSize <= 0 {
		catalogueSize = defaultCatalogueSize
	}
	desc.Configured = configured && generator != nil
	return &Backend{
		desc:          desc,
		generator:     generator,
		catalogueSize: catalogueSize,
		digests:       make(map[string]digest),
	}
}

func (b *Backend) Descriptor() domain.BackendDescriptor {
	return b.desc
}

func (b *Backend) IsAvailable() bool {
	return b.desc.Configured
}

func (b *Backend) Index(ctx context.Context, doc *domain.Document) error {
	if doc == nil || strings.TrimSpace(doc.ID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "assistant index", fmt.Errorf("document id is required"))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.digests[doc.ID] = digest{
		ID:         doc.ID,
		Title:      doc.Title,
		Summary:    doc.Summary,
		Excerpt:    excerptOf(doc.Body, excerptRunes),
		Tags:       append([]string(nil), doc.Tags...),
		UploadDate: doc.UploadDate,
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.digests, documentID)
	return nil
}

func (b *Backend) Search(ctx context.Context, spec domain.QuerySpec) ([]domain.BackendResult, error) {
	catalogue := b.catalogue()
	if len(catalogue) == 0 {
		return []domain.BackendResult{}, nil
	}
	maxResults := spec.Limit
	if maxResults <= 0 || maxResults > defaultMaxResults {
		maxResults = defaultMaxResults
	}

	raw, err := b.generator.GenerateFromPrompt(ctx, buildPrompt(spec, catalogue, maxResults))
	if err != nil {
		return nil, fmt.Errorf("assistant completion: %w", err)
	}

	known := make(map[string]digest, len(catalogue))
	for _, d := range catalogue {
		known[d.ID] = d
	}
	seen := make(map[string]struct{})
	out := make([]domain.BackendResult, 0, maxResults)
	for _, r := range parseResults(raw) {
		d, ok := known[r.ID]
		if !ok {
			slog.Debug("assistant_unknown_document", "document_id", r.ID)
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}

		res := domain.BackendResult{
			DocumentID: r.ID,
			Title:      d.Title,
			Snippet:    r.Passage,
			RawScore:   r.Score,
			Backend:    b.desc.Name,
		}
		if r.Passage != "" {
			res.Highlights = []string{r.Passage}
		}
		out = append(out, res)
		if len(out) == maxResults {
			break
		}
	}
	return out, nil
}

// Len returns the number of documents in the catalogue.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.digests)
}

// catalogue returns the newest digests, bounded by the prompt budget.
func (b *Backend) catalogue() []digest {
	b.mu.RLock()
	out := make([]digest, 0, len(b.digests))
	for _, d := range b.digests {
		out = append(out, d)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadDate.Equal(out[j].UploadDate) {
			return out[i].UploadDate.After(out[j].UploadDate)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > b.catalogueSize {
		out = out[:b.catalogueSize]
	}
	return out
}
