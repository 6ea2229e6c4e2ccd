package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

// Registry is the in-process document registry. It hands out clones only,
// so callers never share mutable state with it.
type Registry struct {
	mu   sync.RWMutex
	docs map[string]*domain.Document
}

func NewRegistry() *Registry {
	return &Registry{docs: make(map[string]*domain.Document)}
}

func (r *Registry) Save(ctx context.Context, doc *domain.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc == nil || strings.TrimSpace(doc.ID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "save document", fmt.Errorf("document id is required"))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = doc.Clone()
	return nil
}

func (r *Registry) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
	}
	return doc.Clone(), nil
}

func (r *Registry) GetMany(ctx context.Context, ids []string) (map[string]*domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*domain.Document, len(ids))
	for _, id := range ids {
		if doc, ok := r.docs[id]; ok {
			out[id] = doc.Clone()
		}
	}
	return out, nil
}

// List orders documents newest first.
func (r *Registry) List(ctx context.Context) ([]*domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]*domain.Document, 0, len(r.docs))
	for _, doc := range r.docs {
		out = append(out, doc.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadDate.Equal(out[j].UploadDate) {
			return out[i].UploadDate.After(out[j].UploadDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "delete document", fmt.Errorf("id %s", id))
	}
	delete(r.docs, id)
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}
