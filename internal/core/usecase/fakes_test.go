package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

type backendFake struct {
	name      string
	caps      domain.Capability
	scale     domain.ScaleSpec
	timeout   time.Duration
	available bool

	results  []domain.BackendResult
	err      error
	delay    time.Duration
	hang     chan struct{}
	indexErr error

	searchCalls atomic.Int32
	mu          sync.Mutex
	indexed     []string
	deleted     []string
	lastQuery   domain.QuerySpec
}

func newBackendFake(name string, caps domain.Capability) *backendFake {
	return &backendFake{
		name:      name,
		caps:      caps,
		scale:     domain.ScaleSpec{Kind: domain.ScaleUnit},
		available: true,
	}
}

func (f *backendFake) Descriptor() domain.BackendDescriptor {
	return domain.BackendDescriptor{
		Name:         f.name,
		Capabilities: f.caps,
		Configured:   f.available,
		Scale:        f.scale,
		Timeout:      f.timeout,
	}
}

func (f *backendFake) IsAvailable() bool { return f.available }

func (f *backendFake) Index(_ context.Context, doc *domain.Document) error {
	if f.indexErr != nil {
		return f.indexErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, doc.ID)
	return nil
}

func (f *backendFake) Search(ctx context.Context, query domain.QuerySpec) ([]domain.BackendResult, error) {
	f.searchCalls.Add(1)
	f.mu.Lock()
	f.lastQuery = query
	f.mu.Unlock()

	if f.hang != nil {
		// Ignores ctx to model a backend that never honours cancellation.
		<-f.hang
		return nil, nil
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.BackendResult, len(f.results))
	copy(out, f.results)
	return out, nil
}

func (f *backendFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *backendFake) indexedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.indexed...)
}

func (f *backendFake) deletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

type registryFake struct {
	mu      sync.Mutex
	docs    map[string]*domain.Document
	saveErr error
}

func newRegistryFake(docs ...*domain.Document) *registryFake {
	r := &registryFake{docs: map[string]*domain.Document{}}
	for _, d := range docs {
		r.docs[d.ID] = d.Clone()
	}
	return r
}

func (r *registryFake) Save(_ context.Context, doc *domain.Document) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = doc.Clone()
	return nil
}

func (r *registryFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
	}
	return doc.Clone(), nil
}

func (r *registryFake) GetMany(_ context.Context, ids []string) (map[string]*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*domain.Document, len(ids))
	for _, id := range ids {
		if doc, ok := r.docs[id]; ok {
			out[id] = doc.Clone()
		}
	}
	return out, nil
}

func (r *registryFake) List(context.Context) ([]*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Document, 0, len(r.docs))
	for _, doc := range r.docs {
		out = append(out, doc.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *registryFake) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, id)
	return nil
}

func (r *registryFake) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}

type lockerFake struct {
	locks atomic.Int32
}

func (l *lockerFake) Lock(context.Context, string) (func(), error) {
	l.locks.Add(1)
	return func() {}, nil
}

type strategyFake struct {
	name  string
	text  string
	err   error
	calls atomic.Int32
}

func (s *strategyFake) Name() string { return s.name }

func (s *strategyFake) Extract(context.Context, domain.SourceFile) (string, error) {
	s.calls.Add(1)
	return s.text, s.err
}

type summarizerFake struct {
	summary string
	err     error
}

func (s *summarizerFake) Summarize(context.Context, string, string) (string, error) {
	return s.summary, s.err
}

func registeredDoc(id, title, fileType string, uploaded time.Time) *domain.Document {
	return &domain.Document{
		ID:         id,
		Filename:   title + "." + fileType,
		FileType:   fileType,
		FileSize:   100,
		UploadDate: uploaded,
		Title:      title,
		Body:       title + " body text",
	}
}
