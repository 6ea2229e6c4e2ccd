package httpadapter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/kirillkom/knowledge-search/internal/config"
	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

type indexerFake struct {
	mu        sync.Mutex
	err       error
	lastFile  domain.SourceFile
	lastMeta  domain.DocumentMetadata
	deleted   []string
	deleteErr error
}

func (f *indexerFake) IndexDocument(_ context.Context, file domain.SourceFile, meta domain.DocumentMetadata) (*domain.IndexOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.lastFile = file
	f.lastMeta = meta
	return &domain.IndexOutcome{
		Document: &domain.Document{
			ID:         "doc-1",
			Filename:   file.Filename,
			FileType:   file.Extension,
			FileSize:   file.Size,
			UploadDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Title:      meta.Title,
			Tags:       meta.Tags,
		},
		Succeeded: []string{"local"},
	}, nil
}

func (f *indexerFake) DeleteDocument(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return true, nil
}

type uploaderFake struct {
	filename string
}

func (f *uploaderFake) Upload(_ context.Context, filename, mimeType string, data []byte, meta domain.DocumentMetadata) (*domain.UploadEvent, error) {
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", io.EOF)
	}
	f.filename = filename
	return &domain.UploadEvent{StorageKey: "key_" + filename, Filename: filename, MimeType: mimeType, Metadata: meta}, nil
}

type searchFake struct {
	err       error
	lastQuery domain.QuerySpec
	calls     int
}

func (f *searchFake) Search(_ context.Context, query domain.QuerySpec) (*domain.SearchResponse, error) {
	f.calls++
	f.lastQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SearchResponse{
		QueryID: 1,
		Query:   query,
		Results: []domain.FusedResult{{DocumentID: "doc-1", Title: "Policy 2024", Score: 90, Backends: []string{"local"}}},
	}, nil
}

type sessionFake struct {
	err  error
	keys []string
}

func (f *sessionFake) SearchInSession(_ context.Context, key string, query domain.QuerySpec) (*domain.SearchResponse, error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SearchResponse{QueryID: 7, Query: query}, nil
}

type statsFake struct{}

func (statsFake) Stats(context.Context) (*domain.Stats, error) {
	return &domain.Stats{TotalDocuments: 2, PerBackend: map[string]int{"local": 2}}, nil
}

type docsFake struct {
	err error
}

func (f docsFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	if id != "doc-1" {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New("id="+id))
	}
	return &domain.Document{ID: "doc-1", Title: "Policy 2024", Filename: "policy.txt", FileType: "txt"}, nil
}

type testRig struct {
	indexer  *indexerFake
	uploader *uploaderFake
	search   *searchFake
	sessions *sessionFake
}

func newTestRig() *testRig {
	return &testRig{
		indexer:  &indexerFake{},
		uploader: &uploaderFake{},
		search:   &searchFake{},
		sessions: &sessionFake{},
	}
}

func (r *testRig) handler(cfg config.Config) http.Handler {
	return NewRouter(cfg, Services{
		Indexer:  r.indexer,
		Uploader: r.uploader,
		Search:   r.search,
		Sessions: r.sessions,
		Stats:    statsFake{},
		Docs:     docsFake{},
	}, nil).Handler()
}

func newTestHandler(cfg config.Config) http.Handler {
	return newTestRig().handler(cfg)
}
