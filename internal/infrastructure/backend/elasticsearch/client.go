package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
	"github.com/kirillkom/knowledge-search/internal/infrastructure/resilience"
)

const Name = "elasticsearch"

type Config struct {
	URL      string
	Index    string
	Username string
	Password string
}

// Backend is the full-text engine adapter. It speaks the Elasticsearch REST
// API directly and reports native BM25 scores.
type Backend struct {
	desc       domain.BackendDescriptor
	baseURL    string
	index      string
	username   string
	password   string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu sync.Mutex
	ensured  bool
}

func DefaultDescriptor() domain.BackendDescriptor {
	return domain.BackendDescriptor{
		Name:         Name,
		Capabilities: domain.CapabilityKeyword,
		Scale:        domain.ScaleSpec{Kind: domain.ScaleSaturating, K: 5},
		Timeout:      5 * time.Second,
	}
}

func New(cfg Config, desc domain.BackendDescriptor, executor *resilience.Executor) *Backend {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	if strings.TrimSpace(desc.Name) == "" {
		desc.Name = Name
	}
	b := &Backend{
		desc:       desc,
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
		index:      strings.TrimSpace(cfg.Index),
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		executor:   executor,
	}
	b.desc.Configured = b.baseURL != "" && b.index != ""
	return b
}

func (b *Backend) Descriptor() domain.BackendDescriptor {
	return b.desc
}

func (b *Backend) IsAvailable() bool {
	return b.desc.Configured
}

type source struct {
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Summary    string    `json:"summary,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Category   string    `json:"category,omitempty"`
	Author     string    `json:"author,omitempty"`
	FileType   string    `json:"file_type,omitempty"`
	UploadDate time.Time `json:"upload_date"`
}

func (b *Backend) Index(ctx context.Context, doc *domain.Document) error {
	if doc == nil || strings.TrimSpace(doc.ID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "elasticsearch index", fmt.Errorf("document id is required"))
	}
	if err := b.ensureIndex(ctx); err != nil {
		return err
	}

	payload := source{
		Title:      doc.Title,
		Body:       doc.Body,
		Summary:    doc.Summary,
		Tags:       doc.Tags,
		Category:   doc.Category,
		Author:     doc.Author,
		FileType:   doc.FileType,
		UploadDate: doc.UploadDate,
	}
	path := fmt.Sprintf("/%s/_doc/%s?refresh=true", url.PathEscape(b.index), url.PathEscape(doc.ID))
	return b.do(ctx, http.MethodPut, path, payload, nil, "index")
}

func (b *Backend) Search(ctx context.Context, spec domain.QuerySpec) ([]domain.BackendResult, error) {
	size := spec.Limit
	if size <= 0 {
		size = 50
	}
	reqBody := map[string]any{
		"size": size,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  spec.Text,
				"fields": []string{"title^2", "body", "summary", "tags"},
			},
		},
		"highlight": map[string]any{
			"pre_tags":  []string{""},
			"post_tags": []string{""},
			"fields": map[string]any{
				"body":  map[string]any{"fragment_size": 160, "number_of_fragments": 3},
				"title": map[string]any{},
			},
		},
		"_source": []string{"title"},
	}

	var searchResp struct {
		Hits struct {
			Hits []struct {
				ID     string  `json:"_id"`
				Score  float64 `json:"_score"`
				Source struct {
					Title string `json:"title"`
				} `json:"_source"`
				Highlight map[string][]string `json:"highlight"`
			} `json:"hits"`
		} `json:"hits"`
	}
	path := fmt.Sprintf("/%s/_search", url.PathEscape(b.index))
	if err := b.do(ctx, http.MethodPost, path, reqBody, &searchResp, "search"); err != nil {
		return nil, err
	}

	out := make([]domain.BackendResult, 0, len(searchResp.Hits.Hits))
	for _, hit := range searchResp.Hits.Hits {
		fragments := hit.Highlight["body"]
		snippet := ""
		if len(fragments) > 0 {
			snippet = strings.Join(strings.Fields(fragments[0]), " ")
		}
		highlights := make([]string, 0, len(fragments)+len(hit.Highlight["title"]))
		for _, f := range slices.Concat(hit.Highlight["title"], fragments) {
			if f = strings.TrimSpace(f); f != "" {
				highlights = append(highlights, f)
			}
		}
		out = append(out, domain.BackendResult{
			DocumentID: hit.ID,
			Title:      hit.Source.Title,
			Snippet:    snippet,
			RawScore:   hit.Score,
			Backend:    b.desc.Name,
			Highlights: highlights,
		})
	}
	return out, nil
}

func (b *Backend) Delete(ctx context.Context, documentID string) error {
	path := fmt.Sprintf("/%s/_doc/%s?refresh=true", url.PathEscape(b.index), url.PathEscape(documentID))
	err := b.do(ctx, http.MethodDelete, path, nil, nil, "delete")
	if isStatus(err, http.StatusNotFound) {
		return nil
	}
	return err
}

func (b *Backend) ensureIndex(ctx context.Context) error {
	b.ensureMu.Lock()
	defer b.ensureMu.Unlock()
	if b.ensured {
		return nil
	}

	mapping := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"title":       map[string]any{"type": "text"},
				"body":        map[string]any{"type": "text"},
				"summary":     map[string]any{"type": "text"},
				"tags":        map[string]any{"type": "keyword"},
				"category":    map[string]any{"type": "keyword"},
				"author":      map[string]any{"type": "keyword"},
				"file_type":   map[string]any{"type": "keyword"},
				"upload_date": map[string]any{"type": "date"},
			},
		},
	}
	err := b.do(ctx, http.MethodPut, "/"+url.PathEscape(b.index), mapping, nil, "ensure_index")
	if err != nil && !alreadyExists(err) {
		return err
	}
	b.ensured = true
	return nil
}

func (b *Backend) do(ctx context.Context, method, path string, payload any, out any, operation string) error {
	if !b.IsAvailable() {
		return fmt.Errorf("elasticsearch %s: url or index is not configured", operation)
	}
	var body []byte
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", operation, err)
		}
		body = raw
	}

	err := b.executor.Execute(ctx, "elasticsearch."+operation, func(ctx context.Context) error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if b.username != "" {
			req.SetBasicAuth(b.username, b.password)
		}

		resp, err := b.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("elasticsearch %s request: %w", operation, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return resilience.NewHTTPStatusError("elasticsearch", operation, resp)
		}
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
		return nil
	}, resilience.ClassifyHTTPError)
	return resilience.WrapTemporary("elasticsearch "+operation, err)
}

func isStatus(err error, code int) bool {
	var statusErr *resilience.HTTPStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}

func alreadyExists(err error) bool {
	var statusErr *resilience.HTTPStatusError
	return errors.As(err, &statusErr) &&
		statusErr.StatusCode == http.StatusBadRequest &&
		strings.Contains(statusErr.Body, "resource_already_exists_exception")
}
