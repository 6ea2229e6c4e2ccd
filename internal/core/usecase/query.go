package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
	"github.com/kirillkom/knowledge-search/internal/core/ports"
)

const (
	AdvisoryNoBackend        = "no results: no search backend is available"
	AdvisoryNoMatches        = "no results: no documents matched the query"
	AdvisoryFilteredOut      = "no results: no documents matched the selected filters"
	AdvisorySemanticFallback = "no results from the first pass; fell back to semantic search"
)

type SearchConfig struct {
	DefaultLimit   int
	DefaultTimeout time.Duration
	// IncludeSemantic adds semantic-only backends to plain keyword searches.
	IncludeSemantic bool
}

func (c SearchConfig) normalize() SearchConfig {
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = 20
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 8 * time.Second
	}
	return c
}

// SearchUseCase fans a query out to every matching backend concurrently and
// fuses whatever settles before each backend's own timeout.
type SearchUseCase struct {
	backends []ports.SearchBackend
	registry ports.DocumentRegistry
	observer ports.SearchObserver
	cfg      SearchConfig
}

// NewSearchUseCase wires the coordinator. registry and observer may be nil.
func NewSearchUseCase(
	cfg SearchConfig,
	registry ports.DocumentRegistry,
	observer ports.SearchObserver,
	backends ...ports.SearchBackend,
) *SearchUseCase {
	return &SearchUseCase{
		backends: backends,
		registry: registry,
		observer: observer,
		cfg:      cfg.normalize(),
	}
}

type backendOutcome struct {
	results []domain.BackendResult
	report  domain.BackendReport
}

func (uc *SearchUseCase) Search(ctx context.Context, query domain.QuerySpec) (*domain.SearchResponse, error) {
	start := time.Now()
	if strings.TrimSpace(query.Text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("query text is required"))
	}
	q := uc.prepareQuery(query)

	resp := &domain.SearchResponse{
		Query:            q,
		Results:          []domain.FusedResult{},
		Backends:         []domain.BackendReport{},
		DegradedBackends: []string{},
		Facets:           emptyFacets(),
	}

	available := make([]ports.SearchBackend, 0, len(uc.backends))
	for _, b := range uc.backends {
		if b.IsAvailable() {
			available = append(available, b)
		}
	}
	if len(available) == 0 {
		resp.Advisory = AdvisoryNoBackend
		uc.finish(resp, start)
		return resp, nil
	}

	candidates, excluded := selectCandidates(available, q.Mode, uc.cfg.IncludeSemantic)
	called := candidates
	outcomes := uc.fanOut(ctx, candidates, q)

	fellBack := false
	if totalResults(outcomes) == 0 && len(excluded) > 0 && ctx.Err() == nil {
		slog.Info("search_semantic_fallback", "query", q.Text, "backends", len(excluded))
		retry := uc.fanOut(ctx, excluded, q)
		fellBack = totalResults(retry) > 0
		outcomes = append(outcomes, retry...)
		called = append(append([]ports.SearchBackend(nil), candidates...), excluded...)
	}

	// A caller abort means this response is stale; never hand it back.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	collected := make([]domain.BackendResult, 0, totalResults(outcomes))
	scales := make(map[string]domain.ScaleSpec, len(outcomes))
	for i, b := range called {
		desc := b.Descriptor()
		scales[desc.Name] = desc.Scale
		out := outcomes[i]
		resp.Backends = append(resp.Backends, out.report)
		if out.report.Degraded {
			resp.DegradedBackends = append(resp.DegradedBackends, desc.Name)
		}
		collected = append(collected, out.results...)
	}

	fused := FuseResults(collected, scales)
	fused = uc.enrich(ctx, q.Text, fused)
	filtered, facets := ApplyFilters(fused, q)
	resp.Results = trimResults(filtered, q.Limit)
	resp.Facets = facets
	resp.Advisory = advisoryFor(resp, len(fused), fellBack)

	uc.finish(resp, start)
	return resp, nil
}

func (uc *SearchUseCase) prepareQuery(query domain.QuerySpec) domain.QuerySpec {
	q := cloneQuery(query)
	q.Text = strings.TrimSpace(q.Text)
	if q.Mode == "" {
		q.Mode = detectMode(q.Text)
	}
	if q.SortKey == "" {
		q.SortKey = domain.SortRelevance
	}
	if q.SortOrder == "" {
		q.SortOrder = defaultOrder(q.SortKey)
	}
	if q.Limit <= 0 {
		q.Limit = uc.cfg.DefaultLimit
	}
	return q
}

// selectCandidates splits available backends into those matching the query
// intent and semantic-capable ones held back for the single fallback retry.
func selectCandidates(available []ports.SearchBackend, mode domain.QueryMode, includeSemantic bool) ([]ports.SearchBackend, []ports.SearchBackend) {
	var candidates, excluded []ports.SearchBackend
	for _, b := range available {
		caps := b.Descriptor().Capabilities
		switch mode {
		case domain.ModeQuestion:
			if caps.Has(domain.CapabilitySemantic | domain.CapabilityVector) {
				candidates = append(candidates, b)
			}
		default:
			switch {
			case caps.Has(domain.CapabilityKeyword | domain.CapabilityVector):
				candidates = append(candidates, b)
			case caps.Has(domain.CapabilitySemantic) && includeSemantic:
				candidates = append(candidates, b)
			case caps.Has(domain.CapabilitySemantic):
				excluded = append(excluded, b)
			}
		}
	}
	if len(candidates) == 0 {
		return available, nil
	}
	return candidates, excluded
}

// fanOut calls every backend concurrently. Each call writes only its own slot;
// wg.Wait is the single merge barrier.
func (uc *SearchUseCase) fanOut(ctx context.Context, backends []ports.SearchBackend, q domain.QuerySpec) []backendOutcome {
	out := make([]backendOutcome, len(backends))
	var wg sync.WaitGroup
	for i, b := range backends {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = uc.callBackend(ctx, b, cloneQuery(q))
		}()
	}
	wg.Wait()
	return out
}

type searchReply struct {
	results []domain.BackendResult
	err     error
}

// callBackend bounds a backend call by its own timeout even when the backend
// ignores context cancellation.
func (uc *SearchUseCase) callBackend(ctx context.Context, b ports.SearchBackend, q domain.QuerySpec) backendOutcome {
	desc := b.Descriptor()
	timeout := desc.Timeout
	if timeout <= 0 {
		timeout = uc.cfg.DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	replies := make(chan searchReply, 1)
	go func() {
		results, err := b.Search(callCtx, q)
		replies <- searchReply{results: results, err: err}
	}()

	var reply searchReply
	select {
	case reply = <-replies:
	case <-callCtx.Done():
		reply = searchReply{err: fmt.Errorf("search %s: %w", desc.Name, callCtx.Err())}
	}

	report := domain.BackendReport{Name: desc.Name, Latency: time.Since(start)}
	if reply.err != nil {
		report.Degraded = true
		report.Error = reply.err.Error()
		slog.Warn("backend_search_failed",
			"backend", desc.Name,
			"duration_ms", float64(report.Latency.Microseconds())/1000.0,
			"error", reply.err,
		)
		uc.observeBackend(report)
		return backendOutcome{report: report}
	}

	results := make([]domain.BackendResult, 0, len(reply.results))
	for _, r := range reply.results {
		r.Backend = desc.Name
		results = append(results, r)
	}
	report.ResultCount = len(results)
	uc.observeBackend(report)
	return backendOutcome{results: results, report: report}
}

// enrich fills title, excerpt and metadata from the registry. Results whose
// document is no longer registered are dropped: the registry is authoritative.
func (uc *SearchUseCase) enrich(ctx context.Context, queryText string, results []domain.FusedResult) []domain.FusedResult {
	if uc.registry == nil || len(results) == 0 {
		return results
	}
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.DocumentID)
	}
	docs, err := uc.registry.GetMany(ctx, ids)
	if err != nil {
		slog.Warn("search_enrich_failed", "error", err)
		return results
	}

	out := make([]domain.FusedResult, 0, len(results))
	for _, r := range results {
		doc, ok := docs[r.DocumentID]
		if !ok {
			continue
		}
		if r.Title == "" {
			r.Title = doc.Title
		}
		if r.Excerpt == "" {
			r.Excerpt = bestExcerpt(queryText, doc.Body, SummaryExcerptChars)
		}
		if r.Excerpt == "" {
			r.Excerpt = doc.Summary
		}
		r.Tags = append([]string(nil), doc.Tags...)
		r.Metadata = domain.ResultMetadata{
			Filename:   doc.Filename,
			FileType:   doc.FileType,
			FileSize:   doc.FileSize,
			UploadDate: doc.UploadDate,
			Author:     doc.Author,
			Category:   doc.Category,
		}
		out = append(out, r)
	}
	return out
}

func advisoryFor(resp *domain.SearchResponse, fusedCount int, fellBack bool) string {
	switch {
	case len(resp.Results) > 0 && fellBack:
		return AdvisorySemanticFallback
	case len(resp.Results) > 0 && len(resp.DegradedBackends) > 0:
		return fmt.Sprintf("results may be incomplete: degraded backends: %s", strings.Join(resp.DegradedBackends, ", "))
	case len(resp.Results) > 0:
		return ""
	case len(resp.Backends) > 0 && len(resp.DegradedBackends) == len(resp.Backends):
		return fmt.Sprintf("no results: all search backends failed (%s)", strings.Join(resp.DegradedBackends, ", "))
	case fusedCount > 0:
		return AdvisoryFilteredOut
	default:
		return AdvisoryNoMatches
	}
}

func (uc *SearchUseCase) finish(resp *domain.SearchResponse, start time.Time) {
	resp.TotalLatency = time.Since(start)
	if uc.observer != nil {
		uc.observer.ObserveSearch(resp.Query.Mode, resp.TotalLatency, len(resp.Results), resp.Advisory != "")
	}
}

func (uc *SearchUseCase) observeBackend(report domain.BackendReport) {
	if uc.observer != nil {
		uc.observer.ObserveBackend(report.Name, report.Latency, report.ResultCount, report.Degraded)
	}
}

func totalResults(outcomes []backendOutcome) int {
	n := 0
	for _, o := range outcomes {
		n += len(o.results)
	}
	return n
}

func cloneQuery(q domain.QuerySpec) domain.QuerySpec {
	out := q
	out.Filters.FileTypes = append([]string(nil), q.Filters.FileTypes...)
	out.Filters.Tags = append([]string(nil), q.Filters.Tags...)
	out.Filters.Authors = append([]string(nil), q.Filters.Authors...)
	if q.Filters.DateFrom != nil {
		t := *q.Filters.DateFrom
		out.Filters.DateFrom = &t
	}
	if q.Filters.DateTo != nil {
		t := *q.Filters.DateTo
		out.Filters.DateTo = &t
	}
	return out
}

func emptyFacets() domain.FacetCounts {
	return domain.FacetCounts{
		FileTypes:  map[string]int{},
		Categories: map[string]int{},
		Tags:       map[string]int{},
		Authors:    map[string]int{},
	}
}
