package local

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(DefaultDescriptor())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSearchFindsIndexedDocument(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	docs := []*domain.Document{
		{ID: "policy", Title: "Policy 2024", Body: "The travel policy for 2024 covers trains and flights.", Tags: []string{"hr"}},
		{ID: "budget", Title: "Budget", Body: "Quarterly budget figures for the ministry."},
	}
	for _, doc := range docs {
		if err := b.Index(ctx, doc); err != nil {
			t.Fatalf("Index(%s) error = %v", doc.ID, err)
		}
	}

	results, err := b.Search(ctx, domain.QuerySpec{Text: "policy"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].DocumentID != "policy" {
		t.Fatalf("expected only the policy document, got %+v", results)
	}
	got := results[0]
	if got.Backend != Name || got.Title != "Policy 2024" || got.RawScore <= 0 {
		t.Fatalf("unexpected result %+v", got)
	}
	if !slices.Contains(got.Highlights, "policy") {
		t.Fatalf("expected matched term in highlights, got %v", got.Highlights)
	}
	if !strings.Contains(got.Snippet, "travel policy") {
		t.Fatalf("expected snippet around the match, got %q", got.Snippet)
	}
}

func TestIndexOverwritesByID(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	if err := b.Index(ctx, &domain.Document{ID: "a", Title: "Old", Body: "obsolete wording"}); err != nil {
		t.Fatalf("first Index() error = %v", err)
	}
	if err := b.Index(ctx, &domain.Document{ID: "a", Title: "New", Body: "fresh wording"}); err != nil {
		t.Fatalf("second Index() error = %v", err)
	}

	count, err := b.Count()
	if err != nil || count != 1 {
		t.Fatalf("expected one document, got %d (%v)", count, err)
	}
	results, err := b.Search(ctx, domain.QuerySpec{Text: "obsolete"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("old body must be replaced, got %+v", results)
	}
}

func TestDeleteRemovesDocument(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	if err := b.Index(ctx, &domain.Document{ID: "a", Title: "Policy", Body: "policy text"}); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if err := b.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	results, err := b.Search(ctx, domain.QuerySpec{Text: "policy"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results after delete, got %+v", results)
	}
}

func TestSearchRespectsLimit(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := b.Index(ctx, &domain.Document{ID: id, Title: "Report " + id, Body: "annual report"}); err != nil {
			t.Fatalf("Index() error = %v", err)
		}
	}

	results, err := b.Search(ctx, domain.QuerySpec{Text: "report", Limit: 2})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestClosedBackendIsUnavailable(t *testing.T) {
	b := newTestBackend(t)
	if !b.IsAvailable() {
		t.Fatalf("fresh backend must be available")
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if b.IsAvailable() {
		t.Fatalf("closed backend must be unavailable")
	}
	if _, err := b.Search(context.Background(), domain.QuerySpec{Text: "x"}); err == nil {
		t.Fatalf("expected error from closed backend")
	}
}

func TestIndexRequiresID(t *testing.T) {
	b := newTestBackend(t)
	err := b.Index(context.Background(), &domain.Document{Title: "No id"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestDefaultScaleKeepsTitleHitsCompetitive(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	doc := &domain.Document{ID: "policy", Title: "Policy 2024", Body: "The travel policy for 2024 covers trains, flights and hotel stays."}
	if err := b.Index(ctx, doc); err != nil {
		t.Fatalf("Index() error = %v", err)
	}

	results, err := b.Search(ctx, domain.QuerySpec{Text: "Policy"})
	if err != nil || len(results) != 1 {
		t.Fatalf("Search() = %+v, %v", results, err)
	}
	scale := b.Descriptor().Scale
	if scale.K != DefaultScaleK {
		t.Fatalf("unexpected default scale %+v", scale)
	}
	normalized := 100 * results[0].RawScore / (results[0].RawScore + scale.K)
	if normalized < 20 {
		t.Fatalf("raw score %v normalises to %v; exact title hits must stay competitive", results[0].RawScore, normalized)
	}
}
