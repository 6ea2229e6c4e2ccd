package usecase

import (
	"cmp"
	"sort"
	"strings"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

const TabAll = "all"

// tabFileTypes groups file types behind UI tabs. Any other tab value is
// matched against the document category.
var tabFileTypes = map[string][]string{
	"documents":    {"pdf", "doc", "docx", "txt", "md", "rtf", "odt"},
	"spreadsheets": {"xlsx", "xlsm", "xls", "csv", "ods"},
	"pdf":          {"pdf"},
	"web":          {"html", "htm"},
}

// ApplyFilters is a pure transform: predicates (AND across categories, OR
// within one), then the requested sort, then tab slicing. Facets are counted
// after filtering and before tab slicing.
func ApplyFilters(results []domain.FusedResult, query domain.QuerySpec) ([]domain.FusedResult, domain.FacetCounts) {
	filtered := make([]domain.FusedResult, 0, len(results))
	for _, r := range results {
		if matchesFilters(r, query.Filters) {
			filtered = append(filtered, r)
		}
	}

	facets := countFacets(filtered)
	sortResults(filtered, query.SortKey, query.SortOrder)
	return sliceTab(filtered, query.Tab), facets
}

func matchesFilters(r domain.FusedResult, f domain.SearchFilters) bool {
	meta := r.Metadata
	if f.DateFrom != nil && meta.UploadDate.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && meta.UploadDate.After(*f.DateTo) {
		return false
	}
	if len(f.FileTypes) > 0 && !containsFold(f.FileTypes, strings.TrimPrefix(meta.FileType, ".")) {
		return false
	}
	if f.MinSize > 0 && meta.FileSize < f.MinSize {
		return false
	}
	if f.MaxSize > 0 && meta.FileSize > f.MaxSize {
		return false
	}
	if len(f.Tags) > 0 && !anyFold(f.Tags, r.Tags) {
		return false
	}
	if len(f.Authors) > 0 && !containsFold(f.Authors, meta.Author) {
		return false
	}
	return true
}

func sortResults(results []domain.FusedResult, key domain.SortKey, order domain.SortOrder) {
	if key == "" {
		key = domain.SortRelevance
	}
	if order == "" {
		order = defaultOrder(key)
	}
	desc := order == domain.SortDesc

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		var c int
		switch key {
		case domain.SortDate:
			c = a.Metadata.UploadDate.Compare(b.Metadata.UploadDate)
		case domain.SortTitle:
			c = strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		case domain.SortSize:
			c = cmp.Compare(a.Metadata.FileSize, b.Metadata.FileSize)
		default:
			c = cmp.Compare(a.Score, b.Score)
		}
		if c != 0 {
			if desc {
				return c > 0
			}
			return c < 0
		}
		if key != domain.SortRelevance && a.Score != b.Score {
			return a.Score > b.Score
		}
		return tieBreakLess(a, b)
	})
}

func defaultOrder(key domain.SortKey) domain.SortOrder {
	if key == domain.SortTitle {
		return domain.SortAsc
	}
	return domain.SortDesc
}

func sliceTab(results []domain.FusedResult, tab string) []domain.FusedResult {
	tab = strings.ToLower(strings.TrimSpace(tab))
	if tab == "" || tab == TabAll {
		return results
	}
	types, grouped := tabFileTypes[tab]
	out := make([]domain.FusedResult, 0, len(results))
	for _, r := range results {
		if grouped {
			if containsFold(types, r.Metadata.FileType) {
				out = append(out, r)
			}
			continue
		}
		if strings.EqualFold(r.Metadata.Category, tab) {
			out = append(out, r)
		}
	}
	return out
}

func countFacets(results []domain.FusedResult) domain.FacetCounts {
	facets := domain.FacetCounts{
		FileTypes:  map[string]int{},
		Categories: map[string]int{},
		Tags:       map[string]int{},
		Authors:    map[string]int{},
	}
	for _, r := range results {
		if r.Metadata.FileType != "" {
			facets.FileTypes[strings.ToLower(r.Metadata.FileType)]++
		}
		if r.Metadata.Category != "" {
			facets.Categories[r.Metadata.Category]++
		}
		if r.Metadata.Author != "" {
			facets.Authors[r.Metadata.Author]++
		}
		for _, tag := range r.Tags {
			facets.Tags[tag]++
		}
	}
	return facets
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimPrefix(strings.TrimSpace(v), "."), target) {
			return true
		}
	}
	return false
}

func anyFold(wanted, have []string) bool {
	for _, h := range have {
		if containsFold(wanted, h) {
			return true
		}
	}
	return false
}
