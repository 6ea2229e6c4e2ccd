package usecase

import (
	"math"
	"sort"
	"strings"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

const (
	defaultBooleanScore   = 50.0
	defaultSaturationK    = 1.0
	defaultRangeMax       = 1.0
	maxNormalizedScore    = 100.0
	normalizedScoreDigits = 100.0
)

// NormalizeScore maps a backend-native score onto 0..100 using the backend's
// declared scale. The mapping is static per backend.
func NormalizeScore(raw float64, scale domain.ScaleSpec) float64 {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0
	}

	var score float64
	switch scale.Kind {
	case domain.ScalePercent:
		score = raw
	case domain.ScaleBoolean:
		score = scale.Max
		if score <= 0 {
			score = defaultBooleanScore
		}
	case domain.ScaleSaturating:
		k := scale.K
		if k <= 0 {
			k = defaultSaturationK
		}
		if raw <= 0 {
			return 0
		}
		score = maxNormalizedScore * raw / (raw + k)
	case domain.ScaleRange:
		maxRaw := scale.Max
		if maxRaw <= 0 {
			maxRaw = defaultRangeMax
		}
		score = maxNormalizedScore * raw / maxRaw
	default:
		score = raw * maxNormalizedScore
	}

	score = math.Max(0, math.Min(maxNormalizedScore, score))
	return math.Round(score*normalizedScoreDigits) / normalizedScoreDigits
}

type fusedCandidate struct {
	result   domain.FusedResult
	title    fieldPick
	excerpt  fieldPick
	backends map[string]struct{}
	marks    map[string]struct{}
}

// fieldPick keeps a value from the highest-scoring contributor that has one.
type fieldPick struct {
	value string
	score float64
	from  string
}

func (p *fieldPick) offer(value string, score float64, backend string) {
	if value == "" {
		return
	}
	if p.value == "" || preferContribution(score, backend, p.score, p.from) ||
		(score == p.score && backend == p.from && value < p.value) {
		*p = fieldPick{value: value, score: score, from: backend}
	}
}

// FuseResults merges per-backend results into one record per document id.
// The fused score is the maximum of the normalised contributing scores.
// Output order does not depend on input order.
func FuseResults(results []domain.BackendResult, scales map[string]domain.ScaleSpec) []domain.FusedResult {
	acc := make(map[string]*fusedCandidate, len(results))
	for _, r := range results {
		id := strings.TrimSpace(r.DocumentID)
		if id == "" {
			continue
		}
		score := NormalizeScore(r.RawScore, scales[r.Backend])

		candidate, ok := acc[id]
		if !ok {
			candidate = &fusedCandidate{
				result:   domain.FusedResult{DocumentID: id, Score: -1},
				backends: make(map[string]struct{}, 2),
				marks:    make(map[string]struct{}, len(r.Highlights)),
			}
			acc[id] = candidate
		}
		candidate.backends[r.Backend] = struct{}{}
		for _, h := range r.Highlights {
			if h = strings.TrimSpace(h); h != "" {
				candidate.marks[h] = struct{}{}
			}
		}
		candidate.result.Score = max(candidate.result.Score, score)
		candidate.title.offer(r.Title, score, r.Backend)
		candidate.excerpt.offer(r.Snippet, score, r.Backend)
	}

	out := make([]domain.FusedResult, 0, len(acc))
	for _, c := range acc {
		res := c.result
		res.Title = c.title.value
		res.Excerpt = c.excerpt.value
		res.Backends = sortedKeys(c.backends)
		res.Highlights = sortedKeys(c.marks)
		out = append(out, res)
	}
	sortByRelevance(out)
	return out
}

// preferContribution orders contributors: higher score first, then backend name.
func preferContribution(score float64, backend string, bestScore float64, bestFrom string) bool {
	if score != bestScore {
		return score > bestScore
	}
	return backend < bestFrom
}

func sortByRelevance(results []domain.FusedResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return tieBreakLess(results[i], results[j])
	})
}

// tieBreakLess orders equal scores by upload date desc, then title, then id.
func tieBreakLess(a, b domain.FusedResult) bool {
	if !a.Metadata.UploadDate.Equal(b.Metadata.UploadDate) {
		return a.Metadata.UploadDate.After(b.Metadata.UploadDate)
	}
	at, bt := strings.ToLower(a.Title), strings.ToLower(b.Title)
	if at != bt {
		return at < bt
	}
	return a.DocumentID < b.DocumentID
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func trimResults(results []domain.FusedResult, limit int) []domain.FusedResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}
