package usecase

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

// SummaryExcerptChars bounds the excerpt used when summary generation fails.
const SummaryExcerptChars = 280

var questionWords = map[string]struct{}{
	"what": {}, "how": {}, "why": {}, "when": {}, "where": {}, "who": {}, "which": {},
	"whom": {}, "whose": {}, "is": {}, "are": {}, "can": {}, "does": {}, "do": {},
	"should": {}, "could": {}, "would": {}, "explain": {}, "summarize": {},
}

// detectMode guesses whether free text is a question for the assistant or a
// plain keyword search.
func detectMode(text string) domain.QueryMode {
	trimmed := strings.TrimSpace(text)
	if strings.HasSuffix(trimmed, "?") {
		return domain.ModeQuestion
	}
	tokens := splitAlphaNumLower(trimmed)
	if len(tokens) == 0 {
		return domain.ModeSearch
	}
	if _, ok := questionWords[tokens[0]]; ok && len(tokens) >= 3 {
		return domain.ModeQuestion
	}
	return domain.ModeSearch
}

// excerptHead returns the first maxRunes runes of text cut at a word boundary.
func excerptHead(text string, maxRunes int) string {
	text = strings.Join(strings.Fields(text), " ")
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	cut := maxRunes
	for i := maxRunes; i > maxRunes/2; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	return strings.TrimSpace(string(runes[:cut])) + "…"
}

// bestExcerpt picks the line window of body with the highest query token overlap.
func bestExcerpt(query, body string, maxRunes int) string {
	queryTokens := toTokenSet(query)
	if len(queryTokens) == 0 {
		return excerptHead(body, maxRunes)
	}

	lines := strings.FieldsFunc(body, func(r rune) bool { return r == '\n' || r == '\r' })
	bestIdx := -1
	bestScore := 0.0
	for i, line := range lines {
		score := tokenOverlap(queryTokens, toTokenSet(line))
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return excerptHead(body, maxRunes)
	}

	var b strings.Builder
	for i := bestIdx; i < len(lines); i++ {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(strings.TrimSpace(lines[i]))
		if utf8.RuneCountInString(b.String()) >= maxRunes {
			break
		}
	}
	return excerptHead(b.String(), maxRunes)
}

func tokenOverlap(query, chunk map[string]struct{}) float64 {
	if len(query) == 0 || len(chunk) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := chunk[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

func titleFromFilename(filename string) string {
	base := filename
	if idx := strings.LastIndexAny(base, `/\`); idx >= 0 {
		base = base[idx+1:]
	}
	if ext := domain.NormalizeExtension(base); ext != "" {
		base = strings.TrimSuffix(base, base[len(base)-len(ext)-1:])
	}
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	base = strings.Join(strings.Fields(base), " ")
	if base == "" {
		return "Untitled document"
	}
	return base
}
