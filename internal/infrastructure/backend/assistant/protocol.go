package assistant

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

// The assistant answers in an informal tagged format:
//
//	[[RESULT id=<document id> score=<0-100>]]
//	quoted passage
//	[[/RESULT]]
//
// Everything that knows about this format lives in this file.
var resultBlock = regexp.MustCompile(`(?s)\[\[RESULT\s+id=("[^"]*"|\S+?)\s+score=([0-9]+(?:\.[0-9]+)?)\s*\]\](.*?)\[\[/RESULT\]\]`)

type digest struct {
	ID         string
	Title      string
	Summary    string
	Excerpt    string
	Tags       []string
	UploadDate time.Time
}

type parsedResult struct {
	ID      string
	Score   float64
	Passage string
}

func parseResults(raw string) []parsedResult {
	matches := resultBlock.FindAllStringSubmatch(raw, -1)
	out := make([]parsedResult, 0, len(matches))
	for _, m := range matches {
		id := strings.Trim(strings.TrimSpace(m[1]), `"`)
		score, err := strconv.ParseFloat(m[2], 64)
		if id == "" || err != nil {
			continue
		}
		out = append(out, parsedResult{
			ID:      id,
			Score:   score,
			Passage: strings.Join(strings.Fields(m[3]), " "),
		})
	}
	return out
}

func buildPrompt(spec domain.QuerySpec, catalogue []digest, maxResults int) string {
	var b strings.Builder
	b.WriteString("You are the retrieval assistant of a document portal.\n")
	if spec.Mode == domain.ModeQuestion {
		b.WriteString("Find the documents that answer the user's question.\n")
	} else {
		b.WriteString("Find the documents relevant to the user's search.\n")
	}
	fmt.Fprintf(&b, "Return at most %d results, best first, each exactly in this form:\n", maxResults)
	b.WriteString("[[RESULT id=<document id> score=<relevance 0-100>]]\n<short quote from the document>\n[[/RESULT]]\n")
	b.WriteString("Use only ids from the catalogue. If nothing is relevant, return nothing.\n\n")
	fmt.Fprintf(&b, "Query: %s\n\nCatalogue:\n", strings.TrimSpace(spec.Text))
	for _, d := range catalogue {
		fmt.Fprintf(&b, "- id=%s | title=%s", d.ID, d.Title)
		if len(d.Tags) > 0 {
			fmt.Fprintf(&b, " | tags=%s", strings.Join(d.Tags, ","))
		}
		b.WriteString("\n")
		if d.Summary != "" {
			fmt.Fprintf(&b, "  summary: %s\n", d.Summary)
		}
		if d.Excerpt != "" {
			fmt.Fprintf(&b, "  excerpt: %s\n", d.Excerpt)
		}
	}
	return b.String()
}

func excerptOf(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
