package html

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Head:     true,
}

var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Hr: true, atom.Li: true,
	atom.Tr: true, atom.Table: true, atom.Section: true, atom.Article: true,
	atom.Blockquote: true, atom.Pre: true, atom.H1: true, atom.H2: true,
	atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true, atom.Title: true,
}

// Extractor keeps readable text of an HTML page, dropping scripts and styles
// but keeping the <title>.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Name() string {
	return "html"
}

func (e *Extractor) Extract(ctx context.Context, file domain.SourceFile) (string, error) {
	if !looksLikeHTML(file.Data) {
		return "", fmt.Errorf("%s has no html markup: %w", file.Filename, domain.ErrUnsupportedFormat)
	}

	z := html.NewTokenizer(bytes.NewReader(file.Data))
	var (
		b     strings.Builder
		title string
		depth int
		inTag atom.Atom
	)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return "", fmt.Errorf("tokenize %s: %v: %w", file.Filename, err, domain.ErrCorruptInput)
			}
			return joinLines(title, b.String()), nil
		case html.StartTagToken, html.SelfClosingTagToken:
			if err := ctx.Err(); err != nil {
				return "", err
			}
			tok := z.Token()
			if tok.DataAtom == atom.Title {
				inTag = atom.Title
				continue
			}
			if skipped[tok.DataAtom] && tt == html.StartTagToken {
				depth++
			}
			if blocks[tok.DataAtom] {
				b.WriteString("\n")
			}
		case html.EndTagToken:
			tok := z.Token()
			if tok.DataAtom == atom.Title {
				inTag = 0
				continue
			}
			if skipped[tok.DataAtom] && depth > 0 {
				depth--
			}
			if blocks[tok.DataAtom] {
				b.WriteString("\n")
			}
		case html.TextToken:
			text := string(z.Text())
			if inTag == atom.Title {
				title += text
				continue
			}
			if depth == 0 {
				b.WriteString(text)
			}
		}
	}
}

func looksLikeHTML(data []byte) bool {
	head := data
	if len(head) > 4096 {
		head = head[:4096]
	}
	head = bytes.ToLower(head)
	for _, marker := range [][]byte{[]byte("<html"), []byte("<!doctype html"), []byte("<body"), []byte("<p"), []byte("<div")} {
		if bytes.Contains(head, marker) {
			return true
		}
	}
	return false
}

func joinLines(title, body string) string {
	out := make([]string, 0, 32)
	if title = strings.Join(strings.Fields(title), " "); title != "" {
		out = append(out, title)
	}
	for _, line := range strings.Split(body, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
