package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

var pdfMagic = []byte("%PDF-")

// Extractor reads the text layer of a PDF page by page.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Name() string {
	return "pdf"
}

func (e *Extractor) Extract(ctx context.Context, file domain.SourceFile) (text string, err error) {
	if !isPDF(file.Data) {
		return "", fmt.Errorf("%s has no pdf header: %w", file.Filename, domain.ErrUnsupportedFormat)
	}

	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("parse pdf %s: %v: %w", file.Filename, r, domain.ErrCorruptInput)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(file.Data), int64(len(file.Data)))
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %v: %w", file.Filename, err, domain.ErrCorruptInput)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read pdf page %d: %v: %w", i, err, domain.ErrCorruptInput)
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strings.TrimSpace(content))
	}
	return strings.TrimSpace(b.String()), nil
}

func isPDF(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(head, pdfMagic)
}
