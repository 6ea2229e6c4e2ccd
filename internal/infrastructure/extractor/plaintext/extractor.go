package plaintext

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Extensions handled by the plain text strategy.
var Extensions = []string{"txt", "md", "markdown", "csv", "tsv", "log", "json", "xml", "yaml", "yml", "rtf"}

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Name() string {
	return "plaintext"
}

func (e *Extractor) Extract(_ context.Context, file domain.SourceFile) (string, error) {
	raw := bytes.TrimPrefix(file.Data, utf8BOM)
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%s is not valid utf-8: %w", file.Filename, domain.ErrUnsupportedFormat)
	}
	if bytes.IndexByte(raw, 0) >= 0 {
		return "", fmt.Errorf("%s contains NUL bytes: %w", file.Filename, domain.ErrUnsupportedFormat)
	}

	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	return strings.TrimSpace(text), nil
}
