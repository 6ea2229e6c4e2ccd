package pdf

import (
	"bytes"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

const maxInflatedStream = 16 << 20

var (
	streamPattern  = regexp.MustCompile(`(?s)stream\r?\n(.*?)\r?\nendstream`)
	textBlock      = regexp.MustCompile(`(?s)BT(.*?)ET`)
	literalPattern = regexp.MustCompile(`\(((?:\\.|[^\\()])*)\)`)
)

// Scavenger recovers text from content streams when the structured parser
// cannot open the document, e.g. after a broken cross-reference table.
type Scavenger struct{}

func NewScavenger() *Scavenger {
	return &Scavenger{}
}

func (s *Scavenger) Name() string {
	return "pdf-scavenger"
}

func (s *Scavenger) Extract(ctx context.Context, file domain.SourceFile) (string, error) {
	if !isPDF(file.Data) {
		return "", fmt.Errorf("%s has no pdf header: %w", file.Filename, domain.ErrUnsupportedFormat)
	}

	var lines []string
	for _, m := range streamPattern.FindAllSubmatch(file.Data, -1) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		content := inflate(m[1])
		for _, block := range textBlock.FindAllSubmatch(content, -1) {
			var line strings.Builder
			for _, lit := range literalPattern.FindAllSubmatch(block[1], -1) {
				line.WriteString(unescapeLiteral(lit[1]))
			}
			if text := strings.TrimSpace(line.String()); text != "" {
				lines = append(lines, text)
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}

// inflate returns the decompressed stream, or the raw bytes when the stream
// is not Flate-encoded.
func inflate(raw []byte) []byte {
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return raw
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, maxInflatedStream))
	if err != nil && len(out) == 0 {
		return raw
	}
	return out
}

func unescapeLiteral(raw []byte) string {
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' || i+1 == len(raw) {
			if c >= 0x20 || c == '\t' {
				b.WriteByte(c)
			}
			continue
		}
		i++
		switch raw[i] {
		case 'n', 'r':
			b.WriteByte(' ')
		case 't':
			b.WriteByte('\t')
		case '(', ')', '\\':
			b.WriteByte(raw[i])
		default:
			// Octal escapes and unknown sequences carry no readable text.
			for i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7' {
				i++
			}
		}
	}
	return b.String()
}
