package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
	"github.com/kirillkom/knowledge-search/internal/core/ports"
)

const (
	noTextMarker    = "NO_TEXT"
	defaultMaxInput = 6000
	minRunLength    = 4
)

// Extractor is the last strategy of every chain: it hands the readable
// fragments of an unknown file to a language model and asks for a clean
// transcription.
type Extractor struct {
	generator ports.TextGenerator
	maxInput  int
}

func NewExtractor(generator ports.TextGenerator, maxInput int) *Extractor {
	if maxInput <= 0 {
		maxInput = defaultMaxInput
	}
	return &Extractor{generator: generator, maxInput: maxInput}
}

func (e *Extractor) Name() string {
	return "ai-fallback"
}

func (e *Extractor) Extract(ctx context.Context, file domain.SourceFile) (string, error) {
	if e.generator == nil {
		return "", errors.New("no language model configured")
	}
	fragments := PrintableRuns(file.Data, minRunLength, e.maxInput)
	if fragments == "" {
		return "", fmt.Errorf("%s has no readable fragments: %w", file.Filename, domain.ErrUnsupportedFormat)
	}

	out, err := e.generator.GenerateFromPrompt(ctx, buildTranscriptionPrompt(file, fragments))
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", file.Filename, err)
	}
	out = strings.TrimSpace(out)
	if strings.EqualFold(out, noTextMarker) {
		return "", nil
	}
	return out, nil
}

func buildTranscriptionPrompt(file domain.SourceFile, fragments string) string {
	return fmt.Sprintf(`You recover document text from damaged or unknown files.
Below are readable fragments of the file %q (type %q).
Return only the document's natural-language text in reading order.
Drop markup, binary noise and repeated headers.
If there is no meaningful text, answer exactly %s.

Fragments:
%s
`, file.Filename, file.Extension, noTextMarker, fragments)
}

// PrintableRuns returns runs of printable characters of at least minRun runes,
// one per line, capped at maxRunes in total.
func PrintableRuns(data []byte, minRun, maxRunes int) string {
	var (
		out   strings.Builder
		run   []rune
		total int
	)
	flush := func() {
		if len(run) >= minRun && total < maxRunes {
			text := strings.TrimSpace(string(run))
			if text != "" {
				if n := utf8.RuneCountInString(text); total+n > maxRunes {
					text = string([]rune(text)[:maxRunes-total])
				}
				out.WriteString(text)
				out.WriteString("\n")
				total += utf8.RuneCountInString(text)
			}
		}
		run = run[:0]
	}

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		data = data[size:]
		if r != utf8.RuneError && (unicode.IsPrint(r) || r == '\t') {
			run = append(run, r)
			continue
		}
		flush()
	}
	flush()
	return strings.TrimSpace(out.String())
}
