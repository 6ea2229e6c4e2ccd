package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

type generatorFake struct {
	prompt   string
	response string
	err      error
}

func (g *generatorFake) GenerateFromPrompt(_ context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return g.response, g.err
}

func TestPrintableRuns(t *testing.T) {
	data := []byte("\x00\x01Policy 2024\x00ab\x02remote work\xff")
	got := PrintableRuns(data, 4, 100)
	if got != "Policy 2024\nremote work" {
		t.Fatalf("unexpected runs %q", got)
	}
	if capped := PrintableRuns(data, 4, 6); capped != "Policy" {
		t.Fatalf("cap ignored: %q", capped)
	}
}

func TestExtractSendsFragments(t *testing.T) {
	gen := &generatorFake{response: " Policy 2024: remote work is allowed. "}
	data := []byte("\x00\x00Policy 2024\x00remote work allowed\x00")

	text, err := NewExtractor(gen, 0).Extract(context.Background(), domain.NewSourceFile("scan.bin", "", data))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "Policy 2024: remote work is allowed." {
		t.Fatalf("unexpected text %q", text)
	}
	if !strings.Contains(gen.prompt, "remote work allowed") || !strings.Contains(gen.prompt, "scan.bin") {
		t.Fatalf("prompt missing fragments: %s", gen.prompt)
	}
}

func TestExtractNoTextMarker(t *testing.T) {
	gen := &generatorFake{response: "no_text"}
	text, err := NewExtractor(gen, 0).Extract(context.Background(), domain.NewSourceFile("a.bin", "", []byte("some readable words")))
	if err != nil || text != "" {
		t.Fatalf("expected empty text, got %q %v", text, err)
	}
}

func TestExtractWithoutFragments(t *testing.T) {
	gen := &generatorFake{}
	_, err := NewExtractor(gen, 0).Extract(context.Background(), domain.NewSourceFile("a.bin", "", []byte{0, 1, 2, 3}))
	if !domain.IsKind(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
	if gen.prompt != "" {
		t.Fatalf("model must not be called without fragments")
	}
}

func TestExtractPropagatesModelFailure(t *testing.T) {
	gen := &generatorFake{err: domain.WrapError(domain.ErrTemporary, "ollama generate", errors.New("503"))}
	_, err := NewExtractor(gen, 0).Extract(context.Background(), domain.NewSourceFile("a.bin", "", []byte("readable words here")))
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}
