package pdf

import (
	"bytes"
	"compress/zlib"
	"context"
	"strings"
	"testing"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

func buildPDF(t *testing.T, content string, compress bool) []byte {
	t.Helper()
	stream := []byte(content)
	if compress {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(stream); err != nil {
			t.Fatalf("compress: %v", err)
		}
		_ = zw.Close()
		stream = buf.Bytes()
	}
	var out bytes.Buffer
	out.WriteString("%PDF-1.4\n1 0 obj\n<< /Length 99 >>\nstream\n")
	out.Write(stream)
	out.WriteString("\nendstream\nendobj\n%%EOF")
	return out.Bytes()
}

func TestScavengerReadsPlainStream(t *testing.T) {
	data := buildPDF(t, "BT /F1 12 Tf (Policy 2024) Tj ET\nBT (Remote \\(hybrid\\) work) Tj ET", false)
	text, err := NewScavenger().Extract(context.Background(), domain.NewSourceFile("p.pdf", "", data))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "Policy 2024\nRemote (hybrid) work" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestScavengerInflatesFlateStreams(t *testing.T) {
	data := buildPDF(t, "BT [(Travel) -250 (rules)] TJ ET", true)
	text, err := NewScavenger().Extract(context.Background(), domain.NewSourceFile("p.pdf", "", data))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !strings.Contains(text, "Travel") || !strings.Contains(text, "rules") {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestPDFStrategiesRejectNonPDF(t *testing.T) {
	file := domain.NewSourceFile("p.pdf", "", []byte("plain text pretending"))
	if _, err := NewScavenger().Extract(context.Background(), file); !domain.IsKind(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("scavenger: expected unsupported format, got %v", err)
	}
	if _, err := NewExtractor().Extract(context.Background(), file); !domain.IsKind(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("extractor: expected unsupported format, got %v", err)
	}
}

func TestExtractorReportsCorruptPDF(t *testing.T) {
	file := domain.NewSourceFile("broken.pdf", "", []byte("%PDF-1.4\ngarbage without xref"))
	_, err := NewExtractor().Extract(context.Background(), file)
	if !domain.IsKind(err, domain.ErrCorruptInput) {
		t.Fatalf("expected corrupt input, got %v", err)
	}
}
