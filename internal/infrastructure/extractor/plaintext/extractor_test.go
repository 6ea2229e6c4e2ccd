package plaintext

import (
	"context"
	"testing"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

func TestExtractStripsBOMAndCRLF(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("line one\r\nline two\r\n")...)
	text, err := NewExtractor().Extract(context.Background(), domain.NewSourceFile("a.txt", "", data))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "line one\nline two" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExtractRejectsBinary(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), domain.NewSourceFile("a.bin", "", []byte{0xff, 0xfe, 0x00, 0x01}))
	if !domain.IsKind(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
}
