package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

const documentPart = "word/document.xml"

// Extractor reads paragraph text from word/document.xml of a DOCX package.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Name() string {
	return "docx"
}

func (e *Extractor) Extract(_ context.Context, file domain.SourceFile) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(file.Data), int64(len(file.Data)))
	if err != nil {
		return "", fmt.Errorf("%s is not a zip package: %w", file.Filename, domain.ErrUnsupportedFormat)
	}

	for _, part := range reader.File {
		if part.Name != documentPart {
			continue
		}
		rc, err := part.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %v: %w", documentPart, err, domain.ErrCorruptInput)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read %s: %v: %w", documentPart, err, domain.ErrCorruptInput)
		}
		return parseDocumentXML(content)
	}
	return "", fmt.Errorf("%s has no %s: %w", file.Filename, documentPart, domain.ErrUnsupportedFormat)
}

// parseDocumentXML walks tokens instead of unmarshalling so text inside
// tables and text boxes is kept.
func parseDocumentXML(content []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(content))
	var (
		b      strings.Builder
		inText bool
	)
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse %s: %v: %w", documentPart, err, domain.ErrCorruptInput)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteString("\t")
			case "br", "cr":
				b.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n")
			case "tc":
				b.WriteString("\t")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}

	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n"), nil
}
