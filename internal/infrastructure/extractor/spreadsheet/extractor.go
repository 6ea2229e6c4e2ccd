package spreadsheet

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

const defaultMaxRows = 5000

// Extractor renders every sheet of a workbook as tab-separated rows under a
// sheet heading.
type Extractor struct {
	maxRows int
}

func NewExtractor(maxRows int) *Extractor {
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	return &Extractor{maxRows: maxRows}
}

func (e *Extractor) Name() string {
	return "spreadsheet"
}

func (e *Extractor) Extract(ctx context.Context, file domain.SourceFile) (string, error) {
	if !bytes.HasPrefix(file.Data, []byte("PK")) {
		return "", fmt.Errorf("%s is not an office open xml workbook: %w", file.Filename, domain.ErrUnsupportedFormat)
	}

	wb, err := excelize.OpenReader(bytes.NewReader(file.Data))
	if err != nil {
		return "", fmt.Errorf("open workbook %s: %v: %w", file.Filename, err, domain.ErrCorruptInput)
	}
	defer wb.Close()

	var b strings.Builder
	rowsLeft := e.maxRows
	for _, sheet := range wb.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		rows, err := wb.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %v: %w", sheet, err, domain.ErrCorruptInput)
		}

		written := false
		for _, row := range rows {
			if rowsLeft == 0 {
				break
			}
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line == "" {
				continue
			}
			if !written {
				if b.Len() > 0 {
					b.WriteString("\n")
				}
				b.WriteString("# " + sheet + "\n")
				written = true
			}
			b.WriteString(line)
			b.WriteString("\n")
			rowsLeft--
		}
	}
	return strings.TrimSpace(b.String()), nil
}
