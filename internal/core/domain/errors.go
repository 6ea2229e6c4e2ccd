package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDocumentNotFound    = errors.New("document not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrTemporary           = errors.New("temporary failure")
	ErrUnsupportedFormat   = errors.New("unsupported format")
	ErrCorruptInput        = errors.New("corrupt input")
	ErrBackendsUnavailable = errors.New("no backend accepted the document")
	ErrStaleQuery          = errors.New("query superseded by a newer one")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ExtractionFailure is returned when every strategy of a chain failed.
type ExtractionFailure struct {
	Filename string
	Attempts []ExtractionAttempt
}

func (e *ExtractionFailure) Error() string {
	reasons := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		reasons = append(reasons, fmt.Sprintf("%s(%s): %s", a.Strategy, a.Kind, a.Reason))
	}
	return fmt.Sprintf("extract %s: all %d strategies failed: %s", e.Filename, len(e.Attempts), strings.Join(reasons, "; "))
}

func (e *ExtractionFailure) Unwrap() error {
	return ErrInvalidInput
}
