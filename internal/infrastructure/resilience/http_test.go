package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

func TestClassifyHTTPError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{"canceled", fmt.Errorf("call: %w", context.Canceled), false, false},
		{"bad gateway", &HTTPStatusError{StatusCode: http.StatusBadGateway}, true, true},
		{"bad request", &HTTPStatusError{StatusCode: http.StatusBadRequest}, false, false},
		{"opaque", errors.New("decode response"), false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyHTTPError(tc.err)
			if got.Retryable != tc.retryable || got.RecordFailure != tc.record {
				t.Fatalf("ClassifyHTTPError() = %+v", got)
			}
		})
	}
}

func TestNewHTTPStatusErrorKeepsBody(t *testing.T) {
	rec := httptest.NewRecorder()
	http.Error(rec, "index_not_found_exception", http.StatusNotFound)

	err := NewHTTPStatusError("elasticsearch", "search", rec.Result())
	if err.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status %d", err.StatusCode)
	}
	want := "elasticsearch search status: 404 Not Found: index_not_found_exception"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrapTemporary(t *testing.T) {
	temp := WrapTemporary("search", &HTTPStatusError{StatusCode: http.StatusServiceUnavailable})
	if !domain.IsKind(temp, domain.ErrTemporary) {
		t.Fatalf("expected temporary kind, got %v", temp)
	}
	permanent := WrapTemporary("search", &HTTPStatusError{StatusCode: http.StatusBadRequest})
	if domain.IsKind(permanent, domain.ErrTemporary) {
		t.Fatalf("bad request must stay permanent")
	}
	if WrapTemporary("search", nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}
