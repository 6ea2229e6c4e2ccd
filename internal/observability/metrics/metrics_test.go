package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

func TestMiddlewareRecordsNormalizedPath(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/documents/abc", nil))

	got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", http.MethodGet, "/v1/documents/{document_id}", "404"))
	if got != 1 {
		t.Fatalf("expected one request recorded, got %v", got)
	}
}

func TestSearchMetricsShareRegistry(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	search := NewSearchMetrics(m.Registry())

	search.ObserveBackend("qdrant", 30*time.Millisecond, 0, true)
	search.ObserveBackend("local", 5*time.Millisecond, 3, false)
	search.ObserveSearch(domain.ModeSearch, 40*time.Millisecond, 0, true)
	search.ObserveBreaker("elasticsearch.search", gobreaker.StateClosed, gobreaker.StateOpen)

	if got := testutil.ToFloat64(search.backendDegraded.WithLabelValues("qdrant")); got != 1 {
		t.Fatalf("expected degraded counter 1, got %v", got)
	}
	if got := testutil.ToFloat64(search.zeroResults.WithLabelValues("search")); got != 1 {
		t.Fatalf("expected zero-result counter 1, got %v", got)
	}
	if got := testutil.ToFloat64(search.breakerState.WithLabelValues("elasticsearch.search")); got != float64(gobreaker.StateOpen) {
		t.Fatalf("expected open breaker gauge, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "knowledge_search_search_backend_degraded_total") {
		t.Fatalf("search metrics must be exposed on the shared handler")
	}
}

func TestWorkerMetricsFinishUpload(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.StartUpload()
	m.FinishUpload("worker", time.Second, true, nil)
	m.StartUpload()
	m.FinishUpload("worker", time.Second, false, errors.New("boom"))
	m.ObserveQueueLag("worker", -time.Second)

	if got := testutil.ToFloat64(m.processTotal.WithLabelValues("worker", "error")); got != 1 {
		t.Fatalf("expected one failed upload, got %v", got)
	}
	if got := testutil.ToFloat64(m.partialTotal.WithLabelValues("worker")); got != 1 {
		t.Fatalf("expected one partial upload, got %v", got)
	}
	if got := testutil.ToFloat64(m.processInFlight); got != 0 {
		t.Fatalf("expected no uploads in flight, got %v", got)
	}
}
