package httpadapter

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/kirillkom/knowledge-search/internal/config"
)

func multipartBody(t *testing.T, filename, content string, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() error = %v", err)
		}
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestHealthzEndpoint(t *testing.T) {
	handler := newTestHandler(config.Config{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestUploadDocumentIndexesSynchronously(t *testing.T) {
	rig := newTestRig()
	handler := rig.handler(config.Config{})

	body, contentType := multipartBody(t, "policy.txt", "travel policy", map[string]string{
		"title":    "Policy 2024",
		"tags":     "hr, travel,,",
		"category": "policies",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	var outcome struct {
		Document  map[string]any `json:"document"`
		Succeeded []string       `json:"succeeded"`
	}
	if err := json.NewDecoder(res.Body).Decode(&outcome); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if outcome.Document["id"] != "doc-1" || !slices.Equal(outcome.Succeeded, []string{"local"}) {
		t.Fatalf("unexpected response: %+v", outcome)
	}
	if rig.indexer.lastFile.Extension != "txt" || string(rig.indexer.lastFile.Data) != "travel policy" {
		t.Fatalf("unexpected source file %+v", rig.indexer.lastFile)
	}
	if rig.indexer.lastMeta.Title != "Policy 2024" || !slices.Equal(rig.indexer.lastMeta.Tags, []string{"hr", "travel"}) {
		t.Fatalf("unexpected metadata %+v", rig.indexer.lastMeta)
	}
}

func TestUploadDocumentAsyncReturns202(t *testing.T) {
	rig := newTestRig()
	handler := rig.handler(config.Config{})

	body, contentType := multipartBody(t, "budget.csv", "a,b\n1,2\n", nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/documents?async=true", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	if rig.uploader.filename != "budget.csv" {
		t.Fatalf("expected uploader to receive the file, got %q", rig.uploader.filename)
	}
	if rig.indexer.lastFile.Filename != "" {
		t.Fatalf("async upload must not index inline")
	}
}

func TestUploadDocumentTooLarge(t *testing.T) {
	handler := newTestHandler(config.Config{MaxUploadBytes: 4})

	body, contentType := multipartBody(t, "big.txt", "more than four bytes", nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUploadDocumentMissingMultipartField(t *testing.T) {
	handler := newTestHandler(config.Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewBufferString("plain-text"))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestSearchUsesSessionWhenHeaderPresent(t *testing.T) {
	rig := newTestRig()
	handler := rig.handler(config.Config{})

	payload := `{"text":"policy 2024","filters":{"file_types":["txt"]},"sort_key":"date","limit":5}`
	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(payload))
	req.Header.Set(sessionIDHeader, "tab-1")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !slices.Equal(rig.sessions.keys, []string{"tab-1"}) || rig.search.calls != 0 {
		t.Fatalf("expected session search, keys=%v direct=%d", rig.sessions.keys, rig.search.calls)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(payload))
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK || rig.search.calls != 1 {
		t.Fatalf("expected direct search, got %d calls=%d", res.Code, rig.search.calls)
	}
	if rig.search.lastQuery.Limit != 5 || rig.search.lastQuery.Filters.FileTypes[0] != "txt" {
		t.Fatalf("unexpected decoded query %+v", rig.search.lastQuery)
	}
}

func TestStatsAndDocumentEndpoints(t *testing.T) {
	handler := newTestHandler(config.Config{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), `"total_documents":2`) {
		t.Fatalf("unexpected stats response %d %s", res.Code, res.Body.String())
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1", nil))
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "Policy 2024") {
		t.Fatalf("unexpected document response %d %s", res.Code, res.Body.String())
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodDelete, "/v1/documents/doc-1", nil))
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
}
