package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/knowledge-search/internal/config"
	"github.com/kirillkom/knowledge-search/internal/core/domain"
	"github.com/kirillkom/knowledge-search/internal/core/ports"
	"github.com/kirillkom/knowledge-search/internal/core/usecase"
	"github.com/kirillkom/knowledge-search/internal/observability/metrics"
)

const (
	sessionIDHeader     = "X-Session-Id"
	multipartOverhead   = 1 << 20
	backpressureTimeout = 250 * time.Millisecond
	serviceName         = "api"
)

// Uploader accepts a file for asynchronous indexing by the worker.
type Uploader interface {
	Upload(ctx context.Context, filename, mimeType string, data []byte, meta domain.DocumentMetadata) (*domain.UploadEvent, error)
}

// Services groups the use cases the router dispatches to. Uploader and
// Sessions are optional.
type Services struct {
	Indexer  ports.DocumentIndexer
	Uploader Uploader
	Search   ports.SearchService
	Sessions ports.SessionSearcher
	Stats    ports.StatsReader
	Docs     ports.DocumentReader
}

type Router struct {
	cfg     config.Config
	svc     Services
	metrics *metrics.HTTPServerMetrics
}

func NewRouter(cfg config.Config, svc Services, httpMetrics *metrics.HTTPServerMetrics) *Router {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	return &Router{
		cfg:     cfg,
		svc:     svc,
		metrics: httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents/{document_id}", rt.getDocumentByID)
	mux.HandleFunc("DELETE /v1/documents/{document_id}", rt.deleteDocument)
	mux.HandleFunc("POST /v1/search", rt.search)
	mux.HandleFunc("GET /v1/stats", rt.stats)

	var onReject rejectFunc
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
		onReject = func(reason string) { rt.metrics.RecordRejected(serviceName, reason) }
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, backpressureTimeout, onReject)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, onReject)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes+multipartOverhead)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	data, err := usecase.ReadUpload(file, rt.cfg.MaxUploadBytes)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	meta := metadataFromForm(r)
	mimeType := fileHeader.Header.Get("Content-Type")

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		if rt.svc.Uploader == nil {
			writeError(w, http.StatusServiceUnavailable, "asynchronous ingestion is not configured")
			return
		}
		event, err := rt.svc.Uploader.Upload(r.Context(), fileHeader.Filename, mimeType, data, meta)
		if err != nil {
			rt.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, event)
		return
	}

	outcome, err := rt.svc.Indexer.IndexDocument(r.Context(), domain.NewSourceFile(fileHeader.Filename, mimeType, data), meta)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, outcome)
}

func metadataFromForm(r *http.Request) domain.DocumentMetadata {
	var tags []string
	for _, raw := range r.MultipartForm.Value["tags"] {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	}
	return domain.DocumentMetadata{
		Title:    strings.TrimSpace(r.FormValue("title")),
		Tags:     tags,
		Category: strings.TrimSpace(r.FormValue("category")),
		Author:   strings.TrimSpace(r.FormValue("author")),
	}
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("document_id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	doc, err := rt.svc.Docs.GetByID(r.Context(), id)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("document_id"))
	if _, err := rt.svc.Indexer.DeleteDocument(r.Context(), id); err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	var query domain.QuerySpec
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&query); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(query.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	var (
		resp *domain.SearchResponse
		err  error
	)
	sessionKey := strings.TrimSpace(r.Header.Get(sessionIDHeader))
	if sessionKey != "" && rt.svc.Sessions != nil {
		resp, err = rt.svc.Sessions.SearchInSession(r.Context(), sessionKey, query)
	} else {
		resp, err = rt.svc.Search.Search(r.Context(), query)
	}
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.svc.Stats.Stats(r.Context())
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
