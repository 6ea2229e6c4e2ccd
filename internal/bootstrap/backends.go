package bootstrap

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/knowledge-search/internal/core/ports"
	"github.com/kirillkom/knowledge-search/internal/infrastructure/backend/assistant"
	"github.com/kirillkom/knowledge-search/internal/infrastructure/backend/elasticsearch"
	"github.com/kirillkom/knowledge-search/internal/infrastructure/backend/local"
	"github.com/kirillkom/knowledge-search/internal/infrastructure/backend/qdrant"
	"github.com/kirillkom/knowledge-search/internal/infrastructure/chunking"
	"github.com/kirillkom/knowledge-search/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/knowledge-search/internal/infrastructure/resilience"
)

// isProcessLocal names backends whose index lives in process memory.
func isProcessLocal(name string) bool {
	return name == local.Name || name == assistant.Name
}

func processLocal(backends []ports.SearchBackend) []ports.SearchBackend {
	out := make([]ports.SearchBackend, 0, len(backends))
	for _, b := range backends {
		if isProcessLocal(b.Descriptor().Name) {
			out = append(out, b)
		}
	}
	return out
}

func (a *App) buildBackends(role Role, llmClient *ollama.Client, executor *resilience.Executor) ([]ports.SearchBackend, error) {
	cfg := a.Config
	defaultTimeout := time.Duration(cfg.SearchDefaultTimeoutMS) * time.Millisecond
	enabled := func(name string) bool {
		if !a.Catalog.Enabled(name) {
			slog.Info("backend_disabled", "backend", name)
			return false
		}
		if role == RoleWorker && isProcessLocal(name) {
			return false
		}
		return true
	}

	var out []ports.SearchBackend

	if enabled(local.Name) {
		b, err := local.New(a.Catalog.Apply(local.DefaultDescriptor(), defaultTimeout))
		if err != nil {
			return nil, fmt.Errorf("init local backend: %w", err)
		}
		a.closers = append(a.closers, func() { _ = b.Close() })
		out = append(out, b)
	}

	if enabled(elasticsearch.Name) {
		out = append(out, elasticsearch.New(elasticsearch.Config{
			URL:      cfg.ElasticsearchURL,
			Index:    cfg.ElasticsearchIndex,
			Username: cfg.ElasticsearchUsername,
			Password: cfg.ElasticsearchPassword,
		}, a.Catalog.Apply(elasticsearch.DefaultDescriptor(), defaultTimeout), executor))
	}

	if enabled(qdrant.Name) {
		var embedder ports.Embedder
		if llmClient.Configured() {
			embedder = ollama.NewEmbedder(llmClient)
		}
		b, err := qdrant.New(
			a.Catalog.Apply(qdrant.DefaultDescriptor(), defaultTimeout),
			qdrant.NewClient(cfg.QdrantURL, cfg.QdrantCollection, executor),
			chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
			embedder,
			0,
		)
		if err != nil {
			return nil, fmt.Errorf("init qdrant backend: %w", err)
		}
		out = append(out, b)
	}

	if enabled(assistant.Name) {
		var generator ports.TextGenerator
		if llmClient.Configured() {
			generator = ollama.NewGenerator(llmClient)
		}
		out = append(out, assistant.New(
			a.Catalog.Apply(assistant.DefaultDescriptor(), defaultTimeout),
			generator,
			cfg.AssistantEnabled && generator != nil,
			0,
		))
	}

	names := make([]string, 0, len(out))
	for _, b := range out {
		state := "unconfigured"
		if b.IsAvailable() {
			state = "available"
		}
		names = append(names, b.Descriptor().Name+"="+state)
	}
	slog.Info("search_backends_ready", "role", string(role), "backends", strings.Join(names, ","))
	if role == RoleWorker && len(out) == 0 {
		slog.Warn("worker_without_shared_backends")
	}
	return out, nil
}
