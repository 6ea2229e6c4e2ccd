package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kirillkom/knowledge-search/internal/config"
	"github.com/kirillkom/knowledge-search/internal/core/ports"
	"github.com/kirillkom/knowledge-search/internal/core/usecase"
	"github.com/kirillkom/knowledge-search/internal/infrastructure/llm/ollama"
	locallock "github.com/kirillkom/knowledge-search/internal/infrastructure/lock/local"
	redislock "github.com/kirillkom/knowledge-search/internal/infrastructure/lock/redis"
	"github.com/kirillkom/knowledge-search/internal/infrastructure/queue/nats"
	"github.com/kirillkom/knowledge-search/internal/infrastructure/repository/memory"
	"github.com/kirillkom/knowledge-search/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/knowledge-search/internal/infrastructure/resilience"
	"github.com/kirillkom/knowledge-search/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/knowledge-search/internal/observability/metrics"
)

// Role selects which process is being assembled. Workers only index into
// backends shared between processes.
type Role string

const (
	RoleAPI    Role = "api"
	RoleWorker Role = "worker"
	RoleMCP    Role = "mcp"
)

type App struct {
	Config  config.Config
	Catalog config.Catalog

	Registry ports.DocumentRegistry
	Storage  ports.ObjectStorage
	Backends []ports.SearchBackend

	// Queue is nil when NATS is not configured; the worker requires it.
	Queue *nats.Queue

	Indexer  *usecase.IndexerUseCase
	Search   *usecase.SearchUseCase
	Sessions *usecase.SessionRegistry
	Stats    *usecase.StatsUseCase
	Ingest   *usecase.IngestDocumentUseCase
	Process  *usecase.ProcessUploadUseCase
	// Replica keeps process-local backends in step with the registry; nil
	// for the worker.
	Replica *usecase.ReplicaSyncUseCase

	closers []func()
}

// New assembles the application. registerer may be nil; when set, search and
// circuit breaker metrics are registered on it.
func New(ctx context.Context, cfg config.Config, role Role, registerer prometheus.Registerer) (*App, error) {
	app := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	if cfg.NATSURL != "" && usesMemoryRegistry(cfg) {
		return nil, fmt.Errorf("NATS_URL requires a registry shared with the worker; set REGISTRY_DRIVER=postgres")
	}

	catalog, err := config.LoadCatalog(cfg.BackendsConfigPath)
	if err != nil {
		return nil, err
	}
	app.Catalog = catalog

	var searchMetrics *metrics.SearchMetrics
	if registerer != nil {
		searchMetrics = metrics.NewSearchMetrics(registerer)
	}

	executorCfg := resilience.DefaultConfig()
	if role != RoleWorker {
		executorCfg = resilience.InteractiveConfig()
	}
	executor := resilience.NewExecutor(executorCfg)
	if searchMetrics != nil {
		executor.WithStateListener(searchMetrics.ObserveBreaker)
	}

	registry, err := app.openRegistry(ctx)
	if err != nil {
		return nil, err
	}
	app.Registry = registry

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}
	app.Storage = storage

	locker, err := app.openLocker(ctx)
	if err != nil {
		return nil, err
	}

	llmClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	var summarizer ports.Summarizer
	if llmClient.Configured() {
		summarizer = ollama.NewSummarizer(llmClient)
	}

	backends, err := app.buildBackends(role, llmClient, executor)
	if err != nil {
		return nil, err
	}
	app.Backends = backends

	extraction := buildExtraction(cfg, llmClient)
	app.Indexer = usecase.NewIndexerUseCase(extraction, summarizer, registry, locker, backends...)
	app.Stats = usecase.NewStatsUseCase(registry, backends...)

	var observer ports.SearchObserver
	if searchMetrics != nil {
		observer = searchMetrics
	}
	app.Search = usecase.NewSearchUseCase(usecase.SearchConfig{
		DefaultLimit:    cfg.SearchDefaultLimit,
		DefaultTimeout:  time.Duration(cfg.SearchDefaultTimeoutMS) * time.Millisecond,
		IncludeSemantic: cfg.SearchIncludeSemantic,
	}, registry, observer, backends...)
	sessions, err := usecase.NewSessionRegistry(app.Search, cfg.SearchSessionCapacity)
	if err != nil {
		return nil, err
	}
	app.Sessions = sessions

	if err := app.openQueue(role, executor); err != nil {
		return nil, err
	}
	app.Process = usecase.NewProcessUploadUseCase(storage, app.Indexer)
	if app.Queue != nil {
		switch role {
		case RoleAPI:
			app.Ingest = usecase.NewIngestDocumentUseCase(storage, app.Queue)
		case RoleWorker:
			app.Process.WithIndexedFeed(app.Queue)
		}
	}

	if role != RoleWorker {
		app.Replica = usecase.NewReplicaSyncUseCase(registry, locker, processLocal(backends)...)
		if err := app.followIndexed(); err != nil {
			return nil, err
		}
		if err := app.rehydrate(ctx); err != nil {
			return nil, err
		}
	}

	ok = true
	return app, nil
}

func usesMemoryRegistry(cfg config.Config) bool {
	return cfg.RegistryDriver == "" || cfg.RegistryDriver == "memory"
}

func (a *App) openRegistry(ctx context.Context) (ports.DocumentRegistry, error) {
	switch a.Config.RegistryDriver {
	case "", "memory":
		return memory.NewRegistry(), nil
	case "postgres":
		db, err := postgres.OpenDB(a.Config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		repo := postgres.NewDocumentRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown registry driver %q", a.Config.RegistryDriver)
	}
}

func (a *App) openLocker(ctx context.Context) (ports.DocumentLocker, error) {
	if a.Config.RedisURL == "" {
		return locallock.NewLocker(), nil
	}
	opts, err := goredis.ParseURL(a.Config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	a.closers = append(a.closers, func() { _ = client.Close() })

	locker := redislock.NewLocker(client, 0)
	if err := locker.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return locker, nil
}

func (a *App) openQueue(role Role, executor *resilience.Executor) error {
	if a.Config.NATSURL == "" {
		if role == RoleWorker {
			return fmt.Errorf("worker requires NATS_URL")
		}
		return nil
	}
	queue, err := nats.NewWithOptions(a.Config.NATSURL, a.Config.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		IndexedSubject:     a.Config.NATSIndexedSubject,
	})
	if err != nil {
		return fmt.Errorf("init message queue: %w", err)
	}
	a.Queue = queue
	a.closers = append(a.closers, queue.Close)
	return nil
}

// followIndexed subscribes to documents the worker indexes. It runs before
// rehydration so no document falls between the two.
func (a *App) followIndexed() error {
	if a.Queue == nil {
		return nil
	}
	stop, err := a.Queue.SubscribeIndexed(a.Replica.HandleIndexed)
	if err != nil {
		return fmt.Errorf("follow indexed documents: %w", err)
	}
	a.closers = append(a.closers, stop)
	return nil
}

// rehydrate replays registered documents into process-local backends so a
// restarted process answers for the corpus it already knows.
func (a *App) rehydrate(ctx context.Context) error {
	n, err := a.Replica.Rehydrate(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("backends_rehydrated", "documents", n)
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
