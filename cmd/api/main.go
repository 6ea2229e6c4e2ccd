package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/knowledge-search/internal/adapters/http"
	"github.com/kirillkom/knowledge-search/internal/bootstrap"
	"github.com/kirillkom/knowledge-search/internal/config"
	"github.com/kirillkom/knowledge-search/internal/observability/logging"
	"github.com/kirillkom/knowledge-search/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, bootstrap.RoleAPI, httpMetrics.Registry())
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	services := httpadapter.Services{
		Indexer:  app.Indexer,
		Search:   app.Search,
		Sessions: app.Sessions,
		Stats:    app.Stats,
		Docs:     app.Indexer,
	}
	if app.Ingest != nil {
		services.Uploader = app.Ingest
	}

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           httpadapter.NewRouter(cfg, services, httpMetrics).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "addr", server.Addr, "backends", len(app.Backends))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}
