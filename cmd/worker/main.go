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

	"github.com/kirillkom/knowledge-search/internal/bootstrap"
	"github.com/kirillkom/knowledge-search/internal/config"
	"github.com/kirillkom/knowledge-search/internal/core/domain"
	"github.com/kirillkom/knowledge-search/internal/observability/logging"
	"github.com/kirillkom/knowledge-search/internal/observability/metrics"
)

const (
	serviceName    = "worker"
	processTimeout = 5 * time.Minute
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.RoleWorker, workerMetrics.Registry())
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "backends", len(app.Backends))
	err = app.Queue.SubscribeUploaded(ctx, func(handlerCtx context.Context, event domain.UploadEvent) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, processTimeout)
		defer cancel()

		if !event.SubmittedAt.IsZero() && event.Attempt == 0 {
			workerMetrics.ObserveQueueLag(serviceName, time.Since(event.SubmittedAt))
		}
		start := time.Now()
		workerMetrics.StartUpload()
		outcome, err := app.Process.Process(processCtx, event)
		workerMetrics.FinishUpload(serviceName, time.Since(start), outcome.Partial(), err)
		if err != nil {
			return err
		}
		slog.Info("upload_indexed",
			"storage_key", event.StorageKey,
			"document_id", outcome.Document.ID,
			"succeeded", outcome.Succeeded,
			"failed", len(outcome.Failed),
		)
		return nil
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
