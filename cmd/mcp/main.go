package main

import (
	"context"
	"log/slog"
	"os"

	mcpadapter "github.com/kirillkom/knowledge-search/internal/adapters/mcp"
	"github.com/kirillkom/knowledge-search/internal/bootstrap"
	"github.com/kirillkom/knowledge-search/internal/config"
	"github.com/kirillkom/knowledge-search/internal/observability/logging"
)

var version = "dev"

func main() {
	cfg := config.Load()
	// stdout carries the MCP protocol, so logs go to stderr.
	slog.SetDefault(logging.New(os.Stderr, "mcp", cfg.LogLevel))

	app, err := bootstrap.New(context.Background(), cfg, bootstrap.RoleMCP, nil)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	server, err := mcpadapter.NewServer(mcpadapter.Services{
		Search:  app.Search,
		Stats:   app.Stats,
		Docs:    app.Indexer,
		Indexer: app.Indexer,
	}, version)
	if err != nil {
		slog.Error("mcp_server_init_failed", "error", err)
		os.Exit(1)
	}
	if err := server.ServeStdio(); err != nil {
		slog.Error("mcp_server_failed", "error", err)
	}
}
