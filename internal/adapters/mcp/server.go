package mcpadapter

import (
	"errors"

	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/knowledge-search/internal/core/ports"
)

const serverName = "knowledge-search"

// Services are the use cases exposed as MCP tools. Indexer may be nil, in
// which case delete_document is not registered.
type Services struct {
	Search  ports.SearchService
	Stats   ports.StatsReader
	Docs    ports.DocumentReader
	Indexer ports.DocumentIndexer
}

type Server struct {
	svc    Services
	server *server.MCPServer
}

func NewServer(svc Services, version string) (*Server, error) {
	if svc.Search == nil || svc.Stats == nil || svc.Docs == nil {
		return nil, errors.New("mcp server requires search, stats and document services")
	}
	s := &Server{
		svc:    svc,
		server: server.NewMCPServer(serverName, version, server.WithToolCapabilities(false)),
	}
	s.registerTools()
	return s, nil
}

// ServeStdio blocks until stdin is closed.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.server)
}
