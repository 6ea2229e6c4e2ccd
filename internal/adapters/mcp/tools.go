package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

const defaultToolLimit = 10

type searchHit struct {
	DocumentID string   `json:"document_id"`
	Title      string   `json:"title"`
	Score      float64  `json:"score"`
	Excerpt    string   `json:"excerpt,omitempty"`
	Backends   []string `json:"backends"`
	FileType   string   `json:"file_type,omitempty"`
}

type searchOutput struct {
	Results  []searchHit `json:"results"`
	Count    int         `json:"count"`
	Degraded []string    `json:"degraded_backends,omitempty"`
	Advisory string      `json:"advisory,omitempty"`
}

func (s *Server) registerTools() {
	s.server.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Search the indexed document corpus across all configured backends"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text or a natural-language question")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		mcp.WithString("file_types", mcp.Description("Comma-separated file extensions to keep, e.g. pdf,docx")),
	), s.handleSearch)

	s.server.AddTool(mcp.NewTool("get_document",
		mcp.WithDescription("Fetch metadata of one indexed document"),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Document id")),
	), s.handleGetDocument)

	s.server.AddTool(mcp.NewTool("document_stats",
		mcp.WithDescription("Corpus statistics: totals per file type, category and backend"),
	), s.handleStats)

	if s.svc.Indexer != nil {
		s.server.AddTool(mcp.NewTool("delete_document",
			mcp.WithDescription("Remove a document from the registry and every backend"),
			mcp.WithString("document_id", mcp.Required(), mcp.Description("Document id")),
		), s.handleDelete)
	}
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	spec := domain.QuerySpec{
		Text:  query,
		Limit: request.GetInt("limit", defaultToolLimit),
	}
	for _, ft := range strings.Split(request.GetString("file_types", ""), ",") {
		if ft = strings.TrimSpace(ft); ft != "" {
			spec.Filters.FileTypes = append(spec.Filters.FileTypes, ft)
		}
	}

	resp, err := s.svc.Search.Search(ctx, spec)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	out := searchOutput{
		Results:  make([]searchHit, 0, len(resp.Results)),
		Count:    len(resp.Results),
		Degraded: resp.DegradedBackends,
		Advisory: resp.Advisory,
	}
	for _, r := range resp.Results {
		out.Results = append(out.Results, searchHit{
			DocumentID: r.DocumentID,
			Title:      r.Title,
			Score:      r.Score,
			Excerpt:    r.Excerpt,
			Backends:   r.Backends,
			FileType:   r.Metadata.FileType,
		})
	}
	return jsonResult(out)
}

func (s *Server) handleGetDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError("document_id is required"), nil
	}
	doc, err := s.svc.Docs.GetByID(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(doc)
}

func (s *Server) handleStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.svc.Stats.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stats failed: %v", err)), nil
	}
	return jsonResult(stats)
}

func (s *Server) handleDelete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError("document_id is required"), nil
	}
	if _, err := s.svc.Indexer.DeleteDocument(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("document %s deleted", id)), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
