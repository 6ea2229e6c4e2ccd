package ports

import (
	"context"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

// DocumentIndexer is the inbound contract for indexing and removing documents.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, file domain.SourceFile, meta domain.DocumentMetadata) (*domain.IndexOutcome, error)
	DeleteDocument(ctx context.Context, id string) (bool, error)
}

// SearchService is the inbound contract for fan-out search.
type SearchService interface {
	Search(ctx context.Context, query domain.QuerySpec) (*domain.SearchResponse, error)
}

// SessionSearcher runs searches with last-query-wins semantics per session key.
type SessionSearcher interface {
	SearchInSession(ctx context.Context, sessionKey string, query domain.QuerySpec) (*domain.SearchResponse, error)
}

// StatsReader exposes corpus-level counts.
type StatsReader interface {
	Stats(ctx context.Context) (*domain.Stats, error)
}

// DocumentReader is the inbound read model for document metadata.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}
