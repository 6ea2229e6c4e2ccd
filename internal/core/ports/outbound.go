package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

// ExtractionStrategy turns a source file into plain text or a typed failure.
type ExtractionStrategy interface {
	Name() string
	Extract(ctx context.Context, file domain.SourceFile) (string, error)
}

// Summarizer produces a short summary for extracted text.
type Summarizer interface {
	Summarize(ctx context.Context, title, text string) (string, error)
}

// SearchBackend is the uniform contract over one search/indexing service.
// Backends report scores on their native scale; normalisation happens in fusion.
type SearchBackend interface {
	Descriptor() domain.BackendDescriptor
	// IsAvailable is a configuration check, not a network round-trip.
	IsAvailable() bool
	Index(ctx context.Context, doc *domain.Document) error
	Search(ctx context.Context, query domain.QuerySpec) ([]domain.BackendResult, error)
	Delete(ctx context.Context, documentID string) error
}

// DocumentRegistry persists extracted documents; writes are atomic per document id.
type DocumentRegistry interface {
	Save(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetMany(ctx context.Context, ids []string) (map[string]*domain.Document, error)
	List(ctx context.Context) ([]*domain.Document, error)
	Delete(ctx context.Context, id string) error
}

// DocumentLocker serialises writes that target the same document id.
type DocumentLocker interface {
	Lock(ctx context.Context, documentID string) (unlock func(), err error)
}

// ObjectStorage stores raw uploads for asynchronous indexing.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// UploadQueue carries asynchronously uploaded files from the API to the worker.
type UploadQueue interface {
	PublishUploaded(ctx context.Context, event domain.UploadEvent) error
	SubscribeUploaded(ctx context.Context, handler func(context.Context, domain.UploadEvent) error) error
}

// IndexedFeed tells every API and MCP process about documents indexed by the
// worker, so in-memory backends can pick them up.
type IndexedFeed interface {
	PublishIndexed(ctx context.Context, event domain.IndexedEvent) error
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits text into semantically usable chunks.
type Chunker interface {
	Split(text string) []string
}

// TextGenerator sends a prompt to an LLM and returns raw completion text.
type TextGenerator interface {
	GenerateFromPrompt(ctx context.Context, prompt string) (string, error)
}

// SearchObserver receives per-search telemetry.
type SearchObserver interface {
	ObserveBackend(backend string, latency time.Duration, results int, degraded bool)
	ObserveSearch(mode domain.QueryMode, latency time.Duration, results int, advisory bool)
}

// TextExtractor runs the extraction strategy chain for a source file.
type TextExtractor interface {
	Extract(ctx context.Context, file domain.SourceFile) (domain.ExtractionResult, error)
}
