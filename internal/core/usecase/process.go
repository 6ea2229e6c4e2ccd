package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
	"github.com/kirillkom/knowledge-search/internal/core/ports"
)

// ProcessUploadUseCase is the worker side of asynchronous ingestion.
type ProcessUploadUseCase struct {
	storage ports.ObjectStorage
	indexer ports.DocumentIndexer
	feed    ports.IndexedFeed
}

func NewProcessUploadUseCase(storage ports.ObjectStorage, indexer ports.DocumentIndexer) *ProcessUploadUseCase {
	return &ProcessUploadUseCase{storage: storage, indexer: indexer}
}

// WithIndexedFeed announces every indexed upload on feed.
func (uc *ProcessUploadUseCase) WithIndexedFeed(feed ports.IndexedFeed) *ProcessUploadUseCase {
	uc.feed = feed
	return uc
}

// Process indexes one stored upload. The stored object is removed once the
// outcome is final; temporary failures keep it so the event can be redelivered.
func (uc *ProcessUploadUseCase) Process(ctx context.Context, event domain.UploadEvent) (*domain.IndexOutcome, error) {
	data, err := uc.load(ctx, event.StorageKey)
	if err != nil {
		return nil, err
	}

	file := domain.NewSourceFile(event.Filename, event.MimeType, data)
	outcome, err := uc.indexer.IndexDocument(ctx, file, event.Metadata)
	if err != nil {
		if !retryable(err) {
			uc.cleanup(ctx, event.StorageKey)
		}
		return outcome, fmt.Errorf("index upload %s: %w", event.StorageKey, err)
	}

	uc.cleanup(ctx, event.StorageKey)
	uc.announce(ctx, outcome)
	return outcome, nil
}

// announce is best-effort: the document is already in the registry, and
// processes that miss the event pick it up when they rehydrate.
func (uc *ProcessUploadUseCase) announce(ctx context.Context, outcome *domain.IndexOutcome) {
	if uc.feed == nil || outcome == nil || outcome.Document == nil {
		return
	}
	event := domain.IndexedEvent{
		DocumentID: outcome.Document.ID,
		Backends:   append([]string(nil), outcome.Succeeded...),
		IndexedAt:  time.Now().UTC(),
	}
	if err := uc.feed.PublishIndexed(context.WithoutCancel(ctx), event); err != nil {
		slog.Warn("indexed_event_publish_failed", "document_id", event.DocumentID, "error", err)
	}
}

func (uc *ProcessUploadUseCase) load(ctx context.Context, key string) ([]byte, error) {
	rc, err := uc.storage.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open stored upload: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read stored upload: %w", err)
	}
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read stored upload", errors.New("empty file"))
	}
	return data, nil
}

func (uc *ProcessUploadUseCase) cleanup(ctx context.Context, key string) {
	if err := uc.storage.Remove(context.WithoutCancel(ctx), key); err != nil {
		slog.Warn("stored_upload_cleanup_failed", "storage_key", key, "error", err)
	}
}

func retryable(err error) bool {
	return errors.Is(err, domain.ErrTemporary) ||
		errors.Is(err, domain.ErrBackendsUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
