package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
	"github.com/kirillkom/knowledge-search/internal/core/ports"
)

// IngestDocumentUseCase accepts uploads for asynchronous indexing: the raw
// file goes to object storage and the worker is notified through the queue.
type IngestDocumentUseCase struct {
	storage ports.ObjectStorage
	queue   ports.UploadQueue
	now     func() time.Time
}

func NewIngestDocumentUseCase(storage ports.ObjectStorage, queue ports.UploadQueue) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		storage: storage,
		queue:   queue,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	filename, mimeType string,
	data []byte,
	meta domain.DocumentMetadata,
) (*domain.UploadEvent, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("filename is required"))
	}
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("empty file"))
	}

	storageKey := fmt.Sprintf("%s_%s", uuid.NewString(), sanitizeFilename(filename))
	if err := uc.storage.Save(ctx, storageKey, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	event := domain.UploadEvent{
		StorageKey:  storageKey,
		Filename:    filename,
		MimeType:    mimeType,
		Metadata:    meta,
		SubmittedAt: uc.now(),
	}
	if err := uc.queue.PublishUploaded(ctx, event); err != nil {
		if rmErr := uc.storage.Remove(context.WithoutCancel(ctx), storageKey); rmErr != nil {
			return nil, fmt.Errorf("publish upload event: %w; remove stored upload: %v", err, rmErr)
		}
		return nil, fmt.Errorf("publish upload event: %w", err)
	}
	return &event, nil
}

// ReadUpload reads the whole body, rejecting anything above maxBytes.
func ReadUpload(body io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read upload", fmt.Errorf("file exceeds %d bytes", maxBytes))
	}
	return data, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
