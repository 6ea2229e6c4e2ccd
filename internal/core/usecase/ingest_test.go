package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

type ingestStorageFake struct {
	mu      sync.Mutex
	objects map[string]string
	removed []string
	err     error
}

func newIngestStorageFake() *ingestStorageFake {
	return &ingestStorageFake{objects: map[string]string{}}
}

func (f *ingestStorageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = string(raw)
	return nil
}

func (f *ingestStorageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *ingestStorageFake) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.removed = append(f.removed, key)
	return nil
}

type ingestQueueFake struct {
	events []domain.UploadEvent
	err    error
}

func (f *ingestQueueFake) PublishUploaded(_ context.Context, event domain.UploadEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *ingestQueueFake) SubscribeUploaded(context.Context, func(context.Context, domain.UploadEvent) error) error {
	return errors.New("not implemented")
}

func TestIngestUploadSuccess(t *testing.T) {
	storage := newIngestStorageFake()
	queue := &ingestQueueFake{}
	uc := NewIngestDocumentUseCase(storage, queue)

	event, err := uc.Upload(context.Background(), "report 1.txt", "text/plain", []byte("hello"), domain.DocumentMetadata{Category: "hr"})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if !strings.HasSuffix(event.StorageKey, "_report_1.txt") {
		t.Fatalf("expected sanitized key suffix, got %s", event.StorageKey)
	}
	if storage.objects[event.StorageKey] != "hello" {
		t.Fatalf("expected saved body hello, got %q", storage.objects[event.StorageKey])
	}
	if len(queue.events) != 1 || queue.events[0].Metadata.Category != "hr" {
		t.Fatalf("expected published event with metadata, got %+v", queue.events)
	}
}

func TestIngestUploadQueueErrorRemovesObject(t *testing.T) {
	storage := newIngestStorageFake()
	queue := &ingestQueueFake{err: errors.New("queue down")}
	uc := NewIngestDocumentUseCase(storage, queue)

	_, err := uc.Upload(context.Background(), "report.txt", "text/plain", []byte("hello"), domain.DocumentMetadata{})
	if err == nil || !strings.Contains(err.Error(), "publish upload event") {
		t.Fatalf("expected publish error, got %v", err)
	}
	if len(storage.objects) != 0 || len(storage.removed) != 1 {
		t.Fatalf("stored object must be removed after publish failure")
	}
}

func TestIngestUploadRejectsEmptyFile(t *testing.T) {
	uc := NewIngestDocumentUseCase(newIngestStorageFake(), &ingestQueueFake{})
	_, err := uc.Upload(context.Background(), "report.txt", "text/plain", nil, domain.DocumentMetadata{})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestReadUploadLimit(t *testing.T) {
	if _, err := ReadUpload(strings.NewReader("abcdef"), 5); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected size error, got %v", err)
	}
	data, err := ReadUpload(strings.NewReader("abcde"), 5)
	if err != nil || string(data) != "abcde" {
		t.Fatalf("unexpected read: %q %v", data, err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"../etc/passwd":    "passwd",
		"отчёт 2024.pdf":   "______2024.pdf",
		"":                 "document.bin",
		"Budget-Q1_v2.xls": "Budget-Q1_v2.xls",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
