package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

func TestEventRoundTripKeepsMetadata(t *testing.T) {
	event := domain.UploadEvent{
		StorageKey:  "k_report.pdf",
		Filename:    "report.pdf",
		MimeType:    "application/pdf",
		Metadata:    domain.DocumentMetadata{Title: "Report", Tags: []string{"hr"}},
		SubmittedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Attempt:     2,
	}
	payload, err := encodeEvent(event)
	if err != nil {
		t.Fatalf("encodeEvent() error = %v", err)
	}
	got, err := decodeEvent(payload)
	if err != nil {
		t.Fatalf("decodeEvent() error = %v", err)
	}
	if got.StorageKey != event.StorageKey || got.Metadata.Tags[0] != "hr" || got.Attempt != 2 || !got.SubmittedAt.Equal(event.SubmittedAt) {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestEncodeRequiresStorageKey(t *testing.T) {
	if _, err := encodeEvent(domain.UploadEvent{}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := decodeEvent([]byte(`{"filename":"a.txt"}`)); err == nil {
		t.Fatalf("expected error for event without key")
	}
	if _, err := decodeEvent([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}

func TestClassifyNATSError(t *testing.T) {
	if c := classifyNATSError(fmt.Errorf("publish: %w", nats.ErrConnectionClosed)); !c.Retryable || !c.RecordFailure {
		t.Fatalf("closed connection must be retryable, got %+v", c)
	}
	if c := classifyNATSError(context.Canceled); c.Retryable || c.RecordFailure {
		t.Fatalf("cancellation must be neither retried nor recorded, got %+v", c)
	}
	if c := classifyNATSError(errors.New("bad subject")); c.Retryable {
		t.Fatalf("unknown errors must not be retried, got %+v", c)
	}
	if err := wrapTemporaryIfNeeded(nats.ErrTimeout); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary wrap, got %v", err)
	}
}

func TestShouldRedeliver(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{domain.WrapError(domain.ErrBackendsUnavailable, "index", errors.New("down")), true},
		{domain.WrapError(domain.ErrTemporary, "ollama", errors.New("503")), true},
		{&domain.ExtractionFailure{Filename: "a.bin"}, false},
		{errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := shouldRedeliver(tc.err); got != tc.want {
			t.Fatalf("shouldRedeliver(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestNewQueueDefaults(t *testing.T) {
	q := newQueue(nil, DefaultSubject, Options{})
	if q.maxRedeliveries != 3 || q.redeliveryDelay != 5*time.Second {
		t.Fatalf("unexpected defaults %+v", q)
	}
}

func TestPublishIndexedRequiresDocumentID(t *testing.T) {
	q := newQueue(nil, "", Options{})
	if err := q.PublishIndexed(context.Background(), domain.IndexedEvent{}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if q.subject != DefaultSubject || q.indexedSubject != DefaultIndexedSubject {
		t.Fatalf("unexpected subjects %q %q", q.subject, q.indexedSubject)
	}
}
