package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
	"github.com/kirillkom/knowledge-search/internal/infrastructure/resilience"
)

const (
	DefaultSubject        = "documents.uploaded"
	DefaultIndexedSubject = "documents.indexed"
	workerGroup           = "indexers"

	indexedHandlerTimeout = time.Minute
)

// Queue carries upload events from the API to the indexing workers.
type Queue struct {
	conn            *nats.Conn
	subject         string
	indexedSubject  string
	executor        *resilience.Executor
	maxRedeliveries int
	redeliveryDelay time.Duration
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	// MaxRedeliveries bounds how often a temporarily failed upload is
	// published again; zero means 3.
	MaxRedeliveries int
	RedeliveryDelay time.Duration
	IndexedSubject  string
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	conn, err := nats.Connect(
		url,
		nats.Name("knowledge-search"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newQueue(conn, subject, options), nil
}

func newQueue(conn *nats.Conn, subject string, options Options) *Queue {
	maxRedeliveries := options.MaxRedeliveries
	if maxRedeliveries <= 0 {
		maxRedeliveries = 3
	}
	redeliveryDelay := options.RedeliveryDelay
	if redeliveryDelay <= 0 {
		redeliveryDelay = 5 * time.Second
	}
	if subject == "" {
		subject = DefaultSubject
	}
	indexedSubject := options.IndexedSubject
	if indexedSubject == "" {
		indexedSubject = DefaultIndexedSubject
	}
	return &Queue{
		conn:            conn,
		subject:         subject,
		indexedSubject:  indexedSubject,
		executor:        options.ResilienceExecutor,
		maxRedeliveries: maxRedeliveries,
		redeliveryDelay: redeliveryDelay,
	}
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishUploaded(ctx context.Context, event domain.UploadEvent) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}
	return q.publish(ctx, q.subject, payload)
}

func (q *Queue) PublishIndexed(ctx context.Context, event domain.IndexedEvent) error {
	if event.DocumentID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "encode indexed event", errors.New("document id is required"))
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal indexed event: %w", err)
	}
	return q.publish(ctx, q.indexedSubject, payload)
}

func (q *Queue) publish(ctx context.Context, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(err)
}

// SubscribeIndexed delivers every indexed event to this process; there is no
// queue group, since each API and MCP process keeps its own in-memory
// backends. The returned stop function drains the subscription.
func (q *Queue) SubscribeIndexed(handler func(context.Context, domain.IndexedEvent) error) (func(), error) {
	sub, err := q.conn.Subscribe(q.indexedSubject, func(msg *nats.Msg) {
		var event domain.IndexedEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			slog.Error("indexed_event_malformed", "error", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), indexedHandlerTimeout)
		defer cancel()
		if err := handler(ctx, event); err != nil {
			slog.Error("indexed_event_failed", "document_id", event.DocumentID, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe indexed: %w", err)
	}
	if err := q.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("nats flush: %w", err)
	}
	return func() {
		if err := sub.Drain(); err != nil {
			slog.Warn("nats_drain_indexed_failed", "error", err)
		}
	}, nil
}

// SubscribeUploaded blocks until ctx is done, then drains the subscription.
func (q *Queue) SubscribeUploaded(ctx context.Context, handler func(context.Context, domain.UploadEvent) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		event, err := decodeEvent(msg.Data)
		if err != nil {
			slog.Error("upload_event_malformed", "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		err = handler(handlerCtx, event)
		if err == nil {
			return
		}
		slog.Error("upload_event_failed",
			"storage_key", event.StorageKey,
			"attempt", event.Attempt,
			"error", err,
		)
		if shouldRedeliver(err) && event.Attempt < q.maxRedeliveries {
			q.redeliver(ctx, event)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (q *Queue) redeliver(ctx context.Context, event domain.UploadEvent) {
	event.Attempt++
	delay := q.redeliveryDelay * time.Duration(event.Attempt)
	time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			return
		}
		if err := q.PublishUploaded(context.WithoutCancel(ctx), event); err != nil {
			slog.Error("upload_event_redelivery_failed", "storage_key", event.StorageKey, "error", err)
			return
		}
		slog.Info("upload_event_redelivered", "storage_key", event.StorageKey, "attempt", event.Attempt)
	})
}

func encodeEvent(event domain.UploadEvent) ([]byte, error) {
	if event.StorageKey == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode upload event", errors.New("storage key is required"))
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal upload event: %w", err)
	}
	return payload, nil
}

func decodeEvent(data []byte) (domain.UploadEvent, error) {
	var event domain.UploadEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.UploadEvent{}, fmt.Errorf("unmarshal upload event: %w", err)
	}
	if event.StorageKey == "" {
		return domain.UploadEvent{}, errors.New("upload event without storage key")
	}
	return event, nil
}
