package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
	"github.com/kirillkom/knowledge-search/internal/core/ports"
)

type IndexerUseCase struct {
	extractor  ports.TextExtractor
	summarizer ports.Summarizer
	registry   ports.DocumentRegistry
	backends   []ports.SearchBackend
	locker     ports.DocumentLocker

	now   func() time.Time
	newID func() string
}

// NewIndexerUseCase wires the indexer. summarizer may be nil, in which case
// every document gets an excerpt summary.
func NewIndexerUseCase(
	extractor ports.TextExtractor,
	summarizer ports.Summarizer,
	registry ports.DocumentRegistry,
	locker ports.DocumentLocker,
	backends ...ports.SearchBackend,
) *IndexerUseCase {
	return &IndexerUseCase{
		extractor:  extractor,
		summarizer: summarizer,
		registry:   registry,
		backends:   backends,
		locker:     locker,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

func (uc *IndexerUseCase) IndexDocument(
	ctx context.Context,
	file domain.SourceFile,
	meta domain.DocumentMetadata,
) (*domain.IndexOutcome, error) {
	return uc.index(ctx, file, meta, func(domain.IndexProgress) {})
}

// IndexAsync starts indexing in the background. Cancelling the task cancels
// in-flight extraction and backend calls.
func (uc *IndexerUseCase) IndexAsync(
	ctx context.Context,
	file domain.SourceFile,
	meta domain.DocumentMetadata,
) *IndexTask {
	taskCtx, cancel := context.WithCancel(ctx)
	task := &IndexTask{
		progress: make(chan domain.IndexProgress, progressBuffer),
		done:     make(chan struct{}),
		cancel:   cancel,
	}

	go func() {
		defer close(task.done)
		defer close(task.progress)
		defer cancel()
		task.outcome, task.err = uc.index(taskCtx, file, meta, task.report)
	}()
	return task
}

func (uc *IndexerUseCase) index(
	ctx context.Context,
	file domain.SourceFile,
	meta domain.DocumentMetadata,
	report func(domain.IndexProgress),
) (*domain.IndexOutcome, error) {
	if len(file.Data) == 0 {
		report(domain.IndexProgress{Stage: domain.StageFailed, Detail: "empty file"})
		return nil, domain.WrapError(domain.ErrInvalidInput, "index document", errors.New("empty file"))
	}
	if file.Extension == "" {
		file.Extension = domain.NormalizeExtension(file.Filename)
	}

	report(domain.IndexProgress{Stage: domain.StageExtracting})
	extracted, err := uc.extractor.Extract(ctx, file)
	if err != nil {
		report(domain.IndexProgress{Stage: domain.StageFailed, Detail: err.Error()})
		return nil, fmt.Errorf("extract document: %w", err)
	}
	report(domain.IndexProgress{Stage: domain.StageExtracted, Detail: extracted.Strategy})

	doc := uc.buildDocument(file, meta, extracted)

	report(domain.IndexProgress{Stage: domain.StageSummarizing})
	doc.Summary = uc.summarize(ctx, doc)

	unlock, err := uc.locker.Lock(ctx, doc.ID)
	if err != nil {
		report(domain.IndexProgress{Stage: domain.StageFailed, Detail: err.Error()})
		return nil, fmt.Errorf("lock document %s: %w", doc.ID, err)
	}
	defer unlock()

	outcome := &domain.IndexOutcome{
		Document:  doc,
		Succeeded: []string{},
		Attempts:  extracted.Attempts,
	}
	for _, backend := range uc.backends {
		name := backend.Descriptor().Name
		if !backend.IsAvailable() {
			outcome.Skipped = append(outcome.Skipped, name)
			continue
		}
		if err := ctx.Err(); err != nil {
			uc.compensate(ctx, doc.ID, outcome.Succeeded)
			report(domain.IndexProgress{Stage: domain.StageFailed, Detail: err.Error()})
			return nil, err
		}

		report(domain.IndexProgress{Stage: domain.StageIndexing, Backend: name})
		if err := backend.Index(ctx, doc.Clone()); err != nil {
			slog.Warn("index_backend_failed", "document_id", doc.ID, "backend", name, "error", err)
			outcome.Failed = append(outcome.Failed, domain.BackendFailure{Backend: name, Error: err.Error()})
			continue
		}
		outcome.Succeeded = append(outcome.Succeeded, name)
	}

	if !outcome.Indexed() {
		report(domain.IndexProgress{Stage: domain.StageFailed, Detail: "no backend accepted the document"})
		return outcome, domain.WrapError(domain.ErrBackendsUnavailable, "index document", fmt.Errorf("%d backends failed, %d skipped", len(outcome.Failed), len(outcome.Skipped)))
	}

	doc.IndexedBackends = append([]string(nil), outcome.Succeeded...)
	if err := uc.registry.Save(ctx, doc); err != nil {
		uc.compensate(ctx, doc.ID, outcome.Succeeded)
		report(domain.IndexProgress{Stage: domain.StageFailed, Detail: err.Error()})
		return nil, fmt.Errorf("save document to registry: %w", err)
	}

	slog.Info("document_indexed",
		"document_id", doc.ID,
		"filename", doc.Filename,
		"extractor", doc.Extractor,
		"succeeded", strings.Join(outcome.Succeeded, ","),
		"failed", len(outcome.Failed),
	)
	report(domain.IndexProgress{Stage: domain.StageDone})
	return outcome, nil
}

func (uc *IndexerUseCase) buildDocument(file domain.SourceFile, meta domain.DocumentMetadata, extracted domain.ExtractionResult) *domain.Document {
	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = titleFromFilename(file.Filename)
	}
	tags := make([]string, 0, len(meta.Tags))
	seen := make(map[string]struct{}, len(meta.Tags))
	for _, tag := range meta.Tags {
		tag = strings.TrimSpace(tag)
		key := strings.ToLower(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		tags = append(tags, tag)
	}

	return &domain.Document{
		ID:         uc.newID(),
		Filename:   file.Filename,
		FileType:   file.Extension,
		FileSize:   int64(len(file.Data)),
		UploadDate: uc.now(),
		Title:      title,
		Body:       extracted.Text,
		Tags:       tags,
		Category:   strings.TrimSpace(meta.Category),
		Author:     strings.TrimSpace(meta.Author),
		Extractor:  extracted.Strategy,
	}
}

// summarize never fails: a summarizer error degrades to a content excerpt.
func (uc *IndexerUseCase) summarize(ctx context.Context, doc *domain.Document) string {
	if uc.summarizer == nil {
		return excerptHead(doc.Body, SummaryExcerptChars)
	}
	summary, err := uc.summarizer.Summarize(ctx, doc.Title, doc.Body)
	summary = strings.TrimSpace(summary)
	if err != nil || summary == "" {
		if err != nil {
			slog.Warn("summary_generation_failed", "filename", doc.Filename, "error", err)
		}
		return excerptHead(doc.Body, SummaryExcerptChars)
	}
	return summary
}

// compensate removes a document from backends that accepted it when the
// overall operation is abandoned.
func (uc *IndexerUseCase) compensate(ctx context.Context, documentID string, backends []string) {
	if len(backends) == 0 {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	uc.deleteFromBackends(cleanupCtx, documentID, backends)
}

func (uc *IndexerUseCase) DeleteDocument(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, domain.WrapError(domain.ErrInvalidInput, "delete document", errors.New("document id is required"))
	}

	unlock, err := uc.locker.Lock(ctx, id)
	if err != nil {
		return false, fmt.Errorf("lock document %s: %w", id, err)
	}
	defer unlock()

	doc, err := uc.registry.GetByID(ctx, id)
	if err != nil {
		return false, fmt.Errorf("fetch document by id: %w", err)
	}

	targets := doc.IndexedBackends
	if len(targets) == 0 {
		targets = uc.availableBackendNames()
	}
	uc.deleteFromBackends(ctx, id, targets)

	if err := uc.registry.Delete(ctx, id); err != nil {
		return false, fmt.Errorf("delete document from registry: %w", err)
	}
	slog.Info("document_deleted", "document_id", id)
	return true, nil
}

// deleteFromBackends is best-effort: remote failures are logged, never returned.
func (uc *IndexerUseCase) deleteFromBackends(ctx context.Context, documentID string, names []string) {
	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		wanted[name] = struct{}{}
	}

	var g errgroup.Group
	for _, backend := range uc.backends {
		name := backend.Descriptor().Name
		if _, ok := wanted[name]; !ok || !backend.IsAvailable() {
			continue
		}
		g.Go(func() error {
			if err := backend.Delete(ctx, documentID); err != nil {
				slog.Warn("delete_backend_failed", "document_id", documentID, "backend", name, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (uc *IndexerUseCase) availableBackendNames() []string {
	out := make([]string, 0, len(uc.backends))
	for _, backend := range uc.backends {
		if backend.IsAvailable() {
			out = append(out, backend.Descriptor().Name)
		}
	}
	return out
}

func (uc *IndexerUseCase) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	return uc.registry.GetByID(ctx, id)
}

const progressBuffer = 16

// IndexTask is a cancellable background indexing run with observable progress.
type IndexTask struct {
	progress chan domain.IndexProgress
	done     chan struct{}
	cancel   context.CancelFunc

	outcome *domain.IndexOutcome
	err     error
}

// Progress is closed once the task finishes. Updates are dropped when the
// consumer falls behind by more than the buffer size.
func (t *IndexTask) Progress() <-chan domain.IndexProgress {
	return t.progress
}

func (t *IndexTask) Cancel() {
	t.cancel()
}

func (t *IndexTask) Done() <-chan struct{} {
	return t.done
}

func (t *IndexTask) Wait() (*domain.IndexOutcome, error) {
	<-t.done
	return t.outcome, t.err
}

func (t *IndexTask) report(p domain.IndexProgress) {
	select {
	case t.progress <- p:
	default:
	}
}
