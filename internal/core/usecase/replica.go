package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
	"github.com/kirillkom/knowledge-search/internal/core/ports"
)

// ReplicaSyncUseCase fills backends whose index lives in this process with
// documents that were indexed elsewhere, and records them in the registry so
// deletes and stats cover them.
type ReplicaSyncUseCase struct {
	registry ports.DocumentRegistry
	locker   ports.DocumentLocker
	backends []ports.SearchBackend
}

func NewReplicaSyncUseCase(registry ports.DocumentRegistry, locker ports.DocumentLocker, backends ...ports.SearchBackend) *ReplicaSyncUseCase {
	return &ReplicaSyncUseCase{registry: registry, locker: locker, backends: backends}
}

// HandleIndexed replicates the announced document. A document deleted before
// the event arrived is skipped.
func (uc *ReplicaSyncUseCase) HandleIndexed(ctx context.Context, event domain.IndexedEvent) error {
	id := strings.TrimSpace(event.DocumentID)
	if id == "" {
		return domain.WrapError(domain.ErrInvalidInput, "handle indexed event", fmt.Errorf("document id is required"))
	}

	unlock, err := uc.locker.Lock(ctx, id)
	if err != nil {
		return fmt.Errorf("lock document %s: %w", id, err)
	}
	defer unlock()

	doc, err := uc.registry.GetByID(ctx, id)
	if domain.IsKind(err, domain.ErrDocumentNotFound) {
		slog.Info("indexed_document_gone", "document_id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch indexed document: %w", err)
	}
	_, err = uc.replicate(ctx, doc)
	return err
}

// Rehydrate replays every registered document into the local backends. It
// runs once at start-up, before the process serves queries.
func (uc *ReplicaSyncUseCase) Rehydrate(ctx context.Context) (int, error) {
	if len(uc.available()) == 0 {
		return 0, nil
	}
	docs, err := uc.registry.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list documents for rehydration: %w", err)
	}

	replicated := 0
	for _, doc := range docs {
		unlock, err := uc.locker.Lock(ctx, doc.ID)
		if err != nil {
			return replicated, fmt.Errorf("lock document %s: %w", doc.ID, err)
		}
		added, err := uc.replicate(ctx, doc)
		unlock()
		if err != nil {
			return replicated, err
		}
		if added > 0 {
			replicated++
		}
	}
	return replicated, nil
}

// replicate indexes doc into every available local backend and merges the
// successful names into IndexedBackends. The caller holds the document lock.
func (uc *ReplicaSyncUseCase) replicate(ctx context.Context, doc *domain.Document) (int, error) {
	added := 0
	backends := slices.Clone(doc.IndexedBackends)
	for _, backend := range uc.available() {
		name := backend.Descriptor().Name
		if err := backend.Index(ctx, doc.Clone()); err != nil {
			slog.Warn("replica_index_failed", "document_id", doc.ID, "backend", name, "error", err)
			continue
		}
		added++
		if !slices.Contains(backends, name) {
			backends = append(backends, name)
		}
	}
	if len(backends) == len(doc.IndexedBackends) {
		return added, nil
	}

	updated := doc.Clone()
	updated.IndexedBackends = backends
	if err := uc.registry.Save(ctx, updated); err != nil {
		return added, fmt.Errorf("record replicated backends: %w", err)
	}
	slog.Info("document_replicated", "document_id", doc.ID, "backends", strings.Join(backends, ","))
	return added, nil
}

func (uc *ReplicaSyncUseCase) available() []ports.SearchBackend {
	out := make([]ports.SearchBackend, 0, len(uc.backends))
	for _, b := range uc.backends {
		if b.IsAvailable() {
			out = append(out, b)
		}
	}
	return out
}
