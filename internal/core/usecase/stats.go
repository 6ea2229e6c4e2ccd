package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
	"github.com/kirillkom/knowledge-search/internal/core/ports"
)

type StatsUseCase struct {
	registry ports.DocumentRegistry
	backends []string
}

func NewStatsUseCase(registry ports.DocumentRegistry, backends ...ports.SearchBackend) *StatsUseCase {
	names := make([]string, 0, len(backends))
	for _, b := range backends {
		names = append(names, b.Descriptor().Name)
	}
	return &StatsUseCase{registry: registry, backends: names}
}

// Stats is computed from the registry alone; backends are never queried.
func (uc *StatsUseCase) Stats(ctx context.Context) (*domain.Stats, error) {
	docs, err := uc.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	stats := &domain.Stats{
		PerFileType: map[string]int{},
		PerCategory: map[string]int{},
		PerBackend:  make(map[string]int, len(uc.backends)),
	}
	for _, name := range uc.backends {
		stats.PerBackend[name] = 0
	}

	for _, doc := range docs {
		stats.TotalDocuments++
		stats.TotalBytes += doc.FileSize

		fileType := strings.ToLower(doc.FileType)
		if fileType == "" {
			fileType = "unknown"
		}
		stats.PerFileType[fileType]++

		category := doc.Category
		if category == "" {
			category = "uncategorized"
		}
		stats.PerCategory[category]++

		for _, backend := range doc.IndexedBackends {
			stats.PerBackend[backend]++
		}
	}
	return stats, nil
}
