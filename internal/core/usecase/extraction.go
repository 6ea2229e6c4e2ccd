package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
	"github.com/kirillkom/knowledge-search/internal/core/ports"
)

// DefaultMinTextLength is the minimum number of runes (after trimming) an
// extraction must produce to count as a success. Shorter output is treated as
// an empty/garbage extraction and the chain advances to the next strategy.
const DefaultMinTextLength = 20

// ExtractionPipeline maps a normalised file extension to an ordered chain of
// strategies. The fallback strategies terminate every chain, including chains
// for unknown extensions.
type ExtractionPipeline struct {
	chains        map[string][]ports.ExtractionStrategy
	fallback      []ports.ExtractionStrategy
	minTextLength int
}

func NewExtractionPipeline(minTextLength int, fallback ...ports.ExtractionStrategy) *ExtractionPipeline {
	if minTextLength <= 0 {
		minTextLength = DefaultMinTextLength
	}
	return &ExtractionPipeline{
		chains:        make(map[string][]ports.ExtractionStrategy),
		fallback:      fallback,
		minTextLength: minTextLength,
	}
}

// Register appends strategies to the chain of each listed extension.
func (p *ExtractionPipeline) Register(strategy ports.ExtractionStrategy, extensions ...string) {
	for _, ext := range extensions {
		key := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
		if key == "" {
			continue
		}
		p.chains[key] = append(p.chains[key], strategy)
	}
}

func (p *ExtractionPipeline) MinTextLength() int {
	return p.minTextLength
}

// Chain returns the full strategy chain for an extension, fallback included.
func (p *ExtractionPipeline) Chain(extension string) []ports.ExtractionStrategy {
	specific := p.chains[strings.ToLower(extension)]
	out := make([]ports.ExtractionStrategy, 0, len(specific)+len(p.fallback))
	out = append(out, specific...)
	out = append(out, p.fallback...)
	return out
}

func (p *ExtractionPipeline) Extract(ctx context.Context, file domain.SourceFile) (domain.ExtractionResult, error) {
	if len(file.Data) == 0 {
		return domain.ExtractionResult{}, domain.WrapError(domain.ErrInvalidInput, "extract", errors.New("empty file"))
	}
	extension := file.Extension
	if extension == "" {
		extension = domain.NormalizeExtension(file.Filename)
	}

	chain := p.Chain(extension)
	if len(chain) == 0 {
		return domain.ExtractionResult{}, &domain.ExtractionFailure{Filename: file.Filename}
	}

	attempts := make([]domain.ExtractionAttempt, 0, len(chain))
	for _, strategy := range chain {
		if err := ctx.Err(); err != nil {
			return domain.ExtractionResult{Attempts: attempts}, err
		}

		start := time.Now()
		text, err := strategy.Extract(ctx, file)
		elapsed := time.Since(start)

		if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) && ctx.Err() != nil {
			return domain.ExtractionResult{Attempts: attempts}, ctx.Err()
		}

		attempt := domain.ExtractionAttempt{Strategy: strategy.Name(), Elapsed: elapsed}
		text = strings.TrimSpace(text)
		switch {
		case err != nil:
			attempt.Kind = classifyExtractionError(err)
			attempt.Reason = err.Error()
		case utf8.RuneCountInString(text) < p.minTextLength:
			attempt.Kind = domain.AttemptEmpty
			attempt.Reason = fmt.Sprintf("extracted %d runes, need at least %d", utf8.RuneCountInString(text), p.minTextLength)
		default:
			attempt.Kind = domain.AttemptSucceeded
			attempts = append(attempts, attempt)
			return domain.ExtractionResult{
				Text:     text,
				Strategy: strategy.Name(),
				Attempts: attempts,
			}, nil
		}

		slog.Debug("extraction_attempt_failed",
			"filename", file.Filename,
			"strategy", attempt.Strategy,
			"kind", string(attempt.Kind),
			"reason", attempt.Reason,
		)
		attempts = append(attempts, attempt)
	}

	return domain.ExtractionResult{Attempts: attempts}, &domain.ExtractionFailure{
		Filename: file.Filename,
		Attempts: attempts,
	}
}

func classifyExtractionError(err error) domain.AttemptKind {
	switch {
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return domain.AttemptUnsupported
	case errors.Is(err, domain.ErrCorruptInput):
		return domain.AttemptCorrupt
	default:
		return domain.AttemptUnavailable
	}
}
