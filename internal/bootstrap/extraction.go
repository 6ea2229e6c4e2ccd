package bootstrap

import (
	"github.com/kirillkom/knowledge-search/internal/config"
	"github.com/kirillkom/knowledge-search/internal/core/ports"
	"github.com/kirillkom/knowledge-search/internal/core/usecase"
	"github.com/kirillkom/knowledge-search/internal/infrastructure/extractor/docx"
	"github.com/kirillkom/knowledge-search/internal/infrastructure/extractor/html"
	llmextractor "github.com/kirillkom/knowledge-search/internal/infrastructure/extractor/llm"
	"github.com/kirillkom/knowledge-search/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/knowledge-search/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/knowledge-search/internal/infrastructure/extractor/spreadsheet"
	"github.com/kirillkom/knowledge-search/internal/infrastructure/llm/ollama"
)

// buildExtraction registers the strategy chains per extension. The language
// model transcription ends every chain when a model is configured.
func buildExtraction(cfg config.Config, llmClient *ollama.Client) *usecase.ExtractionPipeline {
	var fallback []ports.ExtractionStrategy
	if llmClient.Configured() {
		fallback = append(fallback, llmextractor.NewExtractor(ollama.NewGenerator(llmClient), 0))
	}
	pipeline := usecase.NewExtractionPipeline(cfg.ExtractMinTextLength, fallback...)

	pipeline.Register(plaintext.NewExtractor(), plaintext.Extensions...)
	pipeline.Register(pdf.NewExtractor(), "pdf")
	pipeline.Register(pdf.NewScavenger(), "pdf")
	pipeline.Register(spreadsheet.NewExtractor(cfg.SpreadsheetMaxRows), "xlsx", "xlsm", "xltx")
	pipeline.Register(docx.NewExtractor(), "docx", "docm", "dotx")
	pipeline.Register(html.NewExtractor(), "html", "htm", "xhtml")
	return pipeline
}
