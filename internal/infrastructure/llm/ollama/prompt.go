package ollama

import "fmt"

const maxPromptSnippet = 4000

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func buildSummaryPrompt(title, text string) string {
	return fmt.Sprintf(`You summarize documents for a search portal.
Write two or three plain sentences describing what the document is about.
No markdown, no preamble.

Title: %s

Document:
%s
`, title, truncateRunes(text, maxPromptSnippet))
}
