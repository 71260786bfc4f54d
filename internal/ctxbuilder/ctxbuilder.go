// Package ctxbuilder implements the ContextBuilder (C10): greedy packing
// of ranked candidates into an LLM-sized context string, and projection of
// candidates down to the SourceView the caller shows alongside an answer.
// Grounded on original_source/src/retrieval/context_processor.py's
// summarize_context/prepare_sources, preserving its char-budget-via-token
// estimate and its "always include at least the first two documents, even
// truncated" rule.
package ctxbuilder

import (
	"fmt"
	"strings"

	"dev.ohada.ragengine/internal/models"
)

const (
	defaultMaxTokens  = 1800
	charsPerToken     = 4
	alwaysIncludeUpTo = 2
	previewChars      = 150
)

// SummarizeContext packs candidates, most relevant first, into a single
// context string bounded by maxTokens*charsPerToken characters. When a
// candidate's full text would overflow the budget, a sentence-bounded
// prefix is kept instead — but only for the first alwaysIncludeUpTo
// candidates; later candidates are dropped outright once the budget is
// exhausted. maxTokens<=0 uses the default budget.
func SummarizeContext(candidates []models.RetrievalCandidate, maxTokens int) string {
	if len(candidates) == 0 {
		return ""
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	maxChars := maxTokens * charsPerToken

	var parts []string
	currentLength := 0

	for i, c := range candidates {
		metadataStr := formatMetadata(c)
		entry := fmt.Sprintf("Document %d (score: %.2f):\n%s\n%s\n\n", i+1, c.RelevanceScore(), metadataStr, c.Text)

		if currentLength+len(entry) > maxChars {
			if i < alwaysIncludeUpTo {
				remaining := maxChars - currentLength - len(metadataStr) - 50
				passage := truncateToSentences(c.Text, remaining)
				parts = append(parts, fmt.Sprintf("Document %d (score: %.2f):\n%s\n%s\n\n", i+1, c.RelevanceScore(), metadataStr, passage))
				currentLength += len(metadataStr) + len(passage) + 50
				continue
			}
			break
		}

		parts = append(parts, entry)
		currentLength += len(entry)
	}

	return strings.Join(parts, "")
}

func formatMetadata(c models.RetrievalCandidate) string {
	var b strings.Builder
	if title := c.ExtraMetadata["title"]; title != "" {
		b.WriteString("Titre: ")
		b.WriteString(title)
		b.WriteString("\n")
	}
	if c.DocumentType != "" {
		b.WriteString("Type: ")
		b.WriteString(c.DocumentType)
		if c.Metadata.Partie != "" {
			b.WriteString(", Partie: ")
			b.WriteString(c.Metadata.Partie)
		}
		if c.Metadata.Chapitre != "" {
			b.WriteString(", Chapitre: ")
			b.WriteString(c.Metadata.Chapitre)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func truncateToSentences(text string, remaining int) string {
	if remaining <= 0 {
		return ""
	}
	sentences := strings.Split(text, ".")
	var b strings.Builder
	length := 0
	for _, s := range sentences {
		if length+len(s) >= remaining {
			break
		}
		b.WriteString(s)
		b.WriteString(". ")
		length += len(s) + 2
	}
	return b.String()
}

// PrepareSources projects candidates down to the SourceView the caller
// returns alongside the generated answer, truncating each preview to
// previewChars runes.
func PrepareSources(candidates []models.RetrievalCandidate) []models.SourceView {
	sources := make([]models.SourceView, len(candidates))
	for i, c := range candidates {
		sources[i] = models.SourceView{
			DocumentID:     c.DocumentID,
			Metadata:       c.Metadata,
			RelevanceScore: c.RelevanceScore(),
			Preview:        preview(c.Text),
		}
	}
	return sources
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewChars {
		return text
	}
	return string(runes[:previewChars]) + "..."
}
