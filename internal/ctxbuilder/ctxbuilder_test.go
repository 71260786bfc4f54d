package ctxbuilder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"dev.ohada.ragengine/internal/models"
)

func TestSummarizeContext_EmptyReturnsEmptyString(t *testing.T) {
	assert.Equal(t, "", SummarizeContext(nil, 0))
}

func TestSummarizeContext_IncludesMetadataAndText(t *testing.T) {
	candidates := []models.RetrievalCandidate{
		{
			DocumentID:    "d1",
			Text:          "Le compte 401 enregistre les dettes fournisseurs.",
			DocumentType:  "article",
			Metadata:      models.Hierarchy{Partie: "2", Chapitre: "3"},
			ExtraMetadata: map[string]string{"title": "Des fournisseurs"},
			FinalScore:    0.91,
		},
	}

	out := SummarizeContext(candidates, 0)
	assert.Contains(t, out, "Document 1 (score: 0.91):")
	assert.Contains(t, out, "Titre: Des fournisseurs")
	assert.Contains(t, out, "Type: article, Partie: 2, Chapitre: 3")
	assert.Contains(t, out, "Le compte 401 enregistre les dettes fournisseurs.")
}

func TestSummarizeContext_AlwaysIncludesFirstTwoEvenWhenOverBudget(t *testing.T) {
	longText := strings.Repeat("mot ", 2000)
	candidates := []models.RetrievalCandidate{
		{DocumentID: "d1", Text: longText, FinalScore: 0.9},
		{DocumentID: "d2", Text: longText, FinalScore: 0.8},
		{DocumentID: "d3", Text: longText, FinalScore: 0.7},
	}

	out := SummarizeContext(candidates, 10) // tiny budget: 40 chars

	assert.Contains(t, out, "Document 1")
	assert.Contains(t, out, "Document 2")
	assert.NotContains(t, out, "Document 3")
}

func TestPrepareSources_TruncatesLongPreview(t *testing.T) {
	candidates := []models.RetrievalCandidate{
		{DocumentID: "d1", Text: strings.Repeat("a", 200), FinalScore: 0.5},
	}
	sources := PrepareSources(candidates)
	require := assert.New(t)
	require.Len(sources, 1)
	require.Equal("d1", sources[0].DocumentID)
	require.True(strings.HasSuffix(sources[0].Preview, "..."))
	require.Len([]rune(sources[0].Preview), previewChars+3)
}

func TestPrepareSources_ShortTextUnchanged(t *testing.T) {
	candidates := []models.RetrievalCandidate{{DocumentID: "d1", Text: "short"}}
	sources := PrepareSources(candidates)
	assert.Equal(t, "short", sources[0].Preview)
}
