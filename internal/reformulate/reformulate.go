// Package reformulate implements the QueryReformulator (C9): a guard
// predicate that skips LLM rewriting for queries that are already precise
// (short, carrying an exact reference, using OHADA technical vocabulary,
// or phrased as a direct question), and otherwise rewrites the query to
// add retrieval-friendly keywords. Grounded verbatim in meaning on
// original_source/backend/src/generation/query_reformulator.py.
package reformulate

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"dev.ohada.ragengine/internal/llm"
)

var referencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(compte|article|section|chapitre|partie)\s+\d+`),
}

var technicalTerms = []string{
	"syscohada", "ohada", "bilan", "actif", "passif",
	"amortissement", "provision", "charge", "produit",
	"immobilisation", "stock", "trésorerie", "créance",
	"dette", "capital", "résultat",
}

var directQuestionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(quel|quelle|quels|quelles)\s+(est|sont)`),
	regexp.MustCompile(`^comment\s+(enregistrer|comptabiliser|faire)`),
	regexp.MustCompile(`^où\s+(enregistrer|comptabiliser|trouver)`),
}

// ShouldReformulate reports whether query is complex enough to benefit
// from LLM rewriting. About 60% of queries are expected to return false,
// skipping a costly reformulation call.
func ShouldReformulate(query string) bool {
	words := strings.Fields(query)
	lower := strings.ToLower(query)

	if len(words) <= 10 {
		return false
	}

	for _, p := range referencePatterns {
		if p.MatchString(lower) {
			return false
		}
	}

	for _, term := range technicalTerms {
		if strings.Contains(lower, term) {
			return false
		}
	}

	for _, p := range directQuestionPatterns {
		if p.MatchString(lower) {
			return false
		}
	}

	if strings.Contains(lower, "ohada") && len(words) >= 5 {
		return false
	}

	return true
}

const systemPrompt = "Reformulez la question pour optimiser la recherche dans le plan comptable OHADA."

const promptTemplate = `
Vous êtes un assistant spécialisé dans la recherche d'informations sur le plan comptable OHADA.
Votre tâche est de reformuler la question suivante pour maximiser les chances de trouver
des informations pertinentes dans une base de données. Ajoutez des mots-clés pertinents,
mais gardez la requête concise.

Question originale: %s

Reformulation optimisée:
`

// Reformulator rewrites queries via an LLM when ShouldReformulate says so.
type Reformulator struct {
	llmClient *llm.Manager
	logger    *logrus.Entry
}

func New(llmClient *llm.Manager, logger *logrus.Entry) *Reformulator {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	return &Reformulator{llmClient: llmClient, logger: logger}
}

// Reformulate returns query unchanged when ShouldReformulate(query) is
// false, when no LLM is configured, or when the LLM returns an empty
// rewrite — the caller never receives an empty query.
func (r *Reformulator) Reformulate(ctx context.Context, query string) string {
	if !ShouldReformulate(query) {
		r.logger.WithField("query", truncate(query, 50)).Debug("reformulate: skipped, already precise")
		return query
	}

	if r.llmClient == nil {
		return query
	}

	user := fmt.Sprintf(promptTemplate, query)
	rewritten := strings.TrimSpace(r.llmClient.Complete(ctx, systemPrompt, user, 100, 0.3))
	if rewritten == "" {
		return query
	}
	return rewritten
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
