// Package retriever implements the HybridRetriever (C11): the orchestrator
// that fans the query out over the embedding, lexical and vector index
// components, merges and deduplicates the results, applies domain score
// boosts, optionally reranks, and enriches the final set with authoritative
// metadata. Grounded on spec.md §4.11; the parallel fan-out uses
// golang.org/x/sync/errgroup, the idiomatic generalization of the
// teacher's goroutine+channel fan-out in tiered_cache.go's cleanup loop.
package retriever

import (
	"context"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"dev.ohada.ragengine/internal/config"
	"dev.ohada.ragengine/internal/embedding"
	"dev.ohada.ragengine/internal/lexical"
	"dev.ohada.ragengine/internal/metadata"
	"dev.ohada.ragengine/internal/models"
	"dev.ohada.ragengine/internal/rerank"
	"dev.ohada.ragengine/internal/vectorindex"
)

// VectorSearcher is the subset of vectorindex.Index the retriever depends
// on, narrowed for substitutability in tests.
type VectorSearcher interface {
	Search(ctx context.Context, corpus string, queryVector []float32, filter []models.Filter, k int) ([]models.RetrievalCandidate, error)
}

// LexicalSearcher is the subset of lexical.Index the retriever depends on.
type LexicalSearcher interface {
	Search(ctx context.Context, corpus, query string, filter []models.Filter, k int) ([]models.RetrievalCandidate, error)
}

// MetadataEnricher is the subset of metadata.Enricher the retriever
// depends on.
type MetadataEnricher interface {
	Enrich(ctx context.Context, candidates []models.RetrievalCandidate) []models.RetrievalCandidate
}

var (
	_ VectorSearcher   = (*vectorindex.Index)(nil)
	_ LexicalSearcher  = (*lexical.Index)(nil)
	_ MetadataEnricher = (*metadata.Enricher)(nil)
)

const defaultCorpus = "combined"

// Retriever orchestrates C2 (embedding), C4 (lexical), C5 (vector), C6
// (rerank) and C7 (enrich) into one SearchHybrid call.
type Retriever struct {
	embedder  *embedding.Provider
	lexicalIx LexicalSearcher
	vectorIx  VectorSearcher
	reranker  *rerank.Reranker
	enricher  MetadataEnricher
	boosts    []config.BoostRule
	logger    *logrus.Entry
}

// New builds a Retriever. reranker and enricher may be nil to disable
// those optional stages.
func New(embedder *embedding.Provider, lexicalIx LexicalSearcher, vectorIx VectorSearcher, reranker *rerank.Reranker, enricher MetadataEnricher, boosts []config.BoostRule, logger *logrus.Entry) *Retriever {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	return &Retriever{
		embedder:  embedder,
		lexicalIx: lexicalIx,
		vectorIx:  vectorIx,
		reranker:  reranker,
		enricher:  enricher,
		boosts:    boosts,
		logger:    logger,
	}
}

// targetCorpora determines which corpora to search from the filter set.
// Per spec §4.11 step 1, the default is the single combined corpus; a
// "corpus" filter key, if present, narrows the search.
func targetCorpora(filter []models.Filter) []string {
	for _, f := range filter {
		if f.Key == "corpus" && f.Value != "" {
			return []string{f.Value}
		}
	}
	return []string{defaultCorpus}
}

// SearchHybrid implements spec.md §4.11 steps 1-9.
func (r *Retriever) SearchHybrid(ctx context.Context, query string, filter []models.Filter, k int, doRerank bool) []models.RetrievalCandidate {
	corpora := targetCorpora(filter)

	var (
		lexicalResults [][]models.RetrievalCandidate
		vectorResults  [][]models.RetrievalCandidate
	)

	g, gctx := errgroup.WithContext(ctx)

	lexicalResults = make([][]models.RetrievalCandidate, len(corpora))
	for i, corpus := range corpora {
		i, corpus := i, corpus
		g.Go(func() error {
			candidates, err := r.lexicalIx.Search(gctx, corpus, query, filter, k)
			if err != nil {
				r.logger.WithError(err).WithField("corpus", corpus).Warn("retriever: lexical search failed, contributing zero candidates")
				return nil
			}
			lexicalResults[i] = candidates
			return nil
		})
	}

	var queryVector []float32
	vectorResults = make([][]models.RetrievalCandidate, len(corpora))
	if r.embedder != nil && r.vectorIx != nil {
		g.Go(func() error {
			queryVector = r.embedder.Embed(gctx, query)
			for i, corpus := range corpora {
				i, corpus := i, corpus
				cands, err := r.vectorIx.Search(gctx, corpus, queryVector, filter, k)
				if err != nil {
					r.logger.WithError(err).WithField("corpus", corpus).Warn("retriever: vector search failed, contributing zero candidates")
					continue
				}
				vectorResults[i] = cands
			}
			return nil
		})
	}

	_ = g.Wait() // sub-searches never return a hard error; failures are logged and degrade to zero candidates

	merged := merge(lexicalResults, vectorResults)
	applyBoosts(merged, query, r.boosts)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CombinedScore > merged[j].CombinedScore
	})

	if doRerank && r.reranker != nil {
		top := 2 * k
		if top > len(merged) {
			top = len(merged)
		}
		reranked, err := r.reranker.Rerank(ctx, query, merged, top)
		if err != nil {
			r.logger.WithError(err).Warn("retriever: rerank failed, keeping combined-score order")
		} else {
			merged = reranked
			sort.SliceStable(merged, func(i, j int) bool {
				return merged[i].RelevanceScore() > merged[j].RelevanceScore()
			})
		}
	}

	if k > 0 && k < len(merged) {
		merged = merged[:k]
	}

	if r.enricher != nil {
		merged = r.enricher.Enrich(ctx, merged)
	}

	return merged
}

// merge flattens the per-corpus results and deduplicates by document id,
// keeping the MAX of each sub-score (never the sum) and recomputing
// combined = 0.5*lexical + 0.5*vector, per spec §4.11 step 4.
func merge(lexicalResults, vectorResults [][]models.RetrievalCandidate) []models.RetrievalCandidate {
	byID := make(map[string]*models.RetrievalCandidate)
	order := make([]string, 0)

	apply := func(c models.RetrievalCandidate) {
		existing, ok := byID[c.DocumentID]
		if !ok {
			cp := c
			byID[c.DocumentID] = &cp
			order = append(order, c.DocumentID)
			return
		}
		if c.LexicalScore > existing.LexicalScore {
			existing.LexicalScore = c.LexicalScore
		}
		if c.VectorScore > existing.VectorScore {
			existing.VectorScore = c.VectorScore
		}
		if existing.Text == "" {
			existing.Text = c.Text
		}
		if existing.DocumentType == "" {
			existing.DocumentType = c.DocumentType
		}
		existing.Origin = models.OriginBoth
	}

	for _, batch := range lexicalResults {
		for _, c := range batch {
			c.Origin = models.OriginLexical
			apply(c)
		}
	}
	for _, batch := range vectorResults {
		for _, c := range batch {
			c.Origin = models.OriginVector
			apply(c)
		}
	}

	out := make([]models.RetrievalCandidate, 0, len(order))
	for _, id := range order {
		c := byID[id]
		c.CombinedScore = 0.5*c.LexicalScore + 0.5*c.VectorScore
		out = append(out, *c)
	}
	return out
}

// applyBoosts multiplies each candidate's combined score in place per
// spec §4.11 step 5: any configured rule whose keyword set matches the
// (lowercased) query and whose document type matches the candidate fires.
func applyBoosts(candidates []models.RetrievalCandidate, query string, rules []config.BoostRule) {
	if len(rules) == 0 {
		return
	}
	lowerQuery := strings.ToLower(query)

	for i := range candidates {
		for _, rule := range rules {
			if candidates[i].DocumentType != rule.DocumentType {
				continue
			}
			if matchesAny(lowerQuery, rule.Keywords) {
				candidates[i].CombinedScore *= rule.Multiplier
			}
		}
	}
}

func matchesAny(lowerQuery string, keywords []string) bool {
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lowerQuery, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
