// Package lexical implements the LexicalIndex (C4): a BM25 index per
// logical corpus over whitespace/punctuation-tokenized, lower-cased
// passage text, built lazily on first search and cached in memory (and,
// when a directory is configured, on disk). Grounded on
// Aman-CERP-amanmcp's internal/store/bm25.go (blevesearch/bleve/v2 index
// lifecycle, corruption-tolerant open) with a normalization and
// exact-match-filter layer added on top to satisfy spec §4.4 precisely.
package lexical

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/sirupsen/logrus"

	"dev.ohada.ragengine/internal/models"
)

// Index manages one bleve index per logical corpus, built lazily and
// guarded by a per-corpus sync.Once so concurrent first searches of a
// corpus run its build only once and never corrupt state, per spec §5.
type Index struct {
	dir     string // empty means in-memory only
	logger  *logrus.Entry
	builds  sync.Map // corpus -> *sync.Once
	mu      sync.RWMutex
	corpora map[string]bleve.Index
	source  func(ctx context.Context, corpus string) ([]models.Passage, error)
}

// New builds a lexical Index. source supplies the passages for a corpus
// the first time it is searched (ingestion is out of scope; this is the
// seam the core consumes it through). dir, if non-empty, persists each
// corpus's index under dir/<corpus>; an empty dir keeps everything
// in-memory.
func New(dir string, logger *logrus.Entry, source func(ctx context.Context, corpus string) ([]models.Passage, error)) *Index {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	return &Index{dir: dir, logger: logger, corpora: make(map[string]bleve.Index), source: source}
}

func buildMapping() mapping.IndexMapping {
	m := bleve.NewIndexMapping()
	m.DefaultAnalyzer = "en"
	return m
}

func (idx *Index) indexFor(ctx context.Context, corpus string) (bleve.Index, error) {
	idx.mu.RLock()
	bi, ok := idx.corpora[corpus]
	idx.mu.RUnlock()
	if ok {
		return bi, nil
	}

	onceIface, _ := idx.builds.LoadOrStore(corpus, &sync.Once{})
	once := onceIface.(*sync.Once)

	var buildErr error
	once.Do(func() {
		buildErr = idx.build(ctx, corpus)
	})
	if buildErr != nil {
		return nil, buildErr
	}

	idx.mu.RLock()
	bi = idx.corpora[corpus]
	idx.mu.RUnlock()
	if bi == nil {
		return nil, fmt.Errorf("lexical: index for corpus %q unavailable after build", corpus)
	}
	return bi, nil
}

func (idx *Index) build(ctx context.Context, corpus string) error {
	bi, err := idx.openOrCreate(corpus)
	if err != nil {
		return err
	}

	passages, err := idx.source(ctx, corpus)
	if err != nil {
		return fmt.Errorf("lexical: load corpus %q: %w", corpus, err)
	}

	batch := bi.NewBatch()
	for _, p := range passages {
		doc := bleveDoc{
			Text:         p.Text,
			Partie:       p.Hierarchy.Partie,
			Chapitre:     p.Hierarchy.Chapitre,
			Section:      p.Hierarchy.Section,
			Article:      p.Hierarchy.Article,
			DocumentType: documentTypeOf(p),
		}
		if err := batch.Index(p.ID, doc); err != nil {
			return fmt.Errorf("lexical: batch index %q: %w", p.ID, err)
		}
	}
	if err := bi.Batch(batch); err != nil {
		return fmt.Errorf("lexical: commit batch for corpus %q: %w", corpus, err)
	}

	idx.mu.Lock()
	idx.corpora[corpus] = bi
	idx.mu.Unlock()
	return nil
}

// documentTypeOf infers the coarse document_type used by boost rules from
// the hierarchy shape: a passage with an Article is an "article", one with
// a Chapitre but no Article is a "chapter", and anything else (e.g. a
// Partie-only record) is a "presentation". Passage carries no explicit
// type field, so every indexed document gets its type from this rule.
func documentTypeOf(p models.Passage) string {
	switch {
	case p.Hierarchy.Article != "":
		return "article"
	case p.Hierarchy.Chapitre != "":
		return "chapter"
	default:
		return "presentation"
	}
}

type bleveDoc struct {
	Text         string `json:"text"`
	Partie       string `json:"partie"`
	Chapitre     string `json:"chapitre"`
	Section      string `json:"section"`
	Article      string `json:"article"`
	DocumentType string `json:"document_type"`
}

func (idx *Index) openOrCreate(corpus string) (bleve.Index, error) {
	if idx.dir == "" {
		return bleve.NewMemOnly(buildMapping())
	}

	path := idx.dir + "/" + corpus
	bi, err := bleve.Open(path)
	if err == nil {
		return bi, nil
	}
	bi, err = bleve.New(path, buildMapping())
	if err != nil {
		return nil, fmt.Errorf("lexical: create disk index %q: %w", path, err)
	}
	return bi, nil
}

// Search implements spec §4.4 precisely: query the batch, normalize
// scores by the maximum positive score, apply the exact-match AND filter,
// keep only strictly-positive normalized scores, and return the top 2k
// ordered by score desc then document id asc.
func (idx *Index) Search(ctx context.Context, corpus, query string, filter []models.Filter, k int) ([]models.RetrievalCandidate, error) {
	bi, err := idx.indexFor(ctx, corpus)
	if err != nil {
		return nil, err
	}

	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(q, docCountOf(bi), 0, false)
	req.Fields = []string{"text", "partie", "chapitre", "section", "article", "document_type"}

	result, err := bi.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical: search corpus %q: %w", corpus, err)
	}

	maxScore := 0.0
	for _, hit := range result.Hits {
		if hit.Score > maxScore {
			maxScore = hit.Score
		}
	}

	candidates := make([]models.RetrievalCandidate, 0, len(result.Hits))
	for _, hit := range result.Hits {
		if maxScore <= 0 {
			continue
		}
		normalized := hit.Score / maxScore
		if normalized <= 0 {
			continue
		}

		meta := fieldsToHierarchy(hit.Fields)
		if !passesFilter(meta, filter) {
			continue
		}

		candidates = append(candidates, models.RetrievalCandidate{
			DocumentID:   hit.ID,
			Text:         stringField(hit.Fields, "text"),
			Metadata:     meta,
			LexicalScore: normalized,
			Origin:       models.OriginLexical,
			DocumentType: stringField(hit.Fields, "document_type"),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].LexicalScore != candidates[j].LexicalScore {
			return candidates[i].LexicalScore > candidates[j].LexicalScore
		}
		return candidates[i].DocumentID < candidates[j].DocumentID
	})

	limit := 2 * k
	if limit > len(candidates) {
		limit = len(candidates)
	}
	return candidates[:limit], nil
}

func docCountOf(bi bleve.Index) int {
	count, err := bi.DocCount()
	if err != nil || count == 0 {
		return 1000
	}
	if count > 100000 {
		count = 100000
	}
	return int(count)
}

func stringField(fields map[string]interface{}, key string) string {
	v, _ := fields[key].(string)
	return v
}

func fieldsToHierarchy(fields map[string]interface{}) models.Hierarchy {
	return models.Hierarchy{
		Partie:   stringField(fields, "partie"),
		Chapitre: stringField(fields, "chapitre"),
		Section:  stringField(fields, "section"),
		Article:  stringField(fields, "article"),
	}
}

// passesFilter applies exact-match, AND-semantics filtering over the
// known hierarchy keys, per spec §4.4 / §9 (exact-match only; substring
// filtering is an ingestion-layer feature out of scope here).
func passesFilter(meta models.Hierarchy, filter []models.Filter) bool {
	for _, f := range filter {
		var actual string
		switch f.Key {
		case "partie":
			actual = meta.Partie
		case "chapitre":
			actual = meta.Chapitre
		case "section":
			actual = meta.Section
		case "article":
			actual = meta.Article
		default:
			continue
		}
		if actual != f.Value {
			return false
		}
	}
	return true
}
