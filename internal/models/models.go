// Package models holds the data types shared across the retrieval and
// answer-generation pipeline: Passage and Chunk (ingested content),
// RetrievalCandidate (transient per-query scoring record), ScoredAnswer
// (terminal response) and CacheEntry (cache-tier payload envelope).
package models

import (
	"time"

	"github.com/google/uuid"
)

// Passage is an editorially coherent unit of the OHADA/SYSCOHADA corpus,
// e.g. a single article, produced by the ingestion collaborator.
type Passage struct {
	ID          string
	Text        string
	ContentHash string // SHA-256 hex; changes iff Text changes
	Hierarchy   Hierarchy
	Status      string
	Version     string
	Tags        []string
	PublishedAt time.Time
	RevisedAt   time.Time
}

// Hierarchy carries the up-to-eight ordered legal-hierarchy levels a
// Passage may be positioned at, plus the collection coordinates.
// Field names follow the original source's relational schema
// (postgres_metadata_enricher.py): collection/sub_collection plus
// acte_uniforme, livre, partie, chapitre, section, sous_section, article,
// alinea.
type Hierarchy struct {
	Collection    string `json:"collection,omitempty"`
	SubCollection string `json:"sub_collection,omitempty"`
	ActeUniforme  string `json:"acte_uniforme,omitempty"`
	Livre         string `json:"livre,omitempty"`
	Partie        string `json:"partie,omitempty"`
	Chapitre      string `json:"chapitre,omitempty"`
	Section       string `json:"section,omitempty"`
	SousSection   string `json:"sous_section,omitempty"`
	Article       string `json:"article,omitempty"`
	Alinea        string `json:"alinea,omitempty"`
}

// Chunk is the embedding-sized slice of a Passage actually stored in the
// vector index. ChunkID must equal PassageID + "_chunk_" + Index.
type Chunk struct {
	ChunkID     string
	PassageID   string
	Text        string
	Index       int
	TotalChunks int
	Metadata    Hierarchy
}

// NewChunkID builds the canonical chunk identifier for a passage/index pair.
func NewChunkID(passageID string, index int) string {
	return passageID + "_chunk_" + itoa(index)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// CandidateOrigin records which index(es) produced a RetrievalCandidate.
type CandidateOrigin string

const (
	OriginLexical CandidateOrigin = "lexical"
	OriginVector  CandidateOrigin = "vector"
	OriginBoth    CandidateOrigin = "both"
)

// RetrievalCandidate is a transient, per-query scoring record. It is
// created during SearchHybrid and discarded after response assembly.
type RetrievalCandidate struct {
	DocumentID      string
	Text            string
	Metadata        Hierarchy
	ExtraMetadata   map[string]string
	LexicalScore    float64 // normalized to [0,1] within the current query
	VectorScore     float64 // normalized to [0,1] within the current query
	CrossEncoder    float64 // normalized to [0,1]; 0 until reranked
	CombinedScore   float64
	FinalScore      float64 // set by the reranker; falls back to CombinedScore
	Origin          CandidateOrigin
	DocumentType    string // e.g. "presentation", "chapter" — drives boost rules
}

// RelevanceScore is the score a consumer should read: FinalScore if the
// candidate has been reranked (FinalScore > 0), else CombinedScore.
func (c *RetrievalCandidate) RelevanceScore() float64 {
	if c.FinalScore > 0 {
		return c.FinalScore
	}
	return c.CombinedScore
}

// Filter is a sorted key/value list used for exact-match, AND-semantics
// filtering across both indexes and for answer-cache key derivation.
type Filter struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SourceView projects a RetrievalCandidate down to what is safe and useful
// to show alongside an answer.
type SourceView struct {
	DocumentID      string    `json:"document_id"`
	Metadata        Hierarchy `json:"metadata"`
	RelevanceScore  float64   `json:"relevance_score"`
	Preview         string    `json:"preview"`
}

// PhaseTiming records the wall-clock duration of one AnswerPipeline phase.
type PhaseTiming struct {
	Phase   string  `json:"phase"`
	Seconds float64 `json:"seconds"`
}

// ScoredAnswer is the terminal response of one Search (or the final frame
// of one SearchStream) call.
type ScoredAnswer struct {
	QueryID     uuid.UUID     `json:"query_id"`
	Query       string        `json:"query"`
	Answer      string        `json:"answer"`
	Sources     []SourceView  `json:"sources"`
	Performance []PhaseTiming `json:"performance"`
	Intent      string        `json:"intent"`
	Timestamp   time.Time     `json:"timestamp"`
}

// CacheEntry is the payload envelope stored by a CacheTier: either a
// serialized ScoredAnswer or a float embedding vector, each with a TTL.
type CacheEntry struct {
	Key       string
	Payload   []byte
	TTL       time.Duration
	StoredAt  time.Time
}
