// Package rerank implements the Reranker (C6): a cross-encoder pairwise
// scorer over (query, candidate) pairs, producing
// final = 0.3*lexical + 0.3*vector + 0.4*cross_encoder. Grounded on
// internal/rag/reranker_test.go's CrossEncoderReranker/CohereReranker
// shapes and lazy-load/fallback behavior, adapted to RetrievalCandidate
// and the spec's literal scoring formula.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"dev.ohada.ragengine/internal/models"
)

// Config configures the cross-encoder backend.
type Config struct {
	Model     string
	Endpoint  string // empty forces the token-overlap fallback
	APIKey    string
	Timeout   time.Duration
	BatchSize int
}

func DefaultConfig() Config {
	return Config{Model: "BAAI/bge-reranker-v2-m3", Timeout: 30 * time.Second, BatchSize: 32}
}

// Reranker scores (query, candidate) pairs via an HTTP cross-encoder
// endpoint when configured, else falls back to a token-overlap heuristic.
// If the endpoint call fails, the same token-overlap scores are used; the
// reranker does not leave candidates at their merged score.
type Reranker struct {
	config     Config
	httpClient *http.Client
	logger     *logrus.Entry
}

func New(cfg *Config, logger *logrus.Entry) *Reranker {
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
		if c.Model == "" {
			c.Model = DefaultConfig().Model
		}
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	return &Reranker{
		config:     c,
		httpClient: &http.Client{Timeout: c.Timeout},
		logger:     logger,
	}
}

// Rerank scores only the first topK candidates (topK<=0 means the full
// list); the remainder retain their pre-rerank order, appended after the
// reranked prefix, per spec §4.6.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []models.RetrievalCandidate, topK int) ([]models.RetrievalCandidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}
	if topK <= 0 || topK > len(candidates) {
		topK = len(candidates)
	}

	prefix := candidates[:topK]
	remainder := candidates[topK:]

	scores := r.crossEncoderScores(ctx, query, prefix)

	out := make([]models.RetrievalCandidate, 0, len(candidates))
	for i, c := range prefix {
		c.CrossEncoder = scores[i]
		c.FinalScore = 0.3*c.LexicalScore + 0.3*c.VectorScore + 0.4*c.CrossEncoder
		out = append(out, c)
	}
	out = append(out, remainder...)
	return out, nil
}

func (r *Reranker) crossEncoderScores(ctx context.Context, query string, candidates []models.RetrievalCandidate) []float64 {
	if r.config.Endpoint == "" {
		return r.fallbackScores(query, candidates)
	}

	scores, err := r.remoteScores(ctx, query, candidates)
	if err != nil {
		r.logger.WithError(err).Warn("rerank: cross-encoder endpoint failed, falling back to token overlap")
		return r.fallbackScores(query, candidates)
	}
	return scores
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

func (r *Reranker) remoteScores(ctx context.Context, query string, candidates []models.RetrievalCandidate) ([]float64, error) {
	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Text
	}

	body, err := json.Marshal(rerankRequest{Model: r.config.Model, Query: query, Documents: docs})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.config.APIKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank request failed: status %d", resp.StatusCode)
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	if len(parsed.Scores) != len(candidates) {
		return nil, fmt.Errorf("rerank response had %d scores for %d candidates", len(parsed.Scores), len(candidates))
	}
	return parsed.Scores, nil
}

// fallbackScores scores by normalized token overlap between the query and
// each candidate's text, grounded on reranker_test.go's
// tokenizeToFrequencyMap/computeOverlap helpers.
func (r *Reranker) fallbackScores(query string, candidates []models.RetrievalCandidate) []float64 {
	queryTokens := tokenizeToFrequencyMap(query)
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		scores[i] = computeOverlap(queryTokens, tokenizeToFrequencyMap(c.Text))
	}
	return scores
}

func tokenizeToFrequencyMap(text string) map[string]int {
	freq := make(map[string]int)
	for _, word := range strings.FieldsFunc(text, func(r rune) bool {
		return !isAlnum(r)
	}) {
		if word == "" {
			continue
		}
		freq[word]++
	}
	return freq
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func computeOverlap(query, doc map[string]int) float64 {
	if len(query) == 0 {
		return 0
	}
	matched := 0
	for term := range query {
		if _, ok := doc[term]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}
