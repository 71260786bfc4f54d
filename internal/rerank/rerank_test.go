package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.ohada.ragengine/internal/models"
)

func TestRerank_EmptyReturnsEmpty(t *testing.T) {
	r := New(nil, nil)
	out, err := r.Rerank(context.Background(), "query", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRerank_Monotonicity(t *testing.T) {
	// a single item with lexical=vector=cross=1.0 must score exactly 1.0
	// (0.3+0.3+0.4), per spec's seed scenario 6.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		scores := make([]float64, len(req.Documents))
		for i := range scores {
			scores[i] = 1.0
		}
		_ = json.NewEncoder(w).Encode(rerankResponse{Scores: scores})
	}))
	defer server.Close()

	r := New(&Config{Endpoint: server.URL, Timeout: 5 * time.Second}, nil)

	candidates := []models.RetrievalCandidate{
		{DocumentID: "d1", LexicalScore: 1.0, VectorScore: 1.0},
	}

	out, err := r.Rerank(context.Background(), "q", candidates, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1.0, out[0].FinalScore)
}

func TestRerank_TenItemsPromotesCrossEncoderWinner(t *testing.T) {
	// 10 candidates, pre-rerank combined order d0..d9 descending by
	// lexical+vector; the cross-encoder favors d6 ("item 7") heavily
	// enough that 0.4*cross_encoder outweighs the other two terms and it
	// comes first once the output is sorted by RelevanceScore (Rerank
	// itself keeps the input order), per spec's seed scenario 6.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		scores := make([]float64, len(req.Documents))
		for i := range scores {
			scores[i] = 0.1
		}
		scores[6] = 1.0
		_ = json.NewEncoder(w).Encode(rerankResponse{Scores: scores})
	}))
	defer server.Close()

	r := New(&Config{Endpoint: server.URL, Timeout: 5 * time.Second}, nil)

	candidates := make([]models.RetrievalCandidate, 10)
	for i := range candidates {
		score := 0.9 - float64(i)*0.08
		candidates[i] = models.RetrievalCandidate{
			DocumentID:   "d" + string(rune('0'+i)),
			LexicalScore: score,
			VectorScore:  score,
		}
	}

	out, err := r.Rerank(context.Background(), "q", candidates, 0)
	require.NoError(t, err)
	require.Len(t, out, 10)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore() > out[j].RelevanceScore()
	})
	assert.Equal(t, "d6", out[0].DocumentID)
}

func TestRerank_RemainderKeepsPreRerankOrder(t *testing.T) {
	r := New(&Config{Endpoint: ""}, nil) // forces fallback

	candidates := []models.RetrievalCandidate{
		{DocumentID: "a"}, {DocumentID: "b"}, {DocumentID: "c"},
	}

	out, err := r.Rerank(context.Background(), "q", candidates, 1)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "b", out[1].DocumentID)
	assert.Equal(t, "c", out[2].DocumentID)
}

func TestRerank_FallbackOnEndpointFailure(t *testing.T) {
	r := New(&Config{Endpoint: "http://127.0.0.1:1", Timeout: 100 * time.Millisecond}, nil)

	candidates := []models.RetrievalCandidate{{DocumentID: "d1", Text: "hello world"}}
	out, err := r.Rerank(context.Background(), "hello", candidates, 1)

	require.NoError(t, err)
	assert.Greater(t, out[0].CrossEncoder, 0.0)
}

func TestComputeOverlap(t *testing.T) {
	assert.Equal(t, 1.0, computeOverlap(map[string]int{"a": 1}, map[string]int{"a": 1, "b": 1}))
	assert.Equal(t, 0.0, computeOverlap(map[string]int{}, map[string]int{"a": 1}))
}
