package cache

import (
	"context"
	"testing"
	"time"

	"dev.ohada.ragengine/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTier(t *testing.T, l1Capacity int) *Tier {
	t.Helper()
	mr := miniredis.RunT(t)
	return New(Config{L1Capacity: l1Capacity, RedisURL: "redis://" + mr.Addr()}, nil)
}

func TestL1Cache_FIFOEviction(t *testing.T) {
	c := newL1Cache(2)
	c.set("a", []byte("1"), 0)
	c.set("b", []byte("2"), 0)

	// Reading "a" must NOT protect it from eviction: FIFO is strict
	// insertion order, not recency of read.
	_, _ = c.get("a")

	c.set("c", []byte("3"), 0)

	_, aOK := c.get("a")
	_, bOK := c.get("b")
	_, cOK := c.get("c")

	assert.False(t, aOK, "oldest insertion must be evicted even though it was just read")
	assert.True(t, bOK)
	assert.True(t, cOK)
}

func TestTier_EmbeddingRoundTrip(t *testing.T) {
	tier := newTestTier(t, 100)
	ctx := context.Background()

	vec := []float32{0.1, 0.2, 0.3}
	require.NoError(t, tier.PutEmbedding(ctx, "hello world", vec, time.Hour))

	got, hitTier, ok := tier.GetEmbedding(ctx, "hello world")
	require.True(t, ok)
	assert.Equal(t, HitL1, hitTier)
	assert.Equal(t, vec, got)
}

func TestTier_AnswerCache_WriteThrough(t *testing.T) {
	tier := newTestTier(t, 100)
	ctx := context.Background()

	answer := &models.ScoredAnswer{Query: "q", Answer: "a"}
	filters := []models.Filter{{Key: "partie", Value: "2"}}

	require.NoError(t, tier.PutAnswer(ctx, "q", filters, answer, time.Hour))

	got, ok := tier.GetAnswer(ctx, "q", filters)
	require.True(t, ok)
	assert.Equal(t, "a", got.Answer)
}

func TestAnswerKey_FilterOrderIndependent(t *testing.T) {
	f1 := []models.Filter{{Key: "partie", Value: "1"}, {Key: "chapitre", Value: "2"}}
	f2 := []models.Filter{{Key: "chapitre", Value: "2"}, {Key: "partie", Value: "1"}}

	assert.Equal(t, AnswerKey("q", f1), AnswerKey("q", f2))
}

func TestTier_MissPromotesFromL2(t *testing.T) {
	tier := newTestTier(t, 100)
	ctx := context.Background()

	require.NoError(t, tier.PutEmbedding(ctx, "promote-me", []float32{1}, time.Hour))
	tier.l1.delete(EmbeddingKey("promote-me"))

	_, hitTier, ok := tier.GetEmbedding(ctx, "promote-me")
	require.True(t, ok)
	assert.Equal(t, HitL2, hitTier)

	// now served from L1 after promotion
	_, hitTier2, ok := tier.GetEmbedding(ctx, "promote-me")
	require.True(t, ok)
	assert.Equal(t, HitL1, hitTier2)
}

func TestTier_StatsTracksHitsAndMisses(t *testing.T) {
	tier := newTestTier(t, 100)
	ctx := context.Background()

	_, _, _ = tier.GetEmbedding(ctx, "missing")
	require.NoError(t, tier.PutEmbedding(ctx, "present", []float32{1}, time.Hour))
	_, _, _ = tier.GetEmbedding(ctx, "present")

	stats := tier.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 0.001)
}
