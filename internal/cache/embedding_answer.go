package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dev.ohada.ragengine/internal/models"
)

// GetEmbedding probes the tiers for a cached embedding of text.
func (t *Tier) GetEmbedding(ctx context.Context, text string) ([]float32, HitTier, bool) {
	data, hit := t.get(ctx, EmbeddingKey(text))
	if hit == HitNone {
		return nil, HitNone, false
	}
	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		t.logger.WithError(err).Warn("cache: corrupt embedding entry, treating as miss")
		return nil, HitNone, false
	}
	return vec, hit, true
}

// PutEmbedding writes an embedding to every tier.
func (t *Tier) PutEmbedding(ctx context.Context, text string, vector []float32, ttl time.Duration) error {
	data, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	t.put(ctx, EmbeddingKey(text), data, ttl)
	return nil
}

// GetAnswer probes the tiers for a cached ScoredAnswer for (query, filters).
func (t *Tier) GetAnswer(ctx context.Context, query string, filters []models.Filter) (*models.ScoredAnswer, bool) {
	data, hit := t.get(ctx, AnswerKey(query, filters))
	if hit == HitNone {
		return nil, false
	}
	var answer models.ScoredAnswer
	if err := json.Unmarshal(data, &answer); err != nil {
		t.logger.WithError(err).Warn("cache: corrupt answer entry, treating as miss")
		return nil, false
	}
	return &answer, true
}

// PutAnswer writes a ScoredAnswer to every tier.
func (t *Tier) PutAnswer(ctx context.Context, query string, filters []models.Filter, answer *models.ScoredAnswer, ttl time.Duration) error {
	data, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("marshal answer: %w", err)
	}
	t.put(ctx, AnswerKey(query, filters), data, ttl)
	return nil
}
