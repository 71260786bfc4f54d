package cache

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"

	"dev.ohada.ragengine/internal/models"
)

// EmbeddingKey derives the deterministic cache key for a piece of text's
// embedding: "embedding:md5(text)".
func EmbeddingKey(text string) string {
	return "embedding:" + hashHex(text)
}

// AnswerKey derives the deterministic cache key for a (query, filters)
// pair: "answer:md5(query | sorted-filters)". Sorting the filters before
// hashing guarantees that permuting filter-insertion order yields the same
// key, per spec.
func AnswerKey(query string, filters []models.Filter) string {
	sorted := make([]models.Filter, len(filters))
	copy(sorted, filters)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Key != sorted[j].Key {
			return sorted[i].Key < sorted[j].Key
		}
		return sorted[i].Value < sorted[j].Value
	})

	var b strings.Builder
	b.WriteString(query)
	b.WriteByte('|')
	for i, f := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.Key)
		b.WriteByte('=')
		b.WriteString(f.Value)
	}

	return "answer:" + hashHex(b.String())
}

func hashHex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
