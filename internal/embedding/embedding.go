// Package embedding implements the EmbeddingProvider (C2): a
// priority-ordered list of backends, each either a remote HTTP API or a
// local in-process model, tried in order until one returns a vector of
// the expected dimension.
package embedding

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

// Embedder is the capability interface every backend implements. This is
// the small interface spec §9's design notes call for in place of runtime
// dispatch/reflection: a startup-time ordered list, no subclassing.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// maxInputWords truncates on whitespace before embedding, per spec §4.2:
// "the core does NOT re-tokenize semantically — it truncates on
// whitespace."
const maxInputWords = 8192

// Truncate bounds text to maxInputWords whitespace-delimited tokens.
func Truncate(text string) string {
	words := strings.Fields(text)
	if len(words) <= maxInputWords {
		return text
	}
	return strings.Join(words[:maxInputWords], " ")
}

// Provider iterates a priority-ordered list of Embedders, returning the
// first success. On all-fail it returns a zero vector of the expected
// dimension, per spec §4.2.
type Provider struct {
	backends  []Embedder
	dimension int
	logger    *logrus.Entry
}

// New builds a Provider. dimension is the configured index dimension used
// both to validate backend responses and to size the degraded zero
// vector.
func New(dimension int, logger *logrus.Entry, backends ...Embedder) *Provider {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	return &Provider{backends: backends, dimension: dimension, logger: logger}
}

// Embed tries each backend in priority order. The first backend to return
// a vector of the expected dimension wins.
func (p *Provider) Embed(ctx context.Context, text string) []float32 {
	text = Truncate(text)

	for _, b := range p.backends {
		vec, err := b.Embed(ctx, text)
		if err != nil {
			p.logger.WithError(err).WithField("backend", b.Name()).Warn("embedding: backend failed, trying next")
			continue
		}
		if len(vec) != p.dimension {
			p.logger.WithField("backend", b.Name()).
				WithField("got", len(vec)).
				WithField("want", p.dimension).
				Warn("embedding: dimension mismatch, trying next")
			continue
		}
		return vec
	}

	p.logger.Warn("embedding: all providers failed, returning zero vector")
	return make([]float32, p.dimension)
}
