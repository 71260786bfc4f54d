// Package llm implements the LLMProvider (C3): synchronous and streaming
// chat completion, iterating an ordered provider priority list and
// returning the first success. All-fail degrades to an apology rather
// than an error, per spec §4.3.
package llm

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Chunk is one slice of a streaming completion.
type Chunk struct {
	Text string
	Err  error // non-nil on the final chunk of a failed stream
}

// Provider is the small capability interface every backend implements —
// per spec §9's design note, a startup-time ordered list, not runtime
// dispatch/reflection.
type Provider interface {
	Name() string
	Complete(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error)
	CompleteStream(ctx context.Context, system, user string, maxTokens int, temperature float64) (<-chan Chunk, error)
}

const apologyText = "I'm sorry, I'm unable to answer right now. Please try again shortly."

// Manager iterates Providers in priority order.
type Manager struct {
	providers []Provider
	logger    *logrus.Entry
}

// NewManager builds a Manager over an ordered provider priority list.
func NewManager(logger *logrus.Entry, providers ...Provider) *Manager {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	return &Manager{providers: providers, logger: logger}
}

// Complete tries each provider in order, returning the first success. If
// every provider fails, it returns the apology text and no error — the
// pipeline's happy path must never raise on this degraded case.
func (m *Manager) Complete(ctx context.Context, system, user string, maxTokens int, temperature float64) string {
	for _, p := range m.providers {
		text, err := p.Complete(ctx, system, user, maxTokens, temperature)
		if err != nil {
			m.logger.WithError(err).WithField("provider", p.Name()).Warn("llm: provider failed, trying next")
			continue
		}
		return text
	}
	m.logger.Warn("llm: all providers failed, returning apology")
	return apologyText
}

// CompleteStream tries each provider in order. The first provider whose
// stream opens successfully is used for the whole response — providers
// are not swapped mid-stream. If every provider fails to open a stream,
// a single apology chunk is emitted then the channel closes.
func (m *Manager) CompleteStream(ctx context.Context, system, user string, maxTokens int, temperature float64) <-chan Chunk {
	for _, p := range m.providers {
		ch, err := p.CompleteStream(ctx, system, user, maxTokens, temperature)
		if err != nil {
			m.logger.WithError(err).WithField("provider", p.Name()).Warn("llm: stream open failed, trying next")
			continue
		}
		return ch
	}

	m.logger.Warn("llm: all providers failed to open a stream, returning apology chunk")
	out := make(chan Chunk, 1)
	out <- Chunk{Text: apologyText}
	close(out)
	return out
}
