// Package generic implements an llm.Provider over any OpenAI-compatible
// chat completions endpoint (self-hosted inference gateways, Ollama's
// OpenAI-compatible shim, etc). Grounded on the teacher pack's practice of
// shipping a "generic" adapter alongside named-vendor adapters
// (internal/llm/providers/generic).
package generic

import (
	"context"
	"time"

	"dev.ohada.ragengine/internal/llm"
	"dev.ohada.ragengine/internal/llm/providers/openai"
)

// Provider wraps openai.Provider against a caller-supplied base URL; the
// wire format of self-hosted OpenAI-compatible gateways is identical, only
// the endpoint and (often absent) auth differ.
type Provider struct {
	inner *openai.Provider
	name  string
}

// New builds a generic adapter. name identifies the backend in logs
// (e.g. "ollama", "vllm", "local").
func New(name, baseURL, apiKey, model string) *Provider {
	if apiKey == "" {
		apiKey = "unused"
	}
	return &Provider{
		inner: openai.NewProviderWithRetry(apiKey, baseURL, model, openai.RetryConfig{
			MaxRetries:   1,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
		}),
		name: name,
	}
}

func (p *Provider) Name() string { return "generic:" + p.name }

func (p *Provider) Complete(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error) {
	return p.inner.Complete(ctx, system, user, maxTokens, temperature)
}

func (p *Provider) CompleteStream(ctx context.Context, system, user string, maxTokens int, temperature float64) (<-chan llm.Chunk, error) {
	return p.inner.CompleteStream(ctx, system, user, maxTokens, temperature)
}
