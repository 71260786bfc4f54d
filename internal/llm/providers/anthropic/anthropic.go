// Package anthropic implements an llm.Provider over the Anthropic Messages
// API. Grounded on the teacher's internal/llm/providers/anthropic test
// suite (request/response shapes, x-api-key/anthropic-version headers,
// retry config).
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dev.ohada.ragengine/internal/llm"
)

const (
	AnthropicAPIURL = "https://api.anthropic.com/v1/messages"
	APIVersion      = "2023-06-01"
	DefaultModel    = "claude-sonnet-4-20250514"
)

// RetryConfig holds retry/backoff settings. The Provider stores it, but
// Complete and CompleteStream each make a single HTTP request and return
// any failure to the caller; no retry is attempted.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2.0}
}

type Provider struct {
	apiKey      string
	baseURL     string
	model       string
	retryConfig RetryConfig
	httpClient  *http.Client
}

func NewProvider(apiKey, baseURL, model string) *Provider {
	return NewProviderWithRetry(apiKey, baseURL, model, DefaultRetryConfig())
}

func NewProviderWithRetry(apiKey, baseURL, model string, retry RetryConfig) *Provider {
	if baseURL == "" {
		baseURL = AnthropicAPIURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Provider{
		apiKey:      apiKey,
		baseURL:     baseURL,
		model:       model,
		retryConfig: retry,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *Provider) Name() string { return "anthropic:" + p.model }

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Model     string    `json:"model"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
	Temp      float64   `json:"temperature"`
	Stream    bool      `json:"stream,omitempty"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type Response struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

func (p *Provider) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", APIVersion)
	return httpReq, nil
}

func (p *Provider) Complete(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error) {
	req := Request{
		Model:     p.model,
		System:    system,
		Messages:  []Message{{Role: "user", Content: user}},
		MaxTokens: maxTokens,
		Temp:      temperature,
	}

	httpReq, err := p.newRequest(ctx, req)
	if err != nil {
		return "", err
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anthropic request failed: status %d", resp.StatusCode)
	}

	var parsed Response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode anthropic response: %w", err)
	}

	var b strings.Builder
	for _, block := range parsed.Content {
		b.WriteString(block.Text)
	}
	return b.String(), nil
}

// CompleteStream consumes Anthropic's SSE stream (event: content_block_delta
// records) and forwards each text delta as a Chunk.
func (p *Provider) CompleteStream(ctx context.Context, system, user string, maxTokens int, temperature float64) (<-chan llm.Chunk, error) {
	req := Request{
		Model:     p.model,
		System:    system,
		Messages:  []Message{{Role: "user", Content: user}},
		MaxTokens: maxTokens,
		Temp:      temperature,
		Stream:    true,
	}

	httpReq, err := p.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic stream request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("anthropic stream request failed: status %d", resp.StatusCode)
	}

	out := make(chan llm.Chunk)
	go func() {
		defer resp.Body.Close()
		defer close(out)

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var delta struct {
				Delta struct {
					Text string `json:"text"`
				} `json:"delta"`
			}
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &delta); err != nil {
				continue
			}
			if delta.Delta.Text == "" {
				continue
			}
			select {
			case out <- llm.Chunk{Text: delta.Delta.Text}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
