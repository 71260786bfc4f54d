// Package openai implements an llm.Provider over the OpenAI chat
// completions API. Grounded on the teacher's internal/llm/providers/openai
// test suite shape, generalized to the llm.Provider interface.
package openai

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
	OpenAIAPIURL = "https://api.openai.com/v1/chat/completions"
	DefaultModel = "gpt-4o-mini"
)

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
		baseURL = OpenAIAPIURL
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

func (p *Provider) Name() string { return "openai:" + p.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream,omitempty"`
}

type Choice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type Response struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

func (p *Provider) buildRequest(ctx context.Context, system, user string, maxTokens int, temperature float64, stream bool) (*http.Request, error) {
	req := Request{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Stream:      stream,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	return httpReq, nil
}

func (p *Provider) Complete(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error) {
	httpReq, err := p.buildRequest(ctx, system, user, maxTokens, temperature, false)
	if err != nil {
		return "", err
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai request failed: status %d", resp.StatusCode)
	}

	var parsed Response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("openai response had no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// CompleteStream consumes OpenAI's SSE stream ("data: {...}" records,
// terminated by "data: [DONE]") and forwards each delta as a Chunk.
func (p *Provider) CompleteStream(ctx context.Context, system, user string, maxTokens int, temperature float64) (<-chan llm.Chunk, error) {
	httpReq, err := p.buildRequest(ctx, system, user, maxTokens, temperature, true)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai stream request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("openai stream request failed: status %d", resp.StatusCode)
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
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				return
			}

			var delta struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
				} `json:"choices"`
			}
			if err := json.Unmarshal([]byte(payload), &delta); err != nil {
				continue
			}
			if len(delta.Choices) == 0 || delta.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case out <- llm.Chunk{Text: delta.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
