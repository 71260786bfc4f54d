package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_Defaults(t *testing.T) {
	p := NewProvider("test-key", "", "")
	assert.Equal(t, OpenAIAPIURL, p.baseURL)
	assert.Equal(t, DefaultModel, p.model)
}

func TestProvider_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Authorization"), "Bearer test-key")

		resp := Response{
			Choices: []Choice{{Message: chatMessage{Role: "assistant", Content: "Hi!"}}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewProvider("test-key", server.URL, "gpt-4o")
	text, err := p.Complete(context.Background(), "sys", "user", 100, 0.5)

	require.NoError(t, err)
	assert.Equal(t, "Hi!", text)
}

func TestProvider_Complete_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Response{})
	}))
	defer server.Close()

	p := NewProvider("key", server.URL, "")
	_, err := p.Complete(context.Background(), "sys", "user", 10, 0.1)
	assert.Error(t, err)
}
