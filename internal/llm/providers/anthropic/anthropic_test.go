package anthropic

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
	p := NewProvider("test-api-key", "", "")
	assert.Equal(t, "test-api-key", p.apiKey)
	assert.Equal(t, AnthropicAPIURL, p.baseURL)
	assert.Equal(t, DefaultModel, p.model)
}

func TestProvider_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.NotEmpty(t, r.Header.Get("x-api-key"))
		assert.Equal(t, APIVersion, r.Header.Get("anthropic-version"))

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "You are helpful.", req.System)

		resp := Response{
			Content: []ContentBlock{{Type: "text", Text: "Hello there!"}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewProvider("test-api-key", server.URL, "claude-sonnet-4-20250514")
	text, err := p.Complete(context.Background(), "You are helpful.", "Hi", 100, 0.5)

	require.NoError(t, err)
	assert.Equal(t, "Hello there!", text)
}

func TestProvider_Complete_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p := NewProvider("key", server.URL, "")
	_, err := p.Complete(context.Background(), "sys", "user", 10, 0.1)
	assert.Error(t, err)
}
