package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_SubstitutesEnvAndDefaults(t *testing.T) {
	t.Setenv("OPENAI_TEST_KEY", "sk-test-123")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
environment: test
providers:
  priority: [openai, anthropic]
  providers:
    openai:
      type: openai
      api_key_env: OPENAI_TEST_KEY
      models:
        response: gpt-4o-mini
cache:
  redis_url: "redis://localhost:6379"
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, EnvTest, cfg.Environment)
	assert.Equal(t, "sk-test-123", cfg.Providers.Providers["openai"].APIKey)
	assert.Equal(t, 100, cfg.Cache.L1Capacity)
	assert.Equal(t, DefaultAssistantPersonality(), cfg.Persona)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestDefaultAssistantPersonality(t *testing.T) {
	p := DefaultAssistantPersonality()
	assert.Equal(t, "Expert OHADA", p.Name)
	assert.Equal(t, 600, p.MaxTokens)
	assert.Equal(t, 0.7, p.Temp)
}
