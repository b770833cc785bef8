package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegistry(t *testing.T) {
	t.Run("full registry", func(t *testing.T) {
		reg, err := ParseRegistry([]byte(`
default: sonnet
models:
  sonnet:
    provider: anthropic
    model: claude-sonnet-4-20250514
    temperature: 0.0
    max_tokens: 2048
  haiku:
    provider: anthropic
    model: claude-haiku-4-20250514
`))
		require.NoError(t, err)

		assert.Equal(t, "sonnet", reg.Default())
		assert.Equal(t, []string{"haiku", "sonnet"}, reg.Names())

		cfg, err := reg.Get("sonnet")
		require.NoError(t, err)
		assert.Equal(t, "claude-sonnet-4-20250514", cfg.Model)
		require.NotNil(t, cfg.Temperature)
		assert.Equal(t, 0.0, *cfg.Temperature)
		assert.Equal(t, 2048, cfg.MaxTokens)
	})

	t.Run("empty name resolves default", func(t *testing.T) {
		reg, err := ParseRegistry([]byte(`
default: haiku
models:
  haiku:
    provider: anthropic
    model: claude-haiku-4-20250514
`))
		require.NoError(t, err)

		cfg, err := reg.Get("")
		require.NoError(t, err)
		assert.Equal(t, "haiku", cfg.Name)
	})

	t.Run("single model becomes implicit default", func(t *testing.T) {
		reg, err := ParseRegistry([]byte(`
models:
  only:
    provider: anthropic
    model: claude-sonnet-4-20250514
`))
		require.NoError(t, err)
		assert.Equal(t, "only", reg.Default())
	})

	t.Run("unknown name lists known models", func(t *testing.T) {
		reg, err := ParseRegistry([]byte(`
models:
  sonnet:
    provider: anthropic
    model: claude-sonnet-4-20250514
`))
		require.NoError(t, err)

		_, err = reg.Get("gpt4")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown model "gpt4"`)
		assert.Contains(t, err.Error(), "sonnet")
	})

	t.Run("missing provider rejected", func(t *testing.T) {
		_, err := ParseRegistry([]byte(`
models:
  broken:
    model: claude-sonnet-4-20250514
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing provider")
	})

	t.Run("missing model id rejected", func(t *testing.T) {
		_, err := ParseRegistry([]byte(`
models:
  broken:
    provider: anthropic
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing model id")
	})

	t.Run("undefined default rejected", func(t *testing.T) {
		_, err := ParseRegistry([]byte(`
default: missing
models:
  sonnet:
    provider: anthropic
    model: claude-sonnet-4-20250514
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), `default model "missing"`)
	})

	t.Run("empty registry rejected", func(t *testing.T) {
		_, err := ParseRegistry([]byte("models: {}\n"))
		require.Error(t, err)
	})

	t.Run("api key env expansion", func(t *testing.T) {
		t.Setenv("TEST_REGISTRY_KEY", "sk-test-123")

		reg, err := ParseRegistry([]byte(`
models:
  sonnet:
    provider: anthropic
    model: claude-sonnet-4-20250514
    api_key: ${TEST_REGISTRY_KEY}
`))
		require.NoError(t, err)

		cfg, err := reg.Get("sonnet")
		require.NoError(t, err)
		assert.Equal(t, "sk-test-123", cfg.APIKey)
	})
}

func TestNewClassifier(t *testing.T) {
	t.Run("anthropic provider", func(t *testing.T) {
		c, err := NewClassifier(ModelConfig{Name: "sonnet", Provider: "anthropic", Model: "claude-sonnet-4-20250514"})
		require.NoError(t, err)
		assert.NotNil(t, c)
	})

	t.Run("unsupported provider", func(t *testing.T) {
		_, err := NewClassifier(ModelConfig{Name: "other", Provider: "openai", Model: "gpt-4"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unsupported provider "openai"`)
	})
}
