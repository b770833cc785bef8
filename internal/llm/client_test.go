package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySystemPrompt(t *testing.T) {
	assert.Contains(t, classifySystemPrompt, `"false positive"`)
	assert.Contains(t, classifySystemPrompt, `"need fixing"`)
	assert.Contains(t, classifySystemPrompt, `"very serious"`)
	assert.Contains(t, classifySystemPrompt, `"classification"`)
	assert.Contains(t, classifySystemPrompt, `"explanation"`)
	assert.Contains(t, classifySystemPrompt, "JSON")
}

func TestParseVerdict(t *testing.T) {
	t.Run("plain JSON", func(t *testing.T) {
		v, err := parseVerdict(`{"classification": "false positive", "explanation": "guarded by the if above"}`)
		require.NoError(t, err)
		assert.Equal(t, "false positive", v.Classification)
		assert.Equal(t, "guarded by the if above", v.Explanation)
	})

	t.Run("fenced JSON", func(t *testing.T) {
		v, err := parseVerdict("```json\n{\"classification\": \"need fixing\", \"explanation\": \"leak on early return\"}\n```")
		require.NoError(t, err)
		assert.Equal(t, "need fixing", v.Classification)
	})

	t.Run("surrounding whitespace", func(t *testing.T) {
		v, err := parseVerdict("\n\n  {\"classification\": \"very serious\", \"explanation\": \"\"}  \n")
		require.NoError(t, err)
		assert.Equal(t, "very serious", v.Classification)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := parseVerdict("the issue looks like a false positive to me")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse LLM response as JSON")
	})

	t.Run("missing classification field", func(t *testing.T) {
		_, err := parseVerdict(`{"explanation": "no verdict"}`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing classification")
	})
}
