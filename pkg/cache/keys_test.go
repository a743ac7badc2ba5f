package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyLayout(t *testing.T) {
	key := Key(NamespaceAnswers, "quel est le plan comptable ?")
	assert.Regexp(t, `^ohada:answers:[0-9a-f]{32}$`, key)
}

func TestAnswerKeyIgnoresFilterOrder(t *testing.T) {
	a := AnswerKey("amortissement", map[string]any{"partie": 2, "chapitre": 5})
	b := AnswerKey("amortissement", map[string]any{"chapitre": 5, "partie": 2})
	assert.Equal(t, a, b)
}

func TestAnswerKeyFiltersChangeKey(t *testing.T) {
	plain := AnswerKey("amortissement", nil)
	filtered := AnswerKey("amortissement", map[string]any{"partie": 2})
	assert.NotEqual(t, plain, filtered)
}

func TestCanonicalFilters(t *testing.T) {
	assert.Equal(t, "", CanonicalFilters(nil))
	assert.Equal(t, "chapitre=5&partie=2", CanonicalFilters(map[string]any{"partie": 2, "chapitre": 5}))
}

func TestEmbeddingKeyNamespace(t *testing.T) {
	assert.Regexp(t, `^ohada:embedding:[0-9a-f]{32}$`, EmbeddingKey("bilan"))
}

func TestNamespacePattern(t *testing.T) {
	assert.Equal(t, "ohada:answers:*", NamespacePattern(NamespaceAnswers))
}
