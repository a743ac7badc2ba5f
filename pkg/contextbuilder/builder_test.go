package contextbuilder

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohadalab/sycora/pkg/search"
)

func TestSummarizeRendersHeaders(t *testing.T) {
	b := New(1800)

	out := b.Summarize([]search.Candidate{
		{
			ID:             "doc-1",
			Text:           "L'amortissement est la répartition du coût d'une immobilisation.",
			RelevanceScore: 0.92,
			Metadata:       map[string]any{"title": "Amortissements", "document_type": "chapitre"},
		},
		{
			ID:             "doc-2",
			Text:           "Le bilan présente l'actif et le passif.",
			RelevanceScore: 0.75,
		},
	})

	assert.Contains(t, out, "Document 1 (score: 0.92):")
	assert.Contains(t, out, "Titre: Amortissements")
	assert.Contains(t, out, "Type: chapitre")
	assert.Contains(t, out, "Document 2 (score: 0.75):")
	assert.NotContains(t, out, "Titre: \n", "missing metadata lines are omitted")
}

func TestSummarizeEmptyCandidates(t *testing.T) {
	b := New(1800)
	assert.Empty(t, b.Summarize(nil))
}

func TestSummarizeRespectsBudget(t *testing.T) {
	// Budget of 100 tokens = 400 characters.
	b := New(100)

	long := strings.Repeat("Une phrase sur la comptabilité. ", 30)
	out := b.Summarize([]search.Candidate{
		{ID: "doc-1", Text: long, RelevanceScore: 0.9},
		{ID: "doc-2", Text: long, RelevanceScore: 0.8},
		{ID: "doc-3", Text: long, RelevanceScore: 0.7},
	})

	assert.LessOrEqual(t, len(out), 400)
	assert.Contains(t, out, "Document 1", "first document contributes a truncated prefix")
	assert.NotContains(t, out, "Document 3", "documents past the budget are dropped")
}

func TestSummarizeTruncatesAtSentenceBoundary(t *testing.T) {
	b := New(30)

	out := b.Summarize([]search.Candidate{
		{ID: "doc-1", Text: "Première phrase courte. Seconde phrase nettement plus longue qui dépasse le budget disponible largement.", RelevanceScore: 0.9},
	})

	require.NotEmpty(t, out)
	assert.Contains(t, out, "Première phrase courte.")
	assert.NotContains(t, out, "largement")
}

func TestTruncateAtSentenceKeepsRunesWhole(t *testing.T) {
	// No sentence boundary, and the byte limit lands inside a two-byte rune.
	s := strings.Repeat("é", 40)
	out := truncateAtSentence(s, 33)

	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, strings.Repeat("é", 16)+"\n", out)
}

func TestPrepareSources(t *testing.T) {
	long := strings.Repeat("a", 200)
	sources := PrepareSources([]search.Candidate{
		{ID: "doc-1", Text: long, RelevanceScore: 0.9, Metadata: map[string]any{"title": "Bilan"}},
		{ID: "doc-2", Text: "court", RelevanceScore: 0.5},
	})

	require.Len(t, sources, 2)
	assert.Equal(t, "doc-1", sources[0].ID)
	assert.Equal(t, 0.9, sources[0].Score)
	assert.Len(t, sources[0].Preview, 153, "150 chars plus ellipsis")
	assert.True(t, strings.HasSuffix(sources[0].Preview, "..."))
	assert.Equal(t, "court", sources[1].Preview)
	assert.Equal(t, "Bilan", sources[0].Metadata["title"])
}
