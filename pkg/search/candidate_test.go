package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterMatches(t *testing.T) {
	metadata := map[string]any{"partie": 2, "document_type": "chapitre"}

	assert.True(t, Filter{}.Matches(metadata))
	assert.True(t, Filter{"partie": 2}.Matches(metadata))
	assert.True(t, Filter{"partie": "2"}.Matches(metadata), "string and int renderings should match")
	assert.True(t, Filter{"partie": 2, "document_type": "chapitre"}.Matches(metadata))

	assert.False(t, Filter{"partie": 3}.Matches(metadata))
	assert.False(t, Filter{"chapitre": 5}.Matches(metadata), "missing key must not match")
	assert.False(t, Filter{"partie": 2, "chapitre": 5}.Matches(metadata), "AND semantics across keys")
}

func TestMergeDeduplicatesWithMaxScores(t *testing.T) {
	lexical := []Candidate{
		{ID: "doc-1", Text: "un", LexicalScore: 0.8},
		{ID: "doc-2", Text: "deux", LexicalScore: 0.4},
	}
	vector := []Candidate{
		{ID: "doc-1", Text: "un", VectorScore: 0.6},
		{ID: "doc-3", Text: "trois", VectorScore: 0.9},
	}

	merged := Merge(lexical, vector, 0.5, 0.5)
	require.Len(t, merged, 3)

	byID := map[string]Candidate{}
	for _, c := range merged {
		byID[c.ID] = c
	}

	both := byID["doc-1"]
	assert.Equal(t, 0.8, both.LexicalScore)
	assert.Equal(t, 0.6, both.VectorScore)
	assert.InDelta(t, 0.7, both.CombinedScore, 1e-9)
	assert.Equal(t, OriginBoth, both.Origin)

	assert.Equal(t, OriginLexical, byID["doc-2"].Origin)
	assert.InDelta(t, 0.2, byID["doc-2"].CombinedScore, 1e-9)
	assert.Equal(t, OriginVector, byID["doc-3"].Origin)
	assert.InDelta(t, 0.45, byID["doc-3"].CombinedScore, 1e-9)

	// Sorted by combined score descending.
	assert.Equal(t, "doc-1", merged[0].ID)
	assert.Equal(t, "doc-3", merged[1].ID)
	assert.Equal(t, "doc-2", merged[2].ID)
}

func TestMergeIsIdempotent(t *testing.T) {
	lexical := []Candidate{
		{ID: "doc-1", LexicalScore: 0.8},
		{ID: "doc-1", LexicalScore: 0.5},
	}

	merged := Merge(lexical, nil, 0.5, 0.5)
	require.Len(t, merged, 1)
	assert.Equal(t, 0.8, merged[0].LexicalScore)
	assert.Equal(t, OriginLexical, merged[0].Origin)
}

func TestMergeTieBreaksByID(t *testing.T) {
	lexical := []Candidate{
		{ID: "doc-b", LexicalScore: 0.5},
		{ID: "doc-a", LexicalScore: 0.5},
	}

	merged := Merge(lexical, nil, 0.5, 0.5)
	require.Len(t, merged, 2)
	assert.Equal(t, "doc-a", merged[0].ID)
	assert.Equal(t, "doc-b", merged[1].ID)
}

func TestApplyBoosts(t *testing.T) {
	rules := []BoostRule{
		{Keywords: []string{"traité", "ohada"}, DocumentType: "presentation", Multiplier: 1.5},
		{Keywords: []string{"amortissement"}, DocumentType: "chapitre", Multiplier: 1.2},
	}

	candidates := []Candidate{
		{ID: "pres", Metadata: map[string]any{"document_type": "presentation"}, CombinedScore: 0.4},
		{ID: "chap", Metadata: map[string]any{"document_type": "chapitre"}, CombinedScore: 0.5},
	}

	ApplyBoosts("Que dit le traité OHADA ?", candidates, rules)

	byID := map[string]Candidate{}
	for _, c := range candidates {
		byID[c.ID] = c
	}
	assert.InDelta(t, 0.6, byID["pres"].CombinedScore, 1e-9)
	assert.InDelta(t, 0.5, byID["chap"].CombinedScore, 1e-9, "non-matching rule leaves score alone")

	// Boost re-sorted the slice.
	assert.Equal(t, "pres", candidates[0].ID)
}

func TestApplyBoostsClampsAtOne(t *testing.T) {
	rules := []BoostRule{
		{Keywords: []string{"ohada"}, DocumentType: "presentation", Multiplier: 1.5},
	}
	candidates := []Candidate{
		{ID: "pres", Metadata: map[string]any{"document_type": "presentation"}, CombinedScore: 0.9},
	}

	ApplyBoosts("institutions ohada", candidates, rules)
	assert.Equal(t, 1.0, candidates[0].CombinedScore)
}

func TestApplyBoostsNoKeywordMatch(t *testing.T) {
	rules := []BoostRule{
		{Keywords: []string{"traité"}, DocumentType: "presentation", Multiplier: 1.5},
	}
	candidates := []Candidate{
		{ID: "pres", Metadata: map[string]any{"document_type": "presentation"}, CombinedScore: 0.4},
	}

	ApplyBoosts("comment enregistrer une facture", candidates, rules)
	assert.Equal(t, 0.4, candidates[0].CombinedScore)
}
