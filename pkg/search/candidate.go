package search

import (
	"fmt"
	"sort"
	"strings"
)

// Candidate origins.
const (
	OriginLexical = "lexical"
	OriginVector  = "vector"
	OriginBoth    = "both"
)

// Candidate is a transient retrieval hit. Sub-scores are normalized to
// [0,1] within the current query; a candidate missing from one index keeps
// that score at zero.
type Candidate struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`

	LexicalScore  float64 `json:"lexical_score"`
	VectorScore   float64 `json:"vector_score"`
	CrossScore    float64 `json:"cross_score"`
	CombinedScore float64 `json:"combined_score"`

	// FinalScore is set by the reranker; Reranked marks it valid.
	FinalScore float64 `json:"final_score,omitempty"`
	Reranked   bool    `json:"-"`

	// RelevanceScore is FinalScore when reranked, CombinedScore otherwise.
	RelevanceScore float64 `json:"relevance_score"`

	Origin string `json:"origin"`
}

// Filter is an exact-match metadata filter with AND semantics across keys.
type Filter map[string]any

// Matches reports whether metadata satisfies every filter entry. Values are
// compared by their string rendering, so "5" matches 5.
func (f Filter) Matches(metadata map[string]any) bool {
	for key, want := range f {
		got, ok := metadata[key]
		if !ok {
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// Merge deduplicates candidates from both indexes by document id. A document
// seen by both keeps the MAX of each sub-score, and the combined score is
// recomputed as lexicalWeight*lexical + vectorWeight*vector. Merging is
// idempotent. The result is sorted by combined score descending, document
// id ascending on ties.
func Merge(lexical, vector []Candidate, lexicalWeight, vectorWeight float64) []Candidate {
	byID := make(map[string]*Candidate, len(lexical)+len(vector))
	order := make([]string, 0, len(lexical)+len(vector))

	absorb := func(c Candidate, origin string) {
		existing, ok := byID[c.ID]
		if !ok {
			clone := c
			clone.Origin = origin
			byID[c.ID] = &clone
			order = append(order, c.ID)
			return
		}
		if c.LexicalScore > existing.LexicalScore {
			existing.LexicalScore = c.LexicalScore
		}
		if c.VectorScore > existing.VectorScore {
			existing.VectorScore = c.VectorScore
		}
		if existing.Origin != origin {
			existing.Origin = OriginBoth
		}
		if existing.Text == "" {
			existing.Text = c.Text
		}
		if len(existing.Metadata) == 0 {
			existing.Metadata = c.Metadata
		}
	}

	for _, c := range lexical {
		absorb(c, OriginLexical)
	}
	for _, c := range vector {
		absorb(c, OriginVector)
	}

	merged := make([]Candidate, 0, len(order))
	for _, id := range order {
		c := byID[id]
		c.CombinedScore = lexicalWeight*c.LexicalScore + vectorWeight*c.VectorScore
		merged = append(merged, *c)
	}

	SortByCombined(merged)
	return merged
}

// SortByCombined orders candidates by combined score descending, breaking
// ties by document id so the ordering is stable across runs.
func SortByCombined(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].CombinedScore != candidates[j].CombinedScore {
			return candidates[i].CombinedScore > candidates[j].CombinedScore
		}
		return candidates[i].ID < candidates[j].ID
	})
}

// BoostRule multiplies the combined score of candidates of one document type
// when the query mentions one of the keywords.
type BoostRule struct {
	Keywords     []string
	DocumentType string
	Multiplier   float64
}

// ApplyBoosts applies every matching rule in place, clamping the combined
// score to 1.0, and re-sorts.
func ApplyBoosts(query string, candidates []Candidate, rules []BoostRule) {
	lowered := strings.ToLower(query)

	for _, rule := range rules {
		matched := false
		for _, keyword := range rule.Keywords {
			if strings.Contains(lowered, strings.ToLower(keyword)) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		for i := range candidates {
			docType, _ := candidates[i].Metadata["document_type"].(string)
			if docType != rule.DocumentType {
				continue
			}
			boosted := candidates[i].CombinedScore * rule.Multiplier
			if boosted > 1.0 {
				boosted = 1.0
			}
			candidates[i].CombinedScore = boosted
		}
	}

	SortByCombined(candidates)
}
