package lexical

import (
	"math"
	"strings"
	"unicode"
)

// BM25-Okapi parameters.
const (
	k1 = 1.5
	b  = 0.75
)

// Document is one indexed passage.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// Index is an in-memory BM25-Okapi index over one corpus.
type Index struct {
	Docs      []Document
	TermFreqs []map[string]int
	DocFreq   map[string]int
	DocLens   []int
	AvgDocLen float64
}

// Tokenize lower-cases and splits on any non-letter, non-digit rune. The
// same tokenizer is applied to documents and queries.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Build constructs an index over the given documents.
func Build(docs []Document) *Index {
	idx := &Index{
		Docs:      docs,
		TermFreqs: make([]map[string]int, len(docs)),
		DocFreq:   make(map[string]int),
		DocLens:   make([]int, len(docs)),
	}

	totalLen := 0
	for i, doc := range docs {
		tokens := Tokenize(doc.Text)
		freqs := make(map[string]int, len(tokens))
		for _, token := range tokens {
			freqs[token]++
		}
		idx.TermFreqs[i] = freqs
		idx.DocLens[i] = len(tokens)
		totalLen += len(tokens)

		for token := range freqs {
			idx.DocFreq[token]++
		}
	}

	if len(docs) > 0 {
		idx.AvgDocLen = float64(totalLen) / float64(len(docs))
	}

	return idx
}

// Scores computes the raw BM25 score of every document for the query tokens.
func (idx *Index) Scores(queryTokens []string) []float64 {
	scores := make([]float64, len(idx.Docs))
	n := float64(len(idx.Docs))
	if n == 0 {
		return scores
	}

	for _, token := range queryTokens {
		df, ok := idx.DocFreq[token]
		if !ok {
			continue
		}
		idf := math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1)

		for i := range idx.Docs {
			tf := float64(idx.TermFreqs[i][token])
			if tf == 0 {
				continue
			}
			norm := 1 - b + b*float64(idx.DocLens[i])/idx.AvgDocLen
			scores[i] += idf * tf * (k1 + 1) / (tf + k1*norm)
		}
	}

	return scores
}
