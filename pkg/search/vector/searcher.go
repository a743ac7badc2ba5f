package vector

import (
	"context"

	"github.com/ohadalab/sycora/pkg/search"
	"github.com/ohadalab/sycora/pkg/search/lexical"
)

// Searcher turns raw ANN hits into scored retrieval candidates.
type Searcher struct {
	store Store
}

func NewSearcher(store Store) *Searcher {
	return &Searcher{store: store}
}

// Search returns up to 2k candidates for the query vector. Distances are
// translated to similarity scores; filters are pushed down to the store.
func (s *Searcher) Search(ctx context.Context, corpus string, queryVector []float32, filter search.Filter, k int) ([]search.Candidate, error) {
	hits, err := s.store.Query(ctx, corpus, queryVector, filter, 2*k)
	if err != nil {
		return nil, err
	}

	candidates := make([]search.Candidate, 0, len(hits))
	for _, hit := range hits {
		candidates = append(candidates, search.Candidate{
			ID:          hit.ID,
			Text:        hit.Text,
			Metadata:    hit.Metadata,
			VectorScore: Similarity(hit.Distance),
			Origin:      search.OriginVector,
		})
	}
	return candidates, nil
}

// CorpusLoader adapts the store's scroll to the lexical index's loader
// contract, so both indexes serve the same corpus.
type CorpusLoader struct {
	store Store
}

func NewCorpusLoader(store Store) *CorpusLoader {
	return &CorpusLoader{store: store}
}

func (l *CorpusLoader) LoadCorpus(ctx context.Context, corpus string) ([]lexical.Document, error) {
	hits, err := l.store.Scroll(ctx, corpus)
	if err != nil {
		return nil, err
	}

	docs := make([]lexical.Document, 0, len(hits))
	for _, hit := range hits {
		docs = append(docs, lexical.Document{
			ID:       hit.ID,
			Text:     hit.Text,
			Metadata: hit.Metadata,
		})
	}
	return docs, nil
}
