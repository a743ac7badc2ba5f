package vector

import (
	"context"
)

// Hit is one nearest-neighbor result. Distance is cosine distance in [0,2].
type Hit struct {
	ID       string
	Text     string
	Metadata map[string]any
	Distance float64
}

// Store abstracts the external ANN service. Mutations happen in the
// ingestion collaborator; the query engine only reads.
type Store interface {
	// Query returns up to limit nearest neighbors of vector, optionally
	// restricted by an exact-match metadata filter.
	Query(ctx context.Context, collection string, vector []float32, filter map[string]any, limit int) ([]Hit, error)

	// Scroll iterates the whole collection. Used to bootstrap the lexical
	// index.
	Scroll(ctx context.Context, collection string) ([]Hit, error)

	Close() error
}

// Similarity translates cosine distance d in [0,2] to a score in [0,1].
func Similarity(distance float64) float64 {
	s := 1 - distance/2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
