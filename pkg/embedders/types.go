package embedders

import (
	"context"
	"strings"
)

// DefaultMaxInputWords bounds embedding input. Backends reject oversized
// inputs; truncation happens on whitespace, never on semantic boundaries.
const DefaultMaxInputWords = 8192

// Provider is an embedding backend.
type Provider interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Close() error
}

// TruncateWords cuts text to at most maxWords whitespace-separated words.
func TruncateWords(text string, maxWords int) string {
	if maxWords <= 0 {
		return text
	}
	fields := strings.Fields(text)
	if len(fields) <= maxWords {
		return text
	}
	return strings.Join(fields[:maxWords], " ")
}

// ZeroVector returns an all-zero embedding of the given dimension. The
// pipeline treats zero vectors as legitimate but low-signal.
func ZeroVector(dimension int) []float32 {
	return make([]float32, dimension)
}
