package embedders

import (
	"context"
	"log/slog"

	"github.com/ohadalab/sycora/pkg/config"
	"github.com/ohadalab/sycora/pkg/logger"
	"github.com/ohadalab/sycora/pkg/metrics"
	"github.com/ohadalab/sycora/pkg/registry"
)

// Chain iterates an ordered embedder list. The first backend that returns a
// vector of the expected dimension wins. When every backend fails, Embed
// degrades to a zero vector of the configured dimension.
type Chain struct {
	providers []Provider
	dimension int
	log       *slog.Logger
}

// NewChain builds a chain over providers, tried in the given order.
// dimension is the index dimension every returned vector must match.
func NewChain(providers []Provider, dimension int) *Chain {
	return &Chain{
		providers: providers,
		dimension: dimension,
		log:       logger.For("embedders"),
	}
}

// NewChainFromConfig instantiates every enabled embedding provider in the
// configured priority order.
func NewChainFromConfig(cfg *config.ProvidersConfig, dimension int) (*Chain, error) {
	reg := registry.New[Provider]()

	for _, name := range cfg.EmbeddingPriorityList() {
		pc := cfg.Providers[name]
		if pc.EmbeddingModel() == "" {
			continue
		}
		embedder, err := NewOpenAIEmbedder(name, pc)
		if err != nil {
			logger.For("embedders").Warn("skipping embedding provider", "provider", name, "error", err)
			continue
		}
		if err := reg.Register(name, embedder); err != nil {
			return nil, err
		}
	}

	return NewChain(reg.List(), dimension), nil
}

func (c *Chain) Name() string {
	return "chain"
}

// Dimension returns the expected vector dimension.
func (c *Chain) Dimension() int {
	return c.dimension
}

// Embed returns the first well-dimensioned embedding from the priority list,
// or a zero vector when all backends fail.
func (c *Chain) Embed(ctx context.Context, text string) ([]float32, error) {
	for _, p := range c.providers {
		vector, err := p.Embed(ctx, text)
		if err == nil && len(vector) == c.dimension {
			return vector, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			c.log.Error("embedding failed", "provider", p.Name(), "error", err)
		} else {
			c.log.Error("embedding dimension mismatch",
				"provider", p.Name(), "got", len(vector), "want", c.dimension)
		}
		metrics.ProviderFailures.WithLabelValues(p.Name(), "embedding").Inc()
	}

	metrics.ProviderFallbacks.WithLabelValues("embedding").Inc()
	c.log.Error("all embedding providers failed, returning zero vector", "dimension", c.dimension)
	return ZeroVector(c.dimension), nil
}

// Close closes every provider in the chain.
func (c *Chain) Close() error {
	var firstErr error
	for _, p := range c.providers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
