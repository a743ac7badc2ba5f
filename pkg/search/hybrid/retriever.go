package hybrid

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ohadalab/sycora/pkg/cache"
	"github.com/ohadalab/sycora/pkg/config"
	"github.com/ohadalab/sycora/pkg/logger"
	"github.com/ohadalab/sycora/pkg/search"
)

// LexicalSearcher is the BM25 side of the fan-out.
type LexicalSearcher interface {
	Search(ctx context.Context, corpus, query string, filter search.Filter, k int) ([]search.Candidate, error)
}

// VectorSearcher is the dense side of the fan-out.
type VectorSearcher interface {
	Search(ctx context.Context, corpus string, queryVector []float32, filter search.Filter, k int) ([]search.Candidate, error)
}

// Embedder produces the query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Reranker reorders the merged candidates. A nil Reranker disables the step.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []search.Candidate, topK int) []search.Candidate
}

// Enricher attaches canonical metadata. A nil Enricher disables the step.
type Enricher interface {
	Enrich(ctx context.Context, candidates []search.Candidate) []search.Candidate
}

// Retriever fans a query out over the lexical and vector indexes in
// parallel, merges and deduplicates the hits, applies domain boosts,
// optionally reranks, and enriches the winners.
type Retriever struct {
	lexical  LexicalSearcher
	vector   VectorSearcher
	embedder Embedder
	reranker Reranker
	enricher Enricher
	store    *cache.Store

	corpus        string
	lexicalWeight float64
	vectorWeight  float64
	boostRules    []search.BoostRule

	log *slog.Logger
}

// Timings carries per-phase durations in seconds.
type Timings map[string]float64

func New(
	lexical LexicalSearcher,
	vector VectorSearcher,
	embedder Embedder,
	reranker Reranker,
	enricher Enricher,
	store *cache.Store,
	corpus string,
	cfg *config.RetrieverConfig,
) *Retriever {
	rules := make([]search.BoostRule, 0, len(cfg.BoostRules))
	for _, rule := range cfg.BoostRules {
		rules = append(rules, search.BoostRule{
			Keywords:     rule.Keywords,
			DocumentType: rule.DocumentType,
			Multiplier:   rule.Multiplier,
		})
	}

	return &Retriever{
		lexical:       lexical,
		vector:        vector,
		embedder:      embedder,
		reranker:      reranker,
		enricher:      enricher,
		store:         store,
		corpus:        corpus,
		lexicalWeight: cfg.LexicalWeight,
		vectorWeight:  cfg.VectorWeight,
		boostRules:    rules,
		log:           logger.For("hybrid"),
	}
}

// SearchHybrid runs the full retrieval stage and returns the top k
// candidates with relevance scores set. A failing sub-search contributes
// zero candidates; only context cancellation aborts the call.
func (r *Retriever) SearchHybrid(ctx context.Context, query string, filter search.Filter, k int, rerank bool) ([]search.Candidate, Timings, error) {
	// Each goroutine writes only its own result and duration slot; the
	// timings map is assembled after Wait.
	var (
		lexResults []search.Candidate
		vecResults []search.Candidate

		embedSeconds, lexSeconds, vecSeconds float64
		vectorRan                            bool
	)

	embedCh := make(chan []float32, 1)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(embedCh)
		start := time.Now()
		vector, err := r.embedQuery(gctx, query)
		embedSeconds = time.Since(start).Seconds()
		if err != nil {
			r.log.Error("query embedding failed", "error", err)
			return nil
		}
		embedCh <- vector
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		results, err := r.lexical.Search(gctx, r.corpus, query, filter, k)
		lexSeconds = time.Since(start).Seconds()
		if err != nil {
			r.log.Error("lexical search failed", "error", err)
			return nil
		}
		lexResults = results
		return nil
	})

	g.Go(func() error {
		vector, ok := <-embedCh
		if !ok || len(vector) == 0 {
			return nil
		}
		vectorRan = true
		start := time.Now()
		results, err := r.vector.Search(gctx, r.corpus, vector, filter, k)
		vecSeconds = time.Since(start).Seconds()
		if err != nil {
			r.log.Error("vector search failed", "error", err)
			return nil
		}
		vecResults = results
		return nil
	})

	waitErr := g.Wait()

	timings := Timings{
		"embedding_time_seconds": embedSeconds,
		"lexical_time_seconds":   lexSeconds,
	}
	if vectorRan {
		timings["vector_time_seconds"] = vecSeconds
	}

	if waitErr != nil {
		return nil, timings, waitErr
	}
	if err := ctx.Err(); err != nil {
		return nil, timings, err
	}

	merged := search.Merge(lexResults, vecResults, r.lexicalWeight, r.vectorWeight)
	search.ApplyBoosts(query, merged, r.boostRules)

	if rerank && r.reranker != nil && len(merged) > 0 {
		topN := 2 * k
		if topN > len(merged) {
			topN = len(merged)
		}
		start := time.Now()
		merged = r.reranker.Rerank(ctx, query, merged, topN)
		timings["rerank_time_seconds"] = time.Since(start).Seconds()
	}

	if len(merged) > k {
		merged = merged[:k]
	}

	for i := range merged {
		if merged[i].Reranked {
			merged[i].RelevanceScore = merged[i].FinalScore
		} else {
			merged[i].RelevanceScore = merged[i].CombinedScore
		}
	}

	if r.enricher != nil && len(merged) > 0 {
		start := time.Now()
		merged = r.enricher.Enrich(ctx, merged)
		timings["enrichment_time_seconds"] = time.Since(start).Seconds()
	}

	return merged, timings, nil
}

// embedQuery resolves the query vector through the cache cascade before
// falling back to the embedding chain.
func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if r.store != nil {
		if vector, tier, ok := r.store.GetEmbedding(ctx, query); ok {
			r.log.Debug("query embedding cache hit", "tier", tier)
			return vector, nil
		}
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	if r.store != nil {
		r.store.PutEmbedding(ctx, query, vector)
	}
	return vector, nil
}
