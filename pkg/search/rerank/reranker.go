package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/ohadalab/sycora/pkg/config"
	"github.com/ohadalab/sycora/pkg/httpclient"
	"github.com/ohadalab/sycora/pkg/logger"
	"github.com/ohadalab/sycora/pkg/search"
)

// Reranker scores (query, passage) pairs with a cross-encoder served over
// HTTP and folds the result into a final score:
//
//	final = lexicalWeight*lexical + vectorWeight*vector + crossWeight*cross
//
// The scoring service is probed lazily on first use; if it is unreachable
// the reranker degrades to a no-op and the merged ordering stands.
type Reranker struct {
	endpoint string
	model    string

	lexicalWeight float64
	vectorWeight  float64
	crossWeight   float64

	client *httpclient.Client
	log    *slog.Logger

	initOnce  sync.Once
	available bool
}

type scoreRequest struct {
	Model    string   `json:"model,omitempty"`
	Query    string   `json:"query"`
	Passages []string `json:"passages"`
}

type scoreResponse struct {
	Scores []float64 `json:"scores"`
}

func New(cfg *config.RerankerConfig) *Reranker {
	return &Reranker{
		endpoint:      cfg.Endpoint,
		model:         cfg.Model,
		lexicalWeight: cfg.LexicalWeight,
		vectorWeight:  cfg.VectorWeight,
		crossWeight:   cfg.CrossWeight,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
			httpclient.WithMaxRetries(1),
		),
		log: logger.For("rerank"),
	}
}

// ensureAvailable probes the scoring service once per process.
func (r *Reranker) ensureAvailable(ctx context.Context) bool {
	r.initOnce.Do(func() {
		if r.endpoint == "" {
			return
		}
		req, err := http.NewRequestWithContext(ctx, "GET", r.endpoint+"/health", nil)
		if err != nil {
			return
		}
		resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
		if err != nil {
			r.log.Warn("cross-encoder unavailable, reranking disabled", "error", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			r.log.Warn("cross-encoder unhealthy, reranking disabled", "status", resp.StatusCode)
			return
		}
		r.available = true
	})
	return r.available
}

// Rerank scores the first topK candidates and sorts them by final score;
// the remainder keeps its pre-rerank order, appended after the reranked
// prefix. topK <= 0 scores the full list. On any failure the input is
// returned unchanged.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []search.Candidate, topK int) []search.Candidate {
	if len(candidates) == 0 || !r.ensureAvailable(ctx) {
		return candidates
	}

	if topK <= 0 || topK > len(candidates) {
		topK = len(candidates)
	}

	prefix := make([]search.Candidate, topK)
	copy(prefix, candidates[:topK])

	passages := make([]string, topK)
	for i, c := range prefix {
		passages[i] = c.Text
	}

	scores, err := r.score(ctx, query, passages)
	if err != nil {
		r.log.Error("cross-encoder scoring failed, keeping merged order", "error", err)
		return candidates
	}
	if len(scores) != topK {
		r.log.Error("cross-encoder returned wrong score count",
			"got", len(scores), "want", topK)
		return candidates
	}

	for i := range prefix {
		prefix[i].CrossScore = clamp01(scores[i])
		prefix[i].FinalScore = r.lexicalWeight*prefix[i].LexicalScore +
			r.vectorWeight*prefix[i].VectorScore +
			r.crossWeight*prefix[i].CrossScore
		prefix[i].Reranked = true
	}

	sort.SliceStable(prefix, func(i, j int) bool {
		if prefix[i].FinalScore != prefix[j].FinalScore {
			return prefix[i].FinalScore > prefix[j].FinalScore
		}
		return prefix[i].ID < prefix[j].ID
	})

	result := make([]search.Candidate, 0, len(candidates))
	result = append(result, prefix...)
	result = append(result, candidates[topK:]...)
	return result
}

func (r *Reranker) score(ctx context.Context, query string, passages []string) ([]float64, error) {
	body, err := json.Marshal(scoreRequest{
		Model:    r.model,
		Query:    query,
		Passages: passages,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.endpoint+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scoring service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed scoreResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode scores: %w", err)
	}
	return parsed.Scores, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
