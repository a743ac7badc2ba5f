package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ohadalab/sycora/pkg/cache"
	"github.com/ohadalab/sycora/pkg/config"
	"github.com/ohadalab/sycora/pkg/contextbuilder"
	"github.com/ohadalab/sycora/pkg/intent"
	"github.com/ohadalab/sycora/pkg/llms"
	"github.com/ohadalab/sycora/pkg/logger"
	"github.com/ohadalab/sycora/pkg/metrics"
	"github.com/ohadalab/sycora/pkg/reformulate"
	"github.com/ohadalab/sycora/pkg/search"
	"github.com/ohadalab/sycora/pkg/search/hybrid"
)

// Result count bounds for a single query.
const (
	DefaultResults = 5
	MaxResults     = 20
)

// Generator is the LLM surface the pipeline needs. Satisfied by llms.Chain.
type Generator interface {
	Complete(ctx context.Context, system, user string, opts llms.GenerateOptions) (string, error)
	CompleteStream(ctx context.Context, system, user string, opts llms.GenerateOptions) (<-chan llms.StreamChunk, error)
}

// Retriever is the hybrid retrieval stage.
type Retriever interface {
	SearchHybrid(ctx context.Context, query string, filter search.Filter, k int, rerank bool) ([]search.Candidate, hybrid.Timings, error)
}

// Request is a single query against the knowledge base.
type Request struct {
	Query          string `json:"query"`
	Partie         *int   `json:"partie,omitempty"`
	Chapitre       *int   `json:"chapitre,omitempty"`
	NResults       int    `json:"n_results,omitempty"`
	IncludeSources bool   `json:"include_sources,omitempty"`

	// CacheOK gates the answer cache; nil means allowed.
	CacheOK *bool `json:"cache_ok,omitempty"`
}

func (r *Request) cacheAllowed() bool {
	return r.CacheOK == nil || *r.CacheOK
}

// Validate normalizes the request in place.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return errors.New("query must not be empty")
	}
	if r.NResults == 0 {
		r.NResults = DefaultResults
	}
	if r.NResults < 1 || r.NResults > MaxResults {
		return fmt.Errorf("n_results must be between 1 and %d", MaxResults)
	}
	return nil
}

// Filter translates the structural constraints into an exact-match filter.
func (r *Request) Filter() search.Filter {
	f := search.Filter{}
	if r.Partie != nil {
		f["partie"] = *r.Partie
	}
	if r.Chapitre != nil {
		f["chapitre"] = *r.Chapitre
	}
	if len(f) == 0 {
		return nil
	}
	return f
}

// Answer is the full response to a query.
type Answer struct {
	ID          string                  `json:"id"`
	Query       string                  `json:"query"`
	Answer      string                  `json:"answer"`
	Intent      string                  `json:"intent"`
	Sources     []contextbuilder.Source `json:"sources,omitempty"`
	Performance map[string]float64      `json:"performance"`
	Timestamp   time.Time               `json:"timestamp"`
	Cached      bool                    `json:"cached,omitempty"`
}

// Engine runs the full query pipeline: cache check, intent routing,
// reformulation, hybrid retrieval, context assembly and generation.
type Engine struct {
	llm          Generator
	classifier   *intent.Classifier
	reformulator *reformulate.Reformulator
	retriever    Retriever
	builder      *contextbuilder.Builder
	store        *cache.Store
	tracker      *Tracker
	log          *slog.Logger
}

func New(
	llm Generator,
	classifier *intent.Classifier,
	reformulator *reformulate.Reformulator,
	retriever Retriever,
	builder *contextbuilder.Builder,
	store *cache.Store,
) *Engine {
	return &Engine{
		llm:          llm,
		classifier:   classifier,
		reformulator: reformulator,
		retriever:    retriever,
		builder:      builder,
		store:        store,
		tracker:      NewTracker(),
		log:          logger.For("engine"),
	}
}

// Tracker exposes query progress for the status endpoint.
func (e *Engine) Tracker() *Tracker {
	return e.tracker
}

// CacheStats exposes cache effectiveness for the health endpoint.
func (e *Engine) CacheStats() cache.Stats {
	if e.store == nil {
		return cache.Stats{}
	}
	return e.store.Stats()
}

// Search answers a query synchronously.
func (e *Engine) Search(ctx context.Context, req *Request) (*Answer, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	start := time.Now()
	e.tracker.Begin(id, req.Query)

	if req.cacheAllowed() {
		if cached, ok := e.cachedAnswer(ctx, req); ok {
			e.tracker.Complete(id)
			metrics.QueriesTotal.WithLabelValues(cached.Intent).Inc()
			return cached, nil
		}
	}

	answer, err := e.answer(ctx, id, req, nil)
	if err != nil {
		e.tracker.Fail(id, err)
		return nil, err
	}

	answer.Performance["total_time_seconds"] = time.Since(start).Seconds()
	metrics.QueryDuration.WithLabelValues("total").Observe(time.Since(start).Seconds())
	metrics.QueriesTotal.WithLabelValues(answer.Intent).Inc()
	e.tracker.Complete(id)
	return answer, nil
}

// cachedAnswer probes the answer cache. A hit is replayed with its original
// id and sources, flagged as cached.
func (e *Engine) cachedAnswer(ctx context.Context, req *Request) (*Answer, bool) {
	if e.store == nil {
		return nil, false
	}
	data, ok := e.store.GetAnswer(ctx, req.Query, req.Filter())
	if !ok {
		return nil, false
	}

	var answer Answer
	if err := json.Unmarshal(data, &answer); err != nil {
		e.log.Warn("discarding unreadable cached answer", "error", err)
		return nil, false
	}
	answer.Cached = true
	if !req.IncludeSources {
		answer.Sources = nil
	}
	return &answer, true
}

// hooks lets the streaming path observe the pipeline: progress is called at
// phase boundaries, chunk receives generation deltas as they arrive.
type hooks struct {
	progress func(status string, completion float64) error
	chunk    func(text string) error
}

func (h *hooks) onProgress(status string, completion float64) error {
	if h == nil || h.progress == nil {
		return nil
	}
	return h.progress(status, completion)
}

func (h *hooks) onChunk() func(text string) error {
	if h == nil {
		return nil
	}
	return h.chunk
}

// answer runs the post-cache pipeline. With non-nil hooks the final
// generation is streamed through them instead of returned in one piece.
func (e *Engine) answer(ctx context.Context, id string, req *Request, h *hooks) (*Answer, error) {
	performance := map[string]float64{}

	if err := h.onProgress(StatusRetrieving, CompletionRetrieving); err != nil {
		return nil, err
	}

	intentStart := time.Now()
	cls := e.classifier.Classify(ctx, req.Query)
	performance["intent_time_seconds"] = time.Since(intentStart).Seconds()
	e.log.Info("query classified",
		"intent", cls.Intent, "confidence", cls.Confidence, "heuristic", cls.Heuristic)

	answer := &Answer{
		ID:          id,
		Query:       req.Query,
		Intent:      cls.Intent,
		Performance: performance,
		Timestamp:   time.Now().UTC(),
	}

	// Conversational intents bypass retrieval entirely.
	if reply, ok := e.classifier.DirectReply(ctx, req.Query, cls); ok {
		answer.Answer = reply
		if fn := h.onChunk(); fn != nil {
			if err := fn(reply); err != nil {
				return nil, err
			}
		}
		return answer, nil
	}

	reformStart := time.Now()
	searchQuery := e.reformulator.Reformulate(ctx, req.Query)
	performance["reformulation_time_seconds"] = time.Since(reformStart).Seconds()

	searchStart := time.Now()
	candidates, timings, err := e.retriever.SearchHybrid(ctx, searchQuery, req.Filter(), req.NResults, true)
	performance["search_time_seconds"] = time.Since(searchStart).Seconds()
	metrics.QueryDuration.WithLabelValues("search").Observe(performance["search_time_seconds"])
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	for phase, seconds := range timings {
		performance[phase] = seconds
	}

	if err := h.onProgress(StatusAnalyzing, CompletionAnalyzing); err != nil {
		return nil, err
	}

	contextStart := time.Now()
	contextText := e.builder.Summarize(candidates)
	performance["context_time_seconds"] = time.Since(contextStart).Seconds()

	if err := h.onProgress(StatusGenerating, CompletionGenerating); err != nil {
		return nil, err
	}

	generationStart := time.Now()
	text, cacheable, err := e.generate(ctx, req.Query, contextText, h.onChunk())
	performance["generation_time_seconds"] = time.Since(generationStart).Seconds()
	metrics.QueryDuration.WithLabelValues("generation").Observe(performance["generation_time_seconds"])
	if err != nil {
		return nil, err
	}
	answer.Answer = text

	if req.IncludeSources {
		answer.Sources = contextbuilder.PrepareSources(candidates)
	}

	if cacheable && req.cacheAllowed() && e.store != nil {
		cached := *answer
		cached.Sources = contextbuilder.PrepareSources(candidates)
		if data, err := json.Marshal(&cached); err == nil {
			e.store.PutAnswer(ctx, req.Query, req.Filter(), data)
		}
	}

	return answer, nil
}

// generate produces the final answer text. The second return value reports
// whether the text is a real generation worth caching, as opposed to a
// degraded fallback message.
func (e *Engine) generate(ctx context.Context, query, contextText string, onChunk func(text string) error) (string, bool, error) {
	opts := llms.GenerateOptions{MaxTokens: 1500, Temperature: config.Float64Ptr(0.4)}
	prompt := answerPrompt(query, contextText)

	if onChunk != nil {
		return e.generateStream(ctx, prompt, opts, onChunk)
	}

	text, err := e.llm.Complete(ctx, generationSystemPrompt, prompt, opts)
	if err != nil {
		e.log.Warn("generation failed, retrying with simplified prompt", "error", err)
		text, err = e.llm.Complete(ctx, generationSystemPrompt,
			fmt.Sprintf(fallbackPromptTemplate, query, contextText), opts)
	}
	if err != nil || strings.TrimSpace(text) == "" {
		if contextText == "" {
			return noResultsMessage, false, nil
		}
		return generationFailureMessage, false, nil
	}
	if text == llms.ApologyMessage {
		return text, false, nil
	}
	return text, true, nil
}

func (e *Engine) generateStream(ctx context.Context, prompt string, opts llms.GenerateOptions, onChunk func(text string) error) (string, bool, error) {
	stream, err := e.llm.CompleteStream(ctx, generationSystemPrompt, prompt, opts)
	if err != nil {
		return generationFailureMessage, false, nil
	}

	var sb strings.Builder
	for chunk := range stream {
		switch chunk.Type {
		case llms.ChunkTypeText:
			sb.WriteString(chunk.Text)
			if err := onChunk(chunk.Text); err != nil {
				return "", false, err
			}
		case llms.ChunkTypeError:
			if sb.Len() > 0 {
				// Partial answer already delivered; keep what we have.
				e.log.Warn("stream ended with error after partial output", "error", chunk.Err)
				return sb.String(), false, nil
			}
			return generationFailureMessage, false, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return generationFailureMessage, false, nil
	}
	if text == llms.ApologyMessage {
		return text, false, nil
	}
	return text, true, nil
}
