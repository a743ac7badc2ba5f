package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ohadalab/sycora/pkg/metrics"
)

// Streaming phase labels and their completion values. Generation chunks
// advance completion in small steps, capped below the final value so the
// complete event is the only thing that reaches 1.0.
const (
	StatusRetrieving = "retrieving"
	StatusAnalyzing  = "analyzing"
	StatusGenerating = "generating"

	CompletionRetrieving = 0.1
	CompletionAnalyzing  = 0.3
	CompletionGenerating = 0.4
	CompletionChunkStep  = 0.01
	CompletionChunkCap   = 0.9
)

// Stream event names.
const (
	EventStart    = "start"
	EventProgress = "progress"
	EventChunk    = "chunk"
	EventComplete = "complete"
	EventError    = "error"
)

// Sink receives the events of a streaming query. A Send error means the
// client is gone and aborts the stream.
type Sink interface {
	Send(event string, payload any) error
}

type startPayload struct {
	QueryID   string    `json:"query_id"`
	Query     string    `json:"query"`
	Timestamp time.Time `json:"timestamp"`
}

type progressPayload struct {
	Status     string  `json:"status"`
	Completion float64 `json:"completion"`
}

type chunkPayload struct {
	Text       string  `json:"text"`
	Completion float64 `json:"completion"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// SearchStream answers a query as a stream of events: start, progress at
// phase boundaries, chunk per generation delta, then complete with the full
// answer. Validation and pipeline errors surface as a terminal error event;
// context cancellation ends the stream without a complete event.
func (e *Engine) SearchStream(ctx context.Context, req *Request, sink Sink) error {
	if err := req.Validate(); err != nil {
		sink.Send(EventError, errorPayload{Error: err.Error()})
		return err
	}

	id := uuid.NewString()
	start := time.Now()
	e.tracker.Begin(id, req.Query)

	if err := sink.Send(EventStart, startPayload{
		QueryID:   id,
		Query:     req.Query,
		Timestamp: start.UTC(),
	}); err != nil {
		e.tracker.Fail(id, err)
		return err
	}

	if req.cacheAllowed() {
		if cached, ok := e.cachedAnswer(ctx, req); ok {
			if err := sink.Send(EventChunk, chunkPayload{
				Text:       cached.Answer,
				Completion: CompletionChunkCap,
			}); err != nil {
				e.tracker.Fail(id, err)
				return err
			}
			e.tracker.Complete(id)
			metrics.QueriesTotal.WithLabelValues(cached.Intent).Inc()
			return sink.Send(EventComplete, cached)
		}
	}

	completion := 0.0
	h := &hooks{
		progress: func(status string, value float64) error {
			completion = value
			e.tracker.Progress(id, value)
			return sink.Send(EventProgress, progressPayload{
				Status:     status,
				Completion: value,
			})
		},
		chunk: func(text string) error {
			if completion+CompletionChunkStep <= CompletionChunkCap {
				completion += CompletionChunkStep
			}
			e.tracker.Progress(id, completion)
			return sink.Send(EventChunk, chunkPayload{
				Text:       text,
				Completion: completion,
			})
		},
	}

	answer, err := e.answer(ctx, id, req, h)
	if err != nil {
		e.tracker.Fail(id, err)
		if ctx.Err() != nil {
			// Client is gone; nobody is listening for an error event.
			return ctx.Err()
		}
		sink.Send(EventError, errorPayload{Error: err.Error()})
		return err
	}

	answer.Performance["total_time_seconds"] = time.Since(start).Seconds()
	metrics.QueryDuration.WithLabelValues("total").Observe(time.Since(start).Seconds())
	metrics.QueriesTotal.WithLabelValues(answer.Intent).Inc()
	e.tracker.Complete(id)
	return sink.Send(EventComplete, answer)
}
