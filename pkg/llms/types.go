package llms

import (
	"context"
)

// Chunk types emitted on a completion stream.
const (
	ChunkTypeText  = "text"
	ChunkTypeDone  = "done"
	ChunkTypeError = "error"
)

// StreamChunk is one element of a streaming completion.
type StreamChunk struct {
	Type string
	Text string
	Err  error
}

// GenerateOptions carries per-call generation parameters. Zero values fall
// back to the provider's configured defaults.
type GenerateOptions struct {
	MaxTokens   int
	Temperature *float64
}

// Provider is a chat-completion backend.
//
// CompleteStream returns a finite, non-restartable sequence of chunks. The
// channel is closed when the stream ends; cancelling ctx terminates the
// underlying request and closes the channel promptly.
type Provider interface {
	Name() string
	Complete(ctx context.Context, system, user string, opts GenerateOptions) (string, error)
	CompleteStream(ctx context.Context, system, user string, opts GenerateOptions) (<-chan StreamChunk, error)
	Close() error
}
