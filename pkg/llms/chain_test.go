package llms

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name   string
	text   string
	err    error
	chunks []StreamChunk
	calls  int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, system, user string, opts GenerateOptions) (string, error) {
	f.calls++
	return f.text, f.err
}

func (f *fakeProvider) CompleteStream(ctx context.Context, system, user string, opts GenerateOptions) (<-chan StreamChunk, error) {
	f.calls++
	ch := make(chan StreamChunk, len(f.chunks))
	for _, chunk := range f.chunks {
		ch <- chunk
	}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) Close() error { return nil }

func collect(t *testing.T, stream <-chan StreamChunk) []StreamChunk {
	t.Helper()
	var chunks []StreamChunk
	for chunk := range stream {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func TestChainCompleteFirstSuccess(t *testing.T) {
	first := &fakeProvider{name: "first", text: "réponse"}
	second := &fakeProvider{name: "second", text: "autre"}
	chain := NewChain([]Provider{first, second})

	text, err := chain.Complete(context.Background(), "sys", "user", GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "réponse", text)
	assert.Zero(t, second.calls, "later providers are not consulted on success")
}

func TestChainCompleteFallsThrough(t *testing.T) {
	first := &fakeProvider{name: "first", err: errors.New("quota exceeded")}
	second := &fakeProvider{name: "second", text: "réponse de secours"}
	chain := NewChain([]Provider{first, second})

	text, err := chain.Complete(context.Background(), "sys", "user", GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "réponse de secours", text)
	assert.Equal(t, 1, first.calls)
}

func TestChainCompleteAllFailReturnsApology(t *testing.T) {
	chain := NewChain([]Provider{
		&fakeProvider{name: "first", err: errors.New("down")},
		&fakeProvider{name: "second", err: errors.New("down too")},
	})

	text, err := chain.Complete(context.Background(), "sys", "user", GenerateOptions{})
	require.NoError(t, err, "degradation is not an error")
	assert.Equal(t, ApologyMessage, text)
}

func TestChainCompleteCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chain := NewChain([]Provider{&fakeProvider{name: "first", err: errors.New("down")}})
	_, err := chain.Complete(ctx, "sys", "user", GenerateOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChainStreamForwardsChunks(t *testing.T) {
	provider := &fakeProvider{name: "first", chunks: []StreamChunk{
		{Type: ChunkTypeText, Text: "Le bilan "},
		{Type: ChunkTypeText, Text: "présente..."},
		{Type: ChunkTypeDone},
	}}
	chain := NewChain([]Provider{provider})

	stream, err := chain.CompleteStream(context.Background(), "sys", "user", GenerateOptions{})
	require.NoError(t, err)

	chunks := collect(t, stream)
	require.Len(t, chunks, 3)
	assert.Equal(t, "Le bilan ", chunks[0].Text)
	assert.Equal(t, ChunkTypeDone, chunks[2].Type)
}

func TestChainStreamRollsOverBeforeFirstText(t *testing.T) {
	failing := &fakeProvider{name: "first", chunks: []StreamChunk{
		{Type: ChunkTypeError, Err: errors.New("connection reset")},
	}}
	backup := &fakeProvider{name: "second", chunks: []StreamChunk{
		{Type: ChunkTypeText, Text: "réponse"},
		{Type: ChunkTypeDone},
	}}
	chain := NewChain([]Provider{failing, backup})

	stream, err := chain.CompleteStream(context.Background(), "sys", "user", GenerateOptions{})
	require.NoError(t, err)

	chunks := collect(t, stream)
	require.Len(t, chunks, 2)
	assert.Equal(t, "réponse", chunks[0].Text)
}

func TestChainStreamCommittedTextEndsStreamOnError(t *testing.T) {
	failing := &fakeProvider{name: "first", chunks: []StreamChunk{
		{Type: ChunkTypeText, Text: "début de réponse"},
		{Type: ChunkTypeError, Err: errors.New("connection reset")},
	}}
	backup := &fakeProvider{name: "second", chunks: []StreamChunk{
		{Type: ChunkTypeText, Text: "ne doit pas apparaître"},
	}}
	chain := NewChain([]Provider{failing, backup})

	stream, err := chain.CompleteStream(context.Background(), "sys", "user", GenerateOptions{})
	require.NoError(t, err)

	chunks := collect(t, stream)
	require.Len(t, chunks, 2)
	assert.Equal(t, "début de réponse", chunks[0].Text)
	assert.Equal(t, ChunkTypeError, chunks[1].Type)
	assert.Zero(t, backup.calls, "no restart once text reached the caller")
}

func TestChainStreamAllFailEmitsApology(t *testing.T) {
	chain := NewChain([]Provider{
		&fakeProvider{name: "first", chunks: []StreamChunk{{Type: ChunkTypeError, Err: errors.New("down")}}},
		&fakeProvider{name: "second", chunks: []StreamChunk{{Type: ChunkTypeError, Err: errors.New("down too")}}},
	})

	stream, err := chain.CompleteStream(context.Background(), "sys", "user", GenerateOptions{})
	require.NoError(t, err)

	chunks := collect(t, stream)
	require.Len(t, chunks, 2)
	assert.Equal(t, ApologyMessage, chunks[0].Text)
	assert.Equal(t, ChunkTypeDone, chunks[1].Type)
}
