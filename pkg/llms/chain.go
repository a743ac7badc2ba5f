package llms

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ohadalab/sycora/pkg/config"
	"github.com/ohadalab/sycora/pkg/logger"
	"github.com/ohadalab/sycora/pkg/metrics"
	"github.com/ohadalab/sycora/pkg/registry"
)

// ApologyMessage is the user-facing degradation answer when every provider
// in the priority list has failed.
const ApologyMessage = "Désolé, une erreur est survenue lors de la génération de la réponse. " +
	"Veuillez vérifier vos clés API et réessayer ultérieurement."

// Chain iterates an ordered provider list and returns the first success.
// It never fails outright: when every provider errors, Complete returns the
// apology message and CompleteStream yields a single apology chunk.
type Chain struct {
	providers []Provider
	log       *slog.Logger
}

// NewChain builds a chain over providers, tried in the given order.
func NewChain(providers []Provider) *Chain {
	return &Chain{
		providers: providers,
		log:       logger.For("llms"),
	}
}

// NewChainFromConfig instantiates every enabled provider in the configured
// priority order. Providers that fail to construct (missing API key) are
// skipped with a warning.
func NewChainFromConfig(cfg *config.ProvidersConfig) (*Chain, error) {
	reg := registry.New[Provider]()

	for _, name := range cfg.PriorityList() {
		pc := cfg.Providers[name]
		provider, err := NewOpenAIProvider(name, pc)
		if err != nil {
			logger.For("llms").Warn("skipping LLM provider", "provider", name, "error", err)
			continue
		}
		if err := reg.Register(name, provider); err != nil {
			return nil, err
		}
	}

	return NewChain(reg.List()), nil
}

// Providers returns the chained providers in priority order.
func (c *Chain) Providers() []Provider {
	return c.providers
}

// Complete tries each provider in order and returns the first completion.
func (c *Chain) Complete(ctx context.Context, system, user string, opts GenerateOptions) (string, error) {
	for _, p := range c.providers {
		text, err := p.Complete(ctx, system, user, opts)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		metrics.ProviderFailures.WithLabelValues(p.Name(), "llm").Inc()
		c.log.Error("completion failed", "provider", p.Name(), "error", err)
	}

	metrics.ProviderFallbacks.WithLabelValues("llm").Inc()
	c.log.Error("all LLM providers failed")
	return ApologyMessage, nil
}

// CompleteStream tries each provider in order. A provider that errors before
// emitting any text is rolled over to the next one; once text has been
// forwarded the stream is committed and a later error ends it.
func (c *Chain) CompleteStream(ctx context.Context, system, user string, opts GenerateOptions) (<-chan StreamChunk, error) {
	outputCh := make(chan StreamChunk, 100)

	go func() {
		defer close(outputCh)

		for _, p := range c.providers {
			committed, err := c.forwardStream(ctx, p, system, user, opts, outputCh)
			if err == nil {
				return
			}
			if ctx.Err() != nil {
				return
			}
			metrics.ProviderFailures.WithLabelValues(p.Name(), "llm").Inc()
			c.log.Error("streaming completion failed", "provider", p.Name(), "error", err)
			if committed {
				// Text already reached the caller; do not restart with
				// another provider.
				select {
				case outputCh <- StreamChunk{Type: ChunkTypeError, Err: err}:
				case <-ctx.Done():
				}
				return
			}
		}

		metrics.ProviderFallbacks.WithLabelValues("llm").Inc()
		c.log.Error("all LLM providers failed for streaming")
		select {
		case outputCh <- StreamChunk{Type: ChunkTypeText, Text: ApologyMessage}:
		case <-ctx.Done():
			return
		}
		select {
		case outputCh <- StreamChunk{Type: ChunkTypeDone}:
		case <-ctx.Done():
		}
	}()

	return outputCh, nil
}

// forwardStream relays one provider's stream to outputCh. It reports whether
// any text chunk was forwarded and the stream error, if any.
func (c *Chain) forwardStream(ctx context.Context, p Provider, system, user string, opts GenerateOptions, outputCh chan<- StreamChunk) (bool, error) {
	stream, err := p.CompleteStream(ctx, system, user, opts)
	if err != nil {
		return false, err
	}

	committed := false
	for chunk := range stream {
		switch chunk.Type {
		case ChunkTypeText:
			committed = true
			select {
			case outputCh <- chunk:
			case <-ctx.Done():
				return committed, ctx.Err()
			}
		case ChunkTypeError:
			return committed, chunk.Err
		case ChunkTypeDone:
			select {
			case outputCh <- chunk:
			case <-ctx.Done():
				return committed, ctx.Err()
			}
			return committed, nil
		}
	}

	if !committed {
		return false, fmt.Errorf("provider %s closed the stream without output", p.Name())
	}
	return committed, nil
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
