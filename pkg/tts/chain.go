package tts

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-attend/internal/fallback"
)

// Chain tries providers in order. Stream falls back only while opening the
// stream, never mid-reply.
type Chain struct {
	list *fallback.List[Provider]
}

// NewChain creates a provider chain. At least one provider is required.
func NewChain(providers ...Provider) (*Chain, error) {
	return NewChainWithLogger(slog.Default(), providers...)
}

// NewChainWithLogger creates a provider chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	list, err := fallback.New("tts.chain", logger, providers...)
	if err != nil {
		return nil, ErrProviderUnavailable
	}
	return &Chain{list: list}, nil
}

// Name returns "chain".
func (c *Chain) Name() string { return "chain" }

// Synthesize returns the first provider's complete audio.
func (c *Chain) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	return first(ctx, c, func(p Provider) (*AudioResult, error) {
		return p.Synthesize(ctx, text)
	})
}

// Stream returns the first stream that opens.
func (c *Chain) Stream(ctx context.Context, text string) (AudioStream, error) {
	return first(ctx, c, func(p Provider) (AudioStream, error) {
		return p.Stream(ctx, text)
	})
}

func first[T any](ctx context.Context, c *Chain, call func(Provider) (T, error)) (T, error) {
	out, errs := fallback.Do(ctx, c.list, call)
	if errs != nil {
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, &ChainError{Errors: errs}
	}
	return out, nil
}

// Health passes when any provider is healthy.
func (c *Chain) Health(ctx context.Context) error {
	if err := c.list.Healthy(func(p Provider) error { return p.Health(ctx) }); err != nil {
		return WrapError("chain", err)
	}
	return nil
}

// Close closes all providers.
func (c *Chain) Close() error { return c.list.Close() }

// Providers returns the providers in order.
func (c *Chain) Providers() []Provider { return c.list.Providers() }

var _ Provider = (*Chain)(nil)
