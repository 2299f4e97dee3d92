package inference

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-attend/internal/fallback"
)

// Chain tries providers in order until one answers.
type Chain struct {
	list *fallback.List[Provider]
}

// NewChain creates a provider chain. At least one provider is required.
func NewChain(providers ...Provider) (*Chain, error) {
	return NewChainWithLogger(slog.Default(), providers...)
}

// NewChainWithLogger creates a provider chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	list, err := fallback.New("inference.chain", logger, providers...)
	if err != nil {
		return nil, ErrProviderUnavailable
	}
	return &Chain{list: list}, nil
}

// Name returns "chain".
func (c *Chain) Name() string { return "chain" }

// Chat returns the first successful reply. Cancellation stops the chain.
func (c *Chain) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	resp, errs := fallback.Do(ctx, c.list, func(p Provider) (*ChatResponse, error) {
		return p.Chat(ctx, req)
	})
	if errs != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, &ChainError{Errors: errs}
	}
	return resp, nil
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
