package stt

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-attend/internal/fallback"
)

// Chain tries providers in order until one transcribes. An empty
// transcript counts as success.
type Chain struct {
	list *fallback.List[Provider]
}

// NewChain creates a provider chain. At least one provider is required.
func NewChain(providers ...Provider) (*Chain, error) {
	return NewChainWithLogger(slog.Default(), providers...)
}

// NewChainWithLogger creates a provider chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	list, err := fallback.New("stt.chain", logger, providers...)
	if err != nil {
		return nil, ErrProviderUnavailable
	}
	return &Chain{list: list}, nil
}

// Name returns "chain".
func (c *Chain) Name() string { return "chain" }

// Transcribe returns the first successful transcript.
func (c *Chain) Transcribe(ctx context.Context, wav []byte) (*Result, error) {
	res, errs := fallback.Do(ctx, c.list, func(p Provider) (*Result, error) {
		return p.Transcribe(ctx, wav)
	})
	if errs != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, &ChainError{Errors: errs}
	}
	return res, nil
}

// Close closes all providers.
func (c *Chain) Close() error { return c.list.Close() }

var _ Provider = (*Chain)(nil)
