// Package fallback runs a call against an ordered list of providers until
// one succeeds. The stt, inference and tts chains are built on it.
package fallback

import (
	"context"
	"errors"
	"log/slog"
)

// ErrEmpty is returned by New without providers.
var ErrEmpty = errors.New("fallback: no providers")

// Named is what every provider in a list offers.
type Named interface {
	Name() string
	Close() error
}

// List is an ordered, immutable provider list.
type List[P Named] struct {
	providers []P
	logger    *slog.Logger
}

// New creates a list logging as component. A nil logger uses slog.Default.
func New[P Named](component string, logger *slog.Logger, providers ...P) (*List[P], error) {
	if len(providers) == 0 {
		return nil, ErrEmpty
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &List[P]{
		providers: append([]P(nil), providers...),
		logger:    logger.With("component", component),
	}, nil
}

// Do calls fn on each provider in order and returns the first success.
// Cancellation ends the walk with ctx.Err(). When every provider fails the
// per-provider errors are returned in order.
func Do[P Named, T any](ctx context.Context, l *List[P], fn func(P) (T, error)) (T, []error) {
	var (
		zero T
		errs []error
	)
	for i, p := range l.providers {
		out, err := fn(p)
		if err == nil {
			if i > 0 {
				l.logger.Info("fallback provider succeeded", "provider", p.Name(), "provider_index", i)
			}
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, []error{ctxErr}
		}
		errs = append(errs, err)
		l.logger.Warn("provider failed, trying next", "provider", p.Name(), "provider_index", i, "error", err)
	}
	return zero, errs
}

// Healthy runs check on every provider. It returns nil when at least one
// passes, otherwise the last failure.
func (l *List[P]) Healthy(check func(P) error) error {
	var (
		healthy int
		last    error
	)
	for _, p := range l.providers {
		if err := check(p); err != nil {
			last = err
			continue
		}
		healthy++
	}
	l.logger.Debug("health check complete", "healthy", healthy, "total", len(l.providers))
	if healthy == 0 {
		return last
	}
	return nil
}

// Close closes every provider and joins their errors.
func (l *List[P]) Close() error {
	errs := make([]error, 0, len(l.providers))
	for _, p := range l.providers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

// Providers returns a copy of the list.
func (l *List[P]) Providers() []P {
	return append([]P(nil), l.providers...)
}
