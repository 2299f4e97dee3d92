package audioio

import (
	"fmt"
	"log/slog"
	"runtime"
)

// NewSource opens the microphone for cfg.Backend.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	backend, logger, err := resolve(cfg, logger, "source")
	if err != nil {
		return nil, err
	}
	if backend == BackendMock {
		return NewMockSource(cfg, logger), nil
	}
	return NewMalgoSource(cfg, logger), nil
}

// NewSink opens the speaker for cfg.Backend.
func NewSink(cfg Config, logger *slog.Logger) (Sink, error) {
	backend, logger, err := resolve(cfg, logger, "sink")
	if err != nil {
		return nil, err
	}
	if backend == BackendMock {
		return NewMockSink(cfg, logger), nil
	}
	return NewMalgoSink(cfg, logger), nil
}

// resolve validates cfg and picks the concrete backend. miniaudio covers
// every desktop platform; anything else gets the mock.
func resolve(cfg Config, logger *slog.Logger, role string) (Backend, *slog.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return "", nil, fmt.Errorf("audioio: invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		switch runtime.GOOS {
		case "linux", "darwin", "windows", "freebsd":
			backend = BackendMalgo
		default:
			backend = BackendMock
		}
	}
	if backend != BackendMalgo && backend != BackendMock {
		return "", nil, fmt.Errorf("audioio: unsupported backend %q", backend)
	}

	logger.Info("opening audio "+role,
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"buffer", cfg.BufferDuration,
	)
	return backend, logger, nil
}
