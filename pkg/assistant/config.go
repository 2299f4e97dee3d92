package assistant

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/teslashibe/go-attend/pkg/assistant"

// Config holds orchestrator settings.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Sensitivity is the minimum face confidence that opens the microphone.
	Sensitivity float64

	// VADThreshold is handed to the voice source on start.
	VADThreshold float64

	// ListenTimeout bounds the Listening state.
	ListenTimeout time.Duration

	// ErrorRecoveryDelay is how long Error is shown before returning to Idle.
	ErrorRecoveryDelay time.Duration

	// ContextTurns bounds the history projection sent to the model.
	ContextTurns int

	// MailboxSize is the event queue capacity.
	MailboxSize int

	// FreeMode is the initial free-mode flag.
	FreeMode bool

	// InitialHistory seeds the history, e.g. from a persistent store.
	InitialHistory []ConversationItem

	Logger  *slog.Logger
	Metrics Metrics
	Tracer  trace.Tracer
}

// Option is a functional option for configuring the orchestrator.
type Option func(*Config)

// WithSensitivity sets the face confidence gate.
func WithSensitivity(s float64) Option {
	return func(c *Config) {
		c.Sensitivity = s
	}
}

// WithVADThreshold sets the voice-activity threshold.
func WithVADThreshold(t float64) Option {
	return func(c *Config) {
		c.VADThreshold = t
	}
}

// WithListenTimeout sets the maximum listening window.
func WithListenTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ListenTimeout = d
	}
}

// WithErrorRecoveryDelay sets how long the Error state lasts.
func WithErrorRecoveryDelay(d time.Duration) Option {
	return func(c *Config) {
		c.ErrorRecoveryDelay = d
	}
}

// WithContextTurns sets how many past exchanges are sent to the model.
func WithContextTurns(n int) Option {
	return func(c *Config) {
		c.ContextTurns = n
	}
}

// WithMailboxSize sets the event queue capacity.
func WithMailboxSize(n int) Option {
	return func(c *Config) {
		c.MailboxSize = n
	}
}

// WithFreeMode sets the initial free-mode flag.
func WithFreeMode(on bool) Option {
	return func(c *Config) {
		c.FreeMode = on
	}
}

// WithInitialHistory seeds the conversation history.
func WithInitialHistory(items []ConversationItem) Option {
	return func(c *Config) {
		c.InitialHistory = items
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics sets the instrumentation sink.
func WithMetrics(m Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Config) {
		c.Tracer = t
	}
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Sensitivity:        0.5,
		VADThreshold:       0.5,
		ListenTimeout:      10 * time.Second,
		ErrorRecoveryDelay: 3 * time.Second,
		ContextTurns:       10,
		MailboxSize:        64,
		Logger:             slog.Default(),
		Metrics:            nopMetrics{},
		Tracer:             otel.Tracer(tracerName),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Sensitivity < 0 || c.Sensitivity > 1 {
		errs = append(errs, fmt.Errorf("sensitivity must be in [0,1], got %v", c.Sensitivity))
	}
	if c.VADThreshold < 0 || c.VADThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad threshold must be in [0,1], got %v", c.VADThreshold))
	}
	if c.ListenTimeout <= 0 {
		errs = append(errs, fmt.Errorf("listen timeout must be positive, got %v", c.ListenTimeout))
	}
	if c.ErrorRecoveryDelay < 0 {
		errs = append(errs, fmt.Errorf("error recovery delay must not be negative, got %v", c.ErrorRecoveryDelay))
	}
	if c.MailboxSize <= 0 {
		errs = append(errs, fmt.Errorf("mailbox size must be positive, got %d", c.MailboxSize))
	}
	return errors.Join(errs...)
}
