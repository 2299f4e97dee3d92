package conversation

import (
	"errors"
	"log/slog"
	"time"
)

// DefaultSystemPrompt keeps replies short enough to be spoken.
const DefaultSystemPrompt = `You are a friendly voice assistant talking with a person standing in front of you.
Keep every reply concise and conversational: one to three short sentences.
Speak naturally. Do not use markdown, lists, emoji or code, because your words are read aloud.
If you did not catch what was said, ask the person to repeat it.`

// Config holds configuration for the conversation service.
type Config struct {
	// SystemPrompt is sent before the history on every Converse call.
	SystemPrompt string

	// Model overrides the inference provider's default model.
	Model string

	// MaxResponseTokens limits reply length.
	MaxResponseTokens int

	// Temperature controls response randomness.
	Temperature float64

	// Per-stage deadlines. Zero disables the deadline.
	TranscribeTimeout time.Duration
	ConverseTimeout   time.Duration
	SpeakTimeout      time.Duration

	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SystemPrompt:      DefaultSystemPrompt,
		MaxResponseTokens: 150,
		Temperature:       0.7,
		TranscribeTimeout: 30 * time.Second,
		ConverseTimeout:   30 * time.Second,
		SpeakTimeout:      2 * time.Minute,
		Logger:            slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxResponseTokens <= 0 {
		errs = append(errs, errors.New("conversation: max response tokens must be positive"))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, errors.New("conversation: temperature must be in [0,2]"))
	}
	if c.TranscribeTimeout < 0 || c.ConverseTimeout < 0 || c.SpeakTimeout < 0 {
		errs = append(errs, errors.New("conversation: timeouts must not be negative"))
	}
	return errors.Join(errs...)
}

// Option is a functional option for configuring the service.
type Option func(*Config)

// WithSystemPrompt sets the system instruction.
func WithSystemPrompt(prompt string) Option {
	return func(c *Config) {
		c.SystemPrompt = prompt
	}
}

// WithModel sets the LLM model.
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithTemperature sets the response temperature.
func WithTemperature(temp float64) Option {
	return func(c *Config) {
		c.Temperature = temp
	}
}

// WithMaxTokens sets the maximum response tokens.
func WithMaxTokens(tokens int) Option {
	return func(c *Config) {
		c.MaxResponseTokens = tokens
	}
}

// WithTimeouts sets the per-stage deadlines.
func WithTimeouts(transcribe, converse, speak time.Duration) Option {
	return func(c *Config) {
		c.TranscribeTimeout = transcribe
		c.ConverseTimeout = converse
		c.SpeakTimeout = speak
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
