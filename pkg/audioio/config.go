// Package audioio provides cross-platform audio capture and playback.
//
// Backends:
//   - malgo (miniaudio) - microphone and speaker on Linux, macOS and Windows
//   - Mock - CI/testing without hardware
//
// Audio arriving from a remote WebRTC device is adapted to Source by
// pkg/video.
package audioio

import (
	"errors"
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto automatically selects the best available backend.
	BackendAuto Backend = "auto"
	// BackendMalgo uses miniaudio through malgo.
	BackendMalgo Backend = "malgo"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Config holds capture and playback settings.
type Config struct {
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate in Hz. Speech recognizers want 16000.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`
	Channels   int `yaml:"channels" json:"channels"`

	// BufferDuration is the capture chunk length and the VAD frame size.
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`

	// Periods is the number of device buffers miniaudio cycles through.
	Periods int `yaml:"periods" json:"periods"`
}

// DefaultConfig returns 16 kHz mono in 20ms chunks.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     16000,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
		Periods:        3,
	}
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate))
	}
	if c.Channels <= 0 {
		errs = append(errs, fmt.Errorf("channels must be positive, got %d", c.Channels))
	}
	if c.BufferDuration <= 0 {
		errs = append(errs, fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration))
	}
	if c.Periods < 0 {
		errs = append(errs, fmt.Errorf("periods must not be negative, got %d", c.Periods))
	}
	return errors.Join(errs...)
}

// BufferSize is the number of frames per chunk.
func (c *Config) BufferSize() int {
	return int(int64(c.SampleRate) * int64(c.BufferDuration) / int64(time.Second))
}

// BufferBytes is the PCM16 size of one chunk across all channels.
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2
}
