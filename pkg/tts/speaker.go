package tts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-attend/pkg/audioio"
)

// Speaker plays synthesized replies through an audio sink.
// Only one reply plays at a time; a new Speak interrupts the previous one.
type Speaker struct {
	provider Provider
	sink     audioio.Sink
	logger   *slog.Logger

	// OnPlaybackStart and OnPlaybackEnd fire around each reply.
	OnPlaybackStart func()
	OnPlaybackEnd   func()

	mu       sync.Mutex
	cancel   context.CancelFunc
	gen      uint64
	speaking atomic.Bool
}

// NewSpeaker creates a speaker for provider and sink.
func NewSpeaker(provider Provider, sink audioio.Sink, logger *slog.Logger) *Speaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Speaker{
		provider: provider,
		sink:     sink,
		logger:   logger.With("component", "tts.speaker"),
	}
}

// Speak synthesizes text and blocks until it has played, failed or been
// interrupted. An interrupted reply returns the context error. Failures
// before playback begins wrap ErrNotStarted.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return notStarted(WrapError(s.provider.Name(), ErrEmptyText))
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.gen++
	gen := s.gen
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		if s.gen == gen {
			s.cancel = nil
		}
		s.mu.Unlock()
	}()

	if err := s.sink.Start(ctx); err != nil {
		return notStarted(err)
	}

	start := time.Now()
	stream, err := s.provider.Stream(ctx, text)
	if err != nil {
		return notStarted(err)
	}
	defer stream.Close()
	format := stream.Format()

	s.speaking.Store(true)
	if s.OnPlaybackStart != nil {
		s.OnPlaybackStart()
	}
	defer func() {
		s.speaking.Store(false)
		if s.OnPlaybackEnd != nil {
			s.OnPlaybackEnd()
		}
	}()

	var (
		carry   []byte
		samples int
		first   = true
	)
	for {
		chunk, err := stream.Read()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return err
		}
		if chunk == nil {
			break
		}
		if first {
			s.logger.Debug("first audio", "provider", s.provider.Name(), "latency_ms", time.Since(start).Milliseconds())
			first = false
		}

		// PCM16 frames can straddle chunk boundaries.
		data := append(carry, chunk...)
		even := len(data) &^ 1
		carry = append([]byte(nil), data[even:]...)
		if even == 0 {
			continue
		}
		pcm := audioio.BytesToSamples(data[:even])
		samples += len(pcm)
		if err := s.sink.Write(ctx, audioio.AudioChunk{
			Samples:    pcm,
			SampleRate: format.SampleRate,
			Channels:   1,
		}); err != nil {
			return err
		}
	}

	if err := s.sink.Flush(ctx); err != nil {
		return err
	}
	s.logger.Debug("reply played",
		"provider", s.provider.Name(),
		"chars", len(text),
		"audio_ms", pcmDuration(samples*2, format.SampleRate).Milliseconds(),
	)
	return nil
}

// Stop interrupts the current reply and discards queued audio.
func (s *Speaker) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	if err := s.sink.Clear(); err != nil {
		s.logger.Warn("failed to clear sink", "error", err)
	}
}

// IsSpeaking reports whether audio is currently being played.
func (s *Speaker) IsSpeaking() bool {
	return s.speaking.Load()
}

func notStarted(err error) error {
	return fmt.Errorf("%w: %w", ErrNotStarted, err)
}

// Close stops playback and closes the provider. The sink is left to its owner.
func (s *Speaker) Close() error {
	s.Stop()
	return s.provider.Close()
}

// Health checks the underlying provider.
func (s *Speaker) Health(ctx context.Context) error {
	return s.provider.Health(ctx)
}
